// Package align resolves positions between two renderings of the same work,
// such as an original edition and its translation.
package align

import (
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/mapping"
)

// Via records how a match was found.
type Via string

// Resolution paths.
const (
	// ViaKey means both documents share the segment key at the offset.
	ViaKey Via = "key"

	// ViaSource means the keys diverged and the match went through the
	// markup offset of the source position.
	ViaSource Via = "source"
)

// Match is a resolved destination position.
type Match struct {
	// Segment is the destination segment.
	Segment ir.Segment `json:"segment"`

	// Via is the path that produced the match.
	Via Via `json:"via"`

	// Offset is the destination display offset for the source offset. For
	// key matches it keeps the distance from the segment start, clamped to
	// the destination segment.
	Offset int `json:"offset"`
}

// Resolve returns the segment of dst that corresponds to the display offset
// in src. ok is false when no corresponding position is known; callers
// should treat that as "no sync", not as a failure.
func Resolve(src, dst *mapping.Document, offset int) (ir.Segment, bool) {
	m, ok := ResolveMatch(src, dst, offset)
	return m.Segment, ok
}

// ResolveMatch is Resolve with the resolution path and a destination offset.
//
// The segment at or before offset in src is looked up by key in dst. When
// dst has no such key, offset is mapped to a markup offset through src's
// source map and back into dst, and the segment at or before that position
// is returned.
func ResolveMatch(src, dst *mapping.Document, offset int) (Match, bool) {
	if src == nil || dst == nil || src.IsEmpty() || dst.IsEmpty() {
		return Match{}, false
	}
	from, ok := src.SegmentAtOrBefore(offset)
	if !ok {
		return Match{}, false
	}

	if to, ok := dst.SegmentByKey(from.Key); ok {
		delta := min(max(offset-from.Start, 0), to.Len())
		return Match{Segment: to, Via: ViaKey, Offset: to.Start + delta}, true
	}

	source, ok := src.DisplayToSource(offset)
	if !ok {
		return Match{}, false
	}
	at, ok := dst.RenderedOffsetForSource(source)
	if !ok {
		return Match{}, false
	}
	to, ok := dst.SegmentAtOrBefore(at)
	if !ok {
		return Match{}, false
	}
	return Match{Segment: to, Via: ViaSource, Offset: at}, true
}

// Pair is two aligned documents.
type Pair struct {
	// Source is the original edition.
	Source *mapping.Document

	// Dest is the edition positions are synced to.
	Dest *mapping.Document
}

// Forward resolves a Source offset into Dest.
func (p Pair) Forward(offset int) (Match, bool) {
	return ResolveMatch(p.Source, p.Dest, offset)
}

// Backward resolves a Dest offset into Source.
func (p Pair) Backward(offset int) (Match, bool) {
	return ResolveMatch(p.Dest, p.Source, offset)
}
