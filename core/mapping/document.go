// Package mapping holds the position-mapping document: a rendered text with
// footnote markers plus the tables that convert offsets between markup
// (source), rendered text before markers (base) and rendered text after
// markers (display).
//
// A Document is immutable after construction and safe for concurrent use.
// Lookups report misses with a boolean and conversions clamp their input;
// nothing here returns an error except CheckInvariants.
package mapping

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/FocuswithJustin/TeiSync/core/footnote"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/render"
)

// MarkerSearchRadius bounds the neighborhood scanned by MarkerAt when the
// offset is not inside any marker.
const MarkerSearchRadius = 10

// Document is a rendered text with its segments, footnotes and offset maps.
type Document struct {
	text     string
	length   int
	baseText string
	baseLen  int

	segments    []ir.Segment
	annotations []ir.Annotation
	markers     []ir.MarkerSpan
	byKey       map[string]ir.Segment

	// markerBefore[i] is the total length of markers[:i].
	markerBefore []int
	// markerBase[i] is the base offset at which markers[i] was inserted.
	markerBase []int

	baseToSource []int
}

// New assembles a document from display text and its layout.
//
// markers must be sorted by Start and baseToSource, when non-nil, must hold
// one entry per base rune. Neither is checked here; documents loaded from
// untrusted storage go through CheckInvariants.
func New(text string, segments []ir.Segment, annotations []ir.Annotation, markers []ir.MarkerSpan, baseToSource []int) *Document {
	d := &Document{
		text:         text,
		length:       utf8.RuneCountInString(text),
		segments:     segments,
		annotations:  annotations,
		markers:      markers,
		byKey:        make(map[string]ir.Segment, len(segments)),
		markerBefore: make([]int, len(markers)+1),
		markerBase:   make([]int, len(markers)),
		baseToSource: baseToSource,
	}
	for _, s := range segments {
		if _, ok := d.byKey[s.Key]; !ok {
			d.byKey[s.Key] = s
		}
	}
	for i, m := range markers {
		d.markerBase[i] = m.Start - d.markerBefore[i]
		d.markerBefore[i+1] = d.markerBefore[i] + m.Len()
	}
	d.baseText = stripMarkers(text, markers)
	d.baseLen = utf8.RuneCountInString(d.baseText)
	return d
}

// Build renders markup, inserts footnote markers and returns the document.
func Build(markup string) *Document {
	r := render.Render(markup)
	f := footnote.Insert(r.Text, r.Annotations, r.Segments)
	return New(f.Text, f.Segments, r.Annotations, f.Markers, r.SourceIndex)
}

func stripMarkers(text string, markers []ir.MarkerSpan) string {
	if len(markers) == 0 {
		return text
	}
	runes := []rune(text)
	out := make([]rune, 0, len(runes))
	prev := 0
	for _, m := range markers {
		start := min(max(m.Start, prev), len(runes))
		out = append(out, runes[prev:start]...)
		prev = min(max(m.End, start), len(runes))
	}
	return string(append(out, runes[prev:]...))
}

// Text returns the display text.
func (d *Document) Text() string { return d.text }

// BaseText returns the rendered text without footnote markers.
func (d *Document) BaseText() string { return d.baseText }

// Len returns the display length in runes.
func (d *Document) Len() int { return d.length }

// BaseLen returns the base length in runes.
func (d *Document) BaseLen() int { return d.baseLen }

// Segments returns the segments sorted by Start. Callers must not modify it.
func (d *Document) Segments() []ir.Segment { return d.segments }

// Annotations returns the footnotes in capture order. Callers must not
// modify it.
func (d *Document) Annotations() []ir.Annotation { return d.annotations }

// Markers returns the marker spans sorted by Start. Callers must not modify
// it.
func (d *Document) Markers() []ir.MarkerSpan { return d.markers }

// HasSourceMap reports whether display offsets can be mapped to markup.
func (d *Document) HasSourceMap() bool { return len(d.baseToSource) > 0 }

// IsEmpty reports whether the display text is empty.
func (d *Document) IsEmpty() bool { return d.length == 0 }

// SegmentAtOrBefore returns the rightmost segment starting at or before
// offset. When every segment starts after offset the first one is returned.
// ok is false only for a document without segments.
func (d *Document) SegmentAtOrBefore(offset int) (ir.Segment, bool) {
	if len(d.segments) == 0 {
		return ir.Segment{}, false
	}
	i, _ := slices.BinarySearchFunc(d.segments, offset+1, func(s ir.Segment, target int) int {
		return cmp.Compare(s.Start, target)
	})
	if i == 0 {
		return d.segments[0], true
	}
	return d.segments[i-1], true
}

// SegmentByKey returns the first segment carrying key.
func (d *Document) SegmentByKey(key string) (ir.Segment, bool) {
	s, ok := d.byKey[key]
	return s, ok
}

// MarkerAt returns the marker containing offset. If none does, the marker
// closest to offset within MarkerSearchRadius is returned; ties go to the
// earlier marker.
func (d *Document) MarkerAt(offset int) (ir.MarkerSpan, bool) {
	i, ok := d.markerIndexAt(offset)
	if !ok {
		return ir.MarkerSpan{}, false
	}
	return d.markers[i], true
}

// AnnotationByMarkerAt returns the footnote whose marker is at offset, with
// the same fallback as MarkerAt.
func (d *Document) AnnotationByMarkerAt(offset int) (ir.Annotation, bool) {
	i, ok := d.markerIndexAt(offset)
	if !ok {
		return ir.Annotation{}, false
	}
	idx := d.markers[i].AnnotationIndex
	if idx < 0 || idx >= len(d.annotations) {
		return ir.Annotation{}, false
	}
	return d.annotations[idx], true
}

func (d *Document) markerIndexAt(offset int) (int, bool) {
	if len(d.markers) == 0 {
		return 0, false
	}
	// First marker starting after offset.
	i, _ := slices.BinarySearchFunc(d.markers, offset+1, func(m ir.MarkerSpan, target int) int {
		return cmp.Compare(m.Start, target)
	})
	if i > 0 && d.markers[i-1].Contains(offset) {
		return i - 1, true
	}

	best, bestDist := -1, MarkerSearchRadius+1
	for j := i - 1; j >= 0; j-- {
		dist := markerDistance(d.markers[j], offset)
		if dist > MarkerSearchRadius {
			break
		}
		if dist < bestDist {
			best, bestDist = j, dist
		}
	}
	for j := i; j < len(d.markers); j++ {
		dist := markerDistance(d.markers[j], offset)
		if dist > MarkerSearchRadius {
			break
		}
		if dist < bestDist {
			best, bestDist = j, dist
		}
	}
	return best, best >= 0
}

// markerDistance is the distance from offset to the nearest rune of m.
func markerDistance(m ir.MarkerSpan, offset int) int {
	switch {
	case offset < m.Start:
		return m.Start - offset
	case offset >= m.End:
		return offset - (m.End - 1)
	}
	return 0
}

// DisplayToBase converts a display offset to a base offset. An offset
// inside a marker maps to the marker's insertion point. The result is
// clamped to [0, BaseLen].
func (d *Document) DisplayToBase(display int) int {
	display = clamp(display, 0, d.length)
	// Markers starting at or before display.
	k, _ := slices.BinarySearchFunc(d.markers, display+1, func(m ir.MarkerSpan, target int) int {
		return cmp.Compare(m.Start, target)
	})
	if k > 0 && d.markers[k-1].Contains(display) {
		return clamp(d.markerBase[k-1], 0, d.baseLen)
	}
	return clamp(display-d.markerBefore[k], 0, d.baseLen)
}

// BaseToDisplay converts a base offset to a display offset. Markers
// inserted at or before base push it right. The input is clamped to
// [0, BaseLen].
func (d *Document) BaseToDisplay(base int) int {
	base = clamp(base, 0, d.baseLen)
	k, _ := slices.BinarySearch(d.markerBase, base+1)
	return base + d.markerBefore[k]
}

// DisplayToSource converts a display offset to the markup byte offset that
// produced it. ok is false when the document carries no source map.
func (d *Document) DisplayToSource(display int) (int, bool) {
	if !d.HasSourceMap() {
		return 0, false
	}
	base := clamp(d.DisplayToBase(display), 0, len(d.baseToSource)-1)
	return d.baseToSource[base], true
}

// RenderedOffsetForSource returns the display offset of the last base rune
// produced at or before the markup byte offset source. ok is false when the
// document carries no source map.
func (d *Document) RenderedOffsetForSource(source int) (int, bool) {
	if !d.HasSourceMap() {
		return 0, false
	}
	k, _ := slices.BinarySearch(d.baseToSource, source+1)
	base := max(k-1, 0)
	return d.BaseToDisplay(base), true
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
