package mapping

import (
	"fmt"

	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/ir"
)

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion = 1

// Snapshot is the serializable form of a Document.
type Snapshot struct {
	Version     int             `json:"version"`
	Text        string          `json:"text"`
	Segments    []ir.Segment    `json:"segments,omitempty"`
	Annotations []ir.Annotation `json:"annotations,omitempty"`
	Markers     []ir.MarkerSpan `json:"markers,omitempty"`
	SourceIndex []int           `json:"source_index,omitempty"`
}

// Snapshot returns the serializable form of d. The slices are shared with d.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Version:     SnapshotVersion,
		Text:        d.text,
		Segments:    d.segments,
		Annotations: d.annotations,
		Markers:     d.markers,
		SourceIndex: d.baseToSource,
	}
}

// FromSnapshot rebuilds a Document and validates it.
func FromSnapshot(s Snapshot) (*Document, error) {
	if s.Version != SnapshotVersion {
		return nil, errors.NewUnsupported("snapshot version", fmt.Sprintf("got %d, want %d", s.Version, SnapshotVersion))
	}
	d := New(s.Text, s.Segments, s.Annotations, s.Markers, s.SourceIndex)
	if err := d.CheckInvariants(); err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	return d, nil
}

// CheckInvariants validates the construction preconditions of d: markers
// sorted, disjoint and in bounds with valid annotation indices; segments
// sorted and in bounds; a source map, if any, with one non-decreasing entry
// per base rune.
func (d *Document) CheckInvariants() error {
	prevEnd := 0
	for i, m := range d.markers {
		switch {
		case m.Start < prevEnd:
			return invariantError("markers", "marker %d at %d overlaps or is out of order", i, m.Start)
		case m.End <= m.Start || m.End > d.length:
			return invariantError("markers", "marker %d has bad extent [%d,%d)", i, m.Start, m.End)
		case m.AnnotationIndex < 0 || m.AnnotationIndex >= len(d.annotations):
			return invariantError("markers", "marker %d points at annotation %d of %d", i, m.AnnotationIndex, len(d.annotations))
		}
		prevEnd = m.End
	}

	prevStart := 0
	for i, s := range d.segments {
		switch {
		case s.Start < prevStart:
			return invariantError("segments", "segment %d (%s) is out of order", i, s.Key)
		case s.End < s.Start || s.End > d.length:
			return invariantError("segments", "segment %d (%s) has bad extent [%d,%d)", i, s.Key, s.Start, s.End)
		}
		prevStart = s.Start
	}

	if d.baseToSource == nil {
		return nil
	}
	if len(d.baseToSource) != d.baseLen {
		return invariantError("source_index", "has %d entries for %d base runes", len(d.baseToSource), d.baseLen)
	}
	for i := 1; i < len(d.baseToSource); i++ {
		if d.baseToSource[i] < d.baseToSource[i-1] {
			return invariantError("source_index", "decreases at %d", i)
		}
	}
	return nil
}

func invariantError(field, format string, args ...any) error {
	return errors.NewValidation(field, fmt.Sprintf(format, args...))
}
