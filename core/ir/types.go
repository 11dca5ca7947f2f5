package ir

// NoAnchor is the Start of an annotation whose anchor could not be resolved.
const NoAnchor = -1

// Segment is a contiguous run of rendered text tied to one sync token.
type Segment struct {
	// Key identifies the sync token (e.g., "lb|0001a01|T", "p|p5").
	Key string `json:"key"`

	// Start is the first offset covered by the segment.
	Start int `json:"start"`

	// End is the exclusive end offset.
	End int `json:"end"`
}

// Len returns the number of runes covered by the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// Contains reports whether offset is within [Start, End).
func (s Segment) Contains(offset int) bool {
	return s.Start <= offset && offset < s.End
}

// Annotation is a footnote anchored to a position in the base text.
type Annotation struct {
	// Start is the anchor offset in base text, or NoAnchor.
	Start int `json:"start"`

	// End is the exclusive end offset. Equal to Start for anchor notes.
	End int `json:"end"`

	// Text is the normalized note text.
	Text string `json:"text"`

	// Kind is the note type taken from the markup (e.g., "inline", "orig").
	Kind string `json:"kind,omitempty"`
}

// Anchored reports whether the annotation has a usable position.
func (a Annotation) Anchored() bool {
	return a.Start >= 0
}

// MarkerSpan is the extent of a footnote marker in display text.
type MarkerSpan struct {
	// Start is the first display offset of the marker glyphs.
	Start int `json:"start"`

	// End is the exclusive end offset.
	End int `json:"end"`

	// AnnotationIndex points into the owning document's annotation list.
	AnnotationIndex int `json:"annotation_index"`
}

// Len returns the number of glyphs in the marker.
func (m MarkerSpan) Len() int {
	return m.End - m.Start
}

// Contains reports whether offset is within [Start, End).
func (m MarkerSpan) Contains(offset int) bool {
	return m.Start <= offset && offset < m.End
}
