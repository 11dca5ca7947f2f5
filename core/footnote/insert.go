// Package footnote inserts numbered footnote markers into rendered text and
// keeps segment boundaries consistent with the longer display text.
package footnote

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/FocuswithJustin/TeiSync/core/ir"
)

// superscriptDigits is the marker alphabet, indexed by decimal digit.
var superscriptDigits = [10]rune{'⁰', '¹', '²', '³', '⁴', '⁵', '⁶', '⁷', '⁸', '⁹'}

// Marker returns the marker for the 1-based footnote number n.
func Marker(n int) string {
	if n < 0 {
		n = -n
	}
	digits := strconv.Itoa(n)
	out := make([]rune, len(digits))
	for i := 0; i < len(digits); i++ {
		out[i] = superscriptDigits[digits[i]-'0']
	}
	return string(out)
}

// Result is the display text with markers and the shifted layout.
type Result struct {
	// Text is the display text.
	Text string `json:"text"`

	// Segments are the input segments shifted into display offsets, sorted
	// by Start.
	Segments []ir.Segment `json:"segments,omitempty"`

	// Markers are the inserted marker extents, sorted by Start.
	Markers []ir.MarkerSpan `json:"markers,omitempty"`
}

// insertion is one marker placed at a base offset.
type insertion struct {
	index int // annotation index
	at    int // base offset
	size  int // marker length in runes
}

// Insert places a marker for every anchored annotation at its base offset.
//
// Markers are numbered by the annotation's position in the input list, not
// by their position in the text. Annotations sharing an anchor keep input
// order. Unanchored annotations get no marker. Offsets are runes.
func Insert(text string, annotations []ir.Annotation, segments []ir.Segment) Result {
	runes := []rune(text)
	n := len(runes)

	var pending []insertion
	if n > 0 {
		for i, a := range annotations {
			if !a.Anchored() {
				continue
			}
			pending = append(pending, insertion{index: i, at: min(a.Start, n)})
		}
	}
	if len(pending) == 0 {
		return Result{Text: text, Segments: slices.Clone(segments)}
	}
	slices.SortStableFunc(pending, func(a, b insertion) int {
		return cmp.Compare(a.at, b.at)
	})

	out := make([]rune, 0, n+2*len(pending))
	markers := make([]ir.MarkerSpan, 0, len(pending))
	prev := 0
	for i := range pending {
		p := &pending[i]
		out = append(out, runes[prev:p.at]...)
		prev = p.at

		start := len(out)
		out = append(out, []rune(Marker(p.index+1))...)
		p.size = len(out) - start
		markers = append(markers, ir.MarkerSpan{Start: start, End: len(out), AnnotationIndex: p.index})
	}
	out = append(out, runes[prev:]...)

	shift := newShifter(pending)
	shifted := make([]ir.Segment, len(segments))
	for i, s := range segments {
		shifted[i] = ir.Segment{Key: s.Key, Start: s.Start + shift.upTo(s.Start), End: s.End + shift.upTo(s.End)}
	}
	slices.SortStableFunc(shifted, func(a, b ir.Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})
	slices.SortStableFunc(markers, func(a, b ir.MarkerSpan) int {
		return cmp.Compare(a.Start, b.Start)
	})

	return Result{Text: string(out), Segments: shifted, Markers: markers}
}

// shifter answers "how many marker runes were inserted at or before this
// base offset" with a prefix sum over insertions sorted by offset.
type shifter struct {
	offsets []int
	prefix  []int
}

func newShifter(events []insertion) shifter {
	s := shifter{offsets: make([]int, len(events)), prefix: make([]int, len(events)+1)}
	for i, e := range events {
		s.offsets[i] = e.at
		s.prefix[i+1] = s.prefix[i] + e.size
	}
	return s
}

func (s shifter) upTo(offset int) int {
	// Number of events with at <= offset.
	k, _ := slices.BinarySearch(s.offsets, offset+1)
	return s.prefix[k]
}
