// Package render turns TEI markup into flat text in a single left-to-right
// scan.
//
// The scan alternates between text runs and tags. It produces the rendered
// base text, the ordered segments opened by synchronization tags, the
// footnotes captured from inline notes and back-matter notes, and a table
// mapping every rendered rune back to the markup byte that produced it.
//
// Render never fails. Malformed input degrades to literal text: a '<' with
// no closing '>' and angle-bracket content that is not shaped like a tag
// (comments, processing instructions, doctypes) are rendered as written.
package render

import (
	"strings"

	"github.com/FocuswithJustin/TeiSync/core/ir"
)

// Result is the output of one render.
type Result struct {
	// Text is the rendered base text (no footnote markers).
	Text string `json:"text"`

	// Segments are the sync-token runs in scan order.
	Segments []ir.Segment `json:"segments,omitempty"`

	// Annotations are the captured notes in capture order.
	Annotations []ir.Annotation `json:"annotations,omitempty"`

	// SourceIndex holds, for every rune of Text, the markup byte offset that
	// produced it. Values never decrease.
	SourceIndex []int `json:"source_index,omitempty"`
}

const (
	headerElement = "teiHeader"
	backElement   = "back"
	noteElement   = "note"
	anchorElement = "anchor"
	editionAttr   = "ed"
)

// syncTags open a new segment. "p" does so only when it carries an identifier.
var syncTags = map[string]bool{
	"lb":          true,
	"pb":          true,
	"p":           true,
	anchorElement: true,
	"milestone":   true,
	"juan":        true,
	"cb:juan":     true,
}

// idAttrs are tried in order for the identifier part of a segment key.
var idAttrs = []string{"xml:id", "id", "n"}

// skippedElements hold editorial text that is rendered elsewhere (variant
// readings, table-of-contents labels).
var skippedElements = map[string]bool{
	"rdg":     true,
	"cb:mulu": true,
}

// Break-like start tags inside a captured note.
var (
	noteNewlineTags = map[string]bool{"p": true, "div": true, "lg": true, "list": true, "item": true, "head": true}
	noteSpaceTags   = map[string]bool{"lb": true, "pb": true, "l": true, "cb": true}
)

// noteCapture is the state of the note currently being captured.
type noteCapture struct {
	active bool
	inBack bool
	depth  int
	anchor int
	kind   string
	buf    *textBuffer
}

type scanner struct {
	markup string
	main   *textBuffer
	note   noteCapture

	headerDepth int
	backDepth   int
	skipName    string
	skipDepth   int

	segKey   string
	segStart int
	segments []ir.Segment

	anchors     map[string]int
	anchorOrder []string
	annotations []ir.Annotation
}

// Render renders markup into base text, segments, annotations and the
// base-to-source offset table.
func Render(markup string) Result {
	s := &scanner{
		markup:  markup,
		main:    newTextBuffer(true),
		note:    noteCapture{buf: newTextBuffer(false)},
		anchors: make(map[string]int),
	}
	s.scan()
	s.finish()

	return Result{
		Text:        s.main.String(),
		Segments:    s.segments,
		Annotations: s.annotations,
		SourceIndex: s.main.source,
	}
}

func (s *scanner) scan() {
	m := s.markup
	runStart := 0
	for i := 0; i < len(m); {
		lt := strings.IndexByte(m[i:], '<')
		if lt < 0 {
			break
		}
		lt += i
		gt := strings.IndexByte(m[lt+1:], '>')
		if gt < 0 {
			// No '>' anywhere after this point: the rest is text.
			break
		}
		gt += lt + 1

		t, ok := parseTag(m[lt+1 : gt])
		if !ok {
			i = lt + 1
			continue
		}
		s.text(runStart, lt)
		s.handle(&t, lt)
		i = gt + 1
		runStart = i
	}
	s.text(runStart, len(m))
}

// text routes the markup run [from, to) to whichever buffer is live.
func (s *scanner) text(from, to int) {
	if from >= to {
		return
	}
	switch {
	case s.headerDepth > 0:
	case s.note.active:
		s.note.buf.appendText(s.markup[from:to], from)
	case s.skipDepth > 0, s.backDepth > 0:
	default:
		s.main.appendText(s.markup[from:to], from)
	}
}

func (s *scanner) handle(t *tag, at int) {
	if t.name == headerElement {
		s.headerDepth = adjustDepth(s.headerDepth, t)
		return
	}
	if s.headerDepth > 0 {
		return
	}
	if s.note.active {
		s.handleInNote(t, at)
		return
	}
	if s.skipDepth > 0 {
		if t.name == s.skipName {
			s.skipDepth = adjustDepth(s.skipDepth, t)
		}
		return
	}
	if t.name == backElement {
		s.backDepth = adjustDepth(s.backDepth, t)
		return
	}
	if s.backDepth > 0 {
		s.handleInBack(t)
		return
	}

	if t.closing {
		switch t.name {
		case "p", "head":
			s.breakMain(true, at)
		}
		return
	}

	switch {
	case t.name == noteElement:
		if t.selfClosing {
			return
		}
		if hasToken(t.get("place"), "inline") {
			kind := t.get("type")
			if kind == "" {
				kind = "inline"
			}
			s.beginNote(s.main.len(), kind, false)
			return
		}
		s.beginSkip(t.name)
		return
	case skippedElements[t.name]:
		if !t.selfClosing {
			s.beginSkip(t.name)
		}
		return
	}

	switch t.name {
	case "lb":
		s.breakMain(false, at)
	case "pb", "p", "head":
		s.breakMain(true, at)
	}
	s.mark(t)
}

// handleInBack starts capture of end notes that point at an anchor.
func (s *scanner) handleInBack(t *tag) {
	if t.name != noteElement || t.closing || t.selfClosing {
		return
	}
	target := targetID(t.get("target"))
	if target == "" {
		return
	}
	anchor, found := s.anchors[target]
	if !found {
		anchor = ir.NoAnchor
	}
	s.beginNote(anchor, t.get("type"), true)
}

func (s *scanner) handleInNote(t *tag, at int) {
	n := &s.note
	if t.name == noteElement {
		n.depth = adjustDepth(n.depth, t)
		if n.depth == 0 {
			s.endNote()
		}
		return
	}
	if t.closing {
		return
	}
	switch {
	case noteNewlineTags[t.name]:
		n.buf.softSeparator(true, at)
	case noteSpaceTags[t.name]:
		n.buf.softSeparator(false, at)
	}
	if !n.inBack {
		// Inline notes sit in the main text flow; its sync tokens still count.
		s.mark(t)
	}
}

// mark records anchors and opens segments for sync tags.
func (s *scanner) mark(t *tag) {
	if t.name == anchorElement {
		if id := t.first("xml:id", "id"); id != "" {
			if _, seen := s.anchors[id]; !seen {
				s.anchors[id] = s.main.len()
				s.anchorOrder = append(s.anchorOrder, id)
			}
		}
	}
	if key, ok := segmentKey(t); ok {
		s.openSegment(key)
	}
}

func (s *scanner) openSegment(key string) {
	s.closeSegment()
	s.segKey = key
	s.segStart = s.main.len()
}

// closeSegment closes the open segment at the current offset. The implicit
// keyless segment before the first sync tag is dropped when empty.
func (s *scanner) closeSegment() {
	end := s.main.len()
	if end < s.segStart {
		end = s.segStart
	}
	if end > s.segStart || s.segKey != "" {
		s.segments = append(s.segments, ir.Segment{Key: s.segKey, Start: s.segStart, End: end})
	}
}

// breakMain renders a line or paragraph break into the main text. Trailing
// blanks are trimmed first, and every position recorded past the trimmed end
// is pulled back to it before the break is rendered, so notes, anchors and
// segment starts stay on the text they follow.
func (s *scanner) breakMain(paragraph bool, at int) {
	s.main.trimTrailingBlanks()
	s.clampPositions(s.main.len())
	if paragraph {
		s.main.paragraphBreak(at)
	} else {
		s.main.lineBreak(at)
	}
}

// clampPositions moves recorded main-text positions greater than n back to
// n. Positions are recorded in nondecreasing order, so each list is walked
// from its end.
func (s *scanner) clampPositions(n int) {
	s.segStart = min(s.segStart, n)
	if s.note.active && !s.note.inBack {
		s.note.anchor = min(s.note.anchor, n)
	}

	for i := len(s.segments) - 1; i >= 0 && s.segments[i].End > n; i-- {
		s.segments[i].End = n
		s.segments[i].Start = min(s.segments[i].Start, n)
	}
	if last := len(s.segments) - 1; last >= 0 && s.segments[last].Key == "" && s.segments[last].End == s.segments[last].Start {
		s.segments = s.segments[:last]
	}

	for i := len(s.annotations) - 1; i >= 0; i-- {
		a := &s.annotations[i]
		if !a.Anchored() {
			continue
		}
		if a.Start <= n {
			break
		}
		a.Start, a.End = n, n
	}

	for i := len(s.anchorOrder) - 1; i >= 0; i-- {
		id := s.anchorOrder[i]
		if s.anchors[id] <= n {
			break
		}
		s.anchors[id] = n
	}
}

func (s *scanner) beginNote(anchor int, kind string, inBack bool) {
	s.note.active = true
	s.note.inBack = inBack
	s.note.depth = 1
	s.note.anchor = anchor
	s.note.kind = kind
	s.note.buf.reset()
}

func (s *scanner) endNote() {
	s.note.active = false
	text := strings.TrimSpace(s.note.buf.String())
	if text == "" {
		return
	}
	s.annotations = append(s.annotations, ir.Annotation{
		Start: s.note.anchor,
		End:   s.note.anchor,
		Text:  text,
		Kind:  s.note.kind,
	})
}

func (s *scanner) beginSkip(name string) {
	s.skipName = name
	s.skipDepth = 1
}

func (s *scanner) finish() {
	if s.note.active {
		s.endNote()
	}
	s.closeSegment()
}

// segmentKey returns the key a sync tag opens, if t is one.
func segmentKey(t *tag) (string, bool) {
	if t.closing || !syncTags[t.name] {
		return "", false
	}
	id := t.first(idAttrs...)
	if t.name == "p" && id == "" {
		return "", false
	}
	return ir.MakeSegmentKey(t.name, id, t.get(editionAttr)), true
}

// adjustDepth applies a start or close tag to a nesting counter. The counter
// never drops below zero.
func adjustDepth(depth int, t *tag) int {
	switch {
	case t.closing:
		if depth > 0 {
			depth--
		}
	case !t.selfClosing:
		depth++
	}
	return depth
}

// targetID extracts the first id referenced by a target="#id ..." value.
func targetID(target string) string {
	fields := strings.Fields(target)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[0], "#")
}

func hasToken(value, token string) bool {
	for _, f := range strings.Fields(value) {
		if f == token {
			return true
		}
	}
	return false
}
