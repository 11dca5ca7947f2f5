package render

import (
	"reflect"
	"testing"
)

func TestTextBuffer_AppendText(t *testing.T) {
	b := newTextBuffer(true)
	b.appendText("  a  b  ", 0)

	if got := b.String(); got != "a b " {
		t.Errorf("String() = %q, want %q", got, "a b ")
	}
	if want := []int{2, 3, 5, 6}; !reflect.DeepEqual(b.source, want) {
		t.Errorf("source = %v, want %v", b.source, want)
	}
}

func TestTextBuffer_EntityOffsets(t *testing.T) {
	b := newTextBuffer(true)
	b.appendText("x&amp;y", 10)

	if got := b.String(); got != "x&y" {
		t.Errorf("String() = %q", got)
	}
	if want := []int{10, 11, 16}; !reflect.DeepEqual(b.source, want) {
		t.Errorf("source = %v, want %v", b.source, want)
	}
}

func TestTextBuffer_BoundarySpace(t *testing.T) {
	b := newTextBuffer(true)
	b.appendText("one", 0)
	b.appendText("two", 10)

	if got := b.String(); got != "one two" {
		t.Errorf("String() = %q", got)
	}
	// The inserted space points at the chunk that caused it.
	if b.source[3] != 10 {
		t.Errorf("boundary space source = %d, want 10", b.source[3])
	}
}

func TestTextBuffer_NoSourceTracking(t *testing.T) {
	b := newTextBuffer(false)
	b.appendText("note text", 0)
	if len(b.source) != 0 {
		t.Errorf("source = %v, want empty", b.source)
	}
	b.reset()
	if b.len() != 0 || !b.lastNewline {
		t.Errorf("reset left len=%d lastNewline=%v", b.len(), b.lastNewline)
	}
}

func TestTextBuffer_LineBreak(t *testing.T) {
	b := newTextBuffer(true)
	b.lineBreak(0)
	if b.len() != 0 {
		t.Fatalf("line break at start rendered %q", b.String())
	}

	b.appendText("a \t", 0)
	b.lineBreak(5)
	b.lineBreak(6)
	if got := b.String(); got != "a\n" {
		t.Errorf("String() = %q, want %q", got, "a\n")
	}
	if len(b.source) != b.len() {
		t.Errorf("source length %d != text length %d", len(b.source), b.len())
	}
}

func TestTextBuffer_ParagraphBreak(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *textBuffer)
		want  string
	}{
		{"empty", func(b *textBuffer) {}, ""},
		{"after text", func(b *textBuffer) { b.appendText("a", 0) }, "a\n\n"},
		{"trims blanks", func(b *textBuffer) { b.appendText("a   ", 0) }, "a\n\n"},
		{"after newline", func(b *textBuffer) {
			b.appendText("a", 0)
			b.lineBreak(1)
		}, "a\n\n"},
		{"twice", func(b *textBuffer) {
			b.appendText("a", 0)
			b.paragraphBreak(1)
		}, "a\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTextBuffer(true)
			tt.setup(b)
			b.paragraphBreak(9)
			if got := b.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextBuffer_SoftSeparator(t *testing.T) {
	b := newTextBuffer(false)
	b.softSeparator(false, 0)
	if b.len() != 0 {
		t.Errorf("separator on empty buffer rendered %q", b.String())
	}
	b.appendText("a", 0)
	b.softSeparator(false, 1)
	b.softSeparator(false, 2)
	b.appendText("b", 3)
	b.softSeparator(true, 4)
	b.appendText("c", 5)
	if got := b.String(); got != "a b\nc" {
		t.Errorf("String() = %q, want %q", got, "a b\nc")
	}
}
