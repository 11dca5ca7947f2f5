package render

import (
	"unicode/utf8"

	"github.com/FocuswithJustin/TeiSync/core/encoding"
)

// textBuffer accumulates normalized rendered text. The main buffer also
// records, for every rune, the markup byte offset that produced it.
type textBuffer struct {
	runes       []rune
	source      []int
	trackSource bool

	// lastNewline is true when the last rendered character was a line
	// break, or nothing has been rendered yet.
	lastNewline bool
}

func newTextBuffer(trackSource bool) *textBuffer {
	return &textBuffer{trackSource: trackSource, lastNewline: true}
}

func (b *textBuffer) len() int {
	return len(b.runes)
}

func (b *textBuffer) reset() {
	b.runes = b.runes[:0]
	b.source = b.source[:0]
	b.lastNewline = true
}

func (b *textBuffer) String() string {
	return string(b.runes)
}

func (b *textBuffer) push(r rune, src int) {
	b.runes = append(b.runes, r)
	if b.trackSource {
		b.source = append(b.source, src)
	}
	b.lastNewline = r == '\n'
}

func (b *textBuffer) pop() {
	b.runes = b.runes[:len(b.runes)-1]
	if b.trackSource {
		b.source = b.source[:len(b.source)-1]
	}
}

// tailIsSpace reports whether the buffer is empty or ends in whitespace.
func (b *textBuffer) tailIsSpace() bool {
	if len(b.runes) == 0 {
		return true
	}
	return isSpace(b.runes[len(b.runes)-1])
}

func (b *textBuffer) tail() rune {
	if len(b.runes) == 0 {
		return 0
	}
	return b.runes[len(b.runes)-1]
}

// appendText normalizes one text run and appends it. base is the markup
// offset of chunk[0].
//
// Whitespace runs collapse to one space, CR is dropped and character
// references are decoded. When the chunk starts with a non-space and the
// buffer ends with a non-space, one space separates them unless either side
// is CJK text.
func (b *textBuffer) appendText(chunk string, base int) {
	head := true
	pending := false
	pendingAt := 0

	emit := func(r rune, at int) {
		if r == '\r' {
			return
		}
		if isSpace(r) {
			if !pending {
				pending = true
				pendingAt = at
			}
			head = false
			return
		}
		switch {
		case pending:
			if !b.tailIsSpace() {
				b.push(' ', pendingAt)
			}
			pending = false
		case head:
			if !b.tailIsSpace() && !IsCJK(b.tail()) && !IsCJK(r) {
				b.push(' ', at)
			}
		}
		head = false
		b.push(r, at)
	}

	for i := 0; i < len(chunk); {
		c := chunk[i]
		if c == '&' {
			if r, n, ok := encoding.DecodeEntity(chunk, i); ok {
				emit(r, base+i)
				i += n
				continue
			}
			emit('&', base+i)
			i++
			continue
		}
		if c < 0x80 {
			emit(rune(c), base+i)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(chunk[i:])
		emit(r, base+i)
		i += size
	}

	if pending && !b.tailIsSpace() {
		b.push(' ', pendingAt)
	}
}

// trimTrailingBlanks removes trailing spaces and tabs.
func (b *textBuffer) trimTrailingBlanks() {
	for len(b.runes) > 0 {
		r := b.runes[len(b.runes)-1]
		if r != ' ' && r != '\t' {
			break
		}
		b.pop()
	}
	if len(b.runes) == 0 || b.runes[len(b.runes)-1] == '\n' {
		b.lastNewline = true
	}
}

// lineBreak renders a single newline unless one was just rendered.
func (b *textBuffer) lineBreak(src int) {
	b.trimTrailingBlanks()
	if b.lastNewline {
		return
	}
	b.push('\n', src)
}

// paragraphBreak tops the buffer up to two trailing newlines. Nothing is
// rendered at the start of the buffer.
func (b *textBuffer) paragraphBreak(src int) {
	b.trimTrailingBlanks()
	if len(b.runes) == 0 {
		return
	}
	trailing := 0
	for i := len(b.runes) - 1; i >= 0 && trailing < 2 && b.runes[i] == '\n'; i-- {
		trailing++
	}
	for ; trailing < 2; trailing++ {
		b.push('\n', src)
	}
}

// softSeparator puts a newline or a space into a note buffer so captured
// words do not fuse across break-like tags.
func (b *textBuffer) softSeparator(newline bool, src int) {
	if newline {
		b.lineBreak(src)
		return
	}
	if !b.tailIsSpace() {
		b.push(' ', src)
	}
}

// isSpace reports ASCII whitespace.
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\v', '\r':
		return true
	}
	return false
}
