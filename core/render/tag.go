package render

import (
	"strings"

	"github.com/FocuswithJustin/TeiSync/core/encoding"
	"github.com/FocuswithJustin/TeiSync/core/ir"
)

// attr is one parsed attribute.
type attr struct {
	name  string
	value string
}

// tag is one parsed markup tag.
type tag struct {
	name        string
	closing     bool
	selfClosing bool
	attrs       []attr
}

// get returns the value of the named attribute, or "".
func (t *tag) get(name string) string {
	for _, a := range t.attrs {
		if a.name == name {
			return a.value
		}
	}
	return ""
}

// first returns the first non-empty value among the named attributes.
func (t *tag) first(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(t.get(n)); v != "" {
			return v
		}
	}
	return ""
}

// parseTag parses the text between '<' and '>'. ok is false when the content
// does not have the minimal shape of a tag: comments, processing
// instructions, doctypes, names that do not start with a letter or a colon,
// and content holding a stray '<' all fail.
func parseTag(inner string) (t tag, ok bool) {
	if inner == "" || strings.IndexByte(inner, '<') >= 0 {
		return t, false
	}
	if inner[0] == '/' {
		t.closing = true
		inner = inner[1:]
	}
	trimmed := strings.TrimRight(inner, " \t\r\n")
	if !t.closing && strings.HasSuffix(trimmed, "/") {
		t.selfClosing = true
		trimmed = trimmed[:len(trimmed)-1]
	}

	end := strings.IndexAny(trimmed, " \t\r\n/")
	if end < 0 {
		end = len(trimmed)
	}
	t.name = trimmed[:end]
	if !ir.IsTagName(t.name) {
		return tag{}, false
	}
	if !t.closing {
		t.attrs = parseAttrs(trimmed[end:])
	}
	return t, true
}

// parseAttrs reads name="value", name='value', name=value and bare names.
// Values are entity-decoded. Malformed input never fails; parsing simply
// stops producing attributes.
func parseAttrs(s string) []attr {
	var attrs []attr
	i := 0
	for i < len(s) {
		for i < len(s) && isAttrSpace(s[i]) {
			i++
		}
		start := i
		for i < len(s) && !isAttrSpace(s[i]) && s[i] != '=' {
			i++
		}
		if start == i {
			i++
			continue
		}
		name := s[start:i]
		for i < len(s) && isAttrSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			attrs = append(attrs, attr{name: name})
			continue
		}
		i++
		for i < len(s) && isAttrSpace(s[i]) {
			i++
		}
		var value string
		if i < len(s) && (s[i] == '"' || s[i] == '\'') {
			q := s[i]
			i++
			vstart := i
			for i < len(s) && s[i] != q {
				i++
			}
			value = s[vstart:i]
			if i < len(s) {
				i++
			}
		} else {
			vstart := i
			for i < len(s) && !isAttrSpace(s[i]) {
				i++
			}
			value = s[vstart:i]
		}
		attrs = append(attrs, attr{name: name, value: encoding.DecodeEntities(value)})
	}
	return attrs
}

func isAttrSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}
