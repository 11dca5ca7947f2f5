package ir

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// KeySeparator joins the tag name and attribute values of a segment key.
const KeySeparator = "|"

// SegmentKey is the parsed form of a segment key.
type SegmentKey struct {
	// Tag is the element name that opened the segment (e.g., "lb", "cb:juan").
	Tag string `json:"tag"`

	// Values are the selected attribute values, identifier first.
	Values []string `json:"values,omitempty"`
}

// MakeSegmentKey builds a key from a tag name and attribute values.
// Values are trimmed and empty values are omitted entirely.
func MakeSegmentKey(tag string, values ...string) string {
	var sb strings.Builder
	sb.WriteString(tag)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		sb.WriteString(KeySeparator)
		sb.WriteString(v)
	}
	return sb.String()
}

// String returns the canonical key string.
func (k SegmentKey) String() string {
	return MakeSegmentKey(k.Tag, k.Values...)
}

// keyGrammar is the participle grammar for segment keys.
// Examples: "lb", "lb|0001a01|T", "p|p5", "cb:juan|1"
//
//nolint:govet // participle grammar tags are not standard struct tags
type keyGrammar struct {
	Tag    string   `parser:"@Word"`
	Values []string `parser:"( \"|\" @Word )*"`
}

// keyLexer splits a key on the separator; everything else is a word.
var keyLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Sep", Pattern: `\|`},
	{Name: "Word", Pattern: `[^|]+`},
})

var keyParser = participle.MustBuild[keyGrammar](
	participle.Lexer(keyLexer),
)

// ParseSegmentKey parses a user-supplied segment key.
// The tag must start with a letter or a colon, and no value may be empty.
func ParseSegmentKey(s string) (SegmentKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SegmentKey{}, fmt.Errorf("empty segment key")
	}

	parsed, err := keyParser.ParseString("", s)
	if err != nil {
		return SegmentKey{}, fmt.Errorf("invalid segment key %q: %w", s, err)
	}

	tag := strings.TrimSpace(parsed.Tag)
	if !IsTagName(tag) {
		return SegmentKey{}, fmt.Errorf("invalid segment key %q: bad tag name %q", s, tag)
	}

	key := SegmentKey{Tag: tag}
	for _, v := range parsed.Values {
		v = strings.TrimSpace(v)
		if v == "" {
			return SegmentKey{}, fmt.Errorf("invalid segment key %q: empty value", s)
		}
		key.Values = append(key.Values, v)
	}
	return key, nil
}

// IsTagName reports whether s has the minimal shape of a markup element name:
// it starts with a letter or a colon and holds no whitespace or delimiters.
func IsTagName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if r != ':' && !unicode.IsLetter(r) {
				return false
			}
			continue
		}
		switch r {
		case ' ', '\t', '\n', '\r', '<', '>', '/', '=', '"', '\'', '|':
			return false
		}
	}
	return true
}
