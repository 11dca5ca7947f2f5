// Package encoding provides character-reference decoding for TEI markup.
package encoding

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxEntityLen bounds the search for the terminating ';' of a reference.
const maxEntityLen = 32

// namedEntities are the predefined XML entities.
var namedEntities = map[string]rune{
	"amp":  '&',
	"lt":   '<',
	"gt":   '>',
	"quot": '"',
	"apos": '\'',
}

// DecodeEntity decodes the character reference starting at s[i], which must
// be '&'. It returns the decoded rune and the number of bytes consumed.
// ok is false for unknown names, malformed numbers and code points that are
// not valid scalar values; callers then emit a literal '&' and continue
// right after it.
func DecodeEntity(s string, i int) (r rune, n int, ok bool) {
	if i >= len(s) || s[i] != '&' {
		return 0, 0, false
	}
	limit := i + 1 + maxEntityLen
	if limit > len(s) {
		limit = len(s)
	}
	semi := strings.IndexByte(s[i+1:limit], ';')
	if semi <= 0 {
		return 0, 0, false
	}
	body := s[i+1 : i+1+semi]
	n = semi + 2

	if body[0] != '#' {
		r, ok = namedEntities[body]
		return r, n, ok
	}

	var v uint64
	var err error
	switch {
	case len(body) > 2 && (body[1] == 'x' || body[1] == 'X'):
		v, err = strconv.ParseUint(body[2:], 16, 32)
	case len(body) > 1:
		v, err = strconv.ParseUint(body[1:], 10, 32)
	default:
		return 0, 0, false
	}
	if err != nil || !isDigits(body) {
		return 0, 0, false
	}
	r = rune(v)
	if r == 0 || !utf8.ValidRune(r) {
		return 0, 0, false
	}
	return r, n, true
}

// DecodeEntities decodes every character reference in s. Unrecognized
// references are kept literally.
func DecodeEntities(s string) string {
	amp := strings.IndexByte(s, '&')
	if amp < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	sb.WriteString(s[:amp])
	for i := amp; i < len(s); {
		if s[i] != '&' {
			next := strings.IndexByte(s[i:], '&')
			if next < 0 {
				sb.WriteString(s[i:])
				break
			}
			sb.WriteString(s[i : i+next])
			i += next
			continue
		}
		if r, n, ok := DecodeEntity(s, i); ok {
			sb.WriteRune(r)
			i += n
			continue
		}
		sb.WriteByte('&')
		i++
	}
	return sb.String()
}

// isDigits rejects signs and spaces that strconv would otherwise tolerate
// or that make the reference ambiguous.
func isDigits(body string) bool {
	digits := body[1:]
	hex := false
	if len(digits) > 0 && (digits[0] == 'x' || digits[0] == 'X') {
		digits = digits[1:]
		hex = true
	}
	for _, c := range digits {
		switch {
		case c >= '0' && c <= '9':
		case hex && ((c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')):
		default:
			return false
		}
	}
	return len(digits) > 0
}
