package render

import (
	"unicode"

	"golang.org/x/text/language"
)

var (
	// ScriptCJK is reported for text holding Chinese or Japanese characters.
	ScriptCJK = language.MustParseScript("Hani")
	// ScriptLatin is reported for everything else.
	ScriptLatin = language.MustParseScript("Latn")
)

// cjkPunctuation covers CJK Symbols and Punctuation plus the fullwidth forms
// used around Chinese text (、。「」（）etc.).
var cjkPunctuation = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303f, Stride: 1},
		{Lo: 0xff00, Hi: 0xffef, Stride: 1},
	},
}

// IsCJK reports whether r is Han, Hiragana, Katakana, Bopomofo or CJK
// punctuation. Word boundaries are not marked with spaces in such text, so
// the renderer never inserts a separator next to it.
func IsCJK(r rune) bool {
	if r < 0x02ea {
		return false
	}
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Bopomofo, cjkPunctuation)
}

// DetectScript classifies text as CJK if any rune is CJK, else Latin.
func DetectScript(text string) language.Script {
	for _, r := range text {
		if IsCJK(r) {
			return ScriptCJK
		}
	}
	return ScriptLatin
}
