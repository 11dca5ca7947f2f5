package encoding

import "testing"

func TestDecodeEntity(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   rune
		wantN  int
		wantOK bool
	}{
		{"amp", "&amp;x", '&', 5, true},
		{"lt", "&lt;", '<', 4, true},
		{"gt", "&gt;", '>', 4, true},
		{"quot", "&quot;", '"', 6, true},
		{"apos", "&apos;", '\'', 6, true},
		{"decimal", "&#65;", 'A', 5, true},
		{"hex lower", "&#x4e00;", '一', 8, true},
		{"hex upper X", "&#X4E00;", '一', 8, true},
		{"astral", "&#x20000;", '\U00020000', 9, true},
		{"astral decimal", "&#131072;", '\U00020000', 9, true},
		{"unknown name", "&nbsp;", 0, 0, false},
		{"no semicolon", "&amp", 0, 0, false},
		{"empty body", "&;", 0, 0, false},
		{"bare hash", "&#;", 0, 0, false},
		{"bare hex", "&#x;", 0, 0, false},
		{"surrogate", "&#xD800;", 0, 0, false},
		{"too large", "&#x110000;", 0, 0, false},
		{"zero", "&#0;", 0, 0, false},
		{"signed", "&#+65;", 0, 0, false},
		{"bad hex digit", "&#x4g;", 0, 0, false},
		{"semicolon too far", "&" + string(make([]byte, 40)) + ";", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, n, ok := DecodeEntity(tt.input, 0)
			if ok != tt.wantOK {
				t.Fatalf("DecodeEntity(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if r != tt.want || n != tt.wantN {
				t.Errorf("DecodeEntity(%q) = (%q, %d), want (%q, %d)", tt.input, r, n, tt.want, tt.wantN)
			}
		})
	}
}

func TestDecodeEntityOffset(t *testing.T) {
	s := "a &lt; b"
	r, n, ok := DecodeEntity(s, 2)
	if !ok || r != '<' || n != 4 {
		t.Errorf("DecodeEntity at 2 = (%q, %d, %v)", r, n, ok)
	}
	if _, _, ok := DecodeEntity(s, 0); ok {
		t.Error("DecodeEntity at non-'&' should fail")
	}
	if _, _, ok := DecodeEntity(s, 99); ok {
		t.Error("DecodeEntity out of range should fail")
	}
}

func TestDecodeEntities(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"plain", "plain"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"&lt;p&gt;", "<p>"},
		{"&#20315;&#x8AAA;", "佛說"},
		{"a & b", "a & b"},
		{"&bogus; &amp;", "&bogus; &"},
		{"trailing &", "trailing &"},
	}
	for _, tt := range tests {
		if got := DecodeEntities(tt.input); got != tt.want {
			t.Errorf("DecodeEntities(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
