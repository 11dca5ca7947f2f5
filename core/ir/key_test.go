package ir

import (
	"reflect"
	"testing"
)

func TestMakeSegmentKey(t *testing.T) {
	tests := []struct {
		name   string
		tag    string
		values []string
		want   string
	}{
		{"bare tag", "lb", nil, "lb"},
		{"id only", "p", []string{"p1"}, "p|p1"},
		{"id and edition", "lb", []string{"0001a01", "T"}, "lb|0001a01|T"},
		{"empty values dropped", "pb", []string{"", "T"}, "pb|T"},
		{"whitespace trimmed", "lb", []string{" 2 ", "\t"}, "lb|2"},
		{"prefixed tag", "cb:juan", []string{"1"}, "cb:juan|1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MakeSegmentKey(tt.tag, tt.values...); got != tt.want {
				t.Errorf("MakeSegmentKey(%q, %v) = %q, want %q", tt.tag, tt.values, got, tt.want)
			}
		})
	}
}

func TestParseSegmentKey(t *testing.T) {
	tests := []struct {
		input   string
		want    SegmentKey
		wantErr bool
	}{
		{"lb", SegmentKey{Tag: "lb"}, false},
		{"p|p5", SegmentKey{Tag: "p", Values: []string{"p5"}}, false},
		{"lb|0001a01|T", SegmentKey{Tag: "lb", Values: []string{"0001a01", "T"}}, false},
		{" cb:juan | 3 ", SegmentKey{Tag: "cb:juan", Values: []string{"3"}}, false},
		{"", SegmentKey{}, true},
		{"|p5", SegmentKey{}, true},
		{"lb||T", SegmentKey{}, true},
		{"lb| |T", SegmentKey{}, true},
		{"1lb|2", SegmentKey{}, true},
		{"lb|", SegmentKey{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSegmentKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSegmentKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSegmentKey(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSegmentKeyRoundTrip(t *testing.T) {
	for _, s := range []string{"lb", "p|p1", "lb|0001a01|T", "milestone|juan.1"} {
		k, err := ParseSegmentKey(s)
		if err != nil {
			t.Fatalf("ParseSegmentKey(%q): %v", s, err)
		}
		if k.String() != s {
			t.Errorf("String() = %q, want %q", k.String(), s)
		}
	}
}

func TestIsTagName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"lb", true},
		{"cb:juan", true},
		{":x", true},
		{"teiHeader", true},
		{"", false},
		{"1p", false},
		{"!--", false},
		{"?xml", false},
		{"a b", false},
	}
	for _, tt := range tests {
		if got := IsTagName(tt.in); got != tt.want {
			t.Errorf("IsTagName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
