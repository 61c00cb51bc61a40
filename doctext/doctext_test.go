package doctext

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello world"},
		{"  spaced\t\nout  ", "spaced out"},
		{"MiXeD", "mixed"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWordAt(t *testing.T) {
	s := "the cat sat"
	tests := []struct {
		off        int
		word       string
		start, end int
		ok         bool
	}{
		{0, "the", 0, 3, true},
		{1, "the", 0, 3, true},
		{3, "cat", 4, 7, true}, // whitespace advances to the next word
		{4, "cat", 4, 7, true},
		{8, "sat", 8, 11, true},
		{-1, "", 0, 0, false},
		{11, "", 0, 0, false},
	}
	for _, tt := range tests {
		word, start, end, ok := WordAt(s, tt.off)
		if word != tt.word || start != tt.start || end != tt.end || ok != tt.ok {
			t.Errorf("WordAt(%d) = (%q, %d, %d, %v), want (%q, %d, %d, %v)",
				tt.off, word, start, end, ok, tt.word, tt.start, tt.end, tt.ok)
		}
	}
}

func TestWordAtUnicode(t *testing.T) {
	s := "caña brava"
	word, start, end, ok := WordAt(s, 2)
	if !ok || word != "caña" {
		t.Fatalf("WordAt(2) = %q ok=%v, want caña", word, ok)
	}
	if s[start:end] != "caña" {
		t.Fatalf("range [%d,%d) = %q", start, end, s[start:end])
	}
}

func TestCharsEquivalent(t *testing.T) {
	tests := []struct {
		a, b byte
		want bool
	}{
		{'a', 'a', true},
		{'a', 'b', false},
		{' ', '\n', true},
		{'\t', ' ', true},
		{' ', 'x', false},
	}
	for _, tt := range tests {
		if got := CharsEquivalent(tt.a, tt.b); got != tt.want {
			t.Errorf("CharsEquivalent(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
