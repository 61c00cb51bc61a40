// Package doctext builds the canonical, speech-readable text of a paged
// document from positioned text fragments, suppressing repeated
// header/footer boilerplate across pages.
package doctext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fragment is one discrete piece of renderable text on one page, roughly a
// word. Coordinates are viewport-relative with the origin at the top-left
// of the page.
type Fragment struct {
	Text     string
	Page     int // 1-based
	X        float64
	Y        float64
	Width    float64
	Height   float64
	FontSize float64

	// CanonicalOffset is the byte index of this fragment's text in the
	// canonical buffer, or -1 when the fragment was filtered out as
	// boilerplate and is display-only.
	CanonicalOffset int

	// ColumnIndex is the detected column the fragment belongs to, or -1
	// when column layout has not been derived.
	ColumnIndex int
}

// PageText is the raw per-page fragment list handed over by a text source.
type PageText struct {
	Page      int // 1-based
	Width     float64
	Height    float64
	Fragments []Fragment
}

// NormalizeText lowercases and collapses all interior whitespace runs to a
// single space. Two fragments with equal normalized text are treated as the
// same word for repetition analysis and offset reconciliation.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-'
}

// WordAt locates the word containing the byte offset off in s. It returns
// the word text and its [start, end) byte range. When off points at
// whitespace or punctuation the next word is used; ok is false when no word
// exists at or after off.
func WordAt(s string, off int) (word string, start, end int, ok bool) {
	if off < 0 || off >= len(s) {
		return "", 0, 0, false
	}
	// Scan forward to a word rune.
	i := off
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isWordRune(r) {
			break
		}
		i += size
	}
	if i >= len(s) {
		return "", 0, 0, false
	}
	// Scan back to the start of the word.
	start = i
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if !isWordRune(r) {
			break
		}
		start -= size
	}
	end = i
	for end < len(s) {
		r, size := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(r) {
			break
		}
		end += size
	}
	return s[start:end], start, end, true
}

// CharsEquivalent reports whether two bytes match for the purpose of
// validating a resolved fragment against the canonical buffer. Any
// whitespace byte is equivalent to any other whitespace byte.
func CharsEquivalent(a, b byte) bool {
	aw := a == ' ' || a == '\t' || a == '\n' || a == '\r'
	bw := b == ' ' || b == '\t' || b == '\n' || b == '\r'
	if aw || bw {
		return aw && bw
	}
	return a == b
}
