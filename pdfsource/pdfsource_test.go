package pdfsource

import (
	"testing"

	"github.com/ledongthuc/pdf"
)

func char(s string, x, y, w, fs float64) pdf.Text {
	return pdf.Text{S: s, X: x, Y: y, W: w, FontSize: fs}
}

func TestMergeWordsJoinsCharacterRuns(t *testing.T) {
	// "Hi there" emitted as per-character runs on one baseline.
	texts := []pdf.Text{
		char("H", 10, 700, 7, 12),
		char("i", 17, 700, 3, 12),
		char("t", 28, 700, 4, 12), // 8pt gap, a word break at 12pt font
		char("h", 32, 700, 6, 12),
		char("e", 38, 700, 5, 12),
		char("r", 43, 700, 4, 12),
		char("e", 47, 700, 5, 12),
	}
	frags := mergeWords(texts, 1, 792)
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2: %+v", len(frags), frags)
	}
	if frags[0].Text != "Hi" || frags[1].Text != "there" {
		t.Errorf("texts = %q, %q", frags[0].Text, frags[1].Text)
	}
	if frags[0].X != 10 || frags[0].Width != 10 {
		t.Errorf("first word geometry = x %v w %v, want x 10 w 10", frags[0].X, frags[0].Width)
	}
	// Baseline Y 700 at 12pt on a 792pt page flips to a top-left origin.
	if got := frags[0].Y; got != 792-700-12 {
		t.Errorf("Y = %v, want %v", got, 792-700-12)
	}
	if frags[0].Height != 12*1.2 {
		t.Errorf("Height = %v, want %v", frags[0].Height, 12*1.2)
	}
	if frags[0].CanonicalOffset != -1 || frags[0].ColumnIndex != -1 {
		t.Errorf("offsets = %d/%d, want unassigned", frags[0].CanonicalOffset, frags[0].ColumnIndex)
	}
}

func TestMergeWordsRowOrdering(t *testing.T) {
	// Characters arrive out of visual order; rows sort top-down (higher
	// PDF Y first), words left-to-right.
	texts := []pdf.Text{
		char("low", 10, 600, 20, 12),
		char("right", 60, 700, 30, 12),
		char("left", 10, 700, 22, 12),
	}
	frags := mergeWords(texts, 1, 792)
	if len(frags) != 3 {
		t.Fatalf("got %d fragments, want 3", len(frags))
	}
	want := []string{"left", "right", "low"}
	for i, w := range want {
		if frags[i].Text != w {
			t.Errorf("fragment %d = %q, want %q", i, frags[i].Text, w)
		}
	}
}

func TestMergeWordsWhitespaceRunSplits(t *testing.T) {
	texts := []pdf.Text{
		char("a", 10, 700, 5, 12),
		char(" ", 15, 700, 3, 12),
		char("b", 18, 700, 5, 12),
	}
	frags := mergeWords(texts, 1, 792)
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2: %+v", len(frags), frags)
	}
	if frags[0].Text != "a" || frags[1].Text != "b" {
		t.Errorf("texts = %q, %q", frags[0].Text, frags[1].Text)
	}
}

func TestMergeWordsZeroFontFallback(t *testing.T) {
	frags := mergeWords([]pdf.Text{char("x", 10, 700, 5, 0)}, 1, 792)
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	if frags[0].FontSize != 10 {
		t.Errorf("FontSize = %v, want the 10pt fallback", frags[0].FontSize)
	}
}

func TestMergeWordsEmpty(t *testing.T) {
	if frags := mergeWords(nil, 1, 792); frags != nil {
		t.Errorf("mergeWords(nil) = %+v, want nil", frags)
	}
}
