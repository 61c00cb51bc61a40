package doctext

import "testing"

func TestSplitSentences(t *testing.T) {
	s := "First one. Second one! Third?"
	spans := SplitSentences(s)
	want := []string{"First one.", " Second one!", " Third?"}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans, want %d", len(spans), len(want))
	}
	for i, sp := range spans {
		if s[sp.Start:sp.End] != want[i] {
			t.Errorf("span %d = %q, want %q", i, s[sp.Start:sp.End], want[i])
		}
	}
}

func TestSplitSentencesNoFalsePositives(t *testing.T) {
	s := "Version 1.2 shipped. Done"
	spans := SplitSentences(s)
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2: %v", len(spans), spans)
	}
	if got := s[spans[0].Start:spans[0].End]; got != "Version 1.2 shipped." {
		t.Fatalf("first span = %q", got)
	}
}

func TestIsHeading(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Chapter One", true},
		{"TERMS AND CONDITIONS", true},
		{"3 Payment Schedule", true},
		{"the quick brown fox jumped over the lazy dog", false},
		{"This is a sentence.", false},
		{"The deal was closed", false}, // contains a verb
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHeading(tt.text); got != tt.want {
			t.Errorf("IsHeading(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSegmentForSpeech(t *testing.T) {
	buf := "Chapter One\n\nIt begins here. It continues."
	segs := SegmentForSpeech(buf, 0)
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	if !segs[0].IsHeading {
		t.Errorf("first segment %q should classify as heading", segs[0].Text)
	}
	if segs[1].IsHeading {
		t.Errorf("sentence %q should not classify as heading", segs[1].Text)
	}
	if segs[1].Start >= segs[1].End || buf[segs[1].Start:segs[1].End] != segs[1].Text {
		t.Errorf("segment span does not round-trip: %+v", segs[1])
	}
}

func TestSegmentForSpeechFromOffset(t *testing.T) {
	buf := "Skip this. Start here."
	segs := SegmentForSpeech(buf, 11)
	if len(segs) != 1 || segs[0].Text != "Start here." {
		t.Fatalf("segments = %+v", segs)
	}
	if segs[0].Start != 11 {
		t.Fatalf("span start = %d, want 11", segs[0].Start)
	}
}

func TestDetectExhibits(t *testing.T) {
	buf := "As shown in Exhibit A, and later in ANEXO 3, the parties agree. See appendix IV."
	spans := DetectExhibits(buf)
	labels := make([]string, len(spans))
	for i, sp := range spans {
		labels[i] = sp.Label
	}
	want := []string{"Exhibit A", "ANEXO 3", "appendix IV"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}
}
