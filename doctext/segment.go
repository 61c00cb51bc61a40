package doctext

import (
	"strings"
	"unicode"
)

// Span is a half-open [Start, End) byte range in a canonical buffer.
type Span struct {
	Start int
	End   int
}

// Segment is a slice of canonical text scheduled for synthesis as one
// utterance. Heading segments get a pause after them.
type Segment struct {
	Span
	Text      string
	IsHeading bool
}

// SplitSentences splits s into sentence spans. A sentence ends at '.', '!'
// or '?' followed by whitespace or end of text, or at a blank line, so an
// unpunctuated heading stays its own span. Trailing unterminated text forms
// a final sentence.
func SplitSentences(s string) []Span {
	var spans []Span
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' && i+1 < len(s) && s[i+1] == '\n' {
			if strings.TrimSpace(s[start:i]) != "" {
				spans = append(spans, Span{Start: start, End: i})
			}
			start = i + 1
			continue
		}
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(s) && !isSpaceByte(s[i+1]) {
			continue
		}
		if strings.TrimSpace(s[start:i+1]) != "" {
			spans = append(spans, Span{Start: start, End: i + 1})
		}
		start = i + 1
	}
	if start < len(s) && strings.TrimSpace(s[start:]) != "" {
		spans = append(spans, Span{Start: start, End: len(s)})
	}
	return spans
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Heading-detector knobs. A segment scores as a heading when it is short,
// mostly capitalized, carries no terminal punctuation and contains none of
// the common verbs below.
const (
	headingMaxWords = 10
	headingCapRatio = 0.6
)

var headingVerbs = map[string]struct{}{
	"is": {}, "are": {}, "was": {}, "were": {}, "has": {}, "have": {},
	"had": {}, "will": {}, "would": {}, "can": {}, "could": {}, "shall": {},
	"should": {}, "does": {}, "did": {}, "said": {},
}

// IsHeading reports whether the text segment reads like a heading.
func IsHeading(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, ",") ||
		strings.HasSuffix(trimmed, ";") {
		return false
	}
	words := strings.Fields(trimmed)
	if len(words) == 0 || len(words) > headingMaxWords {
		return false
	}
	capitalized := 0
	for _, w := range words {
		if _, verb := headingVerbs[strings.ToLower(w)]; verb {
			return false
		}
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			capitalized++
		}
	}
	return float64(capitalized)/float64(len(words)) >= headingCapRatio
}

// SegmentForSpeech cuts the buffer region [from, len(buffer)) into
// utterance segments at sentence boundaries, classifying heading-like
// sentences so the orchestrator can insert pauses after them.
func SegmentForSpeech(buffer string, from int) []Segment {
	if from < 0 {
		from = 0
	}
	if from >= len(buffer) {
		return nil
	}
	var segs []Segment
	for _, sp := range SplitSentences(buffer[from:]) {
		abs := Span{Start: sp.Start + from, End: sp.End + from}
		text := buffer[abs.Start:abs.End]
		segs = append(segs, Segment{
			Span:      abs,
			Text:      text,
			IsHeading: IsHeading(text),
		})
	}
	return segs
}
