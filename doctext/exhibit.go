package doctext

import "regexp"

// ExhibitSpan tags a region of the canonical buffer that introduces a
// document exhibit.
type ExhibitSpan struct {
	Span
	Label string // e.g. "Exhibit A", "ANEXO 3"
}

// Exhibit markers in English and Spanish legal documents. Labels are a
// letter sequence, a number, or a roman numeral.
var exhibitPattern = regexp.MustCompile(
	`(?i)\b(exhibit|anexo|appendix|schedule)\s+([A-Z]{1,3}|\d{1,3}|[IVXLC]{1,7})\b`)

// DetectExhibits scans the canonical buffer and returns exhibit spans in
// buffer order.
func DetectExhibits(buffer string) []ExhibitSpan {
	var spans []ExhibitSpan
	for _, m := range exhibitPattern.FindAllStringIndex(buffer, -1) {
		spans = append(spans, ExhibitSpan{
			Span:  Span{Start: m[0], End: m[1]},
			Label: buffer[m[0]:m[1]],
		})
	}
	return spans
}
