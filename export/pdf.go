package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/voxread/readkit/highlight"
)

type rgb struct{ r, g, b int }

var colorRGB = map[highlight.Color]rgb{
	highlight.ColorYellow: {245, 213, 71},
	highlight.ColorGreen:  {92, 184, 92},
	highlight.ColorBlue:   {91, 155, 213},
}

const highlightAlpha = 0.35

// WritePDF produces an annotation overlay PDF: one page per source page,
// with translucent rectangles where highlights sit and a trailing digest of
// the highlighted text. Stored rects are in creation-layer pixels and are
// mapped onto the page size in points.
func WritePDF(w io.Writer, doc Document, items []Item) error {
	pw, ph := doc.PageWidth, doc.PageHeight
	if pw <= 0 || ph <= 0 {
		pw, ph = 612, 792
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pw, Ht: ph},
	})
	pdf.SetTitle(doc.Title, true)
	if doc.Author != "" {
		pdf.SetAuthor(doc.Author, true)
	}
	pdf.SetFont("Helvetica", "", 11)

	byPage := make(map[int][]Item)
	for _, it := range items {
		byPage[it.Highlight.Page] = append(byPage[it.Highlight.Page], it)
	}

	pages := doc.PageCount
	if pages < 1 {
		pages = maxPage(items)
	}
	for p := 1; p <= pages; p++ {
		pdf.AddPage()
		for _, it := range byPage[p] {
			drawHighlight(pdf, it.Highlight, pw, ph)
		}
	}

	writeDigestPage(pdf, doc, items)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write annotated pdf: %w", err)
	}
	return nil
}

func drawHighlight(pdf *gofpdf.Fpdf, h highlight.Highlight, pw, ph float64) {
	if h.IsSnip || h.CreationLayerWidth <= 0 || h.CreationLayerHeight <= 0 {
		return
	}
	c, ok := colorRGB[h.Color]
	if !ok {
		c = colorRGB[highlight.ColorYellow]
	}
	sx := pw / h.CreationLayerWidth
	sy := ph / h.CreationLayerHeight
	pdf.SetFillColor(c.r, c.g, c.b)
	pdf.SetAlpha(highlightAlpha, "Normal")
	for _, r := range h.Rects {
		pdf.Rect(r.X*sx, r.Y*sy, r.Width*sx, r.Height*sy, "F")
	}
	pdf.SetAlpha(1, "Normal")
}

func writeDigestPage(pdf *gofpdf.Fpdf, doc Document, items []Item) {
	if len(items) == 0 {
		return
	}
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 20, "Highlights", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, it := range items {
		if it.Highlight.IsSnip {
			continue
		}
		pdf.SetTextColor(130, 130, 130)
		pdf.CellFormat(0, 14, fmt.Sprintf("p. %d", it.Highlight.Page), "", 1, "L", false, 0, "")
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 13, it.MergedText, "", "L", false)
		pdf.Ln(6)
	}
}

func maxPage(items []Item) int {
	max := 1
	for _, it := range items {
		if it.Highlight.Page > max {
			max = it.Highlight.Page
		}
	}
	return max
}
