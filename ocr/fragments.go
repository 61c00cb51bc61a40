package ocr

import (
	"context"
	"fmt"

	"github.com/voxread/readkit/doctext"
)

// Fragments converts a recognition result into positioned word fragments in
// page points. imgW and imgH are the pixel dimensions of the recognized
// image; pageW and pageH the target page size in points.
func Fragments(res Result, imgW, imgH, pageW, pageH float64) []doctext.Fragment {
	if imgW <= 0 || imgH <= 0 {
		return nil
	}
	sx := pageW / imgW
	sy := pageH / imgH
	var frags []doctext.Fragment
	for _, line := range res.Lines {
		for _, w := range line.Words {
			if w.Text == "" {
				continue
			}
			frags = append(frags, doctext.Fragment{
				Text:            w.Text,
				Page:            res.Page,
				X:               w.Bounds.X * sx,
				Y:               w.Bounds.Y * sy,
				Width:           w.Bounds.Width * sx,
				Height:          w.Bounds.Height * sy,
				FontSize:        w.Bounds.Height * sy,
				CanonicalOffset: -1,
				ColumnIndex:     -1,
			})
		}
	}
	return frags
}

// RecognizePage runs an engine over one page image and returns the page's
// text in the same form a native text layer would produce.
func RecognizePage(ctx context.Context, engine Engine, in Input, pageW, pageH float64, imgW, imgH float64) (doctext.PageText, error) {
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return doctext.PageText{}, fmt.Errorf("recognize page %d: %w", in.Page, err)
	}
	return doctext.PageText{
		Page:      in.Page,
		Width:     pageW,
		Height:    pageH,
		Fragments: Fragments(res, imgW, imgH, pageW, pageH),
	}, nil
}
