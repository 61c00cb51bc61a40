// Package pdfsource provides a render.Renderer backed by a local PDF file.
// It supplies positioned word fragments and layer geometry; rasterization
// is the embedding UI's concern, so render tasks complete immediately.
package pdfsource

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/ocr"
	"github.com/voxread/readkit/render"
)

// Default page size when the media box is missing (US Letter, points).
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// Source reads positioned text from a PDF file.
type Source struct {
	path   string
	reader *pdf.Reader
	closer interface{ Close() error }
	log    observability.Logger

	ocrEngine ocr.Engine
	ocrLangs  []string
}

// Open validates and opens the PDF at path. Malformed or encrypted files
// produce a user-presentable extraction error.
func Open(path string, log observability.Logger, opts ...Option) (*Source, error) {
	if log == nil {
		log = observability.Default()
	}
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, fmt.Errorf("document cannot be read (it may be damaged or encrypted): %w", err)
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	pages, err := api.PageCountFile(path)
	if err == nil && pages != r.NumPage() {
		log.Warn("page count disagreement between parsers",
			observability.Int("pdfcpu", pages),
			observability.Int("reader", r.NumPage()))
	}
	s := &Source{path: path, reader: r, closer: f, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying file.
func (s *Source) Close() error { return s.closer.Close() }

// PageCount implements render.Renderer.
func (s *Source) PageCount() int { return s.reader.NumPage() }

// Render implements render.Renderer. This source has no raster surface, so
// the returned task is already complete.
func (s *Source) Render(ctx context.Context, page int, scale float64) (render.Task, error) {
	if page < 1 || page > s.reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doneTask{}, nil
}

type doneTask struct{}

func (doneTask) Done() <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}
func (doneTask) Cancel() {}

// Layer implements render.Renderer: the text-layer pixel size is the media
// box scaled.
func (s *Source) Layer(page int, scale float64) (float64, float64) {
	w, h := s.mediaBox(page)
	if scale <= 0 {
		scale = 1
	}
	return w * scale, h * scale
}

// TextContent implements render.Renderer. Character runs are merged into
// word fragments; coordinates are converted from the PDF's bottom-left
// origin to top-left-origin page points.
func (s *Source) TextContent(ctx context.Context, page int) (doctext.PageText, error) {
	if err := ctx.Err(); err != nil {
		return doctext.PageText{}, err
	}
	if page < 1 || page > s.reader.NumPage() {
		return doctext.PageText{}, fmt.Errorf("page %d out of range", page)
	}
	p := s.reader.Page(page)
	w, h := s.mediaBox(page)
	pt := doctext.PageText{Page: page, Width: w, Height: h}
	if p.V.IsNull() {
		return pt, nil
	}
	content := p.Content()
	pt.Fragments = mergeWords(content.Text, page, h)
	if len(pt.Fragments) == 0 && s.ocrEngine != nil {
		// No text layer; recognize the page scan instead.
		if scan, ok := s.scanForPage(page); ok {
			frags, err := recognizeScan(ctx, s.ocrEngine, scan, page, w, h, s.ocrLangs)
			if err != nil {
				s.log.Warn("page recognition failed",
					observability.Int("page", page),
					observability.Error("err", err))
			} else {
				pt.Fragments = frags
			}
		}
	}
	return pt, nil
}

// Pages extracts every page's fragments, for the initial canonical build.
func (s *Source) Pages(ctx context.Context) ([]doctext.PageText, error) {
	var out []doctext.PageText
	for i := 1; i <= s.reader.NumPage(); i++ {
		pt, err := s.TextContent(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// mediaBox resolves the page's media box, walking up the page tree when
// the entry is inherited.
func (s *Source) mediaBox(page int) (float64, float64) {
	if page < 1 || page > s.reader.NumPage() {
		return defaultPageWidth, defaultPageHeight
	}
	v := s.reader.Page(page).V
	for depth := 0; depth < 8 && !v.IsNull(); depth++ {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}

// Gap thresholds for merging character runs into words, as fractions of
// the font size.
const (
	wordGapFactor = 0.25
	rowTolerance  = 0.4
)

func mergeWords(texts []pdf.Text, page int, pageHeight float64) []doctext.Fragment {
	if len(texts) == 0 {
		return nil
	}
	// Group into rows by baseline Y, then left-to-right within a row.
	sorted := append([]pdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i], sorted[j]
		tol := math.Max(ti.FontSize, tj.FontSize) * rowTolerance
		if math.Abs(ti.Y-tj.Y) > math.Max(tol, 1) {
			return ti.Y > tj.Y // higher Y first (PDF origin is bottom-left)
		}
		return ti.X < tj.X
	})

	var frags []doctext.Fragment
	var cur *doctext.Fragment
	var curEndX, curBaseY float64

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			frags = append(frags, *cur)
		}
		cur = nil
	}
	for _, t := range sorted {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}
		fs := t.FontSize
		if fs <= 0 {
			fs = 10
		}
		sameRow := cur != nil && math.Abs(t.Y-curBaseY) <= math.Max(fs*rowTolerance, 1)
		closeGap := cur != nil && t.X-curEndX <= fs*wordGapFactor && t.X >= cur.X
		if cur == nil || !sameRow || !closeGap {
			flush()
			cur = &doctext.Fragment{
				Text:            t.S,
				Page:            page,
				X:               t.X,
				Y:               pageHeight - t.Y - fs, // top-left origin
				Width:           t.W,
				Height:          fs * 1.2,
				FontSize:        fs,
				CanonicalOffset: -1,
				ColumnIndex:     -1,
			}
			curEndX = t.X + t.W
			curBaseY = t.Y
			continue
		}
		cur.Text += t.S
		curEndX = t.X + t.W
		cur.Width = curEndX - cur.X
	}
	flush()
	return frags
}
