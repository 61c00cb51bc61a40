package pdfsource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/tiff"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/ocr"
)

// Option configures a Source.
type Option func(*Source)

// WithOCR installs a fallback recognition engine for pages without a text
// layer. langs are trained-data hints such as "eng" or "spa".
func WithOCR(engine ocr.Engine, langs ...string) Option {
	return func(s *Source) {
		s.ocrEngine = engine
		s.ocrLangs = append([]string(nil), langs...)
	}
}

// pageScan is one embedded page image considered for recognition.
type pageScan struct {
	data   []byte
	format ocr.ImageFormat
}

// recognizeScan runs the engine over a page scan and converts the result
// into fragments in page points, the same form a native text layer yields.
func recognizeScan(ctx context.Context, engine ocr.Engine, scan pageScan, page int, pageW, pageH float64, langs []string) ([]doctext.Fragment, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(scan.data))
	if err != nil {
		return nil, fmt.Errorf("decode page %d scan: %w", page, err)
	}
	in := ocr.Input{
		ID:        "page-" + strconv.Itoa(page),
		Image:     scan.data,
		Format:    scan.format,
		Page:      page,
		Languages: langs,
	}
	pt, err := ocr.RecognizePage(ctx, engine, in, pageW, pageH, float64(cfg.Width), float64(cfg.Height))
	if err != nil {
		return nil, err
	}
	return pt.Fragments, nil
}

// scanForPage extracts the page's largest embedded image. Scanned documents
// embed each page as a single full-page XObject, so largest wins.
func (s *Source) scanForPage(page int) (pageScan, bool) {
	f, err := os.Open(s.path)
	if err != nil {
		return pageScan{}, false
	}
	defer f.Close()
	pageImages, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(page)}, nil)
	if err != nil {
		return pageScan{}, false
	}
	var best pageScan
	for _, m := range pageImages {
		for _, img := range m {
			data, err := io.ReadAll(img)
			if err != nil || len(data) <= len(best.data) {
				continue
			}
			best = pageScan{data: data, format: scanFormat(img.FileType)}
		}
	}
	return best, len(best.data) > 0
}

func scanFormat(fileType string) ocr.ImageFormat {
	switch fileType {
	case "jpg", "jpeg":
		return ocr.ImageFormatJPEG
	case "png", "":
		return ocr.ImageFormatPNG
	default:
		return ocr.ImageFormat("image/" + fileType)
	}
}
