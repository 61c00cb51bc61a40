// Package ocr plugs third-party text recognition engines into the document
// pipeline so pages without a text layer can still feed the canonical buffer.
// The interfaces are small and transport-agnostic; engines can be backed by
// native libraries or remote APIs without leaking provider concerns into
// callers.
package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Region is a rectangle in image pixel coordinates, origin top-left.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is a single page image submitted for recognition.
type Input struct {
	// ID is echoed back in the corresponding Result.
	ID string
	// Image is the encoded payload in the format declared by Format.
	Image  []byte
	Format ImageFormat
	// Page is the one-based document page the image was rendered from.
	Page int
	// DPI is the effective dots-per-inch of the rendered image; zero means
	// unknown.
	DPI int
	// Languages holds trained-data hints such as "eng" or "spa".
	Languages []string
	// Region restricts recognition to a subsection of the image. Nil means
	// the full image.
	Region *Region
	// Metadata passes engine-specific variables through without widening the
	// API surface.
	Metadata map[string]string
}

// Word is a single recognized token with its pixel bounds.
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Line groups words sharing a baseline.
type Line struct {
	Text       string
	Bounds     Region
	Words      []Word
	Confidence float64
}

// Result is the recognition output for one input image.
type Result struct {
	InputID   string
	Page      int
	PlainText string
	Lines     []Line
	Language  string
}

// Engine is the basic provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine amortizes setup cost across multiple images.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
