package highlight

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// maxSnipWidth bounds the stored snip image so a full-page screenshot does
// not blow the store's field budget on its own.
const maxSnipWidth = 1024

// NewSnip builds a screenshot-style highlight from a captured page region.
// The image is downscaled to maxSnipWidth when wider and stored as a PNG
// data URL.
func NewSnip(page int, region Rect, img image.Image, scale, layerW, layerH float64) (Highlight, error) {
	if img == nil {
		return Highlight{}, fmt.Errorf("snip: nil image")
	}
	b := img.Bounds()
	if b.Dx() > maxSnipWidth {
		h := b.Dy() * maxSnipWidth / b.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, maxSnipWidth, h))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
		img = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Highlight{}, fmt.Errorf("snip: encode: %w", err)
	}
	return Highlight{
		ID:                  NewID(),
		Page:                page,
		Rects:               []Rect{region},
		Color:               ColorYellow,
		CreationScale:       scale,
		CreationLayerWidth:  layerW,
		CreationLayerHeight: layerH,
		ColumnIndex:         -1,
		IsSnip:              true,
		Image:               "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
