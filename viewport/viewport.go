// Package viewport re-projects scale-relative highlight geometry and the
// reading-position overlay onto current on-screen pixel coordinates. The
// projector must be re-applied on zoom change, container resize, and return
// from any full-screen sub-view, since those may destroy and recreate the
// rendered page.
package viewport

import (
	"math/rand"
	"time"

	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/highlight"
)

// Layer describes the current text-layer pixel size.
type Layer struct {
	Width  float64
	Height float64
}

// OverlayStyle is the cosmetic treatment of the reading-position overlay.
type OverlayStyle struct {
	// PaddingFactor × line height pads the word box on each side.
	PaddingFactor float64
	// RadiusMin/RadiusMax bound the randomized organic border radius.
	RadiusMin float64
	RadiusMax float64
	// FadeOut is how long the overlay takes to disappear when cleared.
	FadeOut time.Duration
}

// DefaultOverlayStyle returns the tuned defaults.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{
		PaddingFactor: 0.18,
		RadiusMin:     4,
		RadiusMax:     9,
		FadeOut:       280 * time.Millisecond,
	}
}

// Overlay is the painted reading-position box.
type Overlay struct {
	Rect    fragindex.Rect
	Radius  float64
	FadeOut time.Duration
}

// Projector converts stored geometry to current-viewport pixels.
type Projector struct {
	style OverlayStyle
	rng   *rand.Rand
}

// NewProjector creates a Projector. A zero style gets the defaults.
func NewProjector(style OverlayStyle) *Projector {
	if style == (OverlayStyle{}) {
		style = DefaultOverlayStyle()
	}
	return &Projector{
		style: style,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Project maps a highlight's stored rectangles onto the current layer.
// Stored values are relative to the layer size at creation time, so each
// axis scales by current/creation independently.
func (p *Projector) Project(h highlight.Highlight, current Layer) []highlight.Rect {
	if h.CreationLayerWidth <= 0 || h.CreationLayerHeight <= 0 {
		return append([]highlight.Rect(nil), h.Rects...)
	}
	sx := current.Width / h.CreationLayerWidth
	sy := current.Height / h.CreationLayerHeight
	out := make([]highlight.Rect, len(h.Rects))
	for i, r := range h.Rects {
		out[i] = highlight.Rect{
			X:      r.X * sx,
			Y:      r.Y * sy,
			Width:  r.Width * sx,
			Height: r.Height * sy,
		}
	}
	return out
}

// ProjectReadingOverlay produces the overlay box for the word being spoken.
// bounds must be the entry's current-generation rectangle; padding scales
// with the word's line height and the radius is mildly randomized.
func (p *Projector) ProjectReadingOverlay(bounds fragindex.Rect) Overlay {
	pad := bounds.Height * p.style.PaddingFactor
	radius := p.style.RadiusMin + p.rng.Float64()*(p.style.RadiusMax-p.style.RadiusMin)
	return Overlay{
		Rect: fragindex.Rect{
			X:      bounds.X - pad,
			Y:      bounds.Y - pad,
			Width:  bounds.Width + 2*pad,
			Height: bounds.Height + 2*pad,
		},
		Radius:  radius,
		FadeOut: p.style.FadeOut,
	}
}
