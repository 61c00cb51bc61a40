// Package highlight holds user-created annotations: their geometry captured
// at creation scale, their whole-word text, colors, cross-highlight
// connections, and a linear undo/redo history synchronized to a metadata
// store on a best-effort basis.
package highlight

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Color is one of the three supported highlight colors.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
)

// Valid reports whether c is a supported color.
func (c Color) Valid() bool {
	return c == ColorYellow || c == ColorGreen || c == ColorBlue
}

// Rect is a highlight rectangle in text-layer-local pixel coordinates at
// the scale the highlight was created.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Dot names a connection endpoint on a highlight.
type Dot string

const (
	DotLeft  Dot = "left"
	DotRight Dot = "right"
)

// Connection is a directed link to another highlight of the same color,
// used to merge highlight text in reading order for export.
type Connection struct {
	To      string `json:"to"`
	FromDot Dot    `json:"fromDot"`
	ToDot   Dot    `json:"toDot"`
}

// Highlight is one persisted annotation.
type Highlight struct {
	ID    string `json:"id"`
	Page  int    `json:"page"`
	Rects []Rect `json:"rects,omitempty"`
	Text  string `json:"text"`
	Color Color  `json:"color"`

	// Creation geometry anchors reprojection: stored rects are relative
	// to a text layer of this pixel size at this scale.
	CreationScale       float64 `json:"creationScale"`
	CreationLayerWidth  float64 `json:"creationTextLayerWidth"`
	CreationLayerHeight float64 `json:"creationTextLayerHeight"`

	// ColumnIndex is the column the selection started in, -1 if unknown.
	ColumnIndex int `json:"columnIndex"`

	Connections []Connection `json:"connections,omitempty"`

	// Snip highlights carry a screenshot image instead of rects.
	IsSnip bool   `json:"isSnip,omitempty"`
	Image  string `json:"image,omitempty"` // data URL
}

// NewID returns a unique highlight id combining a millisecond timestamp
// with a random suffix.
func NewID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// clone returns a deep copy.
func (h Highlight) clone() Highlight {
	c := h
	c.Rects = append([]Rect(nil), h.Rects...)
	c.Connections = append([]Connection(nil), h.Connections...)
	return c
}

// cloneAll deep-copies a highlight slice; history snapshots must never
// share backing arrays with the live set.
func cloneAll(hs []Highlight) []Highlight {
	out := make([]Highlight, len(hs))
	for i, h := range hs {
		out[i] = h.clone()
	}
	return out
}
