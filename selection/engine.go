package selection

import (
	"math"
	"sort"
	"strings"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/highlight"
	"github.com/voxread/readkit/observability"
)

// Point is a pointer position in text-layer pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Config holds the geometry thresholds, all proportional to the fragment
// height standing in for the active font size.
type Config struct {
	// GapBridgeFactor × height is the widest inter-fragment gap merged
	// into a single line rectangle.
	GapBridgeFactor float64
	// ColumnGapFactor × height is the narrowest gap treated as a genuine
	// column gap, splitting the rectangle.
	ColumnGapFactor float64
	// LineToleranceFactor × height is the max vertical center distance
	// for two fragments to count as the same line.
	LineToleranceFactor float64
	// HitSlop pads pointer hit-testing by a few pixels.
	HitSlop float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		GapBridgeFactor:     1.2,
		ColumnGapFactor:     3.0,
		LineToleranceFactor: 0.5,
		HitSlop:             2,
	}
}

// Engine converts pointer drags over a rendered page into highlights.
type Engine struct {
	cfg   Config
	index *fragindex.Index
	log   observability.Logger
}

// NewEngine creates an Engine over the fragment index.
func NewEngine(cfg Config, index *fragindex.Index, log observability.Logger) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = observability.Default()
	}
	return &Engine{cfg: cfg, index: index, log: log}
}

// Drag tracks one in-progress selection: a literal start anchor and a
// continuously updated end anchor. Moving over non-text whitespace retains
// the last valid in-text end anchor instead of collapsing the drag.
type Drag struct {
	page     int
	cols     []Column
	startCol Column

	start      fragindex.Entry
	hasStart   bool
	startPoint Point

	end      fragindex.Entry
	hasEnd   bool
	endPoint Point

	moved bool
}

// Begin starts a drag on page at p. frags is the page's rendered fragment
// list (used for column detection); pageWidth is the text-layer width.
func (e *Engine) Begin(page int, frags []doctext.Fragment, pageWidth float64, p Point) *Drag {
	d := &Drag{
		page:       page,
		cols:       DetectColumns(frags, pageWidth),
		startPoint: p,
		endPoint:   p,
	}
	d.startCol = ColumnFor(d.cols, p.X)
	if entry, ok := e.hit(page, p); ok {
		d.start = entry
		d.hasStart = true
		d.startCol = ColumnFor(d.cols, e.centerX(entry))
		d.end = entry
		d.hasEnd = true
	}
	return d
}

// Move updates the drag's end anchor. The anchor only advances when the
// pointer is over text inside the start column.
func (e *Engine) Move(d *Drag, p Point) {
	if p != d.startPoint {
		d.moved = true
	}
	entry, ok := e.hit(d.page, p)
	if !ok || !d.startCol.Contains(e.centerX(entry)) {
		return
	}
	if !d.hasStart {
		d.start = entry
		d.hasStart = true
		d.startPoint = p
	}
	d.end = entry
	d.hasEnd = true
	d.endPoint = p
}

// Finish converts the drag into a highlight. ok is false when the
// selection collapsed to nothing; no residual state survives either way.
func (e *Engine) Finish(d *Drag, color highlight.Color, scale, layerW, layerH float64) (highlight.Highlight, bool) {
	if !d.hasStart || !d.hasEnd {
		return highlight.Highlight{}, false
	}
	sameAnchor := d.start.Offset == d.end.Offset && sameRect(e, d.start, d.end)
	if sameAnchor && !d.moved {
		// A click, not a drag: zero-length selection.
		return highlight.Highlight{}, false
	}

	entries := e.selectedEntries(d)
	if len(entries) == 0 {
		return highlight.Highlight{}, false
	}

	rects := e.lineRects(d, entries)
	if len(rects) == 0 {
		return highlight.Highlight{}, false
	}

	// The extracted text expands to whole fragments even when the pixel
	// selection covers part of a word; text and geometry are allowed to
	// diverge slightly.
	var words []string
	for _, en := range entries {
		if w := strings.TrimSpace(en.Text); w != "" {
			words = append(words, w)
		}
	}
	text := strings.Join(words, " ")
	if text == "" {
		return highlight.Highlight{}, false
	}

	return highlight.Highlight{
		ID:                  highlight.NewID(),
		Page:                d.page,
		Rects:               rects,
		Text:                text,
		Color:               color,
		CreationScale:       scale,
		CreationLayerWidth:  layerW,
		CreationLayerHeight: layerH,
		ColumnIndex:         d.startCol.Index,
	}, true
}

func (e *Engine) hit(page int, p Point) (fragindex.Entry, bool) {
	s := e.cfg.HitSlop
	entries := e.index.HitTest(page, fragindex.Rect{
		X: p.X - s, Y: p.Y - s, Width: 2 * s, Height: 2 * s,
	})
	if len(entries) == 0 {
		return fragindex.Entry{}, false
	}
	return entries[0], true
}

func (e *Engine) bounds(en fragindex.Entry) fragindex.Rect {
	r, _ := e.index.HandleBounds(en)
	return r
}

func (e *Engine) centerX(en fragindex.Entry) float64 {
	r := e.bounds(en)
	return r.X + r.Width/2
}

func sameRect(e *Engine, a, b fragindex.Entry) bool {
	ra, rb := e.bounds(a), e.bounds(b)
	return ra == rb
}

// selectedEntries walks the fragments intersected by the drag band,
// confined to the start column, in reading order.
func (e *Engine) selectedEntries(d *Drag) []fragindex.Entry {
	rs := e.bounds(d.start)
	re := e.bounds(d.end)
	top, bottom := rs, re
	if re.Y < rs.Y {
		top, bottom = re, rs
	}
	band := fragindex.Rect{
		X:      d.startCol.StartX,
		Y:      top.Y,
		Width:  d.startCol.EndX - d.startCol.StartX,
		Height: bottom.Y + bottom.Height - top.Y,
	}
	entries := e.index.HitTest(d.page, band)

	tol := func(en fragindex.Entry) float64 {
		return e.bounds(en).Height * e.cfg.LineToleranceFactor
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := e.bounds(entries[i]), e.bounds(entries[j])
		if math.Abs(ri.Y-rj.Y) > math.Max(tol(entries[i]), 1) {
			return ri.Y < rj.Y
		}
		return ri.X < rj.X
	})

	// Trim the first and last line to the anchors' horizontal extent, and
	// drop fragments past a column-scale gap that detection missed.
	first, last := top, bottom
	var out []fragindex.Entry
	var prev fragindex.Rect
	havePrev := false
	for _, en := range entries {
		r := e.bounds(en)
		if !d.startCol.Contains(r.X + r.Width/2) {
			continue
		}
		sameLine := havePrev && math.Abs(r.Y-prev.Y) <= math.Max(tol(en), 1)
		if sameLine && r.X-(prev.X+prev.Width) > r.Height*e.cfg.ColumnGapFactor {
			continue
		}
		onFirst := math.Abs(r.Y-first.Y) <= math.Max(tol(en), 1)
		onLast := math.Abs(r.Y-last.Y) <= math.Max(tol(en), 1)
		if onFirst && r.X+r.Width <= first.X {
			continue
		}
		if onLast && r.X >= last.X+last.Width {
			continue
		}
		out = append(out, en)
		prev = r
		havePrev = true
	}
	return out
}

// lineRects combines same-line fragments into rectangles, bridging small
// gaps and splitting at genuine column-scale gaps.
func (e *Engine) lineRects(d *Drag, entries []fragindex.Entry) []highlight.Rect {
	var rects []highlight.Rect
	var cur *highlight.Rect
	var prev fragindex.Rect
	havePrev := false

	flush := func() {
		if cur != nil && cur.Width > 0 {
			rects = append(rects, *cur)
		}
		cur = nil
	}

	for _, en := range entries {
		r := e.bounds(en)
		if r.Width <= 0 && r.Height <= 0 {
			continue
		}
		newLine := havePrev && math.Abs(r.Y-prev.Y) > math.Max(r.Height*e.cfg.LineToleranceFactor, 1)
		gap := 0.0
		if havePrev && !newLine {
			gap = r.X - (prev.X + prev.Width)
		}
		split := newLine || (havePrev && gap > r.Height*e.cfg.GapBridgeFactor)
		if cur == nil || split {
			flush()
			cur = &highlight.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
		} else {
			right := math.Max(cur.X+cur.Width, r.X+r.Width)
			topY := math.Min(cur.Y, r.Y)
			bottomY := math.Max(cur.Y+cur.Height, r.Y+r.Height)
			cur.Y = topY
			cur.Height = bottomY - topY
			cur.Width = right - cur.X
		}
		prev = r
		havePrev = true
	}
	flush()

	// Clip the first and last rectangle to the pointer extent so a
	// mid-word drag draws a partial-word box.
	if len(rects) > 0 {
		sr := e.bounds(d.start)
		if d.startPoint.X > rects[0].X && d.startPoint.X < sr.X+sr.Width && rects[0].Y == sr.Y {
			delta := d.startPoint.X - rects[0].X
			rects[0].X += delta
			rects[0].Width -= delta
		}
		lastIdx := len(rects) - 1
		er := e.bounds(d.end)
		if d.endPoint.X > er.X && d.endPoint.X < rects[lastIdx].X+rects[lastIdx].Width && rects[lastIdx].Y == er.Y {
			rects[lastIdx].Width = d.endPoint.X - rects[lastIdx].X
		}
	}
	return rects
}
