package highlight

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/voxread/readkit/observability"
)

// ErrColorMismatch is returned when connecting highlights of different
// colors; connections may only join same-color highlights.
var ErrColorMismatch = errors.New("highlight: connected highlights must share a color")

// ErrNotFound is returned for operations on an unknown highlight id.
var ErrNotFound = errors.New("highlight: not found")

// Persister saves the highlight set to external storage. Implementations
// own size-guarding and reduced-form fallbacks; Collection only reports
// failures to its log and keeps the in-memory state authoritative.
type Persister interface {
	SaveHighlights(ctx context.Context, docID string, highlights []Highlight, order []string) error
}

// Collection is the live, undo/redo-capable highlight set for a document.
type Collection struct {
	mu      sync.Mutex
	docID   string
	items   []Highlight
	hist    *history
	persist Persister
	log     observability.Logger
}

// NewCollection creates an empty collection. persist may be nil for a
// purely in-memory set.
func NewCollection(docID string, persist Persister, log observability.Logger) *Collection {
	if log == nil {
		log = observability.Default()
	}
	return &Collection{
		docID:   docID,
		hist:    newHistory(),
		persist: persist,
		log:     log,
	}
}

// Load replaces the collection contents from a store snapshot without
// recording history or writing back.
func (c *Collection) Load(hs []Highlight) {
	c.mu.Lock()
	c.items = cloneAll(hs)
	c.hist = newHistory()
	c.hist.snapshots = [][]Highlight{cloneAll(hs)}
	c.hist.idx = 0
	c.mu.Unlock()
}

// Items returns a deep copy of the current highlight set.
func (c *Collection) Items() []Highlight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.items)
}

// Get returns the highlight with the given id.
func (c *Collection) Get(id string) (Highlight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.items {
		if h.ID == id {
			return h.clone(), true
		}
	}
	return Highlight{}, false
}

// Add inserts a new highlight. Non-snip highlights must carry at least one
// rectangle; a geometry-less highlight is never persisted.
func (c *Collection) Add(ctx context.Context, h Highlight) error {
	if !h.IsSnip && len(h.Rects) == 0 {
		return errors.New("highlight: no geometry")
	}
	if !h.Color.Valid() {
		h.Color = ColorYellow
	}
	if h.ID == "" {
		h.ID = NewID()
	}
	c.mu.Lock()
	c.items = append(c.items, h.clone())
	c.hist.push(c.items)
	c.mu.Unlock()
	c.save(ctx)
	return nil
}

// Remove deletes a highlight and strips any connections pointing at it.
func (c *Collection) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	found := false
	next := c.items[:0]
	for _, h := range c.items {
		if h.ID == id {
			found = true
			continue
		}
		kept := h.Connections[:0]
		for _, conn := range h.Connections {
			if conn.To != id {
				kept = append(kept, conn)
			}
		}
		h.Connections = kept
		next = append(next, h)
	}
	c.items = next
	if found {
		c.hist.push(c.items)
	}
	c.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	c.save(ctx)
	return nil
}

// SetColor changes a highlight's color. Connections to highlights of the
// old color are severed to preserve the same-color invariant.
func (c *Collection) SetColor(ctx context.Context, id string, color Color) error {
	if !color.Valid() {
		return errors.New("highlight: unsupported color")
	}
	c.mu.Lock()
	found := false
	for i := range c.items {
		if c.items[i].ID != id {
			continue
		}
		found = true
		c.items[i].Color = color
		c.items[i].Connections = nil
	}
	if found {
		for i := range c.items {
			if c.items[i].ID == id {
				continue
			}
			kept := c.items[i].Connections[:0]
			for _, conn := range c.items[i].Connections {
				if conn.To != id {
					kept = append(kept, conn)
				}
			}
			c.items[i].Connections = kept
		}
		c.hist.push(c.items)
	}
	c.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	c.save(ctx)
	return nil
}

// Connect links from → to. Both must exist and share a color.
func (c *Collection) Connect(ctx context.Context, from, to string, fromDot, toDot Dot) error {
	c.mu.Lock()
	var src *Highlight
	var dst *Highlight
	for i := range c.items {
		switch c.items[i].ID {
		case from:
			src = &c.items[i]
		case to:
			dst = &c.items[i]
		}
	}
	switch {
	case src == nil || dst == nil:
		c.mu.Unlock()
		return ErrNotFound
	case src.Color != dst.Color:
		c.mu.Unlock()
		return ErrColorMismatch
	}
	for _, conn := range src.Connections {
		if conn.To == to {
			c.mu.Unlock()
			return nil // already connected
		}
	}
	src.Connections = append(src.Connections, Connection{To: to, FromDot: fromDot, ToDot: toDot})
	c.hist.push(c.items)
	c.mu.Unlock()
	c.save(ctx)
	return nil
}

// Disconnect removes the link from → to if present.
func (c *Collection) Disconnect(ctx context.Context, from, to string) error {
	c.mu.Lock()
	changed := false
	for i := range c.items {
		if c.items[i].ID != from {
			continue
		}
		kept := c.items[i].Connections[:0]
		for _, conn := range c.items[i].Connections {
			if conn.To == to {
				changed = true
				continue
			}
			kept = append(kept, conn)
		}
		c.items[i].Connections = kept
	}
	if changed {
		c.hist.push(c.items)
	}
	c.mu.Unlock()
	if changed {
		c.save(ctx)
	}
	return nil
}

// BeginDrag suspends history recording until EndDrag, so a drag's
// intermediate states never interleave into the undo stack.
func (c *Collection) BeginDrag() {
	c.mu.Lock()
	c.hist.suspended = true
	c.mu.Unlock()
}

// EndDrag resumes history and records the drag's final state.
func (c *Collection) EndDrag(ctx context.Context) {
	c.mu.Lock()
	c.hist.suspended = false
	c.hist.push(c.items)
	c.mu.Unlock()
	c.save(ctx)
}

// Undo steps back one snapshot. ok is false at the beginning of history.
func (c *Collection) Undo(ctx context.Context) bool {
	c.mu.Lock()
	state, ok := c.hist.undo()
	if ok {
		c.items = state
	}
	c.mu.Unlock()
	if ok {
		c.save(ctx)
	}
	return ok
}

// Redo steps forward one snapshot.
func (c *Collection) Redo(ctx context.Context) bool {
	c.mu.Lock()
	state, ok := c.hist.redo()
	if ok {
		c.items = state
	}
	c.mu.Unlock()
	if ok {
		c.save(ctx)
	}
	return ok
}

// MergedText returns the text of the highlight's connected component in
// reading order (page, then vertical position, then horizontal).
func (c *Collection) MergedText(id string) string {
	component := c.Component(id)
	text := ""
	for i, h := range component {
		if i > 0 {
			text += " "
		}
		text += h.Text
	}
	return text
}

// Component returns the highlight's connected component in reading order.
// Connections are directed on the wire but walked both ways here.
func (c *Collection) Component(id string) []Highlight {
	c.mu.Lock()
	defer c.mu.Unlock()

	byID := make(map[string]Highlight, len(c.items))
	for _, h := range c.items {
		byID[h.ID] = h
	}
	start, ok := byID[id]
	if !ok {
		return nil
	}
	adj := make(map[string][]string)
	for _, h := range c.items {
		for _, conn := range h.Connections {
			adj[h.ID] = append(adj[h.ID], conn.To)
			adj[conn.To] = append(adj[conn.To], h.ID)
		}
	}
	seen := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	var component []Highlight
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if h, ok := byID[cur]; ok {
			component = append(component, h)
		}
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	sort.Slice(component, func(i, j int) bool {
		a, b := component[i], component[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		ay, by := firstRectY(a), firstRectY(b)
		if ay != by {
			return ay < by
		}
		return firstRectX(a) < firstRectX(b)
	})
	return component
}

func firstRectY(h Highlight) float64 {
	if len(h.Rects) == 0 {
		return 0
	}
	return h.Rects[0].Y
}

func firstRectX(h Highlight) float64 {
	if len(h.Rects) == 0 {
		return 0
	}
	return h.Rects[0].X
}

// save writes the current set through the persister. Failures are logged
// and swallowed; the in-memory state stays authoritative and the next
// mutation tries again.
func (c *Collection) save(ctx context.Context) {
	if c.persist == nil {
		return
	}
	c.mu.Lock()
	items := cloneAll(c.items)
	order := make([]string, len(items))
	for i, h := range items {
		order[i] = h.ID
	}
	docID := c.docID
	c.mu.Unlock()

	if err := c.persist.SaveHighlights(ctx, docID, items, order); err != nil {
		c.log.Warn("highlight save failed, keeping in-memory state",
			observability.String("doc", docID),
			observability.Error("err", err))
	}
}
