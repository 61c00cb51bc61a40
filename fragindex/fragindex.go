// Package fragindex maintains the runtime mapping between canonical-offset
// ranges and rendered on-screen fragments. The index is rebuilt per page on
// every render pass; entries from an older render generation become
// unusable the moment the page re-renders.
package fragindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/voxread/readkit/doctext"
)

// Entry is one indexed fragment (roughly a word) on a rendered page.
type Entry struct {
	Text       string
	Offset     int // canonical byte offset, -1 for display-only fragments
	Page       int
	Generation uint64

	rect Rect
}

// End returns one past the last canonical byte covered by the entry.
// Undefined for display-only entries.
func (e Entry) End() int { return e.Offset + len(strings.TrimSpace(e.Text)) }

// Index holds the per-page fragment entries and spatial indexes. It is safe
// for concurrent use; render completions arrive asynchronously per page.
type Index struct {
	mu    sync.RWMutex
	pages map[int]*pageIndex
}

type pageIndex struct {
	generation uint64
	entries    []Entry // sorted by Offset among offset-bearing entries
	tree       *quadTree
}

// New returns an empty Index.
func New() *Index {
	return &Index{pages: make(map[int]*pageIndex)}
}

const quadTreeCapacity = 16

// Rebuild replaces the page's entries with the given rendered fragments.
// gen must advance on every render of the page; entries stamped with an
// older generation fail HandleBounds from then on.
func (ix *Index) Rebuild(page int, gen uint64, layerW, layerH float64, frags []doctext.Fragment) {
	pi := &pageIndex{generation: gen}
	if layerW <= 0 {
		layerW = 1
	}
	if layerH <= 0 {
		layerH = 1
	}
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		pi.entries = append(pi.entries, Entry{
			Text:       f.Text,
			Offset:     f.CanonicalOffset,
			Page:       page,
			Generation: gen,
			rect:       Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
		})
	}
	// Display-only entries sort to the tail, keeping their relative order.
	// Rendered fragments can arrive in any order, so offset-bearing entries
	// must be re-sorted here for the in-order page walks to hold.
	sort.SliceStable(pi.entries, func(i, j int) bool {
		a, b := pi.entries[i].Offset, pi.entries[j].Offset
		if a < 0 {
			return false
		}
		if b < 0 {
			return true
		}
		return a < b
	})
	pi.tree = newQuadTree(Rect{Width: layerW, Height: layerH}, quadTreeCapacity)
	for i, e := range pi.entries {
		pi.tree.insert(e.rect, i)
	}

	ix.mu.Lock()
	ix.pages[page] = pi
	ix.mu.Unlock()
}

// Drop removes the page from the index (page left the render window).
func (ix *Index) Drop(page int) {
	ix.mu.Lock()
	delete(ix.pages, page)
	ix.mu.Unlock()
}

// Generation returns the current render generation for the page, 0 when the
// page has never been indexed.
func (ix *Index) Generation(page int) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if pi, ok := ix.pages[page]; ok {
		return pi.generation
	}
	return 0
}

// Query returns the entries whose canonical range overlaps [lo, hi),
// sorted by offset. Display-only entries are never returned.
func (ix *Index) Query(lo, hi int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	for _, pi := range ix.pages {
		for _, e := range pi.entries {
			if e.Offset < 0 {
				continue
			}
			if e.Offset < hi && e.End() > lo {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// ByOffset returns the entries containing the canonical offset.
func (ix *Index) ByOffset(off int) []Entry {
	return ix.Query(off, off+1)
}

// PageEntries returns the page's offset-bearing entries in canonical order.
func (ix *Index) PageEntries(page int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pi, ok := ix.pages[page]
	if !ok {
		return nil
	}
	var out []Entry
	for _, e := range pi.entries {
		if e.Offset >= 0 {
			out = append(out, e)
		}
	}
	return out
}

// HitTest returns the entries on page whose rectangles intersect region,
// including display-only ones (boilerplate still occupies screen space).
func (ix *Index) HitTest(page int, region Rect) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pi, ok := ix.pages[page]
	if !ok {
		return nil
	}
	idxs := pi.tree.query(region)
	sort.Ints(idxs)
	out := make([]Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, pi.entries[i])
	}
	return out
}

// HandleBounds resolves the entry's on-screen rectangle. ok is false when
// the page has re-rendered since the entry was produced; callers must
// re-query instead of trusting a stale rectangle.
func (ix *Index) HandleBounds(e Entry) (Rect, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pi, ok := ix.pages[e.Page]
	if !ok || pi.generation != e.Generation {
		return Rect{}, false
	}
	return e.rect, true
}

// FallbackFind is the lower-priority text-scan path used when canonical
// offsets are unavailable (index built before the canonical buffer, or a
// source without offsets). It returns the first entry on page at or after
// fromIdx whose normalized text equals word.
func (ix *Index) FallbackFind(page int, word string, fromIdx int) (Entry, int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pi, ok := ix.pages[page]
	if !ok {
		return Entry{}, 0, false
	}
	norm := doctext.NormalizeText(word)
	if norm == "" {
		return Entry{}, 0, false
	}
	if fromIdx < 0 {
		fromIdx = 0
	}
	for i := fromIdx; i < len(pi.entries); i++ {
		if doctext.NormalizeText(pi.entries[i].Text) == norm {
			return pi.entries[i], i, true
		}
	}
	return Entry{}, 0, false
}
