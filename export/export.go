// Package export renders a document's highlights into shareable artifacts:
// a standalone HTML digest and an annotated PDF overlay.
package export

import (
	"sort"

	"github.com/voxread/readkit/highlight"
)

// Document carries the metadata stamped into exported artifacts.
type Document struct {
	Title     string
	Author    string
	PageCount int
	// PageWidth and PageHeight are the source page size in points, used to
	// place annotation rectangles.
	PageWidth  float64
	PageHeight float64
}

// Item is one highlight prepared for export: the highlight itself plus the
// merged text of its connection component and an optional markdown note.
type Item struct {
	Highlight highlight.Highlight
	// MergedText is the combined text of the highlight's connection
	// component; equals the highlight's own text when unconnected.
	MergedText string
	// Note is user-authored markdown attached to the highlight.
	Note string
}

// BuildItems assembles export items from a collection, one per connection
// component, ordered by document position.
func BuildItems(col *highlight.Collection, notes map[string]string) []Item {
	all := col.Items()
	seen := make(map[string]bool, len(all))
	var items []Item
	for _, h := range all {
		if seen[h.ID] {
			continue
		}
		component := col.Component(h.ID)
		if len(component) == 0 {
			component = []highlight.Highlight{h}
		}
		lead := component[0]
		for _, m := range component {
			seen[m.ID] = true
		}
		items = append(items, Item{Highlight: lead, MergedText: col.MergedText(h.ID), Note: notes[lead.ID]})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return earlier(items[i].Highlight, items[j].Highlight)
	})
	return items
}

func earlier(a, b highlight.Highlight) bool {
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	ay, by := firstY(a), firstY(b)
	if ay != by {
		return ay < by
	}
	return firstX(a) < firstX(b)
}

func firstY(h highlight.Highlight) float64 {
	if len(h.Rects) == 0 {
		return 0
	}
	return h.Rects[0].Y
}

func firstX(h highlight.Highlight) float64 {
	if len(h.Rects) == 0 {
		return 0
	}
	return h.Rects[0].X
}
