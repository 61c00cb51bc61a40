package doctext

import (
	"strings"

	"github.com/voxread/readkit/observability"
)

// PageSeparator is inserted between consecutive pages' filtered text. It is
// exactly two characters, representing a paragraph break.
const PageSeparator = "\n\n"

// Canonical is the single linear text buffer for a document plus the
// page-start offset table and the per-page fragments annotated with their
// canonical offsets.
type Canonical struct {
	Buffer string

	// Pages holds a copy of the input pages with CanonicalOffset set on
	// every fragment (-1 for filtered boilerplate, which stays renderable
	// but is never a speech target).
	Pages []PageText

	pageStarts []int // by page index (Page-1)
	pageEnds   []int // exclusive end of page content, before the separator
}

// Builder produces Canonical buffers. Thorough enables the second-pass
// classification used by background re-extraction: it additionally
// suppresses in-band fragments whose text repeats across pages once digit
// runs are ignored ("Page 3 of 12" style footers).
type Builder struct {
	Thorough bool
	log      observability.Logger
}

// NewBuilder returns a Builder. A nil logger falls back to the default.
func NewBuilder(log observability.Logger) *Builder {
	if log == nil {
		log = observability.Default()
	}
	return &Builder{log: log}
}

// Build assembles the canonical buffer from pages using rep for boilerplate
// classification. The input pages are not mutated.
func (b *Builder) Build(pages []PageText, rep *RepetitionMap) *Canonical {
	c := &Canonical{
		Pages:      make([]PageText, len(pages)),
		pageStarts: make([]int, len(pages)),
		pageEnds:   make([]int, len(pages)),
	}
	var buf strings.Builder
	dropped := 0
	for i, p := range pages {
		cp := p
		cp.Fragments = make([]Fragment, len(p.Fragments))
		copy(cp.Fragments, p.Fragments)

		keep := b.classify(cp.Fragments, p, rep)
		if i > 0 {
			buf.WriteString(PageSeparator)
		}
		c.pageStarts[i] = buf.Len()
		wrote := false
		for j := range cp.Fragments {
			trimmed := strings.TrimSpace(cp.Fragments[j].Text)
			if !keep[j] || trimmed == "" {
				cp.Fragments[j].CanonicalOffset = -1
				if trimmed != "" {
					dropped++
				}
				continue
			}
			if wrote {
				buf.WriteByte(' ')
			}
			cp.Fragments[j].CanonicalOffset = buf.Len()
			buf.WriteString(trimmed)
			wrote = true
		}
		c.pageEnds[i] = buf.Len()
		c.Pages[i] = cp
	}
	c.Buffer = buf.String()
	b.log.Debug("canonical buffer built",
		observability.Int("pages", len(pages)),
		observability.Int("bytes", len(c.Buffer)),
		observability.Int("boilerplate", dropped))
	return c
}

// classify returns a keep mask for the page's fragments. If filtering would
// drop every non-empty fragment, everything is kept: losing content
// silently is worse than reading a header aloud.
func (b *Builder) classify(frags []Fragment, p PageText, rep *RepetitionMap) []bool {
	keep := make([]bool, len(frags))
	kept := 0
	for j, f := range frags {
		drop := rep != nil && rep.IsBoilerplate(f, p.Height)
		if !drop && b.Thorough && rep != nil {
			drop = rep.isDigitInsensitiveRepeat(f, p.Height)
		}
		keep[j] = !drop
		if keep[j] && strings.TrimSpace(f.Text) != "" {
			kept++
		}
	}
	if kept == 0 {
		for j := range keep {
			keep[j] = true
		}
	}
	return keep
}

// Len returns the canonical buffer length in bytes.
func (c *Canonical) Len() int { return len(c.Buffer) }

// PageStart returns the canonical offset of the first byte of the page's
// content. Page is 1-based; out-of-range pages return -1.
func (c *Canonical) PageStart(page int) int {
	if page < 1 || page > len(c.pageStarts) {
		return -1
	}
	return c.pageStarts[page-1]
}

// PageEnd returns the canonical offset one past the last byte of the page's
// content, before any separator. Page is 1-based.
func (c *Canonical) PageEnd(page int) int {
	if page < 1 || page > len(c.pageEnds) {
		return -1
	}
	return c.pageEnds[page-1]
}

// PageForOffset returns the 1-based page containing the canonical offset,
// or 0 when the offset is out of bounds. Offsets inside a page separator
// belong to the preceding page.
func (c *Canonical) PageForOffset(off int) int {
	if off < 0 || off >= len(c.Buffer) {
		return 0
	}
	for i := len(c.pageStarts) - 1; i >= 0; i-- {
		if off >= c.pageStarts[i] {
			return i + 1
		}
	}
	return 0
}

// reconcileLookahead bounds how far the matcher may scan past a mismatch
// when aligning rendered fragments with the filtered fragment sequence.
const reconcileLookahead = 8

// Reconcile assigns canonical offsets to an independently produced fragment
// list for a page (for example, fragments regenerated by a render pass).
// Fragments are matched against the page's filtered fragments by
// normalized-text equality in order; unmatched fragments get offset -1.
func (c *Canonical) Reconcile(page int, frags []Fragment) []Fragment {
	out := make([]Fragment, len(frags))
	copy(out, frags)
	if page < 1 || page > len(c.Pages) {
		for i := range out {
			out[i].CanonicalOffset = -1
		}
		return out
	}

	// The filtered sequence for the page, in canonical order.
	var ref []Fragment
	for _, f := range c.Pages[page-1].Fragments {
		if f.CanonicalOffset >= 0 {
			ref = append(ref, f)
		}
	}

	ri := 0
	for i := range out {
		out[i].CanonicalOffset = -1
		norm := NormalizeText(out[i].Text)
		if norm == "" {
			continue
		}
		limit := ri + reconcileLookahead
		if limit > len(ref) {
			limit = len(ref)
		}
		for j := ri; j < limit; j++ {
			if NormalizeText(ref[j].Text) == norm {
				out[i].CanonicalOffset = ref[j].CanonicalOffset
				ri = j + 1
				break
			}
		}
	}
	return out
}

// isDigitInsensitiveRepeat reports whether an in-band fragment repeats
// across pages once digit runs are collapsed, catching numbered footers
// that differ only in the page number.
func (rm *RepetitionMap) isDigitInsensitiveRepeat(f Fragment, pageHeight float64) bool {
	if pageHeight <= 0 {
		return false
	}
	inTop := f.Y <= pageHeight*rm.cfg.TopBand
	inBottom := f.Y >= pageHeight*(1-rm.cfg.BottomBand)
	if !inTop && !inBottom {
		return false
	}
	norm := collapseDigits(NormalizeText(f.Text))
	if norm == "" || isStopWord(norm) {
		return false
	}
	pages := make(map[int]struct{})
	for k, set := range rm.pages {
		if collapseDigits(k.norm) == norm {
			for p := range set {
				pages[p] = struct{}{}
			}
		}
	}
	return len(pages) >= rm.cfg.LongRepeatPages
}

func collapseDigits(s string) string {
	var b strings.Builder
	inRun := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if !inRun {
				b.WriteByte('#')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}
