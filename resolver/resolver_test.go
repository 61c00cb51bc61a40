package resolver

import (
	"fmt"
	"strings"
	"testing"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/observability"
)

// fixture builds a canonical buffer and index from per-page word lists,
// mirroring what a render pass produces.
func fixture(t *testing.T, pages ...[]string) (*doctext.Canonical, *fragindex.Index, *Resolver) {
	t.Helper()
	var pts []doctext.PageText
	for i, words := range pages {
		p := doctext.PageText{Page: i + 1, Width: 612, Height: 792}
		x := 40.0
		for _, w := range words {
			p.Fragments = append(p.Fragments, doctext.Fragment{
				Text: w, Page: i + 1,
				X: x, Y: 300, Width: float64(len(w)) * 7, Height: 14,
				CanonicalOffset: -1, ColumnIndex: -1,
			})
			x += float64(len(w))*7 + 5
		}
		pts = append(pts, p)
	}
	c := doctext.NewBuilder(observability.NopLogger{}).Build(pts, nil)
	ix := fragindex.New()
	for i := range c.Pages {
		ix.Rebuild(i+1, 1, 800, 1000, c.Pages[i].Fragments)
	}
	r := New(Config{}, ix, observability.NopLogger{})
	r.SetCanonical(c)
	return c, ix, r
}

func mustResolve(t *testing.T, r *Resolver, raw int) fragindex.Entry {
	t.Helper()
	e, ok := r.Resolve(raw)
	if !ok {
		t.Fatalf("Resolve(%d) rejected, state=%+v", raw, r.State())
	}
	return e
}

func TestResolveFirstTick(t *testing.T) {
	_, _, r := fixture(t, []string{"the", "cat", "sat."})
	e := mustResolve(t, r, 0)
	if e.Text != "the" || e.Offset != 0 {
		t.Fatalf("entry = %+v", e)
	}
	st := r.State()
	if !st.Tracking || st.CurrentPage != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestResolveIdempotent(t *testing.T) {
	_, _, r := fixture(t, []string{"the", "cat", "sat."})
	first := mustResolve(t, r, 5)
	if first.Text != "cat" {
		t.Fatalf("entry = %+v", first)
	}
	for i := 0; i < 3; i++ {
		again := mustResolve(t, r, 5)
		if again.Offset != first.Offset {
			t.Fatalf("repeat tick moved the highlight: %+v", again)
		}
	}
	// A tick at a different byte of the same word is also a no-move.
	again := mustResolve(t, r, 6)
	if again.Offset != first.Offset {
		t.Fatalf("same-word tick moved the highlight: %+v", again)
	}
}

func TestResolveDuplicateWordNextInstance(t *testing.T) {
	// "the cat sat. the cat ran." -- after the first cat, a tick whose
	// word is again "cat" must land on the second instance, never jump
	// elsewhere or stay glued by numeric distance.
	_, _, r := fixture(t, []string{"the", "cat", "sat.", "the", "cat", "ran."})
	mustResolve(t, r, 0) // the@0
	mustResolve(t, r, 4) // cat@4

	e := mustResolve(t, r, 17)
	if e.Offset != 17 || strings.TrimSpace(e.Text) != "cat" {
		t.Fatalf("duplicate word resolved to %+v, want the instance at 17", e)
	}
}

func TestResolveDuplicateWordImmediateNext(t *testing.T) {
	// Three instances in a row: even a raw offset pointing at the third
	// must advance to the immediate next instance only.
	_, _, r := fixture(t, []string{"cat", "cat", "cat"})
	mustResolve(t, r, 0) // cat@0
	e := mustResolve(t, r, 8)
	if e.Offset != 4 {
		t.Fatalf("skipped an instance: landed at %d, want 4", e.Offset)
	}
}

func TestResolveDuplicateWordShuffledIndex(t *testing.T) {
	// Paint order is not reading order: rebuild the page with the
	// fragments shuffled and a display-only header interleaved. The
	// duplicate-word walk must still advance to the immediate next
	// instance, not whichever one the renderer reported first.
	c, ix, r := fixture(t, []string{"the", "cat", "sat.", "cat", "cat"})
	frags := append([]doctext.Fragment(nil), c.Pages[0].Fragments...)
	for i, j := 0, len(frags)-1; i < j; i, j = i+1, j-1 {
		frags[i], frags[j] = frags[j], frags[i]
	}
	frags = append(frags[:1], append([]doctext.Fragment{{
		Text: "Header", Page: 1, X: 40, Y: 5, Width: 48, Height: 12,
		CanonicalOffset: -1, ColumnIndex: -1,
	}}, frags[1:]...)...)
	ix.Rebuild(1, 2, 800, 1000, frags)

	mustResolve(t, r, 4) // cat@4
	e := mustResolve(t, r, 17)
	if e.Offset != 13 {
		t.Fatalf("skipped an instance: landed at %d, want 13", e.Offset)
	}
}

func TestResolveBackwardRejected(t *testing.T) {
	_, _, r := fixture(t, []string{"alpha", "beta", "gamma", "delta", "omega"})
	mustResolve(t, r, 0)
	e := mustResolve(t, r, 18) // delta@18
	if e.Offset != 18 {
		t.Fatalf("setup entry = %+v", e)
	}
	if _, ok := r.Resolve(0); ok {
		t.Fatal("a large backward jump must be rejected")
	}
	if got := r.LastResolvedOffset(); got != 18 {
		t.Fatalf("rejection mutated state: offset %d", got)
	}
}

func TestResolveBackwardWithinTolerance(t *testing.T) {
	_, _, r := fixture(t, []string{"alpha", "beta", "gamma"})
	mustResolve(t, r, 6) // beta@6
	e, ok := r.Resolve(0)
	if !ok || e.Offset != 0 {
		t.Fatalf("small backward jitter should be absorbed, got %+v ok=%v", e, ok)
	}
}

func TestResolveForwardCap(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i) // 4 bytes each, offsets i*5
	}
	_, _, r := fixture(t, words)
	mustResolve(t, r, 0)

	// 250 bytes ahead exceeds the cap even scaled by the raw advance.
	if _, ok := r.Resolve(250); ok {
		t.Fatal("a 250-byte forward jump must be rejected")
	}
	// 150 bytes is inside the raw-advance-scaled allowance.
	e, ok := r.Resolve(150)
	if !ok || e.Offset != 150 {
		t.Fatalf("scaled forward jump rejected: %+v ok=%v", e, ok)
	}
}

func TestResolvePageTransitionGating(t *testing.T) {
	page1 := make([]string, 60)
	for i := range page1 {
		page1[i] = fmt.Sprintf("a%03d", i)
	}
	c, _, r := fixture(t, page1, []string{"next", "page", "words"})

	mustResolve(t, r, 0)
	p2 := c.PageStart(2)

	// Mid-page: a tick on the next page is rejected.
	if _, ok := r.Resolve(p2); ok {
		t.Fatal("page transition from mid-page must be rejected")
	}

	// Walk to the end of page 1, then the transition is allowed.
	end := c.PageEnd(1)
	for off := 0; off < end; off += 40 {
		r.Resolve(off)
	}
	mustResolve(t, r, end-3)
	e, ok := r.Resolve(p2)
	if !ok || e.Page != 2 {
		t.Fatalf("boundary transition rejected: %+v ok=%v", e, ok)
	}
}

func TestResolvePageSkipAlwaysRejected(t *testing.T) {
	c, _, r := fixture(t,
		[]string{"one", "two", "three"},
		[]string{"four", "five"},
		[]string{"six", "seven"},
	)
	mustResolve(t, r, 0)
	if _, ok := r.Resolve(c.PageStart(3)); ok {
		t.Fatal("a jump skipping a page must be rejected even near the boundary")
	}
}

func TestResolveOutOfBounds(t *testing.T) {
	c, _, r := fixture(t, []string{"alpha"})
	if _, ok := r.Resolve(-1); ok {
		t.Fatal("negative offset accepted")
	}
	if _, ok := r.Resolve(c.Len()); ok {
		t.Fatal("offset past the buffer accepted")
	}
}

func TestResolveHotSwapKeepsTracking(t *testing.T) {
	// Re-extraction swaps the buffer; the next tick re-derives the word
	// from text and keeps tracking without a reset.
	pages := [][]string{{"alpha", "beta", "gamma"}}
	_, ix, r := fixture(t, pages...)
	mustResolve(t, r, 0)

	var pts []doctext.PageText
	p := doctext.PageText{Page: 1, Width: 612, Height: 792}
	for i, w := range []string{"alpha", "beta", "gamma"} {
		p.Fragments = append(p.Fragments, doctext.Fragment{
			Text: w, Page: 1, X: float64(40 + i*50), Y: 300, Width: 35, Height: 14,
			CanonicalOffset: -1, ColumnIndex: -1,
		})
	}
	pts = append(pts, p)
	swapped := doctext.NewBuilder(observability.NopLogger{}).Build(pts, nil)
	r.SetCanonical(swapped)
	ix.Rebuild(1, 2, 800, 1000, swapped.Pages[0].Fragments)

	e, ok := r.Resolve(6) // beta in the swapped buffer
	if !ok || strings.TrimSpace(e.Text) != "beta" {
		t.Fatalf("post-swap resolve = %+v ok=%v", e, ok)
	}
	if e.Generation != 2 {
		t.Fatalf("entry should come from the new index generation, got %d", e.Generation)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	_, _, r := fixture(t, []string{"alpha", "beta"})
	mustResolve(t, r, 0)
	r.Reset()
	if r.LastResolvedOffset() != -1 {
		t.Fatal("reset resolver must report -1")
	}
	st := r.State()
	if st.Tracking {
		t.Fatal("reset resolver must not be tracking")
	}
}
