// Package resolver maps approximate speech-progress offsets to exactly one
// rendered fragment. Speech backends report positions with drift, duplicate
// ticks and occasional out-of-order values; the resolver trusts the literal
// word text around the offset, never the raw number, and rejects anything
// that would move the highlight backward, skip a page, or jump to the wrong
// instance of a repeated word. Every rejection is a silent no-op: a briefly
// stale highlight beats a flickering or jumping one.
package resolver

import (
	"strings"
	"sync"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/observability"
)

// Config holds the guard thresholds. The values are empirically tuned;
// see DefaultConfig.
type Config struct {
	// PageBoundaryMargin is the trailing distance, in canonical bytes,
	// from the end of a page's content within which a transition to the
	// next page is permitted.
	PageBoundaryMargin int

	// ForwardCapMin and ForwardCapMax clamp the allowed forward jump,
	// which otherwise scales with how far the raw offset advanced since
	// the previous tick.
	ForwardCapMin int
	ForwardCapMax int

	// BackwardTolerance absorbs small negative jitter from rounding.
	BackwardTolerance int
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		PageBoundaryMargin: 35,
		ForwardCapMin:      50,
		ForwardCapMax:      200,
		BackwardTolerance:  10,
	}
}

// State is the per-document reading state. It is reset on playback stop and
// on new playback start, and mutated exclusively by Resolve.
type State struct {
	Tracking    bool
	LastOffset  int
	LastEntry   fragindex.Entry
	CurrentPage int

	lastRaw int
}

// Resolver resolves raw offsets against the current canonical buffer and
// fragment index. The canonical buffer may be hot-swapped between ticks;
// resolution re-derives the target word from text on every call, so a swap
// never corrupts in-flight tracking.
type Resolver struct {
	mu    sync.Mutex
	cfg   Config
	log   observability.Logger
	canon *doctext.Canonical
	index *fragindex.Index
	state State
}

// New creates a Resolver over the given index. SetCanonical must be called
// before the first Resolve.
func New(cfg Config, index *fragindex.Index, log observability.Logger) *Resolver {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = observability.Default()
	}
	return &Resolver{cfg: cfg, index: index, log: log}
}

// SetCanonical installs (or hot-swaps) the canonical buffer.
func (r *Resolver) SetCanonical(c *doctext.Canonical) {
	r.mu.Lock()
	r.canon = c
	r.mu.Unlock()
}

// Reset returns the resolver to Idle. Safe to call repeatedly.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.state = State{}
	r.mu.Unlock()
}

// State returns a snapshot of the reading state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastResolvedOffset returns the offset of the most recently accepted
// fragment, or -1 when idle. Pause/resume uses this, never the raw offset.
func (r *Resolver) LastResolvedOffset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Tracking {
		return -1
	}
	return r.state.LastOffset
}

// Resolve maps rawOffset to exactly one fragment entry. ok is false when
// the tick is rejected; the previous highlight stays in place.
func (r *Resolver) Resolve(rawOffset int) (fragindex.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canon == nil || rawOffset < 0 || rawOffset >= r.canon.Len() {
		return fragindex.Entry{}, false
	}

	// The word text around the raw offset is the reliable signal; the
	// numeric offset itself drifts.
	word, wstart, wend, ok := doctext.WordAt(r.canon.Buffer, rawOffset)
	if !ok {
		return fragindex.Entry{}, false
	}

	// Same-word continuation: the tick still points inside the fragment
	// we already highlighted. Re-accept it so repeated ticks are
	// idempotent and never regress.
	if r.state.Tracking && rawOffset >= r.state.LastOffset && rawOffset < r.state.LastEntry.End() {
		r.state.lastRaw = rawOffset
		return r.state.LastEntry, true
	}

	var entry fragindex.Entry
	var found bool
	if r.state.Tracking && r.sameWordAsLast(word) {
		entry, found = r.nextDuplicateInstance(word)
	} else {
		entry, found = r.pickCandidate(rawOffset, wstart, wend)
	}
	if !found {
		return fragindex.Entry{}, false
	}

	if !r.admit(entry, rawOffset) {
		return fragindex.Entry{}, false
	}

	if ok := r.validateText(&entry, rawOffset); !ok {
		return fragindex.Entry{}, false
	}

	r.state.Tracking = true
	r.state.LastOffset = entry.Offset
	r.state.LastEntry = entry
	r.state.CurrentPage = entry.Page
	r.state.lastRaw = rawOffset
	return entry, true
}

// wordKey reduces fragment text to a comparable word: lowercased and
// stripped of surrounding punctuation, so "Cat," and "cat" compare equal.
func wordKey(s string) string {
	return strings.Trim(doctext.NormalizeText(s), ".,;:!?\"'()[]")
}

func (r *Resolver) sameWordAsLast(word string) bool {
	k := wordKey(word)
	return k != "" && wordKey(r.state.LastEntry.Text) == k
}

// nextDuplicateInstance handles the duplicate-word guard: when the target
// word equals the previously highlighted word, picking the candidate whose
// offset is numerically closest causes jump-to-wrong-instance bugs. The
// only acceptable candidate is the immediate next instance of that exact
// word strictly forward of the last highlight (no other instance of the
// word in between), on the current page or, at a boundary, the first word
// of the next page. If no such instance exists the tick is rejected rather
// than guessed.
func (r *Resolver) nextDuplicateInstance(word string) (fragindex.Entry, bool) {
	key := wordKey(word)
	for _, e := range r.index.PageEntries(r.state.CurrentPage) {
		if e.Offset <= r.state.LastOffset {
			continue
		}
		if wordKey(e.Text) == key {
			return e, true
		}
	}
	// No instance left on this page: the next one may open the following
	// page, but only at a boundary.
	if !r.nearPageEnd(r.state.LastOffset) {
		return fragindex.Entry{}, false
	}
	next := r.index.PageEntries(r.state.CurrentPage + 1)
	if len(next) > 0 && wordKey(next[0].Text) == key {
		return next[0], true
	}
	return fragindex.Entry{}, false
}

// pickCandidate gathers the fragments covering the referenced word and
// picks the first admissible one in offset order.
func (r *Resolver) pickCandidate(rawOffset, wstart, wend int) (fragindex.Entry, bool) {
	cands := r.index.Query(wstart, wend)
	if len(cands) == 0 {
		return fragindex.Entry{}, false
	}
	if !r.state.Tracking {
		return cands[0], true
	}
	for _, e := range cands {
		if r.admit(e, rawOffset) {
			return e, true
		}
	}
	return fragindex.Entry{}, false
}

// admit applies the page-boundary, forward-cap and backward guards.
func (r *Resolver) admit(e fragindex.Entry, rawOffset int) bool {
	if !r.state.Tracking {
		return true
	}
	switch e.Page {
	case r.state.CurrentPage:
		// Same page is always a permitted page.
	case r.state.CurrentPage + 1:
		// Only the reader's own position gates the transition; the
		// candidate's offset is trivially near the boundary by being on
		// the next page.
		if !r.nearPageEnd(r.state.LastOffset) {
			return false
		}
	default:
		// Jumps to any page other than current or current+1 are
		// always rejected.
		return false
	}

	delta := e.Offset - r.state.LastOffset
	if delta < -r.cfg.BackwardTolerance {
		return false
	}
	if delta > 0 {
		allowed := rawOffset - r.state.lastRaw
		if allowed < r.cfg.ForwardCapMin {
			allowed = r.cfg.ForwardCapMin
		}
		if allowed > r.cfg.ForwardCapMax {
			allowed = r.cfg.ForwardCapMax
		}
		if delta > allowed {
			return false
		}
	}
	return true
}

// nearPageEnd reports whether the offset lies within the trailing boundary
// margin of the current page's content. Offsets past the page end (the
// separator or the next page) also qualify when close enough.
func (r *Resolver) nearPageEnd(off int) bool {
	end := r.canon.PageEnd(r.state.CurrentPage)
	if end < 0 {
		return false
	}
	return off >= end-r.cfg.PageBoundaryMargin && off <= end+r.cfg.PageBoundaryMargin
}

// validateText verifies that the canonical byte at rawOffset matches the
// corresponding byte of the chosen fragment, treating all whitespace as
// equal. On mismatch it searches nearby fragments on admissible pages for
// one that does validate before giving up.
func (r *Resolver) validateText(e *fragindex.Entry, rawOffset int) bool {
	if r.entryMatches(*e, rawOffset) {
		return true
	}
	for _, n := range r.index.Query(e.Offset-r.cfg.BackwardTolerance, e.End()+r.cfg.BackwardTolerance) {
		if n.Offset == e.Offset && n.Page == e.Page {
			continue
		}
		if r.admit(n, rawOffset) && r.entryMatches(n, rawOffset) {
			*e = n
			return true
		}
	}
	return false
}

func (r *Resolver) entryMatches(e fragindex.Entry, rawOffset int) bool {
	text := strings.TrimSpace(e.Text)
	rel := rawOffset - e.Offset
	if rel < 0 {
		rel = 0
	}
	if rel >= len(text) {
		rel = len(text) - 1
	}
	if rel < 0 {
		return false
	}
	abs := e.Offset + rel
	if abs < 0 || abs >= r.canon.Len() {
		return false
	}
	return doctext.CharsEquivalent(text[rel], r.canon.Buffer[abs])
}
