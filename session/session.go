// Package session ties the document pipeline together: text extraction,
// rendering, read-aloud playback, selection and highlight persistence for a
// single open document.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/highlight"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/render"
	"github.com/voxread/readkit/resolver"
	"github.com/voxread/readkit/selection"
	"github.com/voxread/readkit/speech"
	"github.com/voxread/readkit/store"
	"github.com/voxread/readkit/viewport"
)

// PageSource supplies both on-demand page content and a whole-document
// extraction pass.
type PageSource interface {
	render.Renderer
	Pages(ctx context.Context) ([]doctext.PageText, error)
}

// ProgressStore persists reading progress and the highlight set.
type ProgressStore interface {
	highlight.Persister
	Merge(ctx context.Context, docID string, fields map[string]any) error
}

// RemoteFeed delivers document-record snapshots pushed by the metadata
// service. The store client implements it; other ProgressStore
// implementations need not.
type RemoteFeed interface {
	Subscribe(ctx context.Context, docID string) (<-chan store.DocRecord, error)
}

// HighlightLoader reassembles geometry for records stored in reduced form.
type HighlightLoader interface {
	LoadHighlights(ctx context.Context, docID string) ([]highlight.Highlight, []string, error)
}

// Config tunes session behavior.
type Config struct {
	// ReExtractDelay is how long after open the thorough extraction pass
	// runs in the background.
	ReExtractDelay time.Duration
	Resolver       resolver.Config
	Speech         speech.Config
	Selection      selection.Config
	Overlay        viewport.OverlayStyle
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReExtractDelay: 2 * time.Second,
		Resolver:       resolver.DefaultConfig(),
		Speech:         speech.DefaultConfig(),
		Selection:      selection.DefaultConfig(),
		Overlay:        viewport.DefaultOverlayStyle(),
	}
}

// Session is the per-document facade.
type Session struct {
	docID  string
	cfg    Config
	source PageSource
	store  ProgressStore
	log    observability.Logger

	canon atomic.Pointer[doctext.Canonical]

	Index       *fragindex.Index
	Resolver    *resolver.Resolver
	Coordinator *render.Coordinator
	Speech      *speech.Orchestrator
	Highlights  *highlight.Collection
	Selection   *selection.Engine
	Projector   *viewport.Projector

	// OnReadingHighlight fires with the projected overlay for each accepted
	// resolution.
	OnReadingHighlight func(viewport.Overlay, fragindex.Entry)
	// OnReadingClear fires when playback stops and the overlay fades out.
	OnReadingClear func()

	mu        sync.Mutex
	lastPages []int
	lastScale float64
	closed    bool
	closeOnce sync.Once
	reExtract *time.Timer
}

// Open builds a session over the source, runs the quick extraction pass and
// schedules the thorough one. store may be nil for ephemeral sessions.
func Open(ctx context.Context, docID string, src PageSource, st ProgressStore, cfg Config, log observability.Logger) (*Session, error) {
	if log == nil {
		log = observability.Default()
	}
	if cfg.ReExtractDelay == 0 {
		cfg = DefaultConfig()
	}

	s := &Session{
		docID:  docID,
		cfg:    cfg,
		source: src,
		store:  st,
		log:    log,
		Index:  fragindex.New(),
	}

	start := time.Now()
	pages, err := src.Pages(ctx)
	if err != nil {
		return nil, err
	}
	canon := buildCanonical(pages, false, log)
	s.canon.Store(canon)
	log.Info("document extracted",
		observability.String("doc", docID),
		observability.Int("pages", len(pages)),
		observability.Int("chars", canon.Len()),
		observability.Float64(observability.MetricExtractTime, time.Since(start).Seconds()))

	s.Resolver = resolver.New(cfg.Resolver, s.Index, log)
	s.Resolver.SetCanonical(canon)
	s.Coordinator = render.NewCoordinator(src, s.Index, s.Canonical, log)
	s.Speech = speech.New(cfg.Speech, s.Resolver, s.Canonical, log)
	s.Selection = selection.NewEngine(cfg.Selection, s.Index, log)
	s.Projector = viewport.NewProjector(cfg.Overlay)

	var persist highlight.Persister
	if st != nil {
		persist = st
	}
	s.Highlights = highlight.NewCollection(docID, persist, log)

	s.Speech.OnHighlight = func(e fragindex.Entry) {
		if s.OnReadingHighlight == nil {
			return
		}
		bounds, ok := s.Index.HandleBounds(e)
		if !ok {
			return
		}
		s.OnReadingHighlight(s.Projector.ProjectReadingOverlay(bounds), e)
	}
	s.Speech.OnClear = func() {
		if s.OnReadingClear != nil {
			s.OnReadingClear()
		}
	}

	s.reExtract = time.AfterFunc(cfg.ReExtractDelay, s.runThoroughPass)
	return s, nil
}

// Canonical returns the current canonical buffer.
func (s *Session) Canonical() *doctext.Canonical {
	return s.canon.Load()
}

// Exhibit is an exhibit marker located in the document.
type Exhibit struct {
	Label  string `json:"label"`
	Page   int    `json:"page"`
	Offset int    `json:"offset"`
}

// Exhibits returns the exhibit markers found in the canonical buffer, in
// reading order.
func (s *Session) Exhibits() []Exhibit {
	c := s.canon.Load()
	if c == nil {
		return nil
	}
	spans := doctext.DetectExhibits(c.Buffer)
	out := make([]Exhibit, 0, len(spans))
	for _, sp := range spans {
		out = append(out, Exhibit{
			Label:  sp.Label,
			Page:   c.PageForOffset(sp.Start),
			Offset: sp.Start,
		})
	}
	return out
}

// FollowRemote applies snapshots pushed by the metadata service until ctx is
// done. Each snapshot replaces the highlight set wholesale; remote edits
// never merge into local undo history. No-op when the store does not push.
func (s *Session) FollowRemote(ctx context.Context) error {
	feed, ok := s.store.(RemoteFeed)
	if !ok {
		return nil
	}
	ch, err := feed.Subscribe(ctx, s.docID)
	if err != nil {
		return err
	}
	go func() {
		for rec := range ch {
			s.applyRemote(ctx, rec)
		}
	}()
	return nil
}

func (s *Session) applyRemote(ctx context.Context, rec store.DocRecord) {
	hs := rec.Highlights
	if rec.Reduced {
		loader, ok := s.store.(HighlightLoader)
		if !ok {
			return
		}
		full, _, err := loader.LoadHighlights(ctx, s.docID)
		if err != nil {
			s.log.Warn("remote snapshot reassembly failed", observability.Error("err", err))
			return
		}
		hs = full
	}
	s.Highlights.Load(hs)
	s.log.Debug("remote snapshot applied",
		observability.String("doc", s.docID),
		observability.Int("highlights", len(hs)))
}

// runThoroughPass re-extracts with the thorough boilerplate analysis and
// hot-swaps the buffer only when it actually differs.
func (s *Session) runThoroughPass() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	pages, scale := append([]int(nil), s.lastPages...), s.lastScale
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	pts, err := s.source.Pages(ctx)
	if err != nil {
		s.log.Warn("thorough extraction failed", observability.Error("err", err))
		return
	}
	next := buildCanonical(pts, true, s.log)
	if next.Buffer == s.canon.Load().Buffer {
		return
	}
	s.canon.Store(next)
	s.Resolver.SetCanonical(next)
	s.log.Info("canonical buffer swapped",
		observability.Int("chars", next.Len()))
	// Rendered pages carry offsets from the old buffer; reconcile them
	// against the new one.
	if len(pages) > 0 {
		if err := s.Coordinator.EnqueueRender(context.Background(), pages, scale); err != nil {
			s.log.Warn("post-swap render failed", observability.Error("err", err))
		}
	}
}

// RenderPages renders the given pages at scale and indexes their text.
func (s *Session) RenderPages(ctx context.Context, pages []int, scale float64) error {
	s.mu.Lock()
	s.lastPages = append([]int(nil), pages...)
	s.lastScale = scale
	s.mu.Unlock()
	return s.Coordinator.EnqueueRender(ctx, pages, scale)
}

// StartReading begins read-aloud from the canonical offset.
func (s *Session) StartReading(ctx context.Context, fromOffset int) error {
	return s.Speech.Play(ctx, fromOffset)
}

// PauseReading pauses playback and persists the resume offset.
func (s *Session) PauseReading(ctx context.Context) int {
	off := s.Speech.Pause()
	s.saveProgress(ctx, off)
	return off
}

// ResumeReading continues paused playback.
func (s *Session) ResumeReading() { s.Speech.Resume() }

// StopReading halts playback and persists progress. Safe to call more than
// once.
func (s *Session) StopReading(ctx context.Context) {
	off := s.Speech.Pause()
	s.Speech.Stop()
	if off >= 0 {
		s.saveProgress(ctx, off)
	}
}

func (s *Session) saveProgress(ctx context.Context, offset int) {
	if s.store == nil || offset < 0 {
		return
	}
	c := s.canon.Load()
	fields := map[string]any{"readingOffset": offset}
	if c != nil {
		fields["currentPage"] = c.PageForOffset(offset)
	}
	if err := s.store.Merge(ctx, s.docID, fields); err != nil {
		s.log.Warn("progress save failed", observability.Error("err", err))
	}
}

// BeginSelection starts a selection drag on a page.
func (s *Session) BeginSelection(page int, p selection.Point) *selection.Drag {
	var frags []doctext.Fragment
	var pageWidth float64
	for _, e := range s.Index.PageEntries(page) {
		b, ok := s.Index.HandleBounds(e)
		if !ok {
			continue
		}
		frags = append(frags, doctext.Fragment{
			Text: e.Text, Page: page,
			X: b.X, Y: b.Y, Width: b.Width, Height: b.Height,
			CanonicalOffset: e.Offset, ColumnIndex: -1,
		})
		if r := b.X + b.Width; r > pageWidth {
			pageWidth = r
		}
	}
	return s.Selection.Begin(page, frags, pageWidth, p)
}

// MoveSelection extends the drag.
func (s *Session) MoveSelection(d *selection.Drag, p selection.Point) {
	s.Selection.Move(d, p)
}

// FinishSelection ends the drag and stores the resulting highlight.
func (s *Session) FinishSelection(ctx context.Context, d *selection.Drag, color highlight.Color, scale float64, page int) (highlight.Highlight, bool, error) {
	layerW, layerH := s.source.Layer(page, scale)
	h, ok := s.Selection.Finish(d, color, scale, layerW, layerH)
	if !ok {
		return highlight.Highlight{}, false, nil
	}
	if err := s.Highlights.Add(ctx, h); err != nil {
		return highlight.Highlight{}, false, err
	}
	return h, true, nil
}

// ProjectHighlight maps a stored highlight's rects onto the current layer
// size for a page.
func (s *Session) ProjectHighlight(h highlight.Highlight, scale float64) []highlight.Rect {
	w, hh := s.source.Layer(h.Page, scale)
	return s.Projector.Project(h, viewport.Layer{Width: w, Height: hh})
}

// Close stops playback and all in-flight rendering. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.reExtract != nil {
			s.reExtract.Stop()
		}
		s.mu.Unlock()
		s.Speech.Stop()
		s.Coordinator.CancelAll()
	})
}

func buildCanonical(pages []doctext.PageText, thorough bool, log observability.Logger) *doctext.Canonical {
	analyzer := doctext.NewAnalyzer(doctext.DefaultAnalyzerConfig(), log)
	rep := analyzer.Analyze(pages)
	b := doctext.NewBuilder(log)
	b.Thorough = thorough
	return b.Build(pages, rep)
}
