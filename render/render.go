// Package render serializes page render passes and rebuilds the fragment
// index as pages come back. The underlying renderer cannot tolerate two
// render operations on the same surface; the coordinator guarantees one
// pass at a time per document, cancelling per-page tasks before a new pass
// takes over.
package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/observability"
)

// Task is a cancelable in-flight page render handed out by the renderer.
type Task interface {
	Done() <-chan error
	Cancel()
}

// Renderer is the document rendering collaborator. Fragment order from
// TextContent is trusted for building the canonical buffer, but it is not
// guaranteed to match visual order; position-derived ordering is re-derived
// where needed.
type Renderer interface {
	// Render paints the page into a caller-owned surface at the scale
	// and returns a cancelable handle.
	Render(ctx context.Context, page int, scale float64) (Task, error)
	// TextContent returns the page's ordered positioned fragments.
	TextContent(ctx context.Context, page int) (doctext.PageText, error)
	// Layer reports the text-layer pixel size for the page at the scale.
	Layer(page int, scale float64) (width, height float64)
	PageCount() int
}

// Coordinator owns render serialization and generation bookkeeping for one
// document session. It replaces hidden module-level in-flight maps with an
// explicit per-session object.
type Coordinator struct {
	renderer Renderer
	index    *fragindex.Index
	canon    func() *doctext.Canonical
	log      observability.Logger

	// OnPageRendered fires after a page's fragments are re-indexed.
	OnPageRendered func(page int, gen uint64)

	mu       sync.Mutex
	inflight *pass
	gens     map[int]uint64
}

type pass struct {
	cancel context.CancelFunc
	done   chan struct{}

	taskMu sync.Mutex
	tasks  []Task
}

func (p *pass) addTask(t Task) {
	p.taskMu.Lock()
	p.tasks = append(p.tasks, t)
	p.taskMu.Unlock()
}

func (p *pass) cancelTasks() {
	p.taskMu.Lock()
	for _, t := range p.tasks {
		t.Cancel()
	}
	p.taskMu.Unlock()
}

// NewCoordinator creates a Coordinator. canon supplies the current
// canonical buffer for offset reconciliation and may return nil before the
// first extraction.
func NewCoordinator(r Renderer, index *fragindex.Index, canon func() *doctext.Canonical, log observability.Logger) *Coordinator {
	if log == nil {
		log = observability.Default()
	}
	return &Coordinator{
		renderer: r,
		index:    index,
		canon:    canon,
		log:      log,
		gens:     make(map[int]uint64),
	}
}

// Generation returns the page's current render generation.
func (c *Coordinator) Generation(page int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[page]
}

// EnqueueRender renders the pages sequentially at scale. If a pass is in
// flight its per-page tasks are cancelled and the pass is awaited, never
// abandoned, before this one starts.
func (c *Coordinator) EnqueueRender(ctx context.Context, pages []int, scale float64) error {
	c.mu.Lock()
	prev := c.inflight
	pctx, cancel := context.WithCancel(ctx)
	p := &pass{cancel: cancel, done: make(chan struct{})}
	c.inflight = p
	c.mu.Unlock()

	if prev != nil {
		prev.cancelTasks()
		prev.cancel()
		<-prev.done
	}

	defer func() {
		close(p.done)
		c.mu.Lock()
		if c.inflight == p {
			c.inflight = nil
		}
		c.mu.Unlock()
	}()

	for _, page := range pages {
		if err := pctx.Err(); err != nil {
			return err
		}
		if err := c.renderPage(pctx, p, page, scale); err != nil {
			return fmt.Errorf("render page %d: %w", page, err)
		}
	}
	return nil
}

func (c *Coordinator) renderPage(ctx context.Context, p *pass, page int, scale float64) error {
	task, err := c.renderer.Render(ctx, page, scale)
	if err != nil {
		return err
	}
	p.addTask(task)
	select {
	case err := <-task.Done():
		if err != nil {
			return err
		}
	case <-ctx.Done():
		task.Cancel()
		return ctx.Err()
	}

	pt, err := c.renderer.TextContent(ctx, page)
	if err != nil {
		return fmt.Errorf("text content: %w", err)
	}
	frags := pt.Fragments
	if canon := c.canon(); canon != nil {
		frags = canon.Reconcile(page, frags)
	}
	// TextContent geometry is in page points; project to layer pixels.
	frags = scaleFragments(frags, scale)

	layerW, layerH := c.renderer.Layer(page, scale)
	c.mu.Lock()
	c.gens[page]++
	gen := c.gens[page]
	c.mu.Unlock()

	c.index.Rebuild(page, gen, layerW, layerH, frags)
	c.log.Debug("page rendered",
		observability.Int("page", page),
		observability.Int("fragments", len(frags)))
	if c.OnPageRendered != nil {
		c.OnPageRendered(page, gen)
	}
	return nil
}

func scaleFragments(frags []doctext.Fragment, scale float64) []doctext.Fragment {
	if scale == 1 || scale <= 0 {
		return frags
	}
	out := make([]doctext.Fragment, len(frags))
	copy(out, frags)
	for i := range out {
		out[i].X *= scale
		out[i].Y *= scale
		out[i].Width *= scale
		out[i].Height *= scale
	}
	return out
}

// CancelAll cancels the in-flight pass and waits for it to wind down.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	p := c.inflight
	c.mu.Unlock()
	if p == nil {
		return
	}
	p.cancelTasks()
	p.cancel()
	<-p.done
}
