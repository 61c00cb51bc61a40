package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/resolver"
)

func speechFixture(t *testing.T, words ...string) (*doctext.Canonical, *resolver.Resolver) {
	t.Helper()
	p := doctext.PageText{Page: 1, Width: 612, Height: 792}
	x := 40.0
	for _, w := range words {
		p.Fragments = append(p.Fragments, doctext.Fragment{
			Text: w, Page: 1, X: x, Y: 300, Width: float64(len(w)) * 7, Height: 14,
			CanonicalOffset: -1, ColumnIndex: -1,
		})
		x += float64(len(w))*7 + 5
	}
	c := doctext.NewBuilder(observability.NopLogger{}).Build([]doctext.PageText{p}, nil)
	ix := fragindex.New()
	ix.Rebuild(1, 1, 800, 1000, c.Pages[0].Fragments)
	res := resolver.New(resolver.Config{}, ix, observability.NopLogger{})
	res.SetCanonical(c)
	return c, res
}

// fakeLocal reports a word boundary for every word start in the utterance.
type fakeLocal struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeLocal) Speak(ctx context.Context, u Utterance, onBoundary func(Boundary)) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u.Text)
	f.mu.Unlock()
	inWord := false
	for i := 0; i < len(u.Text); i++ {
		if err := ctx.Err(); err != nil {
			return ErrInterrupted
		}
		space := u.Text[i] == ' ' || u.Text[i] == '\n' || u.Text[i] == '\t'
		if !space && !inWord {
			onBoundary(Boundary{Kind: BoundaryWord, CharIndex: i})
		}
		inWord = !space
	}
	return nil
}

func (f *fakeLocal) Cancel() {}

func (f *fakeLocal) utterances() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func newTestOrchestrator(c *doctext.Canonical, res *resolver.Resolver) *Orchestrator {
	cfg := DefaultConfig()
	cfg.HeadingPause = time.Millisecond
	cfg.TickInterval = 2 * time.Millisecond
	cfg.Warmup = 0
	cfg.SlowStart = 0
	cfg.MaxCharsPerSecond = 1e6
	return New(cfg, res, func() *doctext.Canonical { return c }, observability.NopLogger{})
}

func collectHighlights(o *Orchestrator) (offsets func() []int, cleared chan struct{}) {
	var mu sync.Mutex
	var got []int
	cleared = make(chan struct{}, 2)
	o.OnHighlight = func(e fragindex.Entry) {
		mu.Lock()
		got = append(got, e.Offset)
		mu.Unlock()
	}
	o.OnClear = func() {
		select {
		case cleared <- struct{}{}:
		default:
		}
	}
	return func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), got...)
	}, cleared
}

func TestLocalPlaybackHighlightsMonotonically(t *testing.T) {
	c, res := speechFixture(t, "Alpha", "beta", "gamma.", "Delta", "ends.")
	o := newTestOrchestrator(c, res)
	backend := &fakeLocal{}
	o.UseLocal(backend, "en-US")

	offsets, cleared := collectHighlights(o)
	require.NoError(t, o.Play(context.Background(), 0))

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}

	got := offsets()
	require.NotEmpty(t, got, "word boundaries must produce highlights")
	assert.Equal(t, 0, got[0], "playback starts at the first word")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1], "highlights never move backward")
	}
	assert.NotEmpty(t, backend.utterances())
	assert.False(t, o.IsPlaying())
}

func TestPlayRejectsBadOffset(t *testing.T) {
	c, res := speechFixture(t, "only", "words")
	o := newTestOrchestrator(c, res)
	o.UseLocal(&fakeLocal{}, "en-US")
	assert.Error(t, o.Play(context.Background(), -1))
	assert.Error(t, o.Play(context.Background(), c.Len()))
}

func TestPauseReturnsResolvedOffset(t *testing.T) {
	c, res := speechFixture(t, "Alpha", "beta", "gamma.")
	o := newTestOrchestrator(c, res)

	// No session: pause reports the resolver's idle value.
	assert.Equal(t, -1, o.Pause())

	o.UseLocal(&fakeLocal{}, "en-US")
	_, cleared := collectHighlights(o)
	require.NoError(t, o.Play(context.Background(), 0))
	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}
	// Finished playback resets to idle; a later pause must not invent an
	// offset.
	assert.Equal(t, -1, o.Pause())
	_ = c
}

// lateTickLocal reports the first word, blocks, and delivers one in-flight
// boundary while winding down after cancellation.
type lateTickLocal struct {
	lateIndex int
}

func (f *lateTickLocal) Speak(ctx context.Context, u Utterance, onBoundary func(Boundary)) error {
	onBoundary(Boundary{Kind: BoundaryWord, CharIndex: 0})
	<-ctx.Done()
	onBoundary(Boundary{Kind: BoundaryWord, CharIndex: f.lateIndex})
	return ErrInterrupted
}

func (f *lateTickLocal) Cancel() {}

func TestPauseIncludesRacingTick(t *testing.T) {
	c, res := speechFixture(t, "Alpha", "beta", "gamma.")
	o := newTestOrchestrator(c, res)
	o.UseLocal(&lateTickLocal{lateIndex: 6}, "en-US")

	first := make(chan struct{})
	var once sync.Once
	o.OnHighlight = func(fragindex.Entry) { once.Do(func() { close(first) }) }

	require.NoError(t, o.Play(context.Background(), 0))
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first boundary never resolved")
	}

	// The boundary delivered during the wind-down must land in the
	// returned resume offset, not one word behind it.
	assert.Equal(t, 6, o.Pause())
	assert.False(t, o.IsPlaying())
	_ = c
}

func TestStopIsIdempotent(t *testing.T) {
	c, res := speechFixture(t, "Alpha", "beta.")
	o := newTestOrchestrator(c, res)
	o.UseLocal(&fakeLocal{}, "en-US")
	require.NoError(t, o.Play(context.Background(), 0))
	o.Stop()
	o.Stop()
	assert.False(t, o.IsPlaying())
	assert.Equal(t, -1, res.LastResolvedOffset())
}

// fakePlayback completes after a short delay, reporting a mid-chunk clock.
type fakePlayback struct {
	done chan error
}

func newFakePlayback() *fakePlayback {
	p := &fakePlayback{done: make(chan error)}
	time.AfterFunc(15*time.Millisecond, func() { close(p.done) })
	return p
}

func (p *fakePlayback) Position() (time.Duration, time.Duration, bool) {
	return 500 * time.Millisecond, time.Second, true
}
func (p *fakePlayback) Pause()             {}
func (p *fakePlayback) Resume()            {}
func (p *fakePlayback) Stop()              {}
func (p *fakePlayback) Done() <-chan error { return p.done }

type fakeCloud struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeCloud) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return []byte("audio"), "audio/mpeg", nil
}

type fakePlayer struct{}

func (fakePlayer) Play(ctx context.Context, chunk AudioChunk) (Playback, error) {
	return newFakePlayback(), nil
}

func TestCloudPlaybackChunksInOrder(t *testing.T) {
	c, res := speechFixture(t, "Alpha", "beta.", "Gamma", "delta.", "Epsilon", "zeta.")
	o := newTestOrchestrator(c, res)
	o.cfg.ChunkBytes = 14
	cloud := &fakeCloud{}
	o.UseCloud(cloud, fakePlayer{}, "voice-1")

	offsets, cleared := collectHighlights(o)
	require.NoError(t, o.Play(context.Background(), 0))
	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("cloud playback did not finish")
	}

	cloud.mu.Lock()
	texts := append([]string(nil), cloud.texts...)
	cloud.mu.Unlock()
	require.Greater(t, len(texts), 1, "the buffer must chunk")
	// Chunks cover the buffer in order.
	joined := ""
	for _, tx := range texts {
		joined += tx
	}
	assert.Equal(t, c.Buffer, joined)

	got := offsets()
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}
}
