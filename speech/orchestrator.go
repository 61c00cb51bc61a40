package speech

import (
	"context"
	"errors"
	"time"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/resolver"
)

// BackendKind selects which synthesis path a playback uses.
type BackendKind int

const (
	BackendLocal BackendKind = iota
	BackendCloud
)

// Config holds orchestrator tuning. The cloud smoothing numbers compensate
// for the audio clock's startup noise and are deliberately kept as-is.
type Config struct {
	// Warmup is the initial span of audio time whose position reports
	// are ignored entirely.
	Warmup time.Duration
	// SlowStart is the span during which apparent progress is halved.
	SlowStart time.Duration
	// MaxCharsPerSecond caps estimated advancement before the resolver
	// ever sees a tick.
	MaxCharsPerSecond float64
	// TickInterval is the cloud-path polling cadence.
	TickInterval time.Duration
	// HeadingPause is inserted after a heading segment on the local path.
	HeadingPause time.Duration
	// ChunkBytes is the cloud per-request text budget.
	ChunkBytes int
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Warmup:            300 * time.Millisecond,
		SlowStart:         time.Second,
		MaxCharsPerSecond: 35,
		TickInterval:      100 * time.Millisecond,
		HeadingPause:      450 * time.Millisecond,
		ChunkBytes:        CloudChunkBytes,
	}
}

// Orchestrator owns playback lifecycle across both backends and feeds
// normalized offset estimates to the resolver.
type Orchestrator struct {
	cfg    Config
	log    observability.Logger
	res    *resolver.Resolver
	canon  func() *doctext.Canonical
	local  LocalBackend
	cloud  CloudBackend
	player Player

	// OnHighlight fires on every accepted resolution; OnClear fires when
	// playback stops and the overlay must fade out. OnError receives
	// real backend failures, never intentional interruption.
	OnHighlight func(fragindex.Entry)
	OnClear     func()
	OnError     func(error)

	kind  BackendKind
	lang  string
	voice string
	rate  float64

	// starting is the single-flight guard for Play; sess is the active
	// playback session.
	starting bool
	sess     *session
	mu       chMutex
}

// session is the per-playback state object. Named fields replace ad hoc
// captured flags so the tick handlers share one explicit record.
type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	chunkIndex int
	// lastEstimate is the last smoothed canonical offset handed to the
	// resolver on the cloud path.
	lastEstimate int
	lastTickAt   time.Time
	paused       bool
	playback     Playback
}

// chMutex is a channel-based mutex so playback control never blocks the
// caller indefinitely while a session winds down.
type chMutex chan struct{}

func (m chMutex) lock()   { m <- struct{}{} }
func (m chMutex) unlock() { <-m }

// New creates an Orchestrator. canon is called on each playback start so a
// hot-swapped buffer is always the one segmented.
func New(cfg Config, res *resolver.Resolver, canon func() *doctext.Canonical, log observability.Logger) *Orchestrator {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = observability.Default()
	}
	return &Orchestrator{
		cfg:   cfg,
		log:   log,
		res:   res,
		canon: canon,
		rate:  1.0,
		mu:    make(chMutex, 1),
	}
}

// UseLocal installs the local backend and selects it.
func (o *Orchestrator) UseLocal(b LocalBackend, lang string) {
	o.mu.lock()
	o.local, o.lang, o.kind = b, lang, BackendLocal
	o.mu.unlock()
}

// UseCloud installs the cloud backend with its audio player and selects it.
func (o *Orchestrator) UseCloud(b CloudBackend, p Player, voice string) {
	o.mu.lock()
	o.cloud, o.player, o.voice, o.kind = b, p, voice, BackendCloud
	o.mu.unlock()
}

// SetRate adjusts the speaking rate for subsequent utterances.
func (o *Orchestrator) SetRate(rate float64) {
	o.mu.lock()
	if rate > 0 {
		o.rate = rate
	}
	o.mu.unlock()
}

// IsPlaying reports whether a playback session is active and not paused.
func (o *Orchestrator) IsPlaying() bool {
	o.mu.lock()
	defer o.mu.unlock()
	return o.sess != nil && !o.sess.paused
}

// Play starts playback from the canonical offset. Any prior session is
// fully cancelled and awaited before the new one starts, so two speech
// streams can never overlap. A second Play while a start is in flight
// returns ErrBusy.
func (o *Orchestrator) Play(ctx context.Context, fromOffset int) error {
	o.mu.lock()
	if o.starting {
		o.mu.unlock()
		return ErrBusy
	}
	o.starting = true
	prev := o.sess
	o.sess = nil
	o.mu.unlock()

	defer func() {
		o.mu.lock()
		o.starting = false
		o.mu.unlock()
	}()

	o.teardown(prev)
	o.res.Reset()

	c := o.canon()
	if c == nil || fromOffset < 0 || fromOffset >= c.Len() {
		return errors.New("speech: no readable text at start offset")
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{ctx: sctx, cancel: cancel, done: make(chan struct{}), lastEstimate: fromOffset}

	o.mu.lock()
	kind, lang, voice, rate := o.kind, o.lang, o.voice, o.rate
	o.sess = s
	o.mu.unlock()

	go func() {
		defer close(s.done)
		var err error
		switch kind {
		case BackendCloud:
			err = o.runCloud(s, c, fromOffset, voice)
		default:
			err = o.runLocal(s, c, fromOffset, lang, rate)
		}
		o.finish(s, err)
	}()

	// Caller cancellation stops the session but playback otherwise
	// outlives the triggering call.
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-s.done:
			}
		}()
	}
	return nil
}

// Pause suspends playback and returns the resume offset: the most recently
// resolved offset, never the raw estimate, so resuming neither restarts
// mid-word nor skips ahead.
func (o *Orchestrator) Pause() int {
	o.mu.lock()
	s := o.sess
	o.mu.unlock()

	if s == nil {
		return o.res.LastResolvedOffset()
	}
	o.mu.lock()
	s.paused = true
	pb := s.playback
	o.mu.unlock()
	if pb != nil {
		pb.Pause()
	} else {
		// The local backend has no pause; cancel and rely on the
		// resume offset.
		s.cancel()
		if o.local != nil {
			o.local.Cancel()
		}
		<-s.done
		o.mu.lock()
		if o.sess == s {
			o.sess = nil
		}
		o.mu.unlock()
	}
	// Read only after playback has stopped: a boundary tick racing the
	// pause still lands in the returned offset.
	return o.res.LastResolvedOffset()
}

// Resume continues a paused cloud playback. Local playback resumes via a
// fresh Play at the offset Pause returned.
func (o *Orchestrator) Resume() {
	o.mu.lock()
	s := o.sess
	o.mu.unlock()
	if s == nil {
		return
	}
	o.mu.lock()
	s.paused = false
	pb := s.playback
	o.mu.unlock()
	if pb != nil {
		pb.Resume()
	}
}

// Stop cancels playback, clears pending timers and the overlay. Idempotent
// and safe to call at any time.
func (o *Orchestrator) Stop() {
	o.mu.lock()
	s := o.sess
	o.sess = nil
	o.mu.unlock()

	o.teardown(s)
	o.res.Reset()
	if o.OnClear != nil {
		o.OnClear()
	}
}

func (o *Orchestrator) teardown(s *session) {
	if s == nil {
		return
	}
	s.cancel()
	o.mu.lock()
	local := o.local
	pb := s.playback
	o.mu.unlock()
	if local != nil {
		local.Cancel()
	}
	if pb != nil {
		pb.Stop()
	}
	<-s.done
}

// finish runs when a session's goroutine ends on its own.
func (o *Orchestrator) finish(s *session, err error) {
	o.mu.lock()
	active := o.sess == s
	paused := s.paused
	if active {
		o.sess = nil
	}
	o.mu.unlock()
	if !active {
		return // torn down by a newer Play or Stop
	}
	// A paused wind-down keeps the resolver state: Pause reads the resume
	// offset after the session drains, and the next Play resets anyway.
	if !paused {
		o.res.Reset()
	}
	if o.OnClear != nil {
		o.OnClear()
	}
	if err != nil && !errors.Is(err, ErrInterrupted) && !errors.Is(err, context.Canceled) {
		o.log.Error("playback failed", observability.Error("err", err))
		if o.OnError != nil {
			o.OnError(err)
		}
	}
}

// tick feeds one offset estimate to the resolver and paints on acceptance.
func (o *Orchestrator) tick(offset int) {
	entry, ok := o.res.Resolve(offset)
	if !ok {
		return
	}
	if o.OnHighlight != nil {
		o.OnHighlight(entry)
	}
}

// runLocal speaks segment by segment; each backend boundary carries an
// in-segment byte index that maps to segment start + index.
func (o *Orchestrator) runLocal(s *session, c *doctext.Canonical, from int, lang string, rate float64) error {
	o.mu.lock()
	backend := o.local
	o.mu.unlock()
	if backend == nil {
		return errors.New("speech: no local backend configured")
	}
	for _, seg := range doctext.SegmentForSpeech(c.Buffer, from) {
		if err := s.ctx.Err(); err != nil {
			return ErrInterrupted
		}
		segStart := seg.Start
		err := backend.Speak(s.ctx, Utterance{Text: seg.Text, Lang: lang, Rate: rate}, func(b Boundary) {
			if b.Kind != BoundaryWord {
				return
			}
			o.tick(segStart + b.CharIndex)
		})
		if err != nil {
			if errors.Is(err, ErrInterrupted) && s.ctx.Err() == nil {
				// Interruption we did not ask for: treat as the
				// backend flushing its queue, keep going.
				continue
			}
			return err
		}
		if seg.IsHeading {
			select {
			case <-time.After(o.cfg.HeadingPause):
			case <-s.ctx.Done():
				return ErrInterrupted
			}
		}
	}
	return nil
}

// runCloud plays pre-fetched audio chunks and interpolates the position
// from the audio clock, smoothed before the resolver ever sees it.
func (o *Orchestrator) runCloud(s *session, c *doctext.Canonical, from int, voice string) error {
	o.mu.lock()
	backend, player := o.cloud, o.player
	o.mu.unlock()
	if backend == nil || player == nil {
		return errors.New("speech: no cloud backend configured")
	}
	chunks := ChunkText(c.Buffer, from, o.cfg.ChunkBytes)
	feed := newChunkFeed(s.ctx, backend, voice, chunks)
	for {
		chunk, err, ok := feed.next(s.ctx)
		if !ok {
			return nil
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrInterrupted
			}
			return err
		}
		if err := o.playChunk(s, chunk); err != nil {
			return err
		}
		s.chunkIndex++
	}
}

func (o *Orchestrator) playChunk(s *session, chunk AudioChunk) error {
	o.mu.lock()
	player := o.player
	o.mu.unlock()
	pb, err := player.Play(s.ctx, chunk)
	if err != nil {
		return err
	}
	o.mu.lock()
	s.playback = pb
	s.lastEstimate = chunk.Start
	s.lastTickAt = time.Time{}
	o.mu.unlock()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	defer func() {
		o.mu.lock()
		s.playback = nil
		o.mu.unlock()
	}()

	for {
		select {
		case <-ticker.C:
			o.cloudTick(s, chunk, pb)
		case err := <-pb.Done():
			if err != nil && s.ctx.Err() != nil {
				return ErrInterrupted
			}
			return err
		case <-s.ctx.Done():
			pb.Stop()
			<-pb.Done()
			return ErrInterrupted
		}
	}
}

// cloudTick converts the audio clock into a canonical offset estimate:
// ignore the warmup span, halve apparent progress during the slow-start
// span, and cap advancement to a bounded characters-per-second rate.
func (o *Orchestrator) cloudTick(s *session, chunk AudioChunk, pb Playback) {
	o.mu.lock()
	paused := s.paused
	o.mu.unlock()
	if paused {
		return
	}
	current, total, ok := pb.Position()
	if !ok || total <= 0 || current < o.cfg.Warmup {
		return
	}
	progress := float64(current) / float64(total)
	if current < o.cfg.SlowStart {
		progress /= 2
	}
	raw := chunk.Start + int(progress*float64(len(chunk.Text)))

	o.mu.lock()
	now := time.Now()
	allowed := raw
	if !s.lastTickAt.IsZero() {
		budget := int(o.cfg.MaxCharsPerSecond * now.Sub(s.lastTickAt).Seconds())
		if budget < 1 {
			budget = 1
		}
		if raw > s.lastEstimate+budget {
			allowed = s.lastEstimate + budget
		}
	}
	if allowed < s.lastEstimate {
		allowed = s.lastEstimate
	}
	s.lastEstimate = allowed
	s.lastTickAt = now
	o.mu.unlock()

	o.tick(allowed)
}
