// Package speech drives interchangeable synthesis backends and normalizes
// their heterogeneous progress signals into resolver ticks.
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrInterrupted is returned by backends when an utterance or playback is
// cancelled on purpose. It is a normal outcome of pause/seek/stop and must
// never be surfaced as a failure.
var ErrInterrupted = errors.New("speech: interrupted")

// ErrBusy is returned by Play when a start is already in flight; rapid
// double-invocation (duplicate key events) must not start two streams.
var ErrBusy = errors.New("speech: playback start already in flight")

// BoundaryKind classifies a local-backend progress event.
type BoundaryKind int

const (
	BoundaryWord BoundaryKind = iota
	BoundarySentence
)

// Boundary is a progress signal from a local backend: CharIndex is a byte
// offset into the utterance text, not into the canonical buffer.
type Boundary struct {
	Kind      BoundaryKind
	CharIndex int
}

// Utterance is one text segment handed to a local backend.
type Utterance struct {
	Text string
	Lang string
	Rate float64
}

// LocalBackend is a synchronous local synthesis engine. Speak blocks until
// the utterance finishes, reporting boundaries as it goes, and returns
// ErrInterrupted when cancelled via ctx or Cancel.
type LocalBackend interface {
	Speak(ctx context.Context, u Utterance, onBoundary func(Boundary)) error
	Cancel()
}

// AudioChunk is one synthesized slice of the document text.
type AudioChunk struct {
	Text  string // the exact text this audio covers
	Start int    // canonical offset of Text[0]
	Audio []byte
	Mime  string
}

// CloudBackend synthesizes text to audio. Implementations have a practical
// per-request text ceiling; the orchestrator chunks before calling.
type CloudBackend interface {
	Synthesize(ctx context.Context, text, voice string) (audio []byte, mime string, err error)
}

// Playback is an in-progress audio chunk. Position reports the playback
// clock; ok is false before the clock is meaningful. Done yields the final
// error (nil on natural completion, ErrInterrupted on Stop).
type Playback interface {
	Position() (current, total time.Duration, ok bool)
	Pause()
	Resume()
	Stop()
	Done() <-chan error
}

// Player turns an AudioChunk into a Playback.
type Player interface {
	Play(ctx context.Context, chunk AudioChunk) (Playback, error)
}
