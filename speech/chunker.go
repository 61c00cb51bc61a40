package speech

import (
	"context"
	"strings"

	"github.com/voxread/readkit/doctext"
)

// CloudChunkBytes is the per-request UTF-8 byte budget for cloud synthesis.
const CloudChunkBytes = 4500

// TextChunk is a pre-synthesis slice of canonical text.
type TextChunk struct {
	Text  string
	Start int // canonical offset of Text[0]
}

// ChunkText cuts buffer[from:] into chunks of at most maxBytes, breaking at
// sentence boundaries. A single sentence over budget is split at
// whitespace; a pathological unbroken run is split mid-run. Chunks keep the
// original bytes between their sentences so in-chunk offsets stay aligned
// with the canonical buffer.
func ChunkText(buffer string, from, maxBytes int) []TextChunk {
	if from < 0 {
		from = 0
	}
	if from >= len(buffer) || maxBytes <= 0 {
		return nil
	}
	var chunks []TextChunk
	var cur TextChunk
	hasCur := false
	flush := func() {
		if hasCur && strings.TrimSpace(cur.Text) != "" {
			chunks = append(chunks, cur)
		}
		hasCur = false
	}
	for _, sp := range doctext.SplitSentences(buffer[from:]) {
		start := sp.Start + from
		text := buffer[start : sp.End+from]
		for len(text) > maxBytes {
			flush()
			cut := lastSpaceBefore(text, maxBytes)
			if cut <= 0 {
				cut = maxBytes
			}
			chunks = append(chunks, TextChunk{Start: start, Text: text[:cut]})
			start += cut
			text = text[cut:]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if hasCur {
			if (start+len(text))-cur.Start <= maxBytes {
				cur.Text = buffer[cur.Start : start+len(text)]
				continue
			}
			flush()
		}
		cur = TextChunk{Start: start, Text: text}
		hasCur = true
	}
	flush()
	return chunks
}

func lastSpaceBefore(s string, limit int) int {
	if limit > len(s) {
		limit = len(s)
	}
	for i := limit - 1; i > 0; i-- {
		if s[i] == ' ' || s[i] == '\n' || s[i] == '\t' {
			return i
		}
	}
	return 0
}

// chunkFeed streams synthesized chunks with a pre-fetch lookahead of one:
// while a chunk plays, the next one is already being synthesized, so
// playback is gapless.
type chunkFeed struct {
	out <-chan synthesized
}

type synthesized struct {
	chunk AudioChunk
	err   error
}

// newChunkFeed starts synthesis of chunks in order. The channel capacity of
// one is the lookahead; the goroutine exits on ctx cancellation.
func newChunkFeed(ctx context.Context, backend CloudBackend, voice string, chunks []TextChunk) *chunkFeed {
	out := make(chan synthesized, 1)
	go func() {
		defer close(out)
		for _, tc := range chunks {
			audio, mime, err := backend.Synthesize(ctx, tc.Text, voice)
			s := synthesized{
				chunk: AudioChunk{Text: tc.Text, Start: tc.Start, Audio: audio, Mime: mime},
				err:   err,
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return &chunkFeed{out: out}
}

// next returns the following chunk. ok is false when the feed is exhausted.
func (f *chunkFeed) next(ctx context.Context) (AudioChunk, error, bool) {
	select {
	case s, open := <-f.out:
		if !open {
			return AudioChunk{}, nil, false
		}
		return s.chunk, s.err, true
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err(), true
	}
}
