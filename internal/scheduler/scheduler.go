// Package scheduler implements the TTS Scheduler: a bounded worker pool
// that turns sentence chunks into synthesized audio, keyed by chunk-seq
// for the Ordered Audio Queue downstream. Its counting-semaphore shape
// follows this module's own design note (no direct teacher analogue);
// the semaphore itself is golang.org/x/sync/semaphore, already pulled
// in transitively through gin's dependency graph and promoted here to a
// direct, used import.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/vocalbridge/bridge/internal/audio"
	"github.com/vocalbridge/bridge/internal/chunker"
)

// MaxPendingSentences is the back-pressure ceiling from spec §4.7: once
// this many chunks are outstanding (scheduled but not yet resolved),
// new chunks are dropped rather than queued further.
const MaxPendingSentences = 5

// comfortToneFrameCount is 1s of audio at the pacer's 20ms frame cadence
// (spec §4.16/§7: a synthesis failure gets a comfort tone of silence so
// the turn completes rather than stalling).
const comfortToneFrameCount = 50

// comfortTone builds 1s of silent 24kHz PCM16 frames.
func comfortTone() [][]byte {
	frames := make([][]byte, comfortToneFrameCount)
	for i := range frames {
		frames[i] = make([]byte, audio.Frame24kBytes)
	}
	return frames
}

// Synthesizer produces PCM frames for a chunk of text. Implementations
// must return promptly when ctx is cancelled.
type Synthesizer func(ctx context.Context, text string) ([][]byte, error)

// Sink receives the resolution of one scheduled chunk: frames on success
// (comfort-tone frames when synthesis fails), or a skip signal on
// cancellation or a back-pressure drop.
type Sink interface {
	Enqueue(seq int, frames [][]byte)
	Skip(seq int)
}

// Scheduler bounds concurrent synthesis calls to maxParallel permits and
// reports results to a Sink in whatever order they complete; sequencing
// is the Ordered Audio Queue's job, not the scheduler's.
type Scheduler struct {
	sem         *semaphore.Weighted
	synth       Synthesizer
	sink        Sink
	maxParallel int64

	mu      sync.Mutex
	pending int

	wg sync.WaitGroup

	dropped atomic.Int64
}

func New(maxParallel int, synth Synthesizer, sink Sink) *Scheduler {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if maxParallel > 5 {
		maxParallel = 5
	}
	return &Scheduler{
		sem:         semaphore.NewWeighted(int64(maxParallel)),
		synth:       synth,
		sink:        sink,
		maxParallel: int64(maxParallel),
	}
}

// Schedule submits a chunk for synthesis. It returns immediately; the
// result reaches the Sink asynchronously. If MaxPendingSentences is
// already outstanding, the chunk is dropped and reported as skipped.
func (s *Scheduler) Schedule(ctx context.Context, chunk chunker.Chunk) {
	s.mu.Lock()
	if s.pending >= MaxPendingSentences {
		s.mu.Unlock()
		s.dropped.Add(1)
		s.sink.Skip(chunk.Seq)
		return
	}
	s.pending++
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, chunk)
}

func (s *Scheduler) run(ctx context.Context, chunk chunker.Chunk) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.sink.Skip(chunk.Seq)
		return
	}
	defer s.sem.Release(1)

	if ctx.Err() != nil {
		s.sink.Skip(chunk.Seq)
		return
	}

	frames, err := s.synth(ctx, chunk.Text)
	if err != nil {
		s.sink.Enqueue(chunk.Seq, comfortTone())
		return
	}
	if ctx.Err() != nil {
		s.sink.Skip(chunk.Seq)
		return
	}
	s.sink.Enqueue(chunk.Seq, frames)
}

// Dropped reports how many chunks have been dropped for exceeding
// MaxPendingSentences since the scheduler was created.
func (s *Scheduler) Dropped() int64 { return s.dropped.Load() }

// Wait blocks until every submitted chunk has resolved (enqueued,
// skipped, or dropped). Callers use this to settle a response before
// transitioning the controller out of draining.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Pending reports the number of chunks currently scheduled or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
