package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vocalbridge/bridge/internal/audio"
	"github.com/vocalbridge/bridge/internal/chunker"
)

type fakeSink struct {
	mu       sync.Mutex
	enqueued map[int][][]byte
	skipped  map[int]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{enqueued: make(map[int][][]byte), skipped: make(map[int]bool)}
}

func (f *fakeSink) Enqueue(seq int, frames [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued[seq] = frames
}

func (f *fakeSink) Skip(seq int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipped[seq] = true
}

func TestScheduleSynthesizesAndEnqueues(t *testing.T) {
	sink := newFakeSink()
	synth := func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{[]byte(text)}, nil
	}
	s := New(2, synth, sink)

	s.Schedule(context.Background(), chunker.Chunk{Seq: 0, Text: "hello"})
	s.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.enqueued[0]) != 1 || string(sink.enqueued[0][0]) != "hello" {
		t.Fatalf("expected chunk 0 enqueued with synthesized frame, got %+v", sink.enqueued)
	}
}

func TestScheduleEnqueuesComfortToneOnSynthesisError(t *testing.T) {
	sink := newFakeSink()
	synth := func(ctx context.Context, text string) ([][]byte, error) {
		return nil, errors.New("synthesis boom")
	}
	s := New(1, synth, sink)

	s.Schedule(context.Background(), chunker.Chunk{Seq: 3, Text: "bye"})
	s.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.skipped[3] {
		t.Fatal("expected chunk 3 to get a comfort tone, not a bare skip, after synthesis error")
	}
	frames := sink.enqueued[3]
	if len(frames) != comfortToneFrameCount {
		t.Fatalf("expected %d comfort-tone frames, got %d", comfortToneFrameCount, len(frames))
	}
	for i, f := range frames {
		if len(f) != audio.Frame24kBytes {
			t.Fatalf("frame %d length = %d, want %d", i, len(f), audio.Frame24kBytes)
		}
		for _, b := range f {
			if b != 0 {
				t.Fatalf("frame %d not silent", i)
			}
		}
	}
}

func TestScheduleSkipsWhenContextAlreadyCancelled(t *testing.T) {
	sink := newFakeSink()
	called := false
	synth := func(ctx context.Context, text string) ([][]byte, error) {
		called = true
		return [][]byte{[]byte(text)}, nil
	}
	s := New(1, synth, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Schedule(ctx, chunker.Chunk{Seq: 1, Text: "x"})
	s.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.skipped[1] {
		t.Fatal("expected chunk to be skipped when context is already cancelled")
	}
	if called {
		t.Error("synth should not run once acquire fails on a cancelled context")
	}
}

func TestScheduleDropsBeyondMaxPendingSentences(t *testing.T) {
	sink := newFakeSink()
	release := make(chan struct{})
	synth := func(ctx context.Context, text string) ([][]byte, error) {
		<-release
		return [][]byte{[]byte(text)}, nil
	}
	s := New(1, synth, sink)

	for i := 0; i < MaxPendingSentences; i++ {
		s.Schedule(context.Background(), chunker.Chunk{Seq: i, Text: "x"})
	}

	deadline := time.After(time.Second)
	for {
		if s.Pending() == MaxPendingSentences {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for pending chunks to reach the cap")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.Schedule(context.Background(), chunker.Chunk{Seq: MaxPendingSentences, Text: "overflow"})

	sink.mu.Lock()
	skipped := sink.skipped[MaxPendingSentences]
	sink.mu.Unlock()
	if !skipped {
		t.Fatal("expected the chunk beyond MaxPendingSentences to be skipped")
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}

	close(release)
	s.Wait()
}
