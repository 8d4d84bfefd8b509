package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocalbridge/bridge/internal/agent"
)

type fakeEngine struct {
	deltas []string
}

func (f *fakeEngine) Name() string      { return "fake" }
func (f *fakeEngine) IsAvailable() bool { return true }

func (f *fakeEngine) StreamResponse(ctx context.Context, req agent.Request, onDelta func(agent.Delta)) error {
	for _, d := range f.deltas {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onDelta(agent.Delta{Text: d})
	}
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    [][]byte
	flushes int
}

func (f *fakeSender) SendAudio(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeSender) SendFlush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func newTestController(deltas []string, sender *fakeSender) *Controller {
	engine := agent.NewManager([]agent.Engine{&fakeEngine{deltas: deltas}}, nil)
	synth := func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{[]byte(text)}, nil
	}
	cfg := Config{SentenceMinChars: 5, SentenceMaxChars: 40, MaxParallelTTS: 2, JitterFrames: 1, ResponseTimeout: time.Second}
	return New(cfg, engine, synth, sender, nil)
}

func TestFinalTranscriptReturnsToIdleAfterCompletion(t *testing.T) {
	sender := &fakeSender{}
	c := newTestController([]string{"Hello there. ", "How are you?"}, sender)

	newToken := func() (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	done := make(chan struct{})
	go func() {
		c.FinalTranscript(context.Background(), newToken, "hi")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for FinalTranscript to settle")
	}

	if c.State() != StateIdle {
		t.Errorf("state = %q, want %q", c.State(), StateIdle)
	}
	if c.IsPlayingAudio() {
		t.Error("expected playingAudio to be false once settled")
	}
}

func TestBargeInCancelsResponseAndSendsFlush(t *testing.T) {
	sender := &fakeSender{}
	c := newTestController([]string{"this is a long response that keeps going and going"}, sender)

	newToken := func() (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	done := make(chan struct{})
	go func() {
		c.FinalTranscript(context.Background(), newToken, "hi")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.BargeIn(); err != nil {
		t.Fatalf("BargeIn returned error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for FinalTranscript to settle after barge-in")
	}

	sender.mu.Lock()
	flushes := sender.flushes
	sender.mu.Unlock()
	if flushes == 0 {
		t.Error("expected at least one flush to be sent on barge-in")
	}
}

func TestHistoryIsBoundedByMaxConversationLog(t *testing.T) {
	sender := &fakeSender{}
	c := newTestController([]string{"ok."}, sender)

	for i := 0; i < MaxConversationLog+10; i++ {
		newToken := func() (context.Context, context.CancelFunc) {
			return context.WithCancel(context.Background())
		}
		c.FinalTranscript(context.Background(), newToken, "hi")
	}

	if len(c.history) > MaxConversationLog {
		t.Errorf("history length = %d, want <= %d", len(c.history), MaxConversationLog)
	}
}
