// Package controller implements the Chunked Voice Controller: the
// per-call state machine driving final transcripts through the agent,
// chunker, scheduler, ordered queue, and pacer. Grounded on the
// teacher's handleVoicebotConnection/processAudioBuffer pipeline in
// internal/api/handlers/voicebot.go (STT -> AI -> TTS sequencing, bounded
// conversation history, mutex-guarded session state) but rebuilt around
// streaming deltas and cancellation-tree barge-in instead of the
// teacher's buffer-then-process-whole-utterance model.
package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/agent"
	"github.com/vocalbridge/bridge/internal/chunker"
	"github.com/vocalbridge/bridge/internal/orderedqueue"
	"github.com/vocalbridge/bridge/internal/pacer"
	"github.com/vocalbridge/bridge/internal/scheduler"
)

// MaxHistoryTurns bounds the context window sent to the agent engine
// (spec §4.10: "last 10 turns").
const MaxHistoryTurns = 10

// MaxConversationLog bounds the per-call log kept for recorder/context
// purposes (spec P9: conversation log length <= 50 at all times).
const MaxConversationLog = 50

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateDraining  State = "draining"
)

// Config carries the tunables the spec exposes per streaming.* fields.
type Config struct {
	SentenceMinChars int
	SentenceMaxChars int
	MaxParallelTTS   int
	JitterFrames     int
	Model            string
	ResponseTimeout  time.Duration
}

// Controller drives one call's text-to-speech response pipeline.
type Controller struct {
	cfg    Config
	engine *agent.Manager
	synth  func(ctx context.Context, text string) ([][]byte, error)
	sender pacer.Sender
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	history []agent.Turn

	queue      *orderedqueue.Queue
	pace       *pacer.Pacer
	sched      *scheduler.Scheduler
	respCancel context.CancelFunc

	playingAudio   bool
	firstFrameTime time.Time
}

func New(cfg Config, engine *agent.Manager, synth func(ctx context.Context, text string) ([][]byte, error), sender pacer.Sender, logger *zap.Logger) *Controller {
	if cfg.JitterFrames < 1 {
		cfg.JitterFrames = 25
	}
	queue := orderedqueue.New(cfg.JitterFrames)
	c := &Controller{
		cfg:    cfg,
		engine: engine,
		synth:  synth,
		sender: sender,
		logger: logger,
		state:  StateIdle,
		queue:  queue,
	}
	c.pace = pacer.New(queue, sender)
	c.sched = scheduler.New(cfg.MaxParallelTTS, synth, queueSink{queue})
	return c
}

type queueSink struct{ q *orderedqueue.Queue }

func (s queueSink) Enqueue(seq int, frames [][]byte) { s.q.Enqueue(seq, frames) }
func (s queueSink) Skip(seq int)                     { s.q.Skip(seq) }

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPlayingAudio reports whether the controller considers itself mid
// playout, for the listener's echo-suppression gate (spec §4.10).
func (c *Controller) IsPlayingAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playingAudio
}

// FirstFrameTime reports when the current (or most recent) playout
// started, so the listener can suppress onUserSpeaking for up to the
// jitter-buffer duration after it (spec §4.10 echo suppression).
func (c *Controller) FirstFrameTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstFrameTime
}

// FinalTranscript drives one complete response cycle: history update,
// streaming generation through chunker/scheduler, pacing the result, and
// settling back to idle. sessionCtx is the call's session-lifetime
// cancellation token; FinalTranscript derives its own response token
// from it so a barge-in can cancel just this response.
func (c *Controller) FinalTranscript(sessionCtx context.Context, newResponseToken func() (context.Context, context.CancelFunc), text string) {
	c.mu.Lock()
	c.appendHistoryLocked(agent.Turn{Role: "user", Text: text})
	c.state = StateStreaming
	c.mu.Unlock()

	respCtx, cancel := newResponseToken()
	c.mu.Lock()
	c.respCancel = cancel
	c.mu.Unlock()
	defer cancel()

	history := c.historySnapshot()
	req := agent.Request{History: history, UserText: text, Model: c.cfg.Model, Timeout: c.cfg.ResponseTimeout}

	ck := chunker.New(c.cfg.SentenceMinChars, c.cfg.SentenceMaxChars)
	var assembled string

	c.setPlayingAudio(true)
	defer c.setPlayingAudio(false)

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.pace.Drain(respCtx, func() bool {
			return c.sched.Pending() > 0 || respCtx.Err() == nil && c.State() == StateStreaming
		})
	}()

	err := c.engine.StreamResponse(respCtx, req, func(d agent.Delta) {
		if respCtx.Err() != nil {
			return
		}
		assembled += d.Text
		for _, chunk := range ck.Feed(d.Text) {
			c.sched.Schedule(respCtx, chunk)
		}
	})

	if flush := ck.Flush(); flush != nil && respCtx.Err() == nil {
		c.sched.Schedule(respCtx, *flush)
	}

	c.mu.Lock()
	c.state = StateDraining
	c.mu.Unlock()

	c.sched.Wait()
	<-drainDone

	c.mu.Lock()
	c.appendHistoryLocked(agent.Turn{Role: "assistant", Text: assembled})
	c.state = StateIdle
	c.mu.Unlock()

	if err != nil && c.logger != nil {
		c.logger.Warn("controller: response generation failed", zap.Error(err))
	}
}

// BargeIn is invoked when onUserSpeaking fires while audio is playing.
// It cancels the in-flight response, clears the queue, and sends flush.
// Echo suppression is the caller's responsibility (spec §4.10): ignore
// onUserSpeaking during the first frame of playout for up to the
// jitter-buffer duration before calling BargeIn.
func (c *Controller) BargeIn() error {
	c.mu.Lock()
	cancel := c.respCancel
	c.state = StateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return c.pace.BargeIn()
}

// InRecovery reports whether a barge-in's post-flush recovery window is
// still open; callers should discard stale upstream deltas while true.
func (c *Controller) InRecovery() bool { return c.pace.InRecovery() }

func (c *Controller) setPlayingAudio(v bool) {
	c.mu.Lock()
	c.playingAudio = v
	if v {
		c.firstFrameTime = time.Now()
	}
	c.mu.Unlock()
}

func (c *Controller) appendHistoryLocked(t agent.Turn) {
	c.history = append(c.history, t)
	if len(c.history) > MaxConversationLog {
		c.history = c.history[len(c.history)-MaxConversationLog:]
	}
}

func (c *Controller) historySnapshot() []agent.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.history)
	if n > MaxHistoryTurns {
		n = MaxHistoryTurns
	}
	out := make([]agent.Turn, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}
