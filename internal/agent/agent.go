// Package agent defines the Agent Engine abstraction the Chunked Voice
// Controller streams text from, plus a fallback manager across multiple
// engines. Grounded on the teacher's pkg/ai Provider/Manager pattern
// (base.go's Provider interface, manager.go's ExecuteWithFallback
// ordered-fallback loop), generalized from request/response generation
// to a streaming-delta callback shape the voice path needs.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Turn is one exchange in the bounded conversation history (spec §4.10:
// "last 10 turns").
type Turn struct {
	Role string
	Text string
}

// Delta is one piece of streamed agent output. ToolNarration marks text
// generated to narrate a tool call's result, which the controller treats
// as ordinary text for chunking purposes (spec §4.10).
type Delta struct {
	Text          string
	ToolNarration bool
	Done          bool
}

// Request is one streaming generation request against an engine.
type Request struct {
	History  []Turn
	UserText string
	Model    string
	Timeout  time.Duration
}

// Engine is one streaming text-generation backend. OnDelta is invoked
// once per text fragment as it arrives, and a final time with Done=true.
type Engine interface {
	Name() string
	IsAvailable() bool
	StreamResponse(ctx context.Context, req Request, onDelta func(Delta)) error
}

// Manager tries each configured engine in order, falling back to the
// next on error, mirroring the teacher's pkg/ai.Manager.
type Manager struct {
	engines []Engine
	logger  *zap.Logger
}

func NewManager(engines []Engine, logger *zap.Logger) *Manager {
	return &Manager{engines: engines, logger: logger}
}

// Available returns the first engine reporting itself ready.
func (m *Manager) Available() Engine {
	for _, e := range m.engines {
		if e.IsAvailable() {
			return e
		}
	}
	return nil
}

// StreamResponse streams from the first available engine, falling
// through to the next engine only if the attempted one fails before
// emitting any delta (once streaming has started, a mid-stream failure
// is surfaced rather than silently restarting generation on a fallback
// engine, which would duplicate output already sent to the gateway).
func (m *Manager) StreamResponse(ctx context.Context, req Request, onDelta func(Delta)) error {
	if len(m.engines) == 0 {
		return fmt.Errorf("agent: no engines configured")
	}

	var lastErr error
	for _, e := range m.engines {
		if !e.IsAvailable() {
			continue
		}

		started := false
		wrapped := func(d Delta) {
			started = true
			onDelta(d)
		}

		err := e.StreamResponse(ctx, req, wrapped)
		if err == nil {
			return nil
		}
		if started {
			return fmt.Errorf("agent: engine %q failed mid-stream: %w", e.Name(), err)
		}

		lastErr = err
		if m.logger != nil {
			m.logger.Warn("agent engine failed before streaming began, trying next",
				zap.String("engine", e.Name()),
				zap.Error(err))
		}
	}

	return fmt.Errorf("agent: all engines failed: %w", lastErr)
}
