// Package pacer implements the Playout Pacer: drift-free dispatch of
// outbound audio frames at one per 20ms, serialized against overlapping
// drain loops, with barge-in cancellation and a post-flush recovery
// window. Grounded on this module's own §4.9 design note; the
// target[n] = start + n*interval scheduling shape and chained-cancel
// discipline follow the session cancellation-tree pattern already used
// by internal/session.
package pacer

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// FrameInterval is the fixed outbound frame cadence.
	FrameInterval = 20 * time.Millisecond
	// RecoveryWindow suppresses stale post-cancellation deltas.
	RecoveryWindow = 100 * time.Millisecond
)

// ErrAlreadyDraining is returned by Drain when a drain loop for this
// pacer is already in flight; pacing is serialized per call.
var ErrAlreadyDraining = errors.New("pacer: drain already in progress")

// Source is the frame supply a drain loop pulls from. Implementations
// are expected to be the Ordered Audio Queue.
type Source interface {
	Dequeue() ([]byte, bool)
	Reset()
}

// Sender delivers a paced frame, or a flush control message, to the
// gateway connection.
type Sender interface {
	SendAudio(frame []byte) error
	SendFlush() error
}

// Pacer drains one Source to one Sender at a strict 20ms cadence.
type Pacer struct {
	source Source
	sender Sender

	mu           sync.Mutex
	active       bool
	cancel       context.CancelFunc
	recoverUntil time.Time
}

func New(source Source, sender Sender) *Pacer {
	return &Pacer{source: source, sender: sender}
}

// InRecovery reports whether a barge-in's recovery window is still open,
// meaning stale deltas from the cancelled response should be discarded
// by the caller before they ever reach the queue.
func (p *Pacer) InRecovery() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.recoverUntil)
}

// Drain runs the pacing loop until the queue is empty and moreComing
// reports false, or ctx is cancelled (directly, or via BargeIn). Only
// one Drain may be active at a time; a concurrent call returns
// ErrAlreadyDraining immediately.
func (p *Pacer) Drain(ctx context.Context, moreComing func() bool) error {
	drainCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		cancel()
		return ErrAlreadyDraining
	}
	p.active = true
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = false
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	var n int64

	for {
		select {
		case <-drainCtx.Done():
			return drainCtx.Err()
		default:
		}

		frame, ok := p.source.Dequeue()
		if !ok {
			if !moreComing() {
				return nil
			}
			select {
			case <-drainCtx.Done():
				return drainCtx.Err()
			case <-time.After(2 * time.Millisecond):
				continue
			}
		}

		target := start.Add(time.Duration(n) * FrameInterval)
		if wait := time.Until(target); wait > 0 {
			select {
			case <-drainCtx.Done():
				return drainCtx.Err()
			case <-time.After(wait):
			}
		}

		if err := p.sender.SendAudio(frame); err != nil {
			return err
		}
		n++
	}
}

// BargeIn cancels the active drain loop (a no-op if none is running),
// clears the queue, sends a flush control message, and opens a recovery
// window during which the caller should discard stale upstream deltas.
func (p *Pacer) BargeIn() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.recoverUntil = time.Now().Add(RecoveryWindow)
	p.mu.Unlock()

	p.source.Reset()
	return p.sender.SendFlush()
}
