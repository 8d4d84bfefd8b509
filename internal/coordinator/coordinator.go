// Package coordinator implements the Outbound Call Coordinator: issuing
// initiate_call toward a round-robin-selected gateway connection and
// resolving the pending call from the session_start/call_status events
// that follow. Grounded on the teacher's exotelClient.ConnectCall +
// Mongo-bookkeeping InitiateCall handler (cmd/server/main.go) for the
// "build request, dial out, then asynchronously record/resolve" shape;
// the future/promise-by-call-id resolution itself has no direct teacher
// analogue and is built from spec §4.12 prose with a plain channel per
// pending call plus a deadline timer, consistent with the module's
// "no I/O under any lock" discipline.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocalbridge/bridge/internal/wire"
	"github.com/vocalbridge/bridge/pkg/apperrors"
)

// Connection is the subset of a gateway connection the coordinator dials
// out over.
type Connection interface {
	SendInitiateCall(msg wire.InitiateCall) error
}

// Result is the terminal outcome of one Initiate call.
type Result struct {
	Answered bool
	Error    string
}

type pendingCall struct {
	resultCh chan Result
	timer    *time.Timer
	once     sync.Once
}

func (p *pendingCall) resolve(r Result) {
	p.once.Do(func() {
		p.timer.Stop()
		p.resultCh <- r
		close(p.resultCh)
	})
}

// Coordinator tracks live gateway connections and in-flight outbound
// dial attempts.
type Coordinator struct {
	outboundEnabled bool

	mu          sync.Mutex
	connections []Connection
	rrIndex     int
	pending     map[string]*pendingCall
}

func New(outboundEnabled bool) *Coordinator {
	return &Coordinator{
		outboundEnabled: outboundEnabled,
		pending:         make(map[string]*pendingCall),
	}
}

// Register adds a live connection to the round-robin pool.
func (c *Coordinator) Register(conn Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connections = append(c.connections, conn)
}

// Unregister removes a connection, e.g. once the gateway disconnects.
func (c *Coordinator) Unregister(conn Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.connections {
		if existing == conn {
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
			if c.rrIndex >= len(c.connections) {
				c.rrIndex = 0
			}
			return
		}
	}
}

func (c *Coordinator) nextConnectionLocked() (Connection, bool) {
	if len(c.connections) == 0 {
		return nil, false
	}
	conn := c.connections[c.rrIndex%len(c.connections)]
	c.rrIndex++
	return conn, true
}

// Initiate dials callId out toward a round-robin-selected connection and
// blocks until session_start/call_status resolves it, ctx is cancelled,
// or timeout elapses.
func (c *Coordinator) Initiate(ctx context.Context, callID string, target wire.CallTarget, greeting string, timeout time.Duration) (Result, error) {
	if !c.outboundEnabled {
		return Result{}, apperrors.New(apperrors.KindDisabled, "outbound calling is disabled")
	}
	if callID == "" {
		callID = uuid.NewString()
	}

	c.mu.Lock()
	conn, ok := c.nextConnectionLocked()
	if !ok {
		c.mu.Unlock()
		return Result{}, apperrors.New(apperrors.KindGatewayNotConnected, "no gateway connection is available")
	}

	pc := &pendingCall{resultCh: make(chan Result, 1)}
	pc.timer = time.AfterFunc(timeout, func() {
		pc.resolve(Result{Answered: false, Error: "timeout"})
	})
	c.pending[callID] = pc
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, callID)
		c.mu.Unlock()
	}()

	if err := conn.SendInitiateCall(wire.InitiateCall{
		Type:    wire.TypeInitiateCall,
		CallID:  callID,
		Target:  target,
		Message: greeting,
	}); err != nil {
		pc.timer.Stop()
		return Result{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "failed to send initiate_call", err)
	}

	select {
	case <-ctx.Done():
		pc.timer.Stop()
		return Result{}, ctx.Err()
	case r := <-pc.resultCh:
		if !r.Answered {
			if r.Error == "timeout" {
				return r, apperrors.New(apperrors.KindTimeout, "outbound call timed out waiting for resolution")
			}
			return r, apperrors.New(apperrors.KindUpstreamUnavailable, r.Error)
		}
		return r, nil
	}
}

// ResolveSessionStart resolves a pending call on an outbound session_start.
// Non-outbound direction or an unknown call-id is a no-op.
func (c *Coordinator) ResolveSessionStart(callID, direction string) {
	if direction != "outbound" {
		return
	}
	c.mu.Lock()
	pc := c.pending[callID]
	c.mu.Unlock()
	if pc != nil {
		pc.resolve(Result{Answered: true})
	}
}

// ResolveCallStatus resolves a pending call on a terminal call_status.
// ringing/answered without a session_start is informational and is not
// handled here.
func (c *Coordinator) ResolveCallStatus(callID, status, errStr string) {
	switch status {
	case "failed", "busy", "no-answer":
	default:
		return
	}
	c.mu.Lock()
	pc := c.pending[callID]
	c.mu.Unlock()
	if pc != nil {
		msg := errStr
		if msg == "" {
			msg = status
		}
		pc.resolve(Result{Answered: false, Error: msg})
	}
}

// Pending reports how many outbound dials are currently in flight.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
