package session

import (
	"sync"
	"testing"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestNextSendSeqIsMonotonicAndDense(t *testing.T) {
	call := NewCall("C1", DirectionInbound, Metadata{TenantID: "T1", UserID: "U1"}, &fakeConn{})

	for i := int64(0); i < 10; i++ {
		got := call.NextSendSeq()
		if got != i {
			t.Fatalf("NextSendSeq() = %d, want %d", got, i)
		}
	}
}

func TestRegistryPutGetRemove(t *testing.T) {
	reg := NewRegistry()
	call := NewCall("C1", DirectionInbound, Metadata{}, &fakeConn{})

	reg.Put(call)
	if got := reg.Get("C1"); got != call {
		t.Fatalf("Get returned %+v, want the registered call", got)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", reg.Count())
	}

	removed := reg.Remove("C1")
	if removed != call {
		t.Fatalf("Remove returned %+v, want the registered call", removed)
	}
	if reg.Get("C1") != nil {
		t.Fatal("expected call to be gone after Remove")
	}
}

func TestResponseTokenCancelDoesNotCancelSession(t *testing.T) {
	call := NewCall("C1", DirectionInbound, Metadata{}, &fakeConn{})

	respCtx, cancelResp := call.NewResponseToken()
	cancelResp()

	select {
	case <-respCtx.Done():
	default:
		t.Fatal("expected response token to be cancelled")
	}

	select {
	case <-call.SessionToken.Done():
		t.Fatal("cancelling the response token must not cancel the session token")
	default:
	}
}

func TestEndSessionCancelsDerivedResponseTokens(t *testing.T) {
	call := NewCall("C1", DirectionInbound, Metadata{}, &fakeConn{})
	respCtx, _ := call.NewResponseToken()

	call.EndSession()

	select {
	case <-respCtx.Done():
	default:
		t.Fatal("expected response token to be cancelled when session ends")
	}
}

func TestRebindSwapsConnection(t *testing.T) {
	call := NewCall("C1", DirectionInbound, Metadata{}, &fakeConn{})
	newConn := &fakeConn{}

	call.Rebind(newConn)

	if call.Conn() != newConn {
		t.Fatal("expected Conn() to return the rebound connection")
	}
}
