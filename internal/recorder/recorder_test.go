package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vocalbridge/bridge/internal/wire"
)

type fakeStore struct {
	mu          sync.Mutex
	upserts     []map[string]interface{}
	transcripts []map[string]interface{}
	ends        []map[string]interface{}
	failUpsert  bool
}

func (f *fakeStore) UpsertCall(ctx context.Context, callID string, doc map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("boom")
	}
	f.upserts = append(f.upserts, doc)
	return nil
}

func (f *fakeStore) InsertTranscript(ctx context.Context, doc map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, doc)
	return nil
}

func (f *fakeStore) UpdateCallEnd(ctx context.Context, callID string, doc map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, doc)
	return nil
}

func TestCallStartWritesExpectedFields(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	r.CallStart("C1", "inbound", wire.Metadata{TenantID: "T1", UserID: "U1"})

	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	doc := store.upserts[0]
	if doc["call_sid"] != "C1" || doc["tenant_id"] != "T1" || doc["direction"] != "inbound" {
		t.Errorf("unexpected doc: %+v", doc)
	}
}

func TestCallStartSwallowsStoreErrors(t *testing.T) {
	store := &fakeStore{failUpsert: true}
	r := New(store, nil)

	r.CallStart("C1", "inbound", wire.Metadata{})
}

func TestTranscriptFinalRecordsRoleAndText(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	r.TranscriptFinal("C1", "user", "hello")

	if len(store.transcripts) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(store.transcripts))
	}
	if store.transcripts[0]["text"] != "hello" || store.transcripts[0]["role"] != "user" {
		t.Errorf("unexpected transcript doc: %+v", store.transcripts[0])
	}
}

func TestCallEndMarksCompleted(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	r.CallEnd("C1", "normal")

	if len(store.ends) != 1 {
		t.Fatalf("expected 1 call-end write, got %d", len(store.ends))
	}
	if store.ends[0]["status"] != "completed" || store.ends[0]["reason"] != "normal" {
		t.Errorf("unexpected call-end doc: %+v", store.ends[0])
	}
}
