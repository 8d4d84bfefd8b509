// Package recorder implements the Session Recorder: best-effort Mongo
// writes for call-start, final-transcript, and call-end events that must
// never fail the call itself. Grounded directly on the teacher's
// initializeCallRecord/finalizeCallRecord pair in
// internal/api/handlers/voicebot.go (5s timeout context per write,
// upsert-shaped "calls" collection, log-and-continue on error) and on
// pkg/mongo.QueryBuilder for the actual writes.
package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/internal/wire"
	mongoclient "github.com/vocalbridge/bridge/pkg/mongo"
)

const writeTimeout = 5 * time.Second

// Store is the narrow persistence surface the recorder needs, isolated
// from *mongoclient.Client so tests can substitute a fake.
type Store interface {
	UpsertCall(ctx context.Context, callID string, doc map[string]interface{}) error
	InsertTranscript(ctx context.Context, doc map[string]interface{}) error
	UpdateCallEnd(ctx context.Context, callID string, doc map[string]interface{}) error
}

type mongoStore struct {
	client *mongoclient.Client
}

// NewMongoStore adapts a Mongo client to the Store interface using the
// same QueryBuilder the teacher's call-record handlers use.
func NewMongoStore(client *mongoclient.Client) Store {
	return &mongoStore{client: client}
}

func (s *mongoStore) UpsertCall(ctx context.Context, callID string, doc map[string]interface{}) error {
	_, err := s.client.NewQuery("calls").
		Eq("call_sid", callID).
		Upsert(ctx, map[string]interface{}{"call_sid": callID}, doc)
	return err
}

func (s *mongoStore) InsertTranscript(ctx context.Context, doc map[string]interface{}) error {
	_, err := s.client.NewQuery("transcripts").Insert(ctx, doc)
	return err
}

func (s *mongoStore) UpdateCallEnd(ctx context.Context, callID string, doc map[string]interface{}) error {
	_, err := s.client.NewQuery("calls").Eq("call_sid", callID).UpdateOne(ctx, doc)
	return err
}

// Recorder writes best-effort call telemetry. Every method swallows
// write errors after logging them; a recording failure never aborts the
// call in progress.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// CallStart records a new call's direction and metadata.
func (r *Recorder) CallStart(callID, direction string, metadata wire.Metadata) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	doc := map[string]interface{}{
		"call_sid":   callID,
		"direction":  direction,
		"tenant_id":  metadata.TenantID,
		"user_id":    metadata.UserID,
		"status":     "in-progress",
		"started_at": time.Now().Format(time.RFC3339),
	}

	if err := r.store.UpsertCall(ctx, callID, doc); err != nil {
		r.warn("call start", callID, err)
	}
}

// TranscriptFinal records one final transcript turn.
func (r *Recorder) TranscriptFinal(callID, role, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	doc := map[string]interface{}{
		"call_sid":  callID,
		"role":      role,
		"text":      text,
		"recorded_at": time.Now().Format(time.RFC3339),
	}

	if err := r.store.InsertTranscript(ctx, doc); err != nil {
		r.warn("transcript", callID, err)
	}
}

// CallEnd marks a call completed.
func (r *Recorder) CallEnd(callID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	doc := map[string]interface{}{
		"status":   "completed",
		"reason":   reason,
		"ended_at": time.Now().Format(time.RFC3339),
	}

	if err := r.store.UpdateCallEnd(ctx, callID, doc); err != nil {
		r.warn("call end", callID, err)
	}
}

func (r *Recorder) warn(op, callID string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("recorder: write failed, continuing call",
		zap.String("op", op),
		zap.String("call_id", callID),
		zap.Error(err))
}
