package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// fakeDeepgramServer echoes back one partial, one final, and a
// SpeechStarted event for every frame it receives, so the adapter under
// test can be exercised end to end over a real (loopback) socket.
func fakeDeepgramServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Token ") {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]interface{}{"type": "SpeechStarted"})
			_ = conn.WriteJSON(map[string]interface{}{
				"type":     "Results",
				"is_final": false,
				"channel": map[string]interface{}{
					"alternatives": []map[string]interface{}{{"transcript": "partial text"}},
				},
			})
			_ = conn.WriteJSON(map[string]interface{}{
				"type":     "Results",
				"is_final": true,
				"channel": map[string]interface{}{
					"alternatives": []map[string]interface{}{{"transcript": "final text"}},
				},
			})
		}
	}))
}

func TestStreamDispatchesTranscriptAndVoiceActivityEvents(t *testing.T) {
	srv := fakeDeepgramServer(t)
	defer srv.Close()

	cfg := Config{APIKey: "k", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	a := New(cfg, nil)

	var mu sync.Mutex
	var partials, finals []string
	var speaking int

	cb := Callbacks{
		OnPartial:      func(text string) { mu.Lock(); partials = append(partials, text); mu.Unlock() },
		OnFinal:        func(text string) { mu.Lock(); finals = append(finals, text); mu.Unlock() },
		OnUserSpeaking: func() { mu.Lock(); speaking++; mu.Unlock() },
	}

	in := make(chan []byte, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Stream(ctx, in, cb) }()

	in <- make([]byte, 640)

	deadline := time.After(500 * time.Millisecond)
	for {
		mu.Lock()
		gotFinal := len(finals) > 0
		mu.Unlock()
		if gotFinal {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a final transcript")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	close(in)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(partials) == 0 || partials[0] != "partial text" {
		t.Errorf("partials = %v, want at least one \"partial text\"", partials)
	}
	if finals[0] != "final text" {
		t.Errorf("finals = %v, want \"final text\"", finals)
	}
	if speaking == 0 {
		t.Error("expected at least one OnUserSpeaking dispatch")
	}
}

func TestStreamRejectsWhenAPIKeyMissing(t *testing.T) {
	a := New(Config{}, nil)
	err := a.Stream(context.Background(), make(chan []byte), Callbacks{})
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestEndpointIncludesConfiguredParameters(t *testing.T) {
	a := New(Config{APIKey: "k", Model: "nova-2", Language: "en", SampleRate: 24000}, nil)
	ep := a.endpoint()

	for _, want := range []string{"model=nova-2", "language=en", "sample_rate=24000", "encoding=linear16"} {
		if !strings.Contains(ep, want) {
			t.Errorf("endpoint %q missing %q", ep, want)
		}
	}
}

func TestEventDecodingIgnoresUnrecognizedPayload(t *testing.T) {
	var ev event
	if err := json.Unmarshal([]byte(`{"type":"Metadata"}`), &ev); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if ev.Type != "Metadata" {
		t.Errorf("type = %q, want %q", ev.Type, "Metadata")
	}
}
