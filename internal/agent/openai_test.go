package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeOpenAIServer(t *testing.T, chunks []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func TestStreamResponseEmitsContentDeltasAndDone(t *testing.T) {
	srv := newFakeOpenAIServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
	})
	defer srv.Close()

	e := NewOpenAIEngine("test-key", "", nil)
	e.baseURL = srv.URL

	var got strings.Builder
	done := false
	err := e.StreamResponse(context.Background(), Request{UserText: "hi"}, func(d Delta) {
		got.WriteString(d.Text)
		if d.Done {
			done = true
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "Hello" {
		t.Errorf("expected assembled text %q, got %q", "Hello", got.String())
	}
	if !done {
		t.Error("expected a terminal Done delta")
	}
}

func TestStreamResponseUnavailableWithoutAPIKey(t *testing.T) {
	e := NewOpenAIEngine("", "", nil)
	err := e.StreamResponse(context.Background(), Request{UserText: "hi"}, func(d Delta) {})
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestStreamResponseIgnoresUndecodableChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: not-json\n\n")
		flusher.Flush()
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"ok"}}]}`)
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	e := NewOpenAIEngine("test-key", "", nil)
	e.baseURL = srv.URL

	var got strings.Builder
	err := e.StreamResponse(context.Background(), Request{UserText: "hi"}, func(d Delta) {
		got.WriteString(d.Text)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "ok" {
		t.Errorf("expected malformed chunk skipped and valid one kept, got %q", got.String())
	}
}
