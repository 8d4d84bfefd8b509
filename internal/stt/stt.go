// Package stt implements the streaming Speech-to-Text Adapter: a
// WebSocket client forwarding 24kHz PCM16 frames upstream and dispatching
// partial/final transcript and voice-activity events back to the call.
// Grounded on the teacher's pkg/stt/deepgram.go (request shape, API-key
// auth header, nova-2 default model) generalized from its one-shot
// prerecorded REST call to Deepgram's streaming WS endpoint, and on
// pkg/retry for the exponential-backoff reconnect the spec requires.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vocalbridge/bridge/pkg/retry"
)

// MaxReconnectAttempts bounds the exponential-backoff reconnect loop.
const MaxReconnectAttempts = 5

// Config configures one streaming STT connection.
type Config struct {
	APIKey     string
	Model      string // default "nova-2"
	Language   string
	SampleRate int // default 24000, matching the bridge's internal rate
	BaseURL    string
}

// Callbacks receive transcript and voice-activity events as they arrive.
type Callbacks struct {
	OnPartial      func(text string)
	OnFinal        func(text string)
	OnUserSpeaking func()
}

// Adapter streams audio to Deepgram's live endpoint and dispatches
// transcript events via Callbacks.
type Adapter struct {
	cfg    Config
	logger *zap.Logger
	dial   func(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error)
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.deepgram.com/v1/listen"
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		dial:   websocket.DefaultDialer.DialContext,
	}
}

func (a *Adapter) IsAvailable() bool { return a.cfg.APIKey != "" }

func (a *Adapter) endpoint() string {
	q := url.Values{}
	q.Set("model", a.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", a.cfg.SampleRate))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	if a.cfg.Language != "" {
		q.Set("language", a.cfg.Language)
	}
	return a.cfg.BaseURL + "?" + q.Encode()
}

// Stream connects, forwards frames read from in until ctx is cancelled
// or in is closed, and dispatches decoded events to cb. A connection
// drop is retried with exponential backoff up to MaxReconnectAttempts
// before Stream returns an error.
func (a *Adapter) Stream(ctx context.Context, in <-chan []byte, cb Callbacks) error {
	if !a.IsAvailable() {
		return fmt.Errorf("stt: adapter not configured, missing API key")
	}

	cfg := retry.Config{
		MaxAttempts:  MaxReconnectAttempts,
		InitialDelay: 1 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return retry.Do(ctx, cfg, func() error {
		return a.runOnce(ctx, in, cb)
	})
}

func (a *Adapter) runOnce(ctx context.Context, in <-chan []byte, cb Callbacks) error {
	header := http.Header{}
	header.Set("Authorization", "Token "+a.cfg.APIKey)

	conn, _, err := a.dial(ctx, a.endpoint(), header)
	if err != nil {
		return fmt.Errorf("stt: dial failed: %w", err)
	}
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- a.readLoop(conn, cb) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frame, ok := <-in:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("stt: write failed: %w", err)
			}
		}
	}
}

type event struct {
	Type string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

func (a *Adapter) readLoop(conn *websocket.Conn, cb Callbacks) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stt: read failed: %w", err)
		}

		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			if a.logger != nil {
				a.logger.Warn("stt: unrecognized event payload", zap.Error(err))
			}
			continue
		}

		switch ev.Type {
		case "SpeechStarted":
			if cb.OnUserSpeaking != nil {
				cb.OnUserSpeaking()
			}
		case "Results":
			if len(ev.Channel.Alternatives) == 0 {
				continue
			}
			text := ev.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			if ev.IsFinal {
				if cb.OnFinal != nil {
					cb.OnFinal(text)
				}
			} else if cb.OnPartial != nil {
				cb.OnPartial(text)
			}
		}
	}
}
