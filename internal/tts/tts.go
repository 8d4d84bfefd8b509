// Package tts implements the Text-to-Speech Adapter: one cancellable
// synthesize(text) operation returning 24kHz PCM16 frames for the TTS
// Scheduler. Grounded on the teacher's pkg/ai/openai_tts.go (request
// shape, API-key bearer auth, tts-1-hd default model) but targets
// OpenAI's "pcm" response_format directly at 24kHz — the bridge's
// internal processing rate — so no ffmpeg/ MP3 conversion step is
// needed; synthesis goes through pkg/httpclient for its
// retry+circuit-breaker policy.
package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vocalbridge/bridge/internal/audio"
	"github.com/vocalbridge/bridge/pkg/httpclient"
)

// Config configures one synthesis backend.
type Config struct {
	APIKey  string
	Model   string // tts-1 or tts-1-hd
	Voice   string
	BaseURL string
	Timeout time.Duration
}

// Adapter synthesizes text into 24kHz PCM16 frames.
type Adapter struct {
	cfg    Config
	client *httpclient.HTTPClient
}

func New(cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = "tts-1-hd"
	}
	if cfg.Voice == "" {
		cfg.Voice = "shimmer"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: httpclient.New("tts", cfg.Timeout),
	}
}

func (a *Adapter) IsAvailable() bool { return a.cfg.APIKey != "" }

// Synthesize converts text into 24kHz PCM16 frames of audio.Frame24kBytes
// each, cooperatively cancellable via ctx (checked before the request is
// issued and again before the response body is consumed).
func (a *Adapter) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if !a.IsAvailable() {
		return nil, fmt.Errorf("tts: adapter not configured, missing API key")
	}
	if text == "" {
		return nil, fmt.Errorf("tts: text cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	body := map[string]interface{}{
		"model":           a.cfg.Model,
		"input":           text,
		"voice":           a.cfg.Voice,
		"response_format": "pcm",
		"speed":           1.0,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}

	resp, err := a.client.Post(ctx, a.cfg.BaseURL+"/audio/speech", headers, body)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		var problem struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		return nil, fmt.Errorf("tts: upstream error %d: %s", resp.StatusCode, problem.Error.Message)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: failed to read audio: %w", err)
	}

	return splitFrames(pcm, audio.Frame24kBytes), nil
}

// splitFrames slices pcm into frameSize-byte chunks, zero-padding the
// final partial frame so every frame handed to the pacer is uniform.
func splitFrames(pcm []byte, frameSize int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}

	n := (len(pcm) + frameSize - 1) / frameSize
	frames := make([][]byte, 0, n)
	for i := 0; i < len(pcm); i += frameSize {
		end := i + frameSize
		if end > len(pcm) {
			frame := make([]byte, frameSize)
			copy(frame, pcm[i:])
			frames = append(frames, frame)
			break
		}
		frame := make([]byte, frameSize)
		copy(frame, pcm[i:end])
		frames = append(frames, frame)
	}
	return frames
}
