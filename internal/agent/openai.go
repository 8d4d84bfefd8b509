package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIEngine streams chat completions from OpenAI's SSE endpoint,
// structurally grounded on the teacher's OpenAIProvider
// (pkg/ai/openai.go) request-building but reworked for a streaming
// response instead of a single JSON body.
type OpenAIEngine struct {
	apiKey       string
	systemPrompt string
	baseURL      string
	client       *http.Client
	logger       *zap.Logger
}

func NewOpenAIEngine(apiKey, systemPrompt string, logger *zap.Logger) *OpenAIEngine {
	return &OpenAIEngine{
		apiKey:       apiKey,
		systemPrompt: systemPrompt,
		baseURL:      "https://api.openai.com/v1",
		client:       &http.Client{},
		logger:       logger,
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) IsAvailable() bool { return e.apiKey != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamResponse posts a streaming chat/completions request and invokes
// onDelta for every content fragment the model emits.
func (e *OpenAIEngine) StreamResponse(ctx context.Context, req Request, onDelta func(Delta)) error {
	if !e.IsAvailable() {
		return fmt.Errorf("agent: openai engine not configured")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := make([]chatMessage, 0, len(req.History)+2)
	if e.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: e.systemPrompt})
	}
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserText})

	model := req.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return fmt.Errorf("agent: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("agent: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent: openai returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if reqCtx.Err() != nil {
			return reqCtx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			onDelta(Delta{Done: true})
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			if e.logger != nil {
				e.logger.Warn("agent: failed to decode stream chunk", zap.Error(err))
			}
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onDelta(Delta{Text: choice.Delta.Content})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("agent: stream read failed: %w", err)
	}
	onDelta(Delta{Done: true})
	return nil
}
