// Package httpclient wraps http.Client with retry and circuit-breaker
// policies. In this module only the TTS adapter uses it; the STT, agent
// and coordinator paths make their upstream calls without it.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vocalbridge/bridge/pkg/circuitbreaker"
	"github.com/vocalbridge/bridge/pkg/metrics"
	"github.com/vocalbridge/bridge/pkg/retry"
)

// HTTPClient wraps http.Client with retry and circuit breaker.
type HTTPClient struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	serviceName    string
}

// New creates a new HTTP client with retry and circuit breaker for the
// named upstream service.
func New(serviceName string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		serviceName:    serviceName,
	}
}

// Post performs a POST request with retry and circuit breaker, JSON-encoding
// body and returning the raw response for the caller to decode.
func (c *HTTPClient) Post(ctx context.Context, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	start := time.Now()
	var resp *http.Response
	var err error

	err = c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultConfig(), func() error {
			jsonData, marshalErr := json.Marshal(body)
			if marshalErr != nil {
				return marshalErr
			}

			req, reqErr := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
			if reqErr != nil {
				return reqErr
			}
			req.Header.Set("Content-Type", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, reqErr = c.client.Do(req)
			if reqErr != nil {
				return reqErr
			}

			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error: %d", resp.StatusCode)
			}

			return nil
		})
	})

	latency := time.Since(start)
	success := err == nil && resp != nil && resp.StatusCode < 400

	metrics.RecordServiceCall(c.serviceName, success, latency)

	state := c.circuitBreaker.GetState()
	stateStr := "closed"
	switch state {
	case circuitbreaker.StateOpen:
		stateStr = "open"
	case circuitbreaker.StateHalfOpen:
		stateStr = "half-open"
	}
	stats := c.circuitBreaker.GetStats()
	failures := int64(0)
	if f, ok := stats["failures"].(int); ok {
		failures = int64(f)
	}
	metrics.UpdateCircuitBreaker(c.serviceName, stateStr, failures)

	return resp, err
}

// Do performs an arbitrary request with retry and circuit breaker, for
// upstreams (like streaming STT session setup) that need verbs or bodies
// Post doesn't cover.
func (c *HTTPClient) Do(ctx context.Context, buildReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	start := time.Now()
	var resp *http.Response
	var err error

	err = c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultConfig(), func() error {
			req, reqErr := buildReq(ctx)
			if reqErr != nil {
				return reqErr
			}
			resp, reqErr = c.client.Do(req)
			if reqErr != nil {
				return reqErr
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error: %d", resp.StatusCode)
			}
			return nil
		})
	})

	latency := time.Since(start)
	success := err == nil && resp != nil && resp.StatusCode < 400
	metrics.RecordServiceCall(c.serviceName, success, latency)

	return resp, err
}
