package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MetricsRecorder is an optional interface for recording upstream call metrics.
type MetricsRecorder interface {
	IncUpstreamRequests(method, path string, statusCode int)
	ObserveUpstreamDuration(method, path string, seconds float64)
	IncUpstreamRetries()
	IncUpstreamErrors(errorType string)
}

// Client issues authenticated JSON requests to the metering platform. It is
// immutable after construction and safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	httpc        *http.Client
	maxAttempts  int
	retryBackoff time.Duration
	metrics      MetricsRecorder
}

// New creates a Client for the given base URL and API key.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpc:        &http.Client{Timeout: timeout},
		maxAttempts:  3,
		retryBackoff: time.Second,
	}
}

// SetRetryPolicy overrides the default retry budget (3 attempts total) and the
// initial inter-attempt backoff (1s, exponential; zero disables sleeping).
func (c *Client) SetRetryPolicy(maxAttempts int, initialBackoff time.Duration) {
	if maxAttempts >= 1 {
		c.maxAttempts = maxAttempts
	}
	c.retryBackoff = initialBackoff
}

// SetMetrics sets the optional metrics recorder.
func (c *Client) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Call sends method+path to the upstream API and returns the response status
// and decoded body. A nil payload sends no request body. Query parameters, when
// present, are appended URL-encoded. 4xx responses fail with *ClientError and
// are never retried; 5xx responses fail with *ServerError after the retry
// budget is exhausted.
func (c *Client) Call(ctx context.Context, method, path string, payload interface{}, query url.Values) (int, interface{}, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyBytes []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request payload: %w", err)
		}
		bodyBytes = b
	}

	var status int
	var decoded interface{}
	attempts := 0

	attempt := func() error {
		attempts++
		s, d, err := c.do(ctx, method, target, path, bodyBytes)
		status, decoded = s, d
		return err
	}

	isRetryable := func(err error) bool {
		var se *ServerError
		return errors.As(err, &se)
	}

	err := withRetry(ctx, c.maxAttempts, c.retryBackoff, isRetryable, attempt)

	if c.metrics != nil {
		for i := 1; i < attempts; i++ {
			c.metrics.IncUpstreamRetries()
		}
	}

	if err != nil {
		if c.metrics != nil {
			c.metrics.IncUpstreamErrors(classifyError(err))
		}
		return status, decoded, err
	}
	return status, decoded, nil
}

// do performs a single attempt: send, decode, classify.
func (c *Client) do(ctx context.Context, method, target, path string, body []byte) (int, interface{}, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Setting Accept-Encoding explicitly disables the transport's transparent
	// decompression, so gzip responses must be decoded by decodeBody.
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("x-api-key", c.apiKey)

	slog.Info("upstream request", "method", method, "url", target)

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if c.metrics != nil {
		c.metrics.ObserveUpstreamDuration(method, path, time.Since(start).Seconds())
	}
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	decoded, err := decodeBody(resp)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	slog.Info("upstream response", "method", method, "path", path, "status", resp.StatusCode, "body", decoded)

	if c.metrics != nil {
		c.metrics.IncUpstreamRequests(method, path, resp.StatusCode)
	}

	switch {
	case resp.StatusCode >= 500:
		return resp.StatusCode, decoded, &ServerError{Status: resp.StatusCode, Body: decoded}
	case resp.StatusCode >= 400:
		return resp.StatusCode, decoded, &ClientError{Status: resp.StatusCode, Body: decoded}
	default:
		return resp.StatusCode, decoded, nil
	}
}

// decodeBody reads the response body, decompressing gzip content when the
// upstream says so, and parses it as JSON. An empty body decodes to an empty
// object. A non-empty body that is not valid JSON passes through as raw text.
func decodeBody(resp *http.Response) (interface{}, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip response: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Warn("response body is not valid JSON, passing through as text", "error", err)
		return string(raw), nil
	}
	return decoded, nil
}

// classifyError categorizes a failed call for metrics labels.
func classifyError(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return "server"
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return "client"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "network"
}
