// Package ocr transcribes images and PDFs in a watch folder into Markdown
// notes through a generative-AI HTTP API.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the generative language API base URL.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// ErrRateLimited is returned when every attempt was answered with 429.
var ErrRateLimited = errors.New("ocr: rate limited")

// APIError is a non-retryable error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ocr: api error %d: %s", e.Status, e.Message)
}

// Client calls the generateContent endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	http        *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBackoff overrides the retry policy.
func WithBackoff(attempts int, base, maxDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for endpoint authenticated with apiKey.
func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		http:        &http.Client{Timeout: timeout},
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		maxDelay:    60 * time.Second,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Transcribe sends data with prompt to model and returns the text of the
// first candidate. 429 responses are retried with exponential backoff
// starting from the server's retry delay, or the base delay when none is
// given.
func (c *Client) Transcribe(ctx context.Context, model, prompt, mimeType string, data []byte) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{
		{Text: prompt},
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
	}}}})
	if err != nil {
		return "", fmt.Errorf("ocr: encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, model)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		text, retryAfter, err := c.call(ctx, url, body)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		if attempt == c.maxAttempts-1 {
			break
		}
		delay := c.backoff(attempt, retryAfter)
		c.logger.Warn("ocr: rate limited, retrying",
			slog.Int("attempt", attempt+1), slog.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrRateLimited, c.maxAttempts)
}

func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := c.baseDelay
	if retryAfter > 0 {
		d = retryAfter
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	if d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

func (c *Client) call(ctx context.Context, url string, body []byte) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ocr: request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", 0, fmt.Errorf("ocr: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", parseRetryDelay(raw), ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
			msg = er.Error.Message
		}
		return "", 0, &APIError{Status: resp.StatusCode, Message: msg}
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", 0, fmt.Errorf("ocr: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", 0, &APIError{Status: resp.StatusCode, Message: "no candidates in response"}
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), 0, nil
}

// parseRetryDelay reads RetryInfo.retryDelay ("37s") from an error body.
func parseRetryDelay(raw []byte) time.Duration {
	var er errorResponse
	if json.Unmarshal(raw, &er) != nil {
		return 0
	}
	for _, d := range er.Error.Details {
		if d.RetryDelay == "" {
			continue
		}
		if v, err := time.ParseDuration(d.RetryDelay); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
