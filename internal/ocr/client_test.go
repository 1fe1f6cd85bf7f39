package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestTranscribe_SendsInlineDataAndKey(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world\n"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", 5*time.Second, WithLogger(quietLogger()))
	text, err := c.Transcribe(context.Background(), "test-model", "read it", "image/png", []byte("PNG"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "read it" || parts[1].InlineData == nil {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[1].InlineData.MimeType != "image/png" || parts[1].InlineData.Data != "UE5H" {
		t.Errorf("inline data = %+v", parts[1].InlineData)
	}
}

func TestTranscribe_RetriesRateLimitWithServerDelay(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"7s"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, "k", 5*time.Second,
		WithLogger(quietLogger()),
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}))
	text, err := c.Transcribe(context.Background(), "m", "p", "image/png", []byte("x"))
	if err != nil || text != "ok" {
		t.Fatalf("Transcribe = %q, %v", text, err)
	}
	if len(delays) != 2 || delays[0] != 7*time.Second || delays[1] != 14*time.Second {
		t.Errorf("delays = %v", delays)
	}
}

func TestTranscribe_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, "k", 5*time.Second,
		WithLogger(quietLogger()),
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}))
	_, err := c.Transcribe(context.Background(), "m", "p", "image/png", []byte("x"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d", calls.Load())
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("default delays = %v", delays)
	}
}

func TestTranscribe_FatalErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad image"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 5*time.Second, WithLogger(quietLogger()))
	_, err := c.Transcribe(context.Background(), "m", "p", "image/png", []byte("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 400 || apiErr.Message != "bad image" {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestBackoff_Capped(t *testing.T) {
	c := NewClient("", "", time.Second, WithBackoff(5, time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(i, 0); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i, got, w)
		}
	}
	if got := c.backoff(0, time.Minute); got != 5*time.Second {
		t.Errorf("server delay should be capped, got %v", got)
	}
}
