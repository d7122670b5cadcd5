package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "[]"}],
			"usage": {"input_tokens": 120, "output_tokens": 8, "cache_read_input_tokens": 30, "cache_creation_input_tokens": 0}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.SetBaseURL(srv.URL)

	resp, err := c.Complete(context.Background(), Request{Model: "claude-sonnet-4-5", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "[]" {
		t.Errorf("expected text %q, got %q", "[]", resp.Text)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 8 || resp.Usage.CacheReadTokens != 30 {
		t.Errorf("usage mismatch: %+v", resp.Usage)
	}
}

func TestAnthropicClient_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "bad"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.SetBaseURL(srv.URL)
	c.maxElapsed = 2 * time.Second

	if _, err := c.Complete(context.Background(), Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestAnthropicClient_ServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}], "usage": {"input_tokens": 1, "output_tokens": 1}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.SetBaseURL(srv.URL)

	resp, err := c.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("expected %q, got %q", "ok", resp.Text)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 calls, got %d", calls)
	}
}

func TestAnthropicClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key")
	c.SetBaseURL(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Complete(ctx, Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
