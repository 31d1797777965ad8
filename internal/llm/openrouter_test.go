package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func streamServer(t *testing.T, status int, lines ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func TestStreamCompletion(t *testing.T) {
	srv := streamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{}}]}`,
		`data: [DONE]`,
	)
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "http://localhost:3000")

	var got strings.Builder
	err := client.StreamCompletion(context.Background(), "gpt-4-turbo",
		[]ChatMessage{{Role: "user", Content: "hi"}},
		func(delta string) error {
			got.WriteString(delta)
			return nil
		})
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if got.String() != "Hello" {
		t.Errorf("assembled %q, want Hello", got.String())
	}
}

func TestStreamCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "")
	err := client.StreamCompletion(context.Background(), "gpt-4-turbo", nil, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestStreamCompletionTruncatedStream(t *testing.T) {
	srv := streamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
	)
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "")
	err := client.StreamCompletion(context.Background(), "gpt-4-turbo", nil, func(string) error { return nil })
	if err == nil {
		t.Fatal("stream without [DONE] should error")
	}
}

func TestStreamCompletionCallbackErrorAborts(t *testing.T) {
	srv := streamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: [DONE]`,
	)
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "")
	sentinel := errors.New("stop here")
	calls := 0
	err := client.StreamCompletion(context.Background(), "gpt-4-turbo", nil, func(string) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("callback should run once before abort, ran %d times", calls)
	}
}

func TestStreamCompletionContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := streamServer(t, http.StatusOK, `data: [DONE]`)
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "")
	err := client.StreamCompletion(ctx, "gpt-4-turbo", nil, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
