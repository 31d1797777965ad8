package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ChatMessage is a single role/content pair in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenRouter-compatible chat completion API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	referer    string
}

// NewClient creates an OpenRouter client. baseURL falls back to the public
// endpoint when empty; referer is sent as HTTP-Referer for attribution.
func NewClient(apiKey, baseURL, referer string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		referer:    referer,
	}
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion runs a streaming completion and calls onDelta for every
// content fragment, in order. It returns once the stream signals [DONE] or
// the context is cancelled. An error from onDelta aborts the stream and is
// returned as-is so callers can distinguish their own failures from
// provider ones.
func (c *Client) StreamCompletion(ctx context.Context, model string, messages []ChatMessage, onDelta func(string) error) error {
	body, err := json.Marshal(completionRequest{
		Model:    ResolveModel(model),
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
		req.Header.Set("X-Title", "ChatGPT Clone")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("completion request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read completion stream: %w", err)
	}

	// Stream ended without [DONE]; treat a truncated stream as a failure.
	return fmt.Errorf("completion stream ended unexpectedly")
}
