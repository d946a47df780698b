package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kewiro/bunge-digest/internal/engine"
)

// Client talks to an OpenAI-compatible chat completions endpoint. No example
// in the corpus carries a chat-completions SDK (the teacher's LLM calls go
// through a private internal client), so this wraps net/http directly —
// documented in DESIGN.md as a stdlib-only component.
type Client struct {
	httpClient *http.Client
	apiBase    string
	apiKey     string
	fallbacks  []string
	model      string
}

// NewClient builds a Client from the process configuration.
func NewClient() *Client {
	return &Client{
		httpClient: engine.Cfg.HTTPClient,
		apiBase:    strings.TrimSuffix(engine.Cfg.LLMAPIBase, "/"),
		apiKey:     engine.Cfg.LLMAPIKey,
		fallbacks:  engine.Cfg.LLMAPIKeyFallbacks,
		model:      engine.Cfg.LLMModel,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a system+user message pair and returns the assistant's
// text reply. It moves on to the next configured fallback API key only when
// a key is rate limited (HTTP 429); any other error is returned at once.
// Retry policy is left to the caller (see Summarizer.callWithRetry).
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	keys := append([]string{c.apiKey}, c.fallbacks...)

	var lastErr error
	for _, key := range keys {
		if key == "" {
			continue
		}
		text, err := c.complete(ctx, key, systemPrompt, userPrompt, temperature, maxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var rle *rateLimitError
		if !errors.As(err, &rle) {
			return "", err
		}
	}
	return "", fmt.Errorf("all LLM API keys exhausted: %w", lastErr)
}

// rateLimitError marks a 429 response whose body may carry a provider-specified
// retry-after hint, extracted by the caller via engine.ParseRetryAfterMillis.
type rateLimitError struct {
	body string
}

func (e *rateLimitError) Error() string { return "llm: rate limited: " + e.body }

// Body returns the raw response body, for retry-after parsing.
func (e *rateLimitError) Body() string { return e.body }

func (c *Client) complete(ctx context.Context, apiKey, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{body: string(body)}
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed (status %d): %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
