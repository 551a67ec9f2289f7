// Package llm is a client for OpenAI-compatible chat completion
// endpoints with function calling. Transient failures are retried a
// fixed number of times with a fixed delay before surfacing an error.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxAttempts = 3
	retryDelay  = time.Second
)

// Client talks to one chat completion endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the given base URL (without the /v1 path).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Turn           `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Turn   `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat runs one chat completion over the given turns. When tools is
// non-empty the catalog is attached with automatic tool choice. The
// returned turn is the first choice's message.
func (c *Client) Chat(ctx context.Context, turns []Turn, tools []map[string]any, maxTokens int) (*Turn, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.post(ctx, "/v1/chat/completions", body)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, fmt.Errorf("empty choices in completion response")
			}
			return &resp.Choices[0].Message, nil
		}
		lastErr = err
		c.logger.Warn("chat completion attempt failed",
			"attempt", attempt, "model", c.model, "error", err)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("chat completion failed after %d attempts: %w", maxAttempts, lastErr)
}

// Complete is a convenience wrapper for single-shot prompts with no
// tool catalog, used for extraction and summarization work.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	turns := []Turn{}
	if system != "" {
		turns = append(turns, Turn{Role: "system", Content: system})
	}
	turns = append(turns, Turn{Role: "user", Content: user})

	msg, err := c.Chat(ctx, turns, nil, maxTokens)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*chatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(detail))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
