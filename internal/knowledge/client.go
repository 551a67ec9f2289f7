// Package knowledge is the client for the background knowledge-store
// service. It submits raw text for asynchronous graph ingestion,
// queries the graph, and controls the service's processing queue so
// heavy ingestion can be paused while the agent is composing a reply.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one knowledge service instance. A zero base URL
// disables the client: every call reports ErrDisabled.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ErrDisabled is returned when no service URL is configured.
var ErrDisabled = fmt.Errorf("knowledge service not configured")

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.logger.Warn("knowledge service URL not set, client disabled")
	}
	return c
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Store submits unstructured text for ingestion. authorRef attributes
// the submission; subjectHint may be empty. The returned string is the
// service's acknowledgement rendered for conversational context.
func (c *Client) Store(ctx context.Context, text, authorRef, subjectHint string) (string, error) {
	params := url.Values{}
	if authorRef != "" {
		params.Set("author_ref", authorRef)
	}
	if subjectHint != "" {
		params.Set("subject_hint", subjectHint)
	}

	body, err := c.request(ctx, http.MethodPost, "/store", params, strings.NewReader(text), "text/plain")
	if err != nil {
		return "", err
	}
	return renderReply(body), nil
}

// Search runs a natural-language query over the knowledge graph.
func (c *Client) Search(ctx context.Context, query, authorRef string) (string, error) {
	params := url.Values{"query": {query}}
	if authorRef != "" {
		params.Set("author_ref", authorRef)
	}

	body, err := c.request(ctx, http.MethodGet, "/search", params, nil, "")
	if err != nil {
		return "", err
	}
	return renderReply(body), nil
}

// Pause suspends background ingestion.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodPost, "/control/pause", nil, nil, "")
	return err
}

// Resume restarts background ingestion.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodPost, "/control/resume", nil, nil, "")
	return err
}

// Status describes the service's processing state.
type Status struct {
	IsProcessingActive bool `json:"is_processing_active"`
	QueuedItems        int  `json:"queued_items"`
}

// Info fetches the service's processing state.
func (c *Client) Info(ctx context.Context) (*Status, error) {
	body, err := c.request(ctx, http.MethodGet, "/control/info", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	return &st, nil
}

// ProcessQueue triggers one drain of the service's pending queue.
func (c *Client) ProcessQueue(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodPost, "/control/process", nil, nil, "")
	return err
}

func (c *Client) request(ctx context.Context, method, endpoint string, params url.Values, body io.Reader, contentType string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, ErrDisabled
	}

	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("knowledge %s %s: status %d: %s", method, endpoint, resp.StatusCode, string(data))
	}
	return data, nil
}

// renderReply flattens a JSON acknowledgement into readable text. A
// body that is not JSON comes back verbatim.
func renderReply(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return strings.TrimSpace(string(body))
	}
	if msg, ok := m["message"].(string); ok && msg != "" {
		return msg
	}
	if res, ok := m["result"].(string); ok && res != "" {
		return res
	}
	out, err := json.Marshal(m)
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	return string(out)
}
