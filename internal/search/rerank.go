package search

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Reranker reorders search hits by semantic relevance using a rerank
// endpoint. Two instances may be configured; the secondary carries the
// load and the primary is the failover. Reranking is best-effort: any
// total failure leaves the original order intact.
type Reranker struct {
	model        string
	primaryURL   string
	secondaryURL string
	apiKey       string
	httpClient   *http.Client
	logger       *slog.Logger
}

type RerankerOption func(*Reranker)

func WithSecondaryURL(u string) RerankerOption {
	return func(r *Reranker) { r.secondaryURL = u }
}

func WithRerankerAPIKey(key string) RerankerOption {
	return func(r *Reranker) { r.apiKey = key }
}

func WithRerankerHTTPClient(hc *http.Client) RerankerOption {
	return func(r *Reranker) { r.httpClient = hc }
}

func WithRerankerLogger(l *slog.Logger) RerankerOption {
	return func(r *Reranker) { r.logger = l }
}

func NewReranker(model, primaryURL string, opts ...RerankerOption) *Reranker {
	r := &Reranker{
		model:      model,
		primaryURL: primaryURL,
		httpClient: &http.Client{Timeout: time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int `json:"index"`
	} `json:"results"`
}

// Rerank returns results reordered best-first. A missing model or an
// empty input passes through unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, results []Result) []Result {
	if r.model == "" || len(results) == 0 {
		return results
	}

	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Content
	}
	payload, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: docs})
	if err != nil {
		return results
	}

	var indices []int
	if r.secondaryURL != "" {
		indices = r.call(ctx, r.secondaryURL, payload)
		if indices == nil {
			r.logger.Warn("rerank on secondary instance failed, falling back to primary")
		}
	}
	if indices == nil {
		indices = r.call(ctx, r.primaryURL, payload)
	}
	if indices == nil {
		r.logger.Error("rerank failed on all instances, keeping original order")
		return results
	}

	ranked := make([]Result, 0, len(results))
	for _, idx := range indices {
		if idx >= 0 && idx < len(results) {
			ranked = append(ranked, results[idx])
		}
	}
	return ranked
}

func (r *Reranker) call(ctx context.Context, baseURL string, payload []byte) []int {
	u := strings.TrimRight(baseURL, "/") + "/v1/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("rerank request failed", "url", u, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("rerank returned non-200", "url", u, "status", resp.StatusCode)
		return nil
	}

	var body rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Warn("rerank decode failed", "url", u, "error", err)
		return nil
	}

	// A 200 with no results cannot rank anything; treat it like a
	// failure so the caller keeps the original order instead of
	// dropping every hit.
	if len(body.Results) == 0 {
		r.logger.Warn("rerank returned no results", "url", u)
		return nil
	}

	indices := make([]int, len(body.Results))
	for i, res := range body.Results {
		indices[i] = res.Index
	}
	return indices
}
