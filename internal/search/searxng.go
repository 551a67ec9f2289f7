// Package search finds and distills web content: a SearXNG metasearch
// front-end, result reranking with instance failover, and LLM-driven
// fact extraction over fetched pages.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultMaxResults caps how many ranked URLs a search returns.
const DefaultMaxResults = 10

// Result is one search hit with its snippet, the unit the reranker
// scores.
type Result struct {
	URL     string
	Content string
}

// Searcher queries a SearXNG instance and optionally reranks the hits.
type Searcher struct {
	baseURL    string
	maxResults int
	reranker   *Reranker
	httpClient *http.Client
	logger     *slog.Logger
}

type SearcherOption func(*Searcher)

func WithMaxResults(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

func WithReranker(r *Reranker) SearcherOption {
	return func(s *Searcher) { s.reranker = r }
}

func WithSearcherHTTPClient(hc *http.Client) SearcherOption {
	return func(s *Searcher) { s.httpClient = hc }
}

func WithSearcherLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

func NewSearcher(baseURL string, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		baseURL:    baseURL,
		maxResults: DefaultMaxResults,
		httpClient: &http.Client{Timeout: time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type searxngResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// URLs runs query through SearXNG and returns up to maxResults URLs,
// best first. When a reranker is configured the hits are reordered by
// relevance before truncation.
func (s *Searcher) URLs(ctx context.Context, query string) ([]string, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("search: searxng URL not configured")
	}

	u := fmt.Sprintf("%s/search?%s", s.baseURL, url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: searxng returned status %d", resp.StatusCode)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		if r.URL != "" {
			results = append(results, Result{URL: r.URL, Content: r.Content})
		}
	}

	if s.reranker != nil {
		results = s.reranker.Rerank(ctx, query, results)
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	s.logger.Info("search complete", "query", query, "urls", len(urls))
	return urls, nil
}
