// Package fetch downloads web pages and turns them into plain text
// suitable for fact extraction: boilerplate stripped, whitespace
// normalized, and the result split into overlapping chunks sized for
// an LLM context window.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gendev/gen-agent/internal/httpkit"
)

// DefaultTimeout bounds one page download.
const DefaultTimeout = 3 * time.Minute

// DefaultMaxBytes caps the response body size (5 MB).
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// Chunking geometry for downstream fact extraction.
const (
	ChunkSize    = 2000
	ChunkOverlap = 500
)

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func New(client *http.Client) *Fetcher {
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout))
	}
	return &Fetcher{client: client, maxBytes: DefaultMaxBytes}
}

// Page is the extracted content of one URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetch downloads rawURL and extracts its readable text. Non-HTML
// responses are returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: %s returned status %d", rawURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	body := string(raw)
	if !utf8.ValidString(body) {
		body = strings.ToValidUTF8(body, "")
	}

	page := &Page{URL: rawURL}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "html") || ct == "" {
		page.Title, page.Text = extractHTML(body)
	} else {
		page.Text = strings.TrimSpace(body)
	}
	return page, nil
}

// Chunks splits text into overlapping windows of the standard chunk
// geometry. Empty text yields nil.
func Chunks(text string) []string {
	if text == "" {
		return nil
	}
	step := ChunkSize - ChunkOverlap
	var out []string
	for i := 0; i < len(text); i += step {
		end := i + ChunkSize
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[i:end])
		if end == len(text) {
			break
		}
	}
	return out
}
