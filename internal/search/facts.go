package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gendev/gen-agent/internal/fetch"
	"github.com/gendev/gen-agent/internal/llm"
)

const (
	extractionMaxTokens = 2048
	filterMaxTokens     = 1024
)

var fencedJSONPat = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// Extractor turns fetched pages into discrete facts and filters them
// against the user's intent.
type Extractor struct {
	fetcher *fetch.Fetcher
	llm     *llm.Client
	logger  *slog.Logger
}

func NewExtractor(fetcher *fetch.Fetcher, llmClient *llm.Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{fetcher: fetcher, llm: llmClient, logger: logger}
}

// ExtractFacts downloads url, chunks its text, and asks the model to
// pull out facts relevant to queryContext. Never fails: any problem
// along the way yields an empty list.
func (e *Extractor) ExtractFacts(ctx context.Context, url, queryContext string) []string {
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		e.logger.Error("fact extraction fetch failed", "url", url, "error", err)
		return nil
	}
	if page.Text == "" {
		e.logger.Warn("no text content after extraction", "url", url)
		return nil
	}

	var all []string
	for _, chunk := range fetch.Chunks(page.Text) {
		facts := e.extractFromChunk(ctx, chunk, queryContext)
		all = append(all, facts...)
	}
	e.logger.Info("fact extraction complete", "url", url, "facts", len(all))
	return all
}

func (e *Extractor) extractFromChunk(ctx context.Context, chunk, queryContext string) []string {
	system := fmt.Sprintf(
		"You are a meticulous data extraction engine. Your task is to identify and list all key facts, statements, and data points from the provided text chunk. "+
			"The original user query for context was: '%s'. Focus on information relevant to this query. "+
			"Extract each distinct fact or data point as a separate, complete sentence. "+
			"Present the output as a JSON array of strings. For example: [\"Fact one.\", \"Fact two.\", \"Data point three.\"] "+
			"If the text chunk contains no relevant facts, return an empty JSON array [].",
		queryContext)

	out, err := e.llm.Complete(ctx, system, chunk, extractionMaxTokens)
	if err != nil {
		e.logger.Error("fact extraction completion failed", "error", err)
		return nil
	}

	clean := strings.TrimSpace(out)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimSuffix(clean, "```")

	var facts []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &facts); err != nil {
		e.logger.Warn("fact extraction returned unparseable output", "error", err)
		return nil
	}
	return facts
}

// FilterRelevance condenses facts into a summary paragraph and the
// subset of facts it used, judged against the user's original query.
// On model failure it returns an error note plus the first few facts
// so the caller still has something to work with.
func (e *Extractor) FilterRelevance(ctx context.Context, query string, facts []string) (summary string, relevant []string) {
	if len(facts) == 0 {
		return "No facts were extracted from the source.", nil
	}

	var listing strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&listing, "- %s\n", f)
	}

	system := fmt.Sprintf(`You are a filtering agent. The user's original query was: '%s'.
Review the following list of facts.
1. Create a concise, coherent paragraph summarizing only the most relevant facts.
2. List the specific facts you used for the summary.

Respond with a single JSON object with two keys: "summary" (a string) and "relevant_facts" (a list of strings).
Facts:
%s`, query, listing.String())

	out, err := e.llm.Complete(ctx, system, "Please provide the JSON response.", filterMaxTokens)
	if err != nil {
		e.logger.Error("relevance filter completion failed", "error", err)
		return "Error while filtering facts: " + err.Error(), head(facts, 3)
	}

	raw := strings.TrimSpace(out)
	if m := fencedJSONPat.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var parsed struct {
		Summary       string   `json:"summary"`
		RelevantFacts []string `json:"relevant_facts"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Error("relevance filter returned unparseable output", "error", err)
		return "Error while filtering facts: could not parse model response.", head(facts, 3)
	}
	if parsed.Summary == "" {
		parsed.Summary = "Could not produce a summary."
	}
	return parsed.Summary, parsed.RelevantFacts
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
