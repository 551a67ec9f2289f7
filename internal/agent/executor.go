package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gendev/gen-agent/internal/media"
	"github.com/gendev/gen-agent/internal/mentions"
	"github.com/gendev/gen-agent/internal/tools"
)

// ResultKind tells the loop what to do after a tool runs.
type ResultKind int

const (
	// ResultIntermediate feeds the tool output back to the oracle for
	// another pass.
	ResultIntermediate ResultKind = iota
	// ResultTerminal ends the interaction with Content as the reply.
	ResultTerminal
	// ResultError ends the interaction with an in-character failure
	// message as the reply.
	ResultError
)

// Result is the outcome of one tool execution.
type Result struct {
	Kind      ResultKind
	Content   string
	Artifacts []media.Artifact
	// PromptForLog carries the image prompt for the audit trail. The
	// user-facing Content for an image is just the comment, so the
	// prompt has to travel separately.
	PromptForLog string
}

// KnowledgeStore is the subset of the knowledge client the executor
// writes through.
type KnowledgeStore interface {
	Store(ctx context.Context, text, authorRef, subjectHint string) (string, error)
	Enabled() bool
}

// WebSearcher returns candidate URLs for a query.
type WebSearcher interface {
	URLs(ctx context.Context, query string) ([]string, error)
}

// FactExtractor pulls facts out of a page and filters them against the
// conversation.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, url, queryContext string) []string
	FilterRelevance(ctx context.Context, query string, facts []string) (summary string, relevant []string)
}

// ImageBackend renders images from a prompt.
type ImageBackend interface {
	Generate(ctx context.Context, prompt string) []media.Artifact
}

// Executor dispatches oracle tool calls to their backends.
type Executor struct {
	knowledge KnowledgeStore
	searcher  WebSearcher
	extractor FactExtractor
	images    ImageBackend
	dir       mentions.Directory
	botUserID string
	logger    *slog.Logger
}

func NewExecutor(knowledge KnowledgeStore, searcher WebSearcher, extractor FactExtractor, images ImageBackend, dir mentions.Directory, botUserID string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		knowledge: knowledge,
		searcher:  searcher,
		extractor: extractor,
		images:    images,
		dir:       dir,
		botUserID: botUserID,
		logger:    logger,
	}
}

// Execute runs one tool call. originalMessage is the user message that
// started the interaction; the web search tool filters facts against it
// rather than against whatever query the oracle invented. Backend
// failures and panics come back as error results, never as panics.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, originalMessage string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool execution panicked", "tool", name, "panic", r)
			res = Result{Kind: ResultError, Content: fmt.Sprintf("Something went wrong with my %s tool, neko! (%v)", name, r)}
		}
	}()

	tool, err := tools.ParseName(name)
	if err != nil {
		return Result{Kind: ResultError, Content: fmt.Sprintf("I don't know the tool '%s', neko!", name)}
	}

	switch tool {
	case tools.RespondToUser:
		text := stringArg(args, "text_to_send")
		if text == "" {
			text = "I'm speechless, neko!"
		}
		return Result{Kind: ResultTerminal, Content: text}

	case tools.StoreKnowledge:
		return e.storeKnowledge(ctx, args)

	case tools.GenerateImage:
		return e.generateImage(ctx, args)

	case tools.PerformWebSearch:
		return e.webSearch(ctx, args, originalMessage)

	case tools.OverthinkInput:
		thought := stringArg(args, "detailed_thought_process")
		if thought == "" {
			thought = "I've analyzed the situation..."
		}
		return Result{Kind: ResultIntermediate, Content: thought}

	case tools.InquireForDetails:
		question := stringArg(args, "clarifying_question_to_ask")
		if question == "" {
			return Result{Kind: ResultError, Content: "The LLM wanted to ask something but forgot what!"}
		}
		return Result{Kind: ResultTerminal, Content: question}
	}

	return Result{Kind: ResultError, Content: fmt.Sprintf("I don't know the tool '%s', neko!", name)}
}

func (e *Executor) storeKnowledge(ctx context.Context, args map[string]any) Result {
	text := stringArg(args, "unstructured_text")
	if text == "" {
		return Result{Kind: ResultError, Content: "LLM didn't provide text to store!"}
	}

	// The knowledge store speaks canonical user references, not display
	// aliases, in both directions.
	names, err := e.dir.KnownNames(ctx)
	if err != nil {
		e.logger.Warn("known names lookup failed", "error", err)
	}
	stored := mentions.AliasesToRefs(text, names)
	authorRef := fmt.Sprintf("User (user_id: %s)", e.botUserID)

	reply, err := e.knowledge.Store(ctx, stored, authorRef, stringArg(args, "subject_hint"))
	if err != nil {
		e.logger.Error("knowledge store failed", "error", err)
		return Result{Kind: ResultError, Content: fmt.Sprintf("Something went wrong with my store_knowledge tool, neko! (%v)", err)}
	}

	return Result{Kind: ResultIntermediate, Content: mentions.RefsToAliases(ctx, reply, e.dir)}
}

func (e *Executor) generateImage(ctx context.Context, args map[string]any) Result {
	prompt := stringArg(args, "image_generation_prompt")
	if prompt == "" {
		return Result{Kind: ResultError, Content: "The LLM forgot what to draw!"}
	}
	comment := stringArg(args, "comment_for_image")
	if comment == "" {
		comment = "Here you go, darling!"
	}

	artifacts := e.images.Generate(ctx, prompt)
	if len(artifacts) == 0 {
		return Result{Kind: ResultError, Content: "My art tools are jammed!", PromptForLog: prompt}
	}

	return Result{Kind: ResultTerminal, Content: comment, Artifacts: artifacts, PromptForLog: prompt}
}

const noSearchResults = "[No search results found.]"

func (e *Executor) webSearch(ctx context.Context, args map[string]any, originalMessage string) Result {
	query := stringArg(args, "search_query_for_web")
	if query == "" {
		return Result{Kind: ResultIntermediate, Content: noSearchResults}
	}

	urls, err := e.searcher.URLs(ctx, query)
	if err != nil {
		e.logger.Error("web search failed", "query", query, "error", err)
		return Result{Kind: ResultIntermediate, Content: noSearchResults}
	}
	if len(urls) == 0 {
		return Result{Kind: ResultIntermediate, Content: noSearchResults}
	}

	facts := e.extractor.ExtractFacts(ctx, urls[0], query)
	summary, relevant := e.extractor.FilterRelevance(ctx, originalMessage, facts)

	// Relevant facts survive the interaction: store them so the next
	// conversation does not have to search again. One call, newline
	// separated, so the store sees them as a single batch.
	if len(relevant) > 0 && e.knowledge != nil && e.knowledge.Enabled() {
		names, _ := e.dir.KnownNames(ctx)
		authorRef := fmt.Sprintf("User (user_id: %s)", e.botUserID)
		batch := mentions.AliasesToRefs(strings.Join(relevant, "\n"), names)
		if _, err := e.knowledge.Store(ctx, batch, authorRef, query); err != nil {
			e.logger.Warn("storing search facts failed", "error", err)
		}
	}

	return Result{Kind: ResultIntermediate, Content: summary}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
