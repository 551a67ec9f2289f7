package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gendev/gen-agent/internal/events"
	"github.com/gendev/gen-agent/internal/history"
	"github.com/gendev/gen-agent/internal/llm"
	"github.com/gendev/gen-agent/internal/media"
	"github.com/gendev/gen-agent/internal/mentions"
	"github.com/gendev/gen-agent/internal/persona"
	"github.com/gendev/gen-agent/internal/profiles"
	"github.com/gendev/gen-agent/internal/queue"
	"github.com/gendev/gen-agent/internal/store"
	"github.com/gendev/gen-agent/internal/tokens"
	"github.com/gendev/gen-agent/internal/tools"
)

// aliasRequestPat matches a user asking to be addressed differently.
// Handled before any model call so a rename never burns an iteration.
var aliasRequestPat = regexp.MustCompile(`(?i)(?:call\s+me|my\s+name\s+is|i\s+want\s+to\s+be\s+called)\s+([\w\s'-]+)`)

const (
	defaultMaxIterations = 12
	actionSummaryLimit   = 1000
	// promptOverheadPad absorbs message framing tokens the estimator
	// cannot see.
	promptOverheadPad = 50
)

// DecisionMaker is the oracle surface the loop drives.
type DecisionMaker interface {
	Decide(ctx context.Context, in PromptInput) Decision
}

// ToolRunner executes one tool call.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any, originalMessage string) Result
}

// HistoryBuilder assembles budgeted conversation history.
type HistoryBuilder interface {
	Build(ctx context.Context, req history.Request) ([]llm.Turn, string)
}

// ActionRecorder persists the tool audit trail.
type ActionRecorder interface {
	RecordAction(ctx context.Context, a store.Action) error
}

// IngestControl pauses the background knowledge worker while the agent
// needs the completion backend to itself.
type IngestControl interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Enabled() bool
}

// QueueView is the read-only queue surface the loop previews.
type QueueView interface {
	PeekChannel(channelID string) []queue.Item
	PendingIDs() map[string]struct{}
}

// ProfileDir is the profile surface the loop needs.
type ProfileDir interface {
	Alias(ctx context.Context, userID string) string
	Relationship(ctx context.Context, userID string) string
	UpdateAlias(ctx context.Context, userID, alias, username string) error
	KnownNames(ctx context.Context) ([]profiles.NameRef, error)
	Get(ctx context.Context, userID string) (*profiles.User, error)
}

// Reply is what goes back to the transport.
type Reply struct {
	Text      string
	Artifacts []media.Artifact
}

// Agent runs the bounded reasoning loop for one inbound message at a
// time.
type Agent struct {
	oracle   DecisionMaker
	runner   ToolRunner
	hist     HistoryBuilder
	recorder ActionRecorder
	ingest   IngestControl
	queue    QueueView
	dir      ProfileDir
	persona  *persona.Persona
	est      *tokens.Estimator
	bus      *events.Bus
	loc      *time.Location
	logger   *slog.Logger

	botUserID     string
	maxContextTok int
	maxOutputTok  int
	maxIterations int

	now func() time.Time
}

// Options carries the knobs New does not take positionally.
type Options struct {
	BotUserID     string
	MaxContextTok int
	MaxOutputTok  int
	MaxIterations int
	Location      *time.Location
	Bus           *events.Bus
	Logger        *slog.Logger
}

func New(oracle DecisionMaker, runner ToolRunner, hist HistoryBuilder, recorder ActionRecorder, ingest IngestControl, q QueueView, dir ProfileDir, p *persona.Persona, est *tokens.Estimator, opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	return &Agent{
		oracle:        oracle,
		runner:        runner,
		hist:          hist,
		recorder:      recorder,
		ingest:        ingest,
		queue:         q,
		dir:           dir,
		persona:       p,
		est:           est,
		bus:           opts.Bus,
		loc:           opts.Location,
		logger:        opts.Logger,
		botUserID:     opts.BotUserID,
		maxContextTok: opts.MaxContextTok,
		maxOutputTok:  opts.MaxOutputTok,
		maxIterations: opts.MaxIterations,
		now:           time.Now,
	}
}

// Respond drives one interaction to a terminal reply. It always
// produces something sendable: backend failures surface as in-character
// error text, never as an empty reply.
func (a *Agent) Respond(ctx context.Context, item queue.Item) Reply {
	a.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"channel_id": item.ChannelID,
		"author_id":  item.AuthorID,
	})
	defer a.bus.Emit(events.SourceAgent, events.KindRequestComplete, map[string]any{
		"channel_id": item.ChannelID,
	})

	// The knowledge worker shares the completion backend; keep it out
	// of the way while the loop runs.
	if a.ingest != nil && a.ingest.Enabled() {
		if err := a.ingest.Pause(ctx); err != nil {
			a.logger.Warn("pausing knowledge ingestion failed", "error", err)
		} else {
			a.bus.Emit(events.SourceKnowledge, events.KindIngestPaused, nil)
		}
		defer func() {
			if err := a.ingest.Resume(ctx); err != nil {
				a.logger.Warn("resuming knowledge ingestion failed", "error", err)
			} else {
				a.bus.Emit(events.SourceKnowledge, events.KindIngestResumed, nil)
			}
		}()
	}

	alias := a.dir.Alias(ctx, item.AuthorID)
	if alias == "" {
		alias = item.AuthorName
	}

	if reply, ok := a.tryAliasChange(ctx, item, alias); ok {
		return reply
	}

	final := a.runLoop(ctx, item, alias)

	text := final.Content
	if text == "" {
		text = "I seem to be stuck in my thoughts, neko!"
	}
	return Reply{Text: text, Artifacts: final.Artifacts}
}

// tryAliasChange handles "call me X" style requests without a model
// round trip.
func (a *Agent) tryAliasChange(ctx context.Context, item queue.Item, alias string) (Reply, bool) {
	m := aliasRequestPat.FindStringSubmatch(item.Content)
	if m == nil {
		return Reply{}, false
	}

	newAlias := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), ".!?,"))
	if newAlias == "" || len(newAlias) >= 50 || strings.EqualFold(newAlias, a.persona.Name()) {
		return Reply{}, false
	}

	if err := a.dir.UpdateAlias(ctx, item.AuthorID, newAlias, item.AuthorName); err != nil {
		a.logger.Error("alias update failed", "user_id", item.AuthorID, "error", err)
		return Reply{}, false
	}

	confirmation := fmt.Sprintf("Alright, %s! I'll call you %s from now on, neko!", alias, newAlias)
	a.record(ctx, store.Action{
		ID:            uuid.NewString(),
		InteractionID: item.ID,
		ChannelID:     item.ChannelID,
		Type:          "UpdateAlias",
		Timestamp:     a.now().Unix(),
		Reason:        fmt.Sprintf("User requested alias change to '%s'", newAlias),
		ResultSummary: confirmation,
	})
	return Reply{Text: confirmation}, true
}

func (a *Agent) runLoop(ctx context.Context, item queue.Item, alias string) Result {
	personaBase := a.persona.SystemPromptBase(a.now().In(a.loc))
	budget := a.maxContextTok - a.promptOverhead(personaBase) - a.maxOutputTok

	base, longTerm := a.hist.Build(ctx, history.Request{
		ChannelID:     item.ChannelID,
		AuthorID:      item.AuthorID,
		InteractionID: item.ID,
		Budget:        budget,
		PendingIDs:    a.queue.PendingIDs(),
	})

	content := mentions.ResolveMentions(ctx, item.Content, a.dir, a.botUserID, a.persona.Name())
	userTurn := llm.Turn{Role: "user", Content: fmt.Sprintf("%s: %s", alias, content)}
	situational := a.persona.SituationalContext(alias, item.IsDM, a.dir.Relationship(ctx, item.AuthorID))

	var accumulated []llm.Turn
	for i := 0; i < a.maxIterations; i++ {
		// The queue keeps moving while the loop thinks; re-peek so the
		// oracle sees what is waiting right now.
		preview := queue.Preview(a.queue.PeekChannel(item.ChannelID), func(id string) string {
			return a.dir.Alias(ctx, id)
		}, a.loc, queue.DefaultPreviewMax)

		a.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{"iteration": i})
		decision := a.oracle.Decide(ctx, PromptInput{
			LongTerm:     longTerm,
			BaseHistory:  base,
			QueueBlock:   preview,
			PersonaBase:  personaBase,
			Situational:  situational,
			UserTurn:     userTurn,
			Accumulated:  accumulated,
			OutputTokens: a.maxOutputTok,
		})
		if decision.Type == DecisionError {
			return Result{Kind: ResultError, Content: decision.Content}
		}

		a.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{"tool": decision.Name, "iteration": i})
		res := a.runner.Execute(ctx, decision.Name, decision.Args, item.Content)
		a.bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{"tool": decision.Name, "kind": int(res.Kind)})

		if decision.Name != string(tools.RespondToUser) {
			a.recordToolCall(ctx, item, decision, res)
		}

		if res.Kind == ResultTerminal || res.Kind == ResultError {
			return res
		}

		argsJSON, err := json.Marshal(decision.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		accumulated = append(accumulated,
			llm.Turn{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					ID:       decision.CallID,
					Type:     "function",
					Function: llm.FunctionCall{Name: decision.Name, Arguments: string(argsJSON)},
				}},
			},
			llm.Turn{
				Role:       "tool",
				ToolCallID: decision.CallID,
				Name:       decision.Name,
				Content:    res.Content,
			},
		)
	}

	a.logger.Warn("iteration cap reached", "channel_id", item.ChannelID, "cap", a.maxIterations)
	return Result{Kind: ResultError, Content: "Max tool iterations reached, neko."}
}

func (a *Agent) recordToolCall(ctx context.Context, item queue.Item, decision Decision, res Result) {
	argsJSON, err := json.Marshal(decision.Args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	summary := res.Content
	if decision.Name == string(tools.GenerateImage) && res.PromptForLog != "" {
		summary = res.PromptForLog
	}
	if len(summary) > actionSummaryLimit {
		summary = summary[:actionSummaryLimit]
	}

	a.record(ctx, store.Action{
		ID:            uuid.NewString(),
		InteractionID: item.ID,
		ChannelID:     item.ChannelID,
		Type:          decision.Name,
		Timestamp:     a.now().Unix(),
		Reason:        fmt.Sprintf("LLM tool call: %s, args: %s", decision.Name, argsJSON),
		ResultSummary: summary,
		ToolCallID:    decision.CallID,
	})
}

func (a *Agent) record(ctx context.Context, action store.Action) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordAction(ctx, action); err != nil {
		a.logger.Error("recording action failed", "type", action.Type, "error", err)
	}
}

// promptOverhead estimates the token cost of everything that rides
// along with history in every call: the persona block, the tool
// catalog, and framing.
func (a *Agent) promptOverhead(personaBase string) int {
	catalogJSON, err := json.Marshal(tools.Catalog())
	if err != nil {
		catalogJSON = nil
	}
	return a.est.Estimate(personaBase) + a.est.Estimate(string(catalogJSON)) + promptOverheadPad
}
