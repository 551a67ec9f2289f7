// Package history assembles the short-term conversational context fed
// to the decision oracle. It pulls recent messages and action records
// from the store, prioritizing channels close to the current sender,
// and packs them newest-first into a token budget.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gendev/gen-agent/internal/config"
	"github.com/gendev/gen-agent/internal/llm"
	"github.com/gendev/gen-agent/internal/mentions"
	"github.com/gendev/gen-agent/internal/profiles"
	"github.com/gendev/gen-agent/internal/store"
	"github.com/gendev/gen-agent/internal/tokens"
	"github.com/gendev/gen-agent/internal/tools"
)

// Source is the persistence surface the builder reads from.
type Source interface {
	MessagesFromChannels(ctx context.Context, channelIDs []string, oldestCutoff int64, limit int) ([]store.Message, error)
	Actions(ctx context.Context, oldestCutoff int64) ([]store.Action, error)
}

// Directory resolves user identity for speaker labels and mention
// rewriting. The profiles store satisfies it.
type Directory interface {
	Alias(ctx context.Context, userID string) string
	KnownNames(ctx context.Context) ([]profiles.NameRef, error)
	Get(ctx context.Context, userID string) (*profiles.User, error)
}

// Request describes the interaction a history build serves.
type Request struct {
	ChannelID     string
	AuthorID      string
	InteractionID string
	Budget        int
	// PendingIDs is a snapshot of queued-but-unprocessed message ids.
	// Anything in it is excluded from history so the queue preview and
	// the history never show the same message twice.
	PendingIDs map[string]struct{}
}

// Builder builds budgeted history for one interaction at a time.
type Builder struct {
	cfg       config.HistoryConfig
	source    Source
	dir       Directory
	estimator *tokens.Estimator
	// channelNames maps channel ids to human-readable names. Its key
	// set doubles as the universe of channels for supplementary
	// fetching.
	channelNames map[string]string
	botUserID    string
	botName      string
	loc          *time.Location
	logger       *slog.Logger
	now          func() time.Time
}

func NewBuilder(cfg config.HistoryConfig, source Source, dir Directory, est *tokens.Estimator, channelNames map[string]string, botUserID, botName string, loc *time.Location, logger *slog.Logger) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if channelNames == nil {
		channelNames = map[string]string{}
	}
	return &Builder{
		cfg:          cfg,
		source:       source,
		dir:          dir,
		estimator:    est,
		channelNames: channelNames,
		botUserID:    botUserID,
		botName:      botName,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

type itemKind int

const (
	kindMessage itemKind = iota
	kindAction
)

type item struct {
	id        string
	timestamp int64
	kind      itemKind
	msg       store.Message
	action    store.Action
}

// Build returns budget-bounded history turns in chronological order
// plus a long-term summary block. The summary is presently always
// empty; the slot exists so a summarization layer can fill it without
// touching prompt assembly. Build never fails: store errors degrade to
// whatever was already gathered.
func (b *Builder) Build(ctx context.Context, req Request) ([]llm.Turn, string) {
	if req.Budget < b.cfg.MinimumBudget {
		b.logger.Warn("history budget below minimum, returning empty history",
			"budget", req.Budget, "minimum", b.cfg.MinimumBudget)
		return nil, ""
	}

	priority := b.priorityChannels(ctx, req)
	now := b.now()
	primaryCutoff := now.Add(-time.Duration(b.cfg.PrimaryLookbackHours) * time.Hour).Unix()

	working := map[string]store.Message{}
	b.mergeMessages(working, b.fetchMessages(ctx, setToSlice(priority), primaryCutoff, b.cfg.PrimaryFetchLimit))

	// A cold database starves the model of context; backfill without a
	// time cutoff when the recent window came back nearly empty.
	if len(working) < b.cfg.FreshnessThreshold && len(priority) > 0 {
		b.mergeMessages(working, b.fetchMessages(ctx, setToSlice(priority), 0, b.cfg.PrimaryFetchLimit))
	}

	if b.rawTokenSum(working) < int(float64(req.Budget)*b.cfg.LowTokenFraction) {
		var supplementary []string
		for id := range b.channelNames {
			if _, ok := priority[id]; !ok {
				supplementary = append(supplementary, id)
			}
		}
		if len(supplementary) > 0 {
			suppCutoff := now.Add(-time.Duration(b.cfg.SupplementaryLookbackHours) * time.Hour).Unix()
			b.mergeMessages(working, b.fetchMessages(ctx, supplementary, suppCutoff, b.cfg.SupplementaryFetchLimit))
		}
	}

	actions := b.fetchActions(ctx, primaryCutoff)

	if len(working) == 0 && len(actions) == 0 {
		return nil, ""
	}

	items := make([]item, 0, len(working)+len(actions))
	for _, m := range working {
		items = append(items, item{id: m.ID, timestamp: m.Timestamp, kind: kindMessage, msg: m})
	}
	for _, a := range actions {
		items = append(items, item{id: a.ID, timestamp: a.Timestamp, kind: kindAction, action: a})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].timestamp < items[j].timestamp })

	senderAlias := b.dir.Alias(ctx, req.AuthorID)
	if senderAlias == "" {
		senderAlias = "User"
	}

	used := make(map[string]struct{}, len(req.PendingIDs)+1)
	for id := range req.PendingIDs {
		used[id] = struct{}{}
	}
	used[req.InteractionID] = struct{}{}

	var selected []llm.Turn
	spent := 0
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if _, dup := used[it.id]; dup {
			continue
		}

		var role, content string
		switch it.kind {
		case kindMessage:
			role, content = b.renderMessage(ctx, it.msg, senderAlias)
		case kindAction:
			// The terminal reply action is redundant with the assistant
			// message it produced.
			if it.action.Type == string(tools.RespondToUser) {
				continue
			}
			role, content = b.renderAction(it.action)
		}

		cost := b.estimator.EstimateTurn(content)
		if spent+cost > req.Budget {
			break
		}
		selected = append(selected, llm.Turn{Role: role, Content: content})
		spent += cost
		used[it.id] = struct{}{}
	}

	// Selection walked newest-first; flip back to chronological.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}

	return selected, ""
}

func (b *Builder) priorityChannels(ctx context.Context, req Request) map[string]struct{} {
	out := map[string]struct{}{req.ChannelID: {}}

	if u, err := b.dir.Get(ctx, req.AuthorID); err == nil && u != nil {
		if u.DMChannelID != "" {
			out[u.DMChannelID] = struct{}{}
		}
		if u.LastActiveChannelID != "" {
			out[u.LastActiveChannelID] = struct{}{}
		}
	}
	if b.botUserID != "" {
		if u, err := b.dir.Get(ctx, b.botUserID); err == nil && u != nil && u.LastActiveChannelID != "" {
			out[u.LastActiveChannelID] = struct{}{}
		}
	}
	return out
}

func (b *Builder) fetchMessages(ctx context.Context, channels []string, cutoff int64, limit int) []store.Message {
	if len(channels) == 0 {
		return nil
	}
	msgs, err := b.source.MessagesFromChannels(ctx, channels, cutoff, limit)
	if err != nil {
		b.logger.Error("history message fetch failed", "channels", len(channels), "error", err)
		return nil
	}
	return msgs
}

func (b *Builder) fetchActions(ctx context.Context, cutoff int64) []store.Action {
	actions, err := b.source.Actions(ctx, cutoff)
	if err != nil {
		b.logger.Error("history action fetch failed", "error", err)
		return nil
	}
	return actions
}

func (b *Builder) mergeMessages(into map[string]store.Message, msgs []store.Message) {
	for _, m := range msgs {
		if _, ok := into[m.ID]; !ok {
			into[m.ID] = m
		}
	}
}

func (b *Builder) rawTokenSum(working map[string]store.Message) int {
	sum := 0
	for _, m := range working {
		if m.TokenCount > 0 {
			sum += m.TokenCount
		} else {
			sum += b.estimator.EstimateTurn(m.Content)
		}
	}
	return sum
}

func (b *Builder) renderMessage(ctx context.Context, m store.Message, senderAlias string) (role, content string) {
	text := mentions.ResolveMentions(ctx, m.Content, b.dir, b.botUserID, b.botName)

	speaker := "Unknown Speaker"
	switch {
	case m.Role == "assistant":
		speaker = b.botName
	case m.Role == "user" && m.AuthorID != "":
		if alias := b.dir.Alias(ctx, m.AuthorID); alias != "" {
			speaker = alias
		} else {
			speaker = fmt.Sprintf("User (%s)", tail4(m.AuthorID))
		}
	}

	channel := "Unknown Channel"
	switch {
	case m.IsDM:
		channel = "DM-" + senderAlias
	case m.ChannelID != "":
		if name, ok := b.channelNames[m.ChannelID]; ok {
			channel = "#" + name
		} else {
			channel = "#" + m.ChannelID
		}
	}

	content = fmt.Sprintf("%s: %s [Channel: %s, Timestamp: %s]",
		speaker, text, channel, b.isoTimestamp(m.Timestamp))
	return m.Role, content
}

func (b *Builder) renderAction(a store.Action) (role, content string) {
	reason := a.Reason
	if reason == "" {
		reason = "N/A"
	}
	summary := a.ResultSummary
	if summary == "" {
		summary = "N/A"
	}
	content = fmt.Sprintf("System Note: Action: %s (Reason: %s, Result: %s) [Timestamp: %s]",
		a.Type, reason, summary, b.isoTimestamp(a.Timestamp))
	return "system", content
}

func (b *Builder) isoTimestamp(ts int64) string {
	return time.Unix(ts, 0).In(b.loc).Format(time.RFC3339)
}

func tail4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
