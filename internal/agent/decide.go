// Package agent contains the reasoning core: the decision oracle that
// asks the model what to do next, the executor that carries tool calls
// out, and the bounded loop that drives one interaction from inbound
// message to terminal reply.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/gendev/gen-agent/internal/llm"
	"github.com/gendev/gen-agent/internal/tools"
)

// DecisionType classifies what the oracle asked for.
type DecisionType int

const (
	// DecisionToolCall requests a tool execution. Free-form model text
	// is normalized into a reply-tool call, so this is the usual case.
	DecisionToolCall DecisionType = iota
	// DecisionError carries an in-character failure message.
	DecisionError
)

// Decision is one oracle verdict.
type Decision struct {
	Type    DecisionType
	Name    string
	Args    map[string]any
	CallID  string
	Content string // error message for DecisionError
}

// PromptInput is everything one oracle call sees. Assembly order is
// fixed: long-term block, base history, queue block, system persona
// block, current user turn, accumulated turns.
type PromptInput struct {
	LongTerm     string
	BaseHistory  []llm.Turn
	QueueBlock   string
	PersonaBase  string
	Situational  string
	UserTurn     llm.Turn
	Accumulated  []llm.Turn
	OutputTokens int
}

const reflectionInstruction = "\n\nCRITICAL INSTRUCTION: Analyze the results of the tool(s) you just used. Your previous turn resulted in new information. You must now decide whether to use another tool or to respond to the user with the information you have gathered."

// ChatClient is the completion surface the oracle calls.
type ChatClient interface {
	Chat(ctx context.Context, turns []llm.Turn, catalog []map[string]any, maxTokens int) (*llm.Turn, error)
}

// Oracle turns conversational context into decisions.
type Oracle struct {
	client ChatClient
	logger *slog.Logger
}

func NewOracle(client ChatClient, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{client: client, logger: logger}
}

// Decide asks the model for the next step. It never returns a Go
// error: call failures and malformed output come back as error
// decisions so the loop always has something to act on.
func (o *Oracle) Decide(ctx context.Context, in PromptInput) Decision {
	var turns []llm.Turn

	if in.LongTerm != "" {
		turns = append(turns, llm.Turn{Role: "system", Content: in.LongTerm})
	}
	turns = append(turns, in.BaseHistory...)
	if in.QueueBlock != "" {
		turns = append(turns, llm.Turn{Role: "system", Content: in.QueueBlock})
	}

	system := in.PersonaBase + " " + in.Situational
	if len(in.Accumulated) > 0 {
		system += reflectionInstruction
	}
	turns = append(turns, llm.Turn{Role: "system", Content: system})
	turns = append(turns, in.UserTurn)
	turns = append(turns, in.Accumulated...)

	msg, err := o.client.Chat(ctx, turns, tools.Catalog(), in.OutputTokens)
	if err != nil {
		o.logger.Error("oracle call failed", "error", err)
		return Decision{Type: DecisionError, Content: fmt.Sprintf("Neko's brain fuzzy... %v", err)}
	}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args, err := call.Function.Args()
		if err != nil {
			return Decision{Type: DecisionError, Content: fmt.Sprintf("A glitch in my circuits, neko! %v", err)}
		}
		return Decision{
			Type:   DecisionToolCall,
			Name:   call.Function.Name,
			Args:   args,
			CallID: call.ID,
		}
	}

	if msg.Content != "" {
		// The model just talked. Shape that into the reply tool so the
		// loop has a single decision form to handle.
		return Decision{
			Type:   DecisionToolCall,
			Name:   string(tools.RespondToUser),
			Args:   map[string]any{"text_to_send": msg.Content, "response_type_guidance": "default"},
			CallID: "direct_resp_" + randomHex(4),
		}
	}

	return Decision{Type: DecisionError, Content: "I'm speechless, neko!"}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
