package llm

import "encoding/json"

// Turn is one role-tagged unit of conversational content.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool result turns
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes the argument blob into a generic map. A missing or
// empty blob decodes to an empty map rather than an error.
func (f FunctionCall) Args() (map[string]any, error) {
	if f.Arguments == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(f.Arguments), &out); err != nil {
		return nil, err
	}
	return out, nil
}
