// Package tools defines the closed set of actions the decision oracle
// may request and the schema catalog advertised to it. Dispatch happens
// over the Name type; strings from the wire are validated at the
// boundary by ParseName so an unknown tool can never reach an executor.
package tools

import "fmt"

// Name identifies one registered tool.
type Name string

const (
	StoreKnowledge    Name = "store_knowledge"
	RespondToUser     Name = "respond_to_user"
	GenerateImage     Name = "generate_image"
	OverthinkInput    Name = "overthink_input"
	InquireForDetails Name = "inquire_for_details"
	PerformWebSearch  Name = "perform_web_search"
)

// ErrUnknownTool is wrapped by ParseName for unregistered names.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// ParseName validates a wire-level tool name.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case StoreKnowledge, RespondToUser, GenerateImage,
		OverthinkInput, InquireForDetails, PerformWebSearch:
		return Name(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// All lists every registered tool.
func All() []Name {
	return []Name{
		StoreKnowledge, RespondToUser, GenerateImage,
		OverthinkInput, InquireForDetails, PerformWebSearch,
	}
}

type param struct {
	name, description string
}

type schema struct {
	description string
	params      []param
}

var schemas = map[Name]schema{
	StoreKnowledge: {
		description: "Tell your database agent to permanently store new information, facts, or memories. This tool can handle large, verbose blocks of text, or simple memories.",
		params: []param{{
			name:        "unstructured_text",
			description: "Tell your database agent what to store in your knowledge base, give her a detailed block of text containing the information to be stored. e.g. 'I like orchids.' or 'Nejc-kun has short brown hair.'. CRUCIAL: You are not talking to the user, nor yourself! Only pass the raw exact data to be stored.",
		}},
	},
	RespondToUser: {
		description: "Formulate and send a textual response to the user. Use this as a default if no other specific tool is suitable or if the user's query is a simple conversational turn. Do NOT repeat or mimic patterns.",
		params: []param{
			{name: "text_to_send"},
			{name: "response_type_guidance"},
		},
	},
	GenerateImage: {
		description: "Generate a *new* image based on the user's textual prompt and provide a comment. Use this when the user asks you to *create or draw a new image*, or you think an image is needed to respond.",
		params: []param{
			{
				name:        "image_generation_prompt",
				description: "Create a high-quality, descriptive prompt for the desired image. Describe the subject, scene hierarchy, lighting, and mood. CRUCIAL: Only describe the desired image; do not add a negative prompt section or use negative keywords.",
			},
			{
				name:        "comment_for_image",
				description: "A short, in-character, conversational comment to send with the image. This should NOT be the same as the image prompt, just a comment to the image in context with the conversation.",
			},
		},
	},
	OverthinkInput: {
		description: "Analyze the user's input for subtext, hidden meanings, and deeper intentions, emotional state. Generate a detailed thought process.",
		params:      []param{{name: "detailed_thought_process"}},
	},
	InquireForDetails: {
		description: "Ask a clarifying question to the user to get more details or resolve ambiguity on the context. You can also use this when something sparks your interest.",
		params:      []param{{name: "clarifying_question_to_ask"}},
	},
	PerformWebSearch: {
		description: "Use this for verifying facts, gaining new knowledge or learning about topics you are uncertain about.",
		params:      []param{{name: "search_query_for_web"}},
	},
}

// Catalog renders the tool schemas in the function-calling wire format.
// Every parameter is required; the oracle has no optional arguments.
func Catalog() []map[string]any {
	out := make([]map[string]any, 0, len(schemas))
	for _, n := range All() {
		sch := schemas[n]

		props := make(map[string]any, len(sch.params))
		required := make([]string, 0, len(sch.params))
		for _, p := range sch.params {
			prop := map[string]any{"type": "string"}
			if p.description != "" {
				prop["description"] = p.description
			}
			props[p.name] = prop
			required = append(required, p.name)
		}

		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        string(n),
				"description": sch.description,
				"parameters": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}

