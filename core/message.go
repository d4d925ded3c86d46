package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author class of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool" // tool-result
)

// Message is one turn in a conversation and the wire contract shared by
// sessions, agents, model adapters and tools.
//
// Invariant: a RoleTool message carries ToolCallID equal to the ID of exactly
// one FunctionCall emitted by an earlier assistant message of the same history.
type Message struct {
	Role       Role           `json:"role"`
	Parts      []Part         `json:"-"`
	ToolCalls  []FunctionCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// NewSystemMessage builds a system message with a single text part.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// NewUserMessage builds a user message with a single text part.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// NewAssistantMessage builds a final (no tool calls) assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}
}

// NewToolCallMessage builds an assistant message requesting one or more tool
// calls. Accompanying text is optional.
func NewToolCallMessage(text string, calls ...FunctionCall) Message {
	m := Message{Role: RoleAssistant, ToolCalls: calls}
	if text != "" {
		m.Parts = []Part{TextPart{Text: text}}
	}
	return m
}

// NewToolResultMessage records the outcome of the call identified by callID.
// If err is non-nil its message is copied into the response Error field.
func NewToolResultMessage(callID, name string, result any, err error) Message {
	fr := FunctionResponse{ID: callID, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return Message{
		Role:       RoleTool,
		Parts:      []Part{FunctionResponsePart{FunctionResponse: fr}},
		ToolCallID: callID,
	}
}

// Text concatenates all text parts in order.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// IsDegenerate reports whether an assistant output carries neither tool calls
// nor any non-whitespace text.
func (m Message) IsDegenerate() bool {
	return !m.HasToolCalls() && strings.TrimSpace(m.Text()) == ""
}

// FunctionResponses returns the FunctionResponse parts preserving order.
func (m Message) FunctionResponses() []FunctionResponse {
	var out []FunctionResponse
	for _, p := range m.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			out = append(out, fr.FunctionResponse)
		}
	}
	return out
}

// Clone returns a copy whose slices can be mutated independently.
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = append([]Part(nil), m.Parts...)
	}
	if m.ToolCalls != nil {
		c.ToolCalls = append([]FunctionCall(nil), m.ToolCalls...)
	}
	return c
}

// Content renders a tool response into the string handed back to a model.
// Strings pass through, other values are JSON encoded and errors are wrapped
// in an {"error": ...} object.
func (r FunctionResponse) Content() string {
	if r.Error != "" {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(b)
	}
	switch v := r.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ToolResultContent returns the model-facing content of a tool-result message.
func (m Message) ToolResultContent() string {
	var parts []string
	for _, fr := range m.FunctionResponses() {
		parts = append(parts, fr.Content())
	}
	if len(parts) == 0 {
		return m.Text()
	}
	return strings.Join(parts, "\n")
}

// CloneMessages copies a history so callers can append without aliasing.
func CloneMessages(history []Message) []Message {
	out := make([]Message, len(history))
	for i, m := range history {
		out[i] = m.Clone()
	}
	return out
}
