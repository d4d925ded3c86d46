package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentrouter/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"` // System instructions for the model
	Messages     []core.Message   `json:"messages"`     // Conversation history converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// Partial responses carry incremental text in Message. Exactly one
// non-partial response terminates a successful generation and carries the
// complete assistant message including any tool calls.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows & agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Send delivers resp on out unless ctx ends first, in which case it returns
// ctx.Err(). Adapters use it so an abandoned consumer never blocks their
// producing goroutine.
func Send(ctx context.Context, out chan<- Response, resp Response) error {
	select {
	case out <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrNoScriptedResponse is returned by MockModel once its script is exhausted.
var ErrNoScriptedResponse = errors.New("mock model: no scripted response left")

// Step is one scripted MockModel turn. Chunks, when set, are streamed as
// partial responses before the final message.
type Step struct {
	Message core.Message
	Chunks  []string
	Err     error
	Panic   any
	Block   bool // wait for ctx cancellation
}

// MockModel is a scripted in-memory Model useful for tests & examples. Each
// Generate call consumes the next Step and records the request.
type MockModel struct {
	info Info

	mu       sync.Mutex
	steps    []Step
	requests []Request
	fallback *Step
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// Enqueue appends scripted steps.
func (m *MockModel) Enqueue(steps ...Step) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
	return m
}

// EnqueueText scripts a final text answer.
func (m *MockModel) EnqueueText(text string) *MockModel {
	return m.Enqueue(Step{Message: core.NewAssistantMessage(text)})
}

// EnqueueStream scripts a final text answer streamed in chunks.
func (m *MockModel) EnqueueStream(chunks ...string) *MockModel {
	text := ""
	for _, c := range chunks {
		text += c
	}
	return m.Enqueue(Step{Message: core.NewAssistantMessage(text), Chunks: chunks})
}

// EnqueueToolCalls scripts an assistant turn requesting the given calls.
func (m *MockModel) EnqueueToolCalls(calls ...core.FunctionCall) *MockModel {
	return m.Enqueue(Step{Message: core.NewToolCallMessage("", calls...)})
}

// EnqueueError scripts a generation failure.
func (m *MockModel) EnqueueError(err error) *MockModel {
	return m.Enqueue(Step{Err: err})
}

// SetFallback sets the step replayed once the script is exhausted.
func (m *MockModel) SetFallback(step Step) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &step
	return m
}

// Requests returns copies of the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	for i, r := range m.requests {
		r.Messages = core.CloneMessages(r.Messages)
		out[i] = r
	}
	return out
}

// Calls returns how many times Generate was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockModel) next(req Request) (Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		if m.fallback != nil {
			return *m.fallback, true
		}
		return Step{}, false
	}
	s := m.steps[0]
	m.steps = m.steps[1:]
	return s, true
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, len(req.Messages)+16)
	errCh := make(chan error, 1)

	step, ok := m.next(req)
	if step.Panic != nil {
		panic(step.Panic)
	}

	go func() {
		defer close(respCh)
		defer close(errCh)

		switch {
		case !ok:
			errCh <- ErrNoScriptedResponse
			return
		case step.Block:
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		case step.Err != nil:
			errCh <- step.Err
			return
		}

		for _, c := range step.Chunks {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Partial: true, Message: core.NewAssistantMessage(c)}:
			}
		}

		reason := "stop"
		if step.Message.HasToolCalls() {
			reason = "tool_calls"
		}
		msg := step.Message.Clone()
		if msg.Role == "" {
			msg.Role = core.RoleAssistant
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{ID: core.NewID(), Message: msg, FinishReason: reason}:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
