package testutil

import (
	"fmt"

	"github.com/hupe1980/agentrouter/core"
)

// HistoryBuilder provides a fluent helper for constructing histories in tests.
// Example:
//
//	h := NewHistoryBuilder().Anchor("u1::c1").User("hi").Assistant("hello").Build()
type HistoryBuilder struct {
	msgs    []core.Message
	pending []core.FunctionCall
	nextID  int
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// Anchor appends the session anchor system message.
func (b *HistoryBuilder) Anchor(sessionID string) *HistoryBuilder {
	return b.System("session_id=" + sessionID)
}

// System appends a system message (chainable).
func (b *HistoryBuilder) System(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewSystemMessage(text))
	return b
}

// Stamp appends a time stamp system message for a fixed UTC clock.
func (b *HistoryBuilder) Stamp(date, clock string) *HistoryBuilder {
	return b.System(fmt.Sprintf("Today is %s %s. TZ=UTC offset=0m.", date, clock))
}

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends a final assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// Call appends an assistant message requesting one call of name with the
// given JSON arguments. Call ids are generated in order (call-1, call-2, ...)
// and remembered for the following Result.
func (b *HistoryBuilder) Call(name, args string) *HistoryBuilder {
	return b.Calls(core.FunctionCall{Name: name, Arguments: args})
}

// Calls appends one assistant message carrying several calls. Calls without
// an ID get a generated one.
func (b *HistoryBuilder) Calls(calls ...core.FunctionCall) *HistoryBuilder {
	for i := range calls {
		if calls[i].ID == "" {
			b.nextID++
			calls[i].ID = fmt.Sprintf("call-%d", b.nextID)
		}
	}
	b.pending = append(b.pending, calls...)
	b.msgs = append(b.msgs, core.NewToolCallMessage("", calls...))
	return b
}

// Result answers the oldest unanswered call. It panics when no call is
// pending, which is a bug in the test.
func (b *HistoryBuilder) Result(result any, err error) *HistoryBuilder {
	if len(b.pending) == 0 {
		panic("testutil: Result without pending call")
	}
	call := b.pending[0]
	b.pending = b.pending[1:]
	b.msgs = append(b.msgs, core.NewToolResultMessage(call.ID, call.Name, result, err))
	return b
}

// Build returns a copy of the accumulated history.
func (b *HistoryBuilder) Build() []core.Message {
	return core.CloneMessages(b.msgs)
}
