package core

import (
	"time"

	"github.com/google/uuid"
)

// Speaker tags every event with the layer that produced it. Consumers filter
// on this closed set rather than on agent names.
type Speaker int

const (
	// SpeakerSupervisor marks output of the top-level routing agent.
	SpeakerSupervisor Speaker = iota + 1
	// SpeakerSubordinate marks output of an agent invoked as a tool.
	SpeakerSubordinate
	// SpeakerTool marks tool-call plumbing (requests and results).
	SpeakerTool
)

// String returns the speaker label.
func (s Speaker) String() string {
	switch s {
	case SpeakerSupervisor:
		return "SUPERVISOR"
	case SpeakerSubordinate:
		return "SUBORDINATE"
	case SpeakerTool:
		return "TOOL"
	default:
		return "UNKNOWN"
	}
}

// EventKind classifies the payload of an Event.
type EventKind int

const (
	// EventTextDelta carries an incremental text fragment in Text.
	EventTextDelta EventKind = iota + 1
	// EventToolCall announces a tool call about to run (FunctionCall set).
	EventToolCall
	// EventToolResult carries the recorded tool-result Message.
	EventToolResult
	// EventMessage carries a complete assistant Message appended to an agent history.
	EventMessage
)

// Event is the unit multiplexed from nested agent runs onto a single channel.
// After emission it should be treated as immutable.
type Event struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	Author       string        `json:"author"`
	Speaker      Speaker       `json:"speaker"`
	Kind         EventKind     `json:"kind"`
	Text         string        `json:"text,omitempty"`
	Message      *Message      `json:"message,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
// Prefer helper constructors for common semantic categories.
func NewEvent(runID, author string, speaker Speaker, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Speaker:   speaker,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewTextDeltaEvent carries one streamed text fragment.
func NewTextDeltaEvent(runID, author string, speaker Speaker, text string) Event {
	e := NewEvent(runID, author, speaker, EventTextDelta)
	e.Text = text
	return e
}

// NewMessageEvent carries a completed assistant message.
func NewMessageEvent(runID, author string, speaker Speaker, msg Message) Event {
	e := NewEvent(runID, author, speaker, EventMessage)
	m := msg.Clone()
	e.Message = &m
	return e
}

// NewToolCallEvent announces the execution of a tool call.
func NewToolCallEvent(runID, author string, call FunctionCall) Event {
	e := NewEvent(runID, author, SpeakerTool, EventToolCall)
	c := call
	e.FunctionCall = &c
	return e
}

// NewToolResultEvent carries a recorded tool-result message.
func NewToolResultEvent(runID, author string, msg Message) Event {
	e := NewEvent(runID, author, SpeakerTool, EventToolResult)
	m := msg.Clone()
	e.Message = &m
	return e
}

// IsSupervisorText reports whether the event is a text fragment produced by
// the top-level speaker.
func (e Event) IsSupervisorText() bool {
	return e.Kind == EventTextDelta && e.Speaker == SpeakerSupervisor && e.Text != ""
}

// NewID generates a new unique identifier for runs, events and calls.
func NewID() string { return uuid.NewString() }
