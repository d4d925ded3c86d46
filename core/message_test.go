package core

import (
	"errors"
	"testing"
)

func TestMessage_Constructors(t *testing.T) {
	if m := NewUserMessage("hi"); m.Role != RoleUser || m.Text() != "hi" {
		t.Fatalf("NewUserMessage malformed: %+v", m)
	}

	call := NewToolCallMessage("thinking", FunctionCall{ID: "1", Name: "f", Arguments: "{}"})
	if !call.HasToolCalls() || call.Text() != "thinking" {
		t.Fatalf("NewToolCallMessage malformed: %+v", call)
	}

	res := NewToolResultMessage("1", "f", map[string]any{"a": 1}, nil)
	if res.Role != RoleTool || res.ToolCallID != "1" {
		t.Fatalf("NewToolResultMessage malformed: %+v", res)
	}
	if got := res.ToolResultContent(); got != `{"a":1}` {
		t.Fatalf("unexpected tool content %q", got)
	}

	failed := NewToolResultMessage("2", "f", nil, errors.New("boom"))
	if got := failed.ToolResultContent(); got != `{"error":"boom"}` {
		t.Fatalf("unexpected error content %q", got)
	}
}

func TestMessage_IsDegenerate(t *testing.T) {
	cases := []struct {
		msg  Message
		want bool
	}{
		{NewAssistantMessage(""), true},
		{NewAssistantMessage("  \n"), true},
		{Message{Role: RoleAssistant, Parts: []Part{DataPart{Data: map[string]any{"x": 1}}}}, true},
		{NewAssistantMessage("ok"), false},
		{NewToolCallMessage("", FunctionCall{ID: "1", Name: "f"}), false},
	}
	for i, c := range cases {
		if got := c.msg.IsDegenerate(); got != c.want {
			t.Fatalf("case %d: want %v got %v", i, c.want, got)
		}
	}
}

func TestCloneMessages_NoAliasing(t *testing.T) {
	h := []Message{NewToolCallMessage("", FunctionCall{ID: "1", Name: "f"})}
	c := CloneMessages(h)
	c[0].ToolCalls[0].Name = "changed"
	if h[0].ToolCalls[0].Name != "f" {
		t.Fatal("clone aliases tool calls")
	}
}
