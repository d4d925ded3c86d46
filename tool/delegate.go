package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrouter/core"
)

// DelegateFallbackText is returned to the supervisor whenever a subordinate
// run fails, so the outer loop always receives a usable tool result.
const DelegateFallbackText = "I am sorry I could not find the information you are looking for. Please try again later."

// DelegateOptions configures a delegate tool.
type DelegateOptions struct {
	// Description overrides the agent's own description in the tool schema.
	Description string
}

// delegateTool exposes a subordinate agent as a callable tool. The
// subordinate runs its own state machine on a child RunContext whose events
// are tagged SpeakerSubordinate, and its transcript persists per thread
// through the RunContext's Checkpointer.
type delegateTool struct {
	agent       core.Agent
	description string
}

// NewDelegateTool wraps agent as a tool named after the agent.
func NewDelegateTool(agent core.Agent, optFns ...func(o *DelegateOptions)) Tool {
	opts := DelegateOptions{Description: agent.Description()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &delegateTool{agent: agent, description: opts.Description}
}

// IsDelegate reports whether t runs a subordinate agent.
func IsDelegate(t Tool) bool {
	_, ok := t.(*delegateTool)
	return ok
}

func (t *delegateTool) Name() string { return t.agent.Name() }

func (t *delegateTool) Description() string { return t.description }

func (t *delegateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Conversation identity of the current session"},
			"query":      map[string]any{"type": "string", "description": "Self-contained instruction for the specialist, including every known identifier"},
		},
		"required": []string{"query"},
	}
}

// Call never returns an error: every failure of the subordinate run is
// converted to DelegateFallbackText.
func (t *delegateTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = tc.SessionID()
	}

	if strings.TrimSpace(query) == "" {
		tc.LogWarn("agent.delegate.empty_query", "agent", t.agent.Name())
		return DelegateFallbackText, nil
	}

	return t.delegate(tc, sessionID, query), nil
}

func (t *delegateTool) delegate(tc *core.ToolContext, sessionID, query string) (answer string) {
	name := t.agent.Name()
	rc := tc.RunContext().NewChildContext(core.AgentInfo{Name: name, Type: "subordinate"})

	defer func() {
		if r := recover(); r != nil {
			tc.LogError("agent.delegate.panic", "agent", name, "panic", fmt.Sprint(r))
			answer = DelegateFallbackText
		}
	}()

	var history []core.Message
	if rc.Checkpointer != nil {
		h, err := rc.Checkpointer.Load(rc.ThreadID(), name)
		if err != nil {
			tc.LogWarn("agent.delegate.memory_load_failed", "agent", name, "error", err.Error())
		}
		history = h
	}
	history = append(history,
		core.NewUserMessage(fmt.Sprintf("session_id: %s\n", sessionID)),
		core.NewUserMessage(query),
	)

	tc.LogDebug("agent.delegate.start", "agent", name, "depth", rc.Depth, "history_len", len(history))

	res, err := t.agent.Run(rc, history)
	if err != nil {
		tc.LogError("agent.delegate.failed", "agent", name, "error", err.Error())
		return DelegateFallbackText
	}

	if rc.Checkpointer != nil {
		if err := rc.Checkpointer.Save(rc.ThreadID(), name, res.History); err != nil {
			tc.LogWarn("agent.delegate.memory_save_failed", "agent", name, "error", err.Error())
		}
	}

	if strings.TrimSpace(res.Text) == "" {
		return DelegateFallbackText
	}

	tc.LogInfo("agent.delegate.completed", "agent", name, "steps", res.Steps)

	return res.Text
}
