// Package flow provides the execution loop shared by every agentrouter agent.
//
// A Machine drives one agent through an explicit THINK/ACT/DONE state
// machine. Request processors assemble each model request from the agent's
// history, and a FunctionExecutor runs the tool calls of an ACT step
// concurrently while recording their results in request order.
package flow

import (
	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

// FlowAgent defines the interface that agents must implement to work with flows.
//
// This interface provides flows with access to agent capabilities without
// exposing the full agent implementation details.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetLLM returns the language model instance.
	GetLLM() model.Model

	// ResolveInstructions returns the raw system instruction for this run.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the bound tools in declaration order.
	GetTools() []tool.Tool

	// IsStreamingEnabled returns whether streaming responses are enabled.
	IsStreamingEnabled() bool

	// TokenBudget returns the approximate token budget for request history.
	// Zero disables filtering.
	TokenBudget() int
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the chat request before LLM execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// DefaultRequestProcessors returns the pipeline used by top-level agents.
func DefaultRequestProcessors() []RequestProcessor {
	return []RequestProcessor{
		NewInstructionsProcessor(),
		NewContentsProcessor(),
		NewToolsProcessor(),
	}
}

// SubordinateRequestProcessors returns the default pipeline plus a fresh
// time stamp appended to every request.
func SubordinateRequestProcessors() []RequestProcessor {
	return append(DefaultRequestProcessors(), NewTimeStampProcessor())
}
