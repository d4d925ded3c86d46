package flow

import (
	"fmt"

	"github.com/hupe1980/agentrouter/core"
	internalutil "github.com/hupe1980/agentrouter/internal/util"
	"github.com/hupe1980/agentrouter/model"
)

// InstructionsProcessor handles system prompt and instruction processing.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves the agent instruction and renders it against the
// turn state (session_id, thread_id, agent, timezone, now).
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	req.Instructions, err = internalutil.RenderTemplate(instructions, turnState(runCtx, agent))
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return nil
}

func turnState(runCtx *core.RunContext, agent FlowAgent) map[string]any {
	return map[string]any{
		"session_id": runCtx.SessionID,
		"thread_id":  runCtx.ThreadID(),
		"run_id":     runCtx.RunID,
		"agent":      agent.GetName(),
		"timezone":   runCtx.Turn.Timezone,
		"now":        runCtx.Turn.Stamp(),
	}
}

// ContentsProcessor bounds the request history by the agent's token budget.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest keeps the newest messages that fit the budget.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	before := len(req.Messages)
	req.Messages = core.FilterByTokenBudget(req.Messages, agent.TokenBudget())

	if dropped := before - len(req.Messages); dropped > 0 {
		runCtx.LogDebug("agent.contents.filtered", "agent", agent.GetName(), "dropped", dropped, "kept", len(req.Messages))
	}

	return nil
}

// ToolsProcessor advertises the agent's tools to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest fills req.Tools from the agent's tool set.
func (p *ToolsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	tools := agent.GetTools()
	if len(tools) == 0 {
		return nil
	}

	req.Tools = make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return nil
}

// TimeStampProcessor appends the current time as a trailing system message.
// It only touches the outgoing request, never the agent history.
type TimeStampProcessor struct{}

// NewTimeStampProcessor creates a new time stamp processor.
func NewTimeStampProcessor() *TimeStampProcessor { return &TimeStampProcessor{} }

// Name returns the processor's identifier.
func (p *TimeStampProcessor) Name() string { return "timestamp" }

// ProcessRequest appends the stamp for the current turn.
func (p *TimeStampProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, _ FlowAgent) error {
	req.Messages = append(req.Messages, runCtx.Turn.StampMessage())
	return nil
}
