package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/flow"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

// DefaultDelegateTimeout bounds a complete subordinate run started by a
// supervisor.
const DefaultDelegateTimeout = 5 * time.Minute

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction          Instruction
	Description          string
	EnableStreaming      bool
	Tools                []tool.Tool
	TokenBudget          int  // approximate request token budget, 0 disables filtering
	StampEveryStep       bool // append the current time to every model request
	MaxCorrectiveRetries int
	NodeTimeout          time.Duration
	ToolTimeout          time.Duration
	DelegateTimeout      time.Duration // whole subordinate run behind a delegate tool
	MaxParallelTools     int
	ToolErrorPolicy      flow.ToolErrorPolicy
}

// ModelAgent binds an instruction, a model and a tool set and drives them
// through the flow state machine.
//
// ModelAgent embeds BaseAgent to inherit identity and subordinate management.
type ModelAgent struct {
	BaseAgent                  // Embedded base agent functionality
	llm         model.Model    // Language model interface
	instruction Instruction    // Instructions for the LLM
	tools       *tool.Registry // Registered tools for function calling
	streaming   bool           // Whether to stream responses
	tokenBudget int            // History budget for each request
	machineOpts []func(o *flow.MachineOptions)
}

// NewModelAgent creates a new model-based agent with sensible defaults.
//
// The agent is initialized with:
//   - Streaming enabled for real-time responses
//   - The default token budget for request history
//   - Three corrective retries after empty output
//   - 60-second model and 30-second tool timeouts
//   - 5-minute delegate timeout
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:          NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:      true,
		TokenBudget:          core.DefaultTokenBudget,
		MaxCorrectiveRetries: flow.DefaultMaxCorrectiveRetries,
		NodeTimeout:          60 * time.Second,
		ToolTimeout:          30 * time.Second,
		DelegateTimeout:      DefaultDelegateTimeout,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	base := NewBaseAgent(name)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	processors := flow.DefaultRequestProcessors
	if opts.StampEveryStep {
		processors = flow.SubordinateRequestProcessors
	}

	return &ModelAgent{
		BaseAgent:   base,
		llm:         llm,
		instruction: opts.Instruction,
		tools:       tool.NewRegistry(opts.Tools...),
		streaming:   opts.EnableStreaming,
		tokenBudget: opts.TokenBudget,
		machineOpts: []func(o *flow.MachineOptions){func(o *flow.MachineOptions) {
			o.MaxCorrectiveRetries = opts.MaxCorrectiveRetries
			o.NodeTimeout = opts.NodeTimeout
			o.ToolTimeout = opts.ToolTimeout
			o.DelegateTimeout = opts.DelegateTimeout
			o.MaxParallelTools = opts.MaxParallelTools
			o.ToolErrorPolicy = opts.ToolErrorPolicy
			o.RequestProcessors = processors()
		}},
	}
}

// RegisterTool adds a function tool to the agent's capability set. A tool
// with the same name replaces the earlier one.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools.Add(t)
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools.Get(name)
	return exists
}

// ListTools returns the names of all registered tools in registration order.
func (a *ModelAgent) ListTools() []string {
	tools := a.tools.List()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return names
}

// FlowAgent Interface Implementation

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetLLM returns the language model instance.
func (a *ModelAgent) GetLLM() model.Model { return a.llm }

// GetTools returns the registered tools for function calling.
func (a *ModelAgent) GetTools() []tool.Tool { return a.tools.List() }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.streaming }

// TokenBudget returns the approximate token budget for request history.
func (a *ModelAgent) TokenBudget() int { return a.tokenBudget }

// ResolveInstructions produces the final instruction string (system prompt)
// by resolving static or dynamic instruction sources.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// Run implements core.Agent by driving the flow state machine over history.
func (a *ModelAgent) Run(runCtx *core.RunContext, history []core.Message) (core.RunResult, error) {
	runCtx.LogDebug("agent.run.start", "agent", a.Name(), "run", runCtx.RunID, "speaker", runCtx.Speaker.String())

	res, err := flow.NewMachine(a, a.machineOpts...).Run(runCtx, history)
	if err != nil {
		runCtx.LogWarn("agent.run.aborted", "agent", a.Name(), "steps", res.Steps, "error", err.Error())
		return res, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name(), "steps", res.Steps)

	return res, nil
}
