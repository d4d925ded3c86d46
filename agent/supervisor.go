package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

// NewSupervisor builds the top-level routing agent. Every subordinate is
// exposed as a delegate tool named after it; the supervisor decides per turn
// whether to answer directly or delegate.
//
// Without an explicit Instruction the supervisor gets RoutingInstruction for
// the given subordinates.
func NewSupervisor(name string, llm model.Model, subordinates []core.Agent, optFns ...func(o *ModelAgentOptions)) (*ModelAgent, error) {
	opts := []func(o *ModelAgentOptions){func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(RoutingInstruction(subordinates))
		o.Description = "Routes user queries to specialist agents"
	}}
	opts = append(opts, optFns...)

	sup := NewModelAgent(name, llm, opts...)
	if err := sup.SetSubAgents(subordinates...); err != nil {
		return nil, err
	}

	for _, sub := range subordinates {
		if sup.HasTool(sub.Name()) {
			return nil, fmt.Errorf("supervisor %s: subordinate %q collides with a tool", name, sub.Name())
		}
		sup.RegisterTool(tool.NewDelegateTool(sub))
	}

	return sup, nil
}

// RoutingInstruction lists the subordinates by name and description.
func RoutingInstruction(subordinates []core.Agent) string {
	var b strings.Builder
	b.WriteString("You are a supervisor routing user questions to specialist agents.\n")
	b.WriteString("Answer directly when no specialist is needed. Otherwise call exactly the specialist tool that fits, ")
	b.WriteString("passing session_id {{.session_id}} and a self-contained query with every identifier the user gave.\n\n")
	b.WriteString("Specialists:\n")
	for _, sub := range subordinates {
		fmt.Fprintf(&b, "- %s: %s\n", sub.Name(), sub.Description())
	}
	return b.String()
}
