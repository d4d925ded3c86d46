package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentrouter/core"
)

// BaseAgent bundles identity and the set of subordinates an agent routes to.
// Embed it in concrete agent implementations and supply a Run method to
// satisfy the core.Agent interface. All exported methods are goroutine-safe.
type BaseAgent struct {
	name        string       // Human-readable name, also the delegate tool name
	description string       // Routing hint shown to a supervisor
	mu          sync.RWMutex // Protects subAgents
	subAgents   []core.Agent // Subordinates reachable through delegate tools
}

// NewBaseAgent constructs a BaseAgent with generated description (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// SetSubAgents replaces the subordinate set. Names must be unique since they
// become tool names.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	seen := make(map[string]bool, len(children))
	for _, child := range children {
		if child == nil {
			return fmt.Errorf("agent %s: nil subordinate", b.name)
		}
		if seen[child.Name()] {
			return fmt.Errorf("agent %s: duplicate subordinate %q", b.name, child.Name())
		}
		seen[child.Name()] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subAgents = append([]core.Agent(nil), children...)

	return nil
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent returns the direct subordinate named name, or nil.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	for _, child := range b.SubAgents() {
		if child.Name() == name {
			return child
		}
	}
	return nil
}
