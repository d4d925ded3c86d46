package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrouter/core"
)

// Provider supplies dynamic instruction text at runtime, for example from the
// turn configuration carried by the RunContext.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// ProviderFunc is a functional adapter to allow ordinary functions to be used as Providers.
type ProviderFunc func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f ProviderFunc) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction string or a dynamic provider.
// The text may contain template actions ({{.session_id}}, {{.thread_id}},
// {{.agent}}, {{.timezone}}, {{.now}}) rendered by the flow before each call.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: ProviderFunc(f)}
}

// JoinInstructions concatenates the resolved parts separated by a blank line.
// Empty parts are skipped.
func JoinInstructions(parts ...Instruction) Instruction {
	return NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		out := make([]string, 0, len(parts))
		for i, p := range parts {
			text, err := p.Resolve(rc)
			if err != nil {
				return "", fmt.Errorf("instruction part %d: %w", i, err)
			}
			if strings.TrimSpace(text) != "" {
				out = append(out, text)
			}
		}
		return strings.Join(out, "\n\n"), nil
	})
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}
	return i.text, nil
}
