package core

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes implementation (e.g. "supervisor", "specialist").
type AgentInfo struct{ Name, Type string }

// RunResult is the outcome of driving one agent to completion.
type RunResult struct {
	Text    string    // final answer text
	History []Message // input history plus every message appended by the run
	Steps   int       // THINK iterations taken by this agent
}

// Agent is a bound (instruction, model, tool-set) triple able to run its own
// THINK/ACT loop over a history.
//
// Run must not mutate the caller's history slice. Model and tool failures are
// converted into a terminal answer; the returned error is reserved for context
// cancellation and an exhausted step budget.
type Agent interface {
	Name() string
	Description() string
	Run(runCtx *RunContext, history []Message) (RunResult, error)
}

// Checkpointer stores the private transcript an agent keeps per thread, so a
// subordinate remembers earlier delegations within the same thread.
type Checkpointer interface {
	Load(threadID, agent string) ([]Message, error)
	Save(threadID, agent string, history []Message) error
}
