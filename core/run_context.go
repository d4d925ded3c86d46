package core

import (
	"context"

	"github.com/hupe1980/agentrouter/logging"
)

// RunContext carries execution state & helpers for an agent run.
// It encapsulates the per-invocation execution scope passed to an Agent's
// Run method. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID, Agent info) and the Speaker tag
//   - The typed per-call TurnConfig (time, timezone, thread)
//   - The shared event channel and step budget of the run tree
//   - The Checkpointer backing subordinate thread memory
//
// Child contexts share Emit and Limiter with their parent so a nested run
// feeds the same multiplexed stream and consumes the same budget.
type RunContext struct {
	Context      context.Context
	SessionID    string
	RunID        string
	Agent        AgentInfo
	Speaker      Speaker
	Turn         TurnConfig
	Emit         chan<- Event
	Limiter      *StepLimiter
	Checkpointer Checkpointer
	Depth        int

	*loggerAdapter
}

// NewRunContext constructs a top-level RunContext tagged SpeakerSupervisor.
func NewRunContext(
	ctx context.Context,
	runID string,
	agent AgentInfo,
	turn TurnConfig,
	emit chan<- Event,
	limiter *StepLimiter,
	checkpointer Checkpointer,
	logger logging.Logger,
) *RunContext {
	if runID == "" {
		runID = NewID()
	}
	return &RunContext{
		Context:       ctx,
		SessionID:     turn.SessionID,
		RunID:         runID,
		Agent:         agent,
		Speaker:       SpeakerSupervisor,
		Turn:          turn,
		Emit:          emit,
		Limiter:       limiter,
		Checkpointer:  checkpointer,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// ThreadID returns the thread identity used for model-side memory.
func (rc *RunContext) ThreadID() string { return rc.Turn.ThreadID }

// GetAgentName returns the logical agent name for this invocation.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// Clone returns a shallow copy sharing channel, limiter and checkpointer.
func (rc *RunContext) Clone() *RunContext {
	c := *rc
	return &c
}

// WithContext clones the run context replacing the cancellation context,
// typically with a per-call deadline.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := rc.Clone()
	c.Context = ctx
	return c
}

// WithAgent clones the run context for execution on behalf of agent.
func (rc *RunContext) WithAgent(agent AgentInfo) *RunContext {
	c := rc.Clone()
	c.Agent = agent
	return c
}

// NewChildContext derives the context of a subordinate agent run. Its events
// are tagged SpeakerSubordinate regardless of the parent's speaker.
func (rc *RunContext) NewChildContext(agent AgentInfo) *RunContext {
	c := rc.WithAgent(agent)
	c.Speaker = SpeakerSubordinate
	c.Depth = rc.Depth + 1
	return c
}

// EmitEvent forwards ev on the shared channel, blocking until it is accepted
// or the context is done. A nil channel discards the event.
func (rc *RunContext) EmitEvent(ev Event) error {
	if rc.Emit == nil {
		return nil
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}
