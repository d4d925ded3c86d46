package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

const (
	// ApologyText terminates a run whose model or tool step failed.
	ApologyText = tool.DelegateFallbackText
	// NoAnswerText terminates a run that kept producing empty output.
	NoAnswerText = "I could not produce an answer. Please try rephrasing your question."
	// CorrectivePrompt is appended after a degenerate model output.
	CorrectivePrompt = "Please provide a meaningful response."

	// DefaultMaxCorrectiveRetries bounds re-prompting after degenerate output.
	DefaultMaxCorrectiveRetries = 3
)

// State is a node of the agent state machine.
type State int

const (
	// StateThink asks the model for the next message.
	StateThink State = iota
	// StateAct executes the tool calls of the last message.
	StateAct
	// StateDone is terminal.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateThink:
		return "THINK"
	case StateAct:
		return "ACT"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NextState is the transition function of the machine. THINK moves to ACT
// when the last message requests tool calls and to DONE otherwise; ACT
// always returns to THINK.
func NextState(current State, last core.Message) State {
	switch current {
	case StateThink:
		if last.HasToolCalls() {
			return StateAct
		}
		return StateDone
	case StateAct:
		return StateThink
	default:
		return StateDone
	}
}

// ToolErrorPolicy decides how a failed tool call affects the run.
type ToolErrorPolicy int

const (
	// ToolErrorTerminate ends the run with ApologyText once the batch is recorded.
	ToolErrorTerminate ToolErrorPolicy = iota
	// ToolErrorReport records the error as the tool result and lets the model continue.
	ToolErrorReport
)

// MachineOptions configures a Machine.
type MachineOptions struct {
	// MaxCorrectiveRetries caps re-prompts after degenerate output. 0 disables
	// re-prompting.
	MaxCorrectiveRetries int
	// NodeTimeout bounds each model call. 0 disables the deadline.
	NodeTimeout time.Duration
	// ToolTimeout bounds each tool call. 0 disables the deadline.
	ToolTimeout time.Duration
	// DelegateTimeout bounds each delegate call instead of ToolTimeout.
	// 0 disables the deadline.
	DelegateTimeout time.Duration
	// ToolErrorPolicy selects terminate (default) or report semantics.
	ToolErrorPolicy ToolErrorPolicy
	// MaxParallelTools limits concurrent tool calls within one ACT step.
	MaxParallelTools int
	// RequestProcessors build each model request. Defaults to DefaultRequestProcessors.
	RequestProcessors []RequestProcessor
	// Executor overrides the default parallel function executor.
	Executor FunctionExecutor
}

// Machine drives a FlowAgent through THINK/ACT/DONE until a final answer.
type Machine struct {
	agent FlowAgent
	opts  MachineOptions
}

// NewMachine creates a machine for agent.
func NewMachine(agent FlowAgent, optFns ...func(o *MachineOptions)) *Machine {
	opts := MachineOptions{
		MaxCorrectiveRetries: DefaultMaxCorrectiveRetries,
		ToolErrorPolicy:      ToolErrorTerminate,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxCorrectiveRetries < 0 {
		opts.MaxCorrectiveRetries = 0
	}
	if opts.RequestProcessors == nil {
		opts.RequestProcessors = DefaultRequestProcessors()
	}
	if opts.Executor == nil {
		opts.Executor = NewParallelFunctionExecutor(FunctionExecutorConfig{
			MaxParallel:   opts.MaxParallelTools,
			PreserveOrder: true,
			Timeout:         opts.ToolTimeout,
			DelegateTimeout: opts.DelegateTimeout,
		})
	}

	return &Machine{agent: agent, opts: opts}
}

// Run executes the machine over a copy of history and returns the final
// answer with the extended history.
//
// Model and tool failures never surface as errors: they end the run with
// ApologyText. The returned error is reserved for cancellation of runCtx and
// an exhausted step budget.
func (m *Machine) Run(runCtx *core.RunContext, history []core.Message) (core.RunResult, error) {
	h := core.CloneMessages(history)
	res := core.RunResult{}
	state := StateThink
	retries := 0
	name := m.agent.GetName()

	runCtx.LogDebug("agent.machine.start", "agent", name, "history_len", len(h), "depth", runCtx.Depth)

	for {
		if err := runCtx.Err(); err != nil {
			res.History = h
			return res, err
		}

		switch state {
		case StateThink:
			if err := runCtx.Limiter.Increment(); err != nil {
				runCtx.LogWarn("agent.step_limit.exceeded", "agent", name, "error", err.Error())
				res.History = h
				return res, err
			}
			res.Steps++

			msg, streamed, err := m.think(runCtx, h)
			if err != nil {
				if ctxErr := runCtx.Err(); ctxErr != nil {
					res.History = h
					return res, ctxErr
				}
				runCtx.LogError("agent.think.failed", "agent", name, "step", res.Steps, "error", err.Error())
				return m.finish(runCtx, h, res, ApologyText)
			}

			if msg.IsDegenerate() {
				if retries >= m.opts.MaxCorrectiveRetries {
					runCtx.LogWarn("agent.think.no_answer", "agent", name, "retries", retries)
					return m.finish(runCtx, h, res, NoAnswerText)
				}
				retries++
				runCtx.LogDebug("agent.think.degenerate", "agent", name, "retry", retries)
				h = append(h, core.NewSystemMessage(CorrectivePrompt))
				continue
			}

			h = append(h, msg)
			if err := runCtx.EmitEvent(core.NewMessageEvent(runCtx.RunID, name, runCtx.Speaker, msg)); err != nil {
				res.History = h
				return res, err
			}

			state = NextState(state, msg)
			if state == StateDone {
				if !streamed {
					if err := m.emitText(runCtx, msg.Text()); err != nil {
						res.History = h
						return res, err
					}
				}
				res.Text = msg.Text()
				res.History = h
				runCtx.LogDebug("agent.machine.done", "agent", name, "steps", res.Steps)
				return res, nil
			}

		case StateAct:
			last := h[len(h)-1]
			results, failed, err := m.act(runCtx, last.ToolCalls)
			h = append(h, results...)
			if err != nil {
				res.History = h
				return res, err
			}
			if failed && m.opts.ToolErrorPolicy == ToolErrorTerminate {
				return m.finish(runCtx, h, res, ApologyText)
			}
			state = NextState(state, last)
		}
	}
}

// finish appends a synthesized terminal answer and streams it.
func (m *Machine) finish(runCtx *core.RunContext, h []core.Message, res core.RunResult, text string) (core.RunResult, error) {
	msg := core.NewAssistantMessage(text)
	h = append(h, msg)
	res.Text = text
	res.History = h

	if err := runCtx.EmitEvent(core.NewMessageEvent(runCtx.RunID, m.agent.GetName(), runCtx.Speaker, msg)); err != nil {
		return res, err
	}
	if err := m.emitText(runCtx, text); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Machine) emitText(runCtx *core.RunContext, text string) error {
	if text == "" {
		return nil
	}
	return runCtx.EmitEvent(core.NewTextDeltaEvent(runCtx.RunID, m.agent.GetName(), runCtx.Speaker, text))
}

// think performs one model call. It streams partial text as delta events and
// reports whether any fragment was emitted.
func (m *Machine) think(runCtx *core.RunContext, h []core.Message) (msg core.Message, streamed bool, err error) {
	llm := m.agent.GetLLM()
	if llm == nil {
		return core.Message{}, false, errors.New("agent has no model")
	}

	req := &model.Request{
		Messages: core.CloneMessages(h),
		Stream:   m.agent.IsStreamingEnabled(),
	}
	for _, p := range m.opts.RequestProcessors {
		if err := p.ProcessRequest(runCtx, req, m.agent); err != nil {
			return core.Message{}, false, fmt.Errorf("request processor %s: %w", p.Name(), err)
		}
	}

	ctx := runCtx.Context
	if m.opts.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.NodeTimeout)
		defer cancel()
	}

	runCtx.LogDebug("agent.think.start", "agent", m.agent.GetName(), "messages", len(req.Messages), "tools", len(req.Tools))

	start := time.Now()
	tokens := 0
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
		logging.LogModelCall(runCtx.Logger(), llm.Info().Name, tokens, time.Since(start), err)
	}()

	respCh, errCh := llm.Generate(ctx, *req)

	var (
		final    core.Message
		hasFinal bool
	)
	for resp := range respCh {
		if resp.Usage != nil {
			tokens = resp.Usage.TotalTokens
		}
		if !resp.Partial {
			final = resp.Message
			hasFinal = true
			continue
		}
		text := resp.Message.Text()
		if text == "" {
			continue
		}
		if emitErr := m.emitText(runCtx, text); emitErr != nil {
			return core.Message{}, streamed, emitErr
		}
		streamed = true
	}
	if genErr := <-errCh; genErr != nil {
		return core.Message{}, streamed, genErr
	}
	if !hasFinal {
		return core.Message{}, streamed, errors.New("model returned no final response")
	}

	final.Role = core.RoleAssistant
	return final, streamed, nil
}

// act runs a batch of tool calls. Results come back in request order and
// failed reports whether any call errored.
func (m *Machine) act(runCtx *core.RunContext, calls []core.FunctionCall) (results []core.Message, failed bool, err error) {
	name := m.agent.GetName()
	registry := tool.NewRegistry(m.agent.GetTools()...)

	for _, c := range calls {
		if err := runCtx.EmitEvent(core.NewToolCallEvent(runCtx.RunID, name, c)); err != nil {
			return nil, false, err
		}
	}

	m.opts.Executor.Execute(runCtx, m.agent, registry, calls, func(fc core.FunctionCall, msg core.Message, callErr error) {
		results = append(results, msg)
		if callErr != nil {
			failed = true
			runCtx.LogWarn("agent.function.failed", "agent", name, "function", fc.Name, "error", callErr.Error())
		}
	})

	for _, msg := range results {
		if err := runCtx.EmitEvent(core.NewToolResultEvent(runCtx.RunID, name, msg)); err != nil {
			return results, failed, err
		}
	}

	if err := runCtx.Err(); err != nil {
		return results, failed, err
	}

	return results, failed, nil
}
