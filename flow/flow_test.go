package flow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/internal/testutil"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

type testAgent struct {
	name   string
	llm    model.Model
	instr  string
	tools  []tool.Tool
	budget int
}

func (a *testAgent) GetName() string                                      { return a.name }
func (a *testAgent) GetLLM() model.Model                                  { return a.llm }
func (a *testAgent) ResolveInstructions(*core.RunContext) (string, error) { return a.instr, nil }
func (a *testAgent) GetTools() []tool.Tool                                { return a.tools }
func (a *testAgent) IsStreamingEnabled() bool                             { return true }
func (a *testAgent) TokenBudget() int                                     { return a.budget }

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }

type harness struct {
	rc     *core.RunContext
	events chan core.Event
	cancel context.CancelFunc
}

func newHarness(t *testing.T, maxSteps int) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := make(chan core.Event, 512)
	rc := core.NewRunContext(
		ctx,
		"run-1",
		core.AgentInfo{Name: "agent", Type: "test"},
		core.NewTurnConfig("sess-1", "u1_1700000000", "UTC", fixedNow),
		events,
		core.NewStepLimiter(maxSteps),
		nil,
		logging.NoOpLogger{},
	)
	return &harness{rc: rc, events: events, cancel: cancel}
}

func (h *harness) drain() []core.Event {
	var out []core.Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func deltas(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == core.EventTextDelta {
			out = append(out, ev.Text)
		}
	}
	return out
}

func echoTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "echo arguments", map[string]any{"type": "object"},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return map[string]any{"tool": name, "args": args}, nil
		})
}

func failingTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "always fails", map[string]any{"type": "object"},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		})
}

func userHistory(text string) []core.Message {
	return []core.Message{core.NewUserMessage(text)}
}

func TestNextState(t *testing.T) {
	withCalls := core.NewToolCallMessage("", core.FunctionCall{ID: "c1", Name: "x", Arguments: "{}"})
	plain := core.NewAssistantMessage("hi")

	tests := []struct {
		name    string
		current State
		last    core.Message
		want    State
	}{
		{"think with calls", StateThink, withCalls, StateAct},
		{"think without calls", StateThink, plain, StateDone},
		{"act returns to think", StateAct, withCalls, StateThink},
		{"act after plain", StateAct, plain, StateThink},
		{"done stays done", StateDone, plain, StateDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextState(tt.current, tt.last))
		})
	}
	assert.Equal(t, "THINK", StateThink.String())
	assert.Equal(t, "ACT", StateAct.String())
	assert.Equal(t, "DONE", StateDone.String())
}

func TestMachine_DirectAnswer(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").EnqueueText("Hello there")
	m := NewMachine(&testAgent{name: "agent", llm: llm})

	history := userHistory("hi")
	res, err := m.Run(h.rc, history)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", res.Text)
	assert.Equal(t, 1, res.Steps)
	require.Len(t, res.History, 2)
	assert.Equal(t, core.RoleAssistant, res.History[1].Role)
	assert.Len(t, history, 1, "caller history must not be mutated")
	assert.Equal(t, []string{"Hello there"}, deltas(h.drain()))
}

func TestMachine_StreamsPartialsOnce(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").EnqueueStream("Hel", "lo")
	m := NewMachine(&testAgent{name: "agent", llm: llm})

	res, err := m.Run(h.rc, userHistory("hi"))
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.Text)
	evs := h.drain()
	assert.Equal(t, []string{"Hel", "lo"}, deltas(evs))
	for _, ev := range evs {
		assert.Equal(t, core.SpeakerSupervisor, ev.Speaker)
	}
}

func TestMachine_ToolRoundTrip(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").
		EnqueueToolCalls(core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"order_id":1}`}).
		EnqueueText("Order 1 is shipped.")
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{echoTool("lookup")}})

	res, err := m.Run(h.rc, userHistory("status of order 1?"))
	require.NoError(t, err)

	assert.Equal(t, "Order 1 is shipped.", res.Text)
	assert.Equal(t, 2, res.Steps)
	require.Len(t, res.History, 4)
	assert.Equal(t, core.RoleTool, res.History[2].Role)
	assert.Equal(t, "c1", res.History[2].ToolCallID)
	assert.NoError(t, core.ValidateToolLinkage(res.History))

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "lookup", reqs[0].Tools[0].Function.Name)
	assert.Equal(t, core.RoleTool, reqs[1].Messages[len(reqs[1].Messages)-1].Role)

	var kinds []core.EventKind
	for _, ev := range h.drain() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, core.EventToolCall)
	assert.Contains(t, kinds, core.EventToolResult)
}

func TestMachine_ParallelResultsKeepRequestOrder(t *testing.T) {
	h := newHarness(t, 25)
	var running, peak int32
	slowFirst := func(name string, delay time.Duration) tool.Tool {
		return tool.NewFunctionTool(name, "sleeps", map[string]any{"type": "object"},
			func(_ *core.ToolContext, _ map[string]any) (any, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(delay)
				atomic.AddInt32(&running, -1)
				return name, nil
			})
	}
	llm := model.NewMockModel("mock").
		EnqueueToolCalls(
			core.FunctionCall{ID: "c1", Name: "slow", Arguments: "{}"},
			core.FunctionCall{ID: "c2", Name: "fast", Arguments: "{}"},
		).
		EnqueueText("done")
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{
		slowFirst("slow", 60*time.Millisecond),
		slowFirst("fast", 5*time.Millisecond),
	}})

	res, err := m.Run(h.rc, userHistory("both please"))
	require.NoError(t, err)

	require.Len(t, res.History, 5)
	assert.Equal(t, "c1", res.History[2].ToolCallID)
	assert.Equal(t, "c2", res.History[3].ToolCallID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestMachine_DegenerateOutputIsCorrected(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").EnqueueText("").EnqueueText("   ").EnqueueText("Real answer")
	m := NewMachine(&testAgent{name: "agent", llm: llm})

	res, err := m.Run(h.rc, userHistory("hi"))
	require.NoError(t, err)

	assert.Equal(t, "Real answer", res.Text)
	assert.Equal(t, 3, llm.Calls())

	var corrective int
	for _, msg := range res.History {
		if msg.Role == core.RoleSystem && msg.Text() == CorrectivePrompt {
			corrective++
		}
		if msg.Role == core.RoleAssistant {
			assert.False(t, msg.IsDegenerate())
		}
	}
	assert.Equal(t, 2, corrective)
}

func TestMachine_DegenerateOutputCapped(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").SetFallback(model.Step{Message: core.NewAssistantMessage("")})
	m := NewMachine(&testAgent{name: "agent", llm: llm})

	res, err := m.Run(h.rc, userHistory("hi"))
	require.NoError(t, err)

	assert.Equal(t, NoAnswerText, res.Text)
	assert.Equal(t, DefaultMaxCorrectiveRetries+1, llm.Calls())
	assert.Equal(t, []string{NoAnswerText}, deltas(h.drain()))
}

func TestMachine_ZeroRetriesDisablesReprompt(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").SetFallback(model.Step{Message: core.NewAssistantMessage("")})
	m := NewMachine(&testAgent{name: "agent", llm: llm}, func(o *MachineOptions) {
		o.MaxCorrectiveRetries = 0
	})

	res, err := m.Run(h.rc, userHistory("hi"))
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, res.Text)
	assert.Equal(t, 1, llm.Calls())
}

func TestMachine_ModelFailureBecomesApology(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		h := newHarness(t, 25)
		llm := model.NewMockModel("mock").EnqueueError(errors.New("rate limited"))
		m := NewMachine(&testAgent{name: "agent", llm: llm})

		res, err := m.Run(h.rc, userHistory("hi"))
		require.NoError(t, err)
		assert.Equal(t, ApologyText, res.Text)
		assert.Equal(t, ApologyText, res.History[len(res.History)-1].Text())
		assert.Equal(t, []string{ApologyText}, deltas(h.drain()))
	})

	t.Run("panic", func(t *testing.T) {
		h := newHarness(t, 25)
		llm := model.NewMockModel("mock").Enqueue(model.Step{Panic: "adapter bug"})
		m := NewMachine(&testAgent{name: "agent", llm: llm})

		res, err := m.Run(h.rc, userHistory("hi"))
		require.NoError(t, err)
		assert.Equal(t, ApologyText, res.Text)
	})

	t.Run("node timeout", func(t *testing.T) {
		h := newHarness(t, 25)
		llm := model.NewMockModel("mock").Enqueue(model.Step{Block: true})
		m := NewMachine(&testAgent{name: "agent", llm: llm}, func(o *MachineOptions) {
			o.NodeTimeout = 20 * time.Millisecond
		})

		res, err := m.Run(h.rc, userHistory("hi"))
		require.NoError(t, err)
		assert.Equal(t, ApologyText, res.Text)
	})
}

func TestMachine_ToolFailureTerminates(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").EnqueueToolCalls(
		core.FunctionCall{ID: "c1", Name: "ok", Arguments: "{}"},
		core.FunctionCall{ID: "c2", Name: "broken", Arguments: "{}"},
	)
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{echoTool("ok"), failingTool("broken")}})

	res, err := m.Run(h.rc, userHistory("go"))
	require.NoError(t, err)

	assert.Equal(t, ApologyText, res.Text)
	assert.Equal(t, 1, llm.Calls())
	require.Len(t, res.History, 5)
	assert.Equal(t, "c1", res.History[2].ToolCallID)
	assert.Equal(t, "c2", res.History[3].ToolCallID)
	assert.Contains(t, res.History[3].ToolResultContent(), "backend unavailable")
	assert.NoError(t, core.ValidateToolLinkage(res.History))
}

func TestMachine_ToolFailureReported(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").
		EnqueueToolCalls(core.FunctionCall{ID: "c1", Name: "missing", Arguments: "{}"}).
		EnqueueText("I could not look that up.")
	m := NewMachine(&testAgent{name: "agent", llm: llm}, func(o *MachineOptions) {
		o.ToolErrorPolicy = ToolErrorReport
	})

	res, err := m.Run(h.rc, userHistory("go"))
	require.NoError(t, err)

	assert.Equal(t, "I could not look that up.", res.Text)
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Contains(t, last.ToolResultContent(), tool.CodeNotFound)
}

func TestMachine_ToolPanicAndTimeout(t *testing.T) {
	h := newHarness(t, 25)
	panicky := tool.NewFunctionTool("panicky", "panics", map[string]any{"type": "object"},
		func(_ *core.ToolContext, _ map[string]any) (any, error) { panic("boom") })
	slow := tool.NewFunctionTool("slow", "waits", map[string]any{"type": "object"},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			<-tc.Context().Done()
			return nil, tc.Context().Err()
		})
	llm := model.NewMockModel("mock").
		EnqueueToolCalls(
			core.FunctionCall{ID: "c1", Name: "panicky", Arguments: "{}"},
			core.FunctionCall{ID: "c2", Name: "slow", Arguments: "{}"},
		).
		EnqueueText("recovered")
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{panicky, slow}}, func(o *MachineOptions) {
		o.ToolErrorPolicy = ToolErrorReport
		o.ToolTimeout = 20 * time.Millisecond
	})

	res, err := m.Run(h.rc, userHistory("go"))
	require.NoError(t, err)

	assert.Equal(t, "recovered", res.Text)
	assert.Contains(t, res.History[2].ToolResultContent(), "panic recovered")
	assert.Contains(t, res.History[3].ToolResultContent(), tool.CodeTimeout)
}

func TestMachine_InvalidArgumentsAreValidationErrors(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").
		EnqueueToolCalls(core.FunctionCall{ID: "c1", Name: "lookup", Arguments: "{not json"}).
		EnqueueText("retry later")
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{echoTool("lookup")}}, func(o *MachineOptions) {
		o.ToolErrorPolicy = ToolErrorReport
	})

	res, err := m.Run(h.rc, userHistory("go"))
	require.NoError(t, err)
	assert.Contains(t, res.History[2].ToolResultContent(), tool.CodeValidation)
}

func TestMachine_StepLimit(t *testing.T) {
	h := newHarness(t, 3)
	llm := model.NewMockModel("mock").SetFallback(model.Step{
		Message: core.NewToolCallMessage("", core.FunctionCall{ID: "loop", Name: "lookup", Arguments: "{}"}),
	})
	m := NewMachine(&testAgent{name: "agent", llm: llm, tools: []tool.Tool{echoTool("lookup")}})

	res, err := m.Run(h.rc, userHistory("go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStepLimitExceeded)
	assert.Equal(t, 3, llm.Calls())
	assert.Equal(t, 3, res.Steps)
}

func TestMachine_Cancellation(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").Enqueue(model.Step{Block: true})
	m := NewMachine(&testAgent{name: "agent", llm: llm})

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.cancel()
	}()

	_, err := m.Run(h.rc, userHistory("hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMachine_SubordinateSpeaker(t *testing.T) {
	h := newHarness(t, 25)
	child := h.rc.NewChildContext(core.AgentInfo{Name: "orders", Type: "subordinate"})
	llm := model.NewMockModel("mock").EnqueueText("Order shipped")
	m := NewMachine(&testAgent{name: "orders", llm: llm})

	_, err := m.Run(child, userHistory("status"))
	require.NoError(t, err)

	for _, ev := range h.drain() {
		assert.Equal(t, core.SpeakerSubordinate, ev.Speaker)
		assert.False(t, ev.IsSupervisorText())
	}
}

func TestProcessors(t *testing.T) {
	h := newHarness(t, 25)
	llm := model.NewMockModel("mock").EnqueueText("ok")
	agent := &testAgent{
		name:  "orders",
		llm:   llm,
		instr: "You are {{.agent}} serving session {{.session_id}} on thread {{.thread_id}}.",
		tools: []tool.Tool{echoTool("lookup")},
	}
	m := NewMachine(agent, func(o *MachineOptions) {
		o.RequestProcessors = SubordinateRequestProcessors()
	})

	res, err := m.Run(h.rc, userHistory("hi"))
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are orders serving session sess-1 on thread u1_1700000000.", reqs[0].Instructions)
	assert.True(t, reqs[0].Stream)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "function", reqs[0].Tools[0].Type)

	stamp := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Equal(t, core.RoleSystem, stamp.Role)
	assert.True(t, strings.HasPrefix(stamp.Text(), "Today is 05-03-2024 10:00:00."))

	for _, msg := range res.History {
		assert.False(t, strings.HasPrefix(msg.Text(), "Today is"), "stamp must not enter history")
	}
}

func TestContentsProcessor_TokenBudget(t *testing.T) {
	h := newHarness(t, 25)
	history := testutil.NewHistoryBuilder().
		System("anchor").
		User(strings.Repeat("word ", 200)).
		Assistant(strings.Repeat("word ", 200)).
		User("latest question").
		Build()
	req := &model.Request{Messages: history}

	err := NewContentsProcessor().ProcessRequest(h.rc, req, &testAgent{name: "a", budget: 50})
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "anchor", req.Messages[0].Text())
	assert.Equal(t, "latest question", req.Messages[1].Text())
}
