package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func newTestRunContext(events chan core.Event) *core.RunContext {
	return core.NewRunContext(
		context.Background(),
		"run-id",
		core.AgentInfo{Name: "supervisor", Type: "test"},
		core.NewTurnConfig("sess-1", "u1_1700000000", "", nil),
		events,
		core.NewStepLimiter(25),
		nil,
		logging.NoOpLogger{},
	)
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_Dynamic(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) { return "session " + rc.SessionID, nil })
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "session sess-1", got)

	got, err = NewInstructionFromProvider(mockProvider{text: "provider text"}).Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "provider text", got)
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	_, err := NewInstructionFromProvider(mockProvider{err: expectedErr}).Resolve(newTestRunContext(nil))
	assert.ErrorIs(t, err, expectedErr)

	_, err = JoinInstructions(NewInstructionFromText("a"), NewInstructionFromProvider(mockProvider{err: expectedErr})).
		Resolve(newTestRunContext(nil))
	assert.ErrorIs(t, err, expectedErr)
}

func TestJoinInstructions(t *testing.T) {
	inst := JoinInstructions(
		NewInstructionFromText("You answer order questions."),
		NewInstructionFromText("  "),
		NewInstructionFromProvider(mockProvider{text: "Schema: order_id"}),
	)

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "You answer order questions.\n\nSchema: order_id", got)
}
