package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/model"
)

func collect(respCh <-chan model.Response, errCh <-chan error) ([]model.Response, error) {
	var out []model.Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestBuildMessages_SystemAndToolResults(t *testing.T) {
	history := []core.Message{
		core.NewSystemMessage("session_id=s1"),
		core.NewUserMessage("status of 1 and 2?"),
		core.NewSystemMessage("Today is 01-01-2024 10:00:00. TZ=UTC offset=0m."),
		core.NewToolCallMessage("checking",
			core.FunctionCall{ID: "a", Name: "lookup", Arguments: `{"id":"1"}`},
			core.FunctionCall{ID: "b", Name: "lookup", Arguments: `{"id":"2"}`},
		),
		core.NewToolResultMessage("a", "lookup", "shipped", nil),
		core.NewToolResultMessage("b", "lookup", nil, errors.New("not found")),
		core.NewAssistantMessage("1 shipped, 2 unknown"),
	}

	system, msgs := buildMessages(history)
	require.Len(t, system, 1)
	assert.Equal(t, "session_id=s1", system[0].Text)

	// user text and the mid-conversation stamp merge into one user turn
	require.Len(t, msgs, 4)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Len(t, msgs[0].Content, 2)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "a", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "b", msgs[2].Content[1].OfToolResult.ToolUseID)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[3].Role)
}

func TestBuildTools_RequiredFromAnySlice(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{Function: model.FunctionDefinition{
		Name:        "delegate_orders",
		Description: "orders specialist",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
	}}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "delegate_orders", tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}

func TestGenerate_NonStreamingToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",
			"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":"tu_1","name":"lookup","input":{"id":"1"}}],
			"stop_reason":"tool_use","stop_sequence":null,
			"usage":{"input_tokens":7,"output_tokens":3}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})
	resps, err := collect(m.Generate(context.Background(), model.Request{
		Instructions: "route",
		Messages:     []core.Message{core.NewUserMessage("order 1?")},
	}))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	msg := resps[0].Message
	assert.Equal(t, "Let me check.", msg.Text())
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "tu_1", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"id":"1"}`, msg.ToolCalls[0].Arguments)
	assert.Equal(t, "tool_use", resps[0].FinishReason)
	assert.Equal(t, 10, resps[0].Usage.TotalTokens)
}
