package tool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDetailsTool_PostsInternalPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/kapture/fetch/item/details", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "DELIVERED",
			"tracking": []any{"packed", "shipped", "delivered"},
		})
	}))
	defer srv.Close()

	tl := NewOrderDetailsTool(func(o *OrderDetailsOptions) {
		o.BaseURL = srv.URL + "/kapture/fetch/"
		o.Token = "tok"
		o.Cutoff = 2
	})

	out, err := tl.Call(newToolContext("fc"), map[string]any{
		"order_id":      100.0,
		"order_item_id": 5.0,
		"user_prompt":   "what is the status",
	})
	require.NoError(t, err)

	assert.Equal(t, true, got["is_internal"])
	assert.Equal(t, "1", got["page_number"])
	assert.EqualValues(t, 100, got["order_id"])
	assert.EqualValues(t, 5, got["order_item_id"])

	res := out.(map[string]any)
	data := res["data"].(map[string]any)
	assert.Equal(t, "DELIVERED", data["status"])
	assert.Len(t, data["tracking"], 2)
	assert.Contains(t, res["message"], OrderDetailsMessage)
	assert.Contains(t, res["message"], "first 2 of 3")
}

func TestOrderDetailsTool_ValidationAndNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tl := NewOrderDetailsTool(func(o *OrderDetailsOptions) { o.BaseURL = srv.URL })

	_, err := tl.Call(newToolContext("fc"), map[string]any{"order_id": "abc", "order_item_id": 5.0, "user_prompt": "status"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = tl.Call(newToolContext("fc"), map[string]any{"order_id": 1.5, "order_item_id": 5.0, "user_prompt": "status"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = tl.Call(newToolContext("fc"), map[string]any{"order_id": 1.0, "order_item_id": 5.0, "user_prompt": "status"})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}
