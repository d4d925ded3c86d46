package tool

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/internal/httpkit"
)

const (
	// OrderDetailsToolName is the function name exposed to models.
	OrderDetailsToolName = "get_order_item_details"

	// OrderDetailsMessage accompanies every successful lookup.
	OrderDetailsMessage = "I have retrieved your items details succesfully"

	// DefaultDataCutoff bounds the number of list entries handed to a model.
	DefaultDataCutoff = 20
)

// OrderDetailsOptions configures the order item lookup tool.
type OrderDetailsOptions struct {
	BaseURL    string // e.g. https://internal.example.com/kapture/fetch/
	Token      string
	Cutoff     int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type orderDetailsArgs struct {
	OrderID     int    `json:"order_id" description:"Numeric order id"`
	OrderItemID int    `json:"order_item_id" description:"Numeric order item id"`
	UserPrompt  string `json:"user_prompt" description:"A precise single sentence describing exactly the data point the user asks for"`
}

type orderDetailsRequest struct {
	IsInternal  bool   `json:"is_internal"`
	PageNumber  string `json:"page_number"`
	OrderID     int64  `json:"order_id"`
	OrderItemID int64  `json:"order_item_id"`
}

// NewOrderDetailsTool returns a tool that fetches tracking, status, refund
// and payment details of one order item from the internal order service.
func NewOrderDetailsTool(optFns ...func(o *OrderDetailsOptions)) *FunctionTool {
	opts := OrderDetailsOptions{Cutoff: DefaultDataCutoff, Timeout: httpkit.DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(opts.Timeout), httpkit.WithBearerToken(opts.Token))
	}

	endpoint := strings.TrimSuffix(opts.BaseURL, "/") + "/item/details"

	return NewFunctionToolFromStruct(
		OrderDetailsToolName,
		"Retrieve tracking, status, refund and payment details of one order item. Requires both the numeric order id and order item id.",
		orderDetailsArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			orderID, err := intArg(args, "order_id")
			if err != nil {
				return nil, &ToolError{Tool: OrderDetailsToolName, Message: err.Error(), Code: CodeValidation}
			}
			itemID, err := intArg(args, "order_item_id")
			if err != nil {
				return nil, &ToolError{Tool: OrderDetailsToolName, Message: err.Error(), Code: CodeValidation}
			}

			var data any
			err = httpkit.PostJSON(tc.Context(), opts.HTTPClient, endpoint, orderDetailsRequest{
				IsInternal:  true,
				PageNumber:  "1",
				OrderID:     orderID,
				OrderItemID: itemID,
			}, &data)
			if err != nil {
				var se *httpkit.StatusError
				if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
					return nil, &ToolError{Tool: OrderDetailsToolName, Message: fmt.Sprintf("order %d item %d not found", orderID, itemID), Code: CodeNotFound}
				}
				return nil, fmt.Errorf("fetch order item details: %w", err)
			}

			data, total, truncated := truncateData(data, opts.Cutoff)
			msg := OrderDetailsMessage
			if truncated {
				msg = fmt.Sprintf("%s (showing the first %d of %d entries)", msg, opts.Cutoff, total)
			}

			tc.LogDebug("tool.orders.fetched", "order_id", orderID, "order_item_id", itemID, "truncated", truncated)

			return map[string]any{"data": data, "message": msg}, nil
		},
	)
}

// intArg reads an integral JSON number (float64 after decoding) or numeric string.
func intArg(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

// truncateData cuts top-level lists (or lists directly under a top-level
// object) down to limit entries. It reports the largest original length.
func truncateData(data any, limit int) (any, int, bool) {
	if limit <= 0 {
		return data, 0, false
	}
	switch v := data.(type) {
	case []any:
		if len(v) > limit {
			return v[:limit], len(v), true
		}
		return v, len(v), false
	case map[string]any:
		total, truncated := 0, false
		out := make(map[string]any, len(v))
		for k, val := range v {
			if list, ok := val.([]any); ok {
				if len(list) > total {
					total = len(list)
				}
				if len(list) > limit {
					val = list[:limit]
					truncated = true
				}
			}
			out[k] = val
		}
		return out, total, truncated
	default:
		return data, 0, false
	}
}
