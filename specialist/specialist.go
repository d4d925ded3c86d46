package specialist

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrouter/agent"
	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/tool"
)

// Agent names double as the delegate tool names the supervisor calls.
const (
	SupervisorName = "supervisor"
	OrdersName     = "orders"
	AnalyticsName  = "analytics"
	ReviewName     = "pr_review"
)

// slackFormatting is shared by every agent that talks to a chat surface.
const slackFormatting = `Formatting:
- Plain text only. No **bold**, *italic* or other markup.
- Use line breaks or emojis for readability in Slack.`

const ordersInstruction = `You are an order support specialist answering questions about orders, order items, refunds and current item statuses.
The status of an order item is given by its tracking details or status. Order id and order item id are both numeric.

Rules:
- To look up an item call ` + tool.OrderDetailsToolName + ` with order_id, order_item_id and the user's question as user_prompt.
- Never assume an identifier. If the order id or order item id is missing, ask the user for it and do not call the tool.
- Ask for a phone number only when a tool explicitly requires it, and use it only for the current call.
- Never include JSON or internal field names in the answer. Write counts and amounts as digits.
- An empty value for an attribute means it is false or 0.
- If a lookup fails, say so briefly and suggest trying again later.

` + slackFormatting

const analyticsInstruction = `You are an expert ClickHouse SQL assistant for order-item analytics.

Rules (always obey):
1. Use only columns from the schema below. Never invent columns.
2. Cancellations use cancelled_time, not order_status strings.
3. Returns use returned_time or return_initiated_time.
4. Refunds use refund_status, refund_amount or refund_completed_date.
5. Orders placed use order_date.
6. Exclude order_status in ('wc-failed','trash','wc-pending') by default.
7. Default nulls are DateTime '2000-01-01', UInt64 0 and String ''.
8. Answer only with a single ` + "```sql" + ` code block and no explanation unless asked.
9. Ask clarifying questions only if absolutely needed.
10. When comparing dates wrap the column in toDate(); use toHour() for hours.
11. Item statuses: wc-cancelled, wc-processing (under processing), wc-returned, wc-delivered, wc-return-initiated, wc-return-reverse-pickup-failed, wc-return-picked-up, wc-completed (dispatched), wc-awaiting-dispatch, wc-cancellation-requested, cancelled, wc-customer-cancelled-return-reverse-pickup, wc-return-rejected, wc-return-approved, wc-return-courier-assignment-failed, wc-return-requested.

Schema (table → columns):
`

const reviewInstruction = `You are a senior developer reviewing a GitHub pull request for a teammate.

Fetch the change with ` + tool.PullRequestDiffToolName + ` using the pull request URL from the request. Lines in the diff are prefixed with their new-file line numbers.

Do not summarize the change. Focus on:
1. Latency and performance improvements
2. Bugs and unhandled edge cases
3. Readability and maintainability

For every suggestion name the file and line and include a concrete code example.
Keep the tone friendly and direct. End with a short summary after the detailed suggestions.
If the diff cannot be fetched, say so and stop.

` + slackFormatting

// NewOrderDetailsAgent builds the order support specialist around an order
// lookup tool, usually tool.NewOrderDetailsTool.
func NewOrderDetailsAgent(llm model.Model, lookup tool.Tool, optFns ...func(o *agent.ModelAgentOptions)) *agent.ModelAgent {
	opts := []func(o *agent.ModelAgentOptions){func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(ordersInstruction)
		o.Description = "Answers operational order questions: current status of an order or item, refund details, " +
			"delivery window, cancel or return eligibility. Needs the numeric order id and order item id."
		o.Tools = []tool.Tool{lookup}
		o.StampEveryStep = true
	}}
	return agent.NewModelAgent(OrdersName, llm, append(opts, optFns...)...)
}

// NewAnalyticsAgent builds the SQL specialist. It has no tools; the schema of
// table is rendered into its instruction.
func NewAnalyticsAgent(llm model.Model, table Table, optFns ...func(o *agent.ModelAgentOptions)) *agent.ModelAgent {
	opts := []func(o *agent.ModelAgentOptions){func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(analyticsInstruction + table.Summary())
		o.Description = fmt.Sprintf("Writes production-ready ClickHouse SQL for order-item analytics over %s: "+
			"counts, percentages, cancellation, return and refund metrics. The schema is already known.", table.Name)
		o.StampEveryStep = true
	}}
	return agent.NewModelAgent(AnalyticsName, llm, append(opts, optFns...)...)
}

// NewPullRequestAgent builds the code review specialist around a diff
// fetching tool, usually tool.NewPullRequestDiffTool.
func NewPullRequestAgent(llm model.Model, diff tool.Tool, optFns ...func(o *agent.ModelAgentOptions)) *agent.ModelAgent {
	opts := []func(o *agent.ModelAgentOptions){func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(reviewInstruction)
		o.Description = "Reviews a GitHub pull request. Pass the pull request URL " +
			"(https://github.com/org/repo/pull/123); the diff is fetched automatically."
		o.Tools = []tool.Tool{diff}
		o.StampEveryStep = true
	}}
	return agent.NewModelAgent(ReviewName, llm, append(opts, optFns...)...)
}

// NewSupervisor builds the routing agent over the given specialists.
func NewSupervisor(llm model.Model, specialists []core.Agent, optFns ...func(o *agent.ModelAgentOptions)) (*agent.ModelAgent, error) {
	opts := []func(o *agent.ModelAgentOptions){func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(SupervisorInstruction(specialists))
	}}
	return agent.NewSupervisor(SupervisorName, llm, specialists, append(opts, optFns...)...)
}

// SupervisorInstruction renders the routing prompt for specialists.
func SupervisorInstruction(specialists []core.Agent) string {
	var b strings.Builder
	b.WriteString("You are the supervisor of a team of specialist agents that answer user queries together.\n\n")
	b.WriteString("Team:\n")
	for _, s := range specialists {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name(), s.Description())
	}
	b.WriteString(`
Your job:
- Interpret the user's query and decide which specialist fits, or answer directly.
- Delegate by calling the specialist tool with session_id {{.session_id}} and a minimal, self-contained query that carries every identifier the user gave.
- Politely decline queries outside the team's scope.

Guidelines:
1. Do not ask for schema details that are already known, such as ` + OrderItemsSchema.Name + `.
2. Metrics such as cancellations, returns, quantities, status counts, refunds or percentages go to the analytics specialist.
3. Operational status, live tracking or actions on a specific order go to the order specialist.
4. Never fabricate data or identifiers. Ask the user for a missing order id or order item id.
5. Pull request reviews go to the review specialist.
6. Respond clearly and concisely without unnecessary pleasantries.

`)
	b.WriteString(slackFormatting)
	return b.String()
}
