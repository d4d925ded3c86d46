package specialist

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Column is one column of an analytics table.
type Column struct {
	Name string
	Type string
}

// Table declares the schema an analytics answer may reference.
type Table struct {
	Name    string
	Columns []Column
}

// HasColumn reports whether name is a declared column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Summary renders the table as "table → col1, col2, ...".
func (t Table) Summary() string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return t.Name + " → " + strings.Join(names, ", ")
}

// DDL renders a CREATE TABLE statement for the schema.
func (t Table) DDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s\n(\n", t.Name)
	for i, c := range t.Columns {
		sep := ","
		if i == len(t.Columns)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    `%s` %s%s\n", c.Name, c.Type, sep)
	}
	b.WriteString(")")
	return b.String()
}

// OrderItemsSchema is the ClickHouse view analytics answers are written against.
var OrderItemsSchema = Table{
	Name: "analytics.order_items_view",
	Columns: []Column{
		{Name: "order_item_id", Type: "UInt64"},
		{Name: "created_at", Type: "DateTime64(3)"},
		{Name: "order_id", Type: "UInt64"},
		{Name: "order_item_type", Type: "LowCardinality(String)"},
		{Name: "order_item_name", Type: "String"},
		{Name: "order_date", Type: "DateTime"},
		{Name: "user_id", Type: "UInt64"},
		{Name: "payment_method", Type: "LowCardinality(String)"},
		{Name: "order_source", Type: "LowCardinality(String)"},
		{Name: "order_status", Type: "String"},
		{Name: "product_id", Type: "UInt64"},
		{Name: "variation_id", Type: "UInt64"},
		{Name: "quantity", Type: "UInt32"},
		{Name: "price_after_coupon_and_wallet", Type: "Decimal(9, 2)"},
		{Name: "asp", Type: "Decimal(9, 2)"},
		{Name: "mrp", Type: "Decimal(9, 2)"},
		{Name: "item_status", Type: "LowCardinality(String)"},
		{Name: "cancellation_requested_by_admin", Type: "LowCardinality(String)"},
		{Name: "cancellation_request_time", Type: "DateTime"},
		{Name: "cancelled_reason", Type: "LowCardinality(String)"},
		{Name: "cancellation_comment", Type: "String"},
		{Name: "delivered_time", Type: "DateTime"},
		{Name: "first_edd", Type: "DateTime"},
		{Name: "cancelled_time", Type: "DateTime"},
		{Name: "dispatched_time", Type: "DateTime"},
		{Name: "return_initiated_time", Type: "DateTime"},
		{Name: "return_approved_observed_time", Type: "DateTime"},
		{Name: "fullfillable_time", Type: "DateTime"},
		{Name: "returned_time", Type: "DateTime"},
		{Name: "dto_return", Type: "Bool"},
		{Name: "rto_return", Type: "Bool"},
		{Name: "exchanged_order_item_id", Type: "UInt64"},
		{Name: "bogo_sale_item", Type: "Bool"},
		{Name: "return_picked_up_time", Type: "DateTime"},
		{Name: "return_reason", Type: "String"},
		{Name: "return_comment", Type: "String"},
		{Name: "return_issue", Type: "String"},
		{Name: "return_by_admin", Type: "String"},
		{Name: "return_request_time", Type: "DateTime"},
		{Name: "return_reverse_pickup_failed_time", Type: "DateTime"},
		{Name: "shipping_provider", Type: "String"},
		{Name: "dispatch_facility", Type: "String"},
		{Name: "return_admin_comment", Type: "String"},
		{Name: "return_shipping_provider", Type: "String"},
		{Name: "return_canceled_by_customer", Type: "String"},
		{Name: "courier_assignment_failure_count", Type: "UInt8"},
		{Name: "customer_cancelled_return_reverse_pickup_time", Type: "DateTime"},
		{Name: "inventory_type", Type: "LowCardinality(String)"},
		{Name: "tracking_number", Type: "String"},
		{Name: "return_tracking_number", Type: "String"},
		{Name: "utm_source", Type: "String"},
		{Name: "utm_medium", Type: "String"},
		{Name: "utm_campaign", Type: "String"},
		{Name: "city", Type: "String"},
		{Name: "state", Type: "String"},
		{Name: "pincode", Type: "String"},
		{Name: "coupon_name", Type: "String"},
		{Name: "coupon_discount", Type: "Int16"},
		{Name: "shipping_or_cod_charge", Type: "UInt16"},
		{Name: "normal_wallet_used", Type: "UInt16"},
		{Name: "fast_wallet_used", Type: "UInt16"},
		{Name: "bogo_discount_used", Type: "UInt16"},
		{Name: "parent_order_item_id", Type: "UInt64"},
		{Name: "metadata", Type: "String"},
		{Name: "billing_address", Type: "String"},
		{Name: "payment_gateway", Type: "LowCardinality(String)"},
		{Name: "invoice_date", Type: "DateTime"},
		{Name: "invoice_code", Type: "String"},
		{Name: "invoice_amount", Type: "Decimal(9, 2)"},
		{Name: "refund_cod_amount", Type: "Decimal(9, 2)"},
		{Name: "refund_payout_link_send_time", Type: "DateTime"},
		{Name: "rp_payout_link_status", Type: "String"},
		{Name: "rp_payout_link_attempts", Type: "UInt8"},
		{Name: "payout_link_processed_time", Type: "DateTime"},
		{Name: "vpa_refund_payout_id", Type: "String"},
		{Name: "vpa_refund_failure_reason", Type: "String"},
		{Name: "vpa_refund_payout_time", Type: "DateTime"},
		{Name: "vpa_refund_payout_status", Type: "String"},
		{Name: "vpa_refund_payout_attempt_time", Type: "DateTime"},
		{Name: "refund_initiated_date", Type: "DateTime"},
		{Name: "refund_completed_date", Type: "DateTime"},
		{Name: "manual_refund", Type: "String"},
		{Name: "manual_refund_time", Type: "DateTime"},
		{Name: "not_picked_up_but_refunded", Type: "String"},
		{Name: "refund_status", Type: "String"},
		{Name: "refund_amount", Type: "Decimal(9, 2)"},
		{Name: "normal_wallet_refund_amount", Type: "Decimal(9, 2)"},
		{Name: "fast_wallet_refund_amount", Type: "Decimal(9, 2)"},
		{Name: "return_images", Type: "String"},
		{Name: "onhold_reason", Type: "LowCardinality(String)"},
		{Name: "qc_failed_return_rejected", Type: "Bool"},
		{Name: "billing_phone", Type: "String"},
		{Name: "courier_partner_edd", Type: "String"},
		{Name: "rvp_escalated_time", Type: "DateTime"},
		{Name: "last_rvp_cancelled_time", Type: "DateTime"},
		{Name: "store_order_remarks", Type: "String"},
		{Name: "shipping_alternate_phone", Type: "String"},
		{Name: "fast_delivery_type", Type: "LowCardinality(String)"},
		{Name: "return_initiated_observed_time", Type: "DateTime"},
		{Name: "payment_date", Type: "DateTime"},
		{Name: "user_os", Type: "LowCardinality(String)"},
		{Name: "prepaid_shipping_fee", Type: "UInt16"},
		{Name: "cod_shipping_fee", Type: "UInt16"},
		{Name: "cod_charge_fee", Type: "UInt16"},
		{Name: "is_freebie", Type: "LowCardinality(String)"},
		{Name: "return_window", Type: "Int64"},
		{Name: "billing_email", Type: "String"},
		{Name: "return_disable_reason", Type: "String"},
		{Name: "payment_method_type", Type: "LowCardinality(String)"},
		{Name: "payment_info", Type: "String"},
		{Name: "offline_invoice_number", Type: "String"},
		{Name: "return_refund_completed", Type: "LowCardinality(String)"},
		{Name: "refund_eligibility", Type: "LowCardinality(String)"},
		{Name: "reverse_pickup_failed_reason", Type: "String"},
		{Name: "rk", Type: "UInt64"},
		{Name: "fulfilled_facility_uc", Type: "LowCardinality(String)"},
		{Name: "fulfillable_time_uc_ist", Type: "DateTime"},
	},
}

var (
	sqlBlockRe  = regexp.MustCompile("(?s)```sql\\s*\\n(.*?)```")
	anyBlockRe  = regexp.MustCompile("(?s)```.*?```")
	identRe     = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	stringLitRe = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
)

// ExtractSQL returns the body of the single ```sql block in answer. ok is
// false when there is no block, more than one block, or prose outside it.
func ExtractSQL(answer string) (sql string, ok bool) {
	blocks := sqlBlockRe.FindAllStringSubmatch(answer, -1)
	if len(blocks) != 1 {
		return "", false
	}
	if len(anyBlockRe.FindAllString(answer, -1)) != 1 {
		return "", false
	}

	if rest := strings.TrimSpace(anyBlockRe.ReplaceAllString(answer, "")); rest != "" {
		return "", false
	}

	return strings.TrimSpace(blocks[0][1]), true
}

// ReferencedColumns returns the declared columns of table that sql mentions,
// sorted and deduplicated. String literals are ignored.
func ReferencedColumns(table Table, sql string) []string {
	seen := map[string]bool{}
	for _, ident := range identRe.FindAllString(stringLitRe.ReplaceAllString(sql, "''"), -1) {
		if table.HasColumn(ident) {
			seen[ident] = true
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CheckAnalyticsAnswer validates the answer contract of the analytics agent:
// exactly one SQL block, no surrounding prose, and at least one reference to
// a declared column.
func CheckAnalyticsAnswer(table Table, answer string) error {
	sql, ok := ExtractSQL(answer)
	if !ok {
		return fmt.Errorf("answer is not a single sql code block")
	}
	if !strings.Contains(sql, table.Name) {
		return fmt.Errorf("query does not read from %s", table.Name)
	}
	if len(ReferencedColumns(table, sql)) == 0 {
		return fmt.Errorf("query references no column of %s", table.Name)
	}
	return nil
}
