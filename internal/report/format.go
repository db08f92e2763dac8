// Package report renders order state into chat messages.
package report

import (
	"fmt"
	"strings"
	"time"

	"order_monitor/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	hundred  = decimal.NewFromInt(100)
	ten      = decimal.NewFromInt(10)
	one      = decimal.NewFromInt(1)
)

// FormatQuantity renders qty with a K/M suffix; decimals shrink as the
// scaled value grows (7000000 -> "7.00M", 25000000 -> "25.0M").
func FormatQuantity(qty decimal.Decimal) string {
	switch {
	case qty.GreaterThanOrEqual(million):
		return scaled(qty.Div(million)) + "M"
	case qty.GreaterThanOrEqual(thousand):
		return scaled(qty.Div(thousand)) + "K"
	default:
		return scaled(qty)
	}
}

func scaled(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(hundred):
		return v.StringFixed(0)
	case v.GreaterThanOrEqual(ten):
		return v.StringFixed(1)
	default:
		return v.StringFixed(2)
	}
}

// CompactQuantity is the realtime-update rendering: one decimal for millions,
// whole thousands, grouped units, and more precision for small amounts.
func CompactQuantity(qty decimal.Decimal) string {
	switch {
	case qty.GreaterThanOrEqual(million):
		return qty.Div(million).StringFixed(1) + "M"
	case qty.GreaterThanOrEqual(thousand):
		return qty.Div(thousand).StringFixed(0) + "K"
	case qty.GreaterThanOrEqual(one):
		return humanize.FormatFloat("#,###.", qty.Round(0).InexactFloat64())
	case qty.GreaterThanOrEqual(decimal.RequireFromString("0.01")):
		return qty.StringFixed(2)
	case qty.GreaterThanOrEqual(decimal.RequireFromString("0.0001")):
		return qty.StringFixed(4)
	default:
		return qty.StringFixed(8)
	}
}

// FormatPrice picks decimals from the price magnitude.
func FormatPrice(price decimal.Decimal) string {
	switch {
	case price.GreaterThanOrEqual(thousand):
		return price.StringFixed(2)
	case price.GreaterThanOrEqual(hundred):
		return price.StringFixed(3)
	case price.GreaterThanOrEqual(ten):
		return price.StringFixed(4)
	case price.GreaterThanOrEqual(one):
		return price.StringFixed(5)
	default:
		return price.StringFixed(6)
	}
}

// ExecutionLine summarises an order's execution for the operator report.
func ExecutionLine(s domain.ExecutionStatus) string {
	asset := domain.BaseCurrency(s.Symbol)
	qty := FormatQuantity(s.CumQty)
	price := FormatPrice(s.AvgPxAllIn)
	if s.IsComplete() {
		return fmt.Sprintf("✅ %s %s filled (100%%) at final average net price of $%s", qty, asset, price)
	}
	return fmt.Sprintf("📊 ~%s %s filled (%s%%) at average net price of $%s", qty, asset, s.FillPct.Round(2).String(), price)
}

// StatusEmoji maps an order status to its marker.
func StatusEmoji(status string) string {
	switch status {
	case domain.OrderStatusNew:
		return "🆕"
	case domain.OrderStatusPartiallyFilled:
		return "🔄"
	case domain.OrderStatusFilled:
		return "✅"
	case domain.OrderStatusCanceled:
		return "❌"
	case domain.OrderStatusRejected:
		return "🚫"
	case domain.OrderStatusPendingCancel, domain.OrderStatusPendingNew:
		return "⏳"
	default:
		return "📊"
	}
}

// OrderUpdate renders the realtime notification for one order and its changes.
func OrderUpdate(s domain.OrderState, changes []string) string {
	var b strings.Builder
	b.WriteString("🔔 *Real-time Order Update*\n")

	shortID := s.OrderID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Fprintf(&b, "*%s* `%s...`", s.Symbol, shortID)
	if s.Comments != "" {
		b.WriteString(" - " + s.Comments)
	}
	b.WriteString("\n")

	if s.CumQty.IsPositive() && s.AvgPx.IsPositive() {
		fmt.Fprintf(&b, "~%s %s filled (%s%% of total order size) at average gross price of $%s",
			CompactQuantity(s.CumQty), domain.BaseCurrency(s.Symbol),
			s.FillPct.StringFixed(2), humanize.FormatFloat("#,###.######", s.AvgPx.InexactFloat64()))
	} else {
		fmt.Fprintf(&b, "Status: *%s* (%s%% filled)", s.Status, s.FillPct.StringFixed(1))
	}

	b.WriteString("\n\n*Changes:*")
	for _, c := range changes {
		b.WriteString("\n• " + c)
	}
	return b.String()
}

// CheckResult is one order's outcome in a scheduled check.
type CheckResult struct {
	OrderID  string
	Status   *domain.ExecutionStatus // nil when the lookup failed
	Err      error
	Complete bool
}

// ScheduledUpdate renders the per-channel digest of a scheduled check.
// Remaining counts the orders still active after the check.
func ScheduledUpdate(now time.Time, results []CheckResult, completed, remaining int) string {
	now = now.UTC()
	period := "Evening"
	next := "11:00 UTC"
	if now.Hour() < 12 {
		period = "Morning"
		next = "23:00 UTC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s Order Monitoring Update* (%s UTC)\n", period, now.Format("15:04"))
	for _, r := range results {
		b.WriteString("\n")
		switch {
		case r.Err != nil:
			fmt.Fprintf(&b, "• ⚠️ %s: Error - %v", r.OrderID, r.Err)
		case r.Status == nil:
			fmt.Fprintf(&b, "• ❌ %s: Unable to fetch status", r.OrderID)
		default:
			fmt.Fprintf(&b, "• `%s`: %s", r.OrderID, ExecutionLine(*r.Status))
		}
	}
	if completed > 0 {
		fmt.Fprintf(&b, "\n\n✅ *Completed orders removed from monitoring*: %d", completed)
	}
	if remaining > 0 {
		fmt.Fprintf(&b, "\n\n📅 *Next update*: %s (%d orders)", next, remaining)
	}
	return b.String()
}

// AlreadyMonitored is the reply to a duplicate registration.
func AlreadyMonitored(orderID string, s domain.ExecutionStatus) string {
	return fmt.Sprintf("⚠️ *Order Already Monitored*: %s\n%s\n\n_This order is already in the monitoring batch. You'll receive updates at 11:00 AM & 11:00 PM UTC._",
		orderID, ExecutionLine(s))
}

// Registered is the reply to a new registration.
func Registered(s domain.ExecutionStatus) string {
	if s.IsComplete() {
		return ExecutionLine(s) + "\n\n_Order is complete - no monitoring needed._"
	}
	return ExecutionLine(s) + "\n\n✅ *Real-time monitoring activated*\n_• Live updates on status changes & significant fills_\n_• Batch updates: 11:00 AM & 11:00 PM UTC_"
}
