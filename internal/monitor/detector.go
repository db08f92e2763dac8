package monitor

import (
	"fmt"

	"order_monitor/internal/domain"
	"order_monitor/internal/report"

	"github.com/shopspring/decimal"
)

type ChangeKind int

const (
	ChangeStarted ChangeKind = iota
	ChangeStatus
	ChangeCompleted
	ChangeFillDelta
	ChangePrice
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeStarted:
		return "started"
	case ChangeStatus:
		return "status"
	case ChangeCompleted:
		return "completed"
	case ChangeFillDelta:
		return "fill_delta"
	case ChangePrice:
		return "price"
	default:
		return "unknown"
	}
}

// Change is one notifiable difference between two observations.
type Change struct {
	Kind        ChangeKind
	Description string
}

var fullFill = decimal.NewFromInt(100)

// Detector compares consecutive observations of an order. The fill-delta and
// price rules are off while their thresholds are zero.
type Detector struct {
	FillDeltaPct  decimal.Decimal
	PriceDeltaPct decimal.Decimal
}

// DetectChanges applies the default rules: first sighting, status
// transition, completion.
func DetectChanges(prev *domain.OrderState, cur domain.OrderState) []Change {
	return Detector{}.Detect(prev, cur)
}

// Detect returns the changes from prev to cur. A nil prev yields exactly one
// "started" change.
func (d Detector) Detect(prev *domain.OrderState, cur domain.OrderState) []Change {
	if prev == nil {
		return []Change{{Kind: ChangeStarted, Description: "🆕 Started real-time monitoring"}}
	}

	var changes []Change

	if prev.Status != cur.Status {
		changes = append(changes, Change{
			Kind:        ChangeStatus,
			Description: fmt.Sprintf("%s Status: %s → *%s*", report.StatusEmoji(cur.Status), prev.Status, cur.Status),
		})
	}

	if d.FillDeltaPct.IsPositive() {
		diff := cur.FillPct.Sub(prev.FillPct)
		if diff.GreaterThanOrEqual(d.FillDeltaPct) {
			changes = append(changes, Change{
				Kind: ChangeFillDelta,
				Description: fmt.Sprintf("📈 Fill increased by %s%% (%s%% → %s%%)",
					diff.StringFixed(1), prev.FillPct.StringFixed(1), cur.FillPct.StringFixed(1)),
			})
		}
	}

	if prev.FillPct.LessThan(fullFill) && cur.FillPct.GreaterThanOrEqual(fullFill) {
		changes = append(changes, Change{Kind: ChangeCompleted, Description: "🎉 *Order completed (100% filled)*"})
	}

	if d.PriceDeltaPct.IsPositive() && prev.AvgPx.IsPositive() && cur.AvgPx.IsPositive() {
		movePct := cur.AvgPx.Sub(prev.AvgPx).Abs().Div(prev.AvgPx).Mul(fullFill)
		if movePct.GreaterThan(d.PriceDeltaPct) {
			direction := "worsened"
			if cur.AvgPx.GreaterThan(prev.AvgPx) {
				direction = "improved"
			}
			changes = append(changes, Change{
				Kind:        ChangePrice,
				Description: fmt.Sprintf("💰 Avg price %s: $%s → $%s", direction, prev.AvgPx.StringFixed(4), cur.AvgPx.StringFixed(4)),
			})
		}
	}

	return changes
}

// Descriptions extracts the rendered text of each change.
func Descriptions(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Description
	}
	return out
}
