package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status tokens as sent by the venue.
const (
	OrderStatusNew             = "New"
	OrderStatusPendingNew      = "PendingNew"
	OrderStatusPartiallyFilled = "PartiallyFilled"
	OrderStatusFilled          = "Filled"
	OrderStatusCanceled        = "Canceled"
	OrderStatusPendingCancel   = "PendingCancel"
	OrderStatusRejected        = "Rejected"
	OrderStatusDoneForDay      = "DoneForDay"
	OrderStatusUnknown         = "Unknown"
)

var hundred = decimal.NewFromInt(100)

// OrderState is the last observed state of one order.
// A new OrderState replaces the previous one; fields are never merged.
type OrderState struct {
	OrderID    string
	Status     string
	Symbol     string
	CumQty     decimal.Decimal
	OrderQty   decimal.Decimal
	LeavesQty  decimal.Decimal
	AvgPx      decimal.Decimal
	Comments   string
	FillPct    decimal.Decimal
	ObservedAt time.Time
}

// NewOrderState builds a state and derives the fill percentage from the
// given quantities.
func NewOrderState(orderID, status, symbol string, cumQty, orderQty, leavesQty, avgPx decimal.Decimal, comments string, observedAt time.Time) OrderState {
	if status == "" {
		status = OrderStatusUnknown
	}
	if symbol == "" {
		symbol = "Unknown"
	}
	s := OrderState{
		OrderID:    orderID,
		Status:     status,
		Symbol:     symbol,
		CumQty:     cumQty,
		OrderQty:   orderQty,
		LeavesQty:  leavesQty,
		AvgPx:      avgPx,
		Comments:   comments,
		ObservedAt: observedAt,
	}
	s.FillPct = FillPercentage(cumQty, orderQty)
	return s
}

// FillPercentage returns cum/total*100, or zero when total is not positive.
func FillPercentage(cum, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return cum.Div(total).Mul(hundred)
}

// IsComplete reports whether the fill percentage reached 100.
func (o OrderState) IsComplete() bool {
	return o.FillPct.GreaterThanOrEqual(hundred)
}

// BaseCurrency extracts the base asset of a dash-separated symbol (BTC-USD -> BTC).
func BaseCurrency(symbol string) string {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' {
			return symbol[:i]
		}
	}
	return symbol
}

// ExecutionStatus is the point-in-time execution summary of an order as
// returned by the venue's REST order lookup.
type ExecutionStatus struct {
	OrderID       string
	Symbol        string
	CumQty        decimal.Decimal
	OrderQty      decimal.Decimal
	LeavesQty     decimal.Decimal
	AvgPx         decimal.Decimal
	AvgPxAllIn    decimal.Decimal
	FillPct       decimal.Decimal
	Status        string
	FilledMarkets int
}

// IsComplete reports whether the order needs no further monitoring.
func (e ExecutionStatus) IsComplete() bool {
	return e.Status == OrderStatusFilled || e.Status == OrderStatusDoneForDay
}
