package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFillPercentage(t *testing.T) {
	tests := []struct {
		name  string
		cum   string
		total string
		want  string
	}{
		{"zero total", "5", "0", "0"},
		{"negative total", "5", "-1", "0"},
		{"empty", "0", "100", "0"},
		{"half", "50", "100", "50"},
		{"full", "100", "100", "100"},
		{"fractional", "1", "3", "33.33333333333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FillPercentage(decimal.RequireFromString(tt.cum), decimal.RequireFromString(tt.total))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("FillPercentage(%s, %s) = %s, want %s", tt.cum, tt.total, got, tt.want)
			}
		})
	}
}

func TestNewOrderState_DerivesFill(t *testing.T) {
	s := NewOrderState("A1", "", "", decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.Zero, decimal.Zero, "", time.Now())

	if s.Status != OrderStatusUnknown {
		t.Errorf("Expected Unknown status, got %s", s.Status)
	}
	if !s.FillPct.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected fill 100, got %s", s.FillPct)
	}
	if !s.IsComplete() {
		t.Error("Expected complete order")
	}
}

func TestBaseCurrency(t *testing.T) {
	cases := map[string]string{
		"BTC-USD":   "BTC",
		"CPOOL-USD": "CPOOL",
		"FLR":       "FLR",
		"":          "",
	}
	for in, want := range cases {
		if got := BaseCurrency(in); got != want {
			t.Errorf("BaseCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExecutionStatus_IsComplete(t *testing.T) {
	for status, want := range map[string]bool{
		OrderStatusFilled:          true,
		OrderStatusDoneForDay:      true,
		OrderStatusPartiallyFilled: false,
		OrderStatusCanceled:        false,
	} {
		e := ExecutionStatus{Status: status}
		if e.IsComplete() != want {
			t.Errorf("IsComplete(%s) = %v, want %v", status, e.IsComplete(), want)
		}
	}
}

func TestScanFilter_Matches(t *testing.T) {
	active := Subscription{OrderID: "A", Status: SubscriptionActive}
	done := Subscription{OrderID: "B", Status: SubscriptionCompleted}

	if !(ScanFilter{}).Matches(done) {
		t.Error("empty filter should match everything")
	}
	f := ScanFilter{Status: SubscriptionActive}
	if !f.Matches(active) || f.Matches(done) {
		t.Error("status filter mismatch")
	}
}
