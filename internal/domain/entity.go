package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription status values.
const (
	SubscriptionActive    = "active"
	SubscriptionCompleted = "completed"
)

// Subscription is the persisted record of an operator asking to be notified
// about an order. The order id is the key.
type Subscription struct {
	OrderID        string          `gorm:"primaryKey" json:"order_id"`
	ChannelID      string          `json:"channel_id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status" gorm:"index"`
	StartTime      time.Time       `json:"start_time"`
	LastCheck      time.Time       `json:"last_check"`
	CompletionTime *time.Time      `json:"completion_time,omitempty"`
	LastUpdate     time.Time       `json:"last_update"`
	LastStatus     string          `json:"last_status"`
	LastFillPct    decimal.Decimal `json:"last_fill_pct" gorm:"type:text"`
}

// SubscriptionPatch lists the fields an update may set. Nil fields are left alone.
type SubscriptionPatch struct {
	Status         *string
	LastCheck      *time.Time
	CompletionTime *time.Time
	LastUpdate     *time.Time
	LastStatus     *string
	LastFillPct    *decimal.Decimal
}

// ObservedPatch is the write made after a notified change: latest status,
// fill percentage and observation time.
func ObservedPatch(s OrderState) SubscriptionPatch {
	ts := s.ObservedAt
	status := s.Status
	fill := s.FillPct
	return SubscriptionPatch{LastUpdate: &ts, LastStatus: &status, LastFillPct: &fill}
}

// ScanFilter narrows a subscription scan. An empty Status matches every record.
type ScanFilter struct {
	Status string
}

// Matches reports whether sub passes the filter.
func (f ScanFilter) Matches(sub Subscription) bool {
	return f.Status == "" || sub.Status == f.Status
}
