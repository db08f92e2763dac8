package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingNotification is a formatted message waiting for delivery.
type PendingNotification struct {
	ID        string
	OrderID   string
	ChannelID string
	Body      string
	QueuedAt  time.Time
}

// NewPendingNotification stamps a notification with a fresh id.
func NewPendingNotification(orderID, channelID, body string, now time.Time) PendingNotification {
	return PendingNotification{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ChannelID: channelID,
		Body:      body,
		QueuedAt:  now,
	}
}
