package domain

import (
	"context"
	"time"
)

// SubscriptionStore is the persistence sink for monitoring subscriptions.
type SubscriptionStore interface {
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, orderID string) (*Subscription, error)
	Put(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, orderID string, patch SubscriptionPatch) error
	// Scan returns one page of matching records and the cursor of the next
	// page. An empty next cursor means the scan is complete.
	Scan(ctx context.Context, filter ScanFilter, cursor string, limit int) ([]Subscription, string, error)
	Close() error
}

// ChatNotifier delivers a text message to a chat channel.
type ChatNotifier interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// OrderStream is a long-lived order-update subscription.
type OrderStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, start time.Time) error
	// Receive returns ErrReceiveTimeout when no message arrived in time and an
	// error wrapping ErrConnectionLost when the transport dropped.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// OrderLookup fetches the current execution status of an order.
type OrderLookup interface {
	FetchOrder(ctx context.Context, orderID string) (*ExecutionStatus, error)
}
