package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueN(b *Batcher, k int) {
	for i := 0; i < k; i++ {
		b.Enqueue(domain.NewPendingNotification(fmt.Sprintf("O%d", i), "C1", fmt.Sprintf("msg-%d", i), time.Now()))
	}
}

func TestBatcher_StateMachine(t *testing.T) {
	n := &fakeNotifier{}
	b := NewBatcher(n, NewPool(2, time.Second), infra.NewMetrics(), time.Hour, 3)
	assert.Equal(t, BatcherIdle, b.State())

	enqueueN(b, 5)
	assert.Equal(t, BatcherDraining, b.State())

	assert.Equal(t, 3, b.DrainOnce(context.Background()))
	assert.Equal(t, BatcherDraining, b.State())
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, 2, b.DrainOnce(context.Background()))
	assert.Equal(t, BatcherIdle, b.State())
	assert.Equal(t, 0, b.DrainOnce(context.Background()))
}

func TestBatcher_DeliversAllExactlyOnce(t *testing.T) {
	n := &fakeNotifier{}
	metrics := infra.NewMetrics()
	b := NewBatcher(n, NewPool(4, time.Second), metrics, 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	const k = 35
	enqueueN(b, k)

	require.Eventually(t, func() bool { return len(n.messages()) == k }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return b.State() == BatcherIdle }, time.Second, 5*time.Millisecond)

	seen := make(map[string]int)
	for _, m := range n.messages() {
		seen[m.Text]++
	}
	assert.Len(t, seen, k)
	for text, count := range seen {
		assert.Equal(t, 1, count, text)
	}

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(k), snap.NotificationsQueued)
	assert.Equal(t, uint64(k), snap.NotificationsSent)
	assert.Zero(t, snap.NotificationsFailed)
}

func TestBatcher_FailuresAreCountedNotRetried(t *testing.T) {
	n := &fakeNotifier{fail: domain.NewError(domain.KindDelivery, "post message", errors.New("channel_not_found"))}
	metrics := infra.NewMetrics()
	b := NewBatcher(n, NewPool(4, time.Second), metrics, time.Hour, 10)

	const k = 25
	enqueueN(b, k)
	left := b.Flush(context.Background(), 10)

	assert.Zero(t, left)
	snap := metrics.Snapshot()
	assert.Equal(t, uint64(k), snap.NotificationsFailed)
	assert.Zero(t, snap.NotificationsSent)
	assert.Equal(t, 0, b.Len(), "failed notifications are not re-enqueued")
}

func TestBatcher_FlushIsBounded(t *testing.T) {
	n := &fakeNotifier{}
	b := NewBatcher(n, NewPool(4, time.Second), infra.NewMetrics(), time.Hour, 10)

	enqueueN(b, 35)
	left := b.Flush(context.Background(), 2)

	assert.Equal(t, 15, left)
	assert.Len(t, n.messages(), 20)
}

func TestBatcher_PerItemTimeout(t *testing.T) {
	slow := notifierFunc(func(ctx context.Context, channelID, text string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	metrics := infra.NewMetrics()
	b := NewBatcher(slow, NewPool(2, 20*time.Millisecond), metrics, time.Hour, 10)

	enqueueN(b, 2)
	start := time.Now()
	b.DrainOnce(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(2), metrics.Snapshot().NotificationsFailed)
}

type notifierFunc func(ctx context.Context, channelID, text string) error

func (f notifierFunc) PostMessage(ctx context.Context, channelID, text string) error {
	return f(ctx, channelID, text)
}
