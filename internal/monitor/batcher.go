package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
)

type BatcherState int

const (
	BatcherIdle BatcherState = iota
	BatcherDraining
)

func (s BatcherState) String() string {
	if s == BatcherDraining {
		return "draining"
	}
	return "idle"
}

// Batcher queues notifications and flushes up to batchSize of them per
// interval. Each notification is attempted once.
type Batcher struct {
	notifier  domain.ChatNotifier
	pool      *Pool
	metrics   *infra.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int

	mu    sync.Mutex
	queue []domain.PendingNotification
	state BatcherState
	wake  chan struct{}
}

func NewBatcher(notifier domain.ChatNotifier, pool *Pool, metrics *infra.Metrics, interval time.Duration, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Batcher{
		notifier:  notifier,
		pool:      pool,
		metrics:   metrics,
		logger:    slog.Default().With("module", "batcher"),
		interval:  interval,
		batchSize: batchSize,
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue adds n to the queue, arming the drain timer when the batcher was idle.
func (b *Batcher) Enqueue(n domain.PendingNotification) {
	b.mu.Lock()
	b.queue = append(b.queue, n)
	armed := b.state == BatcherIdle
	b.state = BatcherDraining
	b.mu.Unlock()

	b.metrics.RecordQueued()
	if armed {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

func (b *Batcher) State() BatcherState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Run drains on the interval while there is work and sleeps while idle.
// It returns when ctx is cancelled; leftover items are for Flush.
func (b *Batcher) Run(ctx context.Context) {
	timer := time.NewTimer(b.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if b.State() == BatcherIdle {
			select {
			case <-ctx.Done():
				return
			case <-b.wake:
			}
		}

		timer.Reset(b.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.DrainOnce(ctx)
		}
	}
}

// DrainOnce sends up to one batch concurrently and waits for the results.
// It returns the number of notifications taken from the queue.
func (b *Batcher) DrainOnce(ctx context.Context) int {
	b.mu.Lock()
	n := min(b.batchSize, len(b.queue))
	batch := make([]domain.PendingNotification, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	if len(b.queue) == 0 {
		b.queue = nil
		b.state = BatcherIdle
	}
	b.mu.Unlock()

	if n == 0 {
		return 0
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for _, item := range batch {
		item := item // per-iteration copy; module targets go 1.21 loop semantics
		b.pool.Go(ctx, func(ctx context.Context) error {
			return b.notifier.PostMessage(ctx, item.ChannelID, item.Body)
		}, func(err error) {
			defer wg.Done()
			if err != nil {
				b.metrics.RecordSendFailure()
				PolicyCountAndDrop.Log(b.logger, "Notification failed", err,
					slog.String("order_id", item.OrderID), slog.String("channel", item.ChannelID))
				return
			}
			b.metrics.RecordSent()
			b.logger.Info("Notification sent", slog.String("order_id", item.OrderID), slog.String("channel", item.ChannelID))
		})
	}
	wg.Wait()
	return n
}

// Flush drains synchronously until the queue is empty or maxPasses batches
// have been sent. It returns how many notifications were left behind.
func (b *Batcher) Flush(ctx context.Context, maxPasses int) int {
	for pass := 0; pass < maxPasses && b.Len() > 0; pass++ {
		b.DrainOnce(ctx)
	}
	left := b.Len()
	if left > 0 {
		b.logger.Warn("Shutdown drain incomplete", slog.Int("dropped", left))
	}
	return left
}
