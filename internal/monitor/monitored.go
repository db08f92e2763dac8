package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
)

type idSet = map[string]struct{}

// MonitoredSet is a read-through snapshot of the order ids operators asked
// to watch. Readers never lock; Refresh swaps the whole set.
type MonitoredSet struct {
	store    domain.SubscriptionStore
	filter   domain.ScanFilter
	pageSize int
	ttl      time.Duration
	metrics  *infra.Metrics
	logger   *slog.Logger
	now      func() time.Time

	ids atomic.Pointer[idSet]

	mu          sync.Mutex // serialises Refresh
	lastRefresh time.Time
	onRefresh   func(ids idSet)
}

func NewMonitoredSet(store domain.SubscriptionStore, filter domain.ScanFilter, pageSize int, ttl time.Duration, metrics *infra.Metrics) *MonitoredSet {
	if pageSize <= 0 {
		pageSize = 100
	}
	m := &MonitoredSet{
		store:    store,
		filter:   filter,
		pageSize: pageSize,
		ttl:      ttl,
		metrics:  metrics,
		logger:   slog.Default().With("module", "monitored_set"),
		now:      time.Now,
	}
	empty := make(idSet)
	m.ids.Store(&empty)
	return m
}

// OnRefresh registers a callback run with the new set after each successful scan.
func (m *MonitoredSet) OnRefresh(fn func(ids map[string]struct{})) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRefresh = fn
}

func (m *MonitoredSet) IsMonitored(orderID string) bool {
	_, ok := (*m.ids.Load())[orderID]
	return ok
}

func (m *MonitoredSet) Len() int {
	return len(*m.ids.Load())
}

// Refresh rescans the store when the TTL has elapsed. On failure the
// previous set stays in place, the stale counter is bumped, and the next
// call retries the scan.
func (m *MonitoredSet) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastRefresh.IsZero() && m.now().Sub(m.lastRefresh) < m.ttl {
		m.metrics.RecordCacheHit()
		return nil
	}

	next := make(idSet)
	cursor := ""
	for {
		page, nextCursor, err := m.store.Scan(ctx, m.filter, cursor, m.pageSize)
		m.metrics.RecordStoreQuery()
		if err != nil {
			m.metrics.RecordStale()
			return err
		}
		for _, sub := range page {
			if m.filter.Matches(sub) {
				next[sub.OrderID] = struct{}{}
			}
		}
		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	m.ids.Store(&next)
	m.lastRefresh = m.now()
	m.metrics.RecordCacheMiss()
	m.logger.Debug("Monitored set refreshed", slog.Int("orders", len(next)))

	if m.onRefresh != nil {
		m.onRefresh(next)
	}
	return nil
}
