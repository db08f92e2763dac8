package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds process-wide counters for the order monitor.
// Counters only ever increase; they live as long as the process.
type Metrics struct {
	updatesProcessed    atomic.Uint64
	notificationsQueued atomic.Uint64
	notificationsSent   atomic.Uint64
	notificationsFailed atomic.Uint64
	cacheHits           atomic.Uint64
	cacheMisses         atomic.Uint64
	staleRefreshes      atomic.Uint64
	storeQueries        atomic.Uint64
	persistenceWrites   atomic.Uint64
	persistenceErrors   atomic.Uint64
	parseErrors         atomic.Uint64
	reconnects          atomic.Uint64
	errorsTotal         atomic.Uint64

	// Gauges
	activeConnections atomic.Int32

	startedAt time.Time
}

// NewMetrics creates a metrics set whose uptime starts now.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) RecordUpdate() { m.updatesProcessed.Add(1) }
func (m *Metrics) RecordQueued() { m.notificationsQueued.Add(1) }
func (m *Metrics) RecordSent() { m.notificationsSent.Add(1) }
func (m *Metrics) RecordCacheHit() { m.cacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Add(1) }
func (m *Metrics) RecordStoreQuery() { m.storeQueries.Add(1) }
func (m *Metrics) RecordPersistenceWrite() { m.persistenceWrites.Add(1) }
func (m *Metrics) RecordReconnect() { m.reconnects.Add(1) }

// RecordSendFailure counts a notification that could not be delivered.
func (m *Metrics) RecordSendFailure() {
	m.notificationsFailed.Add(1)
	m.errorsTotal.Add(1)
}

// RecordStale counts a monitored-set refresh that fell back to stale data.
func (m *Metrics) RecordStale() {
	m.staleRefreshes.Add(1)
	m.errorsTotal.Add(1)
}

// RecordPersistenceError counts a failed store read or write.
func (m *Metrics) RecordPersistenceError() {
	m.persistenceErrors.Add(1)
	m.errorsTotal.Add(1)
}

// RecordParseError counts a dropped malformed message.
func (m *Metrics) RecordParseError() {
	m.parseErrors.Add(1)
	m.errorsTotal.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	UpdatesProcessed    uint64
	NotificationsQueued uint64
	NotificationsSent   uint64
	NotificationsFailed uint64
	CacheHits           uint64
	CacheMisses         uint64
	StaleRefreshes      uint64
	StoreQueries        uint64
	PersistenceWrites   uint64
	PersistenceErrors   uint64
	ParseErrors         uint64
	Reconnects          uint64
	ErrorsTotal         uint64
	ActiveConnections   int32
	Uptime              time.Duration
	Timestamp           time.Time
}

// CacheHitRate returns hits/(hits+misses) as a percentage.
func (s MetricsSnapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	now := time.Now()
	var uptime time.Duration
	if !m.startedAt.IsZero() {
		uptime = now.Sub(m.startedAt)
	}
	return MetricsSnapshot{
		UpdatesProcessed:    m.updatesProcessed.Load(),
		NotificationsQueued: m.notificationsQueued.Load(),
		NotificationsSent:   m.notificationsSent.Load(),
		NotificationsFailed: m.notificationsFailed.Load(),
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		StaleRefreshes:      m.staleRefreshes.Load(),
		StoreQueries:        m.storeQueries.Load(),
		PersistenceWrites:   m.persistenceWrites.Load(),
		PersistenceErrors:   m.persistenceErrors.Load(),
		ParseErrors:         m.parseErrors.Load(),
		Reconnects:          m.reconnects.Load(),
		ErrorsTotal:         m.errorsTotal.Load(),
		ActiveConnections:   m.activeConnections.Load(),
		Uptime:              uptime,
		Timestamp:           now,
	}
}

// Register exposes the counters to a Prometheus registry. Values are read
// from the atomics at scrape time.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "order_monitor",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}

	collectors := []prometheus.Collector{
		counter("updates_processed_total", "Order updates received from the stream.", &m.updatesProcessed),
		counter("notifications_queued_total", "Notifications queued for delivery.", &m.notificationsQueued),
		counter("notifications_sent_total", "Notifications delivered to chat.", &m.notificationsSent),
		counter("notifications_failed_total", "Notifications dropped after a failed delivery.", &m.notificationsFailed),
		counter("monitored_cache_hits_total", "Monitored-set lookups served without a store scan.", &m.cacheHits),
		counter("monitored_cache_misses_total", "Monitored-set refreshes that scanned the store.", &m.cacheMisses),
		counter("monitored_stale_refreshes_total", "Monitored-set refreshes that kept stale data.", &m.staleRefreshes),
		counter("store_queries_total", "Queries issued to the subscription store.", &m.storeQueries),
		counter("persistence_writes_total", "Observed-state writes to the subscription store.", &m.persistenceWrites),
		counter("persistence_errors_total", "Failed subscription store operations.", &m.persistenceErrors),
		counter("parse_errors_total", "Malformed stream messages dropped.", &m.parseErrors),
		counter("reconnects_total", "Stream reconnect attempts.", &m.reconnects),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "order_monitor",
			Name:      "active_connections",
			Help:      "Open stream connections.",
		}, func() float64 { return float64(m.activeConnections.Load()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
