package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
)

// LoopConfig holds the timings of the control loop.
type LoopConfig struct {
	Topic             string
	ReceiveTimeout    time.Duration
	ReconnectInterval time.Duration
	MetricsInterval   time.Duration
	ShutdownTimeout   time.Duration
	MaxDrainPasses    int
	MaxAuthFailures   int    // 0 = retry forever
	DumpFile          string // written on a recovered panic; empty disables
}

// LoopConfigFrom maps the monitor section of the process config.
func LoopConfigFrom(topic string, c infra.MonitorConfig) LoopConfig {
	return LoopConfig{
		Topic:             topic,
		ReceiveTimeout:    c.ReceiveTimeout(),
		ReconnectInterval: c.ReconnectInterval(),
		MetricsInterval:   c.MetricsInterval(),
		ShutdownTimeout:   c.ShutdownTimeout(),
		MaxDrainPasses:    c.MaxDrainPasses,
		MaxAuthFailures:   c.MaxAuthFailures,
		DumpFile:          "panic_dump.json",
	}
}

// Monitor is the single cooperative loop: keep the stream up, receive one
// message at a time, and hand it to the processor.
type Monitor struct {
	cfg       LoopConfig
	stream    domain.OrderStream
	processor *Processor
	batcher   *Batcher
	pool      *Pool
	cache     *StateCache
	metrics   *infra.Metrics
	logger    *slog.Logger

	connected    bool
	authFailures int
	lastMetrics  time.Time
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) bool
}

func NewMonitor(cfg LoopConfig, stream domain.OrderStream, processor *Processor, batcher *Batcher, pool *Pool, cache *StateCache, metrics *infra.Metrics) *Monitor {
	return &Monitor{
		cfg:       cfg,
		stream:    stream,
		processor: processor,
		batcher:   batcher,
		pool:      pool,
		cache:     cache,
		metrics:   metrics,
		logger:    slog.Default().With("module", "monitor"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// ErrAuthFailuresExceeded stops the loop after too many rejected handshakes.
var ErrAuthFailuresExceeded = errors.New("too many consecutive authentication failures")

// Run loops until ctx is cancelled, then shuts down in order: close the
// stream, drain the batcher, wait for in-flight writes, log final metrics.
// It returns nil on a normal shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor started", slog.String("topic", m.cfg.Topic))
	m.lastMetrics = m.now()

	bctx, stopBatcher := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.batcher.Run(bctx)
	}()

	var runErr error
	for ctx.Err() == nil {
		if err := m.iterate(ctx); err != nil {
			runErr = err
			break
		}
	}

	stopBatcher()
	wg.Wait()
	m.shutdown(ctx)
	return runErr
}

func (m *Monitor) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordError()
			m.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			m.DumpState(m.cfg.DumpFile)
			m.markDisconnected()
			m.sleep(ctx, m.cfg.ReconnectInterval)
			err = nil
		}
	}()

	if !m.connected {
		if cerr := m.connect(ctx); cerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch {
			case m.authExhausted(cerr):
				PolicyFailFast.Log(m.logger, "Giving up on stream", cerr, slog.Int("auth_failures", m.authFailures))
				return fmt.Errorf("%w: %v", ErrAuthFailuresExceeded, cerr)
			case PolicyFor(domain.KindOf(cerr)) == PolicyFailFast:
				PolicyFailFast.Log(m.logger, "Stream misconfigured", cerr)
				return cerr
			}
			PolicyReconnect.Log(m.logger, "Stream connect failed", cerr, slog.Duration("backoff", m.cfg.ReconnectInterval))
			m.sleep(ctx, m.cfg.ReconnectInterval)
			return nil
		}
	}

	msg, rerr := m.stream.Receive(ctx, m.cfg.ReceiveTimeout)
	switch {
	case rerr == nil:
		m.processor.Handle(ctx, msg)
	case errors.Is(rerr, domain.ErrReceiveTimeout):
	case ctx.Err() != nil:
		return nil
	default:
		m.metrics.RecordError()
		PolicyReconnect.Log(m.logger, "Stream receive failed", rerr, slog.Duration("backoff", m.cfg.ReconnectInterval))
		m.markDisconnected()
		m.sleep(ctx, m.cfg.ReconnectInterval)
	}

	if m.now().Sub(m.lastMetrics) >= m.cfg.MetricsInterval {
		m.logMetrics("Metrics")
		m.lastMetrics = m.now()
	}
	return nil
}

func (m *Monitor) connect(ctx context.Context) error {
	if err := m.stream.Connect(ctx); err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			m.authFailures++
		} else {
			m.authFailures = 0
		}
		return err
	}
	if err := m.stream.Subscribe(ctx, m.cfg.Topic, m.now().UTC()); err != nil {
		_ = m.stream.Close()
		return err
	}
	m.authFailures = 0
	m.connected = true
	return nil
}

func (m *Monitor) authExhausted(err error) bool {
	return m.cfg.MaxAuthFailures > 0 &&
		domain.KindOf(err) == domain.KindAuth &&
		m.authFailures >= m.cfg.MaxAuthFailures
}

func (m *Monitor) markDisconnected() {
	if m.connected {
		m.metrics.RecordReconnect()
	}
	m.connected = false
	_ = m.stream.Close()
}

func (m *Monitor) shutdown(ctx context.Context) {
	m.logger.Info("Monitor stopping...")
	if err := m.stream.Close(); err != nil {
		m.logger.Warn("Stream close failed", slog.Any("error", err))
	}
	m.connected = false

	m.batcher.Flush(ctx, m.cfg.MaxDrainPasses)
	if !m.pool.Wait(m.cfg.ShutdownTimeout) {
		m.logger.Warn("In-flight work did not finish before timeout", slog.Int64("inflight", m.pool.InFlight()))
	}
	m.logMetrics("Final metrics")
}

func (m *Monitor) logMetrics(msg string) {
	s := m.metrics.Snapshot()
	m.logger.Info(msg,
		slog.Uint64("updates_processed", s.UpdatesProcessed),
		slog.Uint64("notifications_sent", s.NotificationsSent),
		slog.Uint64("notifications_failed", s.NotificationsFailed),
		slog.Float64("cache_hit_rate", s.CacheHitRate()),
		slog.Uint64("persistence_writes", s.PersistenceWrites),
		slog.Uint64("reconnects", s.Reconnects),
		slog.Int("cached_orders", m.cache.Len()),
		slog.Int("queued", m.batcher.Len()),
		slog.Duration("uptime", s.Uptime),
	)
}

// DumpState writes the cached order states to a file (for post-mortem).
func (m *Monitor) DumpState(filename string) {
	if filename == "" {
		return
	}
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		DumpedAt time.Time           `json:"dumped_at"`
		Queued   int                 `json:"queued"`
		Orders   []domain.OrderState `json:"orders"`
	}{
		DumpedAt: m.now().UTC(),
		Queued:   m.batcher.Len(),
		Orders:   m.cache.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
