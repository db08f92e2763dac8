package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
	"order_monitor/internal/infra/talos"
	"order_monitor/internal/report"
)

// Processor turns stream messages into notifications and state writes.
// Handle is called from a single goroutine, so updates for one order are
// applied in arrival order.
type Processor struct {
	monitored     *MonitoredSet
	cache         *StateCache
	detector      Detector
	store         domain.SubscriptionStore
	batcher       *Batcher
	pool          *Pool
	metrics       *infra.Metrics
	logger        *slog.Logger
	lookupTimeout time.Duration
	now           func() time.Time
}

func NewProcessor(monitored *MonitoredSet, cache *StateCache, detector Detector, store domain.SubscriptionStore,
	batcher *Batcher, pool *Pool, metrics *infra.Metrics, lookupTimeout time.Duration) *Processor {
	p := &Processor{
		monitored:     monitored,
		cache:         cache,
		detector:      detector,
		store:         store,
		batcher:       batcher,
		pool:          pool,
		metrics:       metrics,
		logger:        slog.Default().With("module", "processor"),
		lookupTimeout: lookupTimeout,
		now:           time.Now,
	}
	monitored.OnRefresh(func(ids map[string]struct{}) {
		if n := cache.Retain(func(id string) bool { _, ok := ids[id]; return ok }); n > 0 {
			p.logger.Debug("Dropped unmonitored states", slog.Int("count", n))
		}
	})
	return p
}

// Handle dispatches one raw stream message.
func (p *Processor) Handle(ctx context.Context, raw []byte) {
	var env talos.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.metrics.RecordParseError()
		PolicyDropMessage.Log(p.logger, "Malformed stream message", domain.NewError(domain.KindParse, "decode envelope", err))
		return
	}

	switch env.Type {
	case talos.MessageTypeOrder:
		p.handleOrders(ctx, env.Data)
	case talos.MessageTypeError:
		p.logger.Error("Stream error message", slog.String("data", string(raw)))
	case talos.MessageTypeHello:
		p.logger.Info("Stream hello received")
	default:
		p.logger.Debug("Ignoring stream message", slog.String("type", env.Type))
	}
}

func (p *Processor) handleOrders(ctx context.Context, data json.RawMessage) {
	records, err := talos.DecodeOrders(data)
	if err != nil {
		p.metrics.RecordParseError()
		PolicyDropMessage.Log(p.logger, "Malformed order data", domain.NewError(domain.KindParse, "decode orders", err))
		return
	}

	if err := p.monitored.Refresh(ctx); err != nil {
		PolicyKeepStale.Log(p.logger, "Monitored set refresh failed", err, slog.Int("orders", p.monitored.Len()))
	}

	for _, rec := range records {
		if rec.OrderID == "" || !p.monitored.IsMonitored(rec.OrderID) {
			continue
		}
		p.processOrder(ctx, rec.State(p.now()))
	}
}

func (p *Processor) processOrder(ctx context.Context, state domain.OrderState) {
	p.metrics.RecordUpdate()

	var prev *domain.OrderState
	if old, ok := p.cache.Get(state.OrderID); ok {
		prev = &old
	}

	changes := p.detector.Detect(prev, state)
	if len(changes) > 0 {
		p.notify(ctx, state, changes)
		p.persist(ctx, state)
	}

	p.cache.Put(state)
}

// notify looks up the subscriber channel and queues the message. A failed or
// empty lookup skips the notification only.
func (p *Processor) notify(ctx context.Context, state domain.OrderState, changes []Change) {
	lctx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	sub, err := p.store.Get(lctx, state.OrderID)
	p.metrics.RecordStoreQuery()
	if err != nil {
		PolicySkipOperation.Log(p.logger, "Channel lookup failed", err, slog.String("order_id", state.OrderID))
		return
	}
	if sub == nil || sub.ChannelID == "" {
		p.logger.Warn("No channel for order", slog.String("order_id", state.OrderID))
		return
	}

	body := report.OrderUpdate(state, Descriptions(changes))
	p.batcher.Enqueue(domain.NewPendingNotification(state.OrderID, sub.ChannelID, body, p.now()))
}

func (p *Processor) persist(ctx context.Context, state domain.OrderState) {
	patch := domain.ObservedPatch(state)
	p.pool.Go(ctx, func(ctx context.Context) error {
		return p.store.Update(ctx, state.OrderID, patch)
	}, func(err error) {
		if err != nil {
			p.metrics.RecordPersistenceError()
			PolicySkipOperation.Log(p.logger, "State write failed", err, slog.String("order_id", state.OrderID))
			return
		}
		p.metrics.RecordPersistenceWrite()
	})
}
