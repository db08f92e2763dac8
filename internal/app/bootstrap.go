package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
	"order_monitor/internal/infra/slack"
	"order_monitor/internal/infra/storage"
	"order_monitor/internal/infra/talos"
	"order_monitor/internal/monitor"
	"order_monitor/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bootstrap owns configuration and client handles for one process.
// Everything is built here and passed down; nothing is global.
type Bootstrap struct {
	Config   *infra.Config
	Metrics  *infra.Metrics
	Store    domain.SubscriptionStore
	Notifier domain.ChatNotifier
	Signer   *talos.Signer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, sets up logging and opens the store.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping Order Monitor...", slog.String("version", cfg.App.Version))

	b.Metrics = infra.NewMetrics()

	// 3. Initialize Storage
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Subscription store ready", slog.String("driver", cfg.Storage.Driver))

	// 4. Clients
	b.Notifier = slack.NewNotifier(cfg.Slack.BotToken, cfg.Slack.APIURL)
	b.Signer = talos.NewSigner(cfg.Talos.APIKey, cfg.Talos.APISecret)
	return nil
}

// OpenStore picks the subscription backend named by the config.
func OpenStore(ctx context.Context, cfg infra.StorageConfig) (domain.SubscriptionStore, error) {
	switch cfg.Driver {
	case "redis":
		return storage.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case "sqlite", "":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
	}
}

// Monitor wires the realtime pipeline.
func (b *Bootstrap) Monitor() *monitor.Monitor {
	mc := b.Config.Monitor
	stream := talos.NewStream(b.Config.Talos.Host, b.Config.Talos.WSPath, b.Signer, b.Metrics)

	pool := monitor.NewPool(mc.Workers, mc.SendTimeout())
	batcher := monitor.NewBatcher(b.Notifier, pool, b.Metrics, mc.BatchInterval(), mc.BatchSize)
	cache := monitor.NewStateCache(mc.CacheSize)
	monitored := monitor.NewMonitoredSet(b.Store, domain.ScanFilter{Status: mc.StatusFilter}, mc.ScanPageSize, mc.MonitoredTTL(), b.Metrics)
	detector := monitor.Detector{FillDeltaPct: mc.FillDeltaPct, PriceDeltaPct: mc.PriceDeltaPct}
	processor := monitor.NewProcessor(monitored, cache, detector, b.Store, batcher, pool, b.Metrics, mc.LookupTimeout())

	return monitor.NewMonitor(monitor.LoopConfigFrom(b.Config.Talos.Stream, mc), stream, processor, batcher, pool, cache, b.Metrics)
}

// MonitoringService wires the operator-facing service.
func (b *Bootstrap) MonitoringService() *service.MonitoringService {
	client := talos.NewClient(b.Config.Talos.Host, b.Signer)
	return service.NewMonitoringService(b.Store, client, b.Notifier, b.Config.Monitor.AllowedChannels, b.Config.Monitor.ScanPageSize)
}

// ServeMetrics exposes /metrics on addr until ctx is done. An empty addr
// disables the endpoint.
func (b *Bootstrap) ServeMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	if err := b.Metrics.Register(reg); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("📈 Metrics endpoint started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the store.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("Store close failed", slog.Any("error", err))
		}
	}
}
