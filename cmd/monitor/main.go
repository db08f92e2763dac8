package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"order_monitor/internal/app"
	"order_monitor/internal/domain"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	pprofAddr := flag.String("pprof", "", "pprof listen address (e.g. localhost:6060); empty disables")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Metrics endpoint
	go func() {
		if err := bootstrap.ServeMetrics(ctx, bootstrap.Config.Metrics.Addr); err != nil {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 5. Realtime monitor loop (blocks until shutdown)
	slog.InfoContext(ctx, "✨ Order monitor running. Press Ctrl+C to exit.")
	if err := bootstrap.Monitor().Run(ctx); err != nil {
		slog.Error("❌ Monitor stopped", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.Info("👋 Shut down gracefully")
}
