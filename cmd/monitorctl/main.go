package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order_monitor/internal/app"
)

const usage = `usage:
  monitorctl [-config path] add -order ID -channel CHANNEL [-user USER]
  monitorctl [-config path] check`

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	if err := run(ctx, bootstrap, flag.Arg(0), flag.Args()[1:]); err != nil {
		slog.Error("❌ Command failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, b *app.Bootstrap, cmd string, args []string) error {
	svc := b.MonitoringService()

	switch cmd {
	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		orderID := fs.String("order", "", "order id")
		channel := fs.String("channel", "", "chat channel id")
		user := fs.String("user", os.Getenv("USER"), "requesting user")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *orderID == "" || *channel == "" {
			return fmt.Errorf("add needs -order and -channel")
		}

		res, err := svc.Register(ctx, *orderID, *channel, *user)
		if err != nil {
			return err
		}
		fmt.Println(res.ReportMessage)
		return nil

	case "check":
		summary, err := svc.CheckAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("channels=%d checked=%d completed=%d failed=%d\n",
			summary.Channels, summary.Checked, summary.Completed, summary.Failed)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
