package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"mini-live-chat/go-core/internal/config"
	"mini-live-chat/go-core/internal/platform/privacylog"
	"mini-live-chat/go-core/internal/relay"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	addr := flag.String("addr", "", "websocket listen address (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (overrides config)")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()
	if *showVersion {
		fmt.Printf("relayd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	log := newLogger(*logLevel)

	cfg := config.LoadFromPath(*configPath).Relay
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := relay.New(cfg, log, prometheus.DefaultRegisterer)
	log.Info("relayd starting", "addr", cfg.ListenAddr, "version", version)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("relayd failed", "error", err)
		os.Exit(1)
	}
	log.Info("relayd stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(privacylog.WrapHandler(handler))
}
