package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/links"
	"github.com/leakforge/leakwatch/backend/internal/logger"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

func main() {
	log := logger.New("linkprober")
	cfg, err := config.LoadProber()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	prober := links.NewProber(db, log, cfg.Concurrency, cfg.BatchSize)

	log.Info("link prober started",
		slog.Duration("interval", cfg.Interval),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("concurrency", cfg.Concurrency),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runOnce(ctx, log, prober)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, prober)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, prober *links.Prober) {
	subCtx, cancel := context.WithTimeout(ctx, 4*time.Minute)
	defer cancel()

	probed, err := prober.RunOnce(subCtx)
	if err != nil {
		log.Warn("probe run failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if probed > 0 {
		log.Info("probe run completed", slog.Int("probed", probed))
	} else {
		log.Debug("probe run completed, no probeable links")
	}
}
