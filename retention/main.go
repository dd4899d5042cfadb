package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/logger"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Retry corpus connection with backoff
	var corpusClient *corpus.Client
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		corpusClient, err = corpus.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Warn("failed to create corpus client, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if pingErr := corpusClient.Ping(pingCtx); pingErr == nil {
				cancel()
				break
			} else {
				log.Warn("corpus ping failed, retrying",
					slog.Any("err", pingErr),
					slog.Int("attempt", i+1),
					slog.Int("max_retries", maxRetries),
					slog.Duration("retry_in", retryDelay),
				)
			}
			cancel()
		}

		select {
		case <-time.After(retryDelay):
			// Continue to next attempt
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			os.Exit(0)
		}
		retryDelay *= 2 // Exponential backoff
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	// Final check
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if corpusClient == nil || corpusClient.Ping(pingCtx) != nil {
		log.Error("failed to connect to corpus after retries")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start, but don't fail if a backend is temporarily unavailable
	runOnce(ctx, log, corpusClient, db, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, corpusClient, db, cfg)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, corpusClient *corpus.Client, db *store.Store, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := corpusClient.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("corpus retention failed (will retry on next interval)", slog.Any("err", err))
	} else if deleted > 0 {
		log.Info("corpus retention completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("corpus retention completed, no old documents found")
	}

	cutoff := time.Now().UTC().Add(-cfg.MaxAge)

	alerts, err := db.DeleteResolvedAlertsBefore(subCtx, cutoff)
	if err != nil {
		log.Warn("alert cleanup failed (will retry on next interval)", slog.Any("err", err))
	} else if alerts > 0 {
		log.Info("alert cleanup completed", slog.Int64("deleted", alerts))
	}

	leaks, err := db.DeleteFalsePositiveLeaksBefore(subCtx, cutoff)
	if err != nil {
		log.Warn("leak cleanup failed (will retry on next interval)", slog.Any("err", err))
	} else if leaks > 0 {
		log.Info("leak cleanup completed", slog.Int64("deleted", leaks))
	}
}
