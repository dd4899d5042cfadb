package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leakforge/leakwatch/backend/internal/alert"
	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/logger"
	"github.com/leakforge/leakwatch/backend/internal/match"
	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/notify"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

func main() {
	log := logger.New("matcher")
	cfg, err := config.LoadMatcher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	corpusClient, err := corpus.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init corpus", slog.Any("err", err))
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	// The Redis layer is an optimization; matching runs without it.
	var cache alert.DedupCache
	if cfg.RedisURL != "" {
		redisCache, err := alert.NewRedisDedup(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, store-level dedup only", slog.Any("err", err))
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	notifier := notify.NewKafka(cfg.NotifyAddrs, cfg.NotifyTopic)
	defer notifier.Close()

	matcher := match.New(corpusClient, db, log, cfg.Lookback)
	emitter := alert.New(db, cache, notifier, log).WithWindow(cfg.DedupWindow)

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		runPass(runCtx, log, db, matcher, emitter)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Schedule, run); err != nil {
		log.Error("invalid schedule", slog.String("schedule", cfg.Schedule), slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("matcher started",
		slog.String("schedule", cfg.Schedule),
		slog.Duration("lookback", cfg.Lookback),
	)

	// First pass immediately; the scheduler covers the rest.
	run()

	scheduler.Start()
	<-ctx.Done()
	log.Info("shutdown signal received")

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn("scheduler stop timed out")
	}
}

type ownerSource interface {
	OwnersWithActiveEntries(ctx context.Context) ([]string, error)
}

type matchFinder interface {
	FindMatches(ctx context.Context, ownerID string) ([]models.MatchCandidate, error)
}

type alertEmitter interface {
	Emit(ctx context.Context, candidates []models.MatchCandidate) (int, error)
}

// runPass matches every owner with active watchlist entries. An owner failing
// never blocks the remaining owners.
func runPass(ctx context.Context, log *slog.Logger, owners ownerSource, matcher matchFinder, emitter alertEmitter) {
	started := time.Now()

	ids, err := owners.OwnersWithActiveEntries(ctx)
	if err != nil {
		log.Error("load owners", slog.Any("err", err))
		return
	}

	totalCandidates := 0
	totalAlerts := 0
	for _, ownerID := range ids {
		if ctx.Err() != nil {
			log.Warn("matching pass interrupted")
			return
		}

		candidates, err := matcher.FindMatches(ctx, ownerID)
		if err != nil {
			log.Warn("matching failed for owner", slog.String("owner", ownerID), slog.Any("err", err))
			continue
		}
		totalCandidates += len(candidates)

		created, err := emitter.Emit(ctx, candidates)
		if err != nil {
			log.Warn("alerting failed for owner", slog.String("owner", ownerID), slog.Any("err", err))
			continue
		}
		totalAlerts += created
	}

	log.Info("matching pass completed",
		slog.Int("owners", len(ids)),
		slog.Int("candidates", totalCandidates),
		slog.Int("alerts", totalAlerts),
		slog.Duration("took", time.Since(started)),
	)
}
