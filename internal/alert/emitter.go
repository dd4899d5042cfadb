// Package alert turns match candidates into persisted leak records and
// deduplicated alerts.
package alert

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/notify"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

// DedupWindow is the interval within which duplicate alerts for the same
// (owner, credential, value) are suppressed.
const DedupWindow = time.Hour

// LeakStore is the slice of the store the emitter needs.
type LeakStore interface {
	CreateLeakAndAlert(ctx context.Context, leak *models.LeakRecord, alert *models.Alert, dedupBucket int64) error
	RecentAlertExists(ctx context.Context, ownerID, watchID, value string, window time.Duration) (bool, error)
}

// DedupCache is a fast shared pre-check ahead of the store's unique index.
// Clear releases a reservation whose alert was never persisted.
type DedupCache interface {
	TrySet(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

// Emitter creates at most one alert per match within the dedup window.
type Emitter struct {
	store    LeakStore
	cache    DedupCache
	notifier notify.Notifier
	log      *slog.Logger
	window   time.Duration
	now      func() time.Time
}

// New builds an Emitter. cache may be nil; the store-level guard still holds.
func New(s LeakStore, cache DedupCache, n notify.Notifier, log *slog.Logger) *Emitter {
	return &Emitter{
		store:    s,
		cache:    cache,
		notifier: n,
		log:      log,
		window:   DedupWindow,
		now:      time.Now,
	}
}

// WithWindow overrides the default dedup window.
func (e *Emitter) WithWindow(d time.Duration) *Emitter {
	if d > 0 {
		e.window = d
	}
	return e
}

// Emit processes ranked candidates in order and returns the number of newly
// created alerts. Candidates arrive sorted by (confidence desc, timestamp
// desc), so the dedup check short-circuits lower-value duplicates of a
// match that already alerted.
func (e *Emitter) Emit(ctx context.Context, candidates []models.MatchCandidate) (int, error) {
	created := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		ok, err := e.emitOne(ctx, candidate)
		if err != nil {
			// One candidate failing never blocks the rest of the batch.
			e.log.Warn("alert emission failed",
				slog.String("watch_id", candidate.Entry.ID),
				slog.Any("err", err),
			)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (e *Emitter) emitOne(ctx context.Context, candidate models.MatchCandidate) (bool, error) {
	entry := candidate.Entry

	// A reservation only sticks once the alert row is committed; a failed
	// pass must not block the retry for the rest of the window.
	reserved := false
	if e.cache != nil {
		fresh, err := e.cache.TrySet(ctx, dedupKey(entry), e.window)
		if err != nil {
			e.log.Debug("dedup cache unavailable, falling through to store", slog.Any("err", err))
		} else if !fresh {
			return false, nil
		} else {
			reserved = true
		}
	}

	exists, err := e.store.RecentAlertExists(ctx, entry.OwnerID, entry.ID, entry.Value, e.window)
	if err != nil {
		e.release(ctx, reserved, entry)
		return false, err
	}
	if exists {
		return false, nil
	}

	now := e.now().UTC()
	severity := severityFor(candidate.Confidence, entry.Type)

	leak := &models.LeakRecord{
		ID:           uuid.NewString(),
		OwnerID:      entry.OwnerID,
		WatchID:      entry.ID,
		LeakedValue:  entry.Value,
		Content:      candidate.Snippet,
		OriginID:     candidate.OriginID,
		DocumentID:   candidate.DocumentID,
		Severity:     severity,
		Confidence:   candidate.Confidence,
		Status:       models.LeakStatusNew,
		DiscoveredAt: now,
	}

	a := &models.Alert{
		ID:          uuid.NewString(),
		OwnerID:     entry.OwnerID,
		LeakID:      leak.ID,
		WatchID:     entry.ID,
		LeakedValue: entry.Value,
		Title:       fmt.Sprintf("Credential found: %s", entry.Type),
		Message: fmt.Sprintf("Your monitored %s %q was found in source %s (document %s).",
			entry.Type, entry.Value, candidate.OriginID, candidate.DocumentID),
		Priority:  severity,
		CreatedAt: now,
	}

	err = e.store.CreateLeakAndAlert(ctx, leak, a, now.Unix()/int64(e.window.Seconds()))
	if errors.Is(err, store.ErrConflict) {
		// Another worker won the race; the alert exists, so this is success.
		return false, nil
	}
	if err != nil {
		e.release(ctx, reserved, entry)
		return false, err
	}

	// Fire-and-forget: delivery is the dispatcher's problem.
	if e.notifier != nil {
		if err := e.notifier.Send(ctx, entry.OwnerID, a.Title, a.Message); err != nil {
			e.log.Warn("notification failed", slog.String("alert_id", a.ID), slog.Any("err", err))
		}
	}

	e.log.Info("alert created",
		slog.String("alert_id", a.ID),
		slog.String("owner", entry.OwnerID),
		slog.String("severity", string(severity)),
	)
	return true, nil
}

// release drops a cache reservation after a store failure, best effort. If
// the delete fails too, duplicates stay suppressed until the TTL runs out.
func (e *Emitter) release(ctx context.Context, reserved bool, entry models.WatchlistEntry) {
	if !reserved {
		return
	}
	if err := e.cache.Clear(ctx, dedupKey(entry)); err != nil {
		e.log.Warn("dedup key release failed", slog.String("watch_id", entry.ID), slog.Any("err", err))
	}
}

// dedupKey hashes the dedup identity so arbitrary watched values stay out
// of cache key space.
func dedupKey(entry models.WatchlistEntry) string {
	sum := sha1.Sum([]byte(entry.OwnerID + "|" + entry.ID + "|" + entry.Value))
	return "alert:dedup:" + hex.EncodeToString(sum[:])
}

// severityFor derives alert severity from confidence and credential class.
// Secret-bearing types escalate one level.
func severityFor(confidence float64, t models.IndicatorType) models.Severity {
	secret := t == models.TypePassword || t == models.TypeAPIKey

	switch {
	case confidence > 0.8:
		if secret {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case confidence > 0.6:
		if secret {
			return models.SeverityHigh
		}
		return models.SeverityMedium
	default:
		return models.SeverityMedium
	}
}
