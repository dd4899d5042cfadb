package store

import (
	"context"
	"fmt"
	"time"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// CreateLeakAndAlert persists a leak record and its alert atomically. The
// alert insert lands on the dedup unique index; losing that race rolls the
// whole pair back and returns ErrConflict, which callers treat as "another
// worker already alerted".
func (s *Store) CreateLeakAndAlert(ctx context.Context, leak *models.LeakRecord, alert *models.Alert, dedupBucket int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO leak_records (id, owner_id, watch_id, leaked_value, content, origin_id, document_id, severity, confidence, status, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		leak.ID, leak.OwnerID, leak.WatchID, leak.LeakedValue, leak.Content,
		leak.OriginID, leak.DocumentID, leak.Severity, leak.Confidence, leak.Status, leak.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("insert leak record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO alerts (id, owner_id, leak_id, watch_id, leaked_value, title, message, priority, dedup_bucket, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		alert.ID, alert.OwnerID, alert.LeakID, alert.WatchID, alert.LeakedValue,
		alert.Title, alert.Message, alert.Priority, dedupBucket, alert.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentAlertExists reports whether an alert for the same (owner, credential,
// value) was created inside the window. Pre-insert optimization only; the
// unique index is the authoritative guard.
func (s *Store) RecentAlertExists(ctx context.Context, ownerID, watchID, value string, window time.Duration) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM alerts
		   WHERE owner_id = $1 AND watch_id = $2 AND leaked_value = $3 AND created_at >= $4
		 )`,
		ownerID, watchID, value, time.Now().Add(-window),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query recent alerts: %w", err)
	}
	return exists, nil
}

// ListAlerts returns the newest alerts of an owner.
func (s *Store) ListAlerts(ctx context.Context, ownerID string, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, leak_id, watch_id, leaked_value, title, message, priority, is_read, is_resolved, created_at, read_at, resolved_at
		 FROM alerts
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.LeakID, &a.WatchID, &a.LeakedValue,
			&a.Title, &a.Message, &a.Priority, &a.IsRead, &a.IsResolved,
			&a.CreatedAt, &a.ReadAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead flags an alert as read.
func (s *Store) MarkAlertRead(ctx context.Context, ownerID, alertID string) error {
	return s.markAlert(ctx, ownerID, alertID,
		`UPDATE alerts SET is_read = TRUE, read_at = now() WHERE id = $1 AND owner_id = $2`)
}

// MarkAlertResolved flags an alert as resolved.
func (s *Store) MarkAlertResolved(ctx context.Context, ownerID, alertID string) error {
	return s.markAlert(ctx, ownerID, alertID,
		`UPDATE alerts SET is_resolved = TRUE, resolved_at = now() WHERE id = $1 AND owner_id = $2`)
}

func (s *Store) markAlert(ctx context.Context, ownerID, alertID, query string) error {
	tag, err := s.pool.Exec(ctx, query, alertID, ownerID)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLeaks returns the newest leak records of an owner.
func (s *Store) ListLeaks(ctx context.Context, ownerID string, limit int) ([]models.LeakRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, watch_id, leaked_value, content, origin_id, document_id, severity, confidence, status, discovered_at
		 FROM leak_records
		 WHERE owner_id = $1
		 ORDER BY discovered_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaks: %w", err)
	}
	defer rows.Close()

	var leaks []models.LeakRecord
	for rows.Next() {
		var l models.LeakRecord
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.WatchID, &l.LeakedValue, &l.Content,
			&l.OriginID, &l.DocumentID, &l.Severity, &l.Confidence, &l.Status, &l.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("scan leak: %w", err)
		}
		leaks = append(leaks, l)
	}
	return leaks, rows.Err()
}

// UpdateLeakStatus moves a leak record through its review lifecycle.
func (s *Store) UpdateLeakStatus(ctx context.Context, ownerID, leakID string, status models.LeakStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leak_records SET status = $1 WHERE id = $2 AND owner_id = $3`,
		status, leakID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update leak status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResolvedAlertsBefore removes resolved alerts older than cutoff and
// returns the count.
func (s *Store) DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE is_resolved = TRUE AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteFalsePositiveLeaksBefore removes dismissed leak records older than
// cutoff and returns the count.
func (s *Store) DeleteFalsePositiveLeaksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM leak_records WHERE status = 'false_positive' AND discovered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete false positive leaks: %w", err)
	}
	return tag.RowsAffected(), nil
}
