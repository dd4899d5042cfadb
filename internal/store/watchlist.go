package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// CreateEntry registers a new watchlist entry. Re-registering the same
// (owner, type, value) conflicts with the unique constraint.
func (s *Store) CreateEntry(ctx context.Context, entry *models.WatchlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.Active = true

	_, err := s.pool.Exec(ctx,
		`INSERT INTO watchlist_entries (id, owner_id, watch_type, value, active, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.OwnerID, entry.Type, entry.Value, entry.Active, entry.Priority, entry.CreatedAt, entry.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert watchlist entry: %w", err)
	}
	return nil
}

// DeactivateEntry disables an entry. Entries are never hard-deleted so
// match history stays attached.
func (s *Store) DeactivateEntry(ctx context.Context, ownerID, entryID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watchlist_entries SET active = FALSE, updated_at = now()
		 WHERE id = $1 AND owner_id = $2`,
		entryID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("deactivate entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveEntries returns the active entries of an owner ordered by priority.
func (s *Store) ActiveEntries(ctx context.Context, ownerID string) ([]models.WatchlistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, watch_type, value, active, priority, created_at, updated_at
		 FROM watchlist_entries
		 WHERE owner_id = $1 AND active = TRUE
		 ORDER BY priority DESC, created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query active entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListEntries returns all entries of an owner, active or not.
func (s *Store) ListEntries(ctx context.Context, ownerID string) ([]models.WatchlistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, watch_type, value, active, priority, created_at, updated_at
		 FROM watchlist_entries
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// OwnersWithActiveEntries lists the owners a matching pass must cover.
func (s *Store) OwnersWithActiveEntries(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT owner_id FROM watchlist_entries WHERE active = TRUE`,
	)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Type, &e.Value, &e.Active, &e.Priority, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return entries, nil
}
