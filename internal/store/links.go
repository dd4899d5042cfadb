package store

import (
	"context"
	"fmt"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// UpsertLinks inserts newly harvested links, skipping any already recorded
// for the same (document, url). Returns the number actually inserted.
func (s *Store) UpsertLinks(ctx context.Context, links []models.Link) (int, error) {
	inserted := 0
	for _, link := range links {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO links (id, document_id, origin_id, url, is_telegram, risk_score, is_suspicious, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (document_id, url) DO NOTHING`,
			link.ID, link.DocumentID, link.OriginID, link.URL,
			link.IsTelegram, link.RiskScore, link.IsSuspicious, link.Status, link.CreatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert link: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ClaimProbeable returns links eligible for probing: pending ones, plus
// error/timeout ones whose retry budget is not exhausted. Probes are
// idempotent, so two prober instances racing on the same batch is harmless.
func (s *Store) ClaimProbeable(ctx context.Context, limit, maxRetries int) ([]models.Link, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, origin_id, url, is_telegram, risk_score, is_suspicious, status, retry_count, last_error, checked_at, created_at
		 FROM links
		 WHERE status = 'pending'
		    OR (status IN ('error', 'timeout') AND retry_count < $1)
		 ORDER BY created_at
		 LIMIT $2`,
		maxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.OriginID, &l.URL, &l.IsTelegram,
			&l.RiskScore, &l.IsSuspicious, &l.Status, &l.RetryCount, &l.LastError,
			&l.CheckedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// RecordProbe stores a probe outcome. The retry counter only ever grows,
// and only on failed outcomes.
func (s *Store) RecordProbe(ctx context.Context, linkID string, status models.LinkStatus, probeErr string) error {
	increment := 0
	if status == models.LinkStatusError || status == models.LinkStatusTimeout {
		increment = 1
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE links
		 SET status = $1, last_error = $2, retry_count = retry_count + $3, checked_at = now()
		 WHERE id = $4`,
		status, probeErr, increment, linkID,
	)
	if err != nil {
		return fmt.Errorf("record probe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentLinkStatus aggregates a document's link states: valid iff every
// link is valid, invalid when any failed, pending otherwise.
func (s *Store) DocumentLinkStatus(ctx context.Context, documentID string) (models.LinkStatus, error) {
	var total, valid, failed int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'valid'),
		        count(*) FILTER (WHERE status IN ('invalid', 'error'))
		 FROM links WHERE document_id = $1`,
		documentID,
	).Scan(&total, &valid, &failed)
	if err != nil {
		return "", fmt.Errorf("aggregate link status: %w", err)
	}

	switch {
	case failed > 0:
		return models.LinkStatusInvalid, nil
	case total > 0 && valid == total:
		return models.LinkStatusValid, nil
	default:
		return models.LinkStatusPending, nil
	}
}

// LinksForDocument lists the recorded links of one document.
func (s *Store) LinksForDocument(ctx context.Context, documentID string) ([]models.Link, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, origin_id, url, is_telegram, risk_score, is_suspicious, status, retry_count, last_error, checked_at, created_at
		 FROM links WHERE document_id = $1 ORDER BY created_at`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query document links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.OriginID, &l.URL, &l.IsTelegram,
			&l.RiskScore, &l.IsSuspicious, &l.Status, &l.RetryCount, &l.LastError,
			&l.CheckedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
