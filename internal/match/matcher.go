// Package match compares the indexed corpus against user watchlists and
// produces ranked, confidence-scored candidates.
package match

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/models"
)

// DefaultLookback bounds how far back a matching pass searches.
const DefaultLookback = 24 * time.Hour

const snippetLimit = 1000

// Corpus is the slice of the corpus client the matcher needs.
type Corpus interface {
	Query(ctx context.Context, params corpus.QueryParams) ([]corpus.Hit, error)
}

// Watchlist loads the active entries of an owner.
type Watchlist interface {
	ActiveEntries(ctx context.Context, ownerID string) ([]models.WatchlistEntry, error)
}

// Matcher runs one matching pass per owner.
type Matcher struct {
	corpus    Corpus
	watchlist Watchlist
	log       *slog.Logger
	lookback  time.Duration
}

// New builds a Matcher. A zero lookback selects the default window.
func New(c Corpus, w Watchlist, log *slog.Logger, lookback time.Duration) *Matcher {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Matcher{corpus: c, watchlist: w, log: log, lookback: lookback}
}

// FindMatches searches the corpus for every active watchlist entry of the
// owner and returns all candidates ordered by (confidence desc, timestamp
// desc). A corpus failure aborts matching for the affected credential only;
// the remaining credentials still run.
func (m *Matcher) FindMatches(ctx context.Context, ownerID string) ([]models.MatchCandidate, error) {
	entries, err := m.watchlist.ActiveEntries(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-m.lookback)
	var candidates []models.MatchCandidate

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		found, err := m.matchEntry(ctx, entry, since)
		if err != nil {
			// Failure isolation is per credential, not per owner.
			m.log.Warn("matching failed for credential",
				slog.String("watch_id", entry.ID),
				slog.String("type", string(entry.Type)),
				slog.Any("err", err),
			)
			continue
		}
		candidates = append(candidates, found...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})

	return candidates, nil
}

func (m *Matcher) matchEntry(ctx context.Context, entry models.WatchlistEntry, since time.Time) ([]models.MatchCandidate, error) {
	queries, err := QueriesFor(entry.Type, entry.Value)
	if err != nil {
		return nil, err
	}

	var candidates []models.MatchCandidate
	for _, q := range queries {
		hits, err := m.queryWithRetry(ctx, corpus.QueryParams{
			Value:    q.Value,
			Wildcard: q.Wildcard,
			Since:    since,
		})
		if err != nil {
			return nil, err
		}

		for _, hit := range hits {
			candidates = append(candidates, models.MatchCandidate{
				Entry:      entry,
				DocumentID: hit.DocumentID,
				OriginID:   hit.OriginID,
				Snippet:    truncate(hit.Text, snippetLimit),
				Relevance:  hit.Relevance,
				Confidence: Confidence(hit, entry.Type),
				Strategy:   q.Kind,
				Timestamp:  hit.Timestamp,
			})
		}
	}

	return candidates, nil
}

// queryWithRetry retries transport-level corpus failures with exponential
// backoff before surfacing them as a per-credential failure.
func (m *Matcher) queryWithRetry(ctx context.Context, params corpus.QueryParams) ([]corpus.Hit, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var hits []corpus.Hit
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		hits, err = m.corpus.Query(ctx, params)
		if errors.Is(err, corpus.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	return hits, err
}

// truncate caps the snippet at limit bytes without splitting a rune; stored
// content must stay valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
