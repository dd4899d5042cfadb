package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/alert"
	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/extract"
	"github.com/leakforge/leakwatch/backend/internal/match"
	"github.com/leakforge/leakwatch/backend/internal/models"
)

// memoryCorpus answers matcher queries from extraction results held in
// memory, approximating the index's phrase matching with a substring check.
type memoryCorpus struct {
	docs []corpus.Document
}

func (m *memoryCorpus) add(result models.ExtractionResult) {
	extracted := make(map[string][]string)
	for t, list := range result.Indicators {
		for _, ind := range list {
			extracted[string(t)] = append(extracted[string(t)], ind.Value)
		}
	}
	m.docs = append(m.docs, corpus.Document{
		DocumentID: result.DocumentID,
		OriginID:   result.OriginID,
		Text:       result.Preview,
		Extracted:  extracted,
		Timestamp:  result.Timestamp,
	})
}

func (m *memoryCorpus) Query(_ context.Context, params corpus.QueryParams) ([]corpus.Hit, error) {
	needle := strings.ToLower(strings.Trim(params.Value, "*"))
	var hits []corpus.Hit
	for _, doc := range m.docs {
		if !strings.Contains(strings.ToLower(doc.Text), needle) {
			continue
		}
		hits = append(hits, corpus.Hit{
			Relevance:  8.0,
			DocumentID: doc.DocumentID,
			OriginID:   doc.OriginID,
			Text:       doc.Text,
			Extracted:  doc.Extracted,
			Timestamp:  doc.Timestamp,
		})
	}
	return hits, nil
}

type memoryWatchlist struct {
	entries []models.WatchlistEntry
}

func (m *memoryWatchlist) ActiveEntries(context.Context, string) ([]models.WatchlistEntry, error) {
	return m.entries, nil
}

type memoryLeakStore struct {
	alerts  []models.Alert
	leaks   []models.LeakRecord
	buckets map[int64]bool
}

func (m *memoryLeakStore) CreateLeakAndAlert(_ context.Context, leak *models.LeakRecord, a *models.Alert, bucket int64) error {
	if m.buckets == nil {
		m.buckets = make(map[int64]bool)
	}
	m.buckets[bucket] = true
	m.leaks = append(m.leaks, *leak)
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memoryLeakStore) RecentAlertExists(context.Context, string, string, string, time.Duration) (bool, error) {
	return len(m.alerts) > 0, nil
}

// Extraction feeds the corpus, matching finds the watched value, and the
// emitter alerts exactly once across repeated passes.
func TestExtractionToAlertFlow(t *testing.T) {
	extractor := extract.New(nil)
	result := extractor.Extract(models.RawDocument{
		DocumentID: "doc-1",
		OriginID:   "channel-9",
		Text:       "combo drop victim@corp.com:Tr0ub4dor99 full db inside",
		Timestamp:  time.Now().UTC(),
	})
	require.True(t, result.Count(models.TypeEmail) == 1)

	c := &memoryCorpus{}
	c.add(result)

	watchlist := &memoryWatchlist{entries: []models.WatchlistEntry{{
		ID:      "watch-1",
		OwnerID: "owner-1",
		Type:    models.TypeEmail,
		Value:   "victim@corp.com",
		Active:  true,
	}}}

	m := match.New(c, watchlist, discardLogger(), 0)
	candidates, err := m.FindMatches(context.Background(), "owner-1")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	// 0.8 base + 0.2 structured + 0.1 context, clamped.
	require.InDelta(t, 1.0, candidates[0].Confidence, 1e-9)

	st := &memoryLeakStore{}
	emitter := alert.New(st, nil, nil, discardLogger())

	created, err := emitter.Emit(context.Background(), candidates)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, models.SeverityHigh, st.alerts[0].Priority)
	require.Equal(t, "doc-1", st.leaks[0].DocumentID)

	// The second pass finds the same match but the dedup window holds.
	created, err = emitter.Emit(context.Background(), candidates)
	require.NoError(t, err)
	require.Zero(t, created)
	require.Len(t, st.alerts, 1)
}
