package links_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/links"
	"github.com/leakforge/leakwatch/backend/internal/models"
)

type stubLinkStore struct {
	mu      sync.Mutex
	batch   []models.Link
	results map[string]models.LinkStatus
	errs    map[string]string
}

func (s *stubLinkStore) ClaimProbeable(context.Context, int, int) ([]models.Link, error) {
	return s.batch, nil
}

func (s *stubLinkStore) RecordProbe(_ context.Context, linkID string, status models.LinkStatus, probeErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		s.results = make(map[string]models.LinkStatus)
		s.errs = make(map[string]string)
	}
	s.results[linkID] = status
	s.errs[linkID] = probeErr
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProberClassifiesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := &stubLinkStore{batch: []models.Link{
		{ID: "ok", URL: srv.URL + "/ok"},
		{ID: "gone", URL: srv.URL + "/gone"},
		{ID: "broken", URL: srv.URL + "/broken"},
	}}

	p := links.NewProber(store, discardLogger(), 2, 10)
	probed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, probed)

	require.Equal(t, models.LinkStatusValid, store.results["ok"])
	require.Equal(t, models.LinkStatusInvalid, store.results["gone"])
	require.Equal(t, models.LinkStatusError, store.results["broken"])
	require.Equal(t, "HTTP 404", store.errs["gone"])
}

func TestProberRecordsUnreachableHost(t *testing.T) {
	// Reserve a port then close it so the connection is refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	dead := srv.URL
	srv.Close()

	store := &stubLinkStore{batch: []models.Link{{ID: "dead", URL: dead + "/x"}}}

	p := links.NewProber(store, discardLogger(), 1, 10)
	probed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, probed)
	require.Equal(t, models.LinkStatusError, store.results["dead"])
	require.NotEmpty(t, store.errs["dead"])
}

func TestProberEmptyBatch(t *testing.T) {
	p := links.NewProber(&stubLinkStore{}, discardLogger(), 1, 10)
	probed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, probed)
}

func TestProberRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := &stubLinkStore{batch: []models.Link{{ID: "limited", URL: srv.URL}}}

	p := links.NewProber(store, discardLogger(), 1, 10)
	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.LinkStatusError, store.results["limited"])
	require.Contains(t, store.errs["limited"], "rate limited")
}
