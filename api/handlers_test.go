package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

type stubStore struct {
	entries     []models.WatchlistEntry
	alerts      []models.Alert
	leaks       []models.LeakRecord
	links       []models.Link
	linkStatus  models.LinkStatus
	createErr   error
	readAlerts  []string
	leakUpdates map[string]models.LeakStatus
}

func (s *stubStore) Ping(context.Context) error { return nil }

func (s *stubStore) CreateEntry(_ context.Context, entry *models.WatchlistEntry) error {
	if s.createErr != nil {
		return s.createErr
	}
	entry.ID = "entry-1"
	entry.Active = true
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *stubStore) DeactivateEntry(_ context.Context, _, entryID string) error {
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			s.entries[i].Active = false
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *stubStore) ListEntries(context.Context, string) ([]models.WatchlistEntry, error) {
	return s.entries, nil
}

func (s *stubStore) ListAlerts(context.Context, string, int) ([]models.Alert, error) {
	return s.alerts, nil
}

func (s *stubStore) MarkAlertRead(_ context.Context, _, alertID string) error {
	for _, a := range s.alerts {
		if a.ID == alertID {
			s.readAlerts = append(s.readAlerts, alertID)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *stubStore) MarkAlertResolved(_ context.Context, _, alertID string) error {
	return s.MarkAlertRead(context.Background(), "", alertID)
}

func (s *stubStore) ListLeaks(context.Context, string, int) ([]models.LeakRecord, error) {
	return s.leaks, nil
}

func (s *stubStore) UpdateLeakStatus(_ context.Context, _, leakID string, status models.LeakStatus) error {
	if s.leakUpdates == nil {
		s.leakUpdates = make(map[string]models.LeakStatus)
	}
	s.leakUpdates[leakID] = status
	return nil
}

func (s *stubStore) LinksForDocument(context.Context, string) ([]models.Link, error) {
	return s.links, nil
}

func (s *stubStore) DocumentLinkStatus(context.Context, string) (models.LinkStatus, error) {
	return s.linkStatus, nil
}

type stubCorpus struct{ err error }

func (s *stubCorpus) Health(context.Context) error { return s.err }

func newTestServer(st *stubStore) *server {
	return &server{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:    &config.API{DefaultPage: 20, MaxPage: 100},
		store:  st,
		corpus: &stubCorpus{},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubStore{})

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateWatchRequiresOwner(t *testing.T) {
	srv := newTestServer(&stubStore{})

	body := strings.NewReader(`{"type":"email","value":"me@example.com"}`)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/watchlist/", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWatch(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(st)

	body := strings.NewReader(`{"type":"email","value":"me@example.com","priority":2}`)
	req := httptest.NewRequest(http.MethodPost, "/watchlist/", body)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, st.entries, 1)
	require.Equal(t, "owner-1", st.entries[0].OwnerID)
	require.Equal(t, models.TypeEmail, st.entries[0].Type)
	require.Equal(t, 2, st.entries[0].Priority)
}

func TestCreateWatchRejectsUnknownType(t *testing.T) {
	srv := newTestServer(&stubStore{})

	body := strings.NewReader(`{"type":"credit_card","value":"4111111111111111"}`)
	req := httptest.NewRequest(http.MethodPost, "/watchlist/", body)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWatchConflict(t *testing.T) {
	srv := newTestServer(&stubStore{createErr: store.ErrConflict})

	body := strings.NewReader(`{"type":"email","value":"me@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/watchlist/", body)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeactivateWatch(t *testing.T) {
	st := &stubStore{entries: []models.WatchlistEntry{{ID: "entry-1", Active: true}}}
	srv := newTestServer(st)

	req := httptest.NewRequest(http.MethodDelete, "/watchlist/entry-1", nil)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, st.entries[0].Active)

	req = httptest.NewRequest(http.MethodDelete, "/watchlist/missing", nil)
	req.Header.Set(ownerHeader, "owner-1")
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAlertRead(t *testing.T) {
	st := &stubStore{alerts: []models.Alert{{ID: "alert-1"}}}
	srv := newTestServer(st)

	req := httptest.NewRequest(http.MethodPost, "/alerts/alert-1/read", nil)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"alert-1"}, st.readAlerts)
}

func TestUpdateLeakStatus(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(st)

	body := strings.NewReader(`{"status":"confirmed"}`)
	req := httptest.NewRequest(http.MethodPost, "/leaks/leak-1/status", body)
	req.Header.Set(ownerHeader, "owner-1")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, models.LeakStatusConfirmed, st.leakUpdates["leak-1"])

	body = strings.NewReader(`{"status":"bogus"}`)
	req = httptest.NewRequest(http.MethodPost, "/leaks/leak-1/status", body)
	req.Header.Set(ownerHeader, "owner-1")
	rec = httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentLinks(t *testing.T) {
	st := &stubStore{
		links:      []models.Link{{ID: "link-1", URL: "https://bit.ly/abc123", Status: models.LinkStatusValid}},
		linkStatus: models.LinkStatusValid,
	}
	srv := newTestServer(st)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/doc-1/links", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp documentLinksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "doc-1", resp.DocumentID)
	require.Equal(t, models.LinkStatusValid, resp.Status)
	require.Len(t, resp.Links, 1)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 20, clampInt("", 20, 100))
	require.Equal(t, 20, clampInt("junk", 20, 100))
	require.Equal(t, 20, clampInt("-5", 20, 100))
	require.Equal(t, 100, clampInt("500", 20, 100))
	require.Equal(t, 42, clampInt("42", 20, 100))
}
