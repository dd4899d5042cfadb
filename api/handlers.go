package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

// ownerHeader carries the caller identity. Authentication itself lives at
// the gateway; this service only scopes queries by the forwarded owner id.
const ownerHeader = "X-Owner-ID"

type ownerKey struct{}

type watchStore interface {
	Ping(ctx context.Context) error
	CreateEntry(ctx context.Context, entry *models.WatchlistEntry) error
	DeactivateEntry(ctx context.Context, ownerID, entryID string) error
	ListEntries(ctx context.Context, ownerID string) ([]models.WatchlistEntry, error)
	ListAlerts(ctx context.Context, ownerID string, limit int) ([]models.Alert, error)
	MarkAlertRead(ctx context.Context, ownerID, alertID string) error
	MarkAlertResolved(ctx context.Context, ownerID, alertID string) error
	ListLeaks(ctx context.Context, ownerID string, limit int) ([]models.LeakRecord, error)
	UpdateLeakStatus(ctx context.Context, ownerID, leakID string, status models.LeakStatus) error
	LinksForDocument(ctx context.Context, documentID string) ([]models.Link, error)
	DocumentLinkStatus(ctx context.Context, documentID string) (models.LinkStatus, error)
}

type corpusHealth interface {
	Health(ctx context.Context) error
}

type server struct {
	log    *slog.Logger
	cfg    *config.API
	store  watchStore
	corpus corpusHealth
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/watchlist", func(r chi.Router) {
		r.Use(s.requireOwner)
		r.Get("/", s.handleListWatchlist)
		r.Post("/", s.handleCreateWatch)
		r.Delete("/{id}", s.handleDeactivateWatch)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Use(s.requireOwner)
		r.Get("/", s.handleListAlerts)
		r.Post("/{id}/read", s.handleAlertRead)
		r.Post("/{id}/resolve", s.handleAlertResolve)
	})

	r.Route("/leaks", func(r chi.Router) {
		r.Use(s.requireOwner)
		r.Get("/", s.handleListLeaks)
		r.Post("/{id}/status", s.handleLeakStatus)
	})

	r.Get("/documents/{id}/links", s.handleDocumentLinks)

	return r
}

func (s *server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing " + ownerHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if err := s.corpus.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createWatchRequest struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Priority int    `json:"priority"`
}

var watchableTypes = map[models.IndicatorType]bool{
	models.TypeEmail:    true,
	models.TypeUsername: true,
	models.TypeDomain:   true,
	models.TypePhone:    true,
	models.TypeAPIKey:   true,
	models.TypePassword: true,
}

func (s *server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req createWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	watchType := models.IndicatorType(strings.TrimSpace(req.Type))
	value := strings.TrimSpace(req.Value)
	if !watchableTypes[watchType] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported watch type"})
		return
	}
	if value == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value is required"})
		return
	}

	entry := &models.WatchlistEntry{
		OwnerID:  ownerFrom(ctx),
		Type:     watchType,
		Value:    value,
		Priority: req.Priority,
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "entry already exists"})
			return
		}
		s.log.Error("create watch entry", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := s.store.ListEntries(ctx, ownerFrom(ctx))
	if err != nil {
		s.log.Error("list watchlist", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleDeactivateWatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.DeactivateEntry(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "entry not found"})
			return
		}
		s.log.Error("deactivate watch entry", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)
	alerts, err := s.store.ListAlerts(ctx, ownerFrom(ctx), limit)
	if err != nil {
		s.log.Error("list alerts", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *server) handleAlertRead(w http.ResponseWriter, r *http.Request) {
	s.markAlert(w, r, s.store.MarkAlertRead)
}

func (s *server) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	s.markAlert(w, r, s.store.MarkAlertResolved)
}

func (s *server) markAlert(w http.ResponseWriter, r *http.Request, mark func(context.Context, string, string) error) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := mark(ctx, ownerFrom(ctx), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "alert not found"})
			return
		}
		s.log.Error("mark alert", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListLeaks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)
	leaks, err := s.store.ListLeaks(ctx, ownerFrom(ctx), limit)
	if err != nil {
		s.log.Error("list leaks", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, leaks)
}

type leakStatusRequest struct {
	Status string `json:"status"`
}

var leakStatuses = map[models.LeakStatus]bool{
	models.LeakStatusNew:           true,
	models.LeakStatusInvestigating: true,
	models.LeakStatusConfirmed:     true,
	models.LeakStatusFalsePositive: true,
	models.LeakStatusResolved:      true,
}

func (s *server) handleLeakStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req leakStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	status := models.LeakStatus(strings.TrimSpace(req.Status))
	if !leakStatuses[status] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown leak status"})
		return
	}

	if err := s.store.UpdateLeakStatus(ctx, ownerFrom(ctx), chi.URLParam(r, "id"), status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "leak not found"})
			return
		}
		s.log.Error("update leak status", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentLinksResponse struct {
	DocumentID string            `json:"document_id"`
	Status     models.LinkStatus `json:"status"`
	Links      []models.Link     `json:"links"`
}

func (s *server) handleDocumentLinks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	documentID := chi.URLParam(r, "id")
	links, err := s.store.LinksForDocument(ctx, documentID)
	if err != nil {
		s.log.Error("list document links", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	status, err := s.store.DocumentLinkStatus(ctx, documentID)
	if err != nil {
		s.log.Error("document link status", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, documentLinksResponse{
		DocumentID: documentID,
		Status:     status,
		Links:      links,
	})
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
