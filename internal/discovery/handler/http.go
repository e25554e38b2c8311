// Package handler exposes the discovery core over JSON HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cafescout/internal/catalog"
	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geo"
	"github.com/example/cafescout/internal/discovery/geofix"
	"github.com/example/cafescout/internal/discovery/projector"
	"github.com/example/cafescout/internal/discovery/schedule"
	"github.com/example/cafescout/internal/discovery/search"
)

// HTTP serves the cafe discovery endpoints.
type HTTP struct {
	catalog   catalog.Source
	projector *projector.Projector
	sessions  *search.Manager
	logger    *zap.Logger
	clock     domain.Clock
}

// New constructs the handler.
func New(cat catalog.Source, proj *projector.Projector, sessions *search.Manager, clock domain.Clock, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &HTTP{catalog: cat, projector: proj, sessions: sessions, logger: logger, clock: clock}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/v1/cafes", h.listCafes)
	r.Get("/v1/cafes/markers", h.listMarkers)
	r.Get("/v1/stores/facets", h.listFacets)
	r.Get("/v1/branches/{id}/schedule", h.branchSchedule)
	r.Post("/v1/branches", h.upsertBranch)
	r.Post("/v1/stores", h.upsertStore)
	r.Post("/v1/sessions", h.createSession)
	r.Get("/v1/sessions/{id}", h.sessionState)
	r.Post("/v1/sessions/{id}/search", h.sessionSearch)
	r.Post("/v1/sessions/{id}/locate", h.sessionLocate)
	r.Delete("/v1/sessions/{id}", h.closeSession)
	return r
}

func (h *HTTP) project(r *http.Request, fix *domain.GeoFix) ([]domain.CafeRecord, error) {
	branches, err := h.catalog.ListBranches(r.Context())
	if err != nil {
		return nil, err
	}
	stores, err := h.catalog.ListStores(r.Context())
	if err != nil {
		return nil, err
	}
	return h.projector.Project(branches, stores, fix), nil
}

// fixFromQuery interprets optional lat/lng query params as the caller's
// current fix.
func fixFromQuery(r *http.Request) *domain.GeoFix {
	latRaw := r.URL.Query().Get("lat")
	lngRaw := r.URL.Query().Get("lng")
	if latRaw == "" || lngRaw == "" {
		return nil
	}
	lat, errLat := strconv.ParseFloat(latRaw, 64)
	lng, errLng := strconv.ParseFloat(lngRaw, 64)
	if errLat != nil || errLng != nil {
		return nil
	}
	return &domain.GeoFix{Latitude: lat, Longitude: lng}
}

func filtersFromQuery(r *http.Request) domain.FilterOptions {
	q := r.URL.Query()
	opts := domain.FilterOptions{SortBy: domain.SortCriterion(q.Get("sort"))}
	if v, err := strconv.ParseFloat(q.Get("min_rating"), 64); err == nil {
		opts.MinRating = v
	}
	if raw := strings.TrimSpace(q.Get("tags")); raw != "" {
		opts.Tags = strings.Split(raw, ",")
	}
	opts.OnlyOpen = q.Get("only_open") == "true"
	return opts
}

// nearbySource is implemented by catalogs backed by a geo index. The memory
// catalog does not implement it; radius queries then fall back to the full
// list with client-side distances.
type nearbySource interface {
	NearbyBranchIDs(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]uuid.UUID, error)
}

func (h *HTTP) listCafes(w http.ResponseWriter, r *http.Request) {
	fix := fixFromQuery(r)
	cafes, err := h.project(r, fix)
	if err != nil {
		h.logger.Error("list cafes", zap.Error(err))
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	cafes = h.restrictToRadius(r, fix, cafes)
	cafes = geo.Apply(cafes, filtersFromQuery(r))
	if term := r.URL.Query().Get("q"); term != "" {
		cafes = geo.FilterByTerm(cafes, term)
	}
	writeJSON(w, http.StatusOK, map[string]any{"cafes": cafes, "count": len(cafes)})
}

func (h *HTTP) restrictToRadius(r *http.Request, fix *domain.GeoFix, cafes []domain.CafeRecord) []domain.CafeRecord {
	radius, err := strconv.ParseFloat(r.URL.Query().Get("radius_km"), 64)
	if err != nil || radius <= 0 || fix == nil {
		return cafes
	}
	src, ok := h.catalog.(nearbySource)
	if !ok {
		return cafes
	}
	ids, err := src.NearbyBranchIDs(r.Context(), fix.Point(), radius, 200)
	if err != nil {
		h.logger.Warn("geo index lookup failed", zap.Error(err))
		return cafes
	}
	keep := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := make([]domain.CafeRecord, 0, len(ids))
	for _, cafe := range cafes {
		if _, ok := keep[cafe.ID]; ok {
			out = append(out, cafe)
		}
	}
	return out
}

func (h *HTTP) listMarkers(w http.ResponseWriter, r *http.Request) {
	cafes, err := h.project(r, nil)
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": projector.Markers(cafes)})
}

func (h *HTTP) listFacets(w http.ResponseWriter, r *http.Request) {
	branches, err := h.catalog.ListBranches(r.Context())
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	stores, err := h.catalog.ListStores(r.Context())
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facets": projector.Facets(branches, stores)})
}

func (h *HTTP) branchSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	branch, err := h.catalog.GetBranch(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "branch not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": schedule.CurrentInfo(branch.Schedule, h.clock.Now()),
		"weekly":  schedule.WeeklyFormatted(branch.Schedule),
	})
}

func (h *HTTP) upsertBranch(w http.ResponseWriter, r *http.Request) {
	var branch domain.Branch
	if err := json.NewDecoder(r.Body).Decode(&branch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if branch.ID == uuid.Nil {
		branch.ID = uuid.New()
	}
	if err := h.catalog.UpsertBranch(r.Context(), branch); err != nil {
		h.logger.Error("upsert branch", zap.Error(err))
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (h *HTTP) upsertStore(w http.ResponseWriter, r *http.Request) {
	var store domain.Store
	if err := json.NewDecoder(r.Body).Decode(&store); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	if err := h.catalog.UpsertStore(r.Context(), store); err != nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, store)
}

func (h *HTTP) createSession(w http.ResponseWriter, _ *http.Request) {
	session, err := h.sessions.Create()
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": session.ID})
}

func (h *HTTP) lookupSession(w http.ResponseWriter, r *http.Request) *search.Session {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return nil
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil
	}
	return session
}

type acquisitionView struct {
	Phase   geofix.Phase     `json:"phase"`
	Attempt int              `json:"attempt"`
	Kind    geofix.ErrorKind `json:"error_kind,omitempty"`
	Message string           `json:"error_message,omitempty"`
	Fix     *domain.GeoFix   `json:"fix,omitempty"`
}

func (h *HTTP) sessionState(w http.ResponseWriter, r *http.Request) {
	session := h.lookupSession(w, r)
	if session == nil {
		return
	}

	state := session.Acquirer.State()
	view := acquisitionView{Phase: state.Phase, Attempt: state.Attempt, Fix: state.Fix}
	if state.Phase == geofix.PhaseFailed {
		view.Kind = state.Kind
		view.Message = state.Kind.Message()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"processing":    session.Coordinator.Processing(),
		"outcome":       session.Coordinator.LastOutcome(),
		"acquisition":   view,
		"camera":        session.Camera.Last(),
		"notifications": session.Notifications.Drain(),
	})
}

func (h *HTTP) sessionSearch(w http.ResponseWriter, r *http.Request) {
	session := h.lookupSession(w, r)
	if session == nil {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session.Coordinator.OnTextChanged(payload.Text)
	writeJSON(w, http.StatusAccepted, map[string]any{"processing": session.Coordinator.Processing()})
}

func (h *HTTP) sessionLocate(w http.ResponseWriter, r *http.Request) {
	session := h.lookupSession(w, r)
	if session == nil {
		return
	}
	session.Acquirer.Acquire()
	writeJSON(w, http.StatusAccepted, map[string]any{"phase": session.Acquirer.State().Phase})
}

func (h *HTTP) closeSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	if err := h.sessions.Close(id); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
