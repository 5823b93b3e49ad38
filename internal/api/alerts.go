package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/store"
)

const (
	cronSecretHeader = "X-Cron-Secret"
	recentMatchCount = 5
)

// alertInput is the writable part of an alert. Nil flags keep the
// current value on update and default to true on create.
type alertInput struct {
	Name            string          `json:"name"`
	Keyword         string          `json:"keyword"`
	Countries       []string        `json:"countries"`
	Sources         []string        `json:"sources"`
	Filters         json.RawMessage `json:"filters"`
	IsActive        *bool           `json:"isActive"`
	ScheduleEnabled bool            `json:"scheduleEnabled"`
	ScheduleHours   []int           `json:"scheduleHours"`
	ScheduleDays    []int           `json:"scheduleDays"`
	EmailOnMatch    *bool           `json:"emailOnMatch"`
}

func (in alertInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return badRequest("name is required")
	}
	if strings.TrimSpace(in.Keyword) == "" {
		return badRequest("keyword is required")
	}
	if len(in.Filters) > 0 && !json.Valid(in.Filters) {
		return badRequest("filters must be valid JSON")
	}
	if in.ScheduleEnabled && len(in.ScheduleHours) == 0 {
		return badRequest("scheduleHours is required when scheduleEnabled is set")
	}
	return nil
}

func (in alertInput) apply(a *model.AlertDefinition) {
	a.Name = strings.TrimSpace(in.Name)
	a.Keyword = strings.TrimSpace(in.Keyword)
	a.Countries = in.Countries
	a.Sources = in.Sources
	a.Filters = in.Filters
	a.ScheduleEnabled = in.ScheduleEnabled
	a.ScheduleHours = in.ScheduleHours
	a.ScheduleDays = in.ScheduleDays
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if in.EmailOnMatch != nil {
		a.EmailOnMatch = *in.EmailOnMatch
	}
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, "alert storage")
		return
	}
	alerts, err := s.deps.Alerts.ListAlerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch alerts: "+err.Error())
		return
	}
	if alerts == nil {
		alerts = []model.AlertDefinition{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, "alert storage")
		return
	}
	var in alertInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	a := model.AlertDefinition{IsActive: true, EmailOnMatch: true}
	in.apply(&a)
	core.Reschedule(&a, s.now())

	created, err := s.deps.Alerts.CreateAlert(r.Context(), a)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save alert: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, "alert storage")
		return
	}
	ctx := r.Context()
	a, ok := s.loadAlert(w, r)
	if !ok {
		return
	}

	recent, err := s.deps.Alerts.RecentMatches(ctx, a.ID, recentMatchCount)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch matches: "+err.Error())
		return
	}
	if recent == nil {
		recent = []model.AlertMatch{}
	}
	count, err := s.deps.Alerts.CountMatches(ctx, a.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count matches: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alert":         a,
		"state":         core.AlertState(*a, s.now()),
		"recentMatches": recent,
		"matchCount":    count,
	})
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, "alert storage")
		return
	}
	existing, ok := s.loadAlert(w, r)
	if !ok {
		return
	}
	var in alertInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	in.apply(existing)
	core.Reschedule(existing, s.now())

	updated, err := s.deps.Alerts.UpdateAlert(r.Context(), *existing)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update alert: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, "alert storage")
		return
	}
	err := s.deps.Alerts.DeleteAlert(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete alert: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) loadAlert(w http.ResponseWriter, r *http.Request) (*model.AlertDefinition, bool) {
	a, err := s.deps.Alerts.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch alert: "+err.Error())
		return nil, false
	}
	return a, true
}

// handleRunAlerts is the external scheduler hook. It refuses every call
// while no secret is configured.
func (s *Server) handleRunAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		respondError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}
	if s.deps.Runner == nil {
		unavailable(w, "alert runner")
		return
	}

	summary, err := s.deps.Runner.RunDue(r.Context())
	if err != nil {
		s.logger.Error("alert run failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to run alerts: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) cronAuthorized(r *http.Request) bool {
	want := s.deps.CronSecret
	if want == "" {
		return false
	}
	got := r.Header.Get(cronSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
