package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/store"
	"github.com/baxromumarov/jobradar/internal/tasks"
)

const maxBodyBytes = 1 << 20

type badRequest string

func (e badRequest) Error() string { return string(e) }

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		unavailable(w, "search")
		return
	}
	req, err := parseSearchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Search.Search(r.Context(), req)
	if err != nil {
		s.searchFailed(w, err, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSmartSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.SmartSearch == nil {
		unavailable(w, "smart search")
		return
	}
	base, err := parseSearchRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.SmartSearch.SmartSearch(r.Context(), core.SmartSearchRequest{
		Country:    base.Country,
		Sources:    base.Sources,
		Limit:      base.Limit,
		MaxAgeDays: base.MaxAgeDays,
		Page:       base.Page,
		PageSize:   base.PageSize,
	})
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no resume on file")
		return
	}
	if err != nil {
		var partial *core.SearchResult
		if res != nil {
			partial = res.SearchResult
		}
		s.searchFailed(w, err, partial)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) searchFailed(w http.ResponseWriter, err error, res *core.SearchResult) {
	if errors.Is(err, core.ErrAllSourcesFailed) {
		body := map[string]interface{}{"error": err.Error()}
		if res != nil {
			body["apis"] = res.APIs
		}
		respondJSON(w, http.StatusBadGateway, body)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusGatewayTimeout, "search deadline exceeded")
		return
	}
	s.logger.Error("search failed", "error", err)
	respondError(w, http.StatusInternalServerError, "search failed")
}

func parseSearchRequest(r *http.Request) (model.SearchRequest, error) {
	q := r.URL.Query()
	req := model.SearchRequest{
		Keyword:  strings.TrimSpace(firstParam(q.Get("keyword"), q.Get("q"))),
		Location: strings.TrimSpace(q.Get("location")),
		Category: strings.TrimSpace(q.Get("category")),
		Country:  strings.ToLower(strings.TrimSpace(q.Get("country"))),
		SortBy:   strings.ToLower(strings.TrimSpace(q.Get("sortBy"))),
	}
	if req.Country == "" {
		req.Country = model.CountryAll
	}
	switch req.Country {
	case model.CountryBrazil, model.CountryPortugal, model.CountryRemote, model.CountryAll:
	default:
		return req, badRequest(fmt.Sprintf("unsupported country %q", req.Country))
	}
	switch req.SortBy {
	case model.SortNone, model.SortSalary, model.SortRelevance, model.SortDate:
	default:
		return req, badRequest(fmt.Sprintf("unsupported sortBy %q", req.SortBy))
	}
	if src := firstParam(q.Get("source"), q.Get("sources")); src != "" {
		req.Sources = splitList(src)
	}

	var err error
	if req.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return req, err
	}
	if req.MaxAgeDays, err = queryInt(q.Get("maxAgeDays"), "maxAgeDays"); err != nil {
		return req, err
	}
	if req.Page, err = queryInt(q.Get("page"), "page"); err != nil {
		return req, err
	}
	if req.PageSize, err = queryInt(q.Get("pageSize"), "pageSize"); err != nil {
		return req, err
	}
	return req, nil
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstParam(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enricher == nil {
		unavailable(w, "enrichment")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.deps.Enricher.Enrich(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "job not found, run a search first")
	case errors.Is(err, core.ErrNoJobURL):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.logger.Warn("enrichment failed", "job_id", id, "error", err)
		respondError(w, http.StatusBadGateway, "Failed to enrich job: "+err.Error())
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sources == nil {
		unavailable(w, "sources")
		return
	}
	names := s.deps.Sources.Names()
	items := make([]map[string]interface{}, 0, len(names))
	for i, name := range names {
		items = append(items, map[string]interface{}{"name": name, "priority": i})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (s *Server) handleLastExtraction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extraction == nil {
		unavailable(w, "extraction")
		return
	}
	last := s.deps.Extraction.LastAttempt()
	if last == nil {
		respondError(w, http.StatusNotFound, "no extraction has run yet")
		return
	}
	respondJSON(w, http.StatusOK, last)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extraction == nil {
		unavailable(w, "extraction")
		return
	}
	state, err := s.deps.Extraction.Quota(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read quota: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"quota":        state,
		"withinLimits": state.WithinLimits(),
		"nearLimit":    state.NearLimit(),
	})
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		unavailable(w, "log buffer")
		return
	}
	limit, err := queryInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > maxLogLimit {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be at most %d", maxLogLimit))
		return
	}
	if limit == 0 {
		limit = defaultLogLimit
	}
	entries, total := s.deps.Logs.Recent(limit, r.URL.Query().Get("level"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"total": total,
	})
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		unavailable(w, "sync")
		return
	}
	var req core.SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" {
		respondError(w, http.StatusBadRequest, "source is required")
		return
	}

	id, err := s.deps.Sync.Start(req)
	switch {
	case errors.Is(err, core.ErrUnknownSource):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrRunnerClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to start sync: "+err.Error())
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
	}
}

func (s *Server) handleListSyncs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		unavailable(w, "tasks")
		return
	}
	items := s.deps.Tasks.List()
	if items == nil {
		items = []tasks.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

func (s *Server) handleGetSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		unavailable(w, "tasks")
		return
	}
	t, err := s.deps.Tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleStopSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		unavailable(w, "tasks")
		return
	}
	id := chi.URLParam(r, "id")
	err := s.deps.Tasks.RequestStop(id)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tasks.ErrNotRunning):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		t, _ := s.deps.Tasks.Get(id)
		respondJSON(w, http.StatusAccepted, t)
	}
}

func (s *Server) handleGetResume(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resumes == nil {
		unavailable(w, "resume storage")
		return
	}
	res, err := s.deps.Resumes.LoadResume(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no resume on file")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load resume: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handlePutResume(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resumes == nil {
		unavailable(w, "resume storage")
		return
	}
	var res model.Resume
	if !decodeBody(w, r, &res) {
		return
	}
	if len(res.Skills) == 0 && len(res.Experiences) == 0 {
		respondError(w, http.StatusBadRequest, "resume needs skills or experiences")
		return
	}
	if err := s.deps.Resumes.SaveResume(r.Context(), res); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save resume: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
