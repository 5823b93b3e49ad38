package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/extract"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/store"
	"github.com/baxromumarov/jobradar/internal/tasks"
)

type searchFake struct {
	got model.SearchRequest
	res *core.SearchResult
	err error
}

func (f *searchFake) Search(_ context.Context, req model.SearchRequest) (*core.SearchResult, error) {
	f.got = req
	return f.res, f.err
}

type runnerFake struct {
	calls int
}

func (f *runnerFake) RunDue(context.Context) (core.RunSummary, error) {
	f.calls++
	return core.RunSummary{Ran: 1, Results: []core.AlertResult{{AlertID: "a1", NewMatches: 2}}}, nil
}

type enricherFake struct{ err error }

func (f enricherFake) Enrich(_ context.Context, id string) (*core.EnrichResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.EnrichResult{JobID: id, Extracted: core.ExtractedContact{Email: "hr@acme.io"}}, nil
}

type syncFake struct{}

func (syncFake) Start(req core.SyncRequest) (string, error) {
	if req.Source != "remotive" {
		return "", core.ErrUnknownSource
	}
	return "task-1", nil
}

type extractionFake struct{ last *extract.Attempt }

func (f extractionFake) LastAttempt() *extract.Attempt { return f.last }

func (extractionFake) Quota(context.Context) (model.QuotaState, error) {
	return model.QuotaState{DailyUsed: 9, DailyLimit: 10, MonthlyUsed: 9, MonthlyLimit: 100, AlertThreshold: 0.8}, nil
}

type sourcesFake []string

func (s sourcesFake) Names() []string { return s }

func newTestServer(t *testing.T, mutate func(*Deps)) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	deps := Deps{
		Alerts:     mem,
		Resumes:    mem,
		Runner:     &runnerFake{},
		Enricher:   enricherFake{},
		Sync:       syncFake{},
		Tasks:      tasks.NewMemoryRegistry(),
		Extraction: extractionFake{},
		Sources:    sourcesFake{"remotive", "remoteok"},
		CronSecret: "s3cret",
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(NewServer(deps).Router())
	t.Cleanup(srv.Close)
	return srv, mem
}

func do(t *testing.T, method, url string, body interface{}, header http.Header) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSearchParsesQuery(t *testing.T) {
	fake := &searchFake{res: &core.SearchResult{
		Jobs:  []model.JobPosting{{ID: "1", Title: "Go Dev"}},
		Total: 1, Page: 2, PageSize: 10, TotalPages: 1,
		APIs: map[string]string{"remotive": core.StatusOK},
	}}
	srv, _ := newTestServer(t, func(d *Deps) { d.Search = fake })

	resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs/search?keyword=golang&source=remotive,remoteok&country=BR&page=2&pageSize=10&maxAgeDays=7", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "golang", fake.got.Keyword)
	assert.Equal(t, []string{"remotive", "remoteok"}, fake.got.Sources)
	assert.Equal(t, model.CountryBrazil, fake.got.Country)
	assert.Equal(t, 2, fake.got.Page)
	assert.Equal(t, 10, fake.got.PageSize)
	assert.Equal(t, 7, fake.got.MaxAgeDays)
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, map[string]interface{}{"remotive": "ok"}, body["apis"])
}

func TestSearchDefaultsAndValidation(t *testing.T) {
	fake := &searchFake{res: &core.SearchResult{Jobs: []model.JobPosting{}}}
	srv, _ := newTestServer(t, func(d *Deps) { d.Search = fake })

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs/search", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.CountryAll, fake.got.Country)

	for _, q := range []string{"country=mars", "page=-1", "limit=abc", "sortBy=karma"} {
		resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs/search?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.NotEmpty(t, body["error"], q)
	}
}

func TestSearchAllSourcesFailed(t *testing.T) {
	fake := &searchFake{
		res: &core.SearchResult{APIs: map[string]string{"remotive": core.StatusError}},
		err: core.ErrAllSourcesFailed,
	}
	srv, _ := newTestServer(t, func(d *Deps) { d.Search = fake })

	resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs/search?keyword=go", nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"remotive": "error"}, body["apis"])
}

func TestMissingServiceAnswers503(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs/search", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAlertLifecycle(t *testing.T) {
	srv, mem := newTestServer(t, nil)

	resp, created := do(t, http.MethodPost, srv.URL+"/api/alerts", map[string]interface{}{
		"name":            "Go in BR",
		"keyword":         "golang",
		"countries":       []string{"br"},
		"scheduleEnabled": true,
		"scheduleHours":   []int{9, 18},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, created["isActive"])
	assert.Equal(t, true, created["emailOnMatch"])
	assert.NotEmpty(t, created["nextRun"])

	ctx := context.Background()
	for _, job := range []string{"j1", "j2", "j3", "j4", "j5", "j6"} {
		_, err := mem.InsertMatch(ctx, model.AlertMatch{AlertID: id, JobID: job, MatchedAt: time.Now()})
		require.NoError(t, err)
	}

	resp, got := do(t, http.MethodGet, srv.URL+"/api/alerts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 6, got["matchCount"])
	assert.Len(t, got["recentMatches"], recentMatchCount)
	assert.Equal(t, core.AlertScheduled, got["state"])

	off := false
	resp, updated := do(t, http.MethodPut, srv.URL+"/api/alerts/"+id, map[string]interface{}{
		"name":     "Go in BR",
		"keyword":  "go",
		"isActive": off,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "go", updated["keyword"])
	assert.Equal(t, false, updated["isActive"])
	assert.Nil(t, updated["nextRun"], "disabling the schedule clears the next run")

	resp, list := do(t, http.MethodGet, srv.URL+"/api/alerts", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, list["total"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/alerts/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/alerts/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/alerts/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAlertValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cases := []map[string]interface{}{
		{"keyword": "go"},
		{"name": "x"},
		{"name": "x", "keyword": "go", "scheduleEnabled": true},
	}
	for _, c := range cases {
		resp, body := do(t, http.MethodPost, srv.URL+"/api/alerts", c, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotEmpty(t, body["error"])
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/alerts", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunAlertsRequiresSecret(t *testing.T) {
	runner := &runnerFake{}
	srv, _ := newTestServer(t, func(d *Deps) { d.Runner = runner })

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/alerts/run", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/alerts/run", nil, http.Header{cronSecretHeader: {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, runner.calls)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/alerts/run", nil, http.Header{cronSecretHeader: {"s3cret"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["ran"])
	assert.Len(t, body["results"], 1)
	assert.Equal(t, 1, runner.calls)
}

func TestRunAlertsRefusedWithoutConfiguredSecret(t *testing.T) {
	runner := &runnerFake{}
	srv, _ := newTestServer(t, func(d *Deps) {
		d.Runner = runner
		d.CronSecret = ""
	})
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/alerts/run", nil, http.Header{cronSecretHeader: {""}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, runner.calls)
}

func TestEnrich(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/jobs/abc/enrich", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	extracted, _ := body["extracted"].(map[string]interface{})
	assert.Equal(t, "hr@acme.io", extracted["email"])

	cases := map[error]int{
		store.ErrNotFound:        http.StatusNotFound,
		core.ErrNoJobURL:         http.StatusUnprocessableEntity,
		errors.New("fetch boom"): http.StatusBadGateway,
	}
	for err, status := range cases {
		srv, _ := newTestServer(t, func(d *Deps) { d.Enricher = enricherFake{err: err} })
		resp, _ := do(t, http.MethodPost, srv.URL+"/api/jobs/abc/enrich", nil, nil)
		assert.Equal(t, status, resp.StatusCode, err.Error())
	}
}

func TestSyncEndpoints(t *testing.T) {
	reg := tasks.NewMemoryRegistry()
	srv, _ := newTestServer(t, func(d *Deps) { d.Tasks = reg })

	resp, body := do(t, http.MethodPost, srv.URL+"/api/sync", map[string]interface{}{"source": "remotive"}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "task-1", body["taskId"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sync", map[string]interface{}{"source": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sync", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	task := reg.Create(core.TaskKindSync)
	resp, got := do(t, http.MethodGet, srv.URL+"/api/sync/"+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, tasks.StateRunning, got["state"])

	resp, stopped := do(t, http.MethodPost, srv.URL+"/api/sync/"+task.ID+"/stop", nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, tasks.StateStopping, stopped["state"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/sync/"+task.ID+"/stop", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/sync/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, list := do(t, http.MethodGet, srv.URL+"/api/sync", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, list["total"])
}

func TestExtractionAndQuota(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/extraction/last", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/quota", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["withinLimits"])
	assert.Equal(t, true, body["nearLimit"])

	srv, _ = newTestServer(t, func(d *Deps) {
		d.Extraction = extractionFake{last: &extract.Attempt{Feature: "extract_jobs", Source: "vagas"}}
	})
	resp, body = do(t, http.MethodGet, srv.URL+"/api/extraction/last", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vagas", body["source"])
}

func TestResumeRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/resume", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/resume", model.Resume{Name: "Ana"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/resume", model.Resume{Name: "Ana", Skills: []model.Skill{{Name: "Go"}}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, http.MethodGet, srv.URL+"/api/resume", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ana", body["name"])
}

func TestHealthSourcesAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/sources", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/stats", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

type pingFake struct{ err error }

func (p pingFake) Ping(context.Context) error { return p.err }

func TestHealthReportsDatabase(t *testing.T) {
	srv, _ := newTestServer(t, func(d *Deps) { d.DB = pingFake{err: errors.New("connection refused")} })
	resp, body := do(t, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestRecentLogs(t *testing.T) {
	buf := observability.NewLogBuffer(10)
	logger := slog.New(buf.Wrap(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	logger.Info("search done", "component", "aggregator")
	logger.Warn("adapter failed", "component", "aggregator")
	logger.Warn("retrying board page")

	srv, _ := newTestServer(t, func(d *Deps) { d.Logs = buf })

	resp, body := do(t, http.MethodGet, srv.URL+"/api/logs?level=warn&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total"])
	logs := body["logs"].([]interface{})
	require.Len(t, logs, 1)
	assert.Equal(t, "retrying board page", logs[0].(map[string]interface{})["message"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/logs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/logs?limit=500", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	noLogs, _ := newTestServer(t, nil)
	resp, _ = do(t, http.MethodGet, noLogs.URL+"/api/logs", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
