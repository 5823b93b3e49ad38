package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/notify"
	"github.com/baxromumarov/jobradar/internal/scraper"
)

type fakeAdapter struct {
	name     string
	postings []model.JobPosting
	err      error
	delay    time.Duration
	timeout  time.Duration
	panics   bool

	mu    sync.Mutex
	calls []model.SearchRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Timeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return time.Second
}

func (f *fakeAdapter) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.panics {
		panic("adapter exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.JobPosting, len(f.postings))
	copy(out, f.postings)
	for i := range out {
		if out[i].Source == "" {
			out[i].Source = f.name
		}
	}
	return out, nil
}

func (f *fakeAdapter) Calls() []model.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SearchRequest(nil), f.calls...)
}

func newRegistry(t *testing.T, adapters ...scraper.Adapter) *scraper.Registry {
	t.Helper()
	reg, err := scraper.NewRegistry(adapters...)
	require.NoError(t, err)
	return reg
}

func job(id, title, company, url string) model.JobPosting {
	return model.JobPosting{ID: id, Title: title, Company: company, URL: url}
}

func at(t time.Time) *time.Time { return &t }

var errUpstream = errors.New("upstream 500")

type alertStoreFake struct {
	mu        sync.Mutex
	alerts    []model.AlertDefinition
	matches   map[string]map[string]model.AlertMatch
	schedules map[string]*time.Time
	lastRuns  map[string]time.Time
	insertErr error
	listErr   error
}

func newAlertStoreFake(alerts ...model.AlertDefinition) *alertStoreFake {
	return &alertStoreFake{
		alerts:    alerts,
		matches:   map[string]map[string]model.AlertMatch{},
		schedules: map[string]*time.Time{},
		lastRuns:  map[string]time.Time{},
	}
}

func (s *alertStoreFake) ListAlerts(context.Context) ([]model.AlertDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AlertDefinition(nil), s.alerts...), s.listErr
}

func (s *alertStoreFake) MatchedJobIDs(_ context.Context, alertID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for id := range s.matches[alertID] {
		out[id] = true
	}
	return out, nil
}

func (s *alertStoreFake) InsertMatch(_ context.Context, m model.AlertMatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if s.matches[m.AlertID] == nil {
		s.matches[m.AlertID] = map[string]model.AlertMatch{}
	}
	if _, ok := s.matches[m.AlertID][m.JobID]; ok {
		return false, nil
	}
	s.matches[m.AlertID][m.JobID] = m
	return true, nil
}

func (s *alertStoreFake) UpdateSchedule(_ context.Context, alertID string, lastRun time.Time, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[alertID] = nextRun
	s.lastRuns[alertID] = lastRun
	return nil
}

func (s *alertStoreFake) matchCount(alertID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches[alertID])
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, e notify.Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, e)
	return nil
}
