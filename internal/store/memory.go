package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baxromumarov/jobradar/internal/model"
)

// MemoryStore mirrors Store for tests and database-less runs.
type MemoryStore struct {
	mu          sync.RWMutex
	alerts      map[string]model.AlertDefinition
	matches     map[string][]model.AlertMatch
	jobs        map[string]memJob
	enrichments map[string]model.Enrichment
	usage       []model.UsageRecord
	resume      *model.Resume
	now         func() time.Time
}

type memJob struct {
	posting   model.JobPosting
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:      map[string]model.AlertDefinition{},
		matches:     map[string][]model.AlertMatch{},
		jobs:        map[string]memJob{},
		enrichments: map[string]model.Enrichment{},
		now:         time.Now,
	}
}

func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) ListAlerts(context.Context) ([]model.AlertDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AlertDefinition, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (*model.AlertDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, a model.AlertDefinition) (*model.AlertDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := m.alerts[a.ID]; ok {
		return nil, fmt.Errorf("alert %s already exists", a.ID)
	}
	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.alerts[a.ID] = a
	return &a, nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a model.AlertDefinition) (*model.AlertDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.alerts[a.ID]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", a.ID, ErrNotFound)
	}
	a.CreatedAt = old.CreatedAt
	a.LastRun = old.LastRun
	a.UpdatedAt = m.now()
	m.alerts[a.ID] = a
	return &a, nil
}

func (m *MemoryStore) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[id]; !ok {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	delete(m.alerts, id)
	delete(m.matches, id)
	return nil
}

func (m *MemoryStore) UpdateSchedule(_ context.Context, alertID string, lastRun time.Time, nextRun *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil
	}
	a.LastRun = &lastRun
	a.NextRun = nextRun
	a.UpdatedAt = m.now()
	m.alerts[alertID] = a
	return nil
}

func (m *MemoryStore) MatchedJobIDs(_ context.Context, alertID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]bool, len(m.matches[alertID]))
	for _, match := range m.matches[alertID] {
		ids[match.JobID] = true
	}
	return ids, nil
}

func (m *MemoryStore) InsertMatch(_ context.Context, match model.AlertMatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[match.AlertID]; !ok {
		return false, fmt.Errorf("alert %s: %w", match.AlertID, ErrNotFound)
	}
	for _, existing := range m.matches[match.AlertID] {
		if existing.JobID == match.JobID {
			return false, nil
		}
	}
	if match.MatchedAt.IsZero() {
		match.MatchedAt = m.now()
	}
	m.matches[match.AlertID] = append(m.matches[match.AlertID], match)
	return true, nil
}

func (m *MemoryStore) RecentMatches(_ context.Context, alertID string, limit int) ([]model.AlertMatch, error) {
	limit = clampLimit(limit, 5, 100)
	m.mu.RLock()
	all := append([]model.AlertMatch(nil), m.matches[alertID]...)
	m.mu.RUnlock()

	// insertion order breaks ties, newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].MatchedAt.After(all[j].MatchedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []model.AlertMatch{}
	}
	return all, nil
}

func (m *MemoryStore) CountMatches(_ context.Context, alertID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches[alertID]), nil
}

func (m *MemoryStore) SaveJobs(_ context.Context, jobs []model.JobPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, j := range jobs {
		if j.ID == "" {
			continue
		}
		created := now
		if old, ok := m.jobs[j.ID]; ok {
			created = old.createdAt
			if old.posting.PostedAt != nil {
				j.PostedAt = old.posting.PostedAt
			}
		}
		j.RelevanceScore = nil
		m.jobs[j.ID] = memJob{posting: j, createdAt: created}
	}
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*model.JobPosting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	p := j.posting
	return &p, nil
}

func (m *MemoryStore) DeleteOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	var n int64
	for id, j := range m.jobs {
		ref := j.createdAt
		if j.posting.PostedAt != nil {
			ref = *j.posting.PostedAt
		}
		if ref.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.enrichments, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveEnrichment(_ context.Context, e model.Enrichment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[e.JobID]; !ok {
		return fmt.Errorf("job %s: %w", e.JobID, ErrNotFound)
	}
	if e.EnrichedAt.IsZero() {
		e.EnrichedAt = m.now()
	}
	m.enrichments[e.JobID] = e
	return nil
}

func (m *MemoryStore) GetEnrichment(_ context.Context, jobID string) (*model.Enrichment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrichments[jobID]
	if !ok {
		return nil, fmt.Errorf("enrichment %s: %w", jobID, ErrNotFound)
	}
	return &e, nil
}

func (m *MemoryStore) RecordUsage(_ context.Context, rec model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.usage = append(m.usage, rec)
	return nil
}

func (m *MemoryStore) CountUsage(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.usage {
		if !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) LoadResume(context.Context) (*model.Resume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.resume == nil {
		return nil, fmt.Errorf("resume: %w", ErrNotFound)
	}
	r := *m.resume
	return &r, nil
}

func (m *MemoryStore) SaveResume(_ context.Context, r model.Resume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resume = &r
	return nil
}
