package store

import (
	"context"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
)

// Backend is everything the server needs from persistence. Store and
// MemoryStore both satisfy it.
type Backend interface {
	ListAlerts(ctx context.Context) ([]model.AlertDefinition, error)
	GetAlert(ctx context.Context, id string) (*model.AlertDefinition, error)
	CreateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error)
	UpdateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error)
	DeleteAlert(ctx context.Context, id string) error
	UpdateSchedule(ctx context.Context, alertID string, lastRun time.Time, nextRun *time.Time) error
	MatchedJobIDs(ctx context.Context, alertID string) (map[string]bool, error)
	InsertMatch(ctx context.Context, m model.AlertMatch) (bool, error)
	RecentMatches(ctx context.Context, alertID string, limit int) ([]model.AlertMatch, error)
	CountMatches(ctx context.Context, alertID string) (int, error)

	SaveJobs(ctx context.Context, jobs []model.JobPosting) error
	GetJob(ctx context.Context, id string) (*model.JobPosting, error)
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	SaveEnrichment(ctx context.Context, e model.Enrichment) error
	GetEnrichment(ctx context.Context, jobID string) (*model.Enrichment, error)

	RecordUsage(ctx context.Context, rec model.UsageRecord) error
	CountUsage(ctx context.Context, since time.Time) (int, error)
	LoadResume(ctx context.Context) (*model.Resume, error)
	SaveResume(ctx context.Context, r model.Resume) error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*MemoryStore)(nil)
)
