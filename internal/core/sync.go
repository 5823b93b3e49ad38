package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/scraper"
	"github.com/baxromumarov/jobradar/internal/tasks"
)

var ErrUnknownSource = errors.New("unknown source")

const (
	TaskKindSync    = "source_sync"
	defaultMaxPages = 5
	maxSyncPages    = 50
	syncPageSize    = 50
)

type SyncRequest struct {
	Source   string `json:"source"`
	Keyword  string `json:"keyword,omitempty"`
	Country  string `json:"country,omitempty"`
	MaxPages int    `json:"maxPages,omitempty"`
}

// SyncService copies one source into the job cache in the background.
type SyncService struct {
	registry *scraper.Registry
	sink     JobSink
	runner   *tasks.Runner
	logger   *slog.Logger
}

func NewSyncService(registry *scraper.Registry, sink JobSink, runner *tasks.Runner) *SyncService {
	return &SyncService{
		registry: registry,
		sink:     sink,
		runner:   runner,
		logger:   slog.With("component", "sync"),
	}
}

// Start validates the request and returns the task id at once.
func (s *SyncService) Start(req SyncRequest) (string, error) {
	adapter, ok := s.registry.Get(req.Source)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownSource, req.Source)
	}
	if req.MaxPages <= 0 {
		req.MaxPages = defaultMaxPages
	}
	req.MaxPages = min(req.MaxPages, maxSyncPages)

	return s.runner.Submit(TaskKindSync, func(ctx context.Context, h tasks.Handle) error {
		return s.run(ctx, h, adapter, req)
	})
}

func (s *SyncService) run(ctx context.Context, h tasks.Handle, adapter scraper.Adapter, req SyncRequest) error {
	logger := s.logger.With("task_id", h.ID(), "source", adapter.Name())
	seen := map[string]bool{}
	saved := 0

	for page := 1; page <= req.MaxPages; page++ {
		if h.StopRequested() {
			logger.Info("sync stopped on request", "page", page, "saved", saved)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		pageCtx, cancel := context.WithTimeout(ctx, adapter.Timeout())
		postings, err := adapter.Fetch(pageCtx, model.SearchRequest{
			Keyword:  req.Keyword,
			Country:  req.Country,
			Page:     page,
			PageSize: syncPageSize,
			Limit:    syncPageSize,
		})
		cancel()
		if err != nil {
			observability.IncError(observability.ClassifyScrapeError(err), "sync")
			return fmt.Errorf("%s page %d: %w", adapter.Name(), page, err)
		}

		// sources without paging hand back the same postings every time
		var fresh []model.JobPosting
		for _, p := range postings {
			if !seen[p.ID] {
				seen[p.ID] = true
				fresh = append(fresh, p)
			}
		}
		if len(fresh) == 0 {
			logger.Info("sync reached the last page", "page", page, "saved", saved)
			break
		}
		if err := s.sink.SaveJobs(ctx, fresh); err != nil {
			observability.IncError(observability.ErrorStore, "sync")
			return fmt.Errorf("save page %d: %w", page, err)
		}
		saved += len(fresh)
		observability.AddPostingsFetched(adapter.Name(), len(fresh))
		h.Progress(saved, fmt.Sprintf("page %d of %d", page, req.MaxPages))
	}
	return nil
}
