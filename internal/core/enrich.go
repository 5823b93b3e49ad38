package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

var ErrNoJobURL = errors.New("job has no url to enrich from")

type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (string, error)
}

type ContactExtractor interface {
	ExtractContact(ctx context.Context, page, baseURL string) (model.Enrichment, error)
}

type JobCache interface {
	GetJob(ctx context.Context, id string) (*model.JobPosting, error)
}

type EnrichmentStore interface {
	SaveEnrichment(ctx context.Context, e model.Enrichment) error
}

type ExtractedContact struct {
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	EmailsFound []string `json:"emailsFound"`
	PhonesFound []string `json:"phonesFound"`
}

type EnrichResult struct {
	JobID      string           `json:"jobId"`
	Extracted  ExtractedContact `json:"extracted"`
	Enrichment model.Enrichment `json:"enrichment"`
	// Partial is set when only markup scanning ran.
	Partial bool   `json:"partial,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type Enricher struct {
	jobs      JobCache
	store     EnrichmentStore
	fetcher   PageFetcher
	extractor ContactExtractor
	now       func() time.Time
	logger    *slog.Logger
}

func NewEnricher(jobs JobCache, store EnrichmentStore, fetcher PageFetcher, extractor ContactExtractor) *Enricher {
	return &Enricher{
		jobs:      jobs,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		now:       time.Now,
		logger:    slog.With("component", "enrichment"),
	}
}

// Enrich fetches the posting page of a cached job and stores the contact
// details found on it. A refused or failed model call still persists what
// the markup scan found.
func (e *Enricher) Enrich(ctx context.Context, jobID string) (*EnrichResult, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.URL == "" || !urlutil.IsCrawlable(job.URL) {
		return nil, ErrNoJobURL
	}

	page, err := e.fetcher.FetchPage(ctx, job.URL)
	if err != nil {
		observability.IncError(observability.ClassifyFetchError(err), "enrichment")
		return nil, fmt.Errorf("fetch %s: %w", job.URL, err)
	}

	res := &EnrichResult{JobID: jobID}
	enr, err := e.extractor.ExtractContact(ctx, page, job.URL)
	if err != nil {
		res.Partial = true
		res.Warning = err.Error()
		if errors.Is(err, quota.ErrQuotaExceeded) {
			res.Warning = "llm quota exhausted, contact details come from markup only"
		}
		e.logger.Warn("contact extraction degraded", "job_id", jobID, "error", err)
	}
	enr.JobID = jobID
	enr.EnrichedAt = e.now()

	if err := e.store.SaveEnrichment(ctx, enr); err != nil {
		observability.IncError(observability.ErrorStore, "enrichment")
		return nil, fmt.Errorf("save enrichment: %w", err)
	}

	res.Enrichment = enr
	res.Extracted = ExtractedContact{
		Email:       enr.Email,
		Phone:       enr.Phone,
		EmailsFound: enr.EmailsFound,
		PhonesFound: enr.PhonesFound,
	}
	e.logger.Info("job enriched", "job_id", jobID, "emails", len(enr.EmailsFound), "phones", len(enr.PhonesFound))
	return res, nil
}
