package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
	"github.com/baxromumarov/jobradar/internal/scraper"
)

var ErrAllSourcesFailed = errors.New("all sources failed")

const (
	StatusOK            = "ok"
	StatusEmpty         = "empty"
	StatusError         = "error"
	StatusQuotaExceeded = "quota_exceeded"
	StatusTimeout       = "timeout"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 100
	defaultConcurrency = 8
	defaultDeadline    = 60 * time.Second
)

type SearchResult struct {
	Jobs       []model.JobPosting `json:"jobs"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
	HasMore    bool               `json:"hasMore"`
	APIs       map[string]string  `json:"apis"`
	Cached     bool               `json:"cached,omitempty"`
}

// MergedResult is the unpaginated outcome of one fan-out.
type MergedResult struct {
	Jobs      []model.JobPosting `json:"jobs"`
	APIs      map[string]string  `json:"apis"`
	FromCache bool               `json:"-"`
}

// SearchCache stores merged results keyed by request. Load returns nil on a miss.
type SearchCache interface {
	Load(ctx context.Context, key string) (*MergedResult, error)
	Store(ctx context.Context, key string, v *MergedResult) error
}

// JobSink receives every merged posting so it can be enriched later.
type JobSink interface {
	SaveJobs(ctx context.Context, jobs []model.JobPosting) error
}

type Aggregator struct {
	registry    *scraper.Registry
	cache       SearchCache
	sink        JobSink
	concurrency int
	deadline    time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewAggregator(registry *scraper.Registry) *Aggregator {
	return &Aggregator{
		registry:    registry,
		concurrency: defaultConcurrency,
		deadline:    defaultDeadline,
		now:         time.Now,
		logger:      slog.With("component", "aggregator"),
	}
}

func (a *Aggregator) WithCache(c SearchCache) *Aggregator {
	a.cache = c
	return a
}

func (a *Aggregator) WithSink(s JobSink) *Aggregator {
	a.sink = s
	return a
}

// WithLimits bounds parallel adapter calls and the whole fan-out.
func (a *Aggregator) WithLimits(concurrency int, deadline time.Duration) *Aggregator {
	if concurrency > 0 {
		a.concurrency = concurrency
	}
	if deadline > 0 {
		a.deadline = deadline
	}
	return a
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

func (a *Aggregator) Registry() *scraper.Registry {
	return a.registry
}

// Search fans out to the selected adapters and returns one merged page.
// Adapter failures only show up in APIs unless every adapter failed, in
// which case the result is still returned alongside ErrAllSourcesFailed.
func (a *Aggregator) Search(ctx context.Context, req model.SearchRequest) (*SearchResult, error) {
	observability.IncSearch()

	merged, err := a.Collect(ctx, req)
	if merged == nil {
		return nil, err
	}
	res := paginate(merged.Jobs, req)
	res.APIs = merged.APIs
	res.Cached = merged.FromCache
	return res, err
}

// Collect returns the merged, filtered and sorted postings without
// pagination. Results come from the cache when one is configured.
func (a *Aggregator) Collect(ctx context.Context, req model.SearchRequest) (*MergedResult, error) {
	key := cacheKey(req)
	if a.cache != nil {
		hit, err := a.cache.Load(ctx, key)
		if err != nil {
			a.logger.Warn("search cache load failed", "error", err)
		} else if hit != nil {
			hit.FromCache = true
			return hit, nil
		}
	}

	adapters := a.registry.Select(req.Sources)
	apis := make(map[string]string, len(adapters))
	if len(adapters) == 0 {
		return &MergedResult{Jobs: []model.JobPosting{}, APIs: apis}, nil
	}

	results, err := a.fanOut(ctx, adapters, req)
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range results {
		apis[r.name] = r.status
		switch r.status {
		case StatusError, StatusTimeout, StatusQuotaExceeded:
			failed++
		}
	}

	jobs := merge(results)
	jobs = FilterByAge(jobs, req.MaxAgeDays, a.now())
	SortPostings(jobs, req.SortBy)

	out := &MergedResult{Jobs: jobs, APIs: apis}
	if failed == len(adapters) {
		return out, ErrAllSourcesFailed
	}

	if a.sink != nil && len(jobs) > 0 {
		if err := a.sink.SaveJobs(ctx, jobs); err != nil {
			observability.IncError(observability.ErrorStore, "aggregator")
			a.logger.Warn("job sink failed", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Store(ctx, key, out); err != nil {
			a.logger.Warn("search cache store failed", "error", err)
		}
	}
	return out, nil
}

type sourceResult struct {
	name     string
	priority int
	finished int
	postings []model.JobPosting
	status   string
}

// fanOut returns once every adapter reported or the global deadline passed.
// Adapters still running at the deadline are reported as timed out and
// whatever they return later is dropped.
func (a *Aggregator) fanOut(ctx context.Context, adapters []scraper.Adapter, req model.SearchRequest) ([]sourceResult, error) {
	fctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	results := make([]sourceResult, len(adapters))
	var mu sync.Mutex
	finished := 0
	closed := false

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, adapter := range adapters {
			g.Go(func() error {
				actx, cancel := context.WithTimeout(fctx, adapter.Timeout())
				defer cancel()

				start := time.Now()
				postings, err := safeFetch(actx, adapter, req)
				elapsed := time.Since(start)
				status := fetchStatus(actx, postings, err)
				if err != nil {
					postings = nil
				}

				mu.Lock()
				if closed {
					mu.Unlock()
					return nil
				}
				results[i] = sourceResult{
					name:     adapter.Name(),
					priority: i,
					finished: finished,
					postings: postings,
					status:   status,
				}
				finished++
				mu.Unlock()

				a.record(adapter.Name(), status, len(postings), elapsed, err)
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-fctx.Done():
	}

	// the caller gave up; partial results are not useful
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true
	out := make([]sourceResult, len(results))
	for i, r := range results {
		if r.status == "" {
			r = sourceResult{name: adapters[i].Name(), priority: i, finished: finished, status: StatusTimeout}
			finished++
			a.record(r.name, StatusTimeout, 0, a.deadline, context.DeadlineExceeded)
		}
		out[i] = r
	}
	return out, nil
}

func (a *Aggregator) record(name, status string, n int, elapsed time.Duration, err error) {
	observability.IncSourceStatus(name, status)
	observability.ObserveAdapterDuration(name, elapsed.Seconds())
	if err != nil {
		observability.IncError(observability.ClassifyScrapeError(err), "adapter_"+name)
		a.logger.Warn("adapter failed", "source", name, "status", status, "error", err, "elapsed", elapsed)
		return
	}
	observability.AddPostingsFetched(name, n)
}

func safeFetch(ctx context.Context, adapter scraper.Adapter, req model.SearchRequest) (postings []model.JobPosting, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", scraper.ErrSourceUnavailable, adapter.Name(), r)
			postings = nil
		}
	}()
	return adapter.Fetch(ctx, req)
}

func fetchStatus(ctx context.Context, postings []model.JobPosting, err error) string {
	switch {
	case err == nil && len(postings) > 0:
		return StatusOK
	case err == nil:
		return StatusEmpty
	case errors.Is(err, quota.ErrQuotaExceeded):
		return StatusQuotaExceeded
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return StatusTimeout
	}
	return StatusError
}

// merge dedups in priority order and emits in completion order.
func merge(results []sourceResult) []model.JobPosting {
	var flat []model.JobPosting
	offsets := make([]int, len(results))
	for i, r := range results {
		offsets[i] = len(flat)
		flat = append(flat, r.postings...)
	}
	keep := dedupMask(flat)

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return results[order[x]].finished < results[order[y]].finished
	})

	out := make([]model.JobPosting, 0, len(flat))
	for _, idx := range order {
		for j := range results[idx].postings {
			if keep[offsets[idx]+j] {
				out = append(out, flat[offsets[idx]+j])
			}
		}
	}
	return out
}

func paginate(jobs []model.JobPosting, req model.SearchRequest) *SearchResult {
	total := len(jobs)
	if req.Limit > 0 {
		n := min(req.Limit, total)
		return &SearchResult{
			Jobs:       jobs[:n],
			Total:      total,
			Page:       1,
			PageSize:   req.Limit,
			TotalPages: 1,
			HasMore:    total > n,
		}
	}

	page := max(req.Page, 1)
	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	totalPages := (total + size - 1) / size
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return &SearchResult{
		Jobs:       jobs[start:end],
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// cacheKey identifies a fan-out. Page and page size only matter through
// the per-source fetch limit.
func cacheKey(req model.SearchRequest) string {
	sources := make([]string, 0, len(req.Sources))
	for _, s := range req.Sources {
		for _, part := range strings.Split(s, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				sources = append(sources, part)
			}
		}
	}
	sort.Strings(sources)
	country := req.Country
	if country == "" {
		country = model.CountryAll
	}
	return fmt.Sprintf("search:%s|%s|%s|%s|%s|%s|%d|%d|%s",
		strings.ToLower(strings.TrimSpace(req.Keyword)),
		strings.ToLower(strings.TrimSpace(req.Location)),
		strings.ToLower(strings.TrimSpace(req.Category)),
		country,
		strings.Join(sources, ","),
		req.SortBy,
		req.MaxAgeDays,
		scraper.SourceLimit(req),
		string(req.Filters),
	)
}
