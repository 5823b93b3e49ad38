// Package extract recovers job postings from pages whose markup no
// structural parser understands, by asking a language model. Every call is
// gated by the extraction quota and reported to the usage recorder.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/baxromumarov/jobradar/internal/ai"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
)

var ErrExtractionFailed = errors.New("extraction failed")

const (
	FeatureExtractJobs   = "extract_jobs"
	FeatureEnrichContact = "enrich_contact"

	sampleLength   = 2000
	maxJobsPerPage = 50
)

// UsageSink receives one record per model invocation. It must not block.
type UsageSink interface {
	Track(rec model.UsageRecord)
}

// Attempt describes the most recent invocation, for debugging.
type Attempt struct {
	Feature     string             `json:"feature"`
	Source      string             `json:"source,omitempty"`
	InputSample string             `json:"inputSample"`
	RawOutput   string             `json:"rawOutput"`
	Postings    []model.JobPosting `json:"postings"`
	Error       string             `json:"error,omitempty"`
	At          time.Time          `json:"at"`
}

type Fallback struct {
	client  ai.Client
	tracker quota.Tracker
	usage   UsageSink
	logger  *slog.Logger

	mu   sync.Mutex
	last *Attempt
}

func New(client ai.Client, tracker quota.Tracker, usage UsageSink) *Fallback {
	return &Fallback{
		client:  client,
		tracker: tracker,
		usage:   usage,
		logger:  slog.With("component", "extraction"),
	}
}

// Extract asks the model for the postings on page. Output that holds no
// parseable JSON yields an empty list and no error.
func (f *Fallback) Extract(ctx context.Context, page, sourceLabel, baseURL string) (postings []model.JobPosting, err error) {
	if _, err := f.tracker.Reserve(ctx); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			observability.IncError(observability.ErrorQuota, "extraction")
			f.logger.Warn("extraction skipped, quota exhausted", "source", sourceLabel)
		}
		return nil, err
	}

	cleaned := CleanHTML(page)
	attempt := &Attempt{
		Feature:     FeatureExtractJobs,
		Source:      sourceLabel,
		InputSample: sample(cleaned),
		At:          time.Now(),
	}
	rec := model.UsageRecord{Feature: FeatureExtractJobs, Model: f.client.Model()}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrExtractionFailed, r)
			postings = nil
		}
		rec.LatencyMs = time.Since(start).Milliseconds()
		rec.Success = err == nil && attempt.Error == ""
		if err != nil {
			attempt.Error = err.Error()
		}
		rec.Error = attempt.Error
		attempt.Postings = postings
		f.finish(attempt, rec)
	}()

	prompt := jobsPrompt(cleaned, sourceLabel, maxJobsPerPage)
	completion, err := f.client.Complete(ctx, prompt)
	rec.InputTokens, rec.OutputTokens = tokenCounts(prompt, completion)
	if completion.Model != "" {
		rec.Model = completion.Model
	}
	if err != nil {
		observability.IncError(observability.ErrorAI, "extraction")
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, sourceLabel, err)
	}
	attempt.RawOutput = completion.Text

	jobs, perr := parseJobs(completion.Text)
	if perr != nil {
		attempt.Error = fmt.Sprintf("%v: unparseable output: %v", ErrExtractionFailed, perr)
		observability.IncError(observability.ErrorParsing, "extraction")
		f.logger.Warn("model output had no job list", "source", sourceLabel, "error", perr)
		return []model.JobPosting{}, nil
	}

	postings = toPostings(jobs, sourceLabel, baseURL)
	if len(postings) > maxJobsPerPage {
		postings = postings[:maxJobsPerPage]
	}
	f.logger.Info("extraction finished", "source", sourceLabel, "postings", len(postings),
		"input_tokens", rec.InputTokens, "output_tokens", rec.OutputTokens)
	return postings, nil
}

// LastAttempt returns a copy of the most recent invocation, or nil.
func (f *Fallback) LastAttempt() *Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return nil
	}
	cp := *f.last
	cp.Postings = append([]model.JobPosting(nil), f.last.Postings...)
	return &cp
}

// Quota reports the current budget without reserving.
func (f *Fallback) Quota(ctx context.Context) (model.QuotaState, error) {
	return f.tracker.Check(ctx)
}

func (f *Fallback) finish(attempt *Attempt, rec model.UsageRecord) {
	f.mu.Lock()
	f.last = attempt
	f.mu.Unlock()

	observability.IncExtractionCall(rec.Feature, rec.Success)
	if f.usage != nil {
		rec.CreatedAt = time.Now()
		f.usage.Track(rec)
	}
}

func tokenCounts(prompt string, c ai.Completion) (int, int) {
	in, out := c.InputTokens, c.OutputTokens
	if in <= 0 {
		in = ai.EstimateTokens(prompt)
	}
	if out <= 0 {
		out = ai.EstimateTokens(c.Text)
	}
	return in, out
}

func sample(s string) string {
	if len(s) <= sampleLength {
		return s
	}
	cut := s[:sampleLength]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
