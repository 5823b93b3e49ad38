package core

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/notify"
	"github.com/baxromumarov/jobradar/internal/observability"
)

const (
	// new matches only look back one day, whatever the schedule gap
	alertMaxAgeDays = 1
	alertLimit      = 100
	emailPreview    = 10
)

type AlertStore interface {
	ListAlerts(ctx context.Context) ([]model.AlertDefinition, error)
	MatchedJobIDs(ctx context.Context, alertID string) (map[string]bool, error)
	// InsertMatch reports false, not an error, when the match already exists.
	InsertMatch(ctx context.Context, m model.AlertMatch) (bool, error)
	UpdateSchedule(ctx context.Context, alertID string, lastRun time.Time, nextRun *time.Time) error
}

type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest) (*SearchResult, error)
}

type AlertResult struct {
	AlertID    string     `json:"alertId"`
	Name       string     `json:"name,omitempty"`
	JobsFound  int        `json:"jobsFound"`
	NewMatches int        `json:"newMatches"`
	Notified   bool       `json:"notified"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type RunSummary struct {
	Ran     int           `json:"ran"`
	Results []AlertResult `json:"results"`
}

type AlertRunner struct {
	store     AlertStore
	search    Searcher
	notifier  notify.Notifier
	recipient string
	now       func() time.Time
	logger    *slog.Logger
}

func NewAlertRunner(store AlertStore, search Searcher, notifier notify.Notifier, recipient string) *AlertRunner {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &AlertRunner{
		store:     store,
		search:    search,
		notifier:  notifier,
		recipient: recipient,
		now:       time.Now,
		logger:    slog.With("component", "alert_runner"),
	}
}

func (r *AlertRunner) WithClock(now func() time.Time) *AlertRunner {
	r.now = now
	return r
}

// RunDue runs every due alert one after another. A failing alert is
// recorded in the summary and the loop moves on.
func (r *AlertRunner) RunDue(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{Results: []AlertResult{}}
	alerts, err := r.store.ListAlerts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list alerts: %w", err)
	}

	now := r.now()
	for _, alert := range alerts {
		if !IsDue(alert, now) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		summary.Results = append(summary.Results, r.RunAlert(ctx, alert))
		summary.Ran++
	}
	r.logger.Info("alert run finished", "ran", summary.Ran)
	return summary, nil
}

// RunAlert searches for the alert, records unseen postings as matches and
// mails them. The schedule always advances, even after a failure.
func (r *AlertRunner) RunAlert(ctx context.Context, alert model.AlertDefinition) AlertResult {
	now := r.now()
	res := AlertResult{AlertID: alert.ID, Name: alert.Name}
	logger := r.logger.With("alert_id", alert.ID)

	defer func() {
		next := ComputeNextRun(alert.ScheduleHours, alert.ScheduleDays, now)
		if !alert.ScheduleEnabled {
			next = nil
		}
		res.NextRun = next
		if err := r.store.UpdateSchedule(ctx, alert.ID, now, next); err != nil {
			observability.IncError(observability.ErrorStore, "alert_runner")
			logger.Error("failed to update alert schedule", "error", err)
			res.Error = joinErr(res.Error, "schedule update failed: "+err.Error())
		}
	}()

	jobs, err := r.searchAlert(ctx, alert)
	if err != nil {
		res.Error = err.Error()
		logger.Warn("alert search failed", "error", err)
		observability.IncAlertRun(0)
		return res
	}
	res.JobsFound = len(jobs)

	seen, err := r.store.MatchedJobIDs(ctx, alert.ID)
	if err != nil {
		res.Error = "load matches: " + err.Error()
		observability.IncAlertRun(0)
		return res
	}

	var fresh []model.JobPosting
	for _, job := range jobs {
		if seen[job.ID] {
			continue
		}
		inserted, err := r.store.InsertMatch(ctx, model.AlertMatch{
			AlertID:   alert.ID,
			JobID:     job.ID,
			JobTitle:  job.Title,
			Company:   job.Company,
			JobURL:    job.URL,
			MatchedAt: now,
		})
		if err != nil {
			observability.IncError(observability.ErrorStore, "alert_runner")
			logger.Error("failed to record match", "job_id", job.ID, "error", err)
			res.Error = joinErr(res.Error, "record match: "+err.Error())
			continue
		}
		if inserted {
			fresh = append(fresh, job)
		}
	}
	res.NewMatches = len(fresh)
	observability.IncAlertRun(len(fresh))

	if alert.EmailOnMatch && len(fresh) > 0 && r.recipient != "" {
		if err := r.notifier.Send(ctx, matchEmail(r.recipient, alert, fresh)); err != nil {
			observability.IncError(observability.ErrorNotify, "alert_runner")
			logger.Error("failed to send match email", "error", err)
			res.Error = joinErr(res.Error, "notification failed: "+err.Error())
		} else {
			res.Notified = true
		}
	}
	logger.Info("alert ran", "jobs_found", res.JobsFound, "new_matches", res.NewMatches)
	return res
}

func (r *AlertRunner) searchAlert(ctx context.Context, alert model.AlertDefinition) ([]model.JobPosting, error) {
	countries := alert.Countries
	if len(countries) == 0 {
		countries = []string{model.CountryAll}
	}

	var all []model.JobPosting
	var errs []error
	for _, country := range countries {
		res, err := r.search.Search(ctx, model.SearchRequest{
			Keyword:    alert.Keyword,
			Country:    country,
			Sources:    alert.Sources,
			Filters:    alert.Filters,
			MaxAgeDays: alertMaxAgeDays,
			Limit:      alertLimit,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", country, err))
		}
		if res != nil {
			all = append(all, res.Jobs...)
		}
	}
	if len(errs) == len(countries) {
		return nil, errors.Join(errs...)
	}
	return Dedup(all), nil
}

func matchEmail(to string, alert model.AlertDefinition, jobs []model.JobPosting) notify.Email {
	subject := fmt.Sprintf("%d new jobs for %q", len(jobs), alert.Name)
	preview := jobs[:min(len(jobs), emailPreview)]

	var text, body strings.Builder
	fmt.Fprintf(&text, "Alert %q found %d new jobs.\n\n", alert.Name, len(jobs))
	fmt.Fprintf(&body, "<h2>%s</h2><p>%d new jobs</p><ul>", html.EscapeString(alert.Name), len(jobs))
	for _, j := range preview {
		company := firstNonBlank(j.Company, "Unknown company")
		fmt.Fprintf(&text, "- %s at %s\n  %s\n", j.Title, company, j.URL)
		fmt.Fprintf(&body, `<li><a href="%s">%s</a> at %s</li>`,
			html.EscapeString(j.URL), html.EscapeString(j.Title), html.EscapeString(company))
	}
	body.WriteString("</ul>")
	if rest := len(jobs) - len(preview); rest > 0 {
		fmt.Fprintf(&text, "\n...and %d more.\n", rest)
		fmt.Fprintf(&body, "<p>...and %d more.</p>", rest)
	}
	return notify.Email{To: to, Subject: subject, Text: text.String(), HTML: body.String()}
}

func joinErr(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
