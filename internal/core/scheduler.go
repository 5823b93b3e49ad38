package core

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
)

const (
	AlertDisabled  = "disabled"
	AlertScheduled = "scheduled"
	AlertDue       = "due"
)

// ComputeNextRun returns the soonest time after now whose hour is in hours
// and whose weekday (0 = Sunday) is in days. Later hours today win;
// otherwise the next allowed day within a week runs at its earliest hour.
// No valid hour means the alert is paused and nil is returned.
func ComputeNextRun(hours, days []int, now time.Time) *time.Time {
	validHours := normalizeSet(hours, 0, 23)
	if len(validHours) == 0 {
		return nil
	}
	validDays := normalizeSet(days, 0, 6)
	allowedDay := func(wd time.Weekday) bool {
		if len(validDays) == 0 {
			return true
		}
		for _, d := range validDays {
			if d == int(wd) {
				return true
			}
		}
		return false
	}

	loc := now.Location()
	if allowedDay(now.Weekday()) {
		for _, h := range validHours {
			if h > now.Hour() {
				t := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, loc)
				return &t
			}
		}
	}
	for offset := 1; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		if allowedDay(day.Weekday()) {
			t := time.Date(day.Year(), day.Month(), day.Day(), validHours[0], 0, 0, 0, loc)
			return &t
		}
	}
	return nil
}

func normalizeSet(vals []int, lo, hi int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range vals {
		if v < lo || v > hi || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func IsDue(alert model.AlertDefinition, now time.Time) bool {
	return alert.IsActive && alert.ScheduleEnabled && alert.NextRun != nil && !alert.NextRun.After(now)
}

// AlertState places an alert in the disabled -> scheduled -> due cycle.
func AlertState(alert model.AlertDefinition, now time.Time) string {
	switch {
	case !alert.IsActive || !alert.ScheduleEnabled || alert.NextRun == nil:
		return AlertDisabled
	case IsDue(alert, now):
		return AlertDue
	}
	return AlertScheduled
}

// Reschedule refreshes NextRun after a user edit.
func Reschedule(alert *model.AlertDefinition, now time.Time) {
	if !alert.ScheduleEnabled {
		alert.NextRun = nil
		return
	}
	alert.NextRun = ComputeNextRun(alert.ScheduleHours, alert.ScheduleDays, now)
}

type JobPruner interface {
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PruneJobs drops cached postings older than retention.
func PruneJobs(ctx context.Context, pruner JobPruner, retention time.Duration) {
	logger := slog.With("component", "retention")
	count, err := pruner.DeleteOldJobs(ctx, retention)
	if err != nil {
		logger.Error("failed to prune cached jobs", "error", err)
		return
	}
	if count > 0 {
		logger.Info("pruned cached jobs", "deleted", count)
	}
}
