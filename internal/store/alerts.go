package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/baxromumarov/jobradar/internal/model"
)

const alertColumns = `id, name, keyword, countries, sources, filters, is_active, schedule_enabled,
    schedule_hours, schedule_days, next_run, last_run, email_on_match, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (model.AlertDefinition, error) {
	var (
		a         model.AlertDefinition
		countries pq.StringArray
		sources   pq.StringArray
		hours     pq.Int64Array
		days      pq.Int64Array
		filters   []byte
		nextRun   sql.NullTime
		lastRun   sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Keyword,
		&countries,
		&sources,
		&filters,
		&a.IsActive,
		&a.ScheduleEnabled,
		&hours,
		&days,
		&nextRun,
		&lastRun,
		&a.EmailOnMatch,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return a, err
	}
	a.Countries = []string(countries)
	a.Sources = []string(sources)
	a.ScheduleHours = ints(hours)
	a.ScheduleDays = ints(days)
	if len(filters) > 0 {
		a.Filters = filters
	}
	a.NextRun = nullTime(nextRun)
	a.LastRun = nullTime(lastRun)
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context) ([]model.AlertDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []model.AlertDefinition{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) GetAlert(ctx context.Context, id string) (*model.AlertDefinition, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	created, err := scanAlert(s.db.QueryRowContext(ctx, `
INSERT INTO alerts (id, name, keyword, countries, sources, filters, is_active, schedule_enabled,
    schedule_hours, schedule_days, next_run, email_on_match, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
RETURNING `+alertColumns,
		a.ID, a.Name, a.Keyword, strArray(a.Countries), strArray(a.Sources), nullJSON(a.Filters),
		a.IsActive, a.ScheduleEnabled, intArray(a.ScheduleHours), intArray(a.ScheduleDays),
		a.NextRun, a.EmailOnMatch,
	))
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error) {
	updated, err := scanAlert(s.db.QueryRowContext(ctx, `
UPDATE alerts SET
    name = $2,
    keyword = $3,
    countries = $4,
    sources = $5,
    filters = $6,
    is_active = $7,
    schedule_enabled = $8,
    schedule_hours = $9,
    schedule_days = $10,
    next_run = $11,
    email_on_match = $12,
    updated_at = NOW()
WHERE id = $1
RETURNING `+alertColumns,
		a.ID, a.Name, a.Keyword, strArray(a.Countries), strArray(a.Sources), nullJSON(a.Filters),
		a.IsActive, a.ScheduleEnabled, intArray(a.ScheduleHours), intArray(a.ScheduleDays),
		a.NextRun, a.EmailOnMatch,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", a.ID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateSchedule(ctx context.Context, alertID string, lastRun time.Time, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE alerts
SET last_run = $2, next_run = $3, updated_at = NOW()
WHERE id = $1
`, alertID, lastRun, nextRun)
	return err
}

func (s *Store) MatchedJobIDs(ctx context.Context, alertID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id FROM alert_matches WHERE alert_id = $1`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// InsertMatch reports whether a row was written; an existing
// (alert, job) pair is left alone.
func (s *Store) InsertMatch(ctx context.Context, m model.AlertMatch) (bool, error) {
	if m.MatchedAt.IsZero() {
		m.MatchedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO alert_matches (alert_id, job_id, job_title, company, job_url, matched_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (alert_id, job_id) DO NOTHING
`, m.AlertID, m.JobID, m.JobTitle, m.Company, m.JobURL, m.MatchedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) RecentMatches(ctx context.Context, alertID string, limit int) ([]model.AlertMatch, error) {
	limit = clampLimit(limit, 5, 100)
	rows, err := s.db.QueryContext(ctx, `
SELECT alert_id, job_id, job_title, company, job_url, matched_at
FROM alert_matches
WHERE alert_id = $1
ORDER BY matched_at DESC, id DESC
LIMIT $2
`, alertID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []model.AlertMatch{}
	for rows.Next() {
		var m model.AlertMatch
		if err := rows.Scan(&m.AlertID, &m.JobID, &m.JobTitle, &m.Company, &m.JobURL, &m.MatchedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) CountMatches(ctx context.Context, alertID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_matches WHERE alert_id = $1`, alertID).Scan(&n)
	return n, err
}
