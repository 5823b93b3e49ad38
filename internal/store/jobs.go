package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/baxromumarov/jobradar/internal/model"
)

// SaveJobs upserts postings by id. An existing posted_at is kept.
func (s *Store) SaveJobs(ctx context.Context, jobs []model.JobPosting) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO jobs (id, title, company, location, salary, job_type, description, tags, url, source, country, posted_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    company = EXCLUDED.company,
    location = EXCLUDED.location,
    salary = EXCLUDED.salary,
    job_type = EXCLUDED.job_type,
    description = EXCLUDED.description,
    tags = EXCLUDED.tags,
    url = EXCLUDED.url,
    country = EXCLUDED.country,
    posted_at = COALESCE(jobs.posted_at, EXCLUDED.posted_at),
    updated_at = NOW()
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range jobs {
		if j.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			j.ID, j.Title, j.Company, j.Location, j.Salary, j.JobType, j.Description,
			strArray(j.Tags), j.URL, j.Source, j.Country, j.PostedAt,
		); err != nil {
			return fmt.Errorf("save job %s: %w", j.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.JobPosting, error) {
	var (
		j        model.JobPosting
		tags     pq.StringArray
		postedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, company, location, salary, job_type, description, tags, url, source, country, posted_at
FROM jobs
WHERE id = $1
`, id).Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Salary, &j.JobType, &j.Description,
		&tags, &j.URL, &j.Source, &j.Country, &postedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	j.Tags = []string(tags)
	j.PostedAt = nullTime(postedAt)
	return &j, nil
}

func (s *Store) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE COALESCE(posted_at, created_at) < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SaveEnrichment(ctx context.Context, e model.Enrichment) error {
	if e.EnrichedAt.IsZero() {
		e.EnrichedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_enrichments (job_id, email, phone, emails_found, phones_found, requirements, benefits,
    application_process, salary, work_mode, contract_type, enriched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (job_id) DO UPDATE SET
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    emails_found = EXCLUDED.emails_found,
    phones_found = EXCLUDED.phones_found,
    requirements = EXCLUDED.requirements,
    benefits = EXCLUDED.benefits,
    application_process = EXCLUDED.application_process,
    salary = EXCLUDED.salary,
    work_mode = EXCLUDED.work_mode,
    contract_type = EXCLUDED.contract_type,
    enriched_at = EXCLUDED.enriched_at
`, e.JobID, e.Email, e.Phone, strArray(e.EmailsFound), strArray(e.PhonesFound),
		strArray(e.Requirements), strArray(e.Benefits), e.ApplicationProcess,
		e.Salary, e.WorkMode, e.ContractType, e.EnrichedAt)
	return err
}

func (s *Store) GetEnrichment(ctx context.Context, jobID string) (*model.Enrichment, error) {
	var e model.Enrichment
	var emails, phones, reqs, bens pq.StringArray
	err := s.db.QueryRowContext(ctx, `
SELECT job_id, email, phone, emails_found, phones_found, requirements, benefits,
    application_process, salary, work_mode, contract_type, enriched_at
FROM job_enrichments
WHERE job_id = $1
`, jobID).Scan(&e.JobID, &e.Email, &e.Phone, &emails, &phones, &reqs, &bens,
		&e.ApplicationProcess, &e.Salary, &e.WorkMode, &e.ContractType, &e.EnrichedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("enrichment %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.EmailsFound, e.PhonesFound = []string(emails), []string(phones)
	e.Requirements, e.Benefits = []string(reqs), []string(bens)
	return &e, nil
}
