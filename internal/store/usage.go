package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
)

func (s *Store) RecordUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ai_usage (feature, model, input_tokens, output_tokens, latency_ms, success, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, rec.Feature, rec.Model, rec.InputTokens, rec.OutputTokens, rec.LatencyMs, rec.Success, rec.Error, rec.CreatedAt)
	return err
}

func (s *Store) CountUsage(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_usage WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

// LoadResume returns the most recently saved resume document.
func (s *Store) LoadResume(ctx context.Context) (*model.Resume, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM resumes ORDER BY updated_at DESC, id DESC LIMIT 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resume: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r model.Resume
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode resume: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveResume(ctx context.Context, r model.Resume) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO resumes (name, document, updated_at) VALUES ($1, $2, NOW())`, r.Name, string(doc))
	return err
}
