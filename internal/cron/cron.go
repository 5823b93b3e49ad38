// Package cron runs the in-process periodic jobs: due alerts, job cache
// retention, quota counter refresh and search cache sweeping.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/baxromumarov/jobradar/internal/observability"
)

// Job is one named unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func Func(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Scheduler wraps robfig/cron. Overlapping runs of one job are skipped.
type Scheduler struct {
	cron   *robfig.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func New() *Scheduler {
	logger := slog.With("component", "cron")
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: robfig.New(
			robfig.WithLogger(cl),
			robfig.WithChain(robfig.Recover(cl), robfig.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Add registers job under a standard five-field spec or a descriptor such
// as "@every 1m".
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddJob(spec, s.build(job)); err != nil {
		return fmt.Errorf("cron.AddJob %s (%q): %w", job.Name(), spec, err)
	}
	s.logger.Info("cron job registered", "job", job.Name(), "spec", spec)
	return nil
}

func (s *Scheduler) build(job Job) robfig.Job {
	name := job.Name()
	return robfig.FuncJob(func() {
		start := time.Now()
		s.logger.Debug("cron job started", "job", name)
		if err := job.Run(s.ctx); err != nil {
			observability.IncError(observability.ErrorUnknown, "cron:"+name)
			s.logger.Error("cron job failed", "job", name, "error", err)
		}
		s.logger.Debug("cron job finished", "job", name, "duration", time.Since(start))
	})
}

func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron started", "jobs", s.Len())
}

// Stop prevents new runs, cancels the context handed to running jobs and
// waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron stop: %w", ctx.Err())
	}
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
