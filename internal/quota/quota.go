package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
)

var ErrQuotaExceeded = errors.New("extraction quota exceeded")

// Tracker gates language model calls on daily and monthly budgets.
type Tracker interface {
	// Check reads the counters without reserving.
	Check(ctx context.Context) (model.QuotaState, error)
	// Reserve atomically checks the limits and counts one call. It returns
	// ErrQuotaExceeded without counting when either budget is spent.
	Reserve(ctx context.Context) (model.QuotaState, error)
}

type Limits struct {
	Daily          int     `yaml:"daily"`
	Monthly        int     `yaml:"monthly"`
	AlertThreshold float64 `yaml:"alert_threshold"`
}

// UsageCounter reports how many calls were recorded since a point in time.
type UsageCounter interface {
	CountUsage(ctx context.Context, since time.Time) (int, error)
}

type MemoryTracker struct {
	mu      sync.Mutex
	limits  Limits
	now     func() time.Time
	day     string
	month   string
	daily   int
	monthly int
}

func NewMemoryTracker(limits Limits) *MemoryTracker {
	return &MemoryTracker{limits: limits, now: time.Now}
}

// WithClock replaces time.Now, mostly for tests.
func (t *MemoryTracker) WithClock(now func() time.Time) *MemoryTracker {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
	return t
}

func (t *MemoryTracker) Check(_ context.Context) (model.QuotaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.stateLocked(), nil
}

func (t *MemoryTracker) Reserve(_ context.Context) (model.QuotaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	state := t.stateLocked()
	if !state.WithinLimits() {
		return state, ErrQuotaExceeded
	}
	t.daily++
	t.monthly++
	return t.stateLocked(), nil
}

// Set overwrites the counters, used when seeding from persisted usage.
func (t *MemoryTracker) Set(daily, monthly int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	t.daily = daily
	t.monthly = monthly
}

// Refresh reloads both counters from persisted usage.
func (t *MemoryTracker) Refresh(ctx context.Context, counter UsageCounter) error {
	now := t.clock()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	daily, err := counter.CountUsage(ctx, dayStart)
	if err != nil {
		return err
	}
	monthly, err := counter.CountUsage(ctx, monthStart)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	// in-flight reservations may not be persisted yet
	t.daily = max(t.daily, daily)
	t.monthly = max(t.monthly, monthly)
	return nil
}

func (t *MemoryTracker) clock() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now()
}

func (t *MemoryTracker) rollLocked() {
	now := t.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if month != t.month {
		t.month = month
		t.monthly = 0
	}
	if day != t.day {
		t.day = day
		t.daily = 0
	}
}

func (t *MemoryTracker) stateLocked() model.QuotaState {
	return model.QuotaState{
		DailyUsed:      t.daily,
		MonthlyUsed:    t.monthly,
		DailyLimit:     t.limits.Daily,
		MonthlyLimit:   t.limits.Monthly,
		AlertThreshold: t.limits.AlertThreshold,
	}
}
