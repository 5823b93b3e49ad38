package quota

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
)

type UsageStore interface {
	RecordUsage(ctx context.Context, rec model.UsageRecord) error
}

// Recorder persists usage telemetry off the caller's path. Track never
// blocks; records are dropped when the buffer is full.
type Recorder struct {
	store   UsageStore
	ch      chan model.UsageRecord
	logger  *slog.Logger
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewRecorder(store UsageStore, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:  store,
		ch:     make(chan model.UsageRecord, buffer),
		logger: slog.With("component", "usage_recorder"),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

func (r *Recorder) Track(rec model.UsageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("usage buffer full, dropping record", "feature", rec.Feature)
	}
}

func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting records and waits for the buffer to flush.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for rec := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.RecordUsage(ctx, rec); err != nil {
			r.logger.Error("failed to record usage", "feature", rec.Feature, "error", err)
		}
		cancel()
	}
}
