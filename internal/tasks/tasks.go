package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	StateRunning   = "running"
	StateStopping  = "stopping"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrNotRunning   = errors.New("task is not running")
	ErrRunnerClosed = errors.New("task runner closed")
)

type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	State      string     `json:"state"`
	Processed  int        `json:"processed"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (t Task) Done() bool {
	return t.State == StateCompleted || t.State == StateFailed || t.State == StateCancelled
}

type Registry interface {
	Create(kind string) Task
	Get(id string) (Task, error)
	List() []Task
	RequestStop(id string) error
	Update(id string, fn func(*Task)) error
}

// MemoryRegistry keeps tasks for the life of the process.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tasks: make(map[string]*Task), now: time.Now}
}

func (r *MemoryRegistry) Create(kind string) Task {
	t := &Task{ID: uuid.NewString(), Kind: kind, State: StateRunning, StartedAt: r.now()}
	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()
	return *t
}

func (r *MemoryRegistry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *t, nil
}

// List returns tasks newest first.
func (r *MemoryRegistry) List() []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (r *MemoryRegistry) RequestStop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.State != StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, t.State)
	}
	t.State = StateStopping
	return nil
}

func (r *MemoryRegistry) Update(id string, fn func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(t)
	return nil
}

// Handle is what a running task sees of itself.
type Handle struct {
	id  string
	reg Registry
}

func (h Handle) ID() string { return h.id }

func (h Handle) StopRequested() bool {
	t, err := h.reg.Get(h.id)
	return err == nil && t.State == StateStopping
}

func (h Handle) Progress(processed int, msg string) {
	_ = h.reg.Update(h.id, func(t *Task) {
		t.Processed = processed
		t.Message = msg
	})
}

type Func func(ctx context.Context, h Handle) error

// Runner executes submitted work on a bounded pool and records the
// outcome in the registry.
type Runner struct {
	reg    Registry
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

func NewRunner(reg Registry, workers int) *Runner {
	if workers <= 0 {
		workers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		reg:    reg,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.With("component", "tasks"),
	}
}

func (r *Runner) Registry() Registry { return r.reg }

// Submit registers the task and returns its id without waiting for a
// free worker.
func (r *Runner) Submit(kind string, fn Func) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrRunnerClosed
	}
	t := r.reg.Create(kind)
	r.wg.Add(1)
	go r.run(t.ID, kind, fn)
	return t.ID, nil
}

func (r *Runner) run(id, kind string, fn Func) {
	defer r.wg.Done()
	logger := r.logger.With("task_id", id, "kind", kind)

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.finish(id, err)
		return
	}
	defer r.sem.Release(1)

	h := Handle{id: id, reg: r.reg}
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panicked: %v", p)
			}
		}()
		err = fn(r.ctx, h)
	}()
	r.finish(id, err)
	if err != nil {
		logger.Warn("task finished with error", "error", err)
		return
	}
	logger.Info("task finished")
}

func (r *Runner) finish(id string, err error) {
	now := time.Now()
	_ = r.reg.Update(id, func(t *Task) {
		t.FinishedAt = &now
		switch {
		case t.State == StateStopping || errors.Is(err, context.Canceled):
			t.State = StateCancelled
		case err != nil:
			t.State = StateFailed
			t.Error = err.Error()
		default:
			t.State = StateCompleted
		}
	})
}

// Close cancels running work and waits for it, bounded by ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
