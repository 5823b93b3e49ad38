package observability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultLogCapacity is how many records the server keeps for /api/logs.
const DefaultLogCapacity = 200

type LogEntry struct {
	Time      time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Component string    `json:"source,omitempty"`
}

// LogBuffer is a fixed-size ring of recent log records.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

func (b *LogBuffer) add(e LogEntry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// Recent returns up to limit entries, newest first, optionally filtered by
// level name. total counts every buffered entry that passed the filter.
func (b *LogBuffer) Recent(limit int, level string) (entries []LogEntry, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.entries)
	}
	entries = []LogEntry{}
	for i := 0; i < n; i++ {
		e := b.entries[(b.next-1-i+len(b.entries))%len(b.entries)]
		if level != "" && !strings.EqualFold(e.Level, level) {
			continue
		}
		total++
		if limit <= 0 || len(entries) < limit {
			entries = append(entries, e)
		}
	}
	return entries, total
}

// Wrap returns a handler that records into b and then passes every record
// on to next.
func (b *LogBuffer) Wrap(next slog.Handler) slog.Handler {
	return &bufferHandler{buf: b, next: next}
}

type bufferHandler struct {
	buf       *LogBuffer
	next      slog.Handler
	component string
}

func (h *bufferHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *bufferHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	h.buf.add(LogEntry{Time: r.Time, Level: r.Level.String(), Message: r.Message, Component: component})
	return h.next.Handle(ctx, r)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			component = a.Value.String()
		}
	}
	return &bufferHandler{buf: h.buf, next: h.next.WithAttrs(attrs), component: component}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	return &bufferHandler{buf: h.buf, next: h.next.WithGroup(name), component: h.component}
}
