package observability

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferKeepsNewestFirst(t *testing.T) {
	buf := NewLogBuffer(3)
	var out bytes.Buffer
	logger := slog.New(buf.Wrap(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Debug("hidden")
	logger.Info("one")
	logger.With("component", "aggregator").Warn("two")
	logger.Error("three", "component", "cron")
	logger.Info("four")

	entries, total := buf.Recent(0, "")
	require.Len(t, entries, 3)
	assert.Equal(t, 3, total)
	assert.Equal(t, "four", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
	assert.Equal(t, "cron", entries[1].Component)
	assert.Equal(t, "two", entries[2].Message)
	assert.Equal(t, "aggregator", entries[2].Component)

	assert.Contains(t, out.String(), "msg=four", "records still reach the wrapped handler")
	assert.NotContains(t, out.String(), "hidden")
}

func TestLogBufferFilterAndLimit(t *testing.T) {
	buf := NewLogBuffer(10)
	logger := slog.New(buf.Wrap(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	logger.Warn("w1")
	logger.Info("i1")
	logger.Warn("w2")

	entries, total := buf.Recent(1, "warn")
	assert.Equal(t, 2, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "w2", entries[0].Message)

	entries, total = buf.Recent(5, "error")
	assert.Empty(t, entries)
	assert.Zero(t, total)
}
