package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/model"
)

// Monday 2026-03-09 10:00 UTC
var monday10 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func TestComputeNextRun(t *testing.T) {
	tests := []struct {
		name  string
		hours []int
		days  []int
		now   time.Time
		want  *time.Time
	}{
		{
			name:  "later hour today",
			hours: []int{9, 14},
			days:  []int{1, 3, 5},
			now:   monday10,
			want:  at(time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)),
		},
		{
			name:  "same weekday next week",
			hours: []int{9},
			days:  []int{1},
			now:   monday10,
			want:  at(time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)),
		},
		{
			name:  "current hour is not later",
			hours: []int{10},
			days:  nil,
			now:   monday10.Add(5 * time.Minute),
			want:  at(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)),
		},
		{
			name:  "next allowed day uses earliest hour",
			hours: []int{18, 7},
			days:  []int{3},
			now:   monday10.Add(9 * time.Hour),
			want:  at(time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC)),
		},
		{
			name:  "unsorted duplicated hours",
			hours: []int{14, 9, 14, 11},
			days:  []int{1},
			now:   monday10,
			want:  at(time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC)),
		},
		{
			name:  "invalid days mean every day",
			hours: []int{8},
			days:  []int{9, -1},
			now:   monday10,
			want:  at(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)),
		},
		{
			name:  "no hours pauses",
			hours: nil,
			days:  []int{1},
			now:   monday10,
			want:  nil,
		},
		{
			name:  "only invalid hours pauses",
			hours: []int{24, -3},
			now:   monday10,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeNextRun(tt.hours, tt.days, tt.now)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s got %s", tt.want, got)
		})
	}
}

func TestComputeNextRunIsAfterNow(t *testing.T) {
	for h := 0; h < 24; h++ {
		now := monday10.Add(time.Duration(h) * time.Hour)
		got := ComputeNextRun([]int{0, 6, 12, 18}, []int{0, 2, 4, 6}, now)
		require.NotNil(t, got)
		assert.True(t, got.After(now))
		assert.Zero(t, got.Minute())
	}
}

func TestAlertState(t *testing.T) {
	past := monday10.Add(-time.Minute)
	future := monday10.Add(time.Hour)

	tests := []struct {
		name  string
		alert model.AlertDefinition
		want  string
	}{
		{"inactive", model.AlertDefinition{ScheduleEnabled: true, NextRun: &past}, AlertDisabled},
		{"schedule off", model.AlertDefinition{IsActive: true, NextRun: &past}, AlertDisabled},
		{"no next run", model.AlertDefinition{IsActive: true, ScheduleEnabled: true}, AlertDisabled},
		{"future", model.AlertDefinition{IsActive: true, ScheduleEnabled: true, NextRun: &future}, AlertScheduled},
		{"past", model.AlertDefinition{IsActive: true, ScheduleEnabled: true, NextRun: &past}, AlertDue},
		{"exactly now", model.AlertDefinition{IsActive: true, ScheduleEnabled: true, NextRun: at(monday10)}, AlertDue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AlertState(tt.alert, monday10))
			assert.Equal(t, tt.want == AlertDue, IsDue(tt.alert, monday10))
		})
	}
}

func TestReschedule(t *testing.T) {
	a := model.AlertDefinition{ScheduleEnabled: true, ScheduleHours: []int{14}}
	Reschedule(&a, monday10)
	require.NotNil(t, a.NextRun)
	assert.Equal(t, 14, a.NextRun.Hour())

	a.ScheduleEnabled = false
	Reschedule(&a, monday10)
	assert.Nil(t, a.NextRun)
}

type prunerFake struct {
	got time.Duration
	err error
}

func (p *prunerFake) DeleteOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	p.got = olderThan
	return 3, p.err
}

func TestPruneJobs(t *testing.T) {
	p := &prunerFake{}
	PruneJobs(context.Background(), p, 72*time.Hour)
	assert.Equal(t, 72*time.Hour, p.got)

	p.err = errors.New("db down")
	assert.NotPanics(t, func() { PruneJobs(context.Background(), p, time.Hour) })
}
