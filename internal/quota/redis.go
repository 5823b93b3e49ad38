package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baxromumarov/jobradar/internal/model"
)

const keyPrefix = "jobradar:quota:"

// RedisTracker shares counters across replicas.
type RedisTracker struct {
	rdb    redis.Cmdable
	limits Limits
	now    func() time.Time
}

func NewRedisTracker(rdb redis.Cmdable, limits Limits) *RedisTracker {
	return &RedisTracker{rdb: rdb, limits: limits, now: time.Now}
}

func (t *RedisTracker) keys() (string, string) {
	now := t.now().UTC()
	return keyPrefix + "daily:" + now.Format("2006-01-02"), keyPrefix + "monthly:" + now.Format("2006-01")
}

func (t *RedisTracker) Check(ctx context.Context) (model.QuotaState, error) {
	dayKey, monthKey := t.keys()
	vals, err := t.rdb.MGet(ctx, dayKey, monthKey).Result()
	if err != nil {
		return t.state(0, 0), fmt.Errorf("quota read failed: %w", err)
	}
	daily, err := counterValue(dayKey, vals[0])
	if err != nil {
		return t.state(0, 0), err
	}
	monthly, err := counterValue(monthKey, vals[1])
	if err != nil {
		return t.state(0, 0), err
	}
	return t.state(daily, monthly), nil
}

func (t *RedisTracker) Reserve(ctx context.Context) (model.QuotaState, error) {
	dayKey, monthKey := t.keys()

	var dayCmd, monthCmd *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		dayCmd = pipe.Incr(ctx, dayKey)
		monthCmd = pipe.Incr(ctx, monthKey)
		pipe.Expire(ctx, dayKey, 48*time.Hour)
		pipe.Expire(ctx, monthKey, 32*24*time.Hour)
		return nil
	})
	if err != nil {
		return t.state(0, 0), fmt.Errorf("quota reserve failed: %w", err)
	}

	daily, monthly := int(dayCmd.Val()), int(monthCmd.Val())
	if daily <= t.limits.Daily && monthly <= t.limits.Monthly {
		return t.state(daily, monthly), nil
	}

	// over budget: hand the slot back
	if _, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Decr(ctx, dayKey)
		pipe.Decr(ctx, monthKey)
		return nil
	}); err != nil {
		return t.state(daily, monthly), fmt.Errorf("quota rollback failed: %w", err)
	}
	return t.state(daily-1, monthly-1), ErrQuotaExceeded
}

func (t *RedisTracker) state(daily, monthly int) model.QuotaState {
	return model.QuotaState{
		DailyUsed:      daily,
		MonthlyUsed:    monthly,
		DailyLimit:     t.limits.Daily,
		MonthlyLimit:   t.limits.Monthly,
		AlertThreshold: t.limits.AlertThreshold,
	}
}

// counterValue reads one MGET reply. A missing key counts as zero.
func counterValue(key string, v any) (int, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("quota counter %s is malformed: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("quota counter %s has unexpected type %T", key, v)
}
