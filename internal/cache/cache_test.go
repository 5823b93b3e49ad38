package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/model"
)

func sample() *core.MergedResult {
	return &core.MergedResult{
		Jobs: []model.JobPosting{{ID: "1", Title: "Go Dev", URL: "https://x.com/1"}},
		APIs: map[string]string{"remotive": core.StatusOK},
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute).WithClock(func() time.Time { return now })

	miss, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Store(ctx, "k", sample()))
	hit, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Go Dev", hit.Jobs[0].Title)

	hit.Jobs[0].Title = "mutated"
	again, _ := c.Load(ctx, "k")
	assert.Equal(t, "Go Dev", again.Jobs[0].Title)

	now = now.Add(time.Minute)
	expired, err := c.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, expired)
	assert.Equal(t, 1, c.Sweep())
	assert.Zero(t, c.Sweep())
}

func TestHashKeyIsStable(t *testing.T) {
	a := hashKey("search:go|||all||||50|")
	assert.Equal(t, a, hashKey("search:go|||all||||50|"))
	assert.NotEqual(t, a, hashKey("search:rust|||all||||50|"))
	assert.Contains(t, a, keyPrefix)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	url := os.Getenv("JOBRADAR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JOBRADAR_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	c := NewRedisCache(rdb, 5*time.Second)
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	miss, err := c.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.Store(ctx, key, sample()))
	hit, err := c.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, core.StatusOK, hit.APIs["remotive"])
}
