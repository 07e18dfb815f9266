package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snackkit/backend/internal/domain"
)

func newTestCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewRedisReportCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c, mr
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var missed []domain.DailySummary
	hit, err := c.Get(ctx, KeyDailyReport, &missed)
	require.NoError(t, err)
	assert.False(t, hit)

	report := []domain.DailySummary{{Date: "2026-05-01", Revenue: decimal.RequireFromString("110.50"), Qty: 5, Bakeries: 2}}
	require.NoError(t, c.Set(ctx, KeyDailyReport, report, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(KeyDailyReport))

	var got []domain.DailySummary
	hit, err = c.Get(ctx, KeyDailyReport, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.True(t, got[0].Revenue.Equal(report[0].Revenue))

	require.NoError(t, c.Delete(ctx, ReportKeys...))
	assert.False(t, mr.Exists(KeyDailyReport))
}

func TestRedisReportCacheCorruptPayload(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(KeySummary, "{broken"))

	var dest domain.SalesTotals
	hit, err := c.Get(context.Background(), KeySummary, &dest)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestNoopReportCache(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, KeySummary, domain.SalesTotals{}, time.Minute))
	hit, err := c.Get(ctx, KeySummary, &domain.SalesTotals{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Delete(ctx, ReportKeys...))
}
