package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
)

func newCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client), mr
}

func rec(zone string, mult float64, at time.Time) models.SurgeRecord {
	return models.SurgeRecord{ZoneID: zone, ZoneName: "Zone " + zone, Multiplier: mult, Level: "high", ComputedAt: at}
}

func TestSnapshotCacheLatestOverwrites(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Record(ctx, []models.SurgeRecord{rec("b", 1.2, t0), rec("a", 1.5, t0)}))
	require.NoError(t, c.Record(ctx, []models.SurgeRecord{rec("a", 2.0, t0.Add(time.Minute))}))

	latest, err := c.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].ZoneID)
	assert.Equal(t, 2.0, latest[0].Multiplier)
	assert.True(t, latest[0].ComputedAt.Equal(t0.Add(time.Minute)))
	assert.Equal(t, "b", latest[1].ZoneID)
	assert.True(t, mr.Exists(HistoryKey("a")))
}

func TestSnapshotCacheHistorySinceAndTrim(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)
	c.HistoryLimit = 3
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.AppendHistory(ctx, rec("z", 1+float64(i)/10, t0.Add(time.Duration(i)*time.Minute))))
	}

	all, err := c.History(ctx, "z", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1.2, all[0].Multiplier)
	assert.Equal(t, 1.4, all[2].Multiplier)

	recent, err := c.History(ctx, "z", t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := c.History(ctx, "missing", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSnapshotCacheReportsRedisErrors(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	err := c.Record(context.Background(), []models.SurgeRecord{rec("a", 1, time.Now())})
	assert.Error(t, err)
}

func TestSnapshotCacheResetDropsLatestAndHistory(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Record(ctx, []models.SurgeRecord{rec("a", 1.5, t0), rec("b", 1.2, t0)}))
	require.NoError(t, mr.Set("zones_geo:meta:a", "kept"))

	require.NoError(t, c.Reset(ctx))

	latest, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)
	assert.False(t, mr.Exists(HistoryKey("a")))
	assert.False(t, mr.Exists(HistoryKey("b")))
	assert.True(t, mr.Exists("zones_geo:meta:a"), "unrelated keys survive")

	require.NoError(t, c.Reset(ctx), "reset of an empty cache")
}
