package geo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := HaversineKm(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	c := models.Coord{Lat: 40.75, Lon: -73.95}
	moved := Offset(c, 3, 4)
	assert.InDelta(t, 5.0, HaversineKm(c.Lat, c.Lon, moved.Lat, moved.Lon), 0.05)
}

func testZones() []models.Zone {
	return []models.Zone{
		{ID: "midtown", Name: "Midtown", Center: models.Coord{Lat: 40.7549, Lon: -73.9840}, RadiusKm: 2},
		{ID: "downtown", Name: "Downtown", Center: models.Coord{Lat: 40.7075, Lon: -74.0113}, RadiusKm: 2},
		{ID: "metro", Name: "Metro", Center: models.Coord{Lat: 40.7300, Lon: -73.9900}, RadiusKm: 30},
	}
}

func TestIndexLocate(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	for _, z := range testZones() {
		require.NoError(t, idx.Upsert(ctx, z))
	}

	z, ok, err := idx.Locate(ctx, models.Coord{Lat: 40.7550, Lon: -73.9850})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "midtown", z.ID)

	// only the wide zone covers this point; found by the fallback scan
	z, ok, err = idx.Locate(ctx, models.Coord{Lat: 40.90, Lon: -73.85})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "metro", z.ID)

	_, ok, err = idx.Locate(ctx, models.Coord{Lat: 51.5, Lon: -0.12})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexUpsertMovesZone(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	z := testZones()[0]
	require.NoError(t, idx.Upsert(ctx, z))
	z.Center = models.Coord{Lat: 34.05, Lon: -118.24}
	require.NoError(t, idx.Upsert(ctx, z))

	_, ok, _ := idx.Locate(ctx, models.Coord{Lat: 40.7549, Lon: -73.9840})
	assert.False(t, ok)
	got, ok, _ := idx.Locate(ctx, models.Coord{Lat: 34.05, Lon: -118.24})
	assert.True(t, ok)
	assert.Equal(t, "midtown", got.ID)
}

func TestRedisGeoLocate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	rg := NewRedisGeo(client, "zones_geo")
	for _, z := range testZones()[:2] {
		require.NoError(t, rg.Upsert(ctx, z))
	}

	z, ok, err := rg.Locate(ctx, models.Coord{Lat: 40.7080, Lon: -74.0110})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "downtown", z.ID)
	assert.Equal(t, "Downtown", z.Name)
	assert.Equal(t, 2.0, z.RadiusKm)

	// inside the search radius but outside every zone circle
	_, ok, err = rg.Locate(ctx, models.Coord{Lat: 40.7300, Lon: -73.9990})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocatorsReset(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	for name, loc := range map[string]Locator{"index": NewIndex(), "redis": NewRedisGeo(client, "zones_geo")} {
		z := testZones()[0]
		require.NoError(t, loc.Upsert(ctx, z), name)
		require.NoError(t, loc.Reset(ctx), name)
		_, ok, err := loc.Locate(ctx, z.Center)
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}
	assert.False(t, mr.Exists("zones_geo:meta:"+testZones()[0].ID))
}
