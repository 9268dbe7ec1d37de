package main

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/cache"
	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/storage"
)

func TestSeedCommandPrintsBatch(t *testing.T) {
	cmd := &seedCmd{Zones: 2, Vehicles: 3, Drivers: 3, Riders: 4, Rides: 5, Seed: 7}
	cmd.Store = "memory"
	cmd.Window = "15m"

	var out bytes.Buffer
	require.NoError(t, cmd.Run(context.Background(), &out))

	var got struct {
		BatchID string `json:"batch_id"`
		Counts  struct {
			Zones int `json:"zones"`
			Rides int `json:"rides"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got.BatchID, 8)
	assert.Equal(t, 2, got.Counts.Zones)
	assert.Equal(t, 5, got.Counts.Rides)
}

func TestSeedCommandRejectsRidesWithoutZones(t *testing.T) {
	cmd := &seedCmd{Rides: 5}
	cmd.Store = "memory"
	cmd.Window = "15m"

	err := cmd.Run(context.Background(), &bytes.Buffer{})
	var pe *models.PrerequisiteError
	require.ErrorAs(t, err, &pe)
}

func TestEstimateCommandOnEmptyStore(t *testing.T) {
	cmd := &estimateCmd{}
	cmd.Store = "memory"
	cmd.Window = "15m"

	var out bytes.Buffer
	require.NoError(t, cmd.Run(context.Background(), &out))
	assert.Contains(t, out.String(), "[]")
}

func TestEstimateCommandUnknownZone(t *testing.T) {
	cmd := &estimateCmd{Zone: "nope"}
	cmd.Store = "memory"
	cmd.Window = "15m"

	err := cmd.Run(context.Background(), &bytes.Buffer{})
	var ze *models.InvalidZoneError
	require.ErrorAs(t, err, &ze)
}

func TestParseWindow(t *testing.T) {
	d, err := parseWindow("10m")
	require.NoError(t, err)
	assert.Equal(t, "10m0s", d.String())

	_, err = parseWindow("-1m")
	assert.Error(t, err)
	_, err = parseWindow("soon")
	assert.Error(t, err)
}

func TestSeedUsesFareFlags(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cmd := &seedCmd{Zones: 2, Vehicles: 4, Drivers: 4, Riders: 4, Rides: 30, Seed: 11}
	cmd.Window = "15m"
	cmd.FareBase, cmd.FarePerKm = 10, 4
	require.NoError(t, cmd.seed(ctx, store, nil, nil, &bytes.Buffer{}))

	rides, err := store.ListRides(ctx, []models.RideStatus{models.RideCompleted})
	require.NoError(t, err)
	require.NotEmpty(t, rides)
	p := fare.Policy{BaseFare: 10, PerKm: 4}
	for _, r := range rides {
		assert.Equal(t, p.Fare(r.DistanceKm, r.SurgeMultiplier), r.Fare, r.ID)
	}
}

func TestSeedRejectsInvalidFareFlags(t *testing.T) {
	cmd := &seedCmd{Zones: 1}
	cmd.Window = "15m"
	cmd.FareBase = math.NaN()
	err := cmd.seed(context.Background(), storage.NewMemoryStore(), nil, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "finite")
}

func TestSeedResetClearsLocatorAndSnapshots(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	locator := geo.NewRedisGeo(rc, "zones_geo")
	snapshots := cache.NewSnapshotCache(rc)

	stale := models.Zone{ID: "stale", Name: "Old", Center: models.Coord{Lat: 10, Lon: 10}, RadiusKm: 2}
	require.NoError(t, locator.Upsert(ctx, stale))
	require.NoError(t, snapshots.Record(ctx, []models.SurgeRecord{{ZoneID: "stale", Multiplier: 2}}))

	store := storage.NewMemoryStore()
	cmd := &seedCmd{Zones: 2, Seed: 3, Reset: true}
	cmd.Window = "15m"
	cmd.FareBase, cmd.FarePerKm = 3, 1.5
	require.NoError(t, cmd.seed(ctx, store, locator, snapshots, &bytes.Buffer{}))

	_, ok, err := locator.Locate(ctx, stale.Center)
	require.NoError(t, err)
	assert.False(t, ok, "deleted zones no longer resolve")

	zones, err := store.ReadZones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	for _, z := range zones {
		got, ok, err := locator.Locate(ctx, z.Center)
		require.NoError(t, err)
		require.True(t, ok, "seeded zone %s is registered", z.ID)
		assert.Equal(t, z.ID, got.ID)
	}

	latest, err := snapshots.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)
}
