package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/storage"
	"github.com/example/surge-dashboard/internal/surge"
)

var testNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newGenerator(seed int64, opts ...Option) (*Generator, *storage.MemoryStore) {
	s := storage.NewMemoryStore()
	est := &surge.Estimator{Store: s, Now: clock}
	opts = append([]Option{WithSeed(seed), WithClock(clock)}, opts...)
	return New(s, est, opts...), s
}

var standard = Counts{Zones: 3, Vehicles: 10, Drivers: 10, Riders: 10, Rides: 20}

func TestGenerateInsertsRequestedCounts(t *testing.T) {
	ctx := context.Background()
	g, s := newGenerator(42)
	b, err := g.Generate(ctx, standard)
	require.NoError(t, err)

	zones, _ := s.ReadZones(ctx)
	vehicles, _ := s.ListVehicles(ctx)
	drivers, _ := s.ListDrivers(ctx)
	riders, _ := s.ListRiders(ctx)
	rides, _ := s.ListRides(ctx, nil)
	assert.Len(t, zones, 3)
	assert.Len(t, vehicles, 10)
	assert.Len(t, drivers, 10)
	assert.Len(t, riders, 10)
	assert.Len(t, rides, 20)
	assert.Len(t, b.Rides, 20)
	assert.NotEmpty(t, b.ID)
}

func TestGenerateReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	g, s := newGenerator(7)
	_, err := g.Generate(ctx, standard)
	require.NoError(t, err)

	zones, _ := s.ReadZones(ctx)
	drivers, _ := s.ListDrivers(ctx)
	riders, _ := s.ListRiders(ctx)
	vehicles, _ := s.ListVehicles(ctx)
	rides, _ := s.ListRides(ctx, nil)

	zoneIDs := map[string]bool{}
	for _, z := range zones {
		zoneIDs[z.ID] = true
		assert.Greater(t, z.RadiusKm, 0.0)
		assert.NotEmpty(t, z.Geohash)
	}
	vehicleIDs := map[string]bool{}
	for _, v := range vehicles {
		vehicleIDs[v.ID] = true
	}
	driverByID := map[string]models.Driver{}
	for _, d := range drivers {
		driverByID[d.ID] = d
		assert.True(t, zoneIDs[d.ZoneID], "driver %s zone", d.ID)
		assert.True(t, vehicleIDs[d.VehicleID], "driver %s vehicle", d.ID)
		assert.GreaterOrEqual(t, d.Rating, 1.0)
		assert.LessOrEqual(t, d.Rating, 5.0)
	}
	riderIDs := map[string]bool{}
	for _, r := range riders {
		riderIDs[r.ID] = true
		assert.True(t, zoneIDs[r.ZoneID], "rider %s zone", r.ID)
	}

	onTrip := map[string]int{}
	for _, r := range rides {
		assert.True(t, r.Status.Valid())
		assert.True(t, zoneIDs[r.ZoneID], "ride %s zone", r.ID)
		assert.True(t, riderIDs[r.RiderID], "ride %s rider", r.ID)
		if r.DriverID != "" {
			_, ok := driverByID[r.DriverID]
			assert.True(t, ok, "ride %s driver", r.ID)
		}
		switch r.Status {
		case models.RideAssigned, models.RideInProgress:
			require.NotEmpty(t, r.DriverID)
			assert.Equal(t, models.DriverOnTrip, driverByID[r.DriverID].Status)
			onTrip[r.DriverID]++
		case models.RideRequested:
			assert.Empty(t, r.DriverID)
		case models.RideCompleted:
			require.NotNil(t, r.EndedAt)
			assert.False(t, r.EndedAt.After(testNow))
			assert.Equal(t, models.PaymentPaid, r.PaymentStatus)
			assert.NotNil(t, r.Rating)
		case models.RideCancelled:
			assert.Zero(t, r.Fare)
		}
		assert.False(t, r.RequestedAt.After(testNow))
		assert.Greater(t, r.DistanceKm, 0.0)
		assert.GreaterOrEqual(t, r.DurationMinutes, 1)
	}
	for id, n := range onTrip {
		assert.Equal(t, 1, n, "driver %s holds more than one active ride", id)
	}
	for _, d := range drivers {
		if d.Status == models.DriverOnTrip {
			assert.Equal(t, 1, onTrip[d.ID], "on_trip driver %s without an active ride", d.ID)
		}
	}
}

func TestGenerateCompletedFaresMatchEstimator(t *testing.T) {
	ctx := context.Background()
	g, s := newGenerator(11)
	b, err := g.Generate(ctx, Counts{Zones: 2, Drivers: 3, Riders: 8, Rides: 40})
	require.NoError(t, err)

	est := &surge.Estimator{Store: s, Now: clock}
	policy := fare.DefaultPolicy()
	completed := 0
	for _, r := range b.Rides {
		if r.Status != models.RideCompleted {
			continue
		}
		completed++
		rec, err := est.Estimate(ctx, r.ZoneID)
		require.NoError(t, err)
		assert.Equal(t, rec.Multiplier, r.SurgeMultiplier, "ride %s", r.ID)
		assert.Equal(t, policy.Fare(r.DistanceKm, rec.Multiplier), r.Fare, "ride %s", r.ID)

		stored, ok, err := s.GetRide(ctx, r.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, r.Fare, stored.Fare)
	}
	assert.Greater(t, completed, 0)
}

func TestGenerateDemandCountsInsideWindow(t *testing.T) {
	ctx := context.Background()
	g, s := newGenerator(3, WithStatusWeights([]StatusWeight{{models.RideRequested, 1}}))
	b, err := g.Generate(ctx, Counts{Zones: 1, Drivers: 1, Riders: 1, Rides: 6})
	require.NoError(t, err)

	est := &surge.Estimator{Store: s, Now: clock}
	rec, err := est.Estimate(ctx, b.Zones[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.Demand)
}

func TestGenerateDowngradesWhenNoFreeDriver(t *testing.T) {
	ctx := context.Background()
	g, _ := newGenerator(5, WithStatusWeights([]StatusWeight{{models.RideAssigned, 1}}))
	b, err := g.Generate(ctx, Counts{Zones: 1, Drivers: 2, Riders: 3, Rides: 5})
	require.NoError(t, err)

	assigned, requested := 0, 0
	for _, r := range b.Rides {
		switch r.Status {
		case models.RideAssigned:
			assigned++
		case models.RideRequested:
			requested++
			assert.Empty(t, r.DriverID)
		}
	}
	assert.Equal(t, 2, assigned)
	assert.Equal(t, 3, requested)
	for _, d := range b.Drivers {
		assert.Equal(t, models.DriverOnTrip, d.Status)
	}
}

func TestGeneratePrerequisites(t *testing.T) {
	tests := []struct {
		name    string
		counts  Counts
		entity  string
		missing []string
	}{
		{"rides alone", Counts{Rides: 5}, "rides", []string{"zones", "drivers", "riders"}},
		{"rides without riders", Counts{Zones: 1, Drivers: 1, Rides: 1}, "rides", []string{"riders"}},
		{"drivers without zones", Counts{Drivers: 2}, "drivers", []string{"zones"}},
		{"riders without zones", Counts{Riders: 2}, "riders", []string{"zones"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, s := newGenerator(1)
			_, err := g.Generate(context.Background(), tt.counts)
			var perr *models.PrerequisiteError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.entity, perr.Entity)
			assert.Equal(t, tt.missing, perr.Missing)

			zones, _ := s.ReadZones(context.Background())
			assert.Empty(t, zones, "nothing is written on failure")
		})
	}
}

func TestGenerateRejectsNegativeCounts(t *testing.T) {
	g, _ := newGenerator(1)
	_, err := g.Generate(context.Background(), Counts{Zones: -1})
	require.Error(t, err)
	var perr *models.PrerequisiteError
	assert.False(t, errors.As(err, &perr))
}

func TestGenerateEmptyCountsIsNoop(t *testing.T) {
	g, s := newGenerator(1)
	b, err := g.Generate(context.Background(), Counts{})
	require.NoError(t, err)
	assert.Empty(t, b.Zones)
	rides, _ := s.ListRides(context.Background(), nil)
	assert.Empty(t, rides)
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	ctx := context.Background()
	g1, _ := newGenerator(99)
	g2, _ := newGenerator(99)
	b1, err := g1.Generate(ctx, standard)
	require.NoError(t, err)
	b2, err := g2.Generate(ctx, standard)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	g3, _ := newGenerator(100)
	b3, err := g3.Generate(ctx, standard)
	require.NoError(t, err)
	assert.NotEqual(t, b1.ID, b3.ID)
}

func TestGenerateRepeatedCallsAddFreshBatches(t *testing.T) {
	ctx := context.Background()
	g, s := newGenerator(8)
	first, err := g.Generate(ctx, standard)
	require.NoError(t, err)
	second, err := g.Generate(ctx, standard)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	rides, _ := s.ListRides(ctx, nil)
	assert.Len(t, rides, 40)
}

func TestGenerateRegistersZonesWithLocator(t *testing.T) {
	ctx := context.Background()
	idx := geo.NewIndex()
	g, _ := newGenerator(21, WithLocator(idx))
	b, err := g.Generate(ctx, Counts{Zones: 4})
	require.NoError(t, err)
	for _, z := range b.Zones {
		got, ok, err := idx.Locate(ctx, z.Center)
		require.NoError(t, err)
		require.True(t, ok)
		// Overlapping circles resolve to the nearest center, which is z itself.
		assert.Equal(t, z.ID, got.ID)
	}
}

func TestGenerateWithoutEstimator(t *testing.T) {
	g := New(storage.NewMemoryStore(), nil, WithSeed(1), WithClock(clock))
	_, err := g.Generate(context.Background(), standard)
	assert.ErrorIs(t, err, errNoEstimator)
}
