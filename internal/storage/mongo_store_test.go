package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
)

// Runs against a real server only when MONGO_URI is set.
func TestMongoStoreRoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewMongoStore(ctx, uri, "ride_demo_test")
	require.NoError(t, err)
	defer s.Close(ctx)
	require.NoError(t, s.Reset(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.InsertEntities(ctx, models.CollectionZones, []any{models.Zone{ID: "z1", Name: "Downtown", RadiusKm: 2}}))
	require.NoError(t, s.InsertEntities(ctx, models.CollectionDrivers, []any{
		models.Driver{ID: "d1", ZoneID: "z1", Status: models.DriverAvailable},
		models.Driver{ID: "d2", ZoneID: "z1", Status: models.DriverOnTrip},
	}))
	require.NoError(t, s.InsertEntities(ctx, models.CollectionRides, []any{
		models.Ride{ID: "r1", ZoneID: "z1", Status: models.RideRequested, RequestedAt: now},
		models.Ride{ID: "r2", ZoneID: "z1", Status: models.RideAssigned, DriverID: "d2", RequestedAt: now.Add(-time.Hour)},
	}))

	rides, err := s.QueryRides(ctx, "z1", models.DemandStatuses, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, "r1", rides[0].ID)

	drivers, err := s.QueryDrivers(ctx, "z1", models.DriverAvailable)
	require.NoError(t, err)
	require.Len(t, drivers, 1)

	_, ok, err := s.GetRide(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Reset(ctx))
}
