package booking

import (
	"context"
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

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *storage.MemoryStore, models.Coord) {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	center := models.Coord{Lat: 40.7589, Lon: -73.9851}
	zone := models.Zone{ID: "Z", Name: "Midtown", Center: center, RadiusKm: 2}
	require.NoError(t, s.InsertEntities(ctx, models.CollectionZones, []any{zone}))
	require.NoError(t, s.InsertEntities(ctx, models.CollectionRiders, []any{models.Rider{ID: "p1", ZoneID: "Z"}}))
	idx := geo.NewIndex()
	require.NoError(t, idx.Upsert(ctx, zone))

	clock := func() time.Time { return now }
	est := &surge.Estimator{Store: s, Now: clock}
	return &Service{Store: s, Quoter: &surge.Quoter{Locator: idx, Estimator: est, Fare: fare.DefaultPolicy()}, Now: clock}, s, center
}

func TestRequestStoresPricedRide(t *testing.T) {
	ctx := context.Background()
	svc, s, center := newService(t)
	ride, err := svc.Request(ctx, Request{
		RiderID: "p1",
		Pickup:  models.Place{Address: "123 Main Street", Coord: center},
		Dropoff: models.Place{Address: "456 Broadway", Coord: geo.Offset(center, 2, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Z", ride.ZoneID)
	assert.Equal(t, models.RideRequested, ride.Status)
	// Zone Z had no demand and no supply when quoted.
	assert.Equal(t, 1.0, ride.SurgeMultiplier)
	assert.Equal(t, fare.DefaultPolicy().Fare(ride.DistanceKm, 1), ride.Fare)

	stored, ok, err := s.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ride.Fare, stored.Fare)

	rec, err := svc.Quoter.Estimator.Estimate(ctx, "Z")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Demand)
}

func TestRequestRejectsUnknownRiderAndOutsidePickup(t *testing.T) {
	svc, _, center := newService(t)
	_, err := svc.Request(context.Background(), Request{RiderID: "ghost", Pickup: models.Place{Coord: center}})
	assert.ErrorIs(t, err, ErrUnknownRider)

	_, err = svc.Request(context.Background(), Request{RiderID: "p1", Pickup: models.Place{Coord: models.Coord{Lat: 10, Lon: 10}}})
	assert.ErrorIs(t, err, surge.ErrOutsideZones)
}

func TestRequestRejectsStaleLocatorZone(t *testing.T) {
	ctx := context.Background()
	svc, s, center := newService(t)
	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.InsertEntities(ctx, models.CollectionRiders, []any{models.Rider{ID: "p1"}}))

	_, err := svc.Request(ctx, Request{
		RiderID: "p1",
		Pickup:  models.Place{Coord: center},
		Dropoff: models.Place{Coord: geo.Offset(center, 1, 0)},
	})
	var zerr *models.InvalidZoneError
	require.ErrorAs(t, err, &zerr)

	rides, err := s.ListRides(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rides, "no ride may reference a deleted zone")
}
