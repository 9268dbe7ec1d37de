package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/surge-dashboard/internal/models"
)

var ErrUnknownCollection = errors.New("unknown collection")

// DataAccess is the boundary the surge estimator and generator rely on. An
// empty zoneID or status set matches everything; a zero since has no lower
// bound.
type DataAccess interface {
	QueryRides(ctx context.Context, zoneID string, statuses []models.RideStatus, since time.Time) ([]models.Ride, error)
	QueryDrivers(ctx context.Context, zoneID string, status models.DriverStatus) ([]models.Driver, error)
	InsertEntities(ctx context.Context, collection string, records []any) error
	ReadZones(ctx context.Context) ([]models.Zone, error)
}

// Store is the full persistence surface used by the dashboard.
type Store interface {
	DataAccess
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	ListRiders(ctx context.Context) ([]models.Rider, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ListRides(ctx context.Context, statuses []models.RideStatus) ([]models.Ride, error)
	GetRide(ctx context.Context, id string) (models.Ride, bool, error)
	SaveSnapshots(ctx context.Context, recs []models.SurgeRecord) error
	ListSnapshots(ctx context.Context, zoneID string, since time.Time) ([]models.SurgeRecord, error)
	// Reset removes every record from every collection.
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

func typed[T any](collection string, records []any) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, r := range records {
		if v, ok := r.(T); ok {
			out = append(out, v)
			continue
		}
		if p, ok := r.(*T); ok && p != nil {
			out = append(out, *p)
			continue
		}
		return nil, fmt.Errorf("%s: record %d has unexpected type %T", collection, i, r)
	}
	return out, nil
}

func statusIn(s models.RideStatus, set []models.RideStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// sortRides orders newest request first, the order the dashboard lists them.
func sortRides(rides []models.Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		if !rides[i].RequestedAt.Equal(rides[j].RequestedAt) {
			return rides[i].RequestedAt.After(rides[j].RequestedAt)
		}
		return rides[i].ID < rides[j].ID
	})
}

// checkRecords validates the collection name and record types for stores
// that hand records to a driver untyped.
func checkRecords(collection string, records []any) error {
	var err error
	switch collection {
	case models.CollectionZones:
		_, err = typed[models.Zone](collection, records)
	case models.CollectionDrivers:
		_, err = typed[models.Driver](collection, records)
	case models.CollectionRiders:
		_, err = typed[models.Rider](collection, records)
	case models.CollectionVehicles:
		_, err = typed[models.Vehicle](collection, records)
	case models.CollectionRides:
		_, err = typed[models.Ride](collection, records)
	case models.CollectionSnapshots:
		_, err = typed[models.SurgeRecord](collection, records)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return err
}
