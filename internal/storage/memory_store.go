package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/surge-dashboard/internal/models"
)

// MemoryStore keeps every collection in process. Listing order is insertion
// order except for rides, which are newest first.
type MemoryStore struct {
	mu        sync.RWMutex
	zones     []models.Zone
	drivers   []models.Driver
	riders    []models.Rider
	vehicles  []models.Vehicle
	rides     []models.Ride
	snapshots []models.SurgeRecord
	ids       map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	m.resetLocked()
	return m
}

func (m *MemoryStore) resetLocked() {
	m.zones, m.drivers, m.riders, m.vehicles, m.rides, m.snapshots = nil, nil, nil, nil, nil, nil
	m.ids = map[string]map[string]struct{}{
		models.CollectionZones:    {},
		models.CollectionDrivers:  {},
		models.CollectionRiders:   {},
		models.CollectionVehicles: {},
		models.CollectionRides:    {},
	}
}

func (m *MemoryStore) claim(collection string, ids []string) error {
	seen := m.ids[collection]
	batch := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate id %s", collection, id)
		}
		if _, dup := batch[id]; dup {
			return fmt.Errorf("%s: duplicate id %s", collection, id)
		}
		batch[id] = struct{}{}
	}
	for id := range batch {
		seen[id] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) InsertEntities(_ context.Context, collection string, records []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch collection {
	case models.CollectionZones:
		zs, err := typed[models.Zone](collection, records)
		if err != nil {
			return err
		}
		if err := m.claim(collection, idsOf(zs, func(z models.Zone) string { return z.ID })); err != nil {
			return err
		}
		m.zones = append(m.zones, zs...)
	case models.CollectionDrivers:
		ds, err := typed[models.Driver](collection, records)
		if err != nil {
			return err
		}
		if err := m.claim(collection, idsOf(ds, func(d models.Driver) string { return d.ID })); err != nil {
			return err
		}
		m.drivers = append(m.drivers, ds...)
	case models.CollectionRiders:
		rs, err := typed[models.Rider](collection, records)
		if err != nil {
			return err
		}
		if err := m.claim(collection, idsOf(rs, func(r models.Rider) string { return r.ID })); err != nil {
			return err
		}
		m.riders = append(m.riders, rs...)
	case models.CollectionVehicles:
		vs, err := typed[models.Vehicle](collection, records)
		if err != nil {
			return err
		}
		if err := m.claim(collection, idsOf(vs, func(v models.Vehicle) string { return v.ID })); err != nil {
			return err
		}
		m.vehicles = append(m.vehicles, vs...)
	case models.CollectionRides:
		rs, err := typed[models.Ride](collection, records)
		if err != nil {
			return err
		}
		if err := m.claim(collection, idsOf(rs, func(r models.Ride) string { return r.ID })); err != nil {
			return err
		}
		m.rides = append(m.rides, rs...)
	case models.CollectionSnapshots:
		ss, err := typed[models.SurgeRecord](collection, records)
		if err != nil {
			return err
		}
		m.snapshots = append(m.snapshots, ss...)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return nil
}

func idsOf[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func (m *MemoryStore) QueryRides(_ context.Context, zoneID string, statuses []models.RideStatus, since time.Time) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if zoneID != "" && r.ZoneID != zoneID {
			continue
		}
		if !statusIn(r.Status, statuses) {
			continue
		}
		if !since.IsZero() && r.RequestedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sortRides(out)
	return out, nil
}

func (m *MemoryStore) QueryDrivers(_ context.Context, zoneID string, status models.DriverStatus) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Driver
	for _, d := range m.drivers {
		if zoneID != "" && d.ZoneID != zoneID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryStore) ReadZones(_ context.Context) ([]models.Zone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Zone(nil), m.zones...), nil
}

func (m *MemoryStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	return m.QueryDrivers(ctx, "", "")
}

func (m *MemoryStore) ListRiders(_ context.Context) ([]models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Rider(nil), m.riders...), nil
}

func (m *MemoryStore) ListVehicles(_ context.Context) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Vehicle(nil), m.vehicles...), nil
}

func (m *MemoryStore) ListRides(ctx context.Context, statuses []models.RideStatus) ([]models.Ride, error) {
	return m.QueryRides(ctx, "", statuses, time.Time{})
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (models.Ride, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.ID == id {
			return r, true, nil
		}
	}
	return models.Ride{}, false, nil
}

func (m *MemoryStore) SaveSnapshots(ctx context.Context, recs []models.SurgeRecord) error {
	records := make([]any, len(recs))
	for i, r := range recs {
		records[i] = r
	}
	return m.InsertEntities(ctx, models.CollectionSnapshots, records)
}

func (m *MemoryStore) ListSnapshots(_ context.Context, zoneID string, since time.Time) ([]models.SurgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SurgeRecord
	for _, s := range m.snapshots {
		if zoneID != "" && s.ZoneID != zoneID {
			continue
		}
		if !since.IsZero() && s.ComputedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }
