package analytics

import (
	"github.com/example/surge-dashboard/internal/models"
)

// Dataset is every stored entity, as loaded by Service.
type Dataset struct {
	Zones    []models.Zone
	Vehicles []models.Vehicle
	Drivers  []models.Driver
	Riders   []models.Rider
	Rides    []models.Ride
}

// VerifyIntegrity checks that every reference resolves and that driver and
// ride states agree: an assigned or in-progress ride holds an on_trip driver,
// and no driver holds two active rides. Returns *models.DataIntegrityError.
func VerifyIntegrity(d Dataset) error {
	var vs []models.Violation
	add := func(entity, id, reason string) {
		vs = append(vs, models.Violation{Entity: entity, ID: id, Reason: reason})
	}

	zones := make(map[string]bool, len(d.Zones))
	for _, z := range d.Zones {
		zones[z.ID] = true
	}
	vehicles := make(map[string]bool, len(d.Vehicles))
	for _, v := range d.Vehicles {
		vehicles[v.ID] = true
	}
	drivers := make(map[string]models.Driver, len(d.Drivers))
	for _, dr := range d.Drivers {
		drivers[dr.ID] = dr
		if !zones[dr.ZoneID] {
			add("driver", dr.ID, "unknown zone "+dr.ZoneID)
		}
		if dr.VehicleID != "" && !vehicles[dr.VehicleID] {
			add("driver", dr.ID, "unknown vehicle "+dr.VehicleID)
		}
	}
	riders := make(map[string]bool, len(d.Riders))
	for _, r := range d.Riders {
		riders[r.ID] = true
		if !zones[r.ZoneID] {
			add("rider", r.ID, "unknown zone "+r.ZoneID)
		}
	}

	active := make(map[string]int)
	for _, r := range d.Rides {
		if !r.Status.Valid() {
			add("ride", r.ID, "invalid status "+string(r.Status))
		}
		if !zones[r.ZoneID] {
			add("ride", r.ID, "unknown zone "+r.ZoneID)
		}
		if !riders[r.RiderID] {
			add("ride", r.ID, "unknown rider "+r.RiderID)
		}
		if r.DriverID == "" {
			if r.Status == models.RideAssigned || r.Status == models.RideInProgress {
				add("ride", r.ID, string(r.Status)+" without driver")
			}
			continue
		}
		dr, ok := drivers[r.DriverID]
		if !ok {
			add("ride", r.ID, "unknown driver "+r.DriverID)
			continue
		}
		if r.Status == models.RideAssigned || r.Status == models.RideInProgress {
			active[r.DriverID]++
			if dr.Status != models.DriverOnTrip {
				add("ride", r.ID, "driver "+dr.ID+" is "+string(dr.Status)+", want on_trip")
			}
		}
	}
	for _, dr := range d.Drivers {
		switch n := active[dr.ID]; {
		case n > 1:
			add("driver", dr.ID, "holds more than one active ride")
		case n == 0 && dr.Status == models.DriverOnTrip:
			add("driver", dr.ID, "on_trip without an active ride")
		}
	}

	if len(vs) == 0 {
		return nil
	}
	return &models.DataIntegrityError{Violations: vs}
}
