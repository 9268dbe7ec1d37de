package models

import "time"

// Collection names shared by every store implementation.
const (
	CollectionZones     = "zones"
	CollectionDrivers   = "drivers"
	CollectionRiders    = "riders"
	CollectionVehicles  = "vehicles"
	CollectionRides     = "rides"
	CollectionSnapshots = "surge_pricing"
)

type Coord struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

type Place struct {
	Address string `json:"address" bson:"address"`
	Coord   `bson:",inline"`
}

type Zone struct {
	ID       string  `json:"zone_id" bson:"zone_id"`
	Name     string  `json:"zone_name" bson:"zone_name"`
	Center   Coord   `json:"center" bson:"center"`
	RadiusKm float64 `json:"radius_km" bson:"radius_km"`
	Geohash  string  `json:"geohash" bson:"geohash"`
}

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverOffline   DriverStatus = "offline"
)

type Driver struct {
	ID            string       `json:"driver_id" bson:"driver_id"`
	Name          string       `json:"name" bson:"name"`
	Phone         string       `json:"phone" bson:"phone"`
	Location      Coord        `json:"location" bson:"location"`
	ZoneID        string       `json:"zone_id" bson:"zone_id"`
	Status        DriverStatus `json:"status" bson:"status"`
	Rating        float64      `json:"rating" bson:"rating"` // 1..5
	VehicleID     string       `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	TotalRides    int          `json:"total_rides" bson:"total_rides"`
	EarningsToday float64      `json:"earnings_today" bson:"earnings_today"`
}

type Rider struct {
	ID            string  `json:"rider_id" bson:"rider_id"`
	Name          string  `json:"name" bson:"name"`
	Phone         string  `json:"phone" bson:"phone"`
	ZoneID        string  `json:"zone_id" bson:"zone_id"`
	Rating        float64 `json:"rating" bson:"rating"`
	TotalRides    int     `json:"total_rides" bson:"total_rides"`
	PaymentMethod string  `json:"payment_method" bson:"payment_method"`
	WalletBalance float64 `json:"wallet_balance" bson:"wallet_balance"`
}

type Vehicle struct {
	ID           string `json:"vehicle_id" bson:"vehicle_id"`
	Make         string `json:"make" bson:"make"`
	Model        string `json:"model" bson:"model"`
	Year         int    `json:"year" bson:"year"`
	LicensePlate string `json:"license_plate" bson:"license_plate"`
	Color        string `json:"color" bson:"color"`
	Capacity     int    `json:"capacity" bson:"capacity"`
}

type RideStatus string

const (
	RideRequested  RideStatus = "requested"
	RideAssigned   RideStatus = "assigned"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

func (s RideStatus) Valid() bool {
	switch s {
	case RideRequested, RideAssigned, RideInProgress, RideCompleted, RideCancelled:
		return true
	}
	return false
}

// DemandStatuses are the ride states counted as live demand.
var DemandStatuses = []RideStatus{RideRequested, RideAssigned}

const (
	PaymentPaid    = "paid"
	PaymentPending = "pending"
)

type Ride struct {
	ID              string     `json:"ride_id" bson:"ride_id"`
	RiderID         string     `json:"rider_id" bson:"rider_id"`
	DriverID        string     `json:"driver_id,omitempty" bson:"driver_id,omitempty"` // empty until assigned
	Pickup          Place      `json:"pickup_location" bson:"pickup_location"`
	Dropoff         Place      `json:"dropoff_location" bson:"dropoff_location"`
	ZoneID          string     `json:"zone_id" bson:"zone_id"`
	Status          RideStatus `json:"status" bson:"status"`
	DistanceKm      float64    `json:"distance_km" bson:"distance_km"`
	DurationMinutes int        `json:"duration_minutes" bson:"duration_minutes"`
	SurgeMultiplier float64    `json:"surge_multiplier" bson:"surge_multiplier"`
	Fare            float64    `json:"total_fare" bson:"total_fare"`
	PaymentStatus   string     `json:"payment_status" bson:"payment_status"`
	Rating          *float64   `json:"rating,omitempty" bson:"rating,omitempty"`
	RequestedAt     time.Time  `json:"request_time" bson:"request_time"`
	StartedAt       *time.Time `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndedAt         *time.Time `json:"end_time,omitempty" bson:"end_time,omitempty"`
}

// SurgeRecord is the outcome of one zone estimate. It is only stored when a
// caller asks for a snapshot.
type SurgeRecord struct {
	ZoneID     string  `json:"zone_id" bson:"zone_id"`
	ZoneName   string  `json:"zone_name" bson:"zone_name"`
	Demand     int     `json:"active_requests" bson:"active_requests"`
	Supply     int     `json:"available_drivers" bson:"available_drivers"`
	Ratio      float64 `json:"ratio" bson:"ratio"`
	Multiplier float64 `json:"current_surge" bson:"current_surge"`
	Level      string  `json:"demand_level" bson:"demand_level"`
	// AvgWaitMinutes is the mean age of the zone's pending requests.
	AvgWaitMinutes float64   `json:"avg_wait_time" bson:"avg_wait_time"`
	ComputedAt     time.Time `json:"timestamp" bson:"timestamp"`
}

type FareQuote struct {
	ZoneID          string  `json:"zone_id"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Fare            float64 `json:"total_fare"`
}
