package eta

import (
	"math"

	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/models"
)

// RoadFactor converts straight-line distance to a typical street distance.
const RoadFactor = 1.3

// DefaultSpeedKmh is an average city driving speed.
const DefaultSpeedKmh = 24.0

// DistanceKm estimates the driven distance between two points, rounded to
// 10 meters.
func DistanceKm(from, to models.Coord) float64 {
	d := geo.HaversineKm(from.Lat, from.Lon, to.Lat, to.Lon) * RoadFactor
	return math.Round(d*100) / 100
}

// EstimateMinutes returns the trip duration in whole minutes, at least one.
func EstimateMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	m := int(math.Ceil(distanceKm / speedKmh * 60))
	if m < 1 {
		m = 1
	}
	return m
}
