package matcher

import (
	"sort"

	"github.com/example/surge-dashboard/internal/eta"
	"github.com/example/surge-dashboard/internal/models"
)

// RatingWeight is the cost in seconds of each star below five.
const RatingWeight = 30.0

type Candidate struct {
	Driver  models.Driver
	Index   int     // position in the slice passed to Rank
	ETASecs float64 // pickup ETA
	Cost    float64
}

// Rank scores drivers for a pickup, cheapest first. Cost is the pickup ETA
// plus RatingWeight per missing star; ties keep input order.
func Rank(drivers []models.Driver, pickup models.Coord, speedKmh float64) []Candidate {
	if speedKmh <= 0 {
		speedKmh = eta.DefaultSpeedKmh
	}
	out := make([]Candidate, 0, len(drivers))
	for i, d := range drivers {
		secs := eta.DistanceKm(d.Location, pickup) / speedKmh * 3600
		out = append(out, Candidate{
			Driver:  d,
			Index:   i,
			ETASecs: secs,
			Cost:    secs + RatingWeight*(5.0-d.Rating),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}

// Best returns the cheapest candidate, or false when drivers is empty.
func Best(drivers []models.Driver, pickup models.Coord, speedKmh float64) (Candidate, bool) {
	ranked := Rank(drivers, pickup, speedKmh)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}
