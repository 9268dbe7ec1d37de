package surge

import (
	"context"
	"errors"

	"github.com/example/surge-dashboard/internal/eta"
	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/models"
)

var ErrOutsideZones = errors.New("pickup is outside every zone")

// Quoter prices a prospective trip with the pickup zone's current multiplier.
// The located zone is checked against the store, so a locator entry for a
// deleted zone yields *models.InvalidZoneError.
type Quoter struct {
	Locator   geo.Locator
	Estimator *Estimator
	Fare      fare.Policy
	SpeedKmh  float64
}

func (q *Quoter) Quote(ctx context.Context, pickup, dropoff models.Coord) (models.FareQuote, error) {
	z, ok, err := q.Locator.Locate(ctx, pickup)
	if err != nil {
		return models.FareQuote{}, err
	}
	if !ok {
		return models.FareQuote{}, ErrOutsideZones
	}
	rec, err := q.Estimator.Estimate(ctx, z.ID)
	if err != nil {
		return models.FareQuote{}, err
	}
	dist := eta.DistanceKm(pickup, dropoff)
	return models.FareQuote{
		ZoneID:          rec.ZoneID,
		DistanceKm:      dist,
		DurationMinutes: eta.EstimateMinutes(dist, q.SpeedKmh),
		SurgeMultiplier: rec.Multiplier,
		Fare:            q.Fare.Fare(dist, rec.Multiplier),
	}, nil
}
