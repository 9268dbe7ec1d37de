// Package booking records new ride requests priced at the pickup zone's
// current surge.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/surge"
)

var ErrUnknownRider = errors.New("unknown rider")

type Request struct {
	RiderID string       `json:"rider_id"`
	Pickup  models.Place `json:"pickup_location"`
	Dropoff models.Place `json:"dropoff_location"`
}

type Store interface {
	ListRiders(ctx context.Context) ([]models.Rider, error)
	InsertEntities(ctx context.Context, collection string, records []any) error
}

type Service struct {
	Store  Store
	Quoter *surge.Quoter
	Now    func() time.Time
}

// Request stores a new requested ride. The ride counts as demand in its
// zone from the moment it is inserted.
func (s *Service) Request(ctx context.Context, req Request) (models.Ride, error) {
	if strings.TrimSpace(req.RiderID) == "" {
		return models.Ride{}, fmt.Errorf("%w: rider_id is required", ErrUnknownRider)
	}
	riders, err := s.Store.ListRiders(ctx)
	if err != nil {
		return models.Ride{}, err
	}
	found := false
	for _, r := range riders {
		if r.ID == req.RiderID {
			found = true
			break
		}
	}
	if !found {
		return models.Ride{}, fmt.Errorf("%w: %s", ErrUnknownRider, req.RiderID)
	}

	q, err := s.Quoter.Quote(ctx, req.Pickup.Coord, req.Dropoff.Coord)
	if err != nil {
		return models.Ride{}, err
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	ride := models.Ride{
		ID:              "RIDE-" + strings.ToUpper(uuid.NewString()[:13]),
		RiderID:         req.RiderID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		ZoneID:          q.ZoneID,
		Status:          models.RideRequested,
		DistanceKm:      q.DistanceKm,
		DurationMinutes: q.DurationMinutes,
		SurgeMultiplier: q.SurgeMultiplier,
		Fare:            q.Fare,
		PaymentStatus:   models.PaymentPending,
		RequestedAt:     now,
	}
	if err := s.Store.InsertEntities(ctx, models.CollectionRides, []any{ride}); err != nil {
		return models.Ride{}, fmt.Errorf("insert ride: %w", err)
	}
	return ride, nil
}
