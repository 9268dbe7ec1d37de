package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/models"
)

var (
	ErrRideNotFound = errors.New("ride not found")
	ErrNotPayable   = errors.New("ride is not payable")
)

type HoldRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
}

// Gateway is the card processor. StripeClient implements it.
type Gateway interface {
	Hold(ctx context.Context, req HoldRequest) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

type RideGetter interface {
	GetRide(ctx context.Context, id string) (models.Ride, bool, error)
}

type Settlement struct {
	RideID          string  `json:"ride_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Fare            float64 `json:"total_fare"`
	AmountMinor     int64   `json:"amount_minor"`
	Currency        string  `json:"currency"`
}

// Settler charges a completed ride's stored fare: hold, then capture. A
// failed capture releases the hold.
type Settler struct {
	Rides    RideGetter
	Gateway  Gateway
	Currency string
	Logger   *slog.Logger
}

func (s *Settler) Settle(ctx context.Context, rideID string) (Settlement, error) {
	ride, ok, err := s.Rides.GetRide(ctx, rideID)
	if err != nil {
		return Settlement{}, err
	}
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %s", ErrRideNotFound, rideID)
	}
	if ride.Status != models.RideCompleted || ride.Fare <= 0 {
		return Settlement{}, fmt.Errorf("%w: %s is %s with fare %.2f", ErrNotPayable, rideID, ride.Status, ride.Fare)
	}

	currency := strings.ToLower(s.Currency)
	if currency == "" {
		currency = "usd"
	}
	out := Settlement{RideID: ride.ID, Fare: ride.Fare, AmountMinor: fare.MinorUnits(ride.Fare), Currency: currency}
	id, err := s.Gateway.Hold(ctx, HoldRequest{
		Amount:         out.AmountMinor,
		Currency:       currency,
		IdempotencyKey: "ride-settle-" + ride.ID,
		Metadata: map[string]string{
			"ride_id":  ride.ID,
			"rider_id": ride.RiderID,
			"zone_id":  ride.ZoneID,
			"surge":    fmt.Sprintf("%.2f", ride.SurgeMultiplier),
		},
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("hold: %w", err)
	}
	out.PaymentIntentID = id
	if err := s.Gateway.Capture(ctx, id); err != nil {
		if cerr := s.Gateway.Cancel(ctx, id); cerr != nil {
			s.logger().Error("release hold failed", "ride_id", ride.ID, "payment_intent", id, "error", cerr)
		}
		return Settlement{}, fmt.Errorf("capture: %w", err)
	}
	s.logger().Info("ride settled", "ride_id", ride.ID, "payment_intent", id, "amount_minor", out.AmountMinor)
	return out, nil
}

func (s *Settler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
