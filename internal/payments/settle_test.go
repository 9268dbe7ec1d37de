package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/storage"
)

type fakeGateway struct {
	holds      []HoldRequest
	captureErr error
	captured   []string
	cancelled  []string
}

func (f *fakeGateway) Hold(_ context.Context, req HoldRequest) (string, error) {
	f.holds = append(f.holds, req)
	return "pi_123", nil
}

func (f *fakeGateway) Capture(_ context.Context, id string) error {
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captured = append(f.captured, id)
	return nil
}

func (f *fakeGateway) Cancel(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newSettler(t *testing.T, gw Gateway) *Settler {
	t.Helper()
	s := storage.NewMemoryStore()
	require.NoError(t, s.InsertEntities(context.Background(), models.CollectionRides, []any{
		models.Ride{ID: "done", RiderID: "p1", ZoneID: "z1", Status: models.RideCompleted, Fare: 18.35, SurgeMultiplier: 1.5},
		models.Ride{ID: "live", RiderID: "p1", ZoneID: "z1", Status: models.RideRequested, Fare: 9},
	}))
	return &Settler{Rides: s, Gateway: gw, Currency: "USD"}
}

func TestSettleHoldsAndCapturesFare(t *testing.T) {
	gw := &fakeGateway{}
	got, err := newSettler(t, gw).Settle(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, int64(1835), got.AmountMinor)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "pi_123", got.PaymentIntentID)
	require.Len(t, gw.holds, 1)
	assert.Equal(t, "ride-settle-done", gw.holds[0].IdempotencyKey)
	assert.Equal(t, "1.50", gw.holds[0].Metadata["surge"])
	assert.Equal(t, []string{"pi_123"}, gw.captured)
}

func TestSettleRejects(t *testing.T) {
	gw := &fakeGateway{}
	s := newSettler(t, gw)
	_, err := s.Settle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRideNotFound)
	_, err = s.Settle(context.Background(), "live")
	assert.ErrorIs(t, err, ErrNotPayable)
	assert.Empty(t, gw.holds)
}

func TestSettleReleasesHoldWhenCaptureFails(t *testing.T) {
	boom := errors.New("card declined")
	gw := &fakeGateway{captureErr: boom}
	_, err := newSettler(t, gw).Settle(context.Background(), "done")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"pi_123"}, gw.cancelled)
}
