package surge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/observability"
)

// DefaultWindow is how far back requested/assigned rides count as demand.
const DefaultWindow = 15 * time.Minute

var tracer = otel.Tracer("github.com/example/surge-dashboard/internal/surge")

// Reader is the slice of the store the estimator needs.
type Reader interface {
	QueryRides(ctx context.Context, zoneID string, statuses []models.RideStatus, since time.Time) ([]models.Ride, error)
	QueryDrivers(ctx context.Context, zoneID string, status models.DriverStatus) ([]models.Driver, error)
	ReadZones(ctx context.Context) ([]models.Zone, error)
}

// Estimator computes per-zone surge multipliers from current store state.
// It holds no state between calls and never writes.
type Estimator struct {
	Store       Reader
	Policy      Policy
	Window      time.Duration
	Parallelism int
	Now         func() time.Time
}

func (e *Estimator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Estimator) window() time.Duration {
	if e.Window <= 0 {
		return DefaultWindow
	}
	return e.Window
}

func (e *Estimator) policy() Policy {
	if len(e.Policy.tiers) == 0 {
		return DefaultPolicy()
	}
	return e.Policy
}

// Estimate looks the zone up and computes its record. Unknown zones yield
// *models.InvalidZoneError.
func (e *Estimator) Estimate(ctx context.Context, zoneID string) (models.SurgeRecord, error) {
	zones, err := e.Store.ReadZones(ctx)
	if err != nil {
		return models.SurgeRecord{}, fmt.Errorf("read zones: %w", err)
	}
	for _, z := range zones {
		if z.ID == zoneID {
			return e.EstimateZone(ctx, z)
		}
	}
	return models.SurgeRecord{}, &models.InvalidZoneError{ZoneID: zoneID}
}

// EstimateZone computes the record for an already resolved zone.
func (e *Estimator) EstimateZone(ctx context.Context, z models.Zone) (models.SurgeRecord, error) {
	ctx, span := tracer.Start(ctx, "surge.Estimate")
	defer span.End()

	now := e.now()
	rides, err := e.Store.QueryRides(ctx, z.ID, models.DemandStatuses, now.Add(-e.window()))
	if err != nil {
		span.RecordError(err)
		return models.SurgeRecord{}, fmt.Errorf("query demand for zone %s: %w", z.ID, err)
	}
	drivers, err := e.Store.QueryDrivers(ctx, z.ID, models.DriverAvailable)
	if err != nil {
		span.RecordError(err)
		return models.SurgeRecord{}, fmt.Errorf("query supply for zone %s: %w", z.ID, err)
	}

	rec := Compute(e.policy(), len(rides), len(drivers))
	rec.ZoneID = z.ID
	rec.ZoneName = z.Name
	rec.AvgWaitMinutes = avgWaitMinutes(rides, now)
	rec.ComputedAt = now

	span.SetAttributes(
		attribute.String("zone_id", z.ID),
		attribute.Int("demand", rec.Demand),
		attribute.Int("supply", rec.Supply),
		attribute.Float64("multiplier", rec.Multiplier),
	)
	observability.ObserveSurge(rec)
	return rec, nil
}

// Compute turns raw counts into a record. Ratio is demand / supply; any
// demand with zero supply reports at least the top tier's ratio so it is
// priced at the top tier and ratio order still matches multiplier order.
func Compute(p Policy, demand, supply int) models.SurgeRecord {
	if demand < 0 {
		demand = 0
	}
	if supply < 0 {
		supply = 0
	}
	var ratio float64
	switch {
	case supply > 0:
		ratio = float64(demand) / float64(supply)
	case demand > 0:
		ratio = math.Max(float64(demand), p.TopRatio())
	}
	mult, level := p.Multiplier(ratio)
	return models.SurgeRecord{Demand: demand, Supply: supply, Ratio: ratio, Multiplier: mult, Level: level}
}

// avgWaitMinutes is the mean time pending rides have waited since their
// request, rounded to a tenth of a minute.
func avgWaitMinutes(pending []models.Ride, now time.Time) float64 {
	if len(pending) == 0 {
		return 0
	}
	var total time.Duration
	for _, r := range pending {
		if wait := now.Sub(r.RequestedAt); wait > 0 {
			total += wait
		}
	}
	mean := total.Minutes() / float64(len(pending))
	return math.Round(mean*10) / 10
}

// EstimateAll estimates each zone independently and concurrently. Records
// come back in input order; zones that fail are skipped and their errors
// joined into the returned error.
func (e *Estimator) EstimateAll(ctx context.Context, zones []models.Zone) ([]models.SurgeRecord, error) {
	recs := make([]models.SurgeRecord, len(zones))
	errs := make([]error, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	if e.Parallelism > 0 {
		g.SetLimit(e.Parallelism)
	}
	for i, z := range zones {
		g.Go(func() error {
			recs[i], errs[i] = e.EstimateZone(gctx, z)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.SurgeRecord, 0, len(zones))
	for i := range zones {
		if errs[i] == nil {
			out = append(out, recs[i])
		}
	}
	return out, errors.Join(errs...)
}

// DemandWindow is the trailing window used for demand counting.
func (e *Estimator) DemandWindow() time.Duration { return e.window() }
