package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/storage"
	"github.com/example/surge-dashboard/internal/surge"
)

const (
	RevenueDays      = 7
	TopEarnerCount   = 10
	DefaultThreshold = 1.5
)

// Service loads entities from the store and aggregates them.
type Service struct {
	Store          storage.Store
	Estimator      *surge.Estimator
	AlertThreshold float64
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Load reads every collection concurrently.
func (s *Service) Load(ctx context.Context) (Dataset, error) {
	var d Dataset
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Zones, err = s.Store.ReadZones(ctx)
		return wrap("zones", err)
	})
	g.Go(func() (err error) {
		d.Vehicles, err = s.Store.ListVehicles(ctx)
		return wrap("vehicles", err)
	})
	g.Go(func() (err error) {
		d.Drivers, err = s.Store.ListDrivers(ctx)
		return wrap("drivers", err)
	})
	g.Go(func() (err error) {
		d.Riders, err = s.Store.ListRiders(ctx)
		return wrap("riders", err)
	})
	g.Go(func() (err error) {
		d.Rides, err = s.Store.ListRides(ctx, nil)
		return wrap("rides", err)
	})
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	return nil
}

type Dashboard struct {
	Summary       Summary      `json:"summary"`
	RideStatus    []Count      `json:"ride_status"`
	DriverStatus  []Count      `json:"driver_status"`
	DailyRevenue  []DayRevenue `json:"daily_revenue"`
	TopEarners    []Earner     `json:"top_earners"`
	DriverRatings []Bucket     `json:"driver_ratings"`
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	d, err := s.Load(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Summary:       Summarize(d.Rides, d.Drivers),
		RideStatus:    RideStatusDistribution(d.Rides),
		DriverStatus:  DriverStatusDistribution(d.Drivers),
		DailyRevenue:  DailyRevenue(d.Rides, s.now(), RevenueDays),
		TopEarners:    TopEarners(d.Drivers, TopEarnerCount),
		DriverRatings: DriverRatingHistogram(d.Drivers),
	}, nil
}

type Report struct {
	Efficiency      Efficiency      `json:"trip_efficiency"`
	RevenueByStatus []StatusRevenue `json:"revenue_by_status"`
	FarePerKm       []Bucket        `json:"fare_per_km"`
	RideRatings     []RatingCount   `json:"ride_ratings"`
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	rides, err := s.Store.ListRides(ctx, nil)
	if err != nil {
		return Report{}, fmt.Errorf("load rides: %w", err)
	}
	return Report{
		Efficiency:      TripEfficiency(rides),
		RevenueByStatus: RevenueByStatus(rides),
		FarePerKm:       FarePerKm(rides),
		RideRatings:     RideRatings(rides),
	}, nil
}

// Alerts estimates every zone and keeps the ones above the alert threshold.
// Zones that fail to estimate are reported through the joined error.
func (s *Service) Alerts(ctx context.Context) ([]models.SurgeRecord, error) {
	zones, err := s.Store.ReadZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}
	recs, err := s.Estimator.EstimateAll(ctx, zones)
	threshold := s.AlertThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return HighSurge(recs, threshold), err
}

func (s *Service) Integrity(ctx context.Context) error {
	d, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return VerifyIntegrity(d)
}
