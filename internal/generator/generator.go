// Package generator seeds the store with a consistent synthetic city:
// zones, vehicles, drivers, riders and rides whose fares are priced with the
// live surge estimate of their zone.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/mmcloughlin/geohash"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/surge-dashboard/internal/eta"
	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/matcher"
	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/observability"
	"github.com/example/surge-dashboard/internal/surge"
)

var tracer = otel.Tracer("github.com/example/surge-dashboard/internal/generator")

var errNoEstimator = errors.New("generator: an estimator is required to price rides")

// History is how far back terminal and in-progress rides are spread.
const History = 72 * time.Hour

// Store is what the generator writes through and the estimator reads from.
type Store interface {
	surge.Reader
	InsertEntities(ctx context.Context, collection string, records []any) error
}

// Counts is how many records of each kind one call inserts.
type Counts struct {
	Zones    int `json:"zones"`
	Vehicles int `json:"vehicles"`
	Drivers  int `json:"drivers"`
	Riders   int `json:"riders"`
	Rides    int `json:"rides"`
}

// Validate checks counts against what each entity references. Rides need
// zones, drivers and riders; drivers and riders need zones.
func (c Counts) Validate() error {
	if c.Zones < 0 || c.Vehicles < 0 || c.Drivers < 0 || c.Riders < 0 || c.Rides < 0 {
		return fmt.Errorf("counts must be >= 0: %+v", c)
	}
	if c.Rides > 0 {
		var missing []string
		if c.Zones == 0 {
			missing = append(missing, models.CollectionZones)
		}
		if c.Drivers == 0 {
			missing = append(missing, models.CollectionDrivers)
		}
		if c.Riders == 0 {
			missing = append(missing, models.CollectionRiders)
		}
		if len(missing) > 0 {
			return &models.PrerequisiteError{Entity: models.CollectionRides, Missing: missing}
		}
	}
	if c.Zones == 0 {
		switch {
		case c.Drivers > 0:
			return &models.PrerequisiteError{Entity: models.CollectionDrivers, Missing: []string{models.CollectionZones}}
		case c.Riders > 0:
			return &models.PrerequisiteError{Entity: models.CollectionRiders, Missing: []string{models.CollectionZones}}
		}
	}
	return nil
}

// Batch is everything one Generate call inserted.
type Batch struct {
	ID       string           `json:"batch_id"`
	Zones    []models.Zone    `json:"zones"`
	Vehicles []models.Vehicle `json:"vehicles"`
	Drivers  []models.Driver  `json:"drivers"`
	Riders   []models.Rider   `json:"riders"`
	Rides    []models.Ride    `json:"rides"`
}

// StatusWeight is one entry of the ride status distribution.
type StatusWeight struct {
	Status models.RideStatus
	Weight int
}

// DefaultStatusWeights favours history over live demand.
var DefaultStatusWeights = []StatusWeight{
	{models.RideCompleted, 60},
	{models.RideRequested, 15},
	{models.RideInProgress, 10},
	{models.RideCancelled, 10},
	{models.RideAssigned, 5},
}

type Option func(*Generator)

// WithSeed makes every call reproducible for a given clock.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.seed = seed }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithFare(p fare.Policy) Option {
	return func(g *Generator) { g.fare = p }
}

// WithLocator registers every generated zone with the locator used by quotes.
func WithLocator(l geo.Locator) Option {
	return func(g *Generator) { g.locator = l }
}

// WithCenter sets the city center zones are scattered around.
func WithCenter(c models.Coord, spreadKm float64) Option {
	return func(g *Generator) {
		g.center = c
		if spreadKm > 0 {
			g.spreadKm = spreadKm
		}
	}
}

func WithStatusWeights(w []StatusWeight) Option {
	return func(g *Generator) { g.weights = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// Generator inserts synthetic batches. A Generator is not safe for
// concurrent use; its random source advances with every call.
type Generator struct {
	store     Store
	estimator *surge.Estimator
	locator   geo.Locator
	fare      fare.Policy
	seed      int64
	rng       *rand.Rand
	fake      faker.Faker
	now       func() time.Time
	center    models.Coord
	spreadKm  float64
	weights   []StatusWeight
	logger    *slog.Logger
}

func New(store Store, estimator *surge.Estimator, opts ...Option) *Generator {
	g := &Generator{
		store:     store,
		estimator: estimator,
		fare:      fare.DefaultPolicy(),
		seed:      time.Now().UnixNano(),
		now:       func() time.Time { return time.Now().UTC() },
		center:    models.Coord{Lat: 40.7580, Lon: -73.9855},
		spreadKm:  8,
		weights:   DefaultStatusWeights,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.rng = rand.New(rand.NewSource(g.seed))
	g.fake = faker.NewWithSeed(rand.NewSource(g.seed))
	return g
}

// Generate inserts a fresh batch. Zones, vehicles, drivers and riders go in
// first, then every non-completed ride. Completed rides are priced last with
// the estimator's multiplier for their zone, so stored fares agree with what
// the estimator reports for the state the batch created.
func (g *Generator) Generate(ctx context.Context, c Counts) (Batch, error) {
	if err := c.Validate(); err != nil {
		return Batch{}, err
	}
	if c.Rides > 0 && g.estimator == nil {
		return Batch{}, errNoEstimator
	}
	ctx, span := tracer.Start(ctx, "generator.Generate")
	defer span.End()

	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return Batch{}, fmt.Errorf("batch id: %w", err)
	}
	now := g.now()
	b := Batch{ID: id.String()[:8]}
	span.SetAttributes(attribute.String("batch_id", b.ID), attribute.Int("rides", c.Rides))

	b.Zones = g.zones(b.ID, c.Zones)
	b.Vehicles = g.vehicles(b.ID, c.Vehicles)
	b.Drivers = g.drivers(b.ID, c.Drivers, b.Zones, b.Vehicles)
	b.Riders = g.riders(b.ID, c.Riders, b.Zones)
	b.Rides = g.rides(b.ID, c.Rides, b.Zones, b.Drivers, b.Riders, now)

	if err := insert(ctx, g.store, models.CollectionZones, b.Zones); err != nil {
		return Batch{}, err
	}
	if g.locator != nil {
		for _, z := range b.Zones {
			if err := g.locator.Upsert(ctx, z); err != nil {
				return Batch{}, fmt.Errorf("index zone %s: %w", z.ID, err)
			}
		}
	}
	if err := insert(ctx, g.store, models.CollectionVehicles, b.Vehicles); err != nil {
		return Batch{}, err
	}
	if err := insert(ctx, g.store, models.CollectionDrivers, b.Drivers); err != nil {
		return Batch{}, err
	}
	if err := insert(ctx, g.store, models.CollectionRiders, b.Riders); err != nil {
		return Batch{}, err
	}

	var active, completed []models.Ride
	for _, r := range b.Rides {
		if r.Status == models.RideCompleted {
			completed = append(completed, r)
		} else {
			active = append(active, r)
		}
	}
	if err := insert(ctx, g.store, models.CollectionRides, active); err != nil {
		return Batch{}, err
	}

	multipliers := make(map[string]float64)
	for i := range completed {
		r := &completed[i]
		m, ok := multipliers[r.ZoneID]
		if !ok {
			rec, err := g.estimator.Estimate(ctx, r.ZoneID)
			if err != nil {
				span.RecordError(err)
				return Batch{}, fmt.Errorf("price ride %s: %w", r.ID, err)
			}
			m = rec.Multiplier
			multipliers[r.ZoneID] = m
		}
		r.SurgeMultiplier = m
		r.Fare = g.fare.Fare(r.DistanceKm, m)
	}
	if err := insert(ctx, g.store, models.CollectionRides, completed); err != nil {
		return Batch{}, err
	}

	byID := make(map[string]models.Ride, len(completed))
	for _, r := range completed {
		byID[r.ID] = r
	}
	for i, r := range b.Rides {
		if done, ok := byID[r.ID]; ok {
			b.Rides[i] = done
		}
	}

	g.logger.Info("generated batch",
		"batch_id", b.ID,
		"zones", len(b.Zones),
		"vehicles", len(b.Vehicles),
		"drivers", len(b.Drivers),
		"riders", len(b.Riders),
		"rides", len(b.Rides),
	)
	return b, nil
}

func insert[T any](ctx context.Context, s Store, collection string, items []T) error {
	if len(items) == 0 {
		return nil
	}
	recs := make([]any, len(items))
	for i, v := range items {
		recs[i] = v
	}
	if err := s.InsertEntities(ctx, collection, recs); err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}
	observability.EntitiesGenerated.WithLabelValues(collection).Add(float64(len(items)))
	return nil
}

var (
	zoneAreas      = []string{"Downtown", "Midtown", "Uptown", "Harbor", "Airport", "University", "Riverside", "Old Town", "Tech Park", "Stadium"}
	zoneDirections = []string{"North", "South", "East", "West", "Central"}
	colors         = []string{"Black", "White", "Silver", "Gray", "Blue", "Red"}
	paymentMethods = []string{"card", "wallet", "cash", "paypal"}
)

func (g *Generator) zones(batch string, n int) []models.Zone {
	out := make([]models.Zone, 0, n)
	for i := 0; i < n; i++ {
		area := zoneAreas[i%len(zoneAreas)]
		dir := zoneDirections[(i/len(zoneAreas))%len(zoneDirections)]
		center := g.scatter(g.center, g.spreadKm)
		out = append(out, models.Zone{
			ID:       fmt.Sprintf("ZONE-%s-%03d", batch, i+1),
			Name:     fmt.Sprintf("%s %s", area, dir),
			Center:   center,
			RadiusKm: round(1.5+g.rng.Float64()*1.5, 2),
			Geohash:  geohash.EncodeWithPrecision(center.Lat, center.Lon, 6),
		})
	}
	return out
}

func (g *Generator) vehicles(batch string, n int) []models.Vehicle {
	out := make([]models.Vehicle, 0, n)
	year := g.now().Year()
	for i := 0; i < n; i++ {
		car := g.fake.Car()
		capacity := 4
		if g.rng.Intn(5) == 0 {
			capacity = 6
		}
		out = append(out, models.Vehicle{
			ID:           fmt.Sprintf("VEH-%s-%04d", batch, i+1),
			Make:         car.Maker(),
			Model:        car.Model(),
			Year:         year - g.rng.Intn(8),
			LicensePlate: car.Plate(),
			Color:        g.fake.RandomStringElement(colors),
			Capacity:     capacity,
		})
	}
	return out
}

func (g *Generator) drivers(batch string, n int, zones []models.Zone, vehicles []models.Vehicle) []models.Driver {
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		z := zones[g.rng.Intn(len(zones))]
		status := models.DriverAvailable
		if g.rng.Intn(4) == 0 {
			status = models.DriverOffline
		}
		d := models.Driver{
			ID:         fmt.Sprintf("DRV-%s-%04d", batch, i+1),
			Name:       g.fake.Person().Name(),
			Phone:      g.phone(),
			Location:   g.scatter(z.Center, z.RadiusKm),
			ZoneID:     z.ID,
			Status:     status,
			Rating:     round(3.5+g.rng.Float64()*1.5, 1),
			TotalRides: 20 + g.rng.Intn(480),
		}
		if status != models.DriverOffline {
			d.EarningsToday = round(g.rng.Float64()*250, 2)
		}
		if len(vehicles) > 0 {
			d.VehicleID = vehicles[i%len(vehicles)].ID
		}
		out = append(out, d)
	}
	return out
}

func (g *Generator) riders(batch string, n int, zones []models.Zone) []models.Rider {
	out := make([]models.Rider, 0, n)
	for i := 0; i < n; i++ {
		z := zones[g.rng.Intn(len(zones))]
		out = append(out, models.Rider{
			ID:            fmt.Sprintf("RDR-%s-%04d", batch, i+1),
			Name:          g.fake.Person().Name(),
			Phone:         g.phone(),
			ZoneID:        z.ID,
			Rating:        round(3.0+g.rng.Float64()*2.0, 1),
			TotalRides:    g.rng.Intn(200),
			PaymentMethod: g.fake.RandomStringElement(paymentMethods),
			WalletBalance: round(g.rng.Float64()*150, 2),
		})
	}
	return out
}

// rides plans every ride of the batch. Drivers taken by an assigned or
// in-progress ride are flipped to on_trip in place so the driver slice
// matches the rides before anything is inserted.
func (g *Generator) rides(batch string, n int, zones []models.Zone, drivers []models.Driver, riders []models.Rider, now time.Time) []models.Ride {
	if n == 0 {
		return nil
	}
	zoneByID := make(map[string]models.Zone, len(zones))
	for _, z := range zones {
		zoneByID[z.ID] = z
	}
	free := make([]int, 0, len(drivers))
	for i := range drivers {
		free = append(free, i)
	}
	window := surge.DefaultWindow
	if g.estimator != nil {
		window = g.estimator.DemandWindow()
	}

	out := make([]models.Ride, 0, n)
	for i := 0; i < n; i++ {
		rider := riders[g.rng.Intn(len(riders))]
		z := zones[g.rng.Intn(len(zones))]
		if g.rng.Intn(3) > 0 {
			z = zoneByID[rider.ZoneID]
		}
		pickup := g.scatter(z.Center, z.RadiusKm)
		dropoff := g.scatter(pickup, 12)
		dist := math.Max(eta.DistanceKm(pickup, dropoff), 0.5)
		speed := eta.DefaultSpeedKmh * (0.7 + g.rng.Float64()*0.6)

		r := models.Ride{
			ID:              fmt.Sprintf("RIDE-%s-%05d", batch, i+1),
			RiderID:         rider.ID,
			Pickup:          models.Place{Address: g.address(), Coord: pickup},
			Dropoff:         models.Place{Address: g.address(), Coord: dropoff},
			ZoneID:          z.ID,
			Status:          g.status(),
			DistanceKm:      dist,
			DurationMinutes: eta.EstimateMinutes(dist, speed),
			PaymentStatus:   models.PaymentPending,
		}
		trip := time.Duration(r.DurationMinutes) * time.Minute
		pickupWait := time.Duration(2+g.rng.Intn(7)) * time.Minute

		switch r.Status {
		case models.RideAssigned, models.RideInProgress:
			idx := g.takeDriver(&free, drivers, z.ID, pickup)
			if idx < 0 {
				r.Status = models.RideRequested
				break
			}
			drivers[idx].Status = models.DriverOnTrip
			r.DriverID = drivers[idx].ID
		case models.RideCompleted:
			r.DriverID = drivers[g.rng.Intn(len(drivers))].ID
		case models.RideCancelled:
			if g.rng.Intn(2) == 0 {
				r.DriverID = drivers[g.rng.Intn(len(drivers))].ID
			}
		}

		switch r.Status {
		case models.RideRequested, models.RideAssigned:
			r.RequestedAt = now.Add(-g.within(window))
		case models.RideInProgress:
			r.RequestedAt = now.Add(-window - g.within(30*time.Minute))
			started := r.RequestedAt.Add(pickupWait)
			r.StartedAt = &started
		case models.RideCompleted:
			r.RequestedAt = now.Add(-(pickupWait + trip + g.within(History-pickupWait-trip)))
			started := r.RequestedAt.Add(pickupWait)
			ended := started.Add(trip)
			r.StartedAt, r.EndedAt = &started, &ended
			r.PaymentStatus = models.PaymentPaid
			rating := round(3.0+g.rng.Float64()*2.0, 1)
			r.Rating = &rating
		case models.RideCancelled:
			r.RequestedAt = now.Add(-g.within(History))
		}

		if r.Status != models.RideCancelled {
			r.SurgeMultiplier = 1.0
			r.Fare = g.fare.Fare(r.DistanceKm, 1.0)
		}
		out = append(out, r)
	}
	return out
}

// takeDriver removes and returns the best-ranked free driver for pickup,
// preferring drivers in zone. It returns -1 when no driver is free.
func (g *Generator) takeDriver(free *[]int, drivers []models.Driver, zoneID string, pickup models.Coord) int {
	pool := *free
	if len(pool) == 0 {
		return -1
	}
	var local []int
	for i, idx := range pool {
		if drivers[idx].ZoneID == zoneID {
			local = append(local, i)
		}
	}
	if len(local) == 0 {
		local = make([]int, len(pool))
		for i := range pool {
			local[i] = i
		}
	}
	cands := make([]models.Driver, len(local))
	for i, pos := range local {
		cands[i] = drivers[pool[pos]]
	}
	best, _ := matcher.Best(cands, pickup, eta.DefaultSpeedKmh)
	pick := local[best.Index]
	idx := pool[pick]
	*free = append(pool[:pick], pool[pick+1:]...)
	return idx
}

func (g *Generator) status() models.RideStatus {
	total := 0
	for _, w := range g.weights {
		total += w.Weight
	}
	if total <= 0 {
		return models.RideRequested
	}
	n := g.rng.Intn(total)
	for _, w := range g.weights {
		if n < w.Weight {
			return w.Status
		}
		n -= w.Weight
	}
	return g.weights[len(g.weights)-1].Status
}

// within returns a random duration in [0, d).
func (g *Generator) within(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(g.rng.Int63n(int64(d)))
}

// scatter returns a uniformly distributed point inside the circle.
func (g *Generator) scatter(c models.Coord, radiusKm float64) models.Coord {
	r := radiusKm * math.Sqrt(g.rng.Float64()) * 0.95
	theta := g.rng.Float64() * 2 * math.Pi
	return geo.Offset(c, r*math.Cos(theta), r*math.Sin(theta))
}

func (g *Generator) phone() string {
	return fmt.Sprintf("+1-555-%03d-%04d", g.rng.Intn(1000), g.rng.Intn(10000))
}

func (g *Generator) address() string {
	return fmt.Sprintf("%d %s", 1+g.rng.Intn(999), g.fake.Address().StreetName())
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
