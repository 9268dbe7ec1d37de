package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/example/surge-dashboard/internal/cache"
	"github.com/example/surge-dashboard/internal/config"
	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/generator"
	"github.com/example/surge-dashboard/internal/geo"
	"github.com/example/surge-dashboard/internal/logging"
	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/storage"
	"github.com/example/surge-dashboard/internal/surge"
)

type StoreFlags struct {
	Store         string `name:"store" env:"STORE" enum:"memory,mongo,postgres" default:"mongo" help:"Backing store."`
	MongoURI      string `name:"mongo-uri" env:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `name:"mongo-database" env:"MONGO_DATABASE" default:"ride_demo"`
	PGDSN         string `name:"pg-dsn" env:"PG_DSN"`
	LogLevel      string `name:"log-level" env:"LOG_LEVEL" default:"info"`
}

func (f StoreFlags) open(ctx context.Context) (storage.Store, error) {
	switch f.Store {
	case config.StoreMongo:
		return storage.NewMongoStore(ctx, f.MongoURI, f.MongoDatabase)
	case config.StorePostgres:
		return storage.NewPostgresStore(ctx, f.PGDSN)
	default:
		return storage.NewMemoryStore(), nil
	}
}

type SurgeFlags struct {
	Window string `name:"window" env:"SURGE_WINDOW" default:"15m" help:"Demand look-back window."`
	Tiers  string `name:"tiers" env:"SURGE_TIERS" help:"Tier table as ratio:multiplier pairs, e.g. 1:1.2,2:1.5,4:2.0."`
}

func (f SurgeFlags) estimator(store surge.Reader) (*surge.Estimator, error) {
	window, err := parseWindow(f.Window)
	if err != nil {
		return nil, err
	}
	policy := surge.DefaultPolicy()
	if f.Tiers != "" {
		if policy, err = surge.ParsePolicy(f.Tiers); err != nil {
			return nil, fmt.Errorf("invalid tiers: %w", err)
		}
	}
	return &surge.Estimator{Store: store, Policy: policy, Window: window}, nil
}

// FareFlags mirror the server's fare settings so seeded fares match quotes.
type FareFlags struct {
	FareBase  float64 `name:"fare-base" env:"FARE_BASE" default:"3.0" help:"Base fare."`
	FarePerKm float64 `name:"fare-per-km" env:"FARE_PER_KM" default:"1.5" help:"Per-km rate."`
}

func (f FareFlags) policy() (fare.Policy, error) {
	p := fare.Policy{BaseFare: f.FareBase, PerKm: f.FarePerKm}
	return p, p.Validate()
}

// RedisFlags point at the Redis the server uses for its zone locator and
// snapshot cache. Both are left alone when RedisAddr is empty.
type RedisFlags struct {
	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR"`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisGeoKey   string `name:"redis-geo-key" env:"REDIS_GEO_KEY" default:"zones_geo"`
}

func (f RedisFlags) connect(ctx context.Context) (*redis.Client, error) {
	if f.RedisAddr == "" {
		return nil, nil
	}
	rc := redis.NewClient(&redis.Options{Addr: f.RedisAddr, Password: f.RedisPassword})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

type seedCmd struct {
	StoreFlags `embed:""`
	SurgeFlags `embed:""`
	FareFlags  `embed:""`
	RedisFlags `embed:""`
	Zones      int   `name:"zones" default:"10"`
	Vehicles   int   `name:"vehicles" default:"50"`
	Drivers    int   `name:"drivers" default:"50"`
	Riders     int   `name:"riders" default:"100"`
	Rides      int   `name:"rides" default:"200"`
	Seed       int64 `name:"seed" help:"Random seed; 0 picks one from the clock."`
	Reset      bool  `name:"reset" help:"Clear every collection before seeding."`
}

func (c *seedCmd) Run(ctx context.Context, out io.Writer) error {
	store, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	rc, err := c.connect(ctx)
	if err != nil {
		return err
	}
	var (
		locator   geo.Locator
		snapshots *cache.SnapshotCache
	)
	if rc != nil {
		defer rc.Close()
		locator = geo.NewRedisGeo(rc, c.RedisGeoKey)
		snapshots = cache.NewSnapshotCache(rc)
	}
	return c.seed(ctx, store, locator, snapshots, out)
}

// seed resets (when asked) and fills store. Zones are registered with
// locator so a running server can resolve pickups in them.
func (c *seedCmd) seed(ctx context.Context, store storage.Store, locator geo.Locator, snapshots *cache.SnapshotCache, out io.Writer) error {
	logger := logging.NewLogger(c.LogLevel, "ridectl")
	counts := generator.Counts{Zones: c.Zones, Vehicles: c.Vehicles, Drivers: c.Drivers, Riders: c.Riders, Rides: c.Rides}
	if err := counts.Validate(); err != nil {
		return err
	}
	fp, err := c.policy()
	if err != nil {
		return err
	}
	est, err := c.estimator(store)
	if err != nil {
		return err
	}

	if c.Reset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if locator != nil {
			if err := locator.Reset(ctx); err != nil {
				return fmt.Errorf("reset zone locator: %w", err)
			}
		}
		if snapshots != nil {
			if err := snapshots.Reset(ctx); err != nil {
				return fmt.Errorf("reset snapshot cache: %w", err)
			}
		}
	}

	opts := []generator.Option{generator.WithLogger(logger), generator.WithFare(fp)}
	if locator != nil {
		opts = append(opts, generator.WithLocator(locator))
	} else {
		logger.Warn("REDIS_ADDR not set; a running server picks up new zones on restart")
	}
	if c.Seed != 0 {
		opts = append(opts, generator.WithSeed(c.Seed))
	}
	batch, err := generator.New(store, est, opts...).Generate(ctx, counts)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(map[string]any{
		"batch_id": batch.ID,
		"counts": generator.Counts{
			Zones:    len(batch.Zones),
			Vehicles: len(batch.Vehicles),
			Drivers:  len(batch.Drivers),
			Riders:   len(batch.Riders),
			Rides:    len(batch.Rides),
		},
	})
}

type estimateCmd struct {
	StoreFlags `embed:""`
	SurgeFlags `embed:""`
	Zone       string `arg:"" optional:"" help:"Zone id; every zone when omitted."`
	Snapshot   bool   `name:"snapshot" help:"Store the computed records."`
}

func (c *estimateCmd) Run(ctx context.Context, out io.Writer) error {
	store, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	est, err := c.estimator(store)
	if err != nil {
		return err
	}

	var recs []models.SurgeRecord
	if c.Zone != "" {
		rec, err := est.Estimate(ctx, c.Zone)
		if err != nil {
			return err
		}
		recs = []models.SurgeRecord{rec}
	} else {
		zones, err := store.ReadZones(ctx)
		if err != nil {
			return err
		}
		recs, err = est.EstimateAll(ctx, zones)
		if err != nil {
			slog.Warn("some zones failed", "error", err)
		}
	}
	if c.Snapshot && len(recs) > 0 {
		if err := store.SaveSnapshots(ctx, recs); err != nil {
			return fmt.Errorf("save snapshots: %w", err)
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

var cli struct {
	Seed     seedCmd     `cmd:"" help:"Generate a batch of synthetic ride data."`
	Estimate estimateCmd `cmd:"" help:"Compute surge multipliers."`
}

func main() {
	_ = config.LoadDotEnv("")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Name("ridectl"),
		kong.Description("Seed and inspect the surge dashboard data store."),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
