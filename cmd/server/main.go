package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/surge-dashboard/internal/analytics"
	"github.com/example/surge-dashboard/internal/booking"
	"github.com/example/surge-dashboard/internal/cache"
	"github.com/example/surge-dashboard/internal/config"
	"github.com/example/surge-dashboard/internal/dispatch"
	"github.com/example/surge-dashboard/internal/feed"
	"github.com/example/surge-dashboard/internal/generator"
	"github.com/example/surge-dashboard/internal/geo"
	httpapi "github.com/example/surge-dashboard/internal/http"
	"github.com/example/surge-dashboard/internal/ingest"
	"github.com/example/surge-dashboard/internal/logging"
	"github.com/example/surge-dashboard/internal/observability"
	"github.com/example/surge-dashboard/internal/payments"
	"github.com/example/surge-dashboard/internal/storage"
	"github.com/example/surge-dashboard/internal/surge"
)

func main() {
	if err := config.LoadDotEnv(""); err != nil {
		slog.Error("load .env", "error", err)
	}
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "surge-api")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.TraceSampleRatio)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	var rc *redis.Client
	var locator geo.Locator = geo.NewIndex()
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locator = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
	}
	if err := primeLocator(ctx, store, locator); err != nil {
		return err
	}

	estimator := &surge.Estimator{
		Store:       store,
		Policy:      cfg.SurgeTiers,
		Window:      cfg.SurgeWindow,
		Parallelism: cfg.SurgeParallelism,
	}
	gen := generator.New(store, estimator,
		generator.WithFare(cfg.Fare),
		generator.WithLocator(locator),
		generator.WithLogger(logger),
	)

	hub := feed.NewHub(logger)
	recorder := surge.NewRecorder(logger).Add("store", surge.SinkFunc(store.SaveSnapshots))
	var snapshots *cache.SnapshotCache
	if rc != nil {
		snapshots = cache.NewSnapshotCache(rc)
		recorder.Add("redis", snapshots)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		recorder.Add("kafka", producer)
	}
	recorder.Add("websocket", hub)
	if cfg.AlertWebhookURL != "" {
		recorder.Add("alert-webhook", dispatch.NewAlertWebhook(cfg.AlertWebhookURL, cfg.AlertWebhookToken, cfg.SurgeAlertThreshold))
	}

	quoter := &surge.Quoter{Locator: locator, Estimator: estimator, Fare: cfg.Fare}
	deps := httpapi.Deps{
		Store:     store,
		Estimator: estimator,
		Generator: gen,
		Recorder:  recorder,
		Quoter:    quoter,
		Analytics: &analytics.Service{Store: store, Estimator: estimator, AlertThreshold: cfg.SurgeAlertThreshold},
		Bookings:  &booking.Service{Store: store, Quoter: quoter},
		Cache:     snapshots,
		Feed:      hub,
	}
	if cfg.StripeAPIKey != "" {
		deps.Settler = &payments.Settler{
			Rides:    store,
			Gateway:  payments.NewStripeClient(cfg.StripeAPIKey),
			Currency: cfg.StripeCurrency,
			Logger:   logger,
		}
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("surge dashboard listening",
			"addr", cfg.HTTPAddr,
			"store", cfg.Store,
			"sinks", recorder.Sinks(),
			"tiers", cfg.SurgeTiers.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		s, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.RunMigrations {
			if err := s.Migrate(ctx, cfg.MigrationPath); err != nil {
				_ = s.Close(ctx)
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration applied", "path", cfg.MigrationPath)
		}
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

// primeLocator registers zones that already exist in a persistent store.
func primeLocator(ctx context.Context, store storage.Store, locator geo.Locator) error {
	zones, err := store.ReadZones(ctx)
	if err != nil {
		return fmt.Errorf("read zones: %w", err)
	}
	for _, z := range zones {
		if err := locator.Upsert(ctx, z); err != nil {
			return fmt.Errorf("register zone %s: %w", z.ID, err)
		}
	}
	return nil
}
