package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/surge-dashboard/internal/fare"
	"github.com/example/surge-dashboard/internal/surge"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// LoadDotEnv loads a local .env file when one exists. Variables already set
// in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Store         string
	MongoURI      string
	MongoDatabase string
	PGDSN         string
	RunMigrations bool
	MigrationPath string

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	SurgeWindow         time.Duration
	SurgeTiers          surge.Policy
	SurgeAlertThreshold float64
	SurgeParallelism    int

	Fare fare.Policy

	StripeAPIKey   string
	StripeCurrency string

	AlertWebhookURL   string
	AlertWebhookToken string

	OTLPEndpoint     string
	TraceSampleRatio float64

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		Store:               StoreMemory,
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "ride_demo",
		MigrationPath:       "migrations/001_init.sql",
		RedisGeoKey:         "zones_geo",
		KafkaTopic:          "surge-updates",
		SurgeWindow:         surge.DefaultWindow,
		SurgeTiers:          surge.DefaultPolicy(),
		SurgeAlertThreshold: 1.5,
		SurgeParallelism:    8,
		Fare:                fare.DefaultPolicy(),
		StripeCurrency:      "usd",
		TraceSampleRatio:    1,
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setStringFromEnv(&cfg.Store, "STORE")
	cfg.Store = strings.ToLower(cfg.Store)
	setStringFromEnv(&cfg.MongoURI, "MONGO_URI")
	setStringFromEnv(&cfg.MongoDatabase, "MONGO_DATABASE")
	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")
	setStringFromEnv(&cfg.MigrationPath, "MIGRATION_PATH")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setDurationFromEnv(&cfg.SurgeWindow, "SURGE_WINDOW", &errs)
	if v := strings.TrimSpace(os.Getenv("SURGE_TIERS")); v != "" {
		p, err := surge.ParsePolicy(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid SURGE_TIERS: %w", err))
		} else {
			cfg.SurgeTiers = p
		}
	}
	setFloatFromEnv(&cfg.SurgeAlertThreshold, "SURGE_ALERT_THRESHOLD", &errs)
	setIntFromEnv(&cfg.SurgeParallelism, "SURGE_PARALLELISM", &errs)

	setFloatFromEnv(&cfg.Fare.BaseFare, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.Fare.PerKm, "FARE_PER_KM", &errs)

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.StripeCurrency, "STRIPE_CURRENCY")

	cfg.AlertWebhookURL = strings.TrimSpace(os.Getenv("ALERT_WEBHOOK_URL"))
	cfg.AlertWebhookToken = os.Getenv("ALERT_WEBHOOK_TOKEN")

	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setFloatFromEnv(&cfg.TraceSampleRatio, "OTEL_TRACES_SAMPLE_RATIO", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	switch cfg.Store {
	case StoreMemory, StoreMongo:
	case StorePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required when STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE must be one of memory, mongo, postgres; got %q", cfg.Store))
	}
	if cfg.SurgeWindow <= 0 {
		errs = append(errs, errors.New("SURGE_WINDOW must be > 0"))
	}
	if cfg.SurgeParallelism <= 0 {
		errs = append(errs, errors.New("SURGE_PARALLELISM must be > 0"))
	}
	if math.IsNaN(cfg.SurgeAlertThreshold) || math.IsInf(cfg.SurgeAlertThreshold, 0) || cfg.SurgeAlertThreshold < 1 {
		errs = append(errs, errors.New("SURGE_ALERT_THRESHOLD must be a finite number >= 1"))
	}
	if err := cfg.Fare.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1]"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the Kafka to Redis snapshot consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	HistoryLimit  int
	RetryAttempts int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "surge-updates",
		KafkaGroup:    "surge-dashboard-consumer",
		RedisAddr:     "localhost:6379",
		HistoryLimit:  500,
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		LogLevel:      "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKER")
	}
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setIntFromEnv(&cfg.HistoryLimit, "SURGE_HISTORY_LIMIT", &errs)
	setIntFromEnv(&cfg.RetryAttempts, "REDIS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, errors.New("REDIS_RETRY_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
