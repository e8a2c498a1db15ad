package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
)

// Config holds process configuration for the worker and the CLI.
type Config struct {
	// Store
	StoreDriver string
	DatabaseURL string
	MongoURI    string
	MongoDBName string
	SQLitePath  string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret string
	JWTTTL    time.Duration

	// Workflow
	ApplyMaxRetries int
	SweepInterval   time.Duration
	ExpiryEnabled   bool

	// Metrics
	MetricsAddr string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists && value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDBName:   getEnv("MONGO_DB_NAME", "inquiryflow"),
		SQLitePath:    getEnv("SQLITE_PATH", "inquiryflow.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}

	var err error
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ttlMinutes, err := strconv.Atoi(getEnv("JWT_TTL_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_MINUTES: %w", err)
	}
	cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute

	cfg.ApplyMaxRetries, err = strconv.Atoi(getEnv("APPLY_MAX_RETRIES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid APPLY_MAX_RETRIES: %w", err)
	}

	sweepSeconds, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS: %w", err)
	}
	cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second

	cfg.ExpiryEnabled, err = strconv.ParseBool(getEnv("EXPIRY_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_ENABLED: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("missing required environment variable: JWT_SECRET")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	if c.ApplyMaxRetries < 0 {
		return fmt.Errorf("APPLY_MAX_RETRIES must not be negative")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must not be negative")
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORE_DRIVER=mongo requires MONGO_URI")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("STORE_DRIVER=sqlite requires SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.ExpiryEnabled && c.RedisAddr == "" {
		return fmt.Errorf("EXPIRY_ENABLED requires REDIS_ADDR")
	}
	return nil
}
