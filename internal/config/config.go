// Package config holds the env-driven pipeline configuration. A .env file
// is honoured when present; every tunable the stages read (record counts,
// failure rate, bucket thresholds, drop-rate limit, retry policy) lives
// here so nothing is hard-coded in the stages themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
	"github.com/dvloznov/txn-warehouse/internal/retry"
)

const dateFormat = "2006-01-02"

// Config is the full pipeline configuration.
type Config struct {
	// DataDir is the root of the local partition store.
	DataDir string
	// GCSBucket, when set (e.g. "gs://my-bucket/etl"), switches the
	// partition store to Cloud Storage.
	GCSBucket string

	// WarehouseDriver is a database/sql driver name ("postgres" or
	// "sqlite3"); WarehouseDSN is its connection string.
	WarehouseDriver string
	WarehouseDSN    string

	RecordsPerDay int
	FailureRate   float64
	GeneratorSeed int64

	// Channels maps a channel name to its fee percent.
	Channels map[string]decimal.Decimal
	Cities   []string

	Thresholds    domain.BucketThresholds
	FatalDropRate float64

	Retry retry.Policy
}

// DefaultChannels is the static channel reference data with fee percents.
func DefaultChannels() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"Credit Card": decimal.RequireFromString("2.5"),
		"Debit Card":  decimal.RequireFromString("1.0"),
		"UPI":         decimal.RequireFromString("0.5"),
		"Net Banking": decimal.RequireFromString("1.5"),
	}
}

// DefaultCities is the synthetic city set used by the generator.
func DefaultCities() []string {
	return []string{"Mumbai", "Delhi", "Bengaluru", "Hyderabad", "Chennai", "Pune", "Kolkata", "Ahmedabad"}
}

// Load reads configuration from the environment, honouring a .env file in
// the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function. Missing keys fall
// back to defaults; malformed values are configuration errors and fail fast.
func FromEnv(get func(string) string) (*Config, error) {
	cfg := &Config{
		DataDir:         "data",
		GCSBucket:       get("GCS_BUCKET"),
		WarehouseDriver: "postgres",
		WarehouseDSN:    get("WAREHOUSE_DSN"),
		RecordsPerDay:   500,
		FailureRate:     0.1,
		Channels:        DefaultChannels(),
		Cities:          DefaultCities(),
		Thresholds:      domain.BucketThresholds{Fast: 2.0, Medium: 5.0},
		FatalDropRate:   1.0,
		Retry:           retry.Default,
	}

	if v := get("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := get("WAREHOUSE_DRIVER"); v != "" {
		cfg.WarehouseDriver = v
	}

	var err error
	if cfg.RecordsPerDay, err = intVar(get, "RECORDS_PER_DAY", cfg.RecordsPerDay); err != nil {
		return nil, err
	}
	if cfg.FailureRate, err = floatVar(get, "FAILURE_RATE", cfg.FailureRate); err != nil {
		return nil, err
	}
	if seed, err := intVar(get, "GENERATOR_SEED", 0); err != nil {
		return nil, err
	} else {
		cfg.GeneratorSeed = int64(seed)
	}
	if cfg.Thresholds.Fast, err = floatVar(get, "FAST_THRESHOLD_SECONDS", cfg.Thresholds.Fast); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Medium, err = floatVar(get, "MEDIUM_THRESHOLD_SECONDS", cfg.Thresholds.Medium); err != nil {
		return nil, err
	}
	if cfg.FatalDropRate, err = floatVar(get, "FATAL_DROP_RATE", cfg.FatalDropRate); err != nil {
		return nil, err
	}
	if cfg.Retry.Attempts, err = intVar(get, "RETRY_ATTEMPTS", cfg.Retry.Attempts); err != nil {
		return nil, err
	}
	if v := get("RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid RETRY_DELAY %q: %w", v, err)
		}
		cfg.Retry.Delay = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on values no stage could run with.
func (c *Config) Validate() error {
	if c.RecordsPerDay <= 0 {
		return fmt.Errorf("config: RECORDS_PER_DAY must be positive, got %d", c.RecordsPerDay)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("config: FAILURE_RATE must be in [0,1], got %g", c.FailureRate)
	}
	if c.Thresholds.Fast <= 0 || c.Thresholds.Medium <= c.Thresholds.Fast {
		return fmt.Errorf("config: bucket thresholds must satisfy 0 < fast < medium, got fast=%g medium=%g",
			c.Thresholds.Fast, c.Thresholds.Medium)
	}
	if c.FatalDropRate < 0 || c.FatalDropRate > 1 {
		return fmt.Errorf("config: FATAL_DROP_RATE must be in [0,1], got %g", c.FatalDropRate)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("config: RETRY_ATTEMPTS must be at least 1, got %d", c.Retry.Attempts)
	}
	switch c.WarehouseDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported WAREHOUSE_DRIVER %q", c.WarehouseDriver)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("config: channel fee table is empty")
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD target date, defaulting to yesterday (UTC)
// when empty.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return Yesterday(), nil
	}
	d, err := time.ParseInLocation(dateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

// Yesterday returns yesterday's date at midnight UTC.
func Yesterday() time.Time {
	now := time.Now().UTC()
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}

func intVar(get func(string) string, key string, def int) (int, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func floatVar(get func(string) string, key string, def float64) (float64, error) {
	v := get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
