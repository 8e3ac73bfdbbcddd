package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// UptimeMaintenancePolicy decides how maintenance minutes affect uptime.
const (
	// MaintenanceCountsAgainstUptime keeps the fixed 1440-minute denominator.
	MaintenanceCountsAgainstUptime = "count"
	// MaintenanceExcludedFromUptime removes maintenance minutes from the denominator.
	MaintenanceExcludedFromUptime = "exclude"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseDSN string
	LogDir      string
	Debug       bool
	JWTSecret   string
	RedisAddr   string
	NATSURL     string
	Timezone    string

	HealthCheck HealthCheckDefaults
	Uptime      UptimeConfig

	PublicRateLimit float64
	PublicRateBurst int
}

// HealthCheckDefaults seed the scheduler when the settings table has no value.
type HealthCheckDefaults struct {
	Enabled                bool
	SchedulerIntervalMs    int
	ThreadPoolSize         int
	DefaultIntervalSeconds int
	DefaultTimeoutSeconds  int
}

type UptimeConfig struct {
	RecorderCron      string
	BackfillDays      int
	MaintenancePolicy string
	HistoryCacheTTL   time.Duration
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("PULSE_ENV", "development"),
		HTTPPort:    getEnv("PULSE_HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("PULSE_DB_DSN", filepath.Join("data", "pulseboard.db")),
		LogDir:      getEnv("PULSE_LOG_DIR", filepath.Join("data", "logs")),
		Debug:       getEnvBool("PULSE_DEBUG", false),
		JWTSecret:   getEnv("PULSE_JWT_SECRET", ""),
		RedisAddr:   getEnv("PULSE_REDIS_ADDR", ""),
		NATSURL:     getEnv("PULSE_NATS_URL", ""),
		Timezone:    getEnv("PULSE_TIMEZONE", "UTC"),
		HealthCheck: HealthCheckDefaults{
			Enabled:                getEnvBool("PULSE_HEALTH_CHECK_ENABLED", true),
			SchedulerIntervalMs:    getEnvInt("PULSE_HEALTH_CHECK_SCHEDULER_INTERVAL_MS", 10000),
			ThreadPoolSize:         getEnvInt("PULSE_HEALTH_CHECK_POOL_SIZE", 10),
			DefaultIntervalSeconds: getEnvInt("PULSE_HEALTH_CHECK_DEFAULT_INTERVAL", 60),
			DefaultTimeoutSeconds:  getEnvInt("PULSE_HEALTH_CHECK_DEFAULT_TIMEOUT", 10),
		},
		Uptime: UptimeConfig{
			RecorderCron:      getEnv("PULSE_UPTIME_RECORDER_CRON", "10 0 * * *"),
			BackfillDays:      getEnvInt("PULSE_UPTIME_BACKFILL_DAYS", 7),
			MaintenancePolicy: strings.ToLower(getEnv("PULSE_UPTIME_MAINTENANCE_POLICY", MaintenanceCountsAgainstUptime)),
			HistoryCacheTTL:   time.Duration(getEnvInt("PULSE_UPTIME_HISTORY_CACHE_TTL", 300)) * time.Second,
		},
		PublicRateLimit: getEnvFloat("PULSE_PUBLIC_RATE_LIMIT", 20),
		PublicRateBurst: getEnvInt("PULSE_PUBLIC_RATE_BURST", 40),
	}

	switch cfg.Uptime.MaintenancePolicy {
	case MaintenanceCountsAgainstUptime, MaintenanceExcludedFromUptime:
	default:
		return Config{}, fmt.Errorf("invalid uptime maintenance policy %q", cfg.Uptime.MaintenancePolicy)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("load timezone: %w", err)
	}

	if !strings.HasPrefix(cfg.DatabaseDSN, "postgres://") && !strings.HasPrefix(cfg.DatabaseDSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseDSN), 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	return cfg, nil
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
