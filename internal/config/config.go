package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string

	// Zone and Colo tag every verdict event emitted by this instance.
	Zone string
	Colo string

	// Admission actor tuning.
	HitWindow time.Duration
	ActorTTL  time.Duration

	// Aggregation tuning.
	CapacityRPS float64
	AggWindow   time.Duration

	// Tarpit tuning.
	TarpitDuration time.Duration
	TarpitInterval time.Duration

	// Ingestion pipeline sizing.
	IngestWorkers     int
	IngestQueueSize   int
	IngestMaxAttempts int

	// Clearance token signing for the trusted bypass.
	ClearanceSecret string
	ClearanceTTL    time.Duration

	// Challenge verification endpoint (Turnstile-compatible).
	ChallengeVerifyURL string
	ChallengeSecret    string

	// Comma-separated shoutrrr URLs notified on case materialization.
	NotifyURLs string
}

// Load reads env vars and falls back to defaults so the daemon can boot with
// zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("STYX_ENV", "development"),
		HTTPPort:     getEnv("STYX_HTTP_PORT", "8080"),
		DatabasePath: getEnv("STYX_DB_PATH", filepath.Join("data", "styx.db")),

		Zone: getEnv("STYX_ZONE", "default"),
		Colo: getEnv("STYX_COLO", "local"),

		HitWindow: getEnvMillis("STYX_HIT_WINDOW_MS", 1000),
		ActorTTL:  getEnvMillis("STYX_ACTOR_TTL_MS", 300000),

		CapacityRPS: getEnvFloat("STYX_CAPACITY_RPS", 500),
		AggWindow:   getEnvMillis("STYX_AGG_WINDOW_MS", 60000),

		TarpitDuration: getEnvMillis("STYX_TARPIT_DURATION_MS", 15000),
		TarpitInterval: getEnvMillis("STYX_TARPIT_INTERVAL_MS", 1100),

		IngestWorkers:     getEnvInt("STYX_INGEST_WORKERS", 4),
		IngestQueueSize:   getEnvInt("STYX_INGEST_QUEUE_SIZE", 1024),
		IngestMaxAttempts: getEnvInt("STYX_INGEST_MAX_ATTEMPTS", 5),

		ClearanceSecret: getEnv("STYX_CLEARANCE_SECRET", ""),
		ClearanceTTL:    getEnvMillis("STYX_CLEARANCE_TTL_MS", 600000),

		ChallengeVerifyURL: getEnv("STYX_CHALLENGE_VERIFY_URL", ""),
		ChallengeSecret:    getEnv("STYX_CHALLENGE_SECRET", ""),

		NotifyURLs: getEnv("STYX_NOTIFY_URLS", ""),
	}

	if cfg.IngestWorkers < 1 {
		cfg.IngestWorkers = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}

	return fallback
}

func getEnvMillis(key string, fallback int64) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}

	return time.Duration(fallback) * time.Millisecond
}
