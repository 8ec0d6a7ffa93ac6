// Package config loads process configuration from environment variables
// (optionally seeded from a .env file and a YAML config file), following
// the env-tagged struct plus envdecode convention the rest of the
// platform's engineering stack uses. Precedence, lowest to highest:
// struct defaults, environment, the CONFIG_FILE YAML overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration, decoded from environment
// variables via struct tags.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Session    SessionConfig
	Autoscale  AutoscaleConfig
	Worker     WorkerConfig
	Drift      DriftConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Inference  InferenceConfig
	Shutdown   ShutdownConfig
	Backup     BackupConfig
}

type ServerConfig struct {
	Port int `env:"PORT,default=8080"`
	Env  string `env:"APP_ENV,default=development"`
}

type DatabaseConfig struct {
	URL             string        `env:"DB_URL,required"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	MigrateOnStart  bool          `env:"DB_MIGRATE_ON_START,default=true"`
}

type CacheConfig struct {
	URL             string        `env:"CACHE_URL,default=redis://localhost:6379/0"`
	DefaultTTL      time.Duration `env:"CACHE_DEFAULT_TTL,default=5m"`
	LocalShardCount int           `env:"CACHE_LOCAL_SHARDS,default=16"`
	LocalMaxEntries int           `env:"CACHE_LOCAL_MAX_ENTRIES,default=100000"`
}

type SessionConfig struct {
	TTLSeconds     int `env:"SESSION_TTL_SEC,default=3600"`
	IdleSeconds    int `env:"SESSION_IDLE_SEC,default=900"`
	SigningSecret  string `env:"SESSION_SIGNING_SECRET,default=development-secret-change-me"`
}

type AutoscaleConfig struct {
	Min          int `env:"AUTOSCALE_MIN,default=1"`
	Max          int `env:"AUTOSCALE_MAX,default=10"`
	UpperRPS     float64 `env:"AUTOSCALE_UPPER_RPS,default=100"`
	LowerRPS     float64 `env:"AUTOSCALE_LOWER_RPS,default=10"`
	UpperP95Ms   float64 `env:"AUTOSCALE_UPPER_P95_MS,default=500"`
	LowerP95Ms   float64 `env:"AUTOSCALE_LOWER_P95_MS,default=50"`
	SustainTicks int     `env:"AUTOSCALE_SUSTAIN_TICKS,default=3"`
	SampleCron   string  `env:"AUTOSCALE_SAMPLE_CRON,default=@every 10s"`
}

type WorkerConfig struct {
	Count       int `env:"WORKER_COUNT,default=4"`
	PoolSize    int `env:"WORKER_POOL_SIZE,default=32"`
	QueueDepth  int `env:"WORKER_QUEUE_DEPTH,default=256"`
	MaxRestarts int `env:"WORKER_MAX_RESTARTS,default=5"`
}

type DriftConfig struct {
	MethodDefault string  `env:"DRIFT_METHOD_DEFAULT,default=psi"`
	HighThreshold float64 `env:"DRIFT_HIGH_THRESHOLD,default=0.25"`
	MedThreshold  float64 `env:"DRIFT_MED_THRESHOLD,default=0.1"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

type MetricsConfig struct {
	Port int `env:"METRICS_PORT,default=9090"`
}

type InferenceConfig struct {
	MaxConcurrency int           `env:"INFERENCE_MAX_CONCURRENCY,default=16"`
	Timeout        time.Duration `env:"INFERENCE_TIMEOUT,default=5s"`
}

type ShutdownConfig struct {
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT_SEC,default=30s"`
}

type BackupConfig struct {
	// StatusFile is touched by the backup job on completion; its mtime is
	// the last-backup timestamp. Empty disables the backup health check.
	StatusFile string        `env:"BACKUP_STATUS_FILE"`
	MaxAge     time.Duration `env:"BACKUP_MAX_AGE,default=24h"`
}

// Load reads a .env file if present (missing file is not an error),
// decodes the process environment into a Config, and finally applies the
// YAML overlay named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	return &cfg, nil
}
