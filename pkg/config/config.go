// Package config provides the layered configuration loader for the engine:
// built-in defaults, overridden by an optional YAML file, overridden by
// environment variables.
package config

import (
	"time"
)

// StorageConfig selects and configures the Storage backend (§6.2).
type StorageConfig struct {
	Driver             string // "memory" or "postgres"
	ConnString         string
	Host               string
	Port               string
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	ConnectTimeout     time.Duration
	HealthCheckTimeout time.Duration
	HealthCheckPeriod  time.Duration
	AutoMigrate        bool
}

// RedisConfig configures the distributed lock manager used by the
// scheduler's dedupe-key cancellation path.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EngineConfig configures the dispatcher's concurrency and retry policy.
type EngineConfig struct {
	Concurrency int // N_concurrent, §5
	MaxRetries  int // §3.8, §4.3
}

// SchedulerConfig configures the scheduler's timer discipline (§4.6).
type SchedulerConfig struct {
	SweepInterval  time.Duration
	MaxTimerDelay  time.Duration
	DefaultTZ      string
}

// ConditionConfig configures the CEL predicate evaluator (§4.2 step 2).
type ConditionConfig struct {
	CostLimit uint64
	CacheSize int64
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string
	JSON  bool
}

// Config is the fully-resolved engine configuration.
type Config struct {
	Storage   StorageConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Condition ConditionConfig
	Log       LogConfig
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:             "memory",
			Host:               "localhost",
			Port:               "5432",
			User:               "postgres",
			DBName:             "synthframe",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    5 * time.Minute,
			ConnectTimeout:     5 * time.Second,
			HealthCheckTimeout: 3 * time.Second,
			HealthCheckPeriod:  30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Engine: EngineConfig{
			Concurrency: 1,
			MaxRetries:  3,
		},
		Scheduler: SchedulerConfig{
			SweepInterval: 60 * time.Second,
			MaxTimerDelay: 24 * time.Hour,
			DefaultTZ:     "UTC",
		},
		Condition: ConditionConfig{
			CostLimit: 1_000_000,
			CacheSize: 1024,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
