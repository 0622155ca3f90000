package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/synthframe/engine/engine/core"
)

// Provider applies its source of configuration values onto cfg, overriding
// any values it recognizes while leaving the rest untouched.
type Provider interface {
	Apply(cfg *Config) error
}

type defaultProvider struct{}

// NewDefaultProvider returns a Provider that is a no-op: Load always starts
// from Default(), so this exists purely to make the provider chain explicit
// at call sites.
func NewDefaultProvider() Provider { return defaultProvider{} }

func (defaultProvider) Apply(_ *Config) error { return nil }

// fileProvider loads overrides from a YAML file. Missing files are treated
// as "no overrides", not an error, since a file is optional.
type fileProvider struct {
	path string
}

// NewFileProvider returns a Provider that merges YAML overrides from path.
func NewFileProvider(path string) Provider {
	return &fileProvider{path: path}
}

func (p *fileProvider) Apply(cfg *Config) error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %q: %w", p.path, err)
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing config file %q: %w", p.path, err)
	}
	return mergeNonZero(cfg, &override)
}

// envProvider loads overrides from environment variables prefixed with
// ENGINE_, e.g. ENGINE_STORAGE_DRIVER, ENGINE_ENGINE_CONCURRENCY.
type envProvider struct {
	prefix string
}

// NewEnvProvider returns a Provider reading ENGINE_-prefixed env vars.
func NewEnvProvider() Provider {
	return &envProvider{prefix: "ENGINE_"}
}

func (p *envProvider) Apply(cfg *Config) error {
	lookup := func(key string) (string, bool) {
		return os.LookupEnv(p.prefix + key)
	}
	if v, ok := lookup("STORAGE_DRIVER"); ok {
		cfg.Storage.Driver = v
	}
	if v, ok := lookup("STORAGE_CONN_STRING"); ok {
		cfg.Storage.ConnString = v
	}
	if v, ok := lookup("STORAGE_HOST"); ok {
		cfg.Storage.Host = v
	}
	if v, ok := lookup("STORAGE_PORT"); ok {
		cfg.Storage.Port = v
	}
	if v, ok := lookup("STORAGE_USER"); ok {
		cfg.Storage.User = v
	}
	if v, ok := lookup("STORAGE_PASSWORD"); ok {
		cfg.Storage.Password = v
	}
	if v, ok := lookup("STORAGE_DBNAME"); ok {
		cfg.Storage.DBName = v
	}
	if v, ok := lookup("STORAGE_AUTOMIGRATE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.AutoMigrate = b
		}
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookup("ENGINE_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Concurrency = n
		}
	}
	if v, ok := lookup("ENGINE_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxRetries = n
		}
	}
	if v, ok := lookup("SCHEDULER_SWEEP_INTERVAL"); ok {
		if d, err := core.ParseHumanDuration(v); err == nil {
			cfg.Scheduler.SweepInterval = d
		}
	}
	if v, ok := lookup("SCHEDULER_MAX_TIMER_DELAY"); ok {
		if d, err := core.ParseHumanDuration(v); err == nil {
			cfg.Scheduler.MaxTimerDelay = d
		}
	}
	if v, ok := lookup("SCHEDULER_DEFAULT_TZ"); ok {
		cfg.Scheduler.DefaultTZ = v
	}
	if v, ok := lookup("CONDITION_COST_LIMIT"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Condition.CostLimit = n
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_JSON"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
	return nil
}

// mergeNonZero overrides fields in dst with non-zero fields from src, the
// same dario.cat/mergo convention core.Merge uses for map-shaped config.
// WithOverride lets non-empty src fields win; zero-value src fields (a YAML
// key the override file simply didn't set) leave dst untouched.
func mergeNonZero(dst, src *Config) error {
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config override: %w", err)
	}
	return nil
}
