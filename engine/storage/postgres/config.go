package postgres

import (
	"fmt"
	"time"
)

// Config holds PostgreSQL connection settings for the driver. Prefer
// providing a DSN via ConnString; when empty, a DSN is synthesized from
// the individual fields.
type Config struct {
	ConnString      string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// dsn returns cfg.ConnString if set, otherwise a DSN synthesized from the
// individual fields.
func dsn(cfg *Config) string {
	if cfg.ConnString != "" {
		return cfg.ConnString
	}
	return DSNFor(cfg)
}

// DSNFor synthesizes a libpq-style DSN from the individual config fields.
// Exported so ApplyMigrationsWithLock can run against the same target the
// pool connects to.
func DSNFor(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode,
	)
}
