// Package config provides centralized configuration management for the
// defectdata command. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Dataset  DatasetConfig
	Database DatabaseConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

// DatasetConfig holds dataset loading settings.
type DatasetConfig struct {
	// Dir is the default dataset directory when none is given on the command line
	Dir string `env:"DEFECTDATA_DIR"`

	// Schema is a data_format.yaml path; empty selects the embedded schema
	Schema string `env:"DEFECTDATA_SCHEMA"`

	// Progress enables progress logging while archives are scanned (default: true)
	Progress bool `env:"PROGRESS_ENABLED" default:"true"`

	// ProgressEvery is the number of archive entries between progress lines (default: 100)
	ProgressEvery int `env:"PROGRESS_EVERY" default:"100"`
}

// DatabaseConfig holds database connection settings. Only the export
// command connects to a database.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required for export)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ExportConfig holds PostgreSQL export settings.
type ExportConfig struct {
	// StructuresTable receives the structure rows, optionally schema-qualified (default: structures)
	StructuresTable string `env:"EXPORT_STRUCTURES_TABLE" default:"structures"`

	// DefectsTable receives the defect descriptor rows (default: defects)
	DefectsTable string `env:"EXPORT_DEFECTS_TABLE" default:"defects"`

	// Timeout bounds the whole export, connection included (default: 10m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"10m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
