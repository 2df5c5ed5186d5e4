// Package config provides centralized configuration management for the job engine.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Jobs     JobsConfig
	Import   ImportConfig
	Export   ExportConfig
	Storage  StorageConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// JobsConfig holds job orchestration settings.
type JobsConfig struct {
	// MaxConcurrent is the number of jobs that may run at once (default: 8)
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" default:"8"`

	// MaxWaitTime is how long a pending job waits for a worker slot (default: 10m)
	MaxWaitTime time.Duration `env:"JOBS_MAX_WAIT_TIME" default:"10m"`

	// Retention is how long a finished job stays answerable by id (default: 15m)
	Retention time.Duration `env:"JOBS_RETENTION" default:"15m"`

	// Timeout bounds a single job run (default: 30m)
	Timeout time.Duration `env:"JOBS_TIMEOUT" default:"30m"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// StagingTTL bounds how long an uploaded file stays staged (default: 1h)
	StagingTTL time.Duration `env:"IMPORT_STAGING_TTL" default:"1h"`

	// ErrorReportTTL is the lifetime of an error report artifact (default: 24h)
	ErrorReportTTL time.Duration `env:"IMPORT_ERROR_REPORT_TTL" default:"24h"`

	// MaxHeaderSearchRows is how many leading rows are scanned for the header (default: 20)
	MaxHeaderSearchRows int `env:"IMPORT_MAX_HEADER_SEARCH_ROWS" default:"20"`
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	// ChunkSize is the number of rows fetched per page (default: 500)
	ChunkSize int `env:"EXPORT_CHUNK_SIZE" default:"500"`

	// ArtifactTTL is the lifetime of a finished export file (default: 24h)
	ArtifactTTL time.Duration `env:"EXPORT_ARTIFACT_TTL" default:"24h"`

	// MaxRows caps a single export (default: 1000000)
	MaxRows int `env:"EXPORT_MAX_ROWS" default:"1000000"`
}

// StorageConfig holds artifact store settings.
type StorageConfig struct {
	// Dir is where artifacts are written (default: ./data/artifacts)
	Dir string `env:"STORAGE_DIR" default:"./data/artifacts"`

	// SweepInterval is how often expired artifacts are removed (default: 5m)
	SweepInterval time.Duration `env:"STORAGE_SWEEP_INTERVAL" default:"5m"`

	// CacheSize is the number of artifacts kept in memory (default: 64)
	CacheSize int `env:"STORAGE_CACHE_SIZE" default:"64"`

	// CacheTTL bounds how long a cached artifact is served from memory (default: 5m)
	CacheTTL time.Duration `env:"STORAGE_CACHE_TTL" default:"5m"`

	// CacheMaxObjectBytes is the largest artifact that is cached (default: 4MB)
	CacheMaxObjectBytes int64 `env:"STORAGE_CACHE_MAX_OBJECT_BYTES" default:"4194304"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// SubmitLimit is requests per minute for job submission endpoints (default: 20)
	SubmitLimit int `env:"RATE_LIMIT_SUBMIT" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey gates /api behind X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally writes JSON logs to this path when set
	File string `env:"LOG_FILE"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
