package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves an environment variable name to its value.
// An empty string means unset.
type Lookup func(key string) string

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through the given lookup. Load uses
// os.Getenv; tests and the CLI pass maps or flag-backed lookups.
func LoadFrom(lookup Lookup) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct recursively populates struct fields from the lookup.
func loadStruct(v reflect.Value, lookup Lookup) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookup(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = lookup(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	// Database
	check(c.Database.URL == "", "DATABASE_URL is required")
	check(c.Database.MaxConns <= 0, "DB_MAX_CONNS must be positive")
	check(c.Database.MinConns < 0, "DB_MIN_CONNS must be non-negative")
	check(c.Database.MaxConns < c.Database.MinConns,
		"DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)

	// Server
	check(c.Server.Port <= 0 || c.Server.Port > 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	check(c.Server.ReadTimeout < 0, "SERVER_READ_TIMEOUT must be non-negative")
	check(c.Server.ShutdownTimeout <= 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	// Jobs
	check(c.Jobs.MaxConcurrent <= 0, "JOBS_MAX_CONCURRENT must be positive")
	check(c.Jobs.MaxWaitTime <= 0, "JOBS_MAX_WAIT_TIME must be positive")
	check(c.Jobs.Retention <= 0, "JOBS_RETENTION must be positive")
	check(c.Jobs.Timeout <= 0, "JOBS_TIMEOUT must be positive")

	// Import
	check(c.Import.MaxFileSize <= 0, "IMPORT_MAX_FILE_SIZE must be positive")
	check(c.Import.StagingTTL <= 0, "IMPORT_STAGING_TTL must be positive")
	check(c.Import.ErrorReportTTL <= 0, "IMPORT_ERROR_REPORT_TTL must be positive")
	check(c.Import.MaxHeaderSearchRows <= 0, "IMPORT_MAX_HEADER_SEARCH_ROWS must be positive")

	// Export
	check(c.Export.ChunkSize <= 0, "EXPORT_CHUNK_SIZE must be positive")
	check(c.Export.ArtifactTTL <= 0, "EXPORT_ARTIFACT_TTL must be positive")
	check(c.Export.MaxRows < c.Export.ChunkSize,
		"EXPORT_MAX_ROWS (%d) must be >= EXPORT_CHUNK_SIZE (%d)", c.Export.MaxRows, c.Export.ChunkSize)

	// Storage
	check(c.Storage.Dir == "", "STORAGE_DIR is required")
	check(c.Storage.SweepInterval <= 0, "STORAGE_SWEEP_INTERVAL must be positive")
	check(c.Storage.CacheSize < 0, "STORAGE_CACHE_SIZE must be non-negative")

	// Rate limit
	check(c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0,
		"RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	check(c.Rate.Enabled && c.Rate.SubmitLimit <= 0,
		"RATE_LIMIT_SUBMIT must be positive when rate limiting is enabled")

	// Security
	check(c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	check(!validLevels[strings.ToLower(c.Logging.Level)],
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	validFormats := map[string]bool{"text": true, "json": true}
	check(!validFormats[strings.ToLower(c.Logging.Format)],
		"LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	// Metrics
	check(c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/"),
		"METRICS_PATH (%q) must start with /", c.Metrics.Path)

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Jobs: {MaxConcurrent: %d, Retention: %s, Timeout: %s}, ",
		c.Jobs.MaxConcurrent, c.Jobs.Retention, c.Jobs.Timeout)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, ErrorReportTTL: %s}, ",
		c.Import.MaxFileSize, c.Import.ErrorReportTTL)
	fmt.Fprintf(&b, "Export: {ChunkSize: %d, ArtifactTTL: %s}, ",
		c.Export.ChunkSize, c.Export.ArtifactTTL)
	fmt.Fprintf(&b, "Storage: {Dir: %q, SweepInterval: %s}, ", c.Storage.Dir, c.Storage.SweepInterval)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
