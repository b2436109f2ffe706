// Package config loads and validates application configuration from
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manifest drivers.
const (
	ManifestDriverPostgres = "postgres"
	ManifestDriverS3       = "s3"
)

// Config holds all configuration values for the busline server.
// Values are populated by Load.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// JWTSecret is the HMAC key bearer tokens are signed with. Required.
	JWTSecret string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	Dispatch DispatchConfig
	Manifest ManifestConfig
}

// DispatchConfig sizes the side-effect worker pool.
type DispatchConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
}

// ManifestConfig selects where manifest requests are handed off.
// The S3 fields are only read when Driver is "s3".
type ManifestConfig struct {
	Driver    string
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
}

const (
	keyPort               = "port"
	keyDatabaseURL        = "database_url"
	keyLogLevel           = "log_level"
	keyCORSOrigins        = "cors_origins"
	keyJWTSecret          = "jwt_secret"
	keyMaxBodyBytes       = "max_body_bytes"
	keyDispatchWorkers    = "dispatch_workers"
	keyDispatchQueueSize  = "dispatch_queue_size"
	keyDispatchMaxRetries = "dispatch_max_retries"
	keyManifestDriver     = "manifest_driver"
	keyManifestBucket     = "manifest_s3_bucket"
	keyManifestRegion     = "manifest_s3_region"
	keyManifestEndpoint   = "manifest_s3_endpoint"
	keyManifestPrefix     = "manifest_s3_prefix"
	keyManifestPathStyle  = "manifest_s3_path_style"
)

// Load reads configuration and returns a Config. Environment variables (the
// upper-cased keys, e.g. DATABASE_URL) take precedence over file, when a
// file path is given. Returns an error listing every required value that
// is missing, and any value that is out of range.
func Load(file string) (Config, error) {
	v, err := read(file)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:         v.GetString(keyPort),
		DatabaseURL:  v.GetString(keyDatabaseURL),
		LogLevel:     strings.ToLower(v.GetString(keyLogLevel)),
		CORSOrigins:  splitCSV(v.GetString(keyCORSOrigins)),
		JWTSecret:    v.GetString(keyJWTSecret),
		MaxBodyBytes: v.GetInt64(keyMaxBodyBytes),
		Dispatch: DispatchConfig{
			Workers:    v.GetInt(keyDispatchWorkers),
			QueueSize:  v.GetInt(keyDispatchQueueSize),
			MaxRetries: v.GetUint64(keyDispatchMaxRetries),
		},
		Manifest: ManifestConfig{
			Driver:    strings.ToLower(v.GetString(keyManifestDriver)),
			Bucket:    v.GetString(keyManifestBucket),
			Region:    v.GetString(keyManifestRegion),
			Endpoint:  v.GetString(keyManifestEndpoint),
			Prefix:    v.GetString(keyManifestPrefix),
			PathStyle: v.GetBool(keyManifestPathStyle),
		},
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL. The migrate command uses it so
// schema changes do not need the server's secrets.
func LoadDatabaseURL(file string) (string, error) {
	return loadRequired(file, keyDatabaseURL)
}

// LoadJWTSecret reads only JWT_SECRET, for issuing development tokens.
func LoadJWTSecret(file string) (string, error) {
	return loadRequired(file, keyJWTSecret)
}

func loadRequired(file, key string) (string, error) {
	v, err := read(file)
	if err != nil {
		return "", err
	}
	val := v.GetString(key)
	if val == "" {
		return "", fmt.Errorf("required configuration not set: %s", strings.ToUpper(key))
	}
	return val, nil
}

func read(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(keyPort, "8080")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyCORSOrigins, "http://localhost:5173")
	v.SetDefault(keyMaxBodyBytes, 1<<20)
	v.SetDefault(keyDispatchWorkers, 4)
	v.SetDefault(keyDispatchQueueSize, 256)
	v.SetDefault(keyDispatchMaxRetries, 3)
	v.SetDefault(keyManifestDriver, ManifestDriverPostgres)
	v.SetDefault(keyManifestPrefix, "manifest-requests/")
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: read %s: %w", file, err)
		}
	}
	return v, nil
}

func (c Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Manifest.Driver == ManifestDriverS3 && c.Manifest.Bucket == "" {
		missing = append(missing, "MANIFEST_S3_BUCKET")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("required configuration not set: %s", strings.Join(missing, ", ")))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel))
	}
	switch c.Manifest.Driver {
	case ManifestDriverPostgres, ManifestDriverS3:
	default:
		errs = append(errs, fmt.Errorf("MANIFEST_DRIVER must be %q or %q; got %q", ManifestDriverPostgres, ManifestDriverS3, c.Manifest.Driver))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	if c.Dispatch.Workers <= 0 || c.Dispatch.QueueSize <= 0 {
		errs = append(errs, errors.New("DISPATCH_WORKERS and DISPATCH_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
