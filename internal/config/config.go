// Package config provides centralized configuration management for the application.
// It loads configuration from an optional YAML file and environment variables
// with sensible defaults, and validates all settings on startup to fail fast
// on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can be configured via environment variables; a YAML file
// named by CONFIG_FILE may supply values that the environment then overrides.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Target    TargetConfig    `yaml:"target"`
	Server    ServerConfig    `yaml:"server"`
	Update    UpdateConfig    `yaml:"update"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourcesConfig locates the pipeline inputs.
type SourcesConfig struct {
	// PriceURL is the wide monthly county price CSV
	PriceURL string `yaml:"price_csv_url" env:"PRICE_CSV_URL" default:"https://files.zillowstatic.com/research/public_csvs/zhvi/County_zhvi_uc_sfrcondo_tier_0.0_0.33_sm_sa_month.csv"`

	// DeprivationURL is an optional CSV mirror of the deprivation dataset.
	// When set, DeprivationTable is not queried.
	DeprivationURL string `yaml:"adi_csv_url" env:"ADI_CSV_URL"`

	// DeprivationTable is the warehouse table holding deprivation rows
	DeprivationTable string `yaml:"adi_table" env:"ADI_TABLE" default:"bigquery-public-data.broadstreet_adi.area_deprivation_index_by_county"`

	// GeoTable is the warehouse table holding county boundaries
	GeoTable string `yaml:"geo_table" env:"GEO_TABLE" default:"bigquery-public-data.geo_us_boundaries.counties"`

	// HTTPTimeout bounds each CSV download (default: 2m)
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" default:"2m"`
}

// WarehouseConfig selects and tunes the publish target.
type WarehouseConfig struct {
	// Driver is bigquery or postgres (default: bigquery)
	Driver string `yaml:"driver" env:"WAREHOUSE_DRIVER" default:"bigquery"`

	// Location is the BigQuery dataset location (default: US)
	Location string `yaml:"location" env:"WAREHOUSE_LOCATION" default:"US"`

	// CreateTimeout bounds dataset creation (default: 30s)
	CreateTimeout time.Duration `yaml:"create_timeout" env:"WAREHOUSE_CREATE_TIMEOUT" default:"30s"`

	// DatabaseURL is the PostGIS connection string, required by the postgres driver
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"10"`
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"1"`

	// GeographyColumns are created as geography instead of their inferred type
	GeographyColumns []string `yaml:"geography_columns" env:"GEOGRAPHY_COLUMNS" default:"county_geom"`
}

// TargetConfig is the table the server and scheduler keep up to date.
// CLI commands take the target as arguments instead.
type TargetConfig struct {
	Project string `yaml:"project" env:"TARGET_PROJECT" envAlt:"GOOGLE_CLOUD_PROJECT"`
	Dataset string `yaml:"dataset" env:"TARGET_DATASET"`
	Table   string `yaml:"table" env:"TARGET_TABLE"`

	// Region is a state FIPS code or All (default: All)
	Region string `yaml:"region" env:"TARGET_REGION" default:"All"`
}

// Complete reports whether project, dataset and table are all set.
func (t TargetConfig) Complete() bool {
	return t.Project != "" && t.Dataset != "" && t.Table != ""
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, loads run long)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to read-only routes (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UpdateConfig holds the incremental update scheduler settings.
type UpdateConfig struct {
	// Interval between scheduled updates; 0 disables the scheduler (default: 0)
	Interval time.Duration `yaml:"interval" env:"UPDATE_INTERVAL" default:"0s"`
}

// SecurityConfig guards the admin routes.
type SecurityConfig struct {
	// RequireAPIKey makes the admin routes require X-API-Key (default: false)
	RequireAPIKey bool `yaml:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP and X-Forwarded-For headers are believed
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
