package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/source"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "CONFIG_FILE"

// Load reads configuration from the YAML file named by CONFIG_FILE, if any,
// then from environment variables. Environment values override the file;
// defaults fill whatever neither sets. The result is validated.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML config file into cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct recursively populates struct fields from environment variables.
// A field the config file already set keeps its value unless the environment
// overrides it; defaults only fill fields neither source set.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := lookupEnv(envName, field.Tag.Get("envAlt"))
		switch {
		case ok:
		case !fv.IsZero():
			continue
		case field.Tag.Get("required") == "true":
			return fmt.Errorf("required environment variable %s is not set", envName)
		default:
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookupEnv returns the first non-empty value of name or alt.
func lookupEnv(name, alt string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// setField parses value into field according to the field's type.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
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
		field.Set(reflect.ValueOf(splitList(value)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Sources validation
	if u, err := url.Parse(c.Sources.PriceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("PRICE_CSV_URL (%q) must be an http(s) URL", c.Sources.PriceURL))
	}
	if c.Sources.DeprivationURL != "" {
		if u, err := url.Parse(c.Sources.DeprivationURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "ADI_CSV_URL must be an http(s) URL")
		}
	} else if !source.ValidTableName(c.Sources.DeprivationTable) {
		errs = append(errs, fmt.Sprintf("ADI_TABLE (%q) must be dataset.table or project.dataset.table", c.Sources.DeprivationTable))
	}
	if !source.ValidTableName(c.Sources.GeoTable) {
		errs = append(errs, fmt.Sprintf("GEO_TABLE (%q) must be dataset.table or project.dataset.table", c.Sources.GeoTable))
	}
	if c.Sources.HTTPTimeout <= 0 {
		errs = append(errs, "HTTP_TIMEOUT must be positive")
	}

	// Warehouse validation
	switch strings.ToLower(c.Warehouse.Driver) {
	case "bigquery":
	case "postgres":
		if c.Warehouse.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when WAREHOUSE_DRIVER is postgres")
		}
		if c.Warehouse.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Warehouse.MaxConns < c.Warehouse.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Warehouse.MaxConns, c.Warehouse.MinConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("WAREHOUSE_DRIVER (%q) must be one of: bigquery, postgres", c.Warehouse.Driver))
	}
	if c.Warehouse.CreateTimeout <= 0 {
		errs = append(errs, "WAREHOUSE_CREATE_TIMEOUT must be positive")
	}

	// Target validation
	if _, err := core.NormalizeRegion(c.Target.Region); err != nil {
		errs = append(errs, fmt.Sprintf("TARGET_REGION (%q) must be a state FIPS code or All", c.Target.Region))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Update validation
	if c.Update.Interval < 0 {
		errs = append(errs, "UPDATE_INTERVAL must be non-negative")
	}
	if c.Update.Interval > 0 && !c.Target.Complete() {
		errs = append(errs, "UPDATE_INTERVAL requires TARGET_PROJECT, TARGET_DATASET and TARGET_TABLE")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL is masked; the price URL loses its query string.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Sources: {PriceURL: %q, ADITable: %q, GeoTable: %q}, ",
		stripQuery(c.Sources.PriceURL), c.Sources.DeprivationTable, c.Sources.GeoTable))
	dbURL := ""
	if c.Warehouse.DatabaseURL != "" {
		dbURL = "[MASKED]"
	}
	b.WriteString(fmt.Sprintf("Warehouse: {Driver: %q, Location: %q, DatabaseURL: %s}, ",
		c.Warehouse.Driver, c.Warehouse.Location, dbURL))
	b.WriteString(fmt.Sprintf("Target: {Project: %q, Dataset: %q, Table: %q, Region: %q}, ",
		c.Target.Project, c.Target.Dataset, c.Target.Table, c.Target.Region))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Update: {Interval: %s}, ", c.Update.Interval))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
