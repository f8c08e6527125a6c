package core

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the hosted backend the mobile client talks to.
const DefaultBaseURL = "https://grocery-backend-3pow.onrender.com"

// Config holds all configuration options for the storefront client.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Config file (JSON or YAML), when WithConfigFile is used
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithBaseURL("https://api.example.com"),
//	    WithRetries(5),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name string `json:"name" yaml:"name"`

	Backend        BackendConfig        `json:"backend" yaml:"backend"`
	Fetch          FetchConfig          `json:"fetch" yaml:"fetch"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Cart           CartConfig           `json:"cart" yaml:"cart"`
	Storage        StorageConfig        `json:"storage" yaml:"storage"`
	Logging        LoggingConfig        `json:"logging" yaml:"logging"`
	Telemetry      TelemetryConfig      `json:"telemetry" yaml:"telemetry"`
	Development    DevelopmentConfig    `json:"development" yaml:"development"`
}

// BackendConfig locates the remote catalog and order backend.
// ImageBaseURL is the prefix applied to relative image paths; it defaults to
// BaseURL.
type BackendConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url" env:"STOREFRONT_BASE_URL"`
	ImageBaseURL string `json:"image_base_url" yaml:"image_base_url" env:"STOREFRONT_IMAGE_BASE_URL"`
}

// FetchConfig defines the per-request timeout and retry schedule.
// Delay before retry i (0-based) is BackoffBase * 2^i, capped at MaxBackoff,
// and scaled into [0.5, 1.0] of itself when Jitter is enabled.
type FetchConfig struct {
	Timeout     time.Duration `json:"timeout" yaml:"timeout" env:"STOREFRONT_FETCH_TIMEOUT" default:"30s"`
	Retries     int           `json:"retries" yaml:"retries" env:"STOREFRONT_FETCH_RETRIES" default:"3"`
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" env:"STOREFRONT_FETCH_BACKOFF_BASE" default:"1s"`
	MaxBackoff  time.Duration `json:"max_backoff" yaml:"max_backoff" env:"STOREFRONT_FETCH_MAX_BACKOFF" default:"30s"`
	Jitter      bool          `json:"jitter" yaml:"jitter" env:"STOREFRONT_FETCH_JITTER" default:"true"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
// After Threshold consecutive transient failures the breaker opens and
// rejects requests until Cooldown has passed.
type CircuitBreakerConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" env:"STOREFRONT_CB_ENABLED" default:"false"`
	Threshold int           `json:"threshold" yaml:"threshold" env:"STOREFRONT_CB_THRESHOLD" default:"5"`
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown" env:"STOREFRONT_CB_COOLDOWN" default:"30s"`
}

// CartConfig tunes the background cart persistence queue.
type CartConfig struct {
	PushDebounce time.Duration `json:"push_debounce" yaml:"push_debounce" env:"STOREFRONT_CART_PUSH_DEBOUNCE" default:"0s"`
}

// StorageConfig selects the persisted key-value backend for session state.
type StorageConfig struct {
	Provider   string `json:"provider" yaml:"provider" env:"STOREFRONT_STORAGE" default:"memory"`
	RedisURL   string `json:"redis_url" yaml:"redis_url" env:"STOREFRONT_REDIS_URL,REDIS_URL"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" env:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`
	Namespace  string `json:"namespace" yaml:"namespace" env:"STOREFRONT_STORAGE_NAMESPACE" default:"storefront"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level         string        `json:"level" yaml:"level" env:"STOREFRONT_LOG_LEVEL" default:"info"`
	Format        string        `json:"format" yaml:"format" env:"STOREFRONT_LOG_FORMAT" default:"json"`
	Output        string        `json:"output" yaml:"output" env:"STOREFRONT_LOG_OUTPUT" default:"stdout"`
	TimeFormat    string        `json:"time_format" yaml:"time_format" default:"2006-01-02T15:04:05.000Z07:00"`
	ErrorInterval time.Duration `json:"error_interval" yaml:"error_interval" default:"0s"`
}

// TelemetryConfig contains observability configuration for metrics and tracing.
// Exporter is "otlp" (gRPC traces, HTTP metrics) or "stdout".
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"STOREFRONT_TELEMETRY_ENABLED" default:"false"`
	Exporter    string `json:"exporter" yaml:"exporter" env:"STOREFRONT_TELEMETRY_EXPORTER" default:"otlp"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"STOREFRONT_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"STOREFRONT_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	Insecure    bool   `json:"insecure" yaml:"insecure" default:"true"`
}

// DevelopmentConfig switches to human-readable debug logging.
type DevelopmentConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"STOREFRONT_DEV_MODE" default:"false"`
}

// Option is a functional option for configuring the client
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Name: "storefront",
		Backend: BackendConfig{
			BaseURL: DefaultBaseURL,
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			Retries:     3,
			BackoffBase: time.Second,
			MaxBackoff:  30 * time.Second,
			Jitter:      true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:   false,
			Threshold: 5,
			Cooldown:  30 * time.Second,
		},
		Storage: StorageConfig{
			Provider:   "memory",
			SQLitePath: "storefront.db",
			Namespace:  "storefront",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		},
		Telemetry: TelemetryConfig{
			Exporter: "otlp",
			Insecure: true,
		},
	}
}

// ImageBase returns the prefix for relative image paths
func (c *Config) ImageBase() string {
	if c.Backend.ImageBaseURL != "" {
		return c.Backend.ImageBaseURL
	}
	return c.Backend.BaseURL
}

// LoadFromEnv loads configuration from environment variables.
// Storefront-specific variables use the STOREFRONT_ prefix; REDIS_URL,
// OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_SERVICE_NAME are honoured as fallbacks.
//
// Returns an error if environment variables contain invalid values.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("STOREFRONT_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_IMAGE_BASE_URL"); v != "" {
		c.Backend.ImageBaseURL = v
	}

	// Fetch settings
	if err := envDuration("STOREFRONT_FETCH_TIMEOUT", &c.Fetch.Timeout); err != nil {
		return err
	}
	if err := envInt("STOREFRONT_FETCH_RETRIES", &c.Fetch.Retries); err != nil {
		return err
	}
	if err := envDuration("STOREFRONT_FETCH_BACKOFF_BASE", &c.Fetch.BackoffBase); err != nil {
		return err
	}
	if err := envDuration("STOREFRONT_FETCH_MAX_BACKOFF", &c.Fetch.MaxBackoff); err != nil {
		return err
	}
	if v := os.Getenv("STOREFRONT_FETCH_JITTER"); v != "" {
		c.Fetch.Jitter = parseBool(v)
	}

	// Circuit breaker
	if v := os.Getenv("STOREFRONT_CB_ENABLED"); v != "" {
		c.CircuitBreaker.Enabled = parseBool(v)
	}
	if err := envInt("STOREFRONT_CB_THRESHOLD", &c.CircuitBreaker.Threshold); err != nil {
		return err
	}
	if err := envDuration("STOREFRONT_CB_COOLDOWN", &c.CircuitBreaker.Cooldown); err != nil {
		return err
	}

	if err := envDuration("STOREFRONT_CART_PUSH_DEBOUNCE", &c.Cart.PushDebounce); err != nil {
		return err
	}

	// Storage
	if v := os.Getenv("STOREFRONT_STORAGE"); v != "" {
		c.Storage.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("STOREFRONT_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("STOREFRONT_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("STOREFRONT_STORAGE_NAMESPACE"); v != "" {
		c.Storage.Namespace = v
	}

	// Logging
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STOREFRONT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("STOREFRONT_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	// Telemetry
	if v := os.Getenv("STOREFRONT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("STOREFRONT_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("STOREFRONT_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("STOREFRONT_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}

	if v := os.Getenv("STOREFRONT_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// File settings override environment variables but are overridden by functional options.
//
// Example YAML:
//
//	backend:
//	  base_url: https://api.example.com
//	fetch:
//	  retries: 5
//	  timeout: 10s
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	var fc fileConfig
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return fc.apply(c)
}

// fileConfig mirrors Config with optional fields and string durations, so a
// file only overrides the keys it mentions.
type fileConfig struct {
	Name    *string `json:"name" yaml:"name"`
	Backend *struct {
		BaseURL      *string `json:"base_url" yaml:"base_url"`
		ImageBaseURL *string `json:"image_base_url" yaml:"image_base_url"`
	} `json:"backend" yaml:"backend"`
	Fetch *struct {
		Timeout     *string `json:"timeout" yaml:"timeout"`
		Retries     *int    `json:"retries" yaml:"retries"`
		BackoffBase *string `json:"backoff_base" yaml:"backoff_base"`
		MaxBackoff  *string `json:"max_backoff" yaml:"max_backoff"`
		Jitter      *bool   `json:"jitter" yaml:"jitter"`
	} `json:"fetch" yaml:"fetch"`
	CircuitBreaker *struct {
		Enabled   *bool   `json:"enabled" yaml:"enabled"`
		Threshold *int    `json:"threshold" yaml:"threshold"`
		Cooldown  *string `json:"cooldown" yaml:"cooldown"`
	} `json:"circuit_breaker" yaml:"circuit_breaker"`
	Cart *struct {
		PushDebounce *string `json:"push_debounce" yaml:"push_debounce"`
	} `json:"cart" yaml:"cart"`
	Storage *struct {
		Provider   *string `json:"provider" yaml:"provider"`
		RedisURL   *string `json:"redis_url" yaml:"redis_url"`
		SQLitePath *string `json:"sqlite_path" yaml:"sqlite_path"`
		Namespace  *string `json:"namespace" yaml:"namespace"`
	} `json:"storage" yaml:"storage"`
	Logging *struct {
		Level  *string `json:"level" yaml:"level"`
		Format *string `json:"format" yaml:"format"`
		Output *string `json:"output" yaml:"output"`
	} `json:"logging" yaml:"logging"`
	Telemetry *struct {
		Enabled     *bool   `json:"enabled" yaml:"enabled"`
		Exporter    *string `json:"exporter" yaml:"exporter"`
		Endpoint    *string `json:"endpoint" yaml:"endpoint"`
		ServiceName *string `json:"service_name" yaml:"service_name"`
	} `json:"telemetry" yaml:"telemetry"`
	Development *struct {
		Enabled *bool `json:"enabled" yaml:"enabled"`
	} `json:"development" yaml:"development"`
}

func (fc *fileConfig) apply(c *Config) error {
	setString(&c.Name, fc.Name)
	if b := fc.Backend; b != nil {
		setString(&c.Backend.BaseURL, b.BaseURL)
		setString(&c.Backend.ImageBaseURL, b.ImageBaseURL)
	}
	if f := fc.Fetch; f != nil {
		if err := setDuration("fetch.timeout", &c.Fetch.Timeout, f.Timeout); err != nil {
			return err
		}
		if f.Retries != nil {
			c.Fetch.Retries = *f.Retries
		}
		if err := setDuration("fetch.backoff_base", &c.Fetch.BackoffBase, f.BackoffBase); err != nil {
			return err
		}
		if err := setDuration("fetch.max_backoff", &c.Fetch.MaxBackoff, f.MaxBackoff); err != nil {
			return err
		}
		if f.Jitter != nil {
			c.Fetch.Jitter = *f.Jitter
		}
	}
	if cb := fc.CircuitBreaker; cb != nil {
		if cb.Enabled != nil {
			c.CircuitBreaker.Enabled = *cb.Enabled
		}
		if cb.Threshold != nil {
			c.CircuitBreaker.Threshold = *cb.Threshold
		}
		if err := setDuration("circuit_breaker.cooldown", &c.CircuitBreaker.Cooldown, cb.Cooldown); err != nil {
			return err
		}
	}
	if ct := fc.Cart; ct != nil {
		if err := setDuration("cart.push_debounce", &c.Cart.PushDebounce, ct.PushDebounce); err != nil {
			return err
		}
	}
	if s := fc.Storage; s != nil {
		setString(&c.Storage.Provider, s.Provider)
		setString(&c.Storage.RedisURL, s.RedisURL)
		setString(&c.Storage.SQLitePath, s.SQLitePath)
		setString(&c.Storage.Namespace, s.Namespace)
	}
	if l := fc.Logging; l != nil {
		setString(&c.Logging.Level, l.Level)
		setString(&c.Logging.Format, l.Format)
		setString(&c.Logging.Output, l.Output)
	}
	if t := fc.Telemetry; t != nil {
		if t.Enabled != nil {
			c.Telemetry.Enabled = *t.Enabled
		}
		setString(&c.Telemetry.Exporter, t.Exporter)
		setString(&c.Telemetry.Endpoint, t.Endpoint)
		setString(&c.Telemetry.ServiceName, t.ServiceName)
	}
	if d := fc.Development; d != nil && d.Enabled != nil {
		c.Development.Enabled = *d.Enabled
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be called
// manually after modifying configuration.
func (c *Config) Validate() error {
	if err := validateHTTPURL("backend base URL", c.Backend.BaseURL); err != nil {
		return err
	}
	if c.Backend.ImageBaseURL != "" {
		if err := validateHTTPURL("image base URL", c.Backend.ImageBaseURL); err != nil {
			return err
		}
	}

	if c.Fetch.Retries < 1 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("fetch retries must be at least 1, got %d", c.Fetch.Retries),
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.Fetch.Timeout <= 0 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "fetch timeout must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.Fetch.BackoffBase < 0 || c.Fetch.MaxBackoff < 0 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "backoff durations must not be negative",
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.CircuitBreaker.Enabled && c.CircuitBreaker.Threshold < 1 {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "circuit breaker threshold must be at least 1",
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Storage.Provider {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis storage provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "sqlite path is required for the sqlite storage provider",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown storage provider %q", c.Storage.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout":
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				return &StoreError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: "telemetry endpoint is required for the otlp exporter",
					Err:     ErrMissingConfiguration,
				}
			}
		default:
			return &StoreError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	return nil
}

func validateHTTPURL(what, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &StoreError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("%s must be an absolute http(s) URL, got %q", what, raw),
			Err:     ErrInvalidConfiguration,
		}
	}
	return nil
}

// Helper functions

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", key, err, ErrInvalidConfiguration)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", key, err, ErrInvalidConfiguration)
	}
	*dst = n
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(field string, dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", field, err, ErrInvalidConfiguration)
	}
	*dst = d
	return nil
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Configuration options

// WithName sets the service name used in logs and telemetry
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithBaseURL sets the backend base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Config) error {
		c.Backend.BaseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithImageBaseURL sets the prefix for relative image paths
func WithImageBaseURL(baseURL string) Option {
	return func(c *Config) error {
		c.Backend.ImageBaseURL = baseURL
		return nil
	}
}

// WithFetchTimeout sets the per-attempt request deadline
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive: %w", ErrInvalidConfiguration)
		}
		c.Fetch.Timeout = timeout
		return nil
	}
}

// WithRetries sets the total number of attempts per request
func WithRetries(attempts int) Option {
	return func(c *Config) error {
		c.Fetch.Retries = attempts
		return nil
	}
}

// WithBackoff sets the base delay and enables or disables jitter
func WithBackoff(base time.Duration, jitter bool) Option {
	return func(c *Config) error {
		c.Fetch.BackoffBase = base
		c.Fetch.Jitter = jitter
		return nil
	}
}

// WithCircuitBreaker enables the breaker with the given settings
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Config) error {
		c.CircuitBreaker.Enabled = true
		c.CircuitBreaker.Threshold = threshold
		c.CircuitBreaker.Cooldown = cooldown
		return nil
	}
}

// WithPushDebounce coalesces cart pushes issued within the window
func WithPushDebounce(d time.Duration) Option {
	return func(c *Config) error {
		c.Cart.PushDebounce = d
		return nil
	}
}

// WithStorage selects the persisted storage provider
func WithStorage(provider string) Option {
	return func(c *Config) error {
		c.Storage.Provider = strings.ToLower(provider)
		return nil
	}
}

// WithRedisStorage selects Redis storage at the given URL
func WithRedisStorage(redisURL string) Option {
	return func(c *Config) error {
		c.Storage.Provider = "redis"
		c.Storage.RedisURL = redisURL
		return nil
	}
}

// WithSQLiteStorage selects SQLite storage at the given path
func WithSQLiteStorage(path string) Option {
	return func(c *Config) error {
		c.Storage.Provider = "sqlite"
		c.Storage.SQLitePath = path
		return nil
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log format (json or text)
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTelemetry enables telemetry with the given exporter and endpoint
func WithTelemetry(exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = exporter
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithDevelopmentMode enables human-readable debug logging
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the provided options.
// It applies defaults, loads environment variables, applies options,
// and validates the final configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
