package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is applied to any family or provider that omits a timeout.
const DefaultTimeout = 10 * time.Second

// Bango namespaces searched for credential elements when none are configured.
var DefaultBangoNamespaces = []string{
	"com.bango.webservices.billingconfiguration",
	"com.bango.webservices.directbilling",
	"com.bango.webservices.mozillaexporter",
}

// Config holds the entire application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ProxyConfig is the provider table consumed by the registry.
type ProxyConfig struct {
	Enabled     bool             `yaml:"enabled"`
	RoutePrefix string           `yaml:"route_prefix"`
	PayPal      FamilyConfig     `yaml:"paypal"`
	Bango       FamilyConfig     `yaml:"bango"`
	Providers   []ProviderConfig `yaml:"providers"`
}

// FamilyConfig configures one of the built-in provider families.
type FamilyConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Timeout     Duration          `yaml:"timeout"`
	Services    map[string]string `yaml:"services,omitempty"`   // paypal: service name -> URL
	Namespaces  []string          `yaml:"namespaces,omitempty"` // bango: XML namespaces
	Credentials map[string]string `yaml:"credentials,omitempty"`
}

// ProviderConfig holds configuration for a named reference provider
type ProviderConfig struct {
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"base_url"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Timeout     Duration          `yaml:"timeout"`
	Credentials map[string]string `yaml:"credentials,omitempty"` // key, secret, token, token_secret
}

// IsEnabled reports whether the provider is enabled. Providers are enabled unless set otherwise.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds
}

// StorageConfig holds call-log database configuration
type StorageConfig struct {
	Type     string         `yaml:"type"` // "postgres", "sqlite", "memory"
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	URL             string `yaml:"url"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxConnections  int    `yaml:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // minutes
}

// ConnectionURL returns the configured URL, or DATABASE_URL, or one built from the parts.
func (p PostgresConfig) ConnectionURL() string {
	if p.URL != "" {
		return p.URL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(p.Username), url.QueryEscape(p.Password), p.Host, p.Port, p.Database, sslMode)
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds call-log capture configuration
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BufferSize    int    `yaml:"buffer_size"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"` // duration string like "1s"
	Workers       int    `yaml:"workers"`
	MaxBodySize   int    `yaml:"max_body_size"` // bytes
	SkipOnError   bool   `yaml:"skip_on_error"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"` // cron expression
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// TracingConfig configures OTLP span export. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
	Headers     map[string]string `yaml:"headers"`
}

// Duration is a time.Duration that unmarshals from YAML duration strings.
type Duration time.Duration

// UnmarshalYAML parses "10s" style strings and bare integers (seconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		Proxy: ProxyConfig{
			Enabled:     false,
			RoutePrefix: "/proxy",
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "payproxy",
				Username:        "payproxy",
				SSLMode:         "disable",
				MaxConnections:  25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 60, // minutes
			},
			SQLite: SQLiteConfig{
				Path: "payproxy.db",
			},
		},
		Logging: LoggingConfig{
			Enabled:       false,
			BufferSize:    1000,
			BatchSize:     10,
			FlushInterval: "1s",
			Workers:       3,
			MaxBodySize:   64 * 1024, // 64KB
			SkipOnError:   true,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "payproxy",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "pay-proxy",
			SampleRatio: 1,
		},
	}
}

// LoadConfig loads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Proxy.RoutePrefix == "" {
		c.Proxy.RoutePrefix = "/proxy"
	}
	c.Proxy.RoutePrefix = "/" + strings.Trim(c.Proxy.RoutePrefix, "/")

	if c.Proxy.PayPal.Timeout <= 0 {
		c.Proxy.PayPal.Timeout = Duration(DefaultTimeout)
	}
	if c.Proxy.Bango.Timeout <= 0 {
		c.Proxy.Bango.Timeout = Duration(DefaultTimeout)
	}
	if len(c.Proxy.Bango.Namespaces) == 0 {
		c.Proxy.Bango.Namespaces = append([]string(nil), DefaultBangoNamespaces...)
	}
	for i := range c.Proxy.Providers {
		if c.Proxy.Providers[i].Timeout <= 0 {
			c.Proxy.Providers[i].Timeout = Duration(DefaultTimeout)
		}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pay-proxy"
	}
}

// Validate checks the provider table for problems that would only surface at request time.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Proxy.Providers))
	for i, p := range c.Proxy.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("proxy.providers[%d]: name is required", i))
			continue
		}
		if strings.Contains(p.Name, "/") {
			errs = append(errs, fmt.Errorf("proxy.providers[%d]: name %q must not contain '/'", i, p.Name))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("proxy.providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("provider %s: base_url is required", p.Name))
		}
	}

	for name, target := range c.Proxy.PayPal.Services {
		if target == "" {
			errs = append(errs, fmt.Errorf("proxy.paypal.services[%s]: url is required", name))
		}
	}

	switch c.Storage.Type {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type: %s", c.Storage.Type))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}
