package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"cyberquest/adapters/firestore"
	"cyberquest/adapters/redis"
	"cyberquest/adapters/sqlx"
	"cyberquest/engine"
	"cyberquest/leaderboard"
	"cyberquest/reporting"
)

const (
	// EnvPrefix is prepended to every environment variable the config reads.
	EnvPrefix = "CYBERQUEST_"
	// FileEnvVar names the optional JSON or YAML config file.
	FileEnvVar = "CYBERQUEST_CONFIG"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Leaderboard backends.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendSQL       = "sql"
	BackendFile      = "file"
	BackendFirestore = "firestore"
	BackendRemote    = "remote"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" yaml:"environment" env:"ENV"`
	Profile     string      `json:"profile" yaml:"profile" env:"PROFILE"`

	Server      ServerConfig          `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Leaderboard LeaderboardConfig     `json:"leaderboard" yaml:"leaderboard" envPrefix:"LEADERBOARD_"`
	Sessions    engine.SessionsConfig `json:"sessions" yaml:"sessions" envPrefix:"SESSIONS_"`
	Catalog     CatalogConfig         `json:"catalog" yaml:"catalog" envPrefix:"CATALOG_"`
	Logging     LoggingConfig         `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Reporting   reporting.Config      `json:"reporting" yaml:"reporting" envPrefix:"REPORTING_"`
	Security    SecurityConfig        `json:"security" yaml:"security" envPrefix:"SECURITY_"`
	Webhooks    WebhookConfig         `json:"webhooks" yaml:"webhooks" envPrefix:"WEBHOOKS_"`
	Analytics   AnalyticsConfig       `json:"analytics" yaml:"analytics" envPrefix:"ANALYTICS_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"ADDR"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"PATH_PREFIX"`
	CORSOrigins       []string      `json:"cors_origins" yaml:"cors_origins" env:"CORS_ORIGINS"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LeaderboardConfig selects and configures the remote score store.
type LeaderboardConfig struct {
	Backend   string           `json:"backend" yaml:"backend" env:"BACKEND"`
	Timeout   time.Duration    `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	Redis     redis.Config     `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	SQL       sqlx.Config      `json:"sql" yaml:"sql" envPrefix:"SQL_"`
	File      FileConfig       `json:"file" yaml:"file" envPrefix:"FILE_"`
	Firestore firestore.Config `json:"firestore" yaml:"firestore" envPrefix:"FIRESTORE_"`
	Remote    RemoteConfig     `json:"remote" yaml:"remote" envPrefix:"REMOTE_"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" yaml:"path" env:"PATH"`
}

// RemoteConfig points at another CyberQuest server's API.
type RemoteConfig struct {
	URL    string `json:"url" yaml:"url" env:"URL"`
	APIKey string `json:"api_key" yaml:"api_key" env:"API_KEY"`
}

// CatalogConfig optionally replaces the built-in level catalog.
type CatalogConfig struct {
	Path string `json:"path" yaml:"path" env:"PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"LEVEL"`
	Format     string            `json:"format" yaml:"format" env:"FORMAT"`
	Output     string            `json:"output" yaml:"output" env:"OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" env:"ATTRIBUTES"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit" yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	APIKeys         []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty" env:"API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"RPM"`
	BurstSize         int `json:"burst_size" yaml:"burst_size" env:"BURST"`
}

// WebhookConfig lists endpoints that receive domain events.
type WebhookConfig struct {
	Endpoints []string      `json:"endpoints,omitempty" yaml:"endpoints,omitempty" env:"ENDPOINTS"`
	Events    []string      `json:"events,omitempty" yaml:"events,omitempty" env:"EVENTS"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

// AnalyticsConfig controls periodic funnel export. Without an endpoint the
// funnel is written to the log.
type AnalyticsConfig struct {
	ExportEnabled bool          `json:"export_enabled" yaml:"export_enabled" env:"EXPORT_ENABLED"`
	Endpoint      string        `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	APIKey        string        `json:"api_key" yaml:"api_key" env:"API_KEY"`
	Interval      time.Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
}

// Load builds the configuration from defaults, the file named by
// CYBERQUEST_CONFIG (if any) and CYBERQUEST_* environment variables.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv(FileEnvVar)); path != "" {
		return LoadFromFile(path)
	}
	return finish(DefaultConfig())
}

// LoadProfile starts from the defaults of a named profile and applies the
// environment on top.
func LoadProfile(name string) (*Config, error) {
	cfg, err := profile(name)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json", ".yaml", ".yml":
	default:
		return errors.New("config file must have a .json, .yaml or .yml extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

// finish applies environment overrides and validates.
func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigins:       []string{"*"},
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Leaderboard: LeaderboardConfig{
			Backend:   BackendMemory,
			Timeout:   leaderboard.DefaultTimeout,
			Redis:     redis.DefaultConfig(),
			SQL:       sqlx.DefaultConfig(sqlx.DriverPostgres),
			File:      FileConfig{Path: "./data/leaderboard.json"},
			Firestore: firestore.DefaultConfig(),
		},
		Sessions: engine.DefaultSessionsConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Reporting: reporting.Config{SampleRate: 1},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
		Webhooks: WebhookConfig{Timeout: 5 * time.Second},
		Analytics: AnalyticsConfig{
			ExportEnabled: false,
			Interval:      time.Minute,
		},
	}
}

func profile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch Environment(name) {
	case EnvDevelopment:
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "warn"
		cfg.Sessions.IdleTTL = 10 * time.Minute
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigins = nil
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit = RateLimitConfig{RequestsPerMinute: 120, BurstSize: 20}
		cfg.Analytics.ExportEnabled = true
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"leaderboard", c.Leaderboard.Validate},
		{"sessions", func() error { return validateSessions(c.Sessions) }},
		{"logging", c.Logging.Validate},
		{"reporting", func() error { return validateReporting(c.Reporting) }},
		{"security", c.Security.Validate},
		{"webhooks", c.Webhooks.Validate},
		{"analytics", c.Analytics.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

const redacted = "[REDACTED]"

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Leaderboard.SQL.DSN != "" {
		cfg.Leaderboard.SQL.DSN = redacted
	}
	if cfg.Leaderboard.Redis.Password != "" {
		cfg.Leaderboard.Redis.Password = redacted
	}
	if cfg.Leaderboard.Remote.APIKey != "" {
		cfg.Leaderboard.Remote.APIKey = redacted
	}
	if cfg.Reporting.DSN != "" {
		cfg.Reporting.DSN = redacted
	}
	if cfg.Analytics.APIKey != "" {
		cfg.Analytics.APIKey = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		keys := make([]string, len(cfg.Security.APIKeys))
		for i := range keys {
			keys[i] = redacted
		}
		cfg.Security.APIKeys = keys
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
