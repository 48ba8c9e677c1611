package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"cyberquest/adapters/sqlx"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/reporting"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}

	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}

	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	return joinErrs(errs)
}

var validBackends = []string{BackendMemory, BackendRedis, BackendSQL, BackendFile, BackendFirestore, BackendRemote}

// Validate validates leaderboard configuration
func (l *LeaderboardConfig) Validate() error {
	var errs []string

	if !slices.Contains(validBackends, l.Backend) {
		errs = append(errs, fmt.Sprintf("backend must be one of: %s", strings.Join(validBackends, ", ")))
	}
	if l.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}

	switch l.Backend {
	case BackendRedis:
		if l.Redis.Addr == "" {
			errs = append(errs, "redis.addr cannot be empty")
		}
	case BackendSQL:
		if l.SQL.Driver != sqlx.DriverPostgres && l.SQL.Driver != sqlx.DriverMySQL {
			errs = append(errs, fmt.Sprintf("sql.driver must be %s or %s", sqlx.DriverPostgres, sqlx.DriverMySQL))
		}
		if l.SQL.DSN == "" {
			errs = append(errs, "sql.dsn cannot be empty")
		}
	case BackendFile:
		if err := l.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	case BackendFirestore:
		if l.Firestore.ProjectID == "" {
			errs = append(errs, "firestore.project_id cannot be empty")
		}
	case BackendRemote:
		u, err := url.Parse(l.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "remote.url must be an absolute http(s) URL")
		}
	}

	return joinErrs(errs)
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

func validateSessions(s engine.SessionsConfig) error {
	if s.IdleTTL < 0 {
		return errors.New("idle_ttl must not be negative")
	}
	return nil
}

func validateReporting(r reporting.Config) error {
	if r.SampleRate < 0 || r.SampleRate > 1 {
		return errors.New("sample_rate must be between 0 and 1")
	}
	if r.DSN != "" {
		if _, err := url.Parse(r.DSN); err != nil {
			return fmt.Errorf("sentry_dsn is not a URL: %w", err)
		}
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, l.Level) {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, l.Format) {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	if !slices.Contains(validOutputs, l.Output) {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	return joinErrs(errs)
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	return joinErrs(errs)
}

var knownEvents = []core.EventType{
	core.EventSessionStarted,
	core.EventScoreAdded,
	core.EventLevelCompleted,
	core.EventLevelUnlocked,
	core.EventSessionReset,
	core.EventScoreSubmitted,
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	var errs []string
	for i, e := range w.Endpoints {
		u, err := url.Parse(e)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("endpoints[%d] is not an absolute URL", i))
		}
	}
	for _, ev := range w.Events {
		if !slices.Contains(knownEvents, core.EventType(ev)) {
			errs = append(errs, fmt.Sprintf("unknown event %q", ev))
		}
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	return joinErrs(errs)
}

// Validate validates analytics export configuration
func (a *AnalyticsConfig) Validate() error {
	if a.ExportEnabled && a.Interval <= 0 {
		return errors.New("interval must be positive when export is enabled")
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
