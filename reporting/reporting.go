// Package reporting forwards transient remote failures to an error tracker.
package reporting

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter is satisfied by both implementations below and by
// leaderboard.Reporter.
type Reporter interface {
	Report(ctx context.Context, err error, extras map[string]string)
	Flush(timeout time.Duration) bool
}

type Config struct {
	DSN         string  `json:"sentry_dsn" yaml:"sentry_dsn" env:"SENTRY_DSN"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" env:"SAMPLE_RATE"`
	Environment string  `json:"-" yaml:"-"`
	Release     string  `json:"-" yaml:"-"`
}

var uuidRx = regexp.MustCompile(`[0-9a-f]{8}-?([0-9a-f]{4}-?){3}[0-9a-f]{12}`)
var hostRx = regexp.MustCompile(`\[:{0,2}([0-9a-f]{0,4}:?){1,8}\]:\d+|\b\d{1,3}(\.\d{1,3}){3}:\d+\b`)

// sanitizeError strips ids and addresses so equal failures group together.
func sanitizeError(err string) string {
	err = uuidRx.ReplaceAllString(err, "<uuid>")
	err = hostRx.ReplaceAllString(err, "<host>")
	return err
}

// New returns a Sentry reporter when a DSN is configured and a log-only one
// otherwise.
func New(cfg Config, logger *slog.Logger) (Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		logger.Info("no Sentry DSN configured, errors are only logged")
		return NewLog(logger), nil
	}
	return NewSentry(cfg, logger)
}

// Sentry reports through its own hub so tests and multiple servers in one
// process do not share global state.
type Sentry struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

func NewSentry(cfg Config, logger *slog.Logger) (*Sentry, error) {
	return newSentry(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
	}, logger)
}

func newSentry(opts sentry.ClientOptions, logger *slog.Logger) (*Sentry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope()), logger: logger}, nil
}

func (s *Sentry) Report(ctx context.Context, err error, extras map[string]string) {
	if err == nil {
		err = errors.New("No error provided")
	}
	s.logger.ErrorContext(ctx, "Reporting error to Sentry", slog.String("error", err.Error()), slog.Any("extras", extras))

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tagsFromContext(ctx))
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		s.hub.CaptureException(err)
	})
}

func (s *Sentry) Flush(timeout time.Duration) bool { return s.hub.Flush(timeout) }

// Log only writes reports to the logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Report(ctx context.Context, err error, extras map[string]string) {
	l.logger.WarnContext(ctx, "remote failure", "error", err, "extras", extras, "tags", tagsFromContext(ctx))
}

func (l *Log) Flush(time.Duration) bool { return true }
