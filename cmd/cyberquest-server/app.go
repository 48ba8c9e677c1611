package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	fsAdapter "cyberquest/adapters/firestore"
	"cyberquest/adapters/jsonfile"
	mem "cyberquest/adapters/memory"
	redisAdapter "cyberquest/adapters/redis"
	sqlxAdapter "cyberquest/adapters/sqlx"
	"cyberquest/analytics"
	"cyberquest/api/httpapi"
	"cyberquest/catalog"
	"cyberquest/config"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/game"
	"cyberquest/integrations/webhook"
	"cyberquest/leaderboard"
	"cyberquest/realtime"
	"cyberquest/reporting"
	sdk "cyberquest/sdk/go"
)

// App aggregates the assembled server components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Reporter reporting.Reporter
	Hub      *realtime.Hub
	Funnel   *analytics.Funnel
	Service  *engine.Service
	Handler  http.Handler
	Server   *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideReporter(cfg *config.Config, logger *slog.Logger) (reporting.Reporter, error) {
	rc := cfg.Reporting
	rc.Environment = string(cfg.Environment)
	return reporting.New(rc, logger)
}

func provideLevels(cfg *config.Config) ([]core.LevelSpec, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideFunnel() *analytics.Funnel {
	return analytics.NewFunnel()
}

func provideWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	opts := []webhook.Option{
		webhook.WithClient(&http.Client{Timeout: cfg.Webhooks.Timeout}),
		webhook.WithLogger(logger),
	}
	if len(cfg.Webhooks.Events) > 0 {
		types := make([]core.EventType, 0, len(cfg.Webhooks.Events))
		for _, e := range cfg.Webhooks.Events {
			types = append(types, core.EventType(e))
		}
		opts = append(opts, webhook.WithEvents(types...))
	}
	return webhook.New(cfg.Webhooks.Endpoints, opts...)
}

func provideBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (leaderboard.Backend, func(), error) {
	return setupBackend(ctx, cfg, logger)
}

func provideService(
	cfg *config.Config,
	logger *slog.Logger,
	levels []core.LevelSpec,
	backend leaderboard.Backend,
	reporter reporting.Reporter,
	hub *realtime.Hub,
	funnel *analytics.Funnel,
	sink *webhook.Sink,
) (*engine.Service, func()) {
	svc := game.New(
		game.WithCatalog(levels),
		game.WithBackend(backend),
		game.WithLeaderboardOptions(
			leaderboard.WithTimeout(cfg.Leaderboard.Timeout),
			leaderboard.WithReporter(reporter),
			leaderboard.WithAbandonObserver(func(a leaderboard.Abandoned) {
				logger.Warn("leaderboard call finished after timeout", "op", a.Op, "elapsed", a.Elapsed, "error", a.Err)
			}),
		),
		game.WithSessions(cfg.Sessions),
		game.WithRealtime(hub),
		game.WithDispatchMode(engine.DispatchAsync),
		game.WithLogger(logger),
	)
	svc.SubscribeAll(funnel.OnEvent)
	if sink != nil {
		svc.SubscribeAll(sink.OnEvent)
	}
	return svc, svc.Close
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, funnel *analytics.Funnel, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewRouter(svc, hub, funnel, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowedOrigins:   cfg.Server.CORSOrigins,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	logger := newLogger(out, cfg.Logging)
	slog.SetDefault(logger)
	return logger
}

func newLogger(out io.Writer, lc config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(lc.Level),
	}

	switch lc.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(lc.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(lc.Attributes))
	}
	return slog.New(handler)
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupBackend creates the leaderboard store named by the configuration.
// The returned cleanup releases its connections.
func setupBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (leaderboard.Backend, func(), error) {
	noop := func() {}
	lc := cfg.Leaderboard
	switch lc.Backend {
	case config.BackendMemory:
		return mem.New(), noop, nil
	case config.BackendRedis:
		store, err := redisAdapter.New(lc.Redis)
		if err != nil {
			return nil, nil, err
		}
		store.WithLogger(logger)
		return store, func() { _ = store.Close() }, nil
	case config.BackendSQL:
		store, err := sqlxAdapter.New(ctx, lc.SQL)
		if err != nil {
			return nil, nil, err
		}
		store.WithLogger(logger)
		if lc.SQL.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, nil, err
			}
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendFile:
		store, err := jsonfile.New(lc.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return store.WithLogger(logger), noop, nil
	case config.BackendFirestore:
		store, err := fsAdapter.New(ctx, lc.Firestore)
		if err != nil {
			return nil, nil, err
		}
		store.WithLogger(logger)
		return store, func() { _ = store.Close() }, nil
	case config.BackendRemote:
		client, err := sdk.NewClient(lc.Remote.URL, sdk.WithAPIKey(lc.Remote.APIKey))
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown leaderboard backend: %s", lc.Backend)
	}
}
