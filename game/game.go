// Package game assembles an engine.Service with sensible defaults so small
// programs and tests can get a working game backend in one call.
package game

import (
	"log/slog"

	mem "cyberquest/adapters/memory"
	"cyberquest/catalog"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/leaderboard"
	"cyberquest/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	levels   []core.LevelSpec
	backend  leaderboard.Backend
	board    engine.Leaderboard
	lbOpts   []leaderboard.Option
	mode     engine.DispatchMode
	sessions engine.SessionsConfig
	hub      *realtime.Hub
	logger   *slog.Logger
}

// WithCatalog replaces the built-in four-level catalog.
func WithCatalog(levels []core.LevelSpec) Option { return func(c *config) { c.levels = levels } }

// WithBackend sets the leaderboard store wrapped by a leaderboard.Client.
func WithBackend(b leaderboard.Backend) Option { return func(c *config) { c.backend = b } }

// WithLeaderboard uses a ready-made gateway instead of building one.
func WithLeaderboard(l engine.Leaderboard) Option { return func(c *config) { c.board = l } }

// WithLeaderboardOptions tunes the leaderboard.Client built from the backend.
func WithLeaderboardOptions(opts ...leaderboard.Option) Option {
	return func(c *config) { c.lbOpts = append(c.lbOpts, opts...) }
}

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithSessions bounds the live session registry.
func WithSessions(cfg engine.SessionsConfig) Option { return func(c *config) { c.sessions = cfg } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured Service. If not provided, defaults are used:
//   - catalog: catalog.Default
//   - leaderboard: in-memory
//   - dispatch: async
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync, sessions: engine.DefaultSessionsConfig(), logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	if len(cfg.levels) == 0 {
		cfg.levels = catalog.Default()
	}
	if cfg.board == nil {
		if cfg.backend == nil {
			cfg.backend = mem.New()
		}
		lbOpts := append([]leaderboard.Option{leaderboard.WithLogger(cfg.logger)}, cfg.lbOpts...)
		cfg.board = leaderboard.NewClient(cfg.backend, lbOpts...)
	}
	bus := engine.NewEventBus(cfg.mode, engine.WithBusLogger(cfg.logger))
	svc := engine.NewService(cfg.levels, engine.NewSessions(cfg.sessions, cfg.logger), cfg.board, bus, cfg.logger)
	if cfg.hub != nil {
		// Bridge all events to realtime
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	return svc
}
