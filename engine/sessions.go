package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"cyberquest/core"
	"cyberquest/progress"
)

// SessionsConfig bounds the live session registry. Zero values disable the
// respective limit.
type SessionsConfig struct {
	IdleTTL  time.Duration `json:"idle_ttl" yaml:"idle_ttl" env:"IDLE_TTL"`
	Capacity uint64        `json:"capacity" yaml:"capacity" env:"CAPACITY"`
}

func DefaultSessionsConfig() SessionsConfig {
	return SessionsConfig{IdleTTL: 2 * time.Hour, Capacity: 10000}
}

// Sessions keeps live progress stores. Every lookup extends a session's
// idle deadline; sessions idle for longer than IdleTTL are dropped.
type Sessions struct {
	cache  *ttlcache.Cache[core.SessionID, *progress.Store]
	logger *slog.Logger
	stop   sync.Once
}

func NewSessions(cfg SessionsConfig, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []ttlcache.Option[core.SessionID, *progress.Store]{
		ttlcache.WithTTL[core.SessionID, *progress.Store](cfg.IdleTTL),
	}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[core.SessionID, *progress.Store](cfg.Capacity))
	}
	s := &Sessions{cache: ttlcache.New(opts...), logger: logger}
	s.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[core.SessionID, *progress.Store]) {
		s.logger.DebugContext(ctx, "session evicted", "session", item.Key(), "reason", evictionReason(reason))
	})
	go s.cache.Start()
	return s
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (s *Sessions) Put(store *progress.Store) {
	s.cache.Set(store.ID(), store, ttlcache.DefaultTTL)
}

func (s *Sessions) Get(id core.SessionID) (*progress.Store, bool) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete removes a session and reports whether it was present.
func (s *Sessions) Delete(id core.SessionID) bool {
	if !s.cache.Has(id) {
		return false
	}
	s.cache.Delete(id)
	return true
}

func (s *Sessions) Len() int { return s.cache.Len() }

// Close stops the expiry loop.
func (s *Sessions) Close() { s.stop.Do(s.cache.Stop) }
