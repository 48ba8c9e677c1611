package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cyberquest/core"
	"cyberquest/leaderboard"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"ADDR"`
	Password     string        `json:"password" yaml:"password" env:"PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key, "leaderboard" by default.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "leaderboard",
	}
}

// Store is a leaderboard backend on Redis.
// Data structure:
// - {prefix}:scores -> sorted set of entry ids scored by entry score
// - {prefix}:entry:{id} -> JSON blob of the entry
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a new Redis-backed leaderboard with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewWithClient(client)
	if config.KeyPrefix != "" {
		s.prefix = config.KeyPrefix
	}
	return s, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "leaderboard", logger: slog.Default()}
}

// WithLogger sets the logger used to report skipped entries.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scoresKey() string { return s.prefix + ":scores" }

func (s *Store) entryKey(id string) string { return fmt.Sprintf("%s:entry:%s", s.prefix, id) }

// Insert writes the entry blob and its sorted-set member in one MULTI/EXEC.
func (s *Store) Insert(ctx context.Context, e core.Entry) (string, error) {
	e.ID = uuid.NewString()
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.entryKey(e.ID), data, 0)
		p.ZAdd(ctx, s.scoresKey(), redis.Z{Score: float64(e.Score), Member: e.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert entry: %w", err)
	}
	return e.ID, nil
}

// Top returns up to limit entries by score descending. Ids whose blob is
// missing or undecodable are skipped.
func (s *Store) Top(ctx context.Context, limit int) ([]core.Entry, error) {
	if limit <= 0 {
		return []core.Entry{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, s.scoresKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking: %w", err)
	}
	if len(ids) == 0 {
		return []core.Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	out := make([]core.Entry, 0, len(ids))
	for i, raw := range blobs {
		str, ok := raw.(string)
		if !ok {
			s.logger.WarnContext(ctx, "leaderboard entry missing", "id", ids[i])
			continue
		}
		var e core.Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			s.logger.WarnContext(ctx, "leaderboard entry undecodable", "id", ids[i], "error", err)
			continue
		}
		e.ID = ids[i]
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ leaderboard.Backend = (*Store)(nil)
