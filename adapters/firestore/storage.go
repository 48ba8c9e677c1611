// Package firestore stores leaderboard entries in a Cloud Firestore
// collection, one document per entry:
//
//	leaderboard/{auto-id} -> {name, score, date, timestamp}
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"cyberquest/core"
	"cyberquest/leaderboard"
)

// DefaultCollection is the collection the game client has always written to.
const DefaultCollection = "leaderboard"

type Config struct {
	ProjectID       string `json:"project_id" yaml:"project_id" env:"PROJECT_ID"`
	DatabaseID      string `json:"database_id" yaml:"database_id" env:"DATABASE_ID"`
	Collection      string `json:"collection" yaml:"collection" env:"COLLECTION"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" env:"CREDENTIALS_FILE"`
}

func DefaultConfig() Config {
	return Config{DatabaseID: firestore.DefaultDatabaseID, Collection: DefaultCollection}
}

type Store struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

// New opens a Firestore client. Setting FIRESTORE_EMULATOR_HOST points it at
// the local emulator.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	dbID := cfg.DatabaseID
	if dbID == "" {
		dbID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, dbID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return NewWithClient(client, cfg.Collection), nil
}

func NewWithClient(client *firestore.Client, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection, logger: slog.Default()}
}

// WithLogger sets the logger used to report skipped documents.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Insert(ctx context.Context, e core.Entry) (string, error) {
	ref, _, err := s.client.Collection(s.collection).Add(ctx, map[string]any{
		"name":      e.Name,
		"score":     e.Score,
		"date":      e.Date,
		"timestamp": e.Timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("firestore add: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) Top(ctx context.Context, limit int) ([]core.Entry, error) {
	if limit <= 0 {
		return []core.Entry{}, nil
	}
	iter := s.client.Collection(s.collection).OrderBy("score", firestore.Desc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	out := make([]core.Entry, 0, min(limit, leaderboard.MaxLimit))
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query: %w", err)
		}
		e, err := decodeEntry(doc.Ref.ID, doc.Data())
		if err != nil {
			s.logger.WarnContext(ctx, "skipping malformed leaderboard document", "id", doc.Ref.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping runs the cheapest possible query against the collection.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// decodeEntry accepts documents written by older clients, where numbers may
// have been stored as doubles.
func decodeEntry(id string, data map[string]any) (core.Entry, error) {
	name, ok := data["name"].(string)
	if !ok {
		return core.Entry{}, fmt.Errorf("name is %T", data["name"])
	}
	score, err := toInt(data["score"])
	if err != nil {
		return core.Entry{}, fmt.Errorf("score: %w", err)
	}
	e := core.Entry{ID: id, Name: name, Score: score}
	if d, ok := data["date"].(string); ok {
		e.Date = d
	}
	if ts, err := toInt(data["timestamp"]); err == nil {
		e.Timestamp = ts
	}
	return e, e.Validate()
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%v out of range", n)
		}
		return int64(math.Floor(n)), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

var _ leaderboard.Backend = (*Store)(nil)
