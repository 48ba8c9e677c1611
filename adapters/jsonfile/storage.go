package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cyberquest/core"
	"cyberquest/leaderboard"
)

// Store persists the leaderboard to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	// raw records as found on disk; malformed ones are kept but never served
	records []json.RawMessage
}

type document struct {
	Entries []json.RawMessage `json:"entries"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, logger: slog.Default()}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

// WithLogger sets the logger used to report skipped records.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	s.records = doc.Entries
	return nil
}

func (s *Store) persist(records []json.RawMessage) error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(document{Entries: records}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Insert(ctx context.Context, e core.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.ID = uuid.NewString()
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(s.records[:len(s.records):len(s.records)], raw)
	if err := s.persist(next); err != nil {
		return "", fmt.Errorf("persist leaderboard: %w", err)
	}
	s.records = next
	return e.ID, nil
}

func (s *Store) Top(ctx context.Context, limit int) ([]core.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	records := s.records
	s.mu.Unlock()

	out := make([]core.Entry, 0, len(records))
	for i, raw := range records {
		var e core.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable leaderboard record", "index", i, "error", err)
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping checks that the directory holding the file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

var _ leaderboard.Backend = (*Store)(nil)
