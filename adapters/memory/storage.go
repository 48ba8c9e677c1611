package memory

import (
	"context"

	"github.com/google/uuid"

	"cyberquest/core"
	"cyberquest/leaderboard"
)

// Store is a concurrent in-memory leaderboard backend.
type Store struct {
	board leaderboard.Board
}

func New() *Store { return &Store{board: leaderboard.NewSkipList()} }

// Insert stores e under a fresh id. Any id already on e is ignored.
func (s *Store) Insert(ctx context.Context, e core.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.ID = uuid.NewString()
	s.board.Insert(e)
	return e.ID, nil
}

func (s *Store) Top(ctx context.Context, limit int) ([]core.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.board.TopN(limit), nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Len reports how many entries have been stored.
func (s *Store) Len() int { return s.board.Len() }

var _ leaderboard.Backend = (*Store)(nil)
