package engine

import (
	"context"

	"cyberquest/core"
)

// Leaderboard is the remote score gateway. leaderboard.Client implements it.
type Leaderboard interface {
	SaveScore(ctx context.Context, name string, score float64) (core.Entry, error)
	TopScores(ctx context.Context, limit int) ([]core.Entry, error)
	IsAvailable(ctx context.Context) bool
}
