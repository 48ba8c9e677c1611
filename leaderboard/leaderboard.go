package leaderboard

import (
	"context"

	"cyberquest/core"
)

// Backend is a remote ranked-score store. Implementations live under adapters/.
type Backend interface {
	// Insert appends a new entry and returns the id the store assigned to it.
	Insert(ctx context.Context, e core.Entry) (string, error)
	// Top returns up to limit entries ordered by score descending. Records the
	// store cannot decode are skipped rather than failing the whole call.
	Top(ctx context.Context, limit int) ([]core.Entry, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// Board abstracts an ordered in-process collection of entries. Entries are
// append-only; inserting an existing id replaces it.
type Board interface {
	Insert(e core.Entry)
	TopN(n int) []core.Entry
	Len() int
}
