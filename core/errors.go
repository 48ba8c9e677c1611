package core

import (
	"errors"
	"fmt"
)

// Caller errors. All of them match ErrValidation under errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidName     = fmt.Errorf("%w: player name is empty", ErrValidation)
	ErrInvalidScore    = fmt.Errorf("%w: invalid score", ErrValidation)
	ErrInvalidStars    = fmt.Errorf("%w: stars must be between 0 and 3", ErrValidation)
	ErrUnknownCategory = fmt.Errorf("%w: unknown score category", ErrValidation)
)

// Remote store errors. All of them match ErrUnavailable under errors.Is.
var (
	ErrUnavailable = errors.New("leaderboard unavailable")
	ErrTimeout     = fmt.Errorf("%w: operation timed out", ErrUnavailable)
	ErrOffline     = fmt.Errorf("%w: no network connection", ErrUnavailable)
)

var (
	// ErrUnknownLevel is returned when a level id is not part of the catalog.
	ErrUnknownLevel = errors.New("unknown level")
	// ErrOverflow is returned when a score delta would overflow int64.
	ErrOverflow = errors.New("integer overflow")
)

// Unavailable wraps a backend failure so that it matches ErrUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
