// Package progress holds the score and level progression state of a single
// play session.
//
// A Store is created once per session and mutated in place by gameplay
// events. Only Reset returns it to the start state; reading a Store never
// changes it. Each method runs to completion under the store lock, so every
// operation is atomic from the caller's point of view.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cyberquest/core"
)

// Publisher receives domain events after a mutation has been applied.
type Publisher interface {
	Publish(ctx context.Context, ev core.Event)
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher forwards domain events to p.
func WithPublisher(p Publisher) Option { return func(s *Store) { s.pub = p } }

// WithPlayer sets the initial player profile.
func WithPlayer(p core.Player) Option { return func(s *Store) { s.player = p } }

// WithClock overrides time.Now for the Updated timestamp.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is the progression state of one session.
type Store struct {
	mu      sync.Mutex
	id      core.SessionID
	player  core.Player
	specs   []core.LevelSpec
	scores  map[core.Category]int64
	levels  []core.Level
	byID    map[core.LevelID]int
	updated time.Time
	pub     Publisher
	now     func() time.Time
}

// New builds a fresh session over a validated catalog (see catalog.Validate).
// Level 1 starts unlocked, every other level locked, every score at zero.
func New(id core.SessionID, levels []core.LevelSpec, opts ...Option) *Store {
	s := &Store{
		id:     id,
		player: core.Player{Avatar: core.DefaultAvatar},
		specs:  append([]core.LevelSpec(nil), levels...),
		byID:   make(map[core.LevelID]int, len(levels)),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.player.Avatar == "" {
		s.player.Avatar = core.DefaultAvatar
	}
	for i, l := range s.specs {
		s.byID[l.ID] = i
	}
	s.resetLocked()
	return s
}

// ID returns the session identifier.
func (s *Store) ID() core.SessionID { return s.id }

func (s *Store) resetLocked() {
	s.scores = make(map[core.Category]int64, len(core.Categories()))
	for _, c := range core.Categories() {
		s.scores[c] = 0
	}
	s.levels = make([]core.Level, len(s.specs))
	for i, spec := range s.specs {
		s.levels[i] = core.NewLevel(spec)
	}
	s.updated = s.now().UTC()
}

// AddScore applies delta to category and returns the new category total.
// Negative deltas are allowed. Unknown categories leave the state untouched.
func (s *Store) AddScore(ctx context.Context, category core.Category, delta int64) (int64, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", core.ErrUnknownCategory, category)
	}
	s.mu.Lock()
	next, err := core.AddSafe(s.scores[category], delta)
	if err == nil {
		// the session total must stay representable too
		_, err = core.AddSafe(s.totalLocked(), delta)
	}
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("add %d to %s: %w", delta, category, err)
	}
	s.scores[category] = next
	s.updated = s.now().UTC()
	s.mu.Unlock()

	s.publish(ctx, core.NewScoreAdded(s.id, category, delta, next))
	return next, nil
}

// Score returns the current total of one category.
func (s *Store) Score(category core.Category) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[category]
}

// TotalScore sums every category.
func (s *Store) TotalScore() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

func (s *Store) totalLocked() int64 {
	var total int64
	for _, v := range s.scores {
		total += v
	}
	return total
}

// IsLevelUnlocked reports whether the level can be played. Unknown ids are locked.
func (s *Store) IsLevelUnlocked(id core.LevelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	return ok && s.levels[i].Unlocked
}

// Level returns the state of one level.
func (s *Store) Level(id core.LevelID) (core.Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return core.Level{}, false
	}
	return s.levels[i], true
}

// Levels returns the levels in unlock-chain order.
func (s *Store) Levels() []core.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Level(nil), s.levels...)
}

// CompleteLevel marks id completed, keeps the best star count and unlocks
// id+1 when it exists. It reports whether this call unlocked the next level.
// The next level is always derived from id itself, so completion can never
// skip ahead in the chain. Completing again is harmless.
func (s *Store) CompleteLevel(ctx context.Context, id core.LevelID, stars int) (bool, error) {
	if stars < 0 || stars > core.MaxStars {
		return false, fmt.Errorf("%w: got %d", core.ErrInvalidStars, stars)
	}
	s.mu.Lock()
	i, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", core.ErrUnknownLevel, id)
	}
	lvl := &s.levels[i]
	lvl.Completed = true
	if stars > lvl.Stars {
		lvl.Stars = stars
	}
	best := lvl.Stars

	unlocked := false
	next := id + 1
	if j, ok := s.byID[next]; ok && !s.levels[j].Unlocked {
		s.levels[j].Unlocked = true
		unlocked = true
	}
	s.updated = s.now().UTC()
	s.mu.Unlock()

	s.publish(ctx, core.NewLevelCompleted(s.id, id, best))
	if unlocked {
		s.publish(ctx, core.NewLevelUnlocked(s.id, next))
	}
	return unlocked, nil
}

// SetPlayer updates the player profile. The name is normalised the same way
// as leaderboard names; an empty avatar keeps the current one.
func (s *Store) SetPlayer(ctx context.Context, name, avatar string) error {
	n, err := core.NormalizeName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Name = n
	if avatar != "" {
		s.player.Avatar = avatar
	}
	s.updated = s.now().UTC()
	return nil
}

// Player returns the current player profile.
func (s *Store) Player() core.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Reset returns every score and level to its start state. The player
// profile survives a reset.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.publish(ctx, core.NewSessionReset(s.id))
}

// Snapshot returns a deep copy of the session state.
func (s *Store) Snapshot() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.totalLocked()
	st := core.SessionState{
		ID:      s.id,
		Player:  s.player,
		Scores:  s.scores,
		Levels:  s.levels,
		Total:   total,
		Rank:    core.RankFor(total),
		Updated: s.updated,
	}
	return st.Clone()
}

func (s *Store) publish(ctx context.Context, ev core.Event) {
	if s.pub != nil {
		s.pub.Publish(ctx, ev)
	}
}
