package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"cyberquest/core"
	"cyberquest/progress"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Service composes the level catalog, live sessions and the leaderboard into
// the operations the game needs. Progress and leaderboard never talk to each
// other directly; Service is the only place that combines them.
type Service struct {
	levels   []core.LevelSpec
	sessions *Sessions
	board    Leaderboard
	bus      *EventBus
	logger   *slog.Logger
}

func NewService(levels []core.LevelSpec, sessions *Sessions, board Leaderboard, bus *EventBus, logger *slog.Logger) *Service {
	if len(levels) == 0 || sessions == nil || board == nil || bus == nil {
		panic("NewService requires a catalog, sessions, leaderboard, and bus")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{levels: levels, sessions: sessions, board: board, bus: bus, logger: logger}
}

// Catalog returns the level definitions sessions are built from.
func (s *Service) Catalog() []core.LevelSpec {
	return append([]core.LevelSpec(nil), s.levels...)
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) SubscribeAll(handler func(context.Context, core.Event)) func() {
	return s.bus.SubscribeAll(handler)
}

// SessionCount reports how many sessions are live.
func (s *Service) SessionCount() int { return s.sessions.Len() }

// StartSession creates a fresh session. Name and avatar are optional.
func (s *Service) StartSession(ctx context.Context, name, avatar string) (core.SessionState, error) {
	player := core.Player{Avatar: avatar}
	if name != "" {
		n, err := core.NormalizeName(name)
		if err != nil {
			return core.SessionState{}, err
		}
		player.Name = n
	}
	id := core.SessionID(uuid.NewString())
	store := progress.New(id, s.levels, progress.WithPublisher(s.bus), progress.WithPlayer(player))
	s.sessions.Put(store)
	s.logger.InfoContext(ctx, "session started", "session", id)
	s.bus.Publish(ctx, core.NewSessionStarted(id, store.Player()))
	return store.Snapshot(), nil
}

func (s *Service) store(id core.SessionID) (*progress.Store, error) {
	st, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st, nil
}

// Session returns a snapshot of the session. Reading never resets progress.
func (s *Service) Session(_ context.Context, id core.SessionID) (core.SessionState, error) {
	st, err := s.store(id)
	if err != nil {
		return core.SessionState{}, err
	}
	return st.Snapshot(), nil
}

func (s *Service) EndSession(ctx context.Context, id core.SessionID) error {
	if !s.sessions.Delete(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.logger.InfoContext(ctx, "session ended", "session", id)
	return nil
}

// SetPlayer updates the player profile of a session.
func (s *Service) SetPlayer(ctx context.Context, id core.SessionID, name, avatar string) (core.SessionState, error) {
	st, err := s.store(id)
	if err != nil {
		return core.SessionState{}, err
	}
	if err := st.SetPlayer(ctx, name, avatar); err != nil {
		return core.SessionState{}, err
	}
	return st.Snapshot(), nil
}

// AddScore applies delta to one category and returns the category total and
// the session total.
func (s *Service) AddScore(ctx context.Context, id core.SessionID, category core.Category, delta int64) (categoryTotal, total int64, err error) {
	st, err := s.store(id)
	if err != nil {
		return 0, 0, err
	}
	categoryTotal, err = st.AddScore(ctx, category, delta)
	if err != nil {
		return 0, 0, err
	}
	return categoryTotal, st.TotalScore(), nil
}

// CompleteLevel records a finished level and reports whether it unlocked the
// next one.
func (s *Service) CompleteLevel(ctx context.Context, id core.SessionID, level core.LevelID, stars int) (bool, core.SessionState, error) {
	st, err := s.store(id)
	if err != nil {
		return false, core.SessionState{}, err
	}
	unlocked, err := st.CompleteLevel(ctx, level, stars)
	if err != nil {
		return false, core.SessionState{}, err
	}
	return unlocked, st.Snapshot(), nil
}

func (s *Service) IsLevelUnlocked(_ context.Context, id core.SessionID, level core.LevelID) (bool, error) {
	st, err := s.store(id)
	if err != nil {
		return false, err
	}
	return st.IsLevelUnlocked(level), nil
}

// Level returns one level of a session; unknown ids fail with core.ErrUnknownLevel.
func (s *Service) Level(_ context.Context, id core.SessionID, level core.LevelID) (core.Level, error) {
	st, err := s.store(id)
	if err != nil {
		return core.Level{}, err
	}
	l, ok := st.Level(level)
	if !ok {
		return core.Level{}, fmt.Errorf("%w: %d", core.ErrUnknownLevel, level)
	}
	return l, nil
}

// ResetSession is the "play again" path.
func (s *Service) ResetSession(ctx context.Context, id core.SessionID) (core.SessionState, error) {
	st, err := s.store(id)
	if err != nil {
		return core.SessionState{}, err
	}
	st.Reset(ctx)
	return st.Snapshot(), nil
}

// SubmitSession saves the session total under the player name, or under
// name when it is non-empty.
func (s *Service) SubmitSession(ctx context.Context, id core.SessionID, name string) (core.Entry, error) {
	st, err := s.store(id)
	if err != nil {
		return core.Entry{}, err
	}
	if name == "" {
		name = st.Player().Name
	}
	entry, err := s.board.SaveScore(ctx, name, float64(st.TotalScore()))
	if err != nil {
		return core.Entry{}, err
	}
	s.bus.Publish(ctx, core.NewScoreSubmitted(id, entry))
	return entry, nil
}

// SaveScore submits a score that is not tied to a live session.
func (s *Service) SaveScore(ctx context.Context, name string, score float64) (core.Entry, error) {
	entry, err := s.board.SaveScore(ctx, name, score)
	if err != nil {
		return core.Entry{}, err
	}
	s.bus.Publish(ctx, core.NewScoreSubmitted("", entry))
	return entry, nil
}

// TopScores never returns a nil slice; see leaderboard.Client.TopScores.
func (s *Service) TopScores(ctx context.Context, limit int) ([]core.Entry, error) {
	return s.board.TopScores(ctx, limit)
}

func (s *Service) LeaderboardAvailable(ctx context.Context) bool {
	return s.board.IsAvailable(ctx)
}

// Close stops session expiry and drains the event bus.
func (s *Service) Close() {
	s.sessions.Close()
	s.bus.Close()
}
