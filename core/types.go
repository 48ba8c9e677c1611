package core

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// SessionID uniquely identifies a play session.
type SessionID string

// Category is one of the fixed score namespaces tracked per session.
type Category string

const (
	CategoryDigitalLiteracy  Category = "digitalLiteracy"
	CategoryCreativeThinking Category = "creativeThinking"
	CategoryProblemSolving   Category = "problemSolving"
)

// Categories returns the fixed category set in display order.
func Categories() []Category {
	return []Category{CategoryDigitalLiteracy, CategoryCreativeThinking, CategoryProblemSolving}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDigitalLiteracy, CategoryCreativeThinking, CategoryProblemSolving:
		return true
	}
	return false
}

// LevelID is the 1-based position of a level in the unlock chain.
type LevelID int

// MaxStars is the best rating a level can award.
const MaxStars = 3

// LevelSpec is the static catalog description of a level.
type LevelSpec struct {
	ID    LevelID `json:"id" yaml:"id"`
	Key   string  `json:"key" yaml:"key"`
	Title string  `json:"title" yaml:"title"`
}

// Level is a catalog level together with its progression state.
type Level struct {
	ID        LevelID `json:"id"`
	Key       string  `json:"key"`
	Title     string  `json:"title"`
	Unlocked  bool    `json:"unlocked"`
	Completed bool    `json:"completed"`
	Stars     int     `json:"stars"`
}

// NewLevel returns the start-of-session state for spec.
func NewLevel(spec LevelSpec) Level {
	return Level{ID: spec.ID, Key: spec.Key, Title: spec.Title, Unlocked: spec.ID == 1}
}

// DefaultAvatar is assigned to players who never picked one.
const DefaultAvatar = "hero_male"

// Player is the profile attached to a session.
type Player struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// SessionState is an immutable snapshot of a session.
type SessionState struct {
	ID      SessionID          `json:"id"`
	Player  Player             `json:"player"`
	Scores  map[Category]int64 `json:"scores"`
	Levels  []Level            `json:"levels"`
	Total   int64              `json:"total"`
	Rank    Rank               `json:"rank"`
	Updated time.Time          `json:"updated"`
}

// Clone returns a deep copy of the snapshot.
func (s SessionState) Clone() SessionState {
	cp := s
	cp.Scores = make(map[Category]int64, len(s.Scores))
	for k, v := range s.Scores {
		cp.Scores[k] = v
	}
	cp.Levels = append([]Level(nil), s.Levels...)
	return cp
}

// Entry is one persisted leaderboard record. Entries are append-only.
type Entry struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Score     int64  `json:"score"`
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
}

// NewEntry stamps a validated name and score with the creation time.
func NewEntry(name string, score int64, now time.Time) Entry {
	now = now.UTC()
	return Entry{
		Name:      name,
		Score:     score,
		Date:      now.Format(time.RFC3339Nano),
		Timestamp: now.UnixMilli(),
	}
}

// Validate reports whether a stored entry is well formed.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: entry %q", ErrInvalidName, e.ID)
	}
	if e.Score < 0 {
		return fmt.Errorf("%w: entry %q has score %d", ErrInvalidScore, e.ID, e.Score)
	}
	return nil
}

// MaxNameLength caps player names, counted in characters.
const MaxNameLength = 10

// NormalizeName trims a player-supplied name and truncates it to MaxNameLength.
func NormalizeName(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(s) > MaxNameLength {
		s = string([]rune(s)[:MaxNameLength])
	}
	return s, nil
}

// NormalizeScore floors a submitted score, rejecting negative and non-finite values.
func NormalizeScore(score float64) (int64, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: not a finite number", ErrInvalidScore)
	}
	if score < 0 {
		return 0, fmt.Errorf("%w: %v is negative", ErrInvalidScore, score)
	}
	if score >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is out of range", ErrInvalidScore, score)
	}
	return int64(math.Floor(score)), nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	return base + delta, nil
}
