// Package analytics derives progression KPIs from domain events: how many
// sessions start, how far players get through the level chain, how many
// stars they earn and how often results reach the leaderboard.
package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"cyberquest/core"
)

// Snapshot is a point-in-time copy of the funnel.
type Snapshot struct {
	At                time.Time                      `json:"at"`
	SessionsStarted   int64                          `json:"sessions_started"`
	ActiveByDay       map[string]int                 `json:"active_sessions_by_day"`
	Completions       map[core.LevelID]int64         `json:"completions"`
	PlayersCompleted  map[core.LevelID]int           `json:"players_completed"`
	Stars             map[core.LevelID]map[int]int64 `json:"stars"`
	PointsByCategory  map[core.Category]int64        `json:"points_by_category"`
	Resets            int64                          `json:"resets"`
	Submissions       int64                          `json:"submissions"`
	SubmittedScoreSum int64                          `json:"submitted_score_sum"`
}

// AverageSubmittedScore is zero when nothing was submitted.
func (s Snapshot) AverageSubmittedScore() float64 {
	if s.Submissions == 0 {
		return 0
	}
	return float64(s.SubmittedScoreSum) / float64(s.Submissions)
}

// Levels returns the level ids that saw at least one completion, ascending.
func (s Snapshot) Levels() []core.LevelID {
	out := make([]core.LevelID, 0, len(s.Completions))
	for id := range s.Completions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Funnel tracks progression across all sessions.
type Funnel struct {
	mu sync.RWMutex

	sessionsStarted int64
	activeByDay     map[string]map[core.SessionID]struct{}

	completions      map[core.LevelID]int64
	playersCompleted map[core.LevelID]map[core.SessionID]struct{}
	stars            map[core.LevelID]map[int]int64

	pointsByCategory map[core.Category]int64

	resets      int64
	submissions int64
	scoreSum    int64

	now func() time.Time
}

func NewFunnel() *Funnel {
	return &Funnel{
		activeByDay:      make(map[string]map[core.SessionID]struct{}),
		completions:      make(map[core.LevelID]int64),
		playersCompleted: make(map[core.LevelID]map[core.SessionID]struct{}),
		stars:            make(map[core.LevelID]map[int]int64),
		pointsByCategory: make(map[core.Category]int64),
		now:              time.Now,
	}
}

// OnEvent has the signature of an event bus handler.
func (f *Funnel) OnEvent(_ context.Context, e core.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.SessionID != "" {
		day := e.Time.UTC().Format("2006-01-02")
		if f.activeByDay[day] == nil {
			f.activeByDay[day] = make(map[core.SessionID]struct{})
		}
		f.activeByDay[day][e.SessionID] = struct{}{}
	}

	switch e.Type {
	case core.EventSessionStarted:
		f.sessionsStarted++
	case core.EventScoreAdded:
		if e.Delta > 0 {
			f.pointsByCategory[e.Category] += e.Delta
		}
	case core.EventLevelCompleted:
		f.completions[e.Level]++
		if f.playersCompleted[e.Level] == nil {
			f.playersCompleted[e.Level] = make(map[core.SessionID]struct{})
		}
		f.playersCompleted[e.Level][e.SessionID] = struct{}{}
		if f.stars[e.Level] == nil {
			f.stars[e.Level] = make(map[int]int64)
		}
		f.stars[e.Level][e.Stars]++
	case core.EventSessionReset:
		f.resets++
	case core.EventScoreSubmitted:
		f.submissions++
		if e.Entry != nil {
			f.scoreSum += e.Entry.Score
		}
	}
}

// DailyActiveSessions returns the number of sessions with any activity on day (YYYY-MM-DD).
func (f *Funnel) DailyActiveSessions(day string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.activeByDay[day])
}

// Snapshot copies the current counters.
func (f *Funnel) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Snapshot{
		At:                f.now().UTC(),
		SessionsStarted:   f.sessionsStarted,
		ActiveByDay:       make(map[string]int, len(f.activeByDay)),
		Completions:       make(map[core.LevelID]int64, len(f.completions)),
		PlayersCompleted:  make(map[core.LevelID]int, len(f.playersCompleted)),
		Stars:             make(map[core.LevelID]map[int]int64, len(f.stars)),
		PointsByCategory:  make(map[core.Category]int64, len(f.pointsByCategory)),
		Resets:            f.resets,
		Submissions:       f.submissions,
		SubmittedScoreSum: f.scoreSum,
	}
	for day, set := range f.activeByDay {
		s.ActiveByDay[day] = len(set)
	}
	for id, n := range f.completions {
		s.Completions[id] = n
	}
	for id, set := range f.playersCompleted {
		s.PlayersCompleted[id] = len(set)
	}
	for id, hist := range f.stars {
		cp := make(map[int]int64, len(hist))
		for k, v := range hist {
			cp[k] = v
		}
		s.Stars[id] = cp
	}
	for c, v := range f.pointsByCategory {
		s.PointsByCategory[c] = v
	}
	return s
}
