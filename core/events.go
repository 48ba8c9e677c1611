package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventScoreAdded     EventType = "score_added"
	EventLevelCompleted EventType = "level_completed"
	EventLevelUnlocked  EventType = "level_unlocked"
	EventSessionReset   EventType = "session_reset"
	EventScoreSubmitted EventType = "score_submitted"
)

// Event represents an immutable domain event.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	SessionID SessionID      `json:"session_id,omitempty"`
	Category  Category       `json:"category,omitempty"`
	Delta     int64          `json:"delta,omitempty"`
	Total     int64          `json:"total,omitempty"`
	Level     LevelID        `json:"level,omitempty"`
	Stars     int            `json:"stars,omitempty"`
	Entry     *Entry         `json:"entry,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewSessionStarted(session SessionID, player Player) Event {
	return Event{Type: EventSessionStarted, Time: time.Now().UTC(), SessionID: session,
		Metadata: map[string]any{"name": player.Name, "avatar": player.Avatar}}
}

func NewScoreAdded(session SessionID, category Category, delta, total int64) Event {
	return Event{Type: EventScoreAdded, Time: time.Now().UTC(), SessionID: session, Category: category, Delta: delta, Total: total}
}

func NewLevelCompleted(session SessionID, level LevelID, stars int) Event {
	return Event{Type: EventLevelCompleted, Time: time.Now().UTC(), SessionID: session, Level: level, Stars: stars}
}

func NewLevelUnlocked(session SessionID, level LevelID) Event {
	return Event{Type: EventLevelUnlocked, Time: time.Now().UTC(), SessionID: session, Level: level}
}

func NewSessionReset(session SessionID) Event {
	return Event{Type: EventSessionReset, Time: time.Now().UTC(), SessionID: session}
}

func NewScoreSubmitted(session SessionID, entry Entry) Event {
	e := entry
	return Event{Type: EventScoreSubmitted, Time: time.Now().UTC(), SessionID: session, Total: entry.Score, Entry: &e}
}
