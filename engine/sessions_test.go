package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquest/catalog"
	"cyberquest/core"
	"cyberquest/progress"
)

func newStore(id string) *progress.Store {
	return progress.New(core.SessionID(id), catalog.Default())
}

func TestSessionsPutGetDelete(t *testing.T) {
	s := NewSessions(DefaultSessionsConfig(), nil)
	defer s.Close()

	st := newStore("a")
	s.Put(st)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Same(t, st, got)
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	_, ok = s.Get("a")
	assert.False(t, ok)
}

func TestSessionsCapacityEvictsLeastRecent(t *testing.T) {
	s := NewSessions(SessionsConfig{IdleTTL: time.Hour, Capacity: 2}, nil)
	defer s.Close()

	s.Put(newStore("a"))
	s.Put(newStore("b"))
	_, _ = s.Get("a")
	s.Put(newStore("c"))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok)
}

func TestSessionsExpireWhenIdle(t *testing.T) {
	s := NewSessions(SessionsConfig{IdleTTL: 20 * time.Millisecond}, nil)
	defer s.Close()

	s.Put(newStore("a"))
	// Get refreshes the idle deadline, so poll Len instead.
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestSessionsCloseIsIdempotent(t *testing.T) {
	s := NewSessions(DefaultSessionsConfig(), nil)
	s.Close()
	s.Close()
}
