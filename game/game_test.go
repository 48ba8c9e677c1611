package game

import (
	"context"
	"testing"

	mem "cyberquest/adapters/memory"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	backend := mem.New()
	svc := New(
		WithRealtime(hub),
		WithBackend(backend),
		WithDispatchMode(engine.DispatchSync),
	)
	defer svc.Close()

	// realtime bridge should receive events
	_, ch := hub.Subscribe(8)

	st, err := svc.StartSession(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, _, err := svc.AddScore(context.Background(), st.ID, core.CategoryProblemSolving, 5); err != nil {
		t.Fatalf("add score: %v", err)
	}
	if ev := <-ch; ev.Type != core.EventSessionStarted {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev := <-ch; ev.Type != core.EventScoreAdded || ev.SessionID != st.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := svc.SubmitSession(context.Background(), st.ID, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.Len() != 1 {
		t.Fatalf("expected the supplied backend to receive the entry")
	}
}

func TestNewWithoutOptions(t *testing.T) {
	svc := New()
	defer svc.Close()
	if got := len(svc.Catalog()); got != 4 {
		t.Fatalf("expected the built-in catalog, got %d levels", got)
	}
	if !svc.LeaderboardAvailable(context.Background()) {
		t.Fatal("in-memory leaderboard should be available")
	}
}

func TestWithCatalog(t *testing.T) {
	svc := New(WithCatalog([]core.LevelSpec{{ID: 1, Key: "only"}}), WithDispatchMode(engine.DispatchSync))
	defer svc.Close()
	st, err := svc.StartSession(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	unlocked, _, err := svc.CompleteLevel(context.Background(), st.ID, 1, 3)
	if err != nil || unlocked {
		t.Fatalf("single-level catalog: unlocked=%v err=%v", unlocked, err)
	}
}
