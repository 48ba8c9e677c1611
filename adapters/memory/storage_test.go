package memory

import (
	"context"
	"testing"

	"cyberquest/core"
)

func TestMemoryStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	id1, err := s.Insert(ctx, core.Entry{Name: "ana", Score: 5, Timestamp: 1})
	if err != nil || id1 == "" {
		t.Fatalf("got %q %v", id1, err)
	}
	id2, _ := s.Insert(ctx, core.Entry{ID: id1, Name: "ana", Score: 9, Timestamp: 2})
	if id2 == id1 {
		t.Fatal("insert must assign a new id")
	}
	top, err := s.Top(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].ID != id2 || top[1].ID != id1 {
		t.Fatalf("unexpected top: %#v", top)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Insert(ctx, core.Entry{Name: "x"}); err == nil {
		t.Fatal("expected context error")
	}
	if s.Len() != 0 {
		t.Fatal("cancelled insert must not store anything")
	}
}
