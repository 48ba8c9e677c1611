package leaderboard

import (
	"testing"

	"cyberquest/core"
)

func entry(id, name string, score, ts int64) core.Entry {
	return core.Entry{ID: id, Name: name, Score: score, Timestamp: ts}
}

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Insert(entry("a", "ana", 10, 1))
	s.Insert(entry("b", "budi", 20, 2))
	s.Insert(entry("c", "citra", 15, 3))
	top := s.TopN(3)
	if len(top) != 3 || top[0].ID != "b" || top[1].ID != "c" || top[2].ID != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Insert(entry("a", "ana", 25, 1))
	top = s.TopN(1)
	if top[0].ID != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("replacing an id must not grow the list, len=%d", s.Len())
	}
}

func TestSkipListSameNameKeepsEveryEntry(t *testing.T) {
	s := NewSkipList()
	s.Insert(entry("1", "ana", 30, 1))
	s.Insert(entry("2", "ana", 30, 2))
	s.Insert(entry("3", "ana", 40, 3))
	top := s.TopN(10)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	if top[0].ID != "3" || top[1].ID != "1" || top[2].ID != "2" {
		t.Fatalf("ties should favour the older entry: %#v", top)
	}
}

func TestSkipListReplaceMovesEntry(t *testing.T) {
	s := NewSkipList()
	for i, sc := range []int64{5, 9, 1, 7} {
		id := string(rune('a' + i))
		s.Insert(entry(id, id, sc, int64(i)))
	}
	s.Insert(entry("b", "b", 0, 1))
	top := s.TopN(10)
	if len(top) != 4 || top[0].ID != "d" || top[3].ID != "b" {
		t.Fatalf("unexpected order after replace: %#v", top)
	}
	if got := s.TopN(0); got != nil {
		t.Fatalf("TopN(0) should be nil, got %#v", got)
	}
	if got := s.TopN(1 << 50); len(got) != 4 {
		t.Fatalf("huge n should return everything, got %d", len(got))
	}
}
