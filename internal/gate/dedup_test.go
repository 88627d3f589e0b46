package gate

import (
	"fmt"
	"testing"
)

func TestDedupSet_MarksAndDetects(t *testing.T) {
	s := newDedupSet(10)

	if s.CheckAndMark("a") {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !s.CheckAndMark("a") {
		t.Fatal("second sighting must be a duplicate")
	}
}

func TestDedupSet_EmptyTokenNeverTracked(t *testing.T) {
	s := newDedupSet(10)

	if s.CheckAndMark("") || s.CheckAndMark("") {
		t.Fatal("empty tokens must never register as duplicates")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestDedupSet_EvictsOldestBeyondCapacity(t *testing.T) {
	s := newDedupSet(3)

	for i := 0; i < 4; i++ {
		s.CheckAndMark(fmt.Sprintf("tok-%d", i))
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	// tok-0 was evicted, so it registers as new again.
	if s.CheckAndMark("tok-0") {
		t.Fatal("evicted token should no longer be a duplicate")
	}
	// tok-3 is still tracked.
	if !s.CheckAndMark("tok-3") {
		t.Fatal("recent token should still be tracked")
	}
}

func TestDedupSet_DefaultCapacity(t *testing.T) {
	s := newDedupSet(0)
	if s.capacity != 1000 {
		t.Fatalf("capacity = %d, want 1000", s.capacity)
	}
}
