package gating

import "testing"

func none(int64) bool { return false }

func TestNewTimeline_SortsByTimestampThenID(t *testing.T) {
	tl := NewTimeline([]Question{
		{ID: 3, Timestamp: 60},
		{ID: 2, Timestamp: 30},
		{ID: 1, Timestamp: 30},
		{ID: 4, Timestamp: -5},
	})
	qs := tl.Questions()
	want := []int64{4, 1, 2, 3}
	for i, id := range want {
		if qs[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, qs[i].ID)
		}
	}
	if qs[0].Timestamp != 0 {
		t.Fatalf("expected negative timestamp clamped to 0, got %v", qs[0].Timestamp)
	}
}

func TestTimeline_ReachedInsideWindow(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 1, Timestamp: 30}})

	if _, ok := tl.Reached(27, 27.9, none); ok {
		t.Fatal("27.9 is outside the window and should not trigger")
	}
	q, ok := tl.Reached(27.9, 29.5, none)
	if !ok || q.ID != 1 {
		t.Fatalf("expected question 1 at 29.5, got %+v ok=%v", q, ok)
	}
}

func TestTimeline_ReachedOnForwardCrossing(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 1, Timestamp: 30}})

	q, ok := tl.Reached(20, 40, none)
	if !ok || q.ID != 1 {
		t.Fatalf("a jump across the window must still reach the question, got ok=%v", ok)
	}
	if _, ok := tl.Reached(40, 45, none); ok {
		t.Fatal("playback already past the question should not re-trigger without crossing")
	}
}

func TestTimeline_ReachedSkipsCompleted(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 1, Timestamp: 30}, {ID: 2, Timestamp: 31}})
	done := func(id int64) bool { return id == 1 }

	q, ok := tl.Reached(29, 30, done)
	if !ok || q.ID != 2 {
		t.Fatalf("expected question 2, got %+v ok=%v", q, ok)
	}
}

func TestTimeline_ReachedPrefersSmallerTimestamp(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 9, Timestamp: 31}, {ID: 8, Timestamp: 30}})

	q, ok := tl.Reached(29, 30.5, none)
	if !ok || q.ID != 8 {
		t.Fatalf("expected question 8 (smaller timestamp), got %+v", q)
	}
}

func TestTimeline_FirstBlocking(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 1, Timestamp: 30}, {ID: 2, Timestamp: 90}})

	if _, ok := tl.FirstBlocking(29.9, none); ok {
		t.Fatal("no question at or before 29.9")
	}
	q, ok := tl.FirstBlocking(30, none)
	if !ok || q.ID != 1 {
		t.Fatalf("expected question 1 at target 30, got %+v", q)
	}
	done := func(id int64) bool { return id == 1 }
	q, ok = tl.FirstBlocking(120, done)
	if !ok || q.ID != 2 {
		t.Fatalf("expected question 2 once 1 is completed, got %+v", q)
	}
}

func TestTimeline_NextAtOrAfter(t *testing.T) {
	tl := NewTimeline([]Question{{ID: 1, Timestamp: 30}, {ID: 2, Timestamp: 90}})

	q, ok := tl.NextAtOrAfter(30)
	if !ok || q.ID != 1 {
		t.Fatalf("expected question 1, got %+v", q)
	}
	q, ok = tl.NextAtOrAfter(31)
	if !ok || q.ID != 2 {
		t.Fatalf("expected question 2, got %+v", q)
	}
	if _, ok := tl.NextAtOrAfter(91); ok {
		t.Fatal("expected no question after 91")
	}
}

func TestTimeline_NilIsEmpty(t *testing.T) {
	var tl *Timeline
	if tl.Len() != 0 {
		t.Fatal("nil timeline should be empty")
	}
	if !tl.AllCompleted(none) {
		t.Fatal("nil timeline has nothing left to complete")
	}
}

func TestProgress_MarkCompletedIsIdempotent(t *testing.T) {
	p := NewProgress("u", 1, []int64{5, 5, 6}, 0)
	if p.CompletedCount() != 2 {
		t.Fatalf("expected duplicates dropped, got %v", p.Completed())
	}
	if p.MarkCompleted(5) {
		t.Fatal("re-marking a completed question should report false")
	}
	if p.CompletedCount() != 2 {
		t.Fatalf("expected 2 completed, got %d", p.CompletedCount())
	}
}

func TestRewindTarget_NeverNegative(t *testing.T) {
	cases := []struct {
		trigger, rewind, want float64
	}{
		{30, 10, 20},
		{5, 30, 0},
		{30, -4, 30},
		{-1, 10, 0},
	}
	for _, c := range cases {
		if got := RewindTarget(c.trigger, c.rewind); got != c.want {
			t.Fatalf("RewindTarget(%v, %v) = %v, want %v", c.trigger, c.rewind, got, c.want)
		}
	}
}
