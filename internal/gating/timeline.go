package gating

import (
	"cmp"
	"slices"
)

// TriggerTolerance is the half-width, in seconds, of the window around a
// question timestamp within which forward playback counts as having reached
// it. Players emit time updates a few times per second; a window narrower than
// the update interval would let playback step over a question.
const TriggerTolerance = 2.0

// Timeline is the ordered, immutable set of checkpoint questions of a video.
// Questions are ordered by timestamp, ties broken by id.
type Timeline struct {
	questions []Question
}

// NewTimeline copies and sorts questions. The result is safe to share.
func NewTimeline(questions []Question) *Timeline {
	qs := slices.Clone(questions)
	for i := range qs {
		qs[i].Options = slices.Clone(qs[i].Options)
		qs[i].Timestamp = clampTime(qs[i].Timestamp)
	}
	slices.SortStableFunc(qs, func(a, b Question) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return &Timeline{questions: qs}
}

// Len returns the number of questions.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.questions)
}

// Questions returns a copy of the ordered questions.
func (t *Timeline) Questions() []Question {
	if t == nil {
		return nil
	}
	return slices.Clone(t.questions)
}

// Lookup finds a question by id.
func (t *Timeline) Lookup(id int64) (Question, bool) {
	if t == nil {
		return Question{}, false
	}
	for _, q := range t.questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Reached returns the first incomplete question that playback moving from
// prev to now has reached: either now lies inside the question's trigger
// window, or the move crossed the timestamp forward in one step. The smallest
// timestamp wins when several qualify.
func (t *Timeline) Reached(prev, now float64, completed func(int64) bool) (Question, bool) {
	if t == nil {
		return Question{}, false
	}
	for _, q := range t.questions {
		if q.Timestamp-now >= TriggerTolerance {
			// Sorted: every later question is further ahead.
			break
		}
		if completed(q.ID) {
			continue
		}
		inWindow := abs(now-q.Timestamp) < TriggerTolerance
		crossed := prev < q.Timestamp && now >= q.Timestamp
		if inWindow || crossed {
			return q, true
		}
	}
	return Question{}, false
}

// NextAtOrAfter returns the first question with timestamp >= at.
func (t *Timeline) NextAtOrAfter(at float64) (Question, bool) {
	if t == nil {
		return Question{}, false
	}
	i, _ := slices.BinarySearchFunc(t.questions, at, func(q Question, at float64) int {
		return cmp.Compare(q.Timestamp, at)
	})
	if i >= len(t.questions) {
		return Question{}, false
	}
	return t.questions[i], true
}

// FirstBlocking returns the earliest incomplete question with timestamp <=
// target, i.e. the first question that is not satisfied at target.
func (t *Timeline) FirstBlocking(target float64, completed func(int64) bool) (Question, bool) {
	if t == nil {
		return Question{}, false
	}
	for _, q := range t.questions {
		if q.Timestamp > target {
			break
		}
		if !completed(q.ID) {
			return q, true
		}
	}
	return Question{}, false
}

// AllCompleted reports whether every question is in the completed set.
func (t *Timeline) AllCompleted(completed func(int64) bool) bool {
	if t == nil {
		return true
	}
	for _, q := range t.questions {
		if !completed(q.ID) {
			return false
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
