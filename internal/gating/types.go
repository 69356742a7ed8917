// Package gating implements the checkpoint state machine that gates linear
// video playback behind mandatory questions.
//
// A Session owns one Machine per active video view. The machine observes
// playback time, pauses the Playback Surface when an incomplete question is
// reached, rejects seeks past incomplete questions, and applies the answer
// outcome reported by the remote Evaluator (unblock, retry or rewind).
package gating

import "slices"

// QuestionKind enumerates the supported checkpoint question formats.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindFillInBlank    QuestionKind = "fill_in_blank"
	KindOneWord        QuestionKind = "one_word"
)

// Valid reports whether k is one of the known kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindFillInBlank, KindOneWord:
		return true
	}
	return false
}

// Video is the catalog view of a playable video. Duration is 0 while unknown.
type Video struct {
	ID          int64
	Title       string
	Description string
	Duration    float64
}

// Question is a checkpoint bound to a video timestamp. Correct-answer
// material never reaches this package; only the Evaluator sees it.
type Question struct {
	ID          int64
	VideoID     int64
	Timestamp   float64
	Kind        QuestionKind
	Text        string
	Options     []string
	Explanation string
}

// Progress is the session's view of the durable per-(user, video) record.
type Progress struct {
	UserID   string
	VideoID  int64
	Position float64

	completed []int64
	index     map[int64]struct{}
}

// NewProgress builds a Progress from a stored completion list. Duplicate ids
// are dropped, first occurrence wins.
func NewProgress(userID string, videoID int64, completed []int64, position float64) *Progress {
	p := &Progress{UserID: userID, VideoID: videoID, Position: clampTime(position)}
	for _, id := range completed {
		p.MarkCompleted(id)
	}
	return p
}

// IsCompleted reports whether questionID is in the completed set.
func (p *Progress) IsCompleted(questionID int64) bool {
	if p == nil || p.index == nil {
		return false
	}
	_, ok := p.index[questionID]
	return ok
}

// MarkCompleted appends questionID to the completed set. It returns false when
// the id was already present.
func (p *Progress) MarkCompleted(questionID int64) bool {
	if p.index == nil {
		p.index = make(map[int64]struct{})
	}
	if _, ok := p.index[questionID]; ok {
		return false
	}
	p.index[questionID] = struct{}{}
	p.completed = append(p.completed, questionID)
	return true
}

// Completed returns the completed ids in insertion order.
func (p *Progress) Completed() []int64 {
	if p == nil {
		return nil
	}
	return slices.Clone(p.completed)
}

// CompletedCount returns the size of the completed set.
func (p *Progress) CompletedCount() int {
	if p == nil {
		return 0
	}
	return len(p.completed)
}
