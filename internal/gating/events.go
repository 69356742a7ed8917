package gating

import "context"

// EventKind names a gating event.
type EventKind string

const (
	EventQuestionTriggered EventKind = "question_triggered"
	EventAnswerEvaluated   EventKind = "answer_evaluated"
	EventVideoRewound      EventKind = "video_rewound"
	EventSeekRejected      EventKind = "seek_rejected"
)

// Event is emitted for every gating transition worth observing. Recorders
// must not block; the session calls them while holding its lock.
type Event struct {
	Kind        EventKind
	UserID      string
	VideoID     int64
	QuestionID  int64
	Position    float64
	Correct     bool
	RetriesLeft int
	Reason      SeekRejection
}

// EventRecorder receives gating events.
type EventRecorder interface {
	Record(ctx context.Context, ev Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
