package sink

import (
	"context"

	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/platform/analytics"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
)

// EventPublisher is satisfied by *analytics.Publisher.
type EventPublisher interface {
	Publish(subject, eventName, userID string, props map[string]any)
}

// Recorder forwards gating events to the analytics stream. Events raised while
// handling a request carry its request_id.
type Recorder struct {
	pub EventPublisher
}

var _ gating.EventRecorder = (*Recorder)(nil)

func NewRecorder(pub EventPublisher) *Recorder {
	return &Recorder{pub: pub}
}

func (r *Recorder) Record(ctx context.Context, ev gating.Event) {
	if r == nil || r.pub == nil {
		return
	}
	props := map[string]any{
		"video_id": ev.VideoID,
		"position": ev.Position,
	}
	if ev.QuestionID != 0 {
		props["question_id"] = ev.QuestionID
	}
	if rid := httpserver.RequestIDFromContext(ctx); rid != "" {
		props["request_id"] = rid
	}
	switch ev.Kind {
	case gating.EventAnswerEvaluated:
		props["correct"] = ev.Correct
		if !ev.Correct {
			props["retries_left"] = ev.RetriesLeft
		}
	case gating.EventSeekRejected:
		props["reason"] = string(ev.Reason)
	}
	name := string(ev.Kind)
	r.pub.Publish(analytics.GatingSubject(name), name, ev.UserID, props)
}
