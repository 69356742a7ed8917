// Package handler maps stream messages to PostHog captures.
package handler

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/platform/analytics"
	"github.com/example/checkpoint-player/internal/progress"
)

const gatingPrefix = "analytics.gating."

// Capturer is satisfied by *posthog.Client.
type Capturer interface {
	Capture(distinctID, event string, at time.Time, props map[string]any)
}

// Dispatcher routes messages to the matching capture.
type Dispatcher struct {
	ph  Capturer
	log *zap.Logger
}

func New(ph Capturer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{ph: ph, log: log}
}

// Dispatch handles one message. Unknown subjects and undecodable payloads are
// logged and skipped; the caller acks either way.
func (d *Dispatcher) Dispatch(subject string, data []byte) bool {
	switch {
	case strings.HasPrefix(subject, gatingPrefix):
		return d.handleGating(subject, data)
	case subject == progress.SubjectPosition:
		return d.handlePosition(subject, data)
	default:
		d.log.Debug("analytics: unhandled subject", zap.String("subject", subject))
		return false
	}
}

// handleGating forwards question_triggered, answer_evaluated, video_rewound
// and seek_rejected as "checkpoint_<name>".
func (d *Dispatcher) handleGating(subject string, data []byte) bool {
	var ev analytics.Event
	if !d.unmarshal(subject, data, &ev) {
		return false
	}
	name := ev.EventName
	if name == "" {
		name = strings.TrimPrefix(subject, gatingPrefix)
	}
	if ev.UserID == "" {
		d.log.Debug("analytics: gating event without user", zap.String("subject", subject))
		return false
	}
	props := make(map[string]any, len(ev.Properties)+1)
	for k, v := range ev.Properties {
		props[k] = v
	}
	props["event_id"] = ev.EventID
	d.ph.Capture(ev.UserID, "checkpoint_"+name, ev.OccurredAt, props)
	return true
}

func (d *Dispatcher) handlePosition(subject string, data []byte) bool {
	ev, err := progress.DecodePositionEvent(data)
	if err != nil {
		d.log.Warn("analytics: invalid position event", zap.String("subject", subject), zap.Error(err))
		return false
	}
	d.ph.Capture(ev.UserID, "playback_position", ev.CreatedAt, map[string]any{
		"video_id": ev.VideoID,
		"position": ev.Position,
		"event_id": ev.EventID,
	})
	return true
}

func (d *Dispatcher) unmarshal(subject string, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		d.log.Error("analytics: unmarshal message", zap.String("subject", subject), zap.Error(err))
		return false
	}
	return true
}
