// Package sink connects gating sessions to durable progress and to the
// analytics stream.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/progress"
)

type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// PositionPublisher hands position writes to the progress worker through
// JetStream.
type PositionPublisher struct {
	js  jetStreamPublisher
	now func() time.Time
}

// NewPositionPublisher returns nil when js is nil, which disables async
// position writes.
func NewPositionPublisher(js nats.JetStreamContext) *PositionPublisher {
	if js == nil {
		return nil
	}
	return &PositionPublisher{js: js, now: time.Now}
}

func (p *PositionPublisher) Enabled() bool {
	return p != nil && p.js != nil
}

// Publish sends a PositionEvent stamped with the publisher clock and returns
// its event id.
func (p *PositionPublisher) Publish(userID string, videoID int64, position float64) (string, error) {
	now := p.now().UTC()
	ev := progress.PositionEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		VideoID:    videoID,
		Position:   position,
		ClientTsMs: now.UnixMilli(),
		CreatedAt:  now,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(progress.SubjectPosition, body); err != nil {
		return "", err
	}
	return ev.EventID, nil
}

// ProgressWriter is the write side of progress.Tracker.
type ProgressWriter interface {
	WriteCompletion(ctx context.Context, userID string, videoID, questionID int64) error
	WritePosition(ctx context.Context, userID string, videoID int64, position float64) error
}

// Progress is the gating.ProgressSink of the player. Completions are always
// written inline. Positions go through the publisher when it is enabled and
// fall back to an inline write when publishing fails.
type Progress struct {
	writer    ProgressWriter
	publisher *PositionPublisher
	log       *zap.Logger
}

var _ gating.ProgressSink = (*Progress)(nil)

func NewProgress(writer ProgressWriter, publisher *PositionPublisher, log *zap.Logger) *Progress {
	if log == nil {
		log = zap.NewNop()
	}
	return &Progress{writer: writer, publisher: publisher, log: log}
}

func (p *Progress) WriteCompletion(ctx context.Context, userID string, videoID, questionID int64) error {
	return p.writer.WriteCompletion(ctx, userID, videoID, questionID)
}

func (p *Progress) WritePosition(ctx context.Context, userID string, videoID int64, position float64) error {
	if p.publisher.Enabled() {
		_, err := p.publisher.Publish(userID, videoID, position)
		if err == nil {
			return nil
		}
		p.log.Warn("position publish failed, writing inline",
			zap.String("user_id", userID), zap.Int64("video_id", videoID), zap.Error(err))
	}
	return p.writer.WritePosition(ctx, userID, videoID, position)
}
