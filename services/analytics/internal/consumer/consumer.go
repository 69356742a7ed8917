// Package consumer manages the JetStream pull consumer of the analytics forwarder.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/platform/analytics"
	"github.com/example/checkpoint-player/internal/progress"
)

const analyticsConsumer = "analytics_processor"

// Dispatcher is satisfied by *handler.Dispatcher.
type Dispatcher interface {
	Dispatch(subject string, data []byte) bool
}

// Consumer wraps a JetStream pull subscription and dispatches messages.
type Consumer struct {
	sub        *nats.Subscription
	dispatcher Dispatcher
	batchSize  int
	wait       time.Duration
	log        *zap.Logger
}

// New ensures the ANALYTICS stream (re-sourcing position events) and binds
// the durable consumer.
func New(js nats.JetStreamContext, d Dispatcher, batchSize int, wait time.Duration, log *zap.Logger) (*Consumer, error) {
	if err := ensureStream(js, log); err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe(">", analyticsConsumer, nats.BindStream(analytics.StreamName))
	if err != nil {
		return nil, err
	}
	return &Consumer{sub: sub, dispatcher: d, batchSize: batchSize, wait: wait, log: log}, nil
}

// Run processes messages until ctx is cancelled. Every message is acked;
// analytics are best-effort and never redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Error("analytics consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.dispatcher.Dispatch(msg.Subject, msg.Data)
			if err := msg.Ack(); err != nil {
				c.log.Warn("analytics consumer: ack", zap.Error(err))
			}
		}
	}
}

// streamConfig makes ANALYTICS the single read point: its own analytics.>
// subjects plus the position write-behind stream.
func streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      analytics.StreamName,
		Subjects:  []string{analytics.SubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Sources: []*nats.StreamSource{
			{Name: progress.StreamName, FilterSubject: progress.SubjectPosition},
		},
	}
}

// ensureStream creates ANALYTICS, or updates it when the player created it
// first without sources.
func ensureStream(js nats.JetStreamContext, log *zap.Logger) error {
	cfg := streamConfig()
	_, err := js.AddStream(cfg)
	if err == nil {
		log.Info("analytics: stream created", zap.String("stream", cfg.Name))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		log.Warn("analytics: stream update failed", zap.Error(err))
	}
	return nil
}
