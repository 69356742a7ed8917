package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/checkpoint-player/internal/progress"
)

// Message is one delivery from the position stream.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
	// Term stops redelivery of a message that can never be applied.
	Term() error
}

// Source fetches batches of deliveries. An empty batch with a nil error means
// nothing arrived within wait.
type Source interface {
	Fetch(batch int, wait time.Duration) ([]Message, error)
}

type jetStreamSource struct {
	sub *nats.Subscription
}

// Subscribe binds the durable pull consumer of progress.SubjectPosition.
func Subscribe(js nats.JetStreamContext) (Source, error) {
	sub, err := js.PullSubscribe(progress.SubjectPosition, progress.ConsumerDurable)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s: %w", progress.SubjectPosition, err)
	}
	return &jetStreamSource{sub: sub}, nil
}

func (s *jetStreamSource) Fetch(batch int, wait time.Duration) ([]Message, error) {
	msgs, err := s.sub.Fetch(batch, nats.MaxWait(wait))
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, natsMessage{m})
	}
	return out, nil
}

type natsMessage struct {
	m *nats.Msg
}

func (n natsMessage) Data() []byte { return n.m.Data }
func (n natsMessage) Ack() error   { return n.m.Ack() }
func (n natsMessage) Nak() error   { return n.m.Nak() }
func (n natsMessage) Term() error  { return n.m.Term() }
