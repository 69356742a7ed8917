// Package worker drains the position write-behind stream into Postgres.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/progress"
)

type Options struct {
	BatchSize     int
	BatchInterval time.Duration
	// RetryDelay is the pause after a failed fetch.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.BatchInterval <= 0 {
		o.BatchInterval = 2 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

type Consumer struct {
	src   Source
	store Store
	log   *zap.Logger
	opts  Options
}

func New(src Source, store Store, log *zap.Logger, opts Options) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{src: src, store: store, log: log, opts: opts.withDefaults()}
}

// Run fetches and applies batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("position consumer started",
		zap.Int("batch_size", c.opts.BatchSize), zap.Duration("batch_interval", c.opts.BatchInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.src.Fetch(c.opts.BatchSize, c.opts.BatchInterval)
		if err != nil {
			c.log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.opts.RetryDelay):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		c.processBatch(ctx, msgs)
	}
}

// processBatch terminates undecodable deliveries, applies the rest in one
// store call, then acks them all or naks them all.
func (c *Consumer) processBatch(ctx context.Context, msgs []Message) int {
	batch := make([]Event, 0, len(msgs))
	valid := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		ev, err := progress.DecodePositionEvent(m.Data())
		if err != nil {
			c.log.Warn("dropping invalid position event", zap.Error(err))
			if err := m.Term(); err != nil {
				c.log.Warn("term failed", zap.Error(err))
			}
			continue
		}
		batch = append(batch, Event{PositionEvent: ev, Raw: m.Data()})
		valid = append(valid, m)
	}
	if len(batch) == 0 {
		return 0
	}

	applied, err := c.store.ApplyBatch(ctx, batch)
	if err != nil {
		c.log.Error("apply batch failed", zap.Int("size", len(batch)), zap.Error(err))
		for _, m := range valid {
			if err := m.Nak(); err != nil {
				c.log.Warn("nak failed", zap.Error(err))
			}
		}
		return 0
	}
	for _, m := range valid {
		if err := m.Ack(); err != nil {
			c.log.Warn("ack failed", zap.Error(err))
		}
	}
	c.log.Debug("batch applied", zap.Int("received", len(msgs)), zap.Int("applied", applied))
	return applied
}
