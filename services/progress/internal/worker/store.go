package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/checkpoint-player/internal/progress"
)

// Event is a decoded delivery plus its raw payload for the audit table.
type Event struct {
	progress.PositionEvent
	Raw []byte
}

// Store applies a batch atomically. Event ids already recorded are skipped,
// so redeliveries are harmless. It returns how many events were applied.
type Store interface {
	ApplyBatch(ctx context.Context, batch []Event) (int, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) ApplyBatch(ctx context.Context, batch []Event) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied := 0
	for _, ev := range batch {
		now := s.now().UTC()
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		ct, err := tx.Exec(ctx,
			`INSERT INTO processed_events (event_id, subject, created_at, payload) VALUES ($1,$2,$3,$4) ON CONFLICT (event_id) DO NOTHING`,
			ev.EventID, progress.SubjectPosition, createdAt, ev.Raw)
		if err != nil {
			return 0, fmt.Errorf("record event %s: %w", ev.EventID, err)
		}
		if ct.RowsAffected() == 0 {
			continue
		}
		if _, err := progress.UpsertPosition(ctx, tx, ev.UserID, ev.VideoID, ev.Position, ev.ClientTsMs, now); err != nil {
			return 0, err
		}
		applied++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return applied, nil
}
