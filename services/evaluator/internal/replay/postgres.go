package replay

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/checkpoint-player/internal/evalrpc"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS submission_replays (
	submission_id TEXT PRIMARY KEY,
	response      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func newPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *postgresStore {
	return &postgresStore{pool: pool, ttl: ttl}
}

func (s *postgresStore) Lookup(ctx context.Context, submissionID string) (evalrpc.SubmitResponse, bool, error) {
	var b []byte
	err := s.pool.QueryRow(ctx,
		`SELECT response FROM submission_replays WHERE submission_id=$1 AND created_at > $2`,
		submissionID, time.Now().Add(-s.ttl)).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return evalrpc.SubmitResponse{}, false, nil
		}
		return evalrpc.SubmitResponse{}, false, err
	}
	resp, err := decode(b)
	if err != nil {
		return evalrpc.SubmitResponse{}, false, err
	}
	return resp, true, nil
}

// Save uses INSERT ... ON CONFLICT so the first outcome wins.
func (s *postgresStore) Save(ctx context.Context, submissionID string, resp evalrpc.SubmitResponse) (evalrpc.SubmitResponse, error) {
	b, err := encode(resp)
	if err != nil {
		return resp, err
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO submission_replays (submission_id, response, created_at)
VALUES ($1, $2, now())
ON CONFLICT (submission_id) DO NOTHING`, submissionID, b)
	if err != nil {
		return resp, err
	}
	// RowsAffected == 0 means another outcome was stored first.
	if tag.RowsAffected() > 0 {
		return resp, nil
	}
	stored, ok, err := s.Lookup(ctx, submissionID)
	if err != nil || !ok {
		return resp, err
	}
	return stored, nil
}
