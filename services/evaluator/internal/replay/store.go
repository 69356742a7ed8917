// Package replay remembers the outcome of each graded submission so a
// transport retry of the same submission id returns the original outcome
// instead of counting a second attempt.
//
// Primary backend: Redis with TTL (env REDIS_URL).
// Fallback: Postgres INSERT ... ON CONFLICT on the shared pool.
// If neither is available, an in-memory store is used (development only).
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/checkpoint-player/internal/evalrpc"
)

// Store caches submission outcomes.
type Store interface {
	// Lookup returns the stored outcome for submissionID, if any.
	Lookup(ctx context.Context, submissionID string) (evalrpc.SubmitResponse, bool, error)
	// Save stores resp unless an outcome already exists for submissionID, and
	// returns the outcome that is stored after the call.
	Save(ctx context.Context, submissionID string, resp evalrpc.SubmitResponse) (evalrpc.SubmitResponse, error)
}

// NewStore creates the best available replay store:
// Redis > Postgres > in-memory (dev fallback).
// When isProd is true, in-memory fallback is not allowed.
func NewStore(redisURL string, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, error) {
	if redisURL != "" {
		rs, err := newRedisStore(redisURL, ttl)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	if pool != nil {
		return newPostgresStore(pool, ttl), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or a database pool for submission replay; in-memory store is not allowed")
	}
	return newMemoryStore(ttl), nil
}

type record struct {
	Correct       bool    `json:"correct"`
	RetriesLeft   int     `json:"retries_left"`
	RewindSeconds float64 `json:"rewind_seconds"`
	Explanation   string  `json:"explanation,omitempty"`
	Summary       string  `json:"summary,omitempty"`
}

func encode(resp evalrpc.SubmitResponse) ([]byte, error) {
	return json.Marshal(record(resp))
}

func decode(data []byte) (evalrpc.SubmitResponse, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return evalrpc.SubmitResponse{}, err
	}
	return evalrpc.SubmitResponse(r), nil
}
