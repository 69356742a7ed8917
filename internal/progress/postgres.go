package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the idempotent DDL for progress tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS user_video_progress (
	user_id             TEXT NOT NULL,
	video_id            BIGINT NOT NULL,
	completed_questions BIGINT[] NOT NULL DEFAULT '{}',
	position_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_completed        BOOLEAN NOT NULL DEFAULT FALSE,
	client_ts_ms        BIGINT NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, video_id)
)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
	event_id   TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	payload    JSONB
)`,
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is the production Postgres-backed implementation.
type PostgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

const recordColumns = `completed_questions, position_seconds, is_completed, client_ts_ms, updated_at`

func scanRecord(row pgx.Row, userID string, videoID int64) (Record, error) {
	out := Record{UserID: userID, VideoID: videoID}
	err := row.Scan(&out.Completed, &out.Position, &out.IsCompleted, &out.ClientTsMs, &out.UpdatedAt)
	return out, err
}

func (r *PostgresRepository) Get(ctx context.Context, userID string, videoID int64) (Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM user_video_progress WHERE user_id=$1 AND video_id=$2`,
		userID, videoID), userID, videoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) AddCompletion(ctx context.Context, userID string, videoID, questionID int64, totalQuestions int) (Record, error) {
	q := `
INSERT INTO user_video_progress AS p (user_id, video_id, completed_questions, is_completed, updated_at)
VALUES ($1, $2, ARRAY[$3::bigint], $4::int > 0 AND $4::int <= 1, $5)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  completed_questions = CASE WHEN $3::bigint = ANY(p.completed_questions)
                             THEN p.completed_questions
                             ELSE array_append(p.completed_questions, $3::bigint) END,
  is_completed        = p.is_completed OR ($4::int > 0 AND
                          cardinality(p.completed_questions)
                          + CASE WHEN $3::bigint = ANY(p.completed_questions) THEN 0 ELSE 1 END >= $4::int),
  updated_at          = EXCLUDED.updated_at
RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRow(ctx, q, userID, videoID, questionID, totalQuestions, r.now().UTC()), userID, videoID)
	if err != nil {
		return Record{}, fmt.Errorf("add completion: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) UpsertPosition(ctx context.Context, userID string, videoID int64, position float64, clientTsMs int64) (Record, error) {
	return UpsertPosition(ctx, r.db, userID, videoID, position, clientTsMs, r.now().UTC())
}

// UpsertPosition runs the last-write-wins position upsert on q, which may be
// a transaction owned by the caller.
func UpsertPosition(ctx context.Context, q Querier, userID string, videoID int64, position float64, clientTsMs int64, now time.Time) (Record, error) {
	stmt := `
INSERT INTO user_video_progress AS p (user_id, video_id, position_seconds, client_ts_ms, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  position_seconds = EXCLUDED.position_seconds,
  client_ts_ms     = EXCLUDED.client_ts_ms,
  updated_at       = EXCLUDED.updated_at
WHERE p.client_ts_ms <= EXCLUDED.client_ts_ms
RETURNING ` + recordColumns

	rec, err := scanRecord(q.QueryRow(ctx, stmt, userID, videoID, position, clientTsMs, now), userID, videoID)
	if err != nil {
		// WHERE clause blocked the update; fetch current state instead.
		if errors.Is(err, pgx.ErrNoRows) {
			rec, err = scanRecord(q.QueryRow(ctx,
				`SELECT `+recordColumns+` FROM user_video_progress WHERE user_id=$1 AND video_id=$2`,
				userID, videoID), userID, videoID)
			if err == nil {
				return rec, nil
			}
		}
		return Record{}, fmt.Errorf("upsert position: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
SELECT video_id, `+recordColumns+`
FROM user_video_progress WHERE user_id=$1
ORDER BY updated_at DESC, video_id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{UserID: userID}
		if err := rows.Scan(&rec.VideoID, &rec.Completed, &rec.Position, &rec.IsCompleted, &rec.ClientTsMs, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
