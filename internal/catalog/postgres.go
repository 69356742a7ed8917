package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the idempotent DDL for the catalog tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS videos (
	id            BIGSERIAL PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	video_url     TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration      DOUBLE PRECISION NOT NULL DEFAULT 0,
	transcript    TEXT NOT NULL DEFAULT '',
	is_published  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS questions (
	id             BIGSERIAL PRIMARY KEY,
	video_id       BIGINT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	ts             DOUBLE PRECISION NOT NULL CHECK (ts >= 0),
	kind           TEXT NOT NULL,
	question_text  TEXT NOT NULL,
	options        JSONB,
	correct_answer TEXT NOT NULL,
	explanation    TEXT NOT NULL DEFAULT '',
	retry_limit    INT NOT NULL DEFAULT 3,
	rewind_seconds DOUBLE PRECISION NOT NULL DEFAULT 30,
	is_final_quiz  BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS questions_video_ts_idx ON questions (video_id, ts, id)`,
}

// PostgresStore is the production Postgres-backed Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetVideo(ctx context.Context, id int64) (Video, error) {
	var v Video
	err := s.db.QueryRow(ctx, `
SELECT id, title, description, video_url, thumbnail_url, duration, transcript, is_published
FROM videos WHERE id=$1`, id).
		Scan(&v.ID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL, &v.Duration, &v.Transcript, &v.IsPublished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Video{}, ErrNotFound
		}
		return Video{}, fmt.Errorf("get video %d: %w", id, err)
	}
	return v, nil
}

const questionColumns = `id, video_id, ts, kind, question_text, options, correct_answer, explanation, retry_limit, rewind_seconds, is_final_quiz`

func (s *PostgresStore) ListQuestions(ctx context.Context, videoID int64) ([]Question, error) {
	rows, err := s.db.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE video_id=$1 ORDER BY ts ASC, id ASC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list questions for video %d: %w", videoID, err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions for video %d: %w", videoID, err)
	}
	return out, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (Question, error) {
	q, err := scanQuestion(s.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func scanQuestion(row pgx.Row) (Question, error) {
	var (
		q           Question
		kind        string
		optionsJSON []byte
	)
	if err := row.Scan(&q.ID, &q.VideoID, &q.Timestamp, &kind, &q.Text, &optionsJSON,
		&q.CorrectAnswer, &q.Explanation, &q.RetryLimit, &q.RewindSeconds, &q.IsFinalQuiz); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Question{}, err
		}
		return Question{}, fmt.Errorf("scan question: %w", err)
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Question{}, err
	}
	q.Kind = k
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
			return Question{}, fmt.Errorf("question %d options: %w", q.ID, err)
		}
	}
	return q, nil
}
