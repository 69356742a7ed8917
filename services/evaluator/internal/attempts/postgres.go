package attempts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS answer_attempts (
	id            BIGSERIAL PRIMARY KEY,
	submission_id TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	question_id   BIGINT NOT NULL,
	answer_digest BYTEA NOT NULL,
	correct       BOOLEAN NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS answer_attempts_user_question_idx ON answer_attempts (user_id, question_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS question_failures (
	user_id     TEXT NOT NULL,
	question_id BIGINT NOT NULL,
	failed      INT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, question_id)
)`,
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, a Attempt) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("record attempt: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO answer_attempts (submission_id, user_id, question_id, answer_digest, correct, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		a.SubmissionID, a.UserID, a.QuestionID, a.Digest, a.Correct, a.At.UTC()); err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}

	var failed int
	if a.Correct {
		err = tx.QueryRow(ctx,
			`SELECT failed FROM question_failures WHERE user_id=$1 AND question_id=$2`,
			a.UserID, a.QuestionID).Scan(&failed)
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
		}
	} else {
		err = tx.QueryRow(ctx, `
INSERT INTO question_failures AS f (user_id, question_id, failed)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, question_id) DO UPDATE SET failed = f.failed + 1
RETURNING failed`, a.UserID, a.QuestionID).Scan(&failed)
	}
	if err != nil {
		return 0, fmt.Errorf("record attempt: counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("record attempt: commit: %w", err)
	}
	return failed, nil
}

func (s *PostgresStore) Reset(ctx context.Context, userID string, questionID int64) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM question_failures WHERE user_id=$1 AND question_id=$2`, userID, questionID); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}
