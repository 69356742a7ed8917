package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/checkpoint-player/internal/gating"
)

// QuestionCounter reports how many questions a video has, so completions can
// flip IsCompleted.
type QuestionCounter interface {
	CountQuestions(ctx context.Context, videoID int64) (int, error)
}

// Tracker adapts a Repository to gating.ProgressSource and gating.ProgressSink.
type Tracker struct {
	repo      Repository
	questions QuestionCounter
	now       func() time.Time
}

func NewTracker(repo Repository, questions QuestionCounter) *Tracker {
	return &Tracker{repo: repo, questions: questions, now: time.Now}
}

// LoadProgress returns an empty Progress for a user who never opened the video.
func (t *Tracker) LoadProgress(ctx context.Context, userID string, videoID int64) (*gating.Progress, error) {
	rec, err := t.repo.Get(ctx, userID, videoID)
	if errors.Is(err, ErrNotFound) {
		return gating.NewProgress(userID, videoID, nil, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return gating.NewProgress(userID, videoID, rec.Completed, rec.Position), nil
}

func (t *Tracker) WriteCompletion(ctx context.Context, userID string, videoID, questionID int64) error {
	total := 0
	if t.questions != nil {
		n, err := t.questions.CountQuestions(ctx, videoID)
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		total = n
	}
	_, err := t.repo.AddCompletion(ctx, userID, videoID, questionID, total)
	return err
}

// WritePosition stamps the write with the tracker clock, so the latest call
// wins across sessions.
func (t *Tracker) WritePosition(ctx context.Context, userID string, videoID int64, position float64) error {
	_, err := t.repo.UpsertPosition(ctx, userID, videoID, position, t.now().UnixMilli())
	return err
}
