// Package progress persists the per-(user, video) learning record: the
// completed checkpoint questions and the last playback position.
package progress

import (
	"context"
	"errors"
	"slices"
	"time"
)

var ErrNotFound = errors.New("progress: not found")

// Record is the durable progress of one user on one video.
type Record struct {
	UserID      string
	VideoID     int64
	Completed   []int64
	Position    float64
	IsCompleted bool
	ClientTsMs  int64
	UpdatedAt   time.Time
}

// Repository defines persistence operations for progress records.
type Repository interface {
	Get(ctx context.Context, userID string, videoID int64) (Record, error)
	// AddCompletion appends questionID to the completed set if absent and
	// recomputes IsCompleted against totalQuestions. It never touches the
	// position or its client timestamp.
	AddCompletion(ctx context.Context, userID string, videoID, questionID int64, totalQuestions int) (Record, error)
	// UpsertPosition stores position unless a newer client timestamp is
	// already recorded. Returns the current (possibly unchanged) record.
	UpsertPosition(ctx context.Context, userID string, videoID int64, position float64, clientTsMs int64) (Record, error)
	// ListByUser returns the user's records, most recently updated first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}

func completedAfter(completed []int64, questionID int64) ([]int64, bool) {
	if slices.Contains(completed, questionID) {
		return completed, false
	}
	return append(slices.Clone(completed), questionID), true
}
