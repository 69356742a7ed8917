// Package catalog owns videos and their checkpoint questions.
//
// The full Question carries the correct answer and grading policy and is
// only read by the evaluator. Reader projects it to the answer-free
// gating.Question for playback sessions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/checkpoint-player/internal/gating"
)

// ErrNotFound is returned for unknown or unpublished videos and unknown questions.
var ErrNotFound = errors.New("catalog: not found")

const (
	DefaultRetryLimit    = 3
	DefaultRewindSeconds = 30.0
)

type Video struct {
	ID           int64
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
	Transcript   string
	IsPublished  bool
}

type Question struct {
	ID            int64
	VideoID       int64
	Timestamp     float64
	Kind          gating.QuestionKind
	Text          string
	Options       []string
	CorrectAnswer string
	Explanation   string
	RetryLimit    int
	RewindSeconds float64
	IsFinalQuiz   bool
}

// Policy returns the retry limit and rewind distance with defaults applied.
func (q Question) Policy() (retryLimit int, rewindSeconds float64) {
	retryLimit, rewindSeconds = q.RetryLimit, q.RewindSeconds
	if retryLimit <= 0 {
		retryLimit = DefaultRetryLimit
	}
	if rewindSeconds <= 0 {
		rewindSeconds = DefaultRewindSeconds
	}
	return retryLimit, rewindSeconds
}

// Public strips the answer material.
func (q Question) Public() gating.Question {
	return gating.Question{
		ID:        q.ID,
		VideoID:   q.VideoID,
		Timestamp: q.Timestamp,
		Kind:      q.Kind,
		Text:      q.Text,
		Options:   append([]string(nil), q.Options...),
	}
}

func (v Video) Public() gating.Video {
	return gating.Video{ID: v.ID, Title: v.Title, Description: v.Description, Duration: v.Duration}
}

// ParseKind accepts the canonical kind names and the short legacy aliases
// ("mcq", "fill_in") still present in older rows.
func ParseKind(s string) (gating.QuestionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcq", string(gating.KindMultipleChoice):
		return gating.KindMultipleChoice, nil
	case "fill_in", string(gating.KindFillInBlank):
		return gating.KindFillInBlank, nil
	case string(gating.KindOneWord):
		return gating.KindOneWord, nil
	}
	return "", fmt.Errorf("catalog: unknown question kind %q", s)
}

// Store is the persistence contract for the catalog.
type Store interface {
	GetVideo(ctx context.Context, id int64) (Video, error)
	ListQuestions(ctx context.Context, videoID int64) ([]Question, error)
	GetQuestion(ctx context.Context, id int64) (Question, error)
}

// Reader adapts a Store to gating.Catalog for learner sessions.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

func (r *Reader) LoadVideo(ctx context.Context, videoID int64) (gating.Video, error) {
	v, err := r.store.GetVideo(ctx, videoID)
	if err != nil {
		return gating.Video{}, err
	}
	if !v.IsPublished {
		return gating.Video{}, ErrNotFound
	}
	return v.Public(), nil
}

func (r *Reader) LoadQuestions(ctx context.Context, videoID int64) ([]gating.Question, error) {
	qs, err := r.store.ListQuestions(ctx, videoID)
	if err != nil {
		return nil, err
	}
	out := make([]gating.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Public())
	}
	return out, nil
}

// CountQuestions returns the number of questions attached to videoID.
func (r *Reader) CountQuestions(ctx context.Context, videoID int64) (int, error) {
	qs, err := r.store.ListQuestions(ctx, videoID)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}
