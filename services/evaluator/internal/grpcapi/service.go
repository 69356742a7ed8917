// Package grpcapi implements the evaluator's gRPC surface: it grades an
// answer, applies the retry budget and decides when the player must rewind.
package grpcapi

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/evalrpc"
	"github.com/example/checkpoint-player/internal/progress"
	"github.com/example/checkpoint-player/services/evaluator/internal/attempts"
	"github.com/example/checkpoint-player/services/evaluator/internal/grading"
	"github.com/example/checkpoint-player/services/evaluator/internal/replay"
)

const alreadyCompleted = "Already completed"

// CompletionReader reads the durable progress record.
type CompletionReader interface {
	Get(ctx context.Context, userID string, videoID int64) (progress.Record, error)
}

type EvaluatorService struct {
	Catalog    catalog.Store
	Progress   CompletionReader
	Attempts   attempts.Store
	Replay     replay.Store
	Grader     grading.Grader
	Summarizer grading.Summarizer
	Digester   attempts.Digester
	Log        *zap.Logger
	Now        func() time.Time

	stripes [lockStripes]sync.Mutex
}

const lockStripes = 64

var _ evalrpc.EvaluatorServer = (*EvaluatorService)(nil)

func (s *EvaluatorService) SubmitAnswer(ctx context.Context, req evalrpc.SubmitRequest) (evalrpc.SubmitResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Answer = strings.TrimSpace(req.Answer)
	violations := map[string]string{}
	if req.UserID == "" {
		violations["user_id"] = "required"
	}
	if req.QuestionID <= 0 {
		violations["question_id"] = "must be positive"
	}
	if req.Answer == "" {
		violations["answer"] = "required"
	}
	if len(violations) > 0 {
		return evalrpc.SubmitResponse{}, errInvalidArgument(evalrpc.ReasonInvalidAnswer, "invalid submission", violations)
	}

	unlock := s.lock(req.UserID, req.QuestionID)
	defer unlock()

	if req.SubmissionID != "" && s.Replay != nil {
		if resp, ok, err := s.Replay.Lookup(ctx, req.SubmissionID); err != nil {
			s.log().Warn("replay lookup failed", zap.String("submission_id", req.SubmissionID), zap.Error(err))
		} else if ok {
			return resp, nil
		}
	}

	q, err := s.Catalog.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return evalrpc.SubmitResponse{}, errWithReason(codes.NotFound, evalrpc.ReasonQuestionNotFound, "question not found")
		}
		s.log().Error("load question", zap.Int64("question_id", req.QuestionID), zap.Error(err))
		return evalrpc.SubmitResponse{}, errWithReason(codes.Unavailable, "CATALOG_UNAVAILABLE", "question lookup failed")
	}
	if req.VideoID != 0 && q.VideoID != req.VideoID {
		return evalrpc.SubmitResponse{}, errWithReason(codes.NotFound, evalrpc.ReasonQuestionNotFound, "question does not belong to video")
	}

	done, err := s.isCompleted(ctx, req.UserID, q)
	if err != nil {
		s.log().Error("load progress", zap.String("user_id", req.UserID), zap.Error(err))
		return evalrpc.SubmitResponse{}, errWithReason(codes.Unavailable, "PROGRESS_UNAVAILABLE", "progress lookup failed")
	}
	if done {
		return s.remember(ctx, req.SubmissionID, evalrpc.SubmitResponse{Correct: true, Explanation: alreadyCompleted}), nil
	}

	verdict, err := s.Grader.Grade(ctx, q, req.Answer)
	if err != nil {
		s.log().Error("grade answer", zap.Int64("question_id", q.ID), zap.Error(err))
		return evalrpc.SubmitResponse{}, errWithReason(codes.Unavailable, evalrpc.ReasonGraderFailed, "grading failed")
	}

	failed, err := s.Attempts.Record(ctx, attempts.Attempt{
		SubmissionID: req.SubmissionID,
		UserID:       req.UserID,
		QuestionID:   q.ID,
		Digest:       s.Digester.Digest(grading.Normalize(req.Answer)),
		Correct:      verdict.Correct,
		At:           s.now(),
	})
	if err != nil {
		s.log().Error("record attempt", zap.Int64("question_id", q.ID), zap.Error(err))
		return evalrpc.SubmitResponse{}, errWithReason(codes.Unavailable, "ATTEMPTS_UNAVAILABLE", "attempt bookkeeping failed")
	}

	limit, rewind := q.Policy()
	retriesLeft := max(0, limit-failed)
	resp := evalrpc.SubmitResponse{Correct: verdict.Correct, RetriesLeft: retriesLeft, Explanation: verdict.Explanation}

	switch {
	case verdict.Correct:
		s.reset(ctx, req.UserID, q.ID)
	case retriesLeft > 0:
		if verdict.Hint != "" {
			resp.Explanation = strings.TrimSpace(resp.Explanation + " " + verdict.Hint)
		}
	default:
		resp.RewindSeconds = rewind
		resp.Summary = s.summary(ctx, q)
		// The question re-triggers after the rewind with a fresh budget.
		s.reset(ctx, req.UserID, q.ID)
	}

	s.log().Info("answer graded",
		zap.String("user_id", req.UserID),
		zap.Int64("question_id", q.ID),
		zap.Bool("correct", resp.Correct),
		zap.Int("retries_left", resp.RetriesLeft))
	return s.remember(ctx, req.SubmissionID, resp), nil
}

func (s *EvaluatorService) isCompleted(ctx context.Context, userID string, q catalog.Question) (bool, error) {
	if s.Progress == nil {
		return false, nil
	}
	rec, err := s.Progress.Get(ctx, userID, q.VideoID)
	if errors.Is(err, progress.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return slices.Contains(rec.Completed, q.ID), nil
}

func (s *EvaluatorService) summary(ctx context.Context, q catalog.Question) string {
	if s.Summarizer == nil {
		return ""
	}
	v, err := s.Catalog.GetVideo(ctx, q.VideoID)
	if err != nil {
		s.log().Warn("load video for summary", zap.Int64("video_id", q.VideoID), zap.Error(err))
	}
	text, err := s.Summarizer.Summarize(ctx, v, q)
	if err != nil {
		s.log().Warn("summary failed", zap.Int64("question_id", q.ID), zap.Error(err))
		return ""
	}
	return text
}

func (s *EvaluatorService) reset(ctx context.Context, userID string, questionID int64) {
	if err := s.Attempts.Reset(ctx, userID, questionID); err != nil {
		s.log().Warn("reset attempts", zap.Int64("question_id", questionID), zap.Error(err))
	}
}

// remember stores resp for replay and returns whatever outcome is stored
// for the submission.
func (s *EvaluatorService) remember(ctx context.Context, submissionID string, resp evalrpc.SubmitResponse) evalrpc.SubmitResponse {
	if submissionID == "" || s.Replay == nil {
		return resp
	}
	stored, err := s.Replay.Save(ctx, submissionID, resp)
	if err != nil {
		s.log().Warn("replay save failed", zap.String("submission_id", submissionID), zap.Error(err))
		return resp
	}
	return stored
}

// lock serializes submissions for one (user, question) inside this process.
// Unrelated pairs may share a stripe.
func (s *EvaluatorService) lock(userID string, questionID int64) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte(strconv.FormatInt(questionID, 10)))
	mu := &s.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *EvaluatorService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *EvaluatorService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}
