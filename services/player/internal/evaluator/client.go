// Package evaluator adapts the evaluator gRPC contract to gating.Evaluator
// and guards it with a circuit breaker.
package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/checkpoint-player/internal/evalrpc"
	"github.com/example/checkpoint-player/internal/gating"
)

// RPC is the subset of *evalrpc.Client the adapter calls.
type RPC interface {
	SubmitAnswer(ctx context.Context, req evalrpc.SubmitRequest, opts ...grpc.CallOption) (evalrpc.SubmitResponse, error)
}

type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// NewBreaker trips after FailureThreshold consecutive infrastructure
// failures. Caller errors such as an unknown question do not count.
func NewBreaker(name string, s BreakerSettings, log *zap.Logger) *gobreaker.CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsInfrastructureError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// IsInfrastructureError reports whether err says the evaluator could not
// answer, as opposed to answering with a caller error.
func IsInfrastructureError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition,
		codes.PermissionDenied, codes.Unauthenticated, codes.Canceled:
		return false
	}
	return true
}

type Client struct {
	RPC RPC
	CB  *gobreaker.CircuitBreaker
	Log *zap.Logger
}

type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func New(rpc RPC, opts ...Option) *Client {
	c := &Client{RPC: rpc, Log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ gating.Evaluator = (*Client)(nil)

func (c *Client) SubmitAnswer(ctx context.Context, sub gating.Submission) (gating.Outcome, error) {
	req := evalrpc.SubmitRequest{
		SubmissionID: sub.SubmissionID,
		UserID:       sub.UserID,
		VideoID:      sub.VideoID,
		QuestionID:   sub.QuestionID,
		Answer:       sub.Answer,
		ObservedTime: sub.ObservedTime,
	}
	resp, err := c.call(ctx, req)
	if err != nil {
		return gating.Outcome{}, err
	}
	return gating.Outcome{
		Correct:       resp.Correct,
		RetriesLeft:   resp.RetriesLeft,
		RewindSeconds: resp.RewindSeconds,
		Explanation:   resp.Explanation,
		Summary:       resp.Summary,
	}, nil
}

func (c *Client) call(ctx context.Context, req evalrpc.SubmitRequest) (evalrpc.SubmitResponse, error) {
	if c.CB == nil {
		return c.RPC.SubmitAnswer(ctx, req)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return c.RPC.SubmitAnswer(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.Log.Debug("evaluator call short-circuited", zap.String("submission_id", req.SubmissionID), zap.Error(err))
		}
		return evalrpc.SubmitResponse{}, err
	}
	return result.(evalrpc.SubmitResponse), nil
}
