package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/checkpoint-player/internal/evalrpc"
)

const keyPrefix = "evaluator:replay:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(dsn string, ttl time.Duration) (*redisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &redisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (s *redisStore) Lookup(ctx context.Context, submissionID string) (evalrpc.SubmitResponse, bool, error) {
	b, err := s.client.Get(ctx, keyPrefix+submissionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (s *redisStore) Save(ctx context.Context, submissionID string, resp evalrpc.SubmitResponse) (evalrpc.SubmitResponse, error) {
	b, err := encode(resp)
	if err != nil {
		return resp, err
	}
	// SetNX keeps the first outcome when two retries race.
	set, err := s.client.SetNX(ctx, keyPrefix+submissionID, b, s.ttl).Result()
	if err != nil || set {
		return resp, err
	}
	stored, ok, err := s.Lookup(ctx, submissionID)
	if err != nil || !ok {
		return resp, err
	}
	return stored, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
