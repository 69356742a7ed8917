package replay

import (
	"context"
	"sync"
	"time"

	"github.com/example/checkpoint-player/internal/evalrpc"
)

type memoryEntry struct {
	resp    evalrpc.SubmitResponse
	expires time.Time
}

// memoryStore is a development-only in-memory replay store.
// WARNING: not suitable for production; state is lost on restart and is not
// shared between instances.
type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]memoryEntry
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, seen: make(map[string]memoryEntry)}
}

func (s *memoryStore) Lookup(_ context.Context, submissionID string) (evalrpc.SubmitResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.seen[submissionID]
	if !ok {
		return evalrpc.SubmitResponse{}, false, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.seen, submissionID)
		return evalrpc.SubmitResponse{}, false, nil
	}
	return e.resp, true, nil
}

func (s *memoryStore) Save(ctx context.Context, submissionID string, resp evalrpc.SubmitResponse) (evalrpc.SubmitResponse, error) {
	if stored, ok, _ := s.Lookup(ctx, submissionID); ok {
		return stored, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.seen[submissionID]; ok {
		return e.resp, nil
	}
	s.seen[submissionID] = memoryEntry{resp: resp, expires: s.now().Add(s.ttl)}
	return resp, nil
}
