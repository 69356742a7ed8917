package attempts

import (
	"context"
	"sync"
)

type key struct {
	userID     string
	questionID int64
}

// MemoryStore keeps attempts in process. Development and tests only.
type MemoryStore struct {
	mu     sync.Mutex
	failed map[key]int
	log    []Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{failed: make(map[key]int)}
}

func (s *MemoryStore) Record(_ context.Context, a Attempt) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, a)
	k := key{a.UserID, a.QuestionID}
	if !a.Correct {
		s.failed[k]++
	}
	return s.failed[k], nil
}

func (s *MemoryStore) Reset(_ context.Context, userID string, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed, key{userID, questionID})
	return nil
}

// Log returns a copy of the audit log.
func (s *MemoryStore) Log() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.log...)
}
