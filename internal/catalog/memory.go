package catalog

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	videos    map[int64]Video
	questions map[int64]Question
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[int64]Video), questions: make(map[int64]Question)}
}

func (s *MemoryStore) PutVideo(v Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
}

func (s *MemoryStore) PutQuestion(q Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Options = slices.Clone(q.Options)
	s.questions[q.ID] = q
}

func (s *MemoryStore) GetVideo(_ context.Context, id int64) (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, videoID int64) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Question
	for _, q := range s.questions {
		if q.VideoID == videoID {
			q.Options = slices.Clone(q.Options)
			out = append(out, q)
		}
	}
	slices.SortFunc(out, func(a, b Question) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) GetQuestion(_ context.Context, id int64) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	q.Options = slices.Clone(q.Options)
	return q, nil
}
