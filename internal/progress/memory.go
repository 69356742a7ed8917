package progress

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	userID  string
	videoID int64
}

// MemoryRepository is an in-process Repository with the same
// last-write-wins semantics as the Postgres one.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[memoryKey]Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[memoryKey]Record), now: time.Now}
}

func (r *MemoryRepository) Get(_ context.Context, userID string, videoID int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[memoryKey{userID, videoID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(rec), nil
}

func (r *MemoryRepository) AddCompletion(_ context.Context, userID string, videoID, questionID int64, totalQuestions int) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{userID, videoID}
	rec := r.load(k)
	rec.Completed, _ = completedAfter(rec.Completed, questionID)
	if totalQuestions > 0 && len(rec.Completed) >= totalQuestions {
		rec.IsCompleted = true
	}
	rec.UpdatedAt = r.now().UTC()
	r.records[k] = rec
	return clone(rec), nil
}

func (r *MemoryRepository) UpsertPosition(_ context.Context, userID string, videoID int64, position float64, clientTsMs int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{userID, videoID}
	rec := r.load(k)
	if rec.ClientTsMs <= clientTsMs {
		rec.Position = position
		rec.ClientTsMs = clientTsMs
		rec.UpdatedAt = r.now().UTC()
		r.records[k] = rec
	}
	return clone(rec), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for k, rec := range r.records {
		if k.userID == userID {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].VideoID > out[j].VideoID
	})
	return out, nil
}

func (r *MemoryRepository) load(k memoryKey) Record {
	if rec, ok := r.records[k]; ok {
		return rec
	}
	return Record{UserID: k.userID, VideoID: k.videoID}
}

func clone(rec Record) Record {
	rec.Completed = slices.Clone(rec.Completed)
	return rec
}
