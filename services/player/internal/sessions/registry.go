// Package sessions keeps the live gating sessions of the player, keyed by an
// opaque session id and owned by the caller identity that opened them.
package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/gating"
)

// ErrNotFound covers unknown, expired and foreign sessions alike.
var ErrNotFound = errors.New("sessions: not found")

// Entry is one live video view.
type Entry struct {
	ID       string
	UserID   string
	Session  *gating.Session
	OpenedAt time.Time
}

type item struct {
	entry     *Entry
	expiresAt time.Time
}

// Info is the operator view of an entry.
type Info struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	VideoID   int64     `json:"video_id"`
	Phase     string    `json:"phase"`
	OpenedAt  time.Time `json:"opened_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registry is an in-memory session table with idle expiry. Expired sessions
// are unloaded, never resumed.
type Registry struct {
	mu    sync.RWMutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

func NewRegistry(ttl time.Duration, log *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		items: make(map[string]item),
		ttl:   ttl,
		now:   time.Now,
		newID: uuid.NewString,
		log:   log,
	}
}

// Add registers s under a fresh id.
func (r *Registry) Add(userID string, s *gating.Session) *Entry {
	now := r.now()
	e := &Entry{ID: r.newID(), UserID: userID, Session: s, OpenedAt: now}
	r.mu.Lock()
	r.items[e.ID] = item{entry: e, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()
	return e
}

// Get returns the entry owned by userID and extends its idle deadline.
func (r *Registry) Get(id, userID string) (*Entry, error) {
	now := r.now()
	r.mu.Lock()
	it, ok := r.items[id]
	if !ok || it.entry.UserID != userID {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if now.After(it.expiresAt) || it.entry.Session.Closed() {
		delete(r.items, id)
		r.mu.Unlock()
		it.entry.Session.OnUnload()
		return nil, ErrNotFound
	}
	it.expiresAt = now.Add(r.ttl)
	r.items[id] = it
	r.mu.Unlock()
	return it.entry, nil
}

// Remove unloads and forgets the entry owned by userID.
func (r *Registry) Remove(id, userID string) error {
	r.mu.Lock()
	it, ok := r.items[id]
	if !ok || it.entry.UserID != userID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.items, id)
	r.mu.Unlock()
	it.entry.Session.OnUnload()
	return nil
}

// Sweep unloads every idle entry and returns how many were evicted.
func (r *Registry) Sweep() int {
	now := r.now()
	var evicted []*Entry
	r.mu.Lock()
	for id, it := range r.items {
		if now.After(it.expiresAt) || it.entry.Session.Closed() {
			delete(r.items, id)
			evicted = append(evicted, it.entry)
		}
	}
	r.mu.Unlock()
	for _, e := range evicted {
		e.Session.OnUnload()
		r.log.Debug("session evicted", zap.String("session_id", e.ID), zap.String("user_id", e.UserID))
	}
	return len(evicted)
}

// Close unloads every entry.
func (r *Registry) Close() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]item)
	r.mu.Unlock()
	for _, it := range items {
		it.entry.Session.OnUnload()
	}
}

// Run sweeps on every interval until ctx is done, then closes the registry.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.log.Info("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// List returns every live entry, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, Info{
			ID:        it.entry.ID,
			UserID:    it.entry.UserID,
			VideoID:   it.entry.Session.Video().ID,
			Phase:     it.entry.Session.Snapshot().Phase.String(),
			OpenedAt:  it.entry.OpenedAt,
			ExpiresAt: it.expiresAt,
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
