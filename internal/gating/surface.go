package gating

import (
	"slices"
	"sync"
)

// Surface is the media transport the machine drives. Time is observed through
// events (Advance, Seek); the surface only receives commands.
type Surface interface {
	Play()
	Pause()
	Seek(to float64)
	// Duration returns the media duration in seconds, 0 while unknown.
	Duration() float64
}

// DirectiveKind names a command issued to a remote surface.
type DirectiveKind string

const (
	DirectivePlay  DirectiveKind = "play"
	DirectivePause DirectiveKind = "pause"
	DirectiveSeek  DirectiveKind = "seek"
)

// Directive is a recorded surface command.
type Directive struct {
	Kind DirectiveKind `json:"kind"`
	To   *float64      `json:"to,omitempty"`
}

// DirectiveSurface records commands for a surface that lives on the other
// side of a network boundary (a browser player). Callers drain the buffer and
// ship the directives with their response.
type DirectiveSurface struct {
	mu       sync.Mutex
	duration float64
	pending  []Directive
}

// NewDirectiveSurface returns a surface for media of the given duration.
func NewDirectiveSurface(duration float64) *DirectiveSurface {
	return &DirectiveSurface{duration: clampTime(duration)}
}

func (s *DirectiveSurface) Play()  { s.push(Directive{Kind: DirectivePlay}) }
func (s *DirectiveSurface) Pause() { s.push(Directive{Kind: DirectivePause}) }

func (s *DirectiveSurface) Seek(to float64) {
	to = clampTime(to)
	s.push(Directive{Kind: DirectiveSeek, To: &to})
}

func (s *DirectiveSurface) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// SetDuration records the media duration once metadata has loaded.
func (s *DirectiveSurface) SetDuration(d float64) {
	s.mu.Lock()
	s.duration = clampTime(d)
	s.mu.Unlock()
}

// Drain returns and clears the recorded directives.
func (s *DirectiveSurface) Drain() []Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.pending)
	s.pending = s.pending[:0]
	return out
}

// Reset discards recorded directives.
func (s *DirectiveSurface) Reset() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *DirectiveSurface) push(d Directive) {
	s.mu.Lock()
	s.pending = append(s.pending, d)
	s.mu.Unlock()
}
