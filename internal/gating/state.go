package gating

import "math"

// Phase is the machine's top-level state tag.
type Phase int

const (
	PhaseIdle    Phase = iota // no video loaded
	PhasePlaying              // normal playback, unblocked
	PhaseBlocked              // a question is active, playback paused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlaying:
		return "playing"
	case PhaseBlocked:
		return "blocked"
	}
	return "unknown"
}

// RetriesUnknown marks an active question whose retry budget has not been
// reported by the evaluator yet.
const RetriesUnknown = -1

// ActiveQuestion is the payload of the Blocked state.
type ActiveQuestion struct {
	Question Question

	// TriggerTime is the playback time snapshotted when the question was
	// reached. Rewinds are computed from it.
	TriggerTime float64

	// Attempts counts incorrect submissions since the question became active.
	Attempts int

	// RetriesLeft is the last budget reported by the evaluator, or
	// RetriesUnknown before the first incorrect answer.
	RetriesLeft int
}

// Snapshot is the render-facing view of a session.
type Snapshot struct {
	Phase          Phase
	CurrentTime    float64
	Active         *ActiveQuestion
	CompletedCount int
	TotalQuestions int
	RetriesLeft    int
}

// clampTime maps NaN, infinities and negatives to a valid playback time.
func clampTime(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if math.IsInf(t, 1) {
		return math.MaxFloat64
	}
	return t
}
