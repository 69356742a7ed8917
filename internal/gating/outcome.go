package gating

import "math"

// Outcome is the evaluator's verdict for one submission.
type Outcome struct {
	Correct bool

	// RetriesLeft is meaningful only when Correct is false. Zero means the
	// budget is exhausted and the rewind transition applies.
	RetriesLeft int

	// RewindSeconds is applied only on exhaustion.
	RewindSeconds float64

	// Explanation and Summary are passed through to the caller untouched.
	Explanation string
	Summary     string
}

// ResolutionKind tells the caller which transition an outcome produced.
type ResolutionKind string

const (
	ResolvedCorrect ResolutionKind = "correct"
	ResolvedRetry   ResolutionKind = "retry"
	ResolvedRewind  ResolutionKind = "rewound"
)

// Resolution is the result of applying an Outcome in the Blocked state.
type Resolution struct {
	Kind       ResolutionKind
	QuestionID int64

	// RetriesLeft is set for ResolvedRetry.
	RetriesLeft int

	// Position is the playback time after the transition: the trigger time
	// on a correct answer, the rewind target on exhaustion.
	Position float64

	// NewlyCompleted is false when a correct answer replayed an already
	// completed question.
	NewlyCompleted bool
}

// normalize clamps evaluator-supplied numbers to their valid ranges.
func (o Outcome) normalize() Outcome {
	if o.RetriesLeft < 0 {
		o.RetriesLeft = 0
	}
	if math.IsNaN(o.RewindSeconds) || o.RewindSeconds < 0 {
		o.RewindSeconds = 0
	}
	return o
}

// RewindTarget returns max(0, triggerTime - rewindSeconds).
func RewindTarget(triggerTime, rewindSeconds float64) float64 {
	if math.IsNaN(rewindSeconds) || rewindSeconds < 0 {
		rewindSeconds = 0
	}
	return math.Max(0, clampTime(triggerTime)-rewindSeconds)
}
