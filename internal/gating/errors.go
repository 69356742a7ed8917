package gating

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyLoaded      = errors.New("gating: video already loaded")
	ErrNotBlocked         = errors.New("gating: no active question")
	ErrSessionClosed      = errors.New("gating: session closed")
	ErrSubmissionInFlight = errors.New("gating: answer submission already in flight")
	ErrEmptyAnswer        = errors.New("gating: empty answer")
)

// LoadError reports a collaborator failure while starting a session. No
// session exists when it is returned.
type LoadError struct {
	Op  string // "video", "questions" or "progress"
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("gating: load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EvaluatorError reports a failed evaluator call. The machine stays Blocked
// and the caller may resubmit.
type EvaluatorError struct {
	QuestionID int64
	Err        error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("gating: evaluate question %d: %v", e.QuestionID, e.Err)
}

func (e *EvaluatorError) Unwrap() error { return e.Err }

// Retryable is always true; evaluator failures never end the session.
func (e *EvaluatorError) Retryable() bool { return true }
