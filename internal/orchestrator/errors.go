package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrPlanning marks a failure while planning a run.
	ErrPlanning = errors.New("planning failed")
	// ErrSelection marks a failure while assigning workers.
	ErrSelection = errors.New("worker selection failed")
	// ErrPersistence marks a failure to read or write durable state.
	ErrPersistence = errors.New("persistence failed")
	// ErrSecurityBlock marks a run refused by the restricted-target guard.
	ErrSecurityBlock = errors.New("security block")
)

// WorkerError is a failure of one worker on one subtask. It is recorded in
// the subtask result and never ends the run.
type WorkerError struct {
	WorkerID  string
	SubtaskID int
	Err       error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s on subtask %d: %v", e.WorkerID, e.SubtaskID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// FatalError ends a run with an error result.
type FatalError struct {
	// Phase is the stage that failed, e.g. "planning" or "report".
	Phase string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
