package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrJobFailed means the backend reported the job as failed. It is a
	// terminal outcome, not a transport problem.
	ErrJobFailed = errors.New("research job failed")
	// ErrNotReady means the job has not reached a terminal status yet.
	ErrNotReady = errors.New("research job not finished")
	// ErrNoResult means a completed job arrived without a canonical result.
	ErrNoResult = errors.New("completed job has no result")
)

// ValidationError rejects a request before anything is sent to the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
