package runner

import (
	"errors"
	"fmt"

	"github.com/warp/points-engine/points"
)

var (
	ErrRunInProgress  = errors.New("a run is already in progress")
	ErrNoProfiles     = errors.New("no profiles to run")
	ErrNoActiveRun    = errors.New("no active run")
	ErrWorkerNotFound = errors.New("worker not found")

	ErrCoordinatorClosed = errors.New("coordinator closed")

	// Cancellation causes.
	ErrStopAll    = errors.New("run stopped")
	ErrStopWorker = errors.New("worker stopped")
)

// WorkerError wraps a failure of one profile's worker.
type WorkerError struct {
	Identity points.Identity
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Identity, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
