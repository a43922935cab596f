/*
errors.go - Error types for the points engine

PURPOSE:
  Nothing in the points engine is fatal. Failure paths degrade to
  "no data" (queries) or "skip this write" (unparseable readings).
  The only errors that surface are persistence failures.

USAGE:
  stats, err := engine.Stats(ctx, id)
  if errors.Is(err, points.ErrNoData) {
      // placeholder
  }

SEE ALSO:
  - engine.go: Returns ErrNoData
  - store.go: Wraps persistence failures in StoreError
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoData is returned by queries on an identity without enough
	// snapshots. Unknown identities report it too.
	ErrNoData = errors.New("no data")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op       string
	Identity Identity
	Err      error
}

func (e *StoreError) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("points store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("points store %s %q: %v", e.Op, e.Identity, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsNoData reports whether err means "nothing to show".
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}
