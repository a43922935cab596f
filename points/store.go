/*
store.go - Persistence port for point snapshots

PURPOSE:
  Defines the interface between the points engine and durable storage.
  The Store is append-only: snapshots are added, never edited or removed.

KEY TYPES:
  Store:    Append one snapshot, load the whole history
  Recorder: Turns a raw point reading into a stored snapshot

WRITE MODEL:
  Backends persist the whole document after every Append (read, modify,
  overwrite). Concurrent writers inside one process are serialized by the
  backend; concurrent processes sharing one document are not supported.
  The run orchestrator funnels all writes through a single coordinator.

IMPLEMENTATIONS:
  - store/jsonfile: The JSON point log (primary)
  - store/sqlite:   SQLite backend
  - points/store:   In-memory for testing

SEE ALSO:
  - engine.go: Reads the history
  - runner/coordinator.go: The single writer during runs
*/
package points

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for snapshot persistence (append-only)
// =============================================================================

// Store persists snapshots.
type Store interface {
	// Append adds a snapshot to the identity's list, creating the identity
	// if absent. A non-empty label replaces the stored one.
	Append(ctx context.Context, identity Identity, label string, snap Snapshot) error

	// Load returns the full history. A missing or unreadable document is an
	// empty history, not an error.
	Load(ctx context.Context) (History, error)
}

// =============================================================================
// RECORDER - Raw readings to snapshots
// =============================================================================

// Recorder stamps raw point readings with the current time and appends
// them to a Store.
type Recorder struct {
	Store Store
	Now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{Store: store, Now: time.Now}
}

// Record parses raw and appends a snapshot dated now. Unparseable or empty
// readings are a silent no-op and report false. Only persistence failures
// return an error.
func (r *Recorder) Record(ctx context.Context, identity Identity, label, raw string) (bool, error) {
	n, ok := ParsePoints(raw)
	if !ok {
		return false, nil
	}

	// Backends keep second precision.
	now := r.Now().Truncate(time.Second)
	snap := Snapshot{
		Identity: identity,
		Date:     DateOf(now),
		At:       now,
		Points:   n,
	}
	if err := r.Store.Append(ctx, identity, label, snap); err != nil {
		return false, &StoreError{Op: "append", Identity: identity, Err: err}
	}
	return true, nil
}
