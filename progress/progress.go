/*
Package progress tracks how many searches each profile completed today.

PURPOSE:
  A run resumes where the previous run of the same day stopped: a worker
  only performs SearchesPerProfile minus the searches already completed
  today. The record is separate from the point history and is the only
  thing the "reset progress" operation touches.

LIFECYCLE:
  - Save after every search
  - Today returns 0 for records from an earlier day and deletes them
  - Prune drops every record not from today (run daily by the scheduler)
  - Reset deletes records on request

SEE ALSO:
  - progress/file.go: JSON document backend
  - store/sqlite: SQL backend
*/
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/points-engine/points"
)

// Record is one profile's progress for the day it was last updated.
type Record struct {
	Identity  points.Identity
	Completed int
	Number    int
	UpdatedAt time.Time
}

// Store persists progress records, one per identity.
type Store interface {
	Get(ctx context.Context, identity points.Identity) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, identities ...points.Identity) error
	All(ctx context.Context) ([]Record, error)
}

// Tracker applies the same-day rule on top of a Store.
type Tracker struct {
	Store Store
	Now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{Store: store, Now: time.Now}
}

func sameDay(a, b time.Time) bool {
	return points.DateOf(a.In(b.Location())).Equal(points.DateOf(b))
}

// Today returns the searches completed today by identity. A record left
// over from an earlier day is deleted and reported as 0.
func (t *Tracker) Today(ctx context.Context, identity points.Identity) (int, error) {
	rec, ok, err := t.Store.Get(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("failed to read progress for %s: %w", identity, err)
	}
	if !ok {
		return 0, nil
	}
	if !sameDay(rec.UpdatedAt, t.Now()) {
		if err := t.Store.Delete(ctx, identity); err != nil {
			return 0, fmt.Errorf("failed to drop stale progress for %s: %w", identity, err)
		}
		return 0, nil
	}
	return rec.Completed, nil
}

// Save records completed searches for identity as of now.
func (t *Tracker) Save(ctx context.Context, identity points.Identity, completed, number int) error {
	rec := Record{
		Identity:  identity,
		Completed: completed,
		Number:    number,
		UpdatedAt: t.Now().Truncate(time.Second),
	}
	if err := t.Store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save progress for %s: %w", identity, err)
	}
	return nil
}

// Reset deletes the records of the given identities.
func (t *Tracker) Reset(ctx context.Context, identities ...points.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	if err := t.Store.Delete(ctx, identities...); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}

// Prune deletes every record not from today and returns how many it removed.
func (t *Tracker) Prune(ctx context.Context) (int, error) {
	all, err := t.Store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list progress: %w", err)
	}
	now := t.Now()
	var stale []points.Identity
	for _, rec := range all {
		if !sameDay(rec.UpdatedAt, now) {
			stale = append(stale, rec.Identity)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := t.Store.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("failed to prune progress: %w", err)
	}
	return len(stale), nil
}

// Snapshot returns today's record for each identity, zero-valued when absent
// or stale. Stale records are not deleted.
func (t *Tracker) Snapshot(ctx context.Context, identities []points.Identity) ([]Record, error) {
	now := t.Now()
	out := make([]Record, 0, len(identities))
	for _, id := range identities {
		rec, ok, err := t.Store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read progress for %s: %w", id, err)
		}
		if !ok || !sameDay(rec.UpdatedAt, now) {
			rec = Record{Identity: id}
		}
		out = append(out, rec)
	}
	return out, nil
}
