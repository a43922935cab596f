/*
Package points provides the point-history engine.

PURPOSE:
  Tracks loyalty point readings per profile and turns the flat list of
  readings into the numbers a dashboard shows: current points, gains and
  spends for today and this month, a 7-day pace, and two chart series.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: The profile key an account is tracked under
  - Snapshot: One timestamped point reading (immutable)
  - Account:  The label (email) plus every snapshot of one identity
  - History:  Every account; the whole persisted document

DESIGN PRINCIPLES:
  1. Append-only: Snapshots are never modified or deleted
  2. Derived state: Every aggregate is recomputed from the full list
  3. Explicit absence: "no data" is reported distinctly from zero

USAGE:
  rec := points.NewRecorder(store)
  rec.Record(ctx, "Profile 2", "me@example.com", "6,512")

  engine := points.NewEngine(store)
  stats, err := engine.Stats(ctx, "Profile 2")
  if errors.Is(err, points.ErrNoData) {
      // render a placeholder, not a zero
  }

SEE ALSO:
  - engine.go: Aggregation over snapshots
  - store.go: Persistence port and Recorder
  - redemption.go: Redeem threshold evaluation
*/
package points

import (
	"sort"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// NoiseThreshold is the drop magnitude a delta must exceed to count as a
	// spend. Smaller drops are page fluctuations.
	NoiseThreshold int64 = 50

	// DefaultRedeemThreshold is the point value at which rewards become
	// redeemable.
	DefaultRedeemThreshold int64 = 6550

	// DefaultWindowDays is the chart window used when none is given.
	DefaultWindowDays = 30

	// AverageWindowDays is the look-back of the rolling average pace.
	AverageWindowDays = 7
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identity names one tracked account (a browser profile name).
type Identity string

// =============================================================================
// SNAPSHOT - One point reading
// =============================================================================

// Snapshot is a single point reading. Immutable once written.
// Date is the calendar day the reading is bucketed under; At is the full
// timestamp used for ordering.
type Snapshot struct {
	Identity Identity
	Date     Date
	At       time.Time
	Points   int64
}

// Account is everything stored for one identity.
type Account struct {
	Label     string
	Snapshots []Snapshot
}

// History maps every identity to its account.
type History map[Identity]Account

// Identities returns the identities in sorted order.
func (h History) Identities() []Identity {
	ids := make([]Identity, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshots returns the snapshots of one identity, nil if unknown.
func (h History) Snapshots(id Identity) []Snapshot {
	return h[id].Snapshots
}

// =============================================================================
// DERIVED VALUES - Computed, never stored
// =============================================================================

// DailyBucket is the range of points seen on one day.
type DailyBucket struct {
	Date Date
	Min  int64
	Max  int64
}

// SeriesPoint is one (day, value) pair of a chart series.
type SeriesPoint struct {
	Date  Date
	Value int64
}

// Stats is the dashboard summary of one identity.
type Stats struct {
	Identity Identity

	// Current is the points of the chronologically last snapshot.
	Current int64

	// NetGain is Current minus the first snapshot's points. May be negative.
	NetGain int64

	// Gross gains (sum of positive deltas) and spends (drops beyond
	// NoiseThreshold), bucketed by the later snapshot's date.
	TodayGain  int64
	TodaySpend int64
	MonthGain  int64
	MonthSpend int64
	TotalGain  int64
	TotalSpend int64

	// DailyAverage is the 7-day pace. Only meaningful when HasDailyAverage.
	DailyAverage    int64
	HasDailyAverage bool

	FirstRecord Date
	LastRecord  time.Time
	Records     int
}
