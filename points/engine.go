/*
engine.go - Aggregation over point snapshots

PURPOSE:
  Computes every number the dashboard shows from an identity's snapshot
  list. Nothing here is stored: each query replays the full list.

DELTAS:
  Walking the snapshots chronologically, each consecutive pair yields a
  delta = later.Points - earlier.Points, dated by the later snapshot.

    delta > 0                 gain
    -NoiseThreshold <= delta <= 0   ignored (page fluctuation)
    delta < -NoiseThreshold   spend of |delta| (a redemption)

7-DAY PACE:
  Snapshots dated within the last 7 days (inclusive). With fewer than two
  the pace is 0. Otherwise (last - first) / max(1, days between them),
  truncated and clamped at 0: a week with heavy spending shows no pace,
  never a negative one.

SERIES:
  Cumulative: the last reading of each day in the window.
  Daily delta: first day = max - min of that day; each later day =
  max(day) - max(previous day in range); floored at 0.

ABSENCE:
  No snapshots: every query reports no data.
  Fewer than two snapshots: the pace and the delta series report no data.

SEE ALSO:
  - types.go: Stats, SeriesPoint, DailyBucket
  - summary.go: Aggregates across identities
*/
package points

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PURE FUNCTIONS
// =============================================================================

// sortedByTime returns a chronologically ordered copy. Ties keep insertion
// order.
func sortedByTime(snaps []Snapshot) []Snapshot {
	out := make([]Snapshot, len(snaps))
	copy(out, snaps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

// ComputeStats summarizes snaps as of now. It reports false when snaps is
// empty.
func ComputeStats(snaps []Snapshot, now time.Time) (Stats, bool) {
	if len(snaps) == 0 {
		return Stats{}, false
	}
	sorted := sortedByTime(snaps)
	first, last := sorted[0], sorted[len(sorted)-1]
	today := DateOf(now)

	stats := Stats{
		Identity:    last.Identity,
		Current:     last.Points,
		NetGain:     last.Points - first.Points,
		FirstRecord: first.Date,
		LastRecord:  last.At,
		Records:     len(sorted),
	}

	for i := 1; i < len(sorted); i++ {
		delta := sorted[i].Points - sorted[i-1].Points
		day := sorted[i].Date
		isToday := day.Equal(today)
		isMonth := day.SameMonth(today)

		switch {
		case delta > 0:
			stats.TotalGain += delta
			if isToday {
				stats.TodayGain += delta
			}
			if isMonth {
				stats.MonthGain += delta
			}
		case delta < -NoiseThreshold:
			spend := -delta
			stats.TotalSpend += spend
			if isToday {
				stats.TodaySpend += spend
			}
			if isMonth {
				stats.MonthSpend += spend
			}
		}
	}

	if len(sorted) >= 2 {
		stats.HasDailyAverage = true
		stats.DailyAverage = averagePace(sorted, today)
	}
	return stats, true
}

// averagePace expects sorted input.
func averagePace(sorted []Snapshot, today Date) int64 {
	cutoff := today.AddDays(-AverageWindowDays)
	var window []Snapshot
	for _, s := range sorted {
		if s.Date.AfterOrEqual(cutoff) {
			window = append(window, s)
		}
	}
	if len(window) < 2 {
		return 0
	}

	first, last := window[0], window[len(window)-1]
	days := DaysBetween(first.Date, last.Date)
	if days < 1 {
		days = 1
	}
	pace := decimal.NewFromInt(last.Points - first.Points).
		Div(decimal.NewFromInt(int64(days))).
		IntPart()
	if pace < 0 {
		return 0
	}
	return pace
}

// DailyBuckets groups snaps by date, oldest first.
func DailyBuckets(snaps []Snapshot) []DailyBucket {
	byDay := make(map[Date]*DailyBucket)
	for _, s := range snaps {
		b, ok := byDay[s.Date]
		if !ok {
			byDay[s.Date] = &DailyBucket{Date: s.Date, Min: s.Points, Max: s.Points}
			continue
		}
		if s.Points < b.Min {
			b.Min = s.Points
		}
		if s.Points > b.Max {
			b.Max = s.Points
		}
	}

	out := make([]DailyBucket, 0, len(byDay))
	for _, b := range byDay {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// CumulativeSeries returns the last reading of each day dated within
// windowDays of now. It reports false when snaps is empty.
func CumulativeSeries(snaps []Snapshot, windowDays int, now time.Time) ([]SeriesPoint, bool) {
	if len(snaps) == 0 {
		return nil, false
	}
	cutoff := windowStart(windowDays, now)

	lastOfDay := make(map[Date]int64)
	for _, s := range sortedByTime(snaps) {
		lastOfDay[s.Date] = s.Points
	}

	out := []SeriesPoint{}
	for day, value := range lastOfDay {
		if day.AfterOrEqual(cutoff) {
			out = append(out, SeriesPoint{Date: day, Value: value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, true
}

// DailyDeltaSeries returns the points gained on each day dated within
// windowDays of now, never negative. It reports false with fewer than two
// snapshots.
func DailyDeltaSeries(snaps []Snapshot, windowDays int, now time.Time) ([]SeriesPoint, bool) {
	if len(snaps) < 2 {
		return nil, false
	}
	cutoff := windowStart(windowDays, now)

	var inRange []DailyBucket
	for _, b := range DailyBuckets(snaps) {
		if b.Date.AfterOrEqual(cutoff) {
			inRange = append(inRange, b)
		}
	}

	out := make([]SeriesPoint, 0, len(inRange))
	for i, b := range inRange {
		var gain int64
		if i == 0 {
			gain = b.Max - b.Min
		} else {
			gain = b.Max - inRange[i-1].Max
		}
		if gain < 0 {
			gain = 0
		}
		out = append(out, SeriesPoint{Date: b.Date, Value: gain})
	}
	return out, true
}

func windowStart(windowDays int, now time.Time) Date {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return DateOf(now).AddDays(-windowDays)
}

// =============================================================================
// ENGINE - Store-backed queries
// =============================================================================

// Engine answers dashboard queries against a Store.
type Engine struct {
	Store Store
	Now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

func (e *Engine) snapshots(ctx context.Context, id Identity) (Account, error) {
	history, err := e.Store.Load(ctx)
	if err != nil {
		return Account{}, &StoreError{Op: "load", Err: err}
	}
	return history[id], nil
}

// Stats returns the summary of one identity, or ErrNoData.
func (e *Engine) Stats(ctx context.Context, id Identity) (*Stats, error) {
	acct, err := e.snapshots(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, ok := ComputeStats(acct.Snapshots, e.Now())
	if !ok {
		return nil, ErrNoData
	}
	stats.Identity = id
	return &stats, nil
}

// Series returns the cumulative chart series, or ErrNoData.
func (e *Engine) Series(ctx context.Context, id Identity, windowDays int) ([]SeriesPoint, error) {
	acct, err := e.snapshots(ctx, id)
	if err != nil {
		return nil, err
	}
	series, ok := CumulativeSeries(acct.Snapshots, windowDays, e.Now())
	if !ok {
		return nil, ErrNoData
	}
	return series, nil
}

// DailyDeltaSeries returns the daily gain chart series, or ErrNoData.
func (e *Engine) DailyDeltaSeries(ctx context.Context, id Identity, windowDays int) ([]SeriesPoint, error) {
	acct, err := e.snapshots(ctx, id)
	if err != nil {
		return nil, err
	}
	series, ok := DailyDeltaSeries(acct.Snapshots, windowDays, e.Now())
	if !ok {
		return nil, ErrNoData
	}
	return series, nil
}
