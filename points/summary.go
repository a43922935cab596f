package points

import (
	"context"
	"time"
)

// =============================================================================
// SUMMARY - All identities at once
// =============================================================================

// SummaryRow is one identity's line in the summary table.
type SummaryRow struct {
	Identity   Identity
	Label      string
	HasData    bool
	Current    int64
	TodayGain  int64
	MonthGain  int64
	Redemption Redemption
}

// Summary is the overview across every tracked identity.
type Summary struct {
	Rows          []SummaryRow
	TotalPoints   int64
	TotalToday    int64
	TotalMonth    int64
	ReadyAccounts int
}

// Summarize builds the overview of history as of now. Identities without
// snapshots are listed with HasData false and excluded from the totals.
func Summarize(history History, threshold int64, now time.Time) Summary {
	var sum Summary
	for _, id := range history.Identities() {
		acct := history[id]
		row := SummaryRow{Identity: id, Label: acct.Label}

		if stats, ok := ComputeStats(acct.Snapshots, now); ok {
			row.HasData = true
			row.Current = stats.Current
			row.TodayGain = stats.TodayGain
			row.MonthGain = stats.MonthGain
			row.Redemption = EvaluateRedemption(stats.Current, threshold)

			sum.TotalPoints += stats.Current
			sum.TotalToday += stats.TodayGain
			sum.TotalMonth += stats.MonthGain
			if row.Redemption.Ready {
				sum.ReadyAccounts++
			}
		}
		sum.Rows = append(sum.Rows, row)
	}
	return sum
}

// Summary loads the history and summarizes it.
func (e *Engine) Summary(ctx context.Context, threshold int64) (*Summary, error) {
	history, err := e.Store.Load(ctx)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	sum := Summarize(history, threshold, e.Now())
	return &sum, nil
}
