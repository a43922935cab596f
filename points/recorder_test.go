package points_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/points/store"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParsePoints(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"6512", 6512, true},
		{"6,512", 6512, true},
		{"6.512", 6512, true},
		{"1,234,567", 1234567, true},
		{" 6 512 ", 6512, true},
		{"6\u00a0512", 6512, true},
		{"0", 0, true},
		{"", 0, false},
		{"   ", 0, false},
		{",.,", 0, false},
		{"abc", 0, false},
		{"12 pts", 0, false},
		{"-40", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := points.ParsePoints(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// RECORDER
// =============================================================================

func newTestRecorder() (*points.Recorder, *store.Memory) {
	mem := store.NewMemory()
	rec := points.NewRecorder(mem)
	rec.Now = func() time.Time { return time.Date(2026, time.March, 20, 9, 30, 15, 500, time.UTC) }
	return rec, mem
}

func TestRecorder_AppendsParsedReading(t *testing.T) {
	rec, mem := newTestRecorder()
	ctx := context.Background()

	ok, err := rec.Record(ctx, "Profile 2", "me@example.com", "6,512")

	require.NoError(t, err)
	assert.True(t, ok)

	history, err := mem.Load(ctx)
	require.NoError(t, err)
	acct := history["Profile 2"]
	assert.Equal(t, "me@example.com", acct.Label)
	require.Len(t, acct.Snapshots, 1)
	assert.Equal(t, int64(6512), acct.Snapshots[0].Points)
	assert.Equal(t, "2026-03-20", acct.Snapshots[0].Date.String())
	assert.Equal(t, 0, acct.Snapshots[0].At.Nanosecond(), "timestamps keep second precision")
}

func TestRecorder_UnparseableIsNoOp(t *testing.T) {
	// GIVEN: a store holding one reading
	rec, mem := newTestRecorder()
	ctx := context.Background()
	_, err := rec.Record(ctx, "p1", "", "100")
	require.NoError(t, err)
	before, err := mem.Load(ctx)
	require.NoError(t, err)

	// WHEN: recording empty and non-numeric readings
	for _, raw := range []string{"", "n/a", "--"} {
		ok, err := rec.Record(ctx, "p1", "", raw)
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	// THEN: the store is unchanged
	after, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, mem.Appends())
}

func TestRecorder_EmptyLabelKeepsStoredLabel(t *testing.T) {
	rec, mem := newTestRecorder()
	ctx := context.Background()

	_, _ = rec.Record(ctx, "p1", "first@example.com", "10")
	_, _ = rec.Record(ctx, "p1", "", "20")

	history, _ := mem.Load(ctx)
	assert.Equal(t, "first@example.com", history["p1"].Label)
	assert.Len(t, history["p1"].Snapshots, 2)
}

type failingStore struct{ store.Memory }

func (f *failingStore) Append(context.Context, points.Identity, string, points.Snapshot) error {
	return errors.New("disk full")
}

func TestRecorder_StoreFailureIsReturned(t *testing.T) {
	rec := points.NewRecorder(&failingStore{})

	ok, err := rec.Record(context.Background(), "p1", "", "10")

	assert.False(t, ok)
	var storeErr *points.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "append", storeErr.Op)
	assert.Equal(t, points.Identity("p1"), storeErr.Identity)
}

// =============================================================================
// REDEMPTION
// =============================================================================

func TestEvaluateRedemption(t *testing.T) {
	tests := []struct {
		name          string
		current       int64
		wantReady     bool
		wantRemaining int64
		wantProgress  string
	}{
		{"exactly at threshold", 6550, true, 0, "1"},
		{"one below", 6549, false, 1, "0.9998"},
		{"above", 9000, true, 0, "1"},
		{"empty balance", 0, false, 6550, "0"},
		{"half way", 3275, false, 3275, "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := points.EvaluateRedemption(tt.current, points.DefaultRedeemThreshold)
			assert.Equal(t, tt.wantReady, r.Ready)
			assert.Equal(t, tt.wantRemaining, r.Remaining)
			assert.True(t, decimal.RequireFromString(tt.wantProgress).Equal(r.Progress),
				"progress %s, want %s", r.Progress, tt.wantProgress)
		})
	}
}

func TestEvaluateRedemption_DefaultThreshold(t *testing.T) {
	r := points.EvaluateRedemption(100, 0)
	assert.Equal(t, points.DefaultRedeemThreshold, r.Threshold)
	assert.Equal(t, int64(6450), r.Remaining)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize(t *testing.T) {
	// GIVEN: two accounts with data and one without
	history := points.History{
		"p1": {Label: "a@example.com", Snapshots: []points.Snapshot{
			snap(at(3, 19, 9), 6000),
			snap(at(3, 20, 9), 6600),
		}},
		"p2": {Label: "b@example.com", Snapshots: []points.Snapshot{
			snap(at(3, 20, 8), 100),
			snap(at(3, 20, 9), 250),
		}},
		"p3": {Label: "c@example.com"},
	}

	sum := points.Summarize(history, points.DefaultRedeemThreshold, now)

	require.Len(t, sum.Rows, 3)
	assert.Equal(t, points.Identity("p1"), sum.Rows[0].Identity)
	assert.True(t, sum.Rows[0].Redemption.Ready)
	assert.False(t, sum.Rows[2].HasData)
	assert.Equal(t, int64(6850), sum.TotalPoints)
	assert.Equal(t, int64(750), sum.TotalToday)
	assert.Equal(t, int64(750), sum.TotalMonth)
	assert.Equal(t, 1, sum.ReadyAccounts)
}

func TestFormatThousands(t *testing.T) {
	assert.Equal(t, "0", points.FormatThousands(0))
	assert.Equal(t, "999", points.FormatThousands(999))
	assert.Equal(t, "6,512", points.FormatThousands(6512))
	assert.Equal(t, "1,234,567", points.FormatThousands(1234567))
	assert.Equal(t, "-1,000", points.FormatThousands(-1000))

	n, ok := points.ParsePoints(points.FormatThousands(1234567))
	assert.True(t, ok)
	assert.Equal(t, int64(1234567), n)
}
