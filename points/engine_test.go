package points_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/points/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// now is a fixed clock: 2026-03-20 18:00 local.
var now = time.Date(2026, time.March, 20, 18, 0, 0, 0, time.UTC)

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, time.UTC)
}

func snap(t time.Time, pts int64) points.Snapshot {
	return points.Snapshot{Identity: "p1", Date: points.DateOf(t), At: t, Points: pts}
}

func newTestEngine(t *testing.T, snaps ...points.Snapshot) (*points.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.Seed("p1", "p1@example.com", snaps...)
	engine := points.NewEngine(mem)
	engine.Now = func() time.Time { return now }
	return engine, mem
}

// =============================================================================
// STATS
// =============================================================================

func TestComputeStats_Empty_NoData(t *testing.T) {
	_, ok := points.ComputeStats(nil, now)
	assert.False(t, ok)
}

func TestComputeStats_SingleSnapshot(t *testing.T) {
	// GIVEN: exactly one reading
	stats, ok := points.ComputeStats([]points.Snapshot{snap(at(3, 20, 9), 1200)}, now)

	// THEN: current is that reading, every delta is zero, no pace
	require.True(t, ok)
	assert.Equal(t, int64(1200), stats.Current)
	assert.Equal(t, int64(0), stats.NetGain)
	assert.Equal(t, int64(0), stats.TodayGain)
	assert.Equal(t, int64(0), stats.TotalSpend)
	assert.False(t, stats.HasDailyAverage)
	assert.Equal(t, 1, stats.Records)
}

func TestComputeStats_CurrentIsLastByTimestamp_RegardlessOfOrder(t *testing.T) {
	// GIVEN: readings inserted out of order
	snaps := []points.Snapshot{
		snap(at(3, 19, 10), 300),
		snap(at(3, 20, 9), 500),
		snap(at(3, 18, 10), 100),
	}

	stats, ok := points.ComputeStats(snaps, now)

	require.True(t, ok)
	assert.Equal(t, int64(500), stats.Current)
	assert.Equal(t, int64(400), stats.NetGain)
	assert.Equal(t, points.NewDate(2026, time.March, 18), stats.FirstRecord)
}

func TestComputeStats_NetGainCanBeNegative(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(3, 10, 9), 7000),
		snap(at(3, 12, 9), 7100),
		snap(at(3, 15, 9), 550),
	}

	stats, ok := points.ComputeStats(snaps, now)

	require.True(t, ok)
	assert.Equal(t, int64(-6450), stats.NetGain)
	assert.Equal(t, int64(6550), stats.TotalSpend)
	assert.Equal(t, int64(6550), stats.MonthSpend)
	assert.Equal(t, int64(100), stats.TotalGain)
}

func TestComputeStats_GainAndSpendByDay(t *testing.T) {
	// GIVEN: [100 (day1), 150 (day1), 90 (day2)] with day2 = today
	snaps := []points.Snapshot{
		snap(at(3, 19, 9), 100),
		snap(at(3, 19, 12), 150),
		snap(at(3, 20, 9), 90),
	}

	stats, ok := points.ComputeStats(snaps, now)

	// THEN: the 50 gain belongs to day1, the 60 drop is today's spend
	require.True(t, ok)
	assert.Equal(t, int64(0), stats.TodayGain)
	assert.Equal(t, int64(60), stats.TodaySpend)
	assert.Equal(t, int64(50), stats.MonthGain)
	assert.Equal(t, int64(60), stats.MonthSpend)
	assert.Equal(t, int64(60), stats.TotalSpend)
}

func TestComputeStats_NoiseThreshold(t *testing.T) {
	tests := []struct {
		name      string
		drop      int64
		wantSpend int64
	}{
		{"drop of 49 is noise", 49, 0},
		{"drop of exactly 50 is noise", 50, 0},
		{"drop of 51 is spend", 51, 51},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := []points.Snapshot{
				snap(at(3, 20, 9), 1000),
				snap(at(3, 20, 10), 1000-tt.drop),
			}
			stats, ok := points.ComputeStats(snaps, now)
			require.True(t, ok)
			assert.Equal(t, tt.wantSpend, stats.TodaySpend)
			assert.Equal(t, tt.wantSpend, stats.TotalSpend)
			assert.Equal(t, int64(0), stats.TodayGain)
		})
	}
}

func TestComputeStats_MonthExcludesPreviousMonth(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(2, 27, 9), 100),
		snap(at(2, 28, 9), 400), // +300 in February
		snap(at(3, 1, 9), 450),  // +50 in March
		snap(at(3, 20, 9), 500), // +50 today
	}

	stats, ok := points.ComputeStats(snaps, now)

	require.True(t, ok)
	assert.Equal(t, int64(50), stats.TodayGain)
	assert.Equal(t, int64(100), stats.MonthGain)
	assert.Equal(t, int64(400), stats.TotalGain)
}

// =============================================================================
// 7-DAY PACE
// =============================================================================

func TestComputeStats_DailyAverage(t *testing.T) {
	// GIVEN: 4 days between the first and last reading of the week
	snaps := []points.Snapshot{
		snap(at(3, 1, 9), 10), // outside the window
		snap(at(3, 16, 9), 1000),
		snap(at(3, 18, 9), 1200),
		snap(at(3, 20, 9), 1450),
	}

	stats, ok := points.ComputeStats(snaps, now)

	// THEN: (1450 - 1000) / 4 = 112.5, truncated
	require.True(t, ok)
	assert.True(t, stats.HasDailyAverage)
	assert.Equal(t, int64(112), stats.DailyAverage)
}

func TestComputeStats_DailyAverage_WindowIsInclusive(t *testing.T) {
	// GIVEN: a reading exactly 7 days ago
	snaps := []points.Snapshot{
		snap(at(3, 13, 9), 0),
		snap(at(3, 20, 9), 700),
	}

	stats, _ := points.ComputeStats(snaps, now)

	assert.Equal(t, int64(100), stats.DailyAverage)
}

func TestComputeStats_DailyAverage_SameDayUsesOneDay(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(3, 20, 9), 100),
		snap(at(3, 20, 12), 190),
	}

	stats, _ := points.ComputeStats(snaps, now)

	assert.Equal(t, int64(90), stats.DailyAverage)
}

func TestComputeStats_DailyAverage_ClampedAtZero(t *testing.T) {
	// GIVEN: a week that ends below where it started (redemption)
	snaps := []points.Snapshot{
		snap(at(3, 15, 9), 7000),
		snap(at(3, 20, 9), 400),
	}

	stats, _ := points.ComputeStats(snaps, now)

	assert.True(t, stats.HasDailyAverage)
	assert.Equal(t, int64(0), stats.DailyAverage)
}

func TestComputeStats_DailyAverage_FewerThanTwoInWindow(t *testing.T) {
	// GIVEN: two readings overall, only one inside the 7-day window
	snaps := []points.Snapshot{
		snap(at(2, 1, 9), 100),
		snap(at(3, 20, 9), 900),
	}

	stats, _ := points.ComputeStats(snaps, now)

	assert.True(t, stats.HasDailyAverage)
	assert.Equal(t, int64(0), stats.DailyAverage)
}

// =============================================================================
// SERIES
// =============================================================================

func TestSeries_LastReadingPerDay(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(3, 19, 9), 100),
		snap(at(3, 19, 12), 150),
		snap(at(3, 20, 9), 90),
	}

	series, ok := points.CumulativeSeries(snaps, 30, now)

	require.True(t, ok)
	assert.Equal(t, []points.SeriesPoint{
		{Date: points.NewDate(2026, time.March, 19), Value: 150},
		{Date: points.NewDate(2026, time.March, 20), Value: 90},
	}, series)
}

func TestSeries_LastByTimestampNotInsertion(t *testing.T) {
	// GIVEN: same-day readings inserted late-first
	snaps := []points.Snapshot{
		snap(at(3, 19, 12), 150),
		snap(at(3, 19, 9), 100),
	}

	series, _ := points.CumulativeSeries(snaps, 30, now)

	require.Len(t, series, 1)
	assert.Equal(t, int64(150), series[0].Value)
}

func TestSeries_WindowFiltersOldDays(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(1, 5, 9), 10),
		snap(at(3, 13, 9), 20), // exactly 7 days back
		snap(at(3, 20, 9), 30),
	}

	series, ok := points.CumulativeSeries(snaps, 7, now)

	require.True(t, ok)
	require.Len(t, series, 2)
	assert.Equal(t, int64(20), series[0].Value)
}

func TestSeries_NoSnapshotsInWindow_EmptyButPresent(t *testing.T) {
	series, ok := points.CumulativeSeries([]points.Snapshot{snap(at(1, 5, 9), 10)}, 7, now)

	assert.True(t, ok)
	assert.Empty(t, series)
}

func TestDailyDeltaSeries(t *testing.T) {
	// GIVEN: [100 (day1), 150 (day1), 90 (day2)]
	snaps := []points.Snapshot{
		snap(at(3, 19, 9), 100),
		snap(at(3, 19, 12), 150),
		snap(at(3, 20, 9), 90),
	}

	series, ok := points.DailyDeltaSeries(snaps, 30, now)

	// THEN: day1 = 150-100, day2 = max(0, 90-150)
	require.True(t, ok)
	assert.Equal(t, []points.SeriesPoint{
		{Date: points.NewDate(2026, time.March, 19), Value: 50},
		{Date: points.NewDate(2026, time.March, 20), Value: 0},
	}, series)
}

func TestDailyDeltaSeries_ComparesDailyMaxima(t *testing.T) {
	snaps := []points.Snapshot{
		snap(at(3, 17, 9), 1000),
		snap(at(3, 17, 20), 1090),
		snap(at(3, 18, 9), 1100),
		snap(at(3, 18, 21), 1250),
		snap(at(3, 20, 9), 1400),
	}

	series, ok := points.DailyDeltaSeries(snaps, 30, now)

	require.True(t, ok)
	values := make([]int64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	assert.Equal(t, []int64{90, 160, 150}, values)
}

func TestDailyDeltaSeries_FewerThanTwo_NoData(t *testing.T) {
	_, ok := points.DailyDeltaSeries([]points.Snapshot{snap(at(3, 20, 9), 10)}, 30, now)
	assert.False(t, ok)
}

func TestDailyBuckets(t *testing.T) {
	buckets := points.DailyBuckets([]points.Snapshot{
		snap(at(3, 20, 9), 300),
		snap(at(3, 19, 9), 120),
		snap(at(3, 20, 7), 250),
		snap(at(3, 20, 12), 280),
	})

	assert.Equal(t, []points.DailyBucket{
		{Date: points.NewDate(2026, time.March, 19), Min: 120, Max: 120},
		{Date: points.NewDate(2026, time.March, 20), Min: 250, Max: 300},
	}, buckets)
}

// =============================================================================
// ENGINE
// =============================================================================

func TestEngine_UnknownIdentity_NoData(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	stats, err := engine.Stats(ctx, "nobody")
	assert.ErrorIs(t, err, points.ErrNoData)
	assert.Nil(t, stats, "no data must not be a zero-valued struct")

	_, err = engine.Series(ctx, "nobody", 30)
	assert.ErrorIs(t, err, points.ErrNoData)

	_, err = engine.DailyDeltaSeries(ctx, "nobody", 30)
	assert.ErrorIs(t, err, points.ErrNoData)
}

func TestEngine_IdentityWithoutSnapshots_NoData(t *testing.T) {
	// GIVEN: an identity that exists but has an empty list
	engine, _ := newTestEngine(t)

	_, err := engine.Stats(context.Background(), "p1")

	assert.True(t, points.IsNoData(err))
}

func TestEngine_Stats(t *testing.T) {
	engine, _ := newTestEngine(t,
		snap(at(3, 20, 9), 6000),
		snap(at(3, 20, 12), 6150),
	)

	stats, err := engine.Stats(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, points.Identity("p1"), stats.Identity)
	assert.Equal(t, int64(6150), stats.Current)
	assert.Equal(t, int64(150), stats.TodayGain)
}

func TestEngine_SeriesIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t,
		snap(at(3, 1, 9), 100),
		snap(at(3, 10, 9), 400),
		snap(at(3, 20, 9), 900),
	)
	ctx := context.Background()

	first, err := engine.Series(ctx, "p1", 30)
	require.NoError(t, err)
	second, err := engine.Series(ctx, "p1", 30)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEngine_DailyDeltaSeries_OneSnapshot_NoData(t *testing.T) {
	engine, _ := newTestEngine(t, snap(at(3, 20, 9), 100))

	_, err := engine.DailyDeltaSeries(context.Background(), "p1", 30)

	assert.ErrorIs(t, err, points.ErrNoData)
}
