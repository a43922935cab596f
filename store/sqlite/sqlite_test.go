package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapAt(day, hour int, pts int64) points.Snapshot {
	at := time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
	return points.Snapshot{Date: points.DateOf(at), At: at, Points: pts}
}

func TestStore_AppendAndLoad(t *testing.T) {
	// GIVEN: two identities with readings
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "p1", "a@example.com", snapAt(19, 9, 100)))
	require.NoError(t, s.Append(ctx, "p1", "", snapAt(20, 9, 150)))
	require.NoError(t, s.Append(ctx, "p2", "b@example.com", snapAt(20, 10, 70)))

	// WHEN
	history, err := s.Load(ctx)

	// THEN: insertion order and labels are preserved
	require.NoError(t, err)
	require.Len(t, history, 2)
	p1 := history["p1"]
	assert.Equal(t, "a@example.com", p1.Label, "empty label keeps stored one")
	require.Len(t, p1.Snapshots, 2)
	assert.Equal(t, int64(100), p1.Snapshots[0].Points)
	assert.Equal(t, "2026-03-20", p1.Snapshots[1].Date.String())
	assert.True(t, p1.Snapshots[1].At.Equal(time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, points.Identity("p1"), p1.Snapshots[1].Identity)

	count, err := s.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_LabelReplacedWhenGiven(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "p1", "old@example.com", snapAt(19, 9, 100)))
	require.NoError(t, s.Append(ctx, "p1", "new@example.com", snapAt(20, 9, 100)))

	history, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", history["p1"].Label)
}

func TestStore_EngineOverSQLite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "p1", "", snapAt(20, 8, 100)))
	require.NoError(t, s.Append(ctx, "p1", "", snapAt(20, 9, 150)))

	engine := points.NewEngine(s)
	engine.Now = func() time.Time { return time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC) }

	stats, err := engine.Stats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stats.Current)
	assert.Equal(t, int64(50), stats.TodayGain)

	_, err = engine.Stats(ctx, "missing")
	assert.ErrorIs(t, err, points.ErrNoData)
}

func TestStore_ImportHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	history := points.History{
		"p1": {Label: "a@example.com", Snapshots: []points.Snapshot{snapAt(18, 9, 10), snapAt(19, 9, 20)}},
		"p2": {Label: "b@example.com"},
	}

	require.NoError(t, s.ImportHistory(ctx, history))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, got["p1"].Snapshots, 2)
	assert.Equal(t, int64(20), got["p1"].Snapshots[1].Points)
	assert.Empty(t, got["p2"].Snapshots)
}

func TestStore_Progress(t *testing.T) {
	// GIVEN: a tracker on the sqlite progress table
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 14, 0, 0, 0, time.UTC)
	tr := progress.NewTracker(s)
	tr.Now = func() time.Time { return now }

	// WHEN: saving twice for one identity and once for another
	require.NoError(t, tr.Save(ctx, "p1", 3, 1))
	require.NoError(t, tr.Save(ctx, "p1", 4, 1))
	require.NoError(t, tr.Save(ctx, "p2", 9, 2))

	// THEN: the latest value wins
	n, err := tr.Today(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, tr.Reset(ctx, "p1", "p2"))
	all, err = s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
