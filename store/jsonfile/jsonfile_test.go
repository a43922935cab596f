package jsonfile_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/store/jsonfile"
)

func newTestStore(t *testing.T) (*jsonfile.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "historial_puntos.json")
	return jsonfile.New(path, time.UTC), path
}

func snapAt(year int, month time.Month, day, hour, min, sec int, pts int64) points.Snapshot {
	at := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	return points.Snapshot{Date: points.DateOf(at), At: at, Points: pts}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	history, err := s.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_RoundTrip(t *testing.T) {
	// GIVEN: two appends for one identity
	s, path := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "Profile 2", "me@example.com", snapAt(2026, 3, 20, 9, 30, 15, 6512)))
	require.NoError(t, s.Append(ctx, "Profile 2", "", snapAt(2026, 3, 20, 10, 0, 0, 6600)))

	// WHEN: loading through a fresh store on the same file
	history, err := jsonfile.New(path, time.UTC).Load(ctx)

	// THEN: label and snapshots survive in order
	require.NoError(t, err)
	acct := history["Profile 2"]
	assert.Equal(t, "me@example.com", acct.Label)
	require.Len(t, acct.Snapshots, 2)
	assert.Equal(t, int64(6512), acct.Snapshots[0].Points)
	assert.Equal(t, "2026-03-20", acct.Snapshots[0].Date.String())
	assert.True(t, acct.Snapshots[0].At.Equal(time.Date(2026, 3, 20, 9, 30, 15, 0, time.UTC)))
	assert.Equal(t, points.Identity("Profile 2"), acct.Snapshots[1].Identity)
	assert.Equal(t, int64(6600), acct.Snapshots[1].Points)
}

func TestStore_DocumentFormat(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Append(context.Background(), "p1", "a<b>@example.com", snapAt(2026, 3, 20, 9, 30, 15, 6512)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `"registros"`)
	assert.Contains(t, text, `"fecha": "2026-03-20"`)
	assert.Contains(t, text, `"hora": "2026-03-20 09:30:15"`)
	assert.Contains(t, text, `"puntos": 6512`)
	assert.Contains(t, text, "a<b>@example.com", "no HTML escaping")
	assert.True(t, strings.HasPrefix(text, "{\n  \""), "two-space indent")
}

func TestStore_CorruptFileIsEmpty(t *testing.T) {
	// GIVEN: a truncated document
	s, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"p1": {"email": "x", "registros": [`), 0o644))

	// WHEN
	history, err := s.Load(context.Background())

	// THEN: empty, and the next write recreates a valid document
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, s.Append(context.Background(), "p1", "", snapAt(2026, 3, 20, 9, 0, 0, 10)))
	history, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, history["p1"].Snapshots, 1)
}

func TestStore_TolerantDecoding(t *testing.T) {
	s, path := newTestStore(t)
	doc := `{
  "p1": {
    "email": "a@example.com",
    "extra": true,
    "registros": [
      {"fecha": "2026-03-18", "hora": "2026-03-18 08:00:00", "puntos": 100, "note": "ignored"},
      {"fecha": "2026-03-19", "hora": "garbage", "puntos": 150},
      {"fecha": "", "hora": "2026-03-20 11:12:13", "puntos": 200},
      {"fecha": "", "hora": "", "puntos": 250},
      {"fecha": "2026-03-20", "hora": "2026-03-20 12:00:00", "puntos": -5}
    ]
  },
  "p2": {"email": "b@example.com"}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	history, err := s.Load(context.Background())
	require.NoError(t, err)

	snaps := history["p1"].Snapshots
	require.Len(t, snaps, 3)
	assert.True(t, snaps[1].At.Equal(time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC)), "bad hora falls back to fecha at midnight")
	assert.Equal(t, "2026-03-20", snaps[2].Date.String(), "empty fecha derived from hora")

	require.Contains(t, history, points.Identity("p2"))
	assert.Empty(t, history["p2"].Snapshots)
	assert.Equal(t, "b@example.com", history["p2"].Label)
}

func TestStore_RecorderNoOpLeavesFileUntouched(t *testing.T) {
	// GIVEN: a recorded reading
	s, path := newTestStore(t)
	rec := points.NewRecorder(s)
	rec.Now = func() time.Time { return time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	_, err := rec.Record(ctx, "p1", "a@example.com", "1,234")
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// WHEN: recording unparseable values
	for _, raw := range []string{"", "abc"} {
		ok, err := rec.Record(ctx, "p1", "", raw)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// THEN: the document is byte-identical
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_ImportHistory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	history := points.History{
		"p1": {Label: "a@example.com", Snapshots: []points.Snapshot{snapAt(2026, 3, 19, 9, 0, 0, 10)}},
		"p2": {Label: "b@example.com"},
	}

	require.NoError(t, s.ImportHistory(ctx, history))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, got["p1"].Snapshots, 1)
	assert.Equal(t, "b@example.com", got["p2"].Label)
}
