package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/runner"
)

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Config.Schedule = "every morning"

	_, err := NewScheduler(env.handler.Runner, env.handler.Coordinator, env.handler.Config, nil)

	assert.ErrorContains(t, err, `invalid schedule "every morning"`)
}

func TestScheduler_NextRun(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: no schedule
	off, err := NewScheduler(env.handler.Runner, env.handler.Coordinator, env.handler.Config, nil)
	require.NoError(t, err)
	off.Start()
	defer off.Stop()
	_, ok := off.NextRun()
	assert.False(t, ok)

	// GIVEN: a daily run at 08:00
	env.handler.Config.Schedule = "0 0 8 * * *"
	on, err := NewScheduler(env.handler.Runner, env.handler.Coordinator, env.handler.Config, nil)
	require.NoError(t, err)
	on.Start()
	defer on.Stop()

	next, ok := on.NextRun()
	require.True(t, ok)
	assert.Equal(t, 8, next.Hour())
	assert.True(t, next.After(time.Now()))
}

func TestScheduler_RunNowSkipsWhileActive(t *testing.T) {
	// GIVEN: a scheduler over a blocking browser
	env := newTestEnv(t)
	s, err := NewScheduler(env.handler.Runner, env.handler.Coordinator, env.handler.Config, nil)
	require.NoError(t, err)

	// WHEN
	info, err := s.RunNow()
	require.NoError(t, err)
	_, again := s.RunNow()

	// THEN: every configured profile runs, the second start is refused
	assert.Len(t, info.Workers, 2)
	assert.ErrorIs(t, again, runner.ErrRunInProgress)
}

func TestScheduler_PruneDropsStaleProgress(t *testing.T) {
	// GIVEN: one record from today and one from yesterday
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.pstore.Put(ctx, progress.Record{Identity: "p1", Completed: 30, Number: 1, UpdatedAt: yesterday}))
	require.NoError(t, env.pstore.Put(ctx, progress.Record{Identity: "p2", Completed: 4, Number: 2, UpdatedAt: now}))
	s, err := NewScheduler(env.handler.Runner, env.handler.Coordinator, env.handler.Config, nil)
	require.NoError(t, err)

	// WHEN
	s.prune()

	// THEN
	all, err := env.pstore.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p2", string(all[0].Identity))
}
