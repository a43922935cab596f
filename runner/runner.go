package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
)

// pointsEvery is how often, in absolute search numbers, points are re-read.
const pointsEvery = 5

// Runner starts and stops runs. At most one run is active at a time.
type Runner struct {
	browser Browser
	coord   *Coordinator
	tracker *progress.Tracker
	queries *QueryGenerator
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *run

	states  *xsync.Map[points.Identity, WorkerState]
	cancels *xsync.Map[points.Identity, context.CancelCauseFunc]
}

type run struct {
	id         string
	startedAt  time.Time
	finishedAt *time.Time
	order      []points.Identity
	cancel     context.CancelCauseFunc
	done       chan struct{}
}

// New returns a Runner. tracker is only read; progress writes go through
// the coordinator.
func New(browser Browser, coord *Coordinator, tracker *progress.Tracker, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SearchesPerProfile <= 0 {
		opts.SearchesPerProfile = 30
	}
	return &Runner{
		browser: browser,
		coord:   coord,
		tracker: tracker,
		queries: NewQueryGenerator(0),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		states:  xsync.NewMap[points.Identity, WorkerState](),
		cancels: xsync.NewMap[points.Identity, context.CancelCauseFunc](),
	}
}

// SetQueryGenerator replaces the query source.
func (r *Runner) SetQueryGenerator(g *QueryGenerator) { r.queries = g }

// =============================================================================
// CONTROL
// =============================================================================

// Start launches a run over profiles and returns immediately. A profile
// listed more than once gets a single worker.
func (r *Runner) Start(ctx context.Context, profiles []Profile) (RunInfo, error) {
	profiles = uniqueProfiles(profiles)
	if len(profiles) == 0 {
		return RunInfo{}, ErrNoProfiles
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.finishedAt == nil {
		return RunInfo{}, ErrRunInProgress
	}

	initial, err := r.initialProgress(ctx, profiles)
	if err != nil {
		return RunInfo{}, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	cur := &run{
		id:        uuid.NewString(),
		startedAt: r.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.states.Clear()
	r.cancels.Clear()
	for _, p := range profiles {
		cur.order = append(cur.order, p.Identity)
		r.states.Store(p.Identity, WorkerState{
			Identity:  p.Identity,
			Label:     p.Label,
			Number:    p.Number,
			Status:    StatusPending,
			Completed: initial[p.Identity],
			Target:    r.opts.SearchesPerProfile,
			StartedAt: cur.startedAt,
		})
	}
	r.current = cur

	r.logger.Info("run starting", zap.String("run_id", cur.id), zap.Int("profiles", len(profiles)))

	pool := pond.NewPool(len(profiles), pond.WithQueueSize(len(profiles)))
	group := pool.NewGroup()
	for _, p := range profiles {
		p := p
		workerCtx, workerCancel := context.WithCancelCause(runCtx)
		r.cancels.Store(p.Identity, workerCancel)
		group.Submit(func() {
			defer workerCancel(nil)
			r.work(workerCtx, cur.id, p, initial[p.Identity])
		})
	}

	go r.supervise(cur, pool, group)

	return r.infoLocked(), nil
}

func uniqueProfiles(profiles []Profile) []Profile {
	seen := make(map[points.Identity]bool, len(profiles))
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if seen[p.Identity] {
			continue
		}
		seen[p.Identity] = true
		out = append(out, p)
	}
	return out
}

func (r *Runner) initialProgress(ctx context.Context, profiles []Profile) (map[points.Identity]int, error) {
	out := make(map[points.Identity]int, len(profiles))
	if r.tracker == nil {
		return out, nil
	}
	ids := make([]points.Identity, len(profiles))
	for i, p := range profiles {
		ids[i] = p.Identity
	}
	recs, err := r.tracker.Snapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	for _, rec := range recs {
		out[rec.Identity] = rec.Completed
	}
	return out, nil
}

func (r *Runner) supervise(cur *run, pool pond.Pool, group pond.TaskGroup) {
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.logger.Error("run group failed", zap.String("run_id", cur.id), zap.Error(err))
	}
	pool.StopAndWait()
	cur.cancel(nil)

	ev := Event{Type: EventRunFinished, RunID: cur.id, At: r.now(), done: make(chan struct{})}
	if r.emit(ev) {
		<-ev.done
	}

	r.mu.Lock()
	finished := r.now()
	cur.finishedAt = &finished
	r.mu.Unlock()
	close(cur.done)
}

// StopAll cancels every worker of the active run.
func (r *Runner) StopAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.finishedAt != nil {
		return ErrNoActiveRun
	}
	r.logger.Info("stopping run", zap.String("run_id", r.current.id))
	r.current.cancel(ErrStopAll)
	return nil
}

// StopWorker cancels one worker of the active run.
func (r *Runner) StopWorker(identity points.Identity) error {
	state, ok := r.states.Load(identity)
	if !ok {
		return ErrWorkerNotFound
	}
	if state.Status.Terminal() {
		return nil
	}
	cancel, ok := r.cancels.Load(identity)
	if !ok {
		return ErrWorkerNotFound
	}
	r.logger.Info("stopping worker", zap.String("identity", string(identity)))
	cancel(ErrStopWorker)
	return nil
}

// Wait blocks until the active run, if any, has finished and every one of
// its events has been handled.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur == nil {
		return nil
	}
	select {
	case <-cur.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.finishedAt == nil
}

// State returns the current or last run. ok is false before the first run.
func (r *Runner) State() (RunInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return RunInfo{}, false
	}
	return r.infoLocked(), true
}

func (r *Runner) infoLocked() RunInfo {
	cur := r.current
	info := RunInfo{
		ID:         cur.id,
		Running:    cur.finishedAt == nil,
		StartedAt:  cur.startedAt,
		FinishedAt: cur.finishedAt,
		Workers:    make([]WorkerState, 0, len(cur.order)),
	}
	for _, id := range cur.order {
		if st, ok := r.states.Load(id); ok {
			info.Workers = append(info.Workers, st)
		}
	}
	sort.SliceStable(info.Workers, func(i, j int) bool { return info.Workers[i].Number < info.Workers[j].Number })
	return info
}

func (r *Runner) emit(ev Event) bool {
	if r.coord == nil {
		if ev.done != nil {
			close(ev.done)
		}
		return false
	}
	return r.coord.publish(ev)
}

func (r *Runner) update(id points.Identity, fn func(*WorkerState)) WorkerState {
	st, _ := r.states.Compute(id, func(old WorkerState, loaded bool) (WorkerState, xsync.ComputeOp) {
		fn(&old)
		return old, xsync.UpdateOp
	})
	return st
}
