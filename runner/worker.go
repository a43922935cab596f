package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/points-engine/points"
)

// work runs one profile to completion or cancellation.
func (r *Runner) work(ctx context.Context, runID string, p Profile, alreadyDone int) {
	target := r.opts.SearchesPerProfile
	log := r.logger.With(zap.String("run_id", runID), zap.String("identity", string(p.Identity)))

	base := Event{RunID: runID, Identity: p.Identity, Label: p.Label, Number: p.Number, Target: target}
	event := func(t EventType) Event {
		ev := base
		ev.Type = t
		ev.At = r.now()
		return ev
	}

	r.update(p.Identity, func(s *WorkerState) { s.Status = StatusRunning })
	started := event(EventStarted)
	started.Completed = alreadyDone
	r.emit(started)

	completed, err := r.search(ctx, log, p, alreadyDone, event)
	status := finalStatus(ctx, completed, target, err)
	if status != StatusFailed {
		err = nil
	}

	finishedAt := r.now()
	r.update(p.Identity, func(s *WorkerState) {
		s.Status = status
		s.Completed = completed
		s.FinishedAt = &finishedAt
		if err != nil {
			s.Error = err.Error()
		}
	})

	fin := event(EventFinished)
	fin.Status = status
	fin.Completed = completed
	if err != nil {
		fin.Error = err.Error()
	}
	r.emit(fin)
}

func (r *Runner) search(ctx context.Context, log *zap.Logger, p Profile, alreadyDone int, event func(EventType) Event) (int, error) {
	target := r.opts.SearchesPerProfile

	session, err := r.browser.Open(ctx, p)
	if err != nil {
		return alreadyDone, &WorkerError{Identity: p.Identity, Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("failed to close session", zap.Error(err))
		}
	}()

	r.readPoints(ctx, session, p.Identity, event)

	remaining := target - alreadyDone
	if remaining <= 0 {
		log.Info("target already reached today", zap.Int("completed", alreadyDone))
		return alreadyDone, nil
	}

	completed := alreadyDone
	seen := false
	queries := r.queries.Generate(remaining)
	for i, query := range queries {
		if ctx.Err() != nil {
			break
		}
		number := alreadyDone + i + 1

		if err := session.Search(ctx, query); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			log.Warn("search failed", zap.Int("number", number), zap.String("query", query), zap.Error(err))
		} else if !seen || number%pointsEvery == 0 {
			seen = r.readPoints(ctx, session, p.Identity, event) || seen
		}
		completed = number

		r.update(p.Identity, func(s *WorkerState) {
			s.Completed = completed
			s.LastQuery = query
		})
		ev := event(EventProgress)
		ev.Completed = completed
		ev.Query = query
		r.emit(ev)

		if number < target {
			if !sleep(ctx, r.queries.Wait(r.opts.WaitMin, r.opts.WaitMax)) {
				break
			}
		}
	}
	return completed, nil
}

// readPoints emits a points event when the page shows a value.
func (r *Runner) readPoints(ctx context.Context, session Session, id points.Identity, event func(EventType) Event) bool {
	raw, ok := session.ReadPoints(ctx)
	if !ok || !points.HasDigit(raw) {
		return false
	}
	r.update(id, func(s *WorkerState) { s.Points = raw })
	ev := event(EventPoints)
	ev.Points = raw
	r.emit(ev)
	return true
}

// sleep waits d unless ctx is cancelled first. It reports whether the full
// wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func finalStatus(ctx context.Context, completed, target int, err error) Status {
	cause := context.Cause(ctx)
	stopped := errors.Is(cause, ErrStopAll) || errors.Is(cause, ErrStopWorker)
	// Errors raised after a stop, such as a browser launch cut short, are
	// the stop itself.
	if err != nil && !stopped {
		return StatusFailed
	}
	if completed >= target {
		return StatusCompleted
	}
	switch {
	case errors.Is(cause, ErrStopWorker):
		return StatusStoppedIndividual
	case cause != nil:
		return StatusStopped
	}
	return StatusIncomplete
}
