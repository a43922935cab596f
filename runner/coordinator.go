package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
)

// subscriberBuffer events are queued per subscriber before new ones drop.
const subscriberBuffer = 256

// Coordinator is the single consumer of run events. It is the only writer
// of the point history and of progress records while runs are active.
type Coordinator struct {
	recorder *points.Recorder
	tracker  *progress.Tracker
	logger   *zap.Logger

	events chan Event
	stopMu sync.RWMutex
	closed bool
	done   chan struct{}

	subMu  sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewCoordinator(recorder *points.Recorder, tracker *progress.Tracker, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		recorder: recorder,
		tracker:  tracker,
		logger:   logger,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Event),
	}
}

// Start launches the event loop.
func (c *Coordinator) Start() {
	go c.loop()
}

// Close stops accepting events, drains the queue and closes subscribers.
func (c *Coordinator) Close() {
	c.stopMu.Lock()
	if c.closed {
		c.stopMu.Unlock()
		return
	}
	c.closed = true
	close(c.events)
	c.stopMu.Unlock()

	<-c.done
}

// publish queues ev. It reports false once the coordinator is closed.
func (c *Coordinator) publish(ev Event) bool {
	c.stopMu.RLock()
	defer c.stopMu.RUnlock()
	if c.closed {
		return false
	}
	c.events <- ev
	return true
}

// Do runs fn on the coordinator goroutine, serialized with event handling,
// and returns its error. It returns ErrCoordinatorClosed after Close.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	if !c.publish(Event{exec: func() { errc <- fn(context.Background()) }}) {
		return ErrCoordinatorClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordPoints records a reading outside a run.
func (c *Coordinator) RecordPoints(ctx context.Context, identity points.Identity, label, raw string) (bool, error) {
	if c.recorder == nil {
		return false, nil
	}
	var recorded bool
	err := c.Do(ctx, func(ctx context.Context) error {
		var err error
		recorded, err = c.recorder.Record(ctx, identity, label, raw)
		return err
	})
	return recorded, err
}

// ResetProgress deletes today's progress of the given identities.
func (c *Coordinator) ResetProgress(ctx context.Context, identities ...points.Identity) error {
	if c.tracker == nil {
		return nil
	}
	return c.Do(ctx, func(ctx context.Context) error {
		return c.tracker.Reset(ctx, identities...)
	})
}

// PruneProgress drops progress records from earlier days.
func (c *Coordinator) PruneProgress(ctx context.Context) (int, error) {
	if c.tracker == nil {
		return 0, nil
	}
	var removed int
	err := c.Do(ctx, func(ctx context.Context) error {
		var err error
		removed, err = c.tracker.Prune(ctx)
		return err
	})
	return removed, err
}

// Subscribe returns a channel receiving every event handled after the call,
// and a func that cancels the subscription. Slow subscribers miss events.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	defer c.closeSubscribers()

	for ev := range c.events {
		if ev.exec != nil {
			ev.exec()
			continue
		}
		c.handle(ev)
		c.broadcast(ev)
		if ev.done != nil {
			close(ev.done)
		}
	}
}

func (c *Coordinator) handle(ev Event) {
	ctx := context.Background()
	log := c.logger.With(zap.String("run_id", ev.RunID), zap.String("identity", string(ev.Identity)))

	switch ev.Type {
	case EventStarted:
		log.Info("worker started", zap.Int("number", ev.Number), zap.Int("target", ev.Target), zap.Int("completed", ev.Completed))

	case EventPoints:
		if c.recorder == nil {
			return
		}
		recorded, err := c.recorder.Record(ctx, ev.Identity, ev.Label, ev.Points)
		if err != nil {
			log.Error("failed to record points", zap.String("raw", ev.Points), zap.Error(err))
			return
		}
		log.Debug("points read", zap.String("raw", ev.Points), zap.Bool("recorded", recorded))

	case EventProgress:
		if c.tracker != nil {
			if err := c.tracker.Save(ctx, ev.Identity, ev.Completed, ev.Number); err != nil {
				log.Error("failed to save progress", zap.Error(err))
			}
		}
		log.Debug("search done", zap.Int("completed", ev.Completed), zap.Int("target", ev.Target), zap.String("query", ev.Query))

	case EventFinished:
		fields := []zap.Field{zap.String("status", string(ev.Status)), zap.Int("completed", ev.Completed), zap.Int("target", ev.Target)}
		if ev.Error != "" {
			log.Warn("worker finished", append(fields, zap.String("error", ev.Error))...)
			return
		}
		log.Info("worker finished", fields...)

	case EventRunFinished:
		log.Info("run finished")
	}
}

func (c *Coordinator) broadcast(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (c *Coordinator) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
}
