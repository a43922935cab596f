/*
Package runner drives one browser session per profile through a day's
searches and reports what happens.

PURPOSE:
  A run starts one worker per profile. Workers run concurrently, each
  owning exactly one Session. They never touch storage: every observation
  (points read, search completed, worker finished) becomes an Event on a
  single channel drained by the Coordinator, which records point readings
  and progress and fans events out to subscribers.

FLOW (per worker):
  1. Open a session (failure: status failed)
  2. Read points once
  3. Skip the run if today's progress already reaches the target
  4. For each remaining query:
       search (a failed search still counts)
       read points on first success and every 5th search
       emit progress
       wait WaitMin..WaitMax unless it was the last search
  5. Close the session

CANCELLATION:
  StopAll cancels the run context with ErrStopAll. StopWorker cancels one
  worker's context with ErrStopWorker. Both are observed between searches
  and during waits.

SEE ALSO:
  - runner/coordinator.go: The single writer
  - runner/browser: go-rod Browser
  - progress/progress.go: Daily progress
*/
package runner

import (
	"time"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// PROFILES & OPTIONS
// =============================================================================

// Profile is one browser profile, identified by its directory name.
type Profile struct {
	Identity    points.Identity
	Label       string
	Number      int
	UserDataDir string
}

// ProfilesFrom converts configured profiles.
func ProfilesFrom(cfg []config.Profile) []Profile {
	out := make([]Profile, len(cfg))
	for i, p := range cfg {
		out[i] = Profile{
			Identity:    points.Identity(p.Name),
			Label:       p.Label,
			Number:      p.Number,
			UserDataDir: p.UserDataDir,
		}
	}
	return out
}

type Options struct {
	SearchesPerProfile int
	WaitMin            time.Duration
	WaitMax            time.Duration
}

// OptionsFrom reads run options from the configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		SearchesPerProfile: cfg.SearchesPerProfile,
		WaitMin:            cfg.WaitMin,
		WaitMax:            cfg.WaitMax,
	}
}

// =============================================================================
// WORKER STATE
// =============================================================================

type Status string

const (
	StatusPending           Status = "pending"
	StatusRunning           Status = "running"
	StatusStopped           Status = "stopped"
	StatusStoppedIndividual Status = "stopped_individual"
	StatusCompleted         Status = "completed"
	StatusIncomplete        Status = "incomplete"
	StatusFailed            Status = "failed"
)

// Terminal reports whether a worker in this status has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusStopped, StatusStoppedIndividual, StatusCompleted, StatusIncomplete, StatusFailed:
		return true
	}
	return false
}

// WorkerState is the live view of one worker.
type WorkerState struct {
	Identity   points.Identity `json:"identity"`
	Label      string          `json:"label,omitempty"`
	Number     int             `json:"number"`
	Status     Status          `json:"status"`
	Completed  int             `json:"completed"`
	Target     int             `json:"target"`
	Points     string          `json:"points,omitempty"`
	LastQuery  string          `json:"last_query,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunInfo describes the current or most recent run.
type RunInfo struct {
	ID         string        `json:"id"`
	Running    bool          `json:"running"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Workers    []WorkerState `json:"workers"`
}

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventStarted     EventType = "started"
	EventPoints      EventType = "points"
	EventProgress    EventType = "progress"
	EventFinished    EventType = "finished"
	EventRunFinished EventType = "run_finished"
)

// Event is one observation from a run.
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Identity  points.Identity `json:"identity,omitempty"`
	Label     string          `json:"label,omitempty"`
	Number    int             `json:"number,omitempty"`
	Completed int             `json:"completed,omitempty"`
	Target    int             `json:"target,omitempty"`
	Query     string          `json:"query,omitempty"`
	Points    string          `json:"points,omitempty"`
	Status    Status          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`

	// done is closed by the coordinator once a run_finished event is handled.
	done chan struct{}
	// exec, when set, makes this a command run on the coordinator goroutine.
	exec func()
}
