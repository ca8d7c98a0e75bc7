package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrOverlapSkip = errors.New("task skipped: previous run still in flight")
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Africa/Lome"
	// DefaultTimeout bounds a job run when JobDef.Timeout is 0.
	DefaultTimeout time.Duration
}

// JobDef describes a recurring job. Exactly one of At (daily HH:MM) or Spec
// (cron expression, descriptor or interval) is set.
type JobDef struct {
	Name    string
	At      string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type StartResult struct {
	AlreadyRunning bool `json:"already_running"`
	Registered     int  `json:"registered"`
}

type StopResult struct {
	AlreadyStopped bool `json:"already_stopped"`
	// Drained is false when ctx expired before in-flight jobs returned.
	Drained bool          `json:"drained"`
	Took    time.Duration `json:"took"`
}

type JobInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
	InFlight bool      `json:"in_flight"`
}

type Status struct {
	Running   bool      `json:"running"`
	Timezone  string    `json:"timezone"`
	Jobs      []JobInfo `json:"jobs"`
	CheckedAt time.Time `json:"checked_at"`
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	RunID    string        `json:"run_id"`
	Job      string        `json:"job"`
	Trigger  string        `json:"trigger"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

const (
	EventStarted  = "task.started"
	EventFinished = "task.finished"
	EventFailed   = "task.failed"
	EventSkipped  = "task.skipped"
)

// RunState tracks whether a job is in flight.
type RunState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

func (s *RunState) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}
