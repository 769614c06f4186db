package shutdown

import (
	"errors"
	"sync"
	"time"

	"github.com/vinayprograms/freightkit/health"
)

// Common errors.
var (
	// ErrShuttingDown indicates a task was registered after shutdown began.
	ErrShuttingDown = errors.New("shutdown in progress")

	// ErrDuplicateTask indicates a task ID is already registered.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrNotStarted indicates a task was stopped before it was started.
	ErrNotStarted = errors.New("task not started")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Signal is a process-wide, set-once shutdown flag with a grace deadline.
// Long waits poll it at their safe boundaries.
type Signal struct {
	once     sync.Once
	done     chan struct{}
	mu       sync.RWMutex
	deadline time.Time
}

// NewSignal creates an untriggered signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Trigger sets the signal. Only the first call has effect; it reports
// whether this call was the one that set it.
func (s *Signal) Trigger(deadline time.Time) bool {
	fired := false
	s.once.Do(func() {
		s.mu.Lock()
		s.deadline = deadline
		s.mu.Unlock()
		close(s.done)
		fired = true
	})
	return fired
}

// Triggered reports whether the signal is set.
func (s *Signal) Triggered() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Deadline returns the grace deadline, if the signal is set.
func (s *Signal) Deadline() (time.Time, bool) {
	if !s.Triggered() {
		return time.Time{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deadline, true
}

var _ health.Signal = (*Signal)(nil)

// Task is a unit of work the manager can stop.
type Task interface {
	// ID matches the task's ID in the health tracker.
	ID() string

	// RequestStop asks the task to finish at its next safe boundary.
	RequestStop() error

	// Kill ends the task without waiting for a safe boundary.
	Kill() error

	// Done is closed when the task has exited.
	Done() <-chan struct{}
}

// Classifier reports a task's health. *health.Tracker implements it.
type Classifier interface {
	Classify(taskID string) (health.State, error)
}

// Phase is the process-wide shutdown state.
type Phase int32

const (
	Running Phase = iota
	ShuttingDown
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Action is what the manager did to a task.
type Action string

const (
	// ActionExited means the task had already exited.
	ActionExited Action = "exited"

	// ActionKilled means the task was killed without a grace period.
	ActionKilled Action = "killed"

	// ActionStopped means the task stopped within its grace period.
	ActionStopped Action = "stopped"

	// ActionForced means the grace period ran out and the task was killed.
	ActionForced Action = "forced"
)

// TaskResult records how one task was shut down.
type TaskResult struct {
	ID       string
	State    health.State
	Action   Action
	Duration time.Duration
	Err      error
}

// Result is the outcome of a shutdown.
type Result struct {
	Started  time.Time
	Duration time.Duration
	Tasks    []TaskResult
}

// Forced returns the IDs of tasks killed after the grace period.
func (r *Result) Forced() []string {
	var ids []string
	for _, tr := range r.Tasks {
		if tr.Action == ActionForced {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}

// Failed returns the results whose stop or kill returned an error.
func (r *Result) Failed() []TaskResult {
	var failed []TaskResult
	for _, tr := range r.Tasks {
		if tr.Err != nil {
			failed = append(failed, tr)
		}
	}
	return failed
}

// Config configures the shutdown manager.
type Config struct {
	// GracePeriod is how long a PROCESSING task gets after a stop request.
	// Default: 120 seconds
	GracePeriod time.Duration

	// KillWait bounds how long to wait for a killed task to exit.
	// Default: 5 seconds
	KillWait time.Duration

	// OnProgress is called as each task is handled.
	OnProgress func(result TaskResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.GracePeriod < 0 || c.KillWait < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod: 120 * time.Second,
		KillWait:    5 * time.Second,
	}
}
