package health

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/freightkit/heartbeat"
	"github.com/vinayprograms/freightkit/logging"
)

// State is a task's health classification.
type State string

const (
	Waiting    State = "WAITING"
	Processing State = "PROCESSING"
	Paused     State = "PAUSED"
	Broken     State = "BROKEN"

	// Frozen is derived by Classify and never stored.
	Frozen State = "FROZEN"
)

// Explicit reports whether s may be set directly.
func (s State) Explicit() bool {
	switch s {
	case Waiting, Processing, Paused, Broken:
		return true
	default:
		return false
	}
}

// Healthy reports whether s counts as healthy in status summaries.
func (s State) Healthy() bool {
	return s == Waiting || s == Processing
}

// Common errors.
var (
	ErrDerivedState = errors.New("FROZEN is derived and cannot be set")
	ErrInvalidState = errors.New("invalid task state")
	ErrUnknownTask  = errors.New("unknown task")
	ErrDuplicate    = errors.New("task already registered")
)

// Derive classifies a task from its last explicit state and the time since
// it last showed any sign of life (state update or heartbeat). Only a task
// that claims to be PROCESSING can freeze; WAITING and PAUSED tasks never
// do, however long they stay quiet.
func Derive(last State, age, staleAfter time.Duration) State {
	if last == Processing && staleAfter > 0 && age > staleAfter {
		return Frozen
	}
	return last
}

// Config configures a Tracker.
type Config struct {
	// StaleAfter is the silence window after which a PROCESSING task is
	// classified FROZEN.
	StaleAfter time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale after must be positive")
	}
	return nil
}

type task struct {
	id        string
	name      string
	state     State
	status    string
	startedAt time.Time
	updatedAt time.Time
}

// TaskInfo is a point-in-time view of one task.
type TaskInfo struct {
	ID           string
	Name         string
	State        State // classified
	Explicit     State // last state set
	Status       string
	StartedAt    time.Time
	LastActivity time.Time
	Age          time.Duration
}

// Tracker holds the explicit state of every task in the process and
// classifies them against the heartbeat registry.
type Tracker struct {
	mu       sync.RWMutex
	tasks    map[string]*task
	registry *heartbeat.Registry
	cfg      Config
	logger   *logging.Logger
}

// NewTracker creates a tracker over reg. A nil registry gets a private one.
func NewTracker(cfg Config, reg *heartbeat.Registry, logger *logging.Logger) *Tracker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if reg == nil {
		reg = heartbeat.NewRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tracker{
		tasks:    make(map[string]*task),
		registry: reg,
		cfg:      cfg,
		logger:   logger.WithComponent("health"),
	}
}

// Registry returns the heartbeat registry the tracker reads.
func (t *Tracker) Registry() *heartbeat.Registry {
	return t.registry
}

// Register adds a task in PROCESSING and records a first beat.
func (t *Tracker) Register(id, name string) error {
	now := t.registry.Now()

	t.mu.Lock()
	if _, ok := t.tasks[id]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	t.tasks[id] = &task{
		id:        id,
		name:      name,
		state:     Processing,
		startedAt: now,
		updatedAt: now,
	}
	t.mu.Unlock()

	t.registry.Beat(id)
	return nil
}

// Remove forgets a task.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.tasks, id)
	t.mu.Unlock()
	t.registry.Remove(id)
}

// SetState records an explicit state. FROZEN is rejected.
func (t *Tracker) SetState(id string, s State) error {
	if s == Frozen {
		return ErrDerivedState
	}
	if !s.Explicit() {
		return fmt.Errorf("%w: %q", ErrInvalidState, s)
	}

	now := t.registry.Now()
	t.mu.Lock()
	tk, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	prev := tk.state
	tk.state = s
	tk.updatedAt = now
	t.mu.Unlock()

	if prev != s {
		t.logger.StateChange(id, string(prev), string(s))
	}
	return nil
}

// State returns the last explicit state.
func (t *Tracker) State(id string) (State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return tk.state, nil
}

// SetStatus sets the free-form progress message shown in reports.
func (t *Tracker) SetStatus(id, status string) {
	t.mu.Lock()
	if tk, ok := t.tasks[id]; ok {
		tk.status = status
	}
	t.mu.Unlock()
}

// Heartbeat records activity for a task.
func (t *Tracker) Heartbeat(id string) {
	t.registry.Beat(id)
}

// Classify returns the task's current health, deriving FROZEN when due.
func (t *Tracker) Classify(id string) (State, error) {
	info, err := t.Info(id)
	if err != nil {
		return "", err
	}
	return info.State, nil
}

// Info returns a classified view of one task.
func (t *Tracker) Info(id string) (TaskInfo, error) {
	t.mu.RLock()
	tk, ok := t.tasks[id]
	var snapshot task
	if ok {
		snapshot = *tk
	}
	t.mu.RUnlock()
	if !ok {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return t.info(snapshot), nil
}

func (t *Tracker) info(tk task) TaskInfo {
	last := tk.updatedAt
	if beat, ok := t.registry.Last(tk.id); ok && beat.After(last) {
		last = beat
	}
	age := t.registry.Now().Sub(last)
	return TaskInfo{
		ID:           tk.id,
		Name:         tk.name,
		State:        Derive(tk.state, age, t.cfg.StaleAfter),
		Explicit:     tk.state,
		Status:       tk.status,
		StartedAt:    tk.startedAt,
		LastActivity: last,
		Age:          age,
	}
}

// Describe returns classified state and status, for heartbeat mirroring.
func (t *Tracker) Describe(id string) (string, string) {
	info, err := t.Info(id)
	if err != nil {
		return "", ""
	}
	return string(info.State), info.Status
}

// Snapshot returns every task classified, sorted by ID.
func (t *Tracker) Snapshot() []TaskInfo {
	t.mu.RLock()
	tasks := make([]task, 0, len(t.tasks))
	for _, tk := range t.tasks {
		tasks = append(tasks, *tk)
	}
	t.mu.RUnlock()

	out := make([]TaskInfo, len(tasks))
	for i, tk := range tasks {
		out[i] = t.info(tk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
