package health

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor errors.
var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrNotStarted     = errors.New("monitor not started")
)

// Monitor periodically classifies every task and reports the ones that
// freeze. Each frozen episode is reported once; a task that recovers and
// freezes again is reported again.
type Monitor struct {
	tracker  *Tracker
	interval time.Duration

	mu       sync.Mutex
	frozenCB []func(TaskInfo)
	reported map[string]bool

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a monitor that checks every interval.
func NewMonitor(tracker *Tracker, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		tracker:  tracker,
		interval: interval,
		reported: make(map[string]bool),
	}
}

// OnFrozen registers a callback for newly frozen tasks.
func (m *Monitor) OnFrozen(cb func(TaskInfo)) {
	m.mu.Lock()
	m.frozenCB = append(m.frozenCB, cb)
	m.mu.Unlock()
}

// Start begins periodic checks.
func (m *Monitor) Start() error {
	if m.running.Swap(true) {
		return ErrAlreadyStarted
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run()
	return nil
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check classifies all tasks once and returns the newly frozen ones.
func (m *Monitor) Check() []TaskInfo {
	var fresh []TaskInfo

	m.mu.Lock()
	seen := make(map[string]bool)
	for _, info := range m.tracker.Snapshot() {
		seen[info.ID] = true
		if info.State != Frozen {
			delete(m.reported, info.ID)
			continue
		}
		if !m.reported[info.ID] {
			m.reported[info.ID] = true
			fresh = append(fresh, info)
		}
	}
	for id := range m.reported {
		if !seen[id] {
			delete(m.reported, id)
		}
	}
	callbacks := make([]func(TaskInfo), len(m.frozenCB))
	copy(callbacks, m.frozenCB)
	m.mu.Unlock()

	for _, info := range fresh {
		for _, cb := range callbacks {
			cb(info)
		}
	}
	return fresh
}

// Stop halts checks and waits for the loop to exit.
func (m *Monitor) Stop() error {
	if !m.running.Swap(false) {
		return ErrNotStarted
	}
	close(m.stopCh)
	<-m.doneCh
	return nil
}
