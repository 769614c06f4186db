package heartbeat

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/freightkit/bus"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNotStarted     = errors.New("heartbeat not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// SubjectPrefix is the subject prefix for heartbeat messages.
const SubjectPrefix = "heartbeat."

// Heartbeat is the mirrored form of one task's liveness.
type Heartbeat struct {
	// Account owns the process the task runs in.
	Account string `json:"account"`

	// TaskID identifies the task.
	TaskID string `json:"task_id"`

	// Timestamp is the task's last beat, not the publish time.
	Timestamp time.Time `json:"timestamp"`

	// State is the classified health (WAITING, PROCESSING, ...).
	State string `json:"state,omitempty"`

	// Status is the task's free-form progress message.
	Status string `json:"status,omitempty"`

	// Metadata contains additional key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Marshal serializes a heartbeat to JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal deserializes a heartbeat from JSON.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Subject returns heartbeat.<account>.<task>.
func (h *Heartbeat) Subject() string {
	return Subject(h.Account, h.TaskID)
}

// Subject builds the heartbeat subject for a task.
func Subject(account, taskID string) string {
	return SubjectPrefix + bus.Token(account) + "." + bus.Token(taskID)
}

// AccountSubject is the wildcard covering every task of an account.
func AccountSubject(account string) string {
	return SubjectPrefix + bus.Token(account) + ".*"
}

// taskFromSubject recovers the task token from a heartbeat subject.
func taskFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// Registry holds the last beat of every task in the process.
type Registry struct {
	mu      sync.RWMutex
	last    map[string]time.Time
	nowFunc func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		last:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's clock reading.
func (r *Registry) Now() time.Time {
	return r.nowFunc()
}

// Beat records activity for a task and returns the recorded time.
func (r *Registry) Beat(taskID string) time.Time {
	now := r.nowFunc()
	r.mu.Lock()
	r.last[taskID] = now
	r.mu.Unlock()
	return now
}

// Last returns the task's last beat.
func (r *Registry) Last(taskID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.last[taskID]
	return t, ok
}

// Age returns how long ago the task last beat. Unknown tasks report false.
func (r *Registry) Age(taskID string) (time.Duration, bool) {
	last, ok := r.Last(taskID)
	if !ok {
		return 0, false
	}
	return r.nowFunc().Sub(last), true
}

// Remove forgets a task.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	delete(r.last, taskID)
	r.mu.Unlock()
}

// Tasks returns the known task IDs in sorted order.
func (r *Registry) Tasks() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.last))
	for id := range r.last {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
