package locks

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/logging"
)

// Common errors.
var (
	ErrNotHeld     = stderrors.New("lock not held")
	ErrInvalidName = stderrors.New("invalid lock name")
)

// Config configures a Manager.
type Config struct {
	// DefaultTimeout applies when Acquire is called with timeout <= 0.
	DefaultTimeout time.Duration

	// HoldWarning is the advisory hold threshold. A lock still held past it
	// is logged once. Zero disables the warning.
	HoldWarning time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		HoldWarning:    10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}
	if c.HoldWarning < 0 {
		return fmt.Errorf("hold warning must not be negative")
	}
	return nil
}

// TimeoutError is returned when a lock stays busy past the timeout. Holder
// and HeldFor describe the owner at the moment the wait gave up.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
	Holder  string
	HeldFor time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("lock %s: timed out after %s", e.Name, e.Timeout)
	}
	return fmt.Sprintf("lock %s: timed out after %s, held by %s for %s",
		e.Name, e.Timeout, e.Holder, e.HeldFor.Round(time.Millisecond))
}

// Code implements the errors package code lookup.
func (e *TimeoutError) Code() errors.ErrorCode {
	return errors.ErrCodeLockTimeout
}

// Info is a snapshot of a held lock's metadata.
type Info struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
	HeldFor    time.Duration
}

type entry struct {
	sem        chan struct{}
	holder     string
	acquiredAt time.Time
	warn       *time.Timer
}

// Manager hands out named in-process mutexes. One Manager is owned by the
// process and passed to every task that shares resources.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	logger  *logging.Logger
	nowFunc func() time.Time
}

// NewManager creates a lock manager. A nil logger discards output.
func NewManager(cfg Config, logger *logging.Logger) *Manager {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger.WithComponent("locks"),
		nowFunc: time.Now,
	}
}

func (m *Manager) entry(name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[name] = e
	}
	return e
}

// Acquire blocks until the named lock is free, the timeout passes or ctx is
// done. An empty holder is replaced by a generated ID.
func (m *Manager) Acquire(ctx context.Context, name, holder string, timeout time.Duration) (*Handle, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if holder == "" {
		holder = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	e := m.entry(name)

	select {
	case e.sem <- struct{}{}:
		return m.granted(e, name, holder, timeout), nil
	default:
	}

	if info, ok := m.Metadata(name); ok {
		m.logger.LockWait(name, holder, info.Holder)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return m.granted(e, name, holder, timeout), nil
	case <-timer.C:
		te := &TimeoutError{Name: name, Timeout: timeout}
		if info, ok := m.Metadata(name); ok {
			te.Holder = info.Holder
			te.HeldFor = info.HeldFor
		}
		return nil, te
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "acquire lock "+name)
	}
}

func (m *Manager) granted(e *entry, name, holder string, timeout time.Duration) *Handle {
	now := m.nowFunc()
	h := &Handle{
		name:       name,
		holder:     holder,
		acquiredAt: now,
		timeout:    timeout,
		manager:    m,
	}

	m.mu.Lock()
	e.holder = holder
	e.acquiredAt = now
	if m.cfg.HoldWarning > 0 {
		threshold := m.cfg.HoldWarning
		e.warn = time.AfterFunc(threshold, func() {
			if !h.released.Load() {
				m.logger.LockHeld(name, holder, m.nowFunc().Sub(now))
			}
		})
	}
	m.mu.Unlock()
	return h
}

// Release frees the lock behind h. Releasing twice returns ErrNotHeld.
func (m *Manager) Release(h *Handle) error {
	if h == nil || h.manager != m {
		return ErrNotHeld
	}
	if h.released.Swap(true) {
		return ErrNotHeld
	}

	m.mu.Lock()
	e := m.entries[h.name]
	if e.warn != nil {
		e.warn.Stop()
		e.warn = nil
	}
	e.holder = ""
	e.acquiredAt = time.Time{}
	m.mu.Unlock()

	<-e.sem
	return nil
}

// IsLocked reports whether the named lock is currently held.
func (m *Manager) IsLocked(name string) bool {
	m.mu.Lock()
	e, ok := m.entries[name]
	m.mu.Unlock()
	return ok && len(e.sem) == 1
}

// Metadata returns the holder of a held lock. The data is advisory.
func (m *Manager) Metadata(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok || e.holder == "" {
		return Info{}, false
	}
	return Info{
		Name:       name,
		Holder:     e.holder,
		AcquiredAt: e.acquiredAt,
		HeldFor:    m.nowFunc().Sub(e.acquiredAt),
	}, true
}

// List returns every held lock sorted by name.
func (m *Manager) List() []Info {
	m.mu.Lock()
	names := make([]string, 0, len(m.entries))
	for name, e := range m.entries {
		if e.holder != "" {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(names)
	out := make([]Info, 0, len(names))
	for _, name := range names {
		if info, ok := m.Metadata(name); ok {
			out = append(out, info)
		}
	}
	return out
}

// WithLock runs fn while holding the named lock. The lock is released on
// every exit path, including a panic in fn.
func (m *Manager) WithLock(ctx context.Context, name, holder string, timeout time.Duration, fn func(*Handle) error) error {
	h, err := m.Acquire(ctx, name, holder, timeout)
	if err != nil {
		return err
	}
	defer m.Release(h)
	return fn(h)
}

// Handle is proof of holding a named lock.
type Handle struct {
	name       string
	holder     string
	acquiredAt time.Time
	timeout    time.Duration
	manager    *Manager
	released   atomic.Bool
}

// Name returns the lock name.
func (h *Handle) Name() string { return h.name }

// Holder returns the holder identity.
func (h *Handle) Holder() string { return h.holder }

// AcquiredAt returns when the lock was granted.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Timeout returns the timeout used to acquire the lock.
func (h *Handle) Timeout() time.Duration { return h.timeout }

// Release frees the lock.
func (h *Handle) Release() error {
	return h.manager.Release(h)
}
