package heartbeat

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/freightkit/bus"
)

// WatcherConfig configures a heartbeat watcher.
type WatcherConfig struct {
	// Bus is the message bus for subscribing to heartbeats.
	Bus bus.MessageBus

	// Account selects whose tasks to follow. Empty follows every account.
	Account string

	// Timeout after which a silent task is reported.
	// Default: 10 minutes
	Timeout time.Duration

	// CheckInterval for the silence checker.
	// Default: 30 seconds
	CheckInterval time.Duration
}

// Validate checks the configuration.
func (c *WatcherConfig) Validate() error {
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultWatcherConfig returns configuration with sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Timeout:       10 * time.Minute,
		CheckInterval: 30 * time.Second,
	}
}

// Watcher follows mirrored heartbeats from outside the engine process and
// reports tasks that go silent. It only sees what a Publisher sends, so a
// silent task may equally be a dead process.
type Watcher struct {
	bus           bus.MessageBus
	subject       string
	timeout       time.Duration
	checkInterval time.Duration
	nowFunc       func() time.Time

	mu       sync.RWMutex
	lastSeen map[string]*Heartbeat
	silentCB []func(*Heartbeat)
	reported map[string]bool

	running atomic.Bool
	sub     bus.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := DefaultWatcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}

	subject := SubjectPrefix + ">"
	if cfg.Account != "" {
		subject = AccountSubject(cfg.Account)
	}

	return &Watcher{
		bus:           cfg.Bus,
		subject:       subject,
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		nowFunc:       time.Now,
		lastSeen:      make(map[string]*Heartbeat),
		reported:      make(map[string]bool),
	}, nil
}

// Start subscribes and begins checking for silence.
func (w *Watcher) Start() error {
	if w.running.Swap(true) {
		return ErrAlreadyStarted
	}
	sub, err := w.bus.Subscribe(w.subject)
	if err != nil {
		w.running.Store(false)
		return err
	}
	w.sub = sub
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case msg, ok := <-w.sub.Messages():
			if !ok {
				return
			}
			w.receive(msg)
		case <-ticker.C:
			w.CheckSilent()
		}
	}
}

func (w *Watcher) receive(msg *bus.Message) {
	hb, err := Unmarshal(msg.Data)
	if err != nil {
		return
	}
	if hb.TaskID == "" {
		hb.TaskID = taskFromSubject(msg.Subject)
	}
	if hb.TaskID == "" {
		return
	}
	w.Record(hb)
}

// Record stores a heartbeat as if it arrived on the bus. A newer beat
// clears an earlier silence report.
func (w *Watcher) Record(hb *Heartbeat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.lastSeen[hb.TaskID]; ok && prev.Timestamp.After(hb.Timestamp) {
		return
	}
	if prev, ok := w.lastSeen[hb.TaskID]; !ok || hb.Timestamp.After(prev.Timestamp) {
		delete(w.reported, hb.TaskID)
	}
	w.lastSeen[hb.TaskID] = hb
}

// OnSilent registers a callback for tasks silent past the timeout. It
// fires once per silent episode.
func (w *Watcher) OnSilent(cb func(*Heartbeat)) {
	w.mu.Lock()
	w.silentCB = append(w.silentCB, cb)
	w.mu.Unlock()
}

// CheckSilent runs one silence check.
func (w *Watcher) CheckSilent() {
	now := w.nowFunc()
	var silent []*Heartbeat

	w.mu.Lock()
	for id, hb := range w.lastSeen {
		if now.Sub(hb.Timestamp) > w.timeout && !w.reported[id] {
			w.reported[id] = true
			silent = append(silent, hb)
		}
	}
	callbacks := make([]func(*Heartbeat), len(w.silentCB))
	copy(callbacks, w.silentCB)
	w.mu.Unlock()

	sort.Slice(silent, func(i, j int) bool { return silent[i].TaskID < silent[j].TaskID })
	for _, hb := range silent {
		for _, cb := range callbacks {
			cb(hb)
		}
	}
}

// Last returns the newest heartbeat seen for a task.
func (w *Watcher) Last(taskID string) *Heartbeat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSeen[taskID]
}

// Snapshot returns every known task's latest heartbeat sorted by task.
func (w *Watcher) Snapshot() []*Heartbeat {
	w.mu.RLock()
	out := make([]*Heartbeat, 0, len(w.lastSeen))
	for _, hb := range w.lastSeen {
		out = append(out, hb)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Stop unsubscribes and waits for the loop to exit.
func (w *Watcher) Stop() error {
	if !w.running.Swap(false) {
		return ErrNotStarted
	}
	close(w.stopCh)
	<-w.doneCh
	return w.sub.Unsubscribe()
}
