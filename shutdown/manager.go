package shutdown

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/health"
	"github.com/vinayprograms/freightkit/logging"
)

// Manager stops every registered task according to its health when the
// process exits. It runs at most once.
type Manager struct {
	config     Config
	classifier Classifier
	signal     *Signal
	logger     *logging.Logger
	nowFunc    func() time.Time

	mu    sync.Mutex
	tasks map[string]Task

	phase      atomic.Int32
	once       sync.Once
	done       chan struct{}
	result     *Result
	signalChan chan os.Signal
}

// NewManager creates a shutdown manager. classifier may be nil, in which
// case every task is treated as PROCESSING.
func NewManager(config Config, classifier Classifier, logger *logging.Logger) *Manager {
	def := DefaultConfig()
	if config.GracePeriod == 0 {
		config.GracePeriod = def.GracePeriod
	}
	if config.KillWait == 0 {
		config.KillWait = def.KillWait
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		config:     config,
		classifier: classifier,
		signal:     NewSignal(),
		logger:     logger.WithComponent("shutdown"),
		nowFunc:    time.Now,
		tasks:      make(map[string]Task),
		done:       make(chan struct{}),
		signalChan: make(chan os.Signal, 1),
	}
}

// Signal returns the shutdown signal that waits should observe.
func (m *Manager) Signal() *Signal {
	return m.signal
}

// Phase returns the current shutdown phase.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

// Register adds a task to be stopped at shutdown.
func (m *Manager) Register(t Task) error {
	if m.Phase() != Running {
		return ErrShuttingDown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID())
	}
	m.tasks[t.ID()] = t
	return nil
}

// Unregister drops a task that finished on its own.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
}

// Shutdown sets the signal and stops every task. The first call does the
// work; later calls wait for it and return the same result.
func (m *Manager) Shutdown() *Result {
	m.once.Do(func() {
		m.phase.Store(int32(ShuttingDown))
		start := m.nowFunc()
		deadline := start.Add(m.config.GracePeriod)

		m.mu.Lock()
		tasks := make([]Task, 0, len(m.tasks))
		for _, t := range m.tasks {
			tasks = append(tasks, t)
		}
		m.mu.Unlock()
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })

		// Classify before the signal goes out: a waiting task that sees it
		// resumes PROCESSING and would otherwise be handed a grace period.
		states := make([]health.State, len(tasks))
		for i, t := range tasks {
			states[i] = m.classify(t.ID())
		}

		m.signal.Trigger(deadline)
		signal.Stop(m.signalChan)

		m.logger.Info("shutdown_start", map[string]interface{}{
			"tasks": len(tasks),
			"grace": m.config.GracePeriod.String(),
		})

		results := make([]TaskResult, len(tasks))
		var wg sync.WaitGroup
		for i, t := range tasks {
			wg.Add(1)
			go func(idx int, t Task) {
				defer wg.Done()
				tr := m.stopTask(t, states[idx])
				results[idx] = tr
				m.logger.ShutdownAction(tr.ID, string(tr.State), string(tr.Action))
				if m.config.OnProgress != nil {
					m.config.OnProgress(tr)
				}
			}(i, t)
		}
		wg.Wait()

		m.result = &Result{
			Started:  start,
			Duration: m.nowFunc().Sub(start),
			Tasks:    results,
		}
		m.phase.Store(int32(Terminated))
		close(m.done)
	})

	<-m.done
	return m.result
}

func (m *Manager) classify(id string) health.State {
	if m.classifier == nil {
		return health.Processing
	}
	state, err := m.classifier.Classify(id)
	if err != nil {
		return health.Processing
	}
	return state
}

// stopTask applies the state-dependent policy: tasks that may be mid-write
// get a stop request and the grace period; tasks that are idle, paused or
// already broken are killed at once. state is the classification taken
// before the shutdown signal was raised.
func (m *Manager) stopTask(t Task, state health.State) TaskResult {
	start := time.Now()
	tr := TaskResult{ID: t.ID(), State: state}

	select {
	case <-t.Done():
		tr.Action = ActionExited
		tr.Duration = time.Since(start)
		return tr
	default:
	}

	switch tr.State {
	case health.Processing, health.Frozen:
		if err := t.RequestStop(); err != nil {
			tr.Err = err
		}
		grace := time.NewTimer(m.config.GracePeriod)
		defer grace.Stop()
		select {
		case <-t.Done():
			tr.Action = ActionStopped
		case <-grace.C:
			tr.Action = ActionForced
			if err := m.kill(t); err != nil && tr.Err == nil {
				tr.Err = err
			}
		}
	default:
		tr.Action = ActionKilled
		if err := m.kill(t); err != nil {
			tr.Err = err
		}
	}

	tr.Duration = time.Since(start)
	return tr
}

func (m *Manager) kill(t Task) error {
	if err := t.Kill(); err != nil {
		return err
	}
	wait := time.NewTimer(m.config.KillWait)
	defer wait.Stop()
	select {
	case <-t.Done():
		return nil
	case <-wait.C:
		return errors.New(errors.ErrCodeTimeout, "task did not exit after kill",
			errors.WithTaskID(t.ID()))
	}
}

// HandleSignals runs Shutdown on SIGTERM or SIGINT.
func (m *Manager) HandleSignals() {
	signal.Notify(m.signalChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-m.signalChan:
			m.logger.Warn("signal_received", map[string]interface{}{
				"signal": sig.String(),
			})
			m.Shutdown()
		case <-m.done:
		}
	}()
}

// Guard runs fn and then Shutdown, on a normal return or a panic. A panic
// is converted into an error.
func (m *Manager) Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			m.logger.Error("panic", map[string]interface{}{
				"error": err.Error(),
			})
		}
		m.Shutdown()
	}()
	return fn()
}

// Done is closed when shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Result returns the shutdown result, or nil before Done is closed.
func (m *Manager) Result() *Result {
	select {
	case <-m.done:
		return m.result
	default:
		return nil
	}
}
