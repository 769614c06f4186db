package shutdown

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/health"
)

type staticClassifier map[string]health.State

func (c staticClassifier) Classify(id string) (health.State, error) {
	s, ok := c[id]
	if !ok {
		return "", errors.NotFound(id)
	}
	return s, nil
}

// stubbornTask ignores stop requests and only exits on Kill.
type stubbornTask struct {
	id      string
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
	killed  bool
}

func newStubborn(id string) *stubbornTask {
	return &stubbornTask{id: id, done: make(chan struct{})}
}

func (t *stubbornTask) ID() string { return t.id }

func (t *stubbornTask) RequestStop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (t *stubbornTask) Kill() error {
	t.mu.Lock()
	t.killed = true
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *stubbornTask) Done() <-chan struct{} { return t.done }

func (t *stubbornTask) flags() (stopped, killed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped, t.killed
}

func resultFor(t *testing.T, r *Result, id string) TaskResult {
	t.Helper()
	for _, tr := range r.Tasks {
		if tr.ID == id {
			return tr
		}
	}
	t.Fatalf("no result for %s", id)
	return TaskResult{}
}

// --- Signal ---

func TestSignalSetOnce(t *testing.T) {
	sig := NewSignal()
	if sig.Triggered() {
		t.Fatal("new signal already triggered")
	}
	if _, ok := sig.Deadline(); ok {
		t.Error("untriggered signal has a deadline")
	}

	first := time.Now().Add(time.Minute)
	if !sig.Trigger(first) {
		t.Error("first Trigger should report true")
	}
	if sig.Trigger(first.Add(time.Hour)) {
		t.Error("second Trigger should report false")
	}
	if d, ok := sig.Deadline(); !ok || !d.Equal(first) {
		t.Errorf("Deadline = %v, %v", d, ok)
	}

	select {
	case <-sig.Done():
	default:
		t.Error("Done not closed")
	}
}

// --- Manager ---

func TestShutdownByState(t *testing.T) {
	classifier := staticClassifier{
		"busy":    health.Processing,
		"waiting": health.Waiting,
		"paused":  health.Paused,
		"broken":  health.Broken,
	}
	mgr := NewManager(Config{GracePeriod: 2 * time.Second, KillWait: time.Second}, classifier, nil)

	busy := GoFunc(context.Background(), "busy", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	idle := map[string]*stubbornTask{
		"waiting": newStubborn("waiting"),
		"paused":  newStubborn("paused"),
		"broken":  newStubborn("broken"),
	}
	mgr.Register(busy)
	for _, task := range idle {
		mgr.Register(task)
	}

	start := time.Now()
	res := mgr.Shutdown()
	if time.Since(start) > time.Second {
		t.Errorf("shutdown took %v, expected prompt stop", time.Since(start))
	}

	if got := resultFor(t, res, "busy"); got.Action != ActionStopped || got.State != health.Processing {
		t.Errorf("busy = %+v", got)
	}
	for id, task := range idle {
		got := resultFor(t, res, id)
		if got.Action != ActionKilled {
			t.Errorf("%s action = %s, want killed", id, got.Action)
		}
		if stopped, killed := task.flags(); stopped || !killed {
			t.Errorf("%s stopped=%v killed=%v, want kill without stop request", id, stopped, killed)
		}
	}

	if mgr.Phase() != Terminated {
		t.Errorf("Phase = %s", mgr.Phase())
	}
	if !mgr.Signal().Triggered() {
		t.Error("signal not set")
	}
}

// signalledClassifier reports WAITING until the signal is raised and
// PROCESSING afterwards, the way a waiting task wakes on shutdown.
type signalledClassifier struct {
	sig *Signal
}

func (c *signalledClassifier) Classify(string) (health.State, error) {
	if c.sig != nil && c.sig.Triggered() {
		return health.Processing, nil
	}
	return health.Waiting, nil
}

func TestShutdownClassifiesBeforeSignal(t *testing.T) {
	for i := 0; i < 20; i++ {
		classifier := &signalledClassifier{}
		mgr := NewManager(Config{GracePeriod: 2 * time.Second, KillWait: time.Second}, classifier, nil)
		classifier.sig = mgr.Signal()
		task := newStubborn("waiting")
		mgr.Register(task)

		got := resultFor(t, mgr.Shutdown(), "waiting")
		if got.State != health.Waiting || got.Action != ActionKilled {
			t.Fatalf("run %d: state=%s action=%s, want WAITING killed", i, got.State, got.Action)
		}
		if stopped, _ := task.flags(); stopped {
			t.Fatalf("run %d: waiting task got a stop request", i)
		}
	}
}

func TestShutdownForcesAfterGrace(t *testing.T) {
	mgr := NewManager(Config{GracePeriod: 50 * time.Millisecond, KillWait: time.Second},
		staticClassifier{"stuck": health.Frozen}, nil)
	task := newStubborn("stuck")
	mgr.Register(task)

	res := mgr.Shutdown()
	got := resultFor(t, res, "stuck")
	if got.Action != ActionForced {
		t.Errorf("Action = %s, want forced", got.Action)
	}
	if got.Duration < 50*time.Millisecond {
		t.Errorf("killed before grace period: %v", got.Duration)
	}
	if stopped, killed := task.flags(); !stopped || !killed {
		t.Errorf("stopped=%v killed=%v", stopped, killed)
	}
	if forced := res.Forced(); len(forced) != 1 || forced[0] != "stuck" {
		t.Errorf("Forced = %v", forced)
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	mgr := NewManager(Config{OnProgress: func(TaskResult) {
		mu.Lock()
		calls++
		mu.Unlock()
	}}, nil, nil)

	done := GoFunc(context.Background(), "done", func(context.Context) error { return nil })
	<-done.Done()
	mgr.Register(done)

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = mgr.Shutdown()
		}(i)
	}
	wg.Wait()

	if results[0] != results[1] || results[1] != results[2] {
		t.Error("Shutdown returned different results")
	}
	if calls != 1 {
		t.Errorf("OnProgress calls = %d, want 1", calls)
	}
	if got := resultFor(t, results[0], "done"); got.Action != ActionExited {
		t.Errorf("Action = %s, want exited", got.Action)
	}
	if err := mgr.Register(newStubborn("late")); err != ErrShuttingDown {
		t.Errorf("late Register = %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil, nil)
	mgr.Register(newStubborn("a"))
	if err := mgr.Register(newStubborn("a")); err == nil {
		t.Error("expected duplicate error")
	}
	mgr.Unregister("a")
	if err := mgr.Register(newStubborn("a")); err != nil {
		t.Errorf("Register after Unregister: %v", err)
	}
}

func TestGuardRecoversPanic(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil, nil)
	err := mgr.Guard(func() error {
		panic("boom")
	})
	if !errors.Is(err, errors.ErrCodePanic) {
		t.Errorf("Guard = %v, want PANIC", err)
	}
	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("Guard did not run shutdown")
	}
	if mgr.Result() == nil {
		t.Error("Result nil after Done")
	}
}

func TestGuardNormalReturn(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil, nil)
	if mgr.Result() != nil {
		t.Error("Result before shutdown should be nil")
	}
	want := errors.InvalidInput("bad")
	if err := mgr.Guard(func() error { return want }); err != want {
		t.Errorf("Guard = %v", err)
	}
	if mgr.Phase() != Terminated {
		t.Errorf("Phase = %s", mgr.Phase())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default: %v", err)
	}
	cfg.GracePeriod = -time.Second
	if err := cfg.Validate(); err != ErrInvalidConfig {
		t.Errorf("negative grace: %v", err)
	}
}

// --- ProcessTask ---

func TestProcessTaskGracefulStop(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	task := NewProcessTask("child", exec.Command(path, "30"))
	if err := task.RequestStop(); err != ErrNotStarted {
		t.Errorf("RequestStop before Start = %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mgr := NewManager(Config{GracePeriod: 5 * time.Second}, staticClassifier{"child": health.Processing}, nil)
	mgr.Register(task)
	res := mgr.Shutdown()

	if got := resultFor(t, res, "child"); got.Action != ActionStopped {
		t.Errorf("Action = %s, want stopped (SIGTERM)", got.Action)
	}
	if task.Err() == nil {
		t.Error("expected signal exit error")
	}
}
