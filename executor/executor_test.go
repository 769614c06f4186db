package executor

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/freightkit/alerts"
	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/config"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/fleet"
	"github.com/vinayprograms/freightkit/health"
	"github.com/vinayprograms/freightkit/heartbeat"
	"github.com/vinayprograms/freightkit/locks"
	"github.com/vinayprograms/freightkit/planner"
	"github.com/vinayprograms/freightkit/shipping"
	"github.com/vinayprograms/freightkit/shutdown"
)

const taskID = "exec-test"

func fastConfig() Config {
	return Config{
		Account:       "acct",
		TaskID:        taskID,
		Retry:         RetryBudget{MaxAttempts: 3, Backoff: []time.Duration{time.Millisecond}},
		LockTimeout:   20 * time.Millisecond,
		VesselPoll:    2 * time.Millisecond,
		MaxVesselWait: time.Second,
		PollInterval:  time.Millisecond,
	}
}

type fixture struct {
	sim      *shipping.Simulator
	lm       *locks.Manager
	pool     *fleet.MemoryPool
	tracker  *health.Tracker
	reporter *alerts.MemoryReporter
}

func newFixture(t *testing.T, vessels int64, travel time.Duration) *fixture {
	t.Helper()
	lm := locks.NewManager(locks.Config{DefaultTimeout: time.Second}, nil)
	pool := fleet.NewMemoryPool(lm)
	pool.SetFleet(cargo.Merchant, vessels)
	t.Cleanup(pool.Close)

	sim := shipping.NewSimulator(pool, travel)
	sim.AddCity(shipping.City{ID: "home", Name: "Home"})
	sim.AddCity(shipping.City{ID: "A", Name: "A", X: 1, Stock: cargo.Of(cargo.Primary, 10000)})
	sim.AddCity(shipping.City{ID: "B", Name: "B", X: 2, Stock: cargo.Of(cargo.Primary, 10000)})
	sim.AddCity(shipping.City{ID: "C", Name: "C", X: 3, Stock: cargo.Of(cargo.Primary, 10000)})

	return &fixture{
		sim:      sim,
		lm:       lm,
		pool:     pool,
		tracker:  health.NewTracker(health.DefaultConfig(), nil, nil),
		reporter: alerts.NewMemoryReporter(),
	}
}

func (f *fixture) executor(t *testing.T, cfg Config, pool fleet.Pool, opts ...Option) *Executor {
	t.Helper()
	if pool == nil {
		pool = f.pool
	}
	opts = append([]Option{WithTracker(f.tracker), WithAlerts(f.reporter)}, opts...)
	ex, err := New(cfg, f.lm, pool, f.sim, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex
}

func shipment(src cargo.CityID, units, vessels int64) cargo.Shipment {
	return cargo.Shipment{
		Source:      src,
		Destination: "home",
		Resource:    cargo.Of(cargo.Primary, units),
		Vessels:     vessels,
		ShipType:    cargo.Merchant,
	}
}

func threeShipments() *planner.Plan {
	return &planner.Plan{
		ID: "plan-1",
		Shipments: []cargo.Shipment{
			shipment("A", 1000, 2),
			shipment("B", 1000, 2),
			shipment("C", 1000, 2),
		},
	}
}

// emptyPool never has free vessels.
type emptyPool struct{}

func (emptyPool) Free(context.Context, cargo.ShipType) (int64, error) { return 0, nil }

func TestRunCompletes(t *testing.T) {
	f := newFixture(t, 10, 0)
	ex := f.executor(t, fastConfig(), nil)

	report, err := ex.Run(context.Background(), threeShipments())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateCompleted || report.Completed != 3 || report.Failed != 0 || report.NotAttempted != 0 {
		t.Errorf("report = %s", report)
	}
	if report.Delivered[cargo.Primary] != 3000 || report.Vessels != 6 {
		t.Errorf("Delivered = %v, Vessels = %d", report.Delivered, report.Vessels)
	}
	if report.FailedIndex != -1 {
		t.Errorf("FailedIndex = %d", report.FailedIndex)
	}

	sent := f.sim.Dispatched()
	if len(sent) != 3 {
		t.Fatalf("dispatched %d, want 3", len(sent))
	}
	for i, want := range []cargo.CityID{"A", "B", "C"} {
		if sent[i].Source != want {
			t.Errorf("dispatch %d from %s, want %s", i, sent[i].Source, want)
		}
	}
	if f.lm.IsLocked(cargo.Merchant.PoolName()) {
		t.Error("pool lock still held after run")
	}
	if _, err := f.tracker.State(taskID); !stderrors.Is(err, health.ErrUnknownTask) {
		t.Errorf("completed task still tracked: %v", err)
	}
	if len(f.reporter.Alerts()) != 0 {
		t.Errorf("unexpected alerts: %v", f.reporter.Alerts())
	}
}

func TestRunBrokenAfterRetryBudget(t *testing.T) {
	f := newFixture(t, 10, 0)
	ex := f.executor(t, fastConfig(), nil)

	transient := shipping.Transient("server busy", nil)
	f.sim.Script(nil, transient, transient, transient)

	report, err := ex.Run(context.Background(), threeShipments())

	var broken *BrokenError
	if !stderrors.As(err, &broken) {
		t.Fatalf("err = %v, want *BrokenError", err)
	}
	if broken.Index != 1 || broken.Attempts != 3 {
		t.Errorf("broken at %d after %d attempts", broken.Index, broken.Attempts)
	}
	if errors.CodeOf(err) != errors.ErrCodeBroken {
		t.Errorf("CodeOf = %s", errors.CodeOf(err))
	}

	if report.State != StateBroken {
		t.Errorf("State = %s", report.State)
	}
	if report.Completed != 1 || report.Failed != 1 || report.NotAttempted != 1 || report.FailedIndex != 1 {
		t.Errorf("report = %s", report)
	}
	if !strings.Contains(report.String(), "1 of 3 shipments completed, 1 failed, 1 not attempted") {
		t.Errorf("String = %q", report.String())
	}
	if !strings.Contains(report.String(), "UNAVAILABLE") {
		t.Errorf("String should name the cause: %q", report.String())
	}

	if n := len(f.sim.Dispatched()); n != 1 {
		t.Errorf("dispatched %d, shipment 3 must not run", n)
	}
	if f.sim.Calls() != 4 {
		t.Errorf("Calls = %d, want 4", f.sim.Calls())
	}
	if s, _ := f.tracker.State(taskID); s != health.Broken {
		t.Errorf("task state = %s, want BROKEN", s)
	}

	got := f.reporter.Alerts()
	if len(got) != 1 || got[0].Code != errors.ErrCodeBroken {
		t.Fatalf("alerts = %v", got)
	}
	if got[0].Account != "acct" || got[0].TaskID != taskID {
		t.Errorf("alert labels = %q/%q", got[0].Account, got[0].TaskID)
	}
	if lines := strings.Count(got[0].String(), "\n") + 1; lines > 2 {
		t.Errorf("alert has %d lines", lines)
	}
}

func TestTransientFailuresRecover(t *testing.T) {
	f := newFixture(t, 10, 0)
	ex := f.executor(t, fastConfig(), nil)

	transient := shipping.Transient("timeout", context.DeadlineExceeded)
	f.sim.Script(transient, transient)

	plan := &planner.Plan{ID: "p", Shipments: []cargo.Shipment{shipment("A", 500, 1)}}
	report, err := ex.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateCompleted || report.Completed != 1 {
		t.Errorf("report = %s", report)
	}
	if f.sim.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", f.sim.Calls())
	}
}

func TestPermanentFailureBreaksImmediately(t *testing.T) {
	f := newFixture(t, 10, 0)
	ex := f.executor(t, fastConfig(), nil)
	f.sim.Script(shipping.Permanent("city under blockade", nil))

	report, err := ex.Run(context.Background(), threeShipments())
	var broken *BrokenError
	if !stderrors.As(err, &broken) {
		t.Fatalf("err = %v", err)
	}
	if broken.Attempts != 1 || f.sim.Calls() != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 each", broken.Attempts, f.sim.Calls())
	}
	if errors.Code(broken.Cause) != errors.ErrCodeRejected {
		t.Errorf("cause = %v", broken.Cause)
	}
	if report.Completed != 0 || report.NotAttempted != 2 || report.FailedIndex != 0 {
		t.Errorf("report = %s", report)
	}
}

func TestChunkedLoads(t *testing.T) {
	f := newFixture(t, 3, 30*time.Millisecond)
	ex := f.executor(t, fastConfig(), nil)

	plan := &planner.Plan{ID: "p", Shipments: []cargo.Shipment{shipment("A", 2500, 5)}}
	report, err := ex.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateCompleted || report.Delivered[cargo.Primary] != 2500 {
		t.Errorf("report = %s, delivered %v", report, report.Delivered)
	}

	sent := f.sim.Dispatched()
	if len(sent) != 2 {
		t.Fatalf("loads = %d, want 2", len(sent))
	}
	if sent[0].Vessels != 3 || sent[0].Resource[cargo.Primary] != 1500 {
		t.Errorf("first load = %+v", sent[0])
	}
	if sent[1].Vessels != 2 || sent[1].Resource[cargo.Primary] != 1000 {
		t.Errorf("second load = %+v", sent[1])
	}
	if _, err := f.tracker.State(taskID); !stderrors.Is(err, health.ErrUnknownTask) {
		t.Errorf("completed task still tracked: %v", err)
	}
}

func TestVesselWaitExpiryConsumesBudget(t *testing.T) {
	f := newFixture(t, 10, 0)
	cfg := fastConfig()
	cfg.MaxVesselWait = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	ex := f.executor(t, cfg, emptyPool{})

	_, err := ex.Run(context.Background(), threeShipments())
	var broken *BrokenError
	if !stderrors.As(err, &broken) {
		t.Fatalf("err = %v", err)
	}
	if errors.CodeOf(broken.Cause) != errors.ErrCodeNoVessels {
		t.Errorf("cause = %v, want NO_VESSELS", broken.Cause)
	}
	if broken.Attempts != 2 {
		t.Errorf("Attempts = %d", broken.Attempts)
	}
	if f.sim.Calls() != 0 {
		t.Errorf("nothing should be dispatched, got %d calls", f.sim.Calls())
	}
}

func TestLockTimeoutConsumesBudget(t *testing.T) {
	f := newFixture(t, 10, 0)
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 2
	ex := f.executor(t, cfg, nil)

	h, err := f.lm.Acquire(context.Background(), cargo.Merchant.PoolName(), "other-task", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release()

	_, err = ex.Run(context.Background(), threeShipments())
	var broken *BrokenError
	if !stderrors.As(err, &broken) {
		t.Fatalf("err = %v", err)
	}
	if errors.CodeOf(broken.Cause) != errors.ErrCodeLockTimeout {
		t.Errorf("cause = %v, want LOCK_TIMEOUT", broken.Cause)
	}

	var lockAlerts, brokenAlerts int
	for _, a := range f.reporter.Alerts() {
		switch a.Code {
		case errors.ErrCodeLockTimeout:
			lockAlerts++
		case errors.ErrCodeBroken:
			brokenAlerts++
		}
	}
	if lockAlerts != 2 || brokenAlerts != 1 {
		t.Errorf("lock alerts = %d, broken alerts = %d", lockAlerts, brokenAlerts)
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	f := newFixture(t, 10, 0)
	sig := shutdown.NewSignal()
	sig.Trigger(time.Now().Add(time.Minute))
	ex := f.executor(t, fastConfig(), nil, WithSignal(sig))

	report, err := ex.Run(context.Background(), threeShipments())
	if err != nil {
		t.Fatalf("shutdown is not an error, got %v", err)
	}
	if report.State != StateCancelled || report.NotAttempted != 3 {
		t.Errorf("report = %s", report)
	}
	if f.sim.Calls() != 0 {
		t.Errorf("Calls = %d", f.sim.Calls())
	}
}

func TestShutdownDuringVesselWait(t *testing.T) {
	f := newFixture(t, 10, 0)
	sig := shutdown.NewSignal()
	cfg := fastConfig()
	cfg.MaxVesselWait = time.Hour
	ex := f.executor(t, cfg, emptyPool{}, WithSignal(sig))

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := ex.Run(context.Background(), threeShipments())
		done <- result{r, err}
	}()

	time.Sleep(30 * time.Millisecond)
	if s, _ := f.tracker.State(taskID); s != health.Waiting {
		t.Errorf("state during vessel wait = %s, want WAITING", s)
	}
	sig.Trigger(time.Now().Add(time.Minute))

	select {
	case res := <-done:
		if res.err != nil {
			t.Errorf("err = %v", res.err)
		}
		if res.report.State != StateCancelled || res.report.NotAttempted != 3 {
			t.Errorf("report = %s", res.report)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not observe shutdown")
	}
	if _, err := f.tracker.State(taskID); !stderrors.Is(err, health.ErrUnknownTask) {
		t.Errorf("cancelled task still tracked: %v", err)
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	f := newFixture(t, 10, 0)
	cfg := fastConfig()
	cfg.Retry.Backoff = []time.Duration{time.Hour}
	ex := f.executor(t, cfg, nil)
	f.sim.Script(shipping.Transient("busy", nil))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := ex.Run(ctx, threeShipments())
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Errorf("err = %v, want CANCELED", err)
	}
	if report.State != StateCancelled {
		t.Errorf("State = %s", report.State)
	}
}

func TestRunNilPlan(t *testing.T) {
	f := newFixture(t, 1, 0)
	ex := f.executor(t, fastConfig(), nil)
	if _, err := ex.Run(context.Background(), nil); err != ErrNoPlan {
		t.Errorf("err = %v", err)
	}
}

func TestRetryBudgetDelay(t *testing.T) {
	b := DefaultRetryBudget()
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 5 * time.Second},
		{2, 30 * time.Second},
		{3, 60 * time.Second},
		{7, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.failures); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
	if b.Exhausted(2) || !b.Exhausted(3) {
		t.Error("three failures should exhaust the default budget")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", shipping.Transient("x", nil), true},
		{"permanent", shipping.Permanent("x", nil), false},
		{"lock timeout", &locks.TimeoutError{Name: "ship-pool:merchant", Timeout: time.Second}, true},
		{"no vessels", errors.FromCode(errors.ErrCodeNoVessels), true},
		{"plain", stderrors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg := ConfigFrom(config.Default(), "t1")
	if err := cfg.Validate(); err != nil {
		t.Errorf("config from file defaults invalid: %v", err)
	}
	if cfg.TaskID != "t1" || cfg.Retry.MaxAttempts != 3 || cfg.MaxVesselWait != 2*time.Hour {
		t.Errorf("ConfigFrom = %+v", cfg)
	}

	bad := fastConfig()
	bad.Retry.MaxAttempts = 0
	if _, err := New(bad, locks.NewManager(locks.DefaultConfig(), nil), emptyPool{}, nil); err == nil {
		t.Error("expected error")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestFinishedRunNeverFreezes(t *testing.T) {
	tests := []struct {
		name   string
		script []error
		want   State
		// tracked is the classification expected once the task has been
		// silent past the staleness window, or "" when it is gone.
		tracked health.State
	}{
		{"completed", nil, StateCompleted, ""},
		{"broken", []error{shipping.Permanent("harbour closed", nil)}, StateBroken, health.Broken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, 0)
			clock := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
			reg := heartbeat.NewRegistry(heartbeat.WithClock(clock.Now))
			f.tracker = health.NewTracker(health.Config{StaleAfter: 10 * time.Minute}, reg, nil)
			f.sim.Script(tt.script...)
			ex := f.executor(t, fastConfig(), nil)

			plan := &planner.Plan{ID: "p", Shipments: []cargo.Shipment{shipment("A", 500, 1)}}
			report, _ := ex.Run(context.Background(), plan)
			if report.State != tt.want {
				t.Fatalf("report = %s", report)
			}

			clock.Advance(11 * time.Minute)
			state, err := f.tracker.Classify(taskID)
			switch {
			case tt.tracked == "" && !stderrors.Is(err, health.ErrUnknownTask):
				t.Errorf("Classify = %s, %v, want the task gone", state, err)
			case tt.tracked != "" && state != tt.tracked:
				t.Errorf("Classify = %s, %v, want %s", state, err, tt.tracked)
			}
			if frozen := health.NewMonitor(f.tracker, time.Minute).Check(); len(frozen) != 0 {
				t.Errorf("monitor reported frozen tasks: %+v", frozen)
			}
		})
	}
}

// vanishingPool reports the given free counts in turn, then repeats the
// last one.
type vanishingPool struct {
	mu    sync.Mutex
	frees []int64
}

func (p *vanishingPool) Free(context.Context, cargo.ShipType) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.frees[0]
	if len(p.frees) > 1 {
		p.frees = p.frees[1:]
	}
	return n, nil
}

func TestVanishedVesselsAreNotAttempts(t *testing.T) {
	f := newFixture(t, 10, 0)
	f.sim.Script(shipping.Permanent("city under blockade", nil))
	// Free before the lock, gone under it, then free again.
	pool := &vanishingPool{frees: []int64{5, 0, 5}}
	ex := f.executor(t, fastConfig(), pool)

	plan := &planner.Plan{ID: "p", Shipments: []cargo.Shipment{shipment("A", 1000, 2)}}
	_, err := ex.Run(context.Background(), plan)
	var broken *BrokenError
	if !stderrors.As(err, &broken) {
		t.Fatalf("err = %v", err)
	}
	if broken.Attempts != 1 || f.sim.Calls() != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 each", broken.Attempts, f.sim.Calls())
	}
}
