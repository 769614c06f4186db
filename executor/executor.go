package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/freightkit/alerts"
	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/config"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/fleet"
	"github.com/vinayprograms/freightkit/health"
	"github.com/vinayprograms/freightkit/heartbeat"
	"github.com/vinayprograms/freightkit/locks"
	"github.com/vinayprograms/freightkit/logging"
	"github.com/vinayprograms/freightkit/planner"
	"github.com/vinayprograms/freightkit/shipping"
	"github.com/vinayprograms/freightkit/telemetry"
)

// Common errors.
var (
	ErrNoPlan = stderrors.New("no plan to execute")

	// errVesselsGone means the pool emptied between the wait and the lock.
	errVesselsGone = stderrors.New("vessels taken before lock")

	// errStopped means the shutdown signal was seen at a safe boundary.
	errStopped = stderrors.New("shutdown requested")
)

// Config configures an Executor.
type Config struct {
	// Account and TaskID label alerts, logs and the health entry.
	Account string
	TaskID  string

	Retry RetryBudget

	// LockTimeout bounds each attempt to take the ship-pool lock.
	LockTimeout time.Duration

	// VesselPoll is the step of the wait for free vessels.
	VesselPoll time.Duration

	// MaxVesselWait bounds one wait for free vessels.
	MaxVesselWait time.Duration

	// PollInterval is the step of the backoff waits.
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retry:         DefaultRetryBudget(),
		LockTimeout:   30 * time.Second,
		VesselPoll:    2 * time.Minute,
		MaxVesselWait: 2 * time.Hour,
		PollInterval:  5 * time.Second,
	}
}

// ConfigFrom builds an executor configuration from the loaded file.
func ConfigFrom(c *config.Config, taskID string) Config {
	return Config{
		Account: c.Account,
		TaskID:  taskID,
		Retry: RetryBudget{
			MaxAttempts: c.Retry.MaxAttempts,
			Backoff:     c.Retry.Schedule(),
		},
		LockTimeout:   c.Locks.DefaultTimeout.Duration,
		VesselPoll:    c.Fleet.VesselPoll.Duration,
		MaxVesselWait: c.Fleet.MaxVesselWait.Duration,
		PollInterval:  c.Health.PollInterval.Duration,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive")
	}
	if c.VesselPoll <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.MaxVesselWait <= 0 {
		return fmt.Errorf("max vessel wait must be positive")
	}
	return nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithSignal sets the shutdown signal checked at every safe boundary.
func WithSignal(sig health.Signal) Option {
	return func(e *Executor) { e.signal = sig }
}

// WithTracker shares a health tracker with the rest of the process.
func WithTracker(t *health.Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// WithAlerts sets where BROKEN runs and lock timeouts are reported.
func WithAlerts(r alerts.Reporter) Option {
	return func(e *Executor) { e.alerts = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithTracer overrides the global tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// Executor dispatches an accepted plan's shipments one at a time.
type Executor struct {
	cfg     Config
	locks   *locks.Manager
	pool    fleet.Pool
	service shipping.Service

	tracker *health.Tracker
	signal  health.Signal
	alerts  alerts.Reporter
	logger  *logging.Logger
	tracer  *telemetry.Tracer
	holder  string
	nowFunc func() time.Time
}

// New creates an executor. Every dispatch happens under lm's lock for the
// ship type's pool.
func New(cfg Config, lm *locks.Manager, pool fleet.Pool, svc shipping.Service, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	if lm == nil || pool == nil || svc == nil {
		return nil, errors.InvalidInput("executor needs a lock manager, a pool and a shipping service")
	}
	if cfg.TaskID == "" {
		cfg.TaskID = "execute-" + uuid.NewString()[:8]
	}

	e := &Executor{
		cfg:     cfg,
		locks:   lm,
		pool:    pool,
		service: svc,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	e.logger = e.logger.WithComponent("executor").WithTask(cfg.TaskID)
	if cfg.Account != "" {
		e.logger = e.logger.WithAccount(cfg.Account)
	}
	if e.tracker == nil {
		e.tracker = health.NewTracker(health.DefaultConfig(), heartbeat.NewRegistry(), e.logger)
	}
	if e.tracer == nil {
		e.tracer = telemetry.GetTracer()
	}
	e.holder = "executor:" + cfg.TaskID
	return e, nil
}

// TaskID returns the task the executor reports health under.
func (e *Executor) TaskID() string {
	return e.cfg.TaskID
}

// Run executes plan's shipments in order. The first shipment that fails
// for good stops the run: earlier shipments stay delivered, later ones are
// never attempted, the task is marked BROKEN and a *BrokenError is
// returned alongside the report.
//
// A shutdown signal seen between steps ends the run with StateCancelled
// and a nil error. A cancelled ctx does the same but returns its error.
// Completed and cancelled runs leave the tracker; broken ones stay.
func (e *Executor) Run(ctx context.Context, plan *planner.Plan) (report *Report, err error) {
	if plan == nil {
		return nil, ErrNoPlan
	}

	start := e.nowFunc()
	report = newReport(plan.ID, len(plan.Shipments), start)

	ctx, span := e.tracer.StartExecutionSpan(ctx, plan.ID, len(plan.Shipments))
	logger := e.logger
	if id := telemetry.TraceID(ctx); id != "" {
		logger = logger.WithTraceID(id)
	}
	defer func() {
		report.Duration = e.nowFunc().Sub(start)
		report.Err = err
		e.tracer.EndExecutionSpan(span, telemetry.ExecutionSpanOptions{
			State:        string(report.State),
			Completed:    report.Completed,
			Failed:       report.Failed,
			NotAttempted: report.NotAttempted,
		}, err)
		logger.ExecutionComplete(plan.ID, string(report.State),
			report.Completed, report.Failed, report.NotAttempted, report.Duration)
	}()

	e.enroll()
	defer func() {
		// Finished tasks leave the tracker so they never read as FROZEN.
		if report.State != StateBroken {
			e.tracker.Remove(e.cfg.TaskID)
		}
	}()

	for i, s := range plan.Shipments {
		if e.stopping(ctx) != nil {
			return e.cancel(ctx, report, i)
		}
		e.tracker.SetStatus(e.cfg.TaskID,
			fmt.Sprintf("shipment %d/%d %s -> %s", i+1, len(plan.Shipments), s.Source, s.Destination))

		out := e.ship(ctx, logger, i, s)
		report.Delivered = report.Delivered.Add(out.delivered)
		report.Vessels += out.vessels

		switch {
		case out.stopped:
			return e.cancel(ctx, report, i)
		case out.err != nil:
			return e.broken(ctx, report, i, s, out)
		}
		report.Completed++
	}

	report.State = StateCompleted
	return report, nil
}

// enroll registers the task with the tracker, or marks an existing entry
// PROCESSING.
func (e *Executor) enroll() {
	if err := e.tracker.Register(e.cfg.TaskID, "execute"); err != nil {
		e.tracker.SetState(e.cfg.TaskID, health.Processing)
	}
}

func (e *Executor) stopping(ctx context.Context) error {
	if e.signal != nil && e.signal.Triggered() {
		return errStopped
	}
	return ctx.Err()
}

func (e *Executor) cancel(ctx context.Context, report *Report, index int) (*Report, error) {
	report.State = StateCancelled
	report.NotAttempted = report.Planned - index
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "execute")
	}
	return report, nil
}

func (e *Executor) broken(ctx context.Context, report *Report, index int, s cargo.Shipment, out outcome) (*Report, error) {
	report.State = StateBroken
	report.Failed = 1
	report.FailedIndex = index
	report.NotAttempted = report.Planned - index - 1

	err := &BrokenError{
		TaskID:   e.cfg.TaskID,
		Index:    index,
		Shipment: s,
		Attempts: out.attempts,
		Cause:    out.err,
	}
	report.Err = err

	e.tracker.SetState(e.cfg.TaskID, health.Broken)
	e.tracker.SetStatus(e.cfg.TaskID, errors.Summary(out.err))
	e.raise(ctx, err, report.String())
	return report, err
}

// raise sends an alert. Delivery failures are logged, never returned.
func (e *Executor) raise(ctx context.Context, err error, detail string) {
	if e.alerts == nil {
		return
	}
	a := alerts.FromError(e.cfg.Account, e.cfg.TaskID, err, detail)
	if rerr := e.alerts.Report(context.WithoutCancel(ctx), a); rerr != nil {
		e.logger.Warn("alert delivery failed", map[string]interface{}{
			"code":  string(a.Code),
			"error": rerr.Error(),
		})
	}
}

// outcome is the result of shipping one planned shipment.
type outcome struct {
	delivered cargo.Vector
	vessels   int64
	attempts  int
	loads     int
	stopped   bool
	err       error
}

// ship moves one shipment, in several loads when the pool is short of
// vessels. Each shipment starts with a full retry budget.
func (e *Executor) ship(ctx context.Context, logger *logging.Logger, index int, s cargo.Shipment) (out outcome) {
	ctx, span := e.tracer.StartShipmentSpan(ctx, index, string(s.Source), string(s.Destination), s.Vessels)
	defer func() {
		e.tracer.EndShipmentSpan(span, telemetry.ShipmentSpanOptions{
			Attempts: out.attempts,
			Loads:    out.loads,
		}, out.err)
	}()

	logger.ShipmentStart(index, string(s.Source), string(s.Destination), s.Vessels)
	started := e.nowFunc()

	rest := s
	failures := 0
	for rest.Vessels > 0 {
		if e.stopping(ctx) != nil {
			out.stopped = true
			return out
		}

		err := e.load(ctx, &rest, &out)
		switch {
		case stderrors.Is(err, errVesselsGone):
			continue
		case err == nil:
			out.attempts++
			continue
		case stderrors.Is(err, errStopped) || ctx.Err() != nil:
			out.stopped = true
			return out
		}

		out.attempts++
		failures++
		if errors.CodeOf(err) == errors.ErrCodeLockTimeout {
			e.raise(ctx, err, fmt.Sprintf("shipment %d, attempt %d", index+1, failures))
		}
		if !retryable(err) || e.cfg.Retry.Exhausted(failures) {
			logger.ShipmentFailed(index, failures, err)
			out.err = err
			return out
		}

		backoff := e.cfg.Retry.Delay(failures)
		logger.ShipmentRetry(index, failures, backoff, err)
		telemetry.AddEvent(ctx, "retry",
			attribute.Int("retry.failures", failures),
			attribute.String("retry.code", string(errors.CodeOf(err))),
		)
		if backoff > 0 {
			res, werr := health.Wait(ctx, e.tracker, e.signal, e.cfg.TaskID, backoff, e.cfg.PollInterval)
			if res == health.Cancelled || werr != nil {
				out.stopped = true
				return out
			}
		}
	}

	logger.ShipmentDispatched(index, string(s.Source), string(s.Destination), s.Vessels, e.nowFunc().Sub(started))
	return out
}

// load dispatches as much of rest as the pool allows in one locked step.
// On success rest shrinks by the load that left.
func (e *Executor) load(ctx context.Context, rest *cargo.Shipment, out *outcome) error {
	if err := e.awaitVessels(ctx, rest.ShipType); err != nil {
		return err
	}

	return e.locks.WithLock(ctx, rest.ShipType.PoolName(), e.holder, e.cfg.LockTimeout, func(*locks.Handle) error {
		free, err := e.pool.Free(ctx, rest.ShipType)
		if err != nil {
			return err
		}
		if free <= 0 {
			return errVesselsGone
		}

		load, remaining := rest.Take(free)

		// The call is never interrupted once started.
		if err := e.service.Dispatch(context.WithoutCancel(ctx), shipping.RequestFor(load)); err != nil {
			return err
		}

		*rest = remaining
		out.delivered = out.delivered.Add(load.Resource)
		out.vessels += load.Vessels
		out.loads++
		telemetry.AddEvent(ctx, "load",
			attribute.Int64("load.vessels", load.Vessels),
			attribute.Int64("load.units", load.Units()),
		)
		return nil
	})
}

// awaitVessels returns once the pool reports free vessels. An empty pool
// starts a heartbeat-aware wait bounded by MaxVesselWait; running past the
// bound yields NO_VESSELS.
func (e *Executor) awaitVessels(ctx context.Context, shipType cargo.ShipType) error {
	var free int64
	var qerr error
	ready := func() bool {
		free, qerr = e.pool.Free(ctx, shipType)
		return qerr != nil || free > 0
	}
	if ready() {
		return qerr
	}

	e.logger.WaitStart("vessels:"+shipType.Name, e.cfg.MaxVesselWait)
	res, err := health.WaitUntil(ctx, e.tracker, e.signal, e.cfg.TaskID, e.cfg.MaxVesselWait, e.cfg.VesselPoll, ready)
	switch {
	case err != nil:
		return err
	case res == health.Cancelled:
		return errStopped
	case res == health.Expired:
		return errors.New(errors.ErrCodeNoVessels,
			fmt.Sprintf("no free %s vessels within %s", shipType.Name, e.cfg.MaxVesselWait),
			errors.WithTaskID(e.cfg.TaskID), errors.WithAccount(e.cfg.Account))
	}
	return qerr
}
