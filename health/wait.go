package health

import (
	"context"
	"time"
)

// Signal is the read side of a shutdown signal. shutdown.Signal
// implements it.
type Signal interface {
	Triggered() bool
	Done() <-chan struct{}
}

// Outcome is how a wait ended.
type Outcome int

const (
	// Completed means the full duration elapsed, or the condition held.
	Completed Outcome = iota

	// Cancelled means the shutdown signal or the context ended the wait.
	Cancelled

	// Expired means WaitUntil's bound passed with the condition still false.
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Wait blocks for d in poll-sized steps. Before blocking it marks the task
// WAITING, and it restores the previous state on return. Each step checks
// the signal, refreshes the heartbeat, then sleeps. A nil sig never fires.
//
// The returned error is non-nil only when ctx ends the wait.
func Wait(ctx context.Context, t *Tracker, sig Signal, taskID string, d, poll time.Duration) (Outcome, error) {
	out, err := WaitUntil(ctx, t, sig, taskID, d, poll, nil)
	if out == Expired {
		out = Completed
	}
	return out, err
}

// WaitUntil is Wait with an exit condition. cond runs after every poll; a
// true result ends the wait as Completed. When the bound passes first the
// outcome is Expired. A nil cond waits the full bound and reports Expired.
func WaitUntil(ctx context.Context, t *Tracker, sig Signal, taskID string, bound, poll time.Duration, cond func() bool) (Outcome, error) {
	if poll <= 0 {
		poll = time.Second
	}

	prior, err := t.State(taskID)
	if err != nil {
		return Cancelled, err
	}
	if err := t.SetState(taskID, Waiting); err != nil {
		return Cancelled, err
	}
	defer t.SetState(taskID, prior)

	var done <-chan struct{}
	if sig != nil {
		done = sig.Done()
	}

	start := time.Now()
	for {
		if sig != nil && sig.Triggered() {
			return Cancelled, nil
		}
		t.Heartbeat(taskID)

		if cond != nil && cond() {
			return Completed, nil
		}

		remaining := bound - time.Since(start)
		if remaining <= 0 {
			return Expired, nil
		}
		step := poll
		if remaining < step {
			step = remaining
		}

		timer := time.NewTimer(step)
		select {
		case <-timer.C:
		case <-done:
			timer.Stop()
			return Cancelled, nil
		case <-ctx.Done():
			timer.Stop()
			return Cancelled, ctx.Err()
		}
	}
}
