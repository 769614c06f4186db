package executor

import (
	"fmt"
	"time"

	"github.com/vinayprograms/freightkit/errors"
)

// RetryBudget bounds how often one shipment may fail before the run is
// declared BROKEN. Each failure consumes one unit, whether it came from the
// shipping service, a busy pool lock or a vessel wait that ran out.
type RetryBudget struct {
	// MaxAttempts is the number of failures a shipment may absorb. The
	// failure that uses the last unit breaks the run.
	MaxAttempts int

	// Backoff is the pause after the nth failure. The last entry repeats
	// when there are more failures than entries.
	Backoff []time.Duration
}

// DefaultRetryBudget returns three attempts backing off 5s, 30s, 60s.
func DefaultRetryBudget() RetryBudget {
	return RetryBudget{
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

// Validate checks the budget.
func (b RetryBudget) Validate() error {
	if b.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	for i, d := range b.Backoff {
		if d < 0 {
			return fmt.Errorf("backoff[%d] is negative", i)
		}
	}
	return nil
}

// Delay returns the pause after the given number of failures.
func (b RetryBudget) Delay(failures int) time.Duration {
	if failures < 1 || len(b.Backoff) == 0 {
		return 0
	}
	if failures > len(b.Backoff) {
		failures = len(b.Backoff)
	}
	return b.Backoff[failures-1]
}

// Exhausted reports whether failures have used up the budget.
func (b RetryBudget) Exhausted(failures int) bool {
	return failures >= b.MaxAttempts
}

// retryable decides whether a failure may consume a unit of budget rather
// than break the run at once. Typed errors from other packages (lock
// timeouts) carry no category, so their code decides.
func retryable(err error) bool {
	if errors.IsRetryable(err) {
		return true
	}
	if errors.AsCoded(err) != nil {
		return false
	}
	code := errors.CodeOf(err)
	return code != "" && code.DefaultRetryable()
}
