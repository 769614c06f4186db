package executor

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

// State is how an execution run ended.
type State string

const (
	StateCompleted State = "completed"
	StateBroken    State = "broken"
	StateCancelled State = "cancelled"
)

// Report accounts for every shipment of a plan after a run.
//
// A shipment interrupted by shutdown counts as not attempted even when
// some of its loads already left; Delivered and Vessels include them.
type Report struct {
	PlanID string
	State  State

	Planned      int
	Completed    int
	Failed       int
	NotAttempted int

	// FailedIndex is the zero-based index of the failed shipment, or -1.
	FailedIndex int

	Delivered cargo.Vector
	Vessels   int64

	Started  time.Time
	Duration time.Duration

	// Err is the error Run returned, if any.
	Err error
}

func newReport(planID string, planned int, started time.Time) *Report {
	return &Report{
		PlanID:      planID,
		Planned:     planned,
		FailedIndex: -1,
		Started:     started,
	}
}

// String renders a short summary. Broken runs include the failed shipment
// and a hint to plan again, since supplier stock may have moved.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d shipments completed, %d failed, %d not attempted",
		r.State, r.Completed, r.Planned, r.Failed, r.NotAttempted)
	if r.State == StateBroken && r.FailedIndex >= 0 {
		fmt.Fprintf(&b, "; shipment %d failed", r.FailedIndex+1)
		var broken *BrokenError
		if stderrors.As(r.Err, &broken) {
			fmt.Fprintf(&b, " (%s)", errors.Summary(broken.Cause))
		}
		b.WriteString("; run a new planning pass before retrying")
	}
	return b.String()
}

// BrokenError ends a run whose shipment could not be delivered within its
// retry budget, or was rejected outright.
type BrokenError struct {
	TaskID   string
	Index    int
	Shipment cargo.Shipment
	Attempts int
	Cause    error
}

func (e *BrokenError) Error() string {
	return fmt.Sprintf("task %s broken at shipment %d (%s) after %d attempts: %v",
		e.TaskID, e.Index+1, e.Shipment, e.Attempts, e.Cause)
}

// Code implements the errors package's coded-error contract.
func (e *BrokenError) Code() errors.ErrorCode {
	return errors.ErrCodeBroken
}

func (e *BrokenError) Unwrap() error {
	return e.Cause
}
