package review

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/logging"
	"github.com/vinayprograms/freightkit/planner"
)

// ErrAlreadyDecided is returned when a gate is decided twice.
var ErrAlreadyDecided = stderrors.New("plan already decided")

// State is a gate's position.
type State int

const (
	Proposed State = iota
	Accepted
	Editing
	Cancelled
)

func (s State) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Accepted:
		return "accepted"
	case Editing:
		return "editing"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Decision is the reviewer's answer to a proposed plan.
type Decision int

const (
	Accept Decision = iota
	Edit
	Cancel
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Edit:
		return "edit"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ParseDecision reads "a", "accept", "e", "edit", "c" or "cancel".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "accept", "y", "yes":
		return Accept, nil
	case "e", "edit":
		return Edit, nil
	case "c", "cancel", "n", "no":
		return Cancel, nil
	default:
		return Cancel, errors.InvalidInput(fmt.Sprintf("unknown decision %q", s))
	}
}

// Gate holds one proposed plan until it is accepted or discarded. Edit and
// Cancel drop the plan so a stale snapshot cannot reach the executor.
type Gate struct {
	mu     sync.Mutex
	plan   *planner.Plan
	planID string
	state  State
	logger *logging.Logger
}

// NewGate proposes plan. A gate over a nil plan can be edited or
// cancelled but not accepted.
func NewGate(plan *planner.Plan, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Discard()
	}
	var planID string
	if plan != nil {
		planID = plan.ID
	}
	return &Gate{
		plan:   plan,
		planID: planID,
		state:  Proposed,
		logger: logger.WithComponent("review"),
	}
}

// State returns the gate's state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Decide moves the gate out of Proposed. Accept returns the plan; Edit
// and Cancel return nil.
func (g *Gate) Decide(d Decision) (*planner.Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Proposed {
		return nil, ErrAlreadyDecided
	}

	switch d {
	case Accept:
		if g.plan == nil {
			return nil, errors.InvalidInput("no plan to accept")
		}
		g.state = Accepted
	case Edit:
		g.state = Editing
		g.plan = nil
	case Cancel:
		g.state = Cancelled
		g.plan = nil
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unknown decision %d", d))
	}
	g.logger.PlanDecision(g.planID, d.String())
	return g.plan, nil
}

// Plan returns the plan while it is proposed or accepted. A discarded plan
// yields PLAN_DISCARDED.
func (g *Gate) Plan() (*planner.Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.plan == nil {
		return nil, errors.New(errors.ErrCodePlanDiscarded,
			fmt.Sprintf("plan %s was %s", g.planID, g.state))
	}
	return g.plan, nil
}
