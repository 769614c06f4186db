package review

import (
	"context"

	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/logging"
	"github.com/vinayprograms/freightkit/planner"
)

// Planner runs planning passes. *planner.Planner implements it.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Plan, error)
}

// Prompter is the interactive side of the review loop.
type Prompter interface {
	// Request asks for the next order. previous is the last request, nil
	// on the first call; problem explains why it must be re-entered. ok is
	// false when the user backs out.
	Request(ctx context.Context, previous *planner.Request, problem error) (req planner.Request, ok bool, err error)

	// Review presents a proposed plan and returns the decision.
	Review(ctx context.Context, plan *planner.Plan) (Decision, error)
}

// Loop runs planning passes until a plan is accepted or the user cancels.
// A cancel returns a nil plan and a nil error. Input problems from the
// planner (insufficient stock, invalid amounts) send the user back to the
// request prompt; any other planning error ends the loop.
func Loop(ctx context.Context, p Planner, prompter Prompter, logger *logging.Logger) (*planner.Plan, error) {
	var previous *planner.Request
	var problem error

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "review")
		}

		req, ok, err := prompter.Request(ctx, previous, problem)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		previous = &req
		problem = nil

		plan, err := p.Plan(ctx, req)
		if err != nil {
			if recoverable(err) {
				problem = err
				continue
			}
			return nil, err
		}

		gate := NewGate(plan, logger)
		decision, err := prompter.Review(ctx, plan)
		if err != nil {
			return nil, err
		}
		if _, err := gate.Decide(decision); err != nil {
			return nil, err
		}

		switch gate.State() {
		case Accepted:
			return gate.Plan()
		case Editing:
			continue
		default:
			return nil, nil
		}
	}
}

func recoverable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInsufficient, errors.ErrCodeInvalidInput:
		return true
	default:
		return false
	}
}
