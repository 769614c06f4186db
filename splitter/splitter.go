package splitter

import (
	"fmt"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

// DefaultMinFill is the fraction of a vessel a trailing partial load must
// reach before it ships from a non-final allocation.
const DefaultMinFill = 0.75

// Result is the output of splitting one or more allocations.
type Result struct {
	// Shipments in allocation order. An allocation whose only cargo is a
	// deferred remainder produces no shipment.
	Shipments []cargo.Shipment

	// Deferred holds remainder units held back by the min-fill rule.
	Deferred cargo.Vector
}

// Vessels returns the vessel count across all shipments.
func (r Result) Vessels() int64 {
	var n int64
	for _, s := range r.Shipments {
		n += s.Vessels
	}
	return n
}

type options struct {
	minFill float64
}

// Option configures splitting.
type Option func(*options)

// WithMinFill overrides DefaultMinFill. Values outside (0, 1] are rejected
// at split time.
func WithMinFill(f float64) Option {
	return func(o *options) {
		o.minFill = f
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{minFill: DefaultMinFill}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minFill <= 0 || o.minFill > 1 {
		return o, errors.InvalidInput(fmt.Sprintf("min fill %v outside (0, 1]", o.minFill))
	}
	return o, nil
}

// Split turns one allocation into at most one shipment. final marks the last
// allocation of the request, which always ships its remainder.
func Split(alloc cargo.Allocation, shipType cargo.ShipType, final bool, opts ...Option) (Result, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return Result{}, err
	}
	return split(alloc, shipType, final, o)
}

func split(alloc cargo.Allocation, shipType cargo.ShipType, final bool, o options) (Result, error) {
	if err := shipType.Validate(); err != nil {
		return Result{}, errors.InvalidInput(err.Error())
	}
	if !alloc.Resource.Valid() {
		return Result{}, errors.InvalidInput(fmt.Sprintf("allocation from %s has negative entries", alloc.Source))
	}

	total := alloc.Resource.Sum()
	if total == 0 {
		return Result{}, nil
	}

	full := total / shipType.Capacity
	remainder := total % shipType.Capacity

	resource := alloc.Resource
	var deferred cargo.Vector
	vessels := full

	switch {
	case remainder == 0:
	case final || float64(remainder) >= o.minFill*float64(shipType.Capacity):
		vessels++
	default:
		deferred = tail(resource, remainder)
		resource = resource.Sub(deferred)
	}

	res := Result{Deferred: deferred}
	if vessels > 0 {
		res.Shipments = []cargo.Shipment{{
			Source:      alloc.Source,
			Destination: alloc.Destination,
			Resource:    resource,
			Vessels:     vessels,
			ShipType:    shipType,
		}}
	}
	return res, nil
}

// tail takes n units from v starting at the last kind in canonical order.
func tail(v cargo.Vector, n int64) cargo.Vector {
	var out cargo.Vector
	for k := cargo.NumKinds - 1; k >= 0 && n > 0; k-- {
		take := v[k]
		if take > n {
			take = n
		}
		out[k] = take
		n -= take
	}
	return out
}

// SplitAll splits every allocation of one request in order. The last
// allocation gets the end-of-order exception.
func SplitAll(allocs []cargo.Allocation, shipType cargo.ShipType, opts ...Option) (Result, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return Result{}, err
	}

	var out Result
	for i, alloc := range allocs {
		r, err := split(alloc, shipType, i == len(allocs)-1, o)
		if err != nil {
			return Result{}, err
		}
		out.Shipments = append(out.Shipments, r.Shipments...)
		out.Deferred = out.Deferred.Add(r.Deferred)
	}
	return out, nil
}
