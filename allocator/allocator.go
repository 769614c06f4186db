// Package allocator assigns a requested resource vector to suppliers,
// closest first.
//
// Each resource kind is walked independently over the same supplier order.
// A supplier gives min(remaining, available) of that kind, and the scan for a
// kind stops as soon as nothing remains. Shortfall in any kind fails the
// whole request; no partial plan is ever returned.
//
//	requested {wood: 50000}
//	suppliers A(d=1, 30000) B(d=2, 40000)
//	          |
//	          v
//	A -> D wood=30000
//	B -> D wood=20000
package allocator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

// InsufficientError reports that suppliers cannot cover the request. Kind and
// Shortfall name the first short kind in canonical order; Shortfalls holds
// every kind's missing amount.
type InsufficientError struct {
	Kind       cargo.Kind
	Shortfall  int64
	Shortfalls cargo.Vector
}

func (e *InsufficientError) Error() string {
	var parts []string
	for _, k := range cargo.Kinds() {
		if n := e.Shortfalls[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s short by %d", k, n))
		}
	}
	return "insufficient resources: " + strings.Join(parts, ", ")
}

// Code implements the errors package code lookup.
func (e *InsufficientError) Code() errors.ErrorCode {
	return errors.ErrCodeInsufficient
}

// Cover returns an *InsufficientError when available falls short of
// requested in any kind, and nil otherwise.
func Cover(requested, available cargo.Vector) error {
	short := requested.Sub(available).Floor()
	if short.IsZero() {
		return nil
	}
	e := &InsufficientError{Shortfalls: short}
	for _, k := range cargo.Kinds() {
		if short[k] > 0 {
			e.Kind, e.Shortfall = k, short[k]
			break
		}
	}
	return e
}

// TieBreak orders two suppliers at equal distance. It returns true when a
// should come first.
type TieBreak func(a, b cargo.Supplier) bool

// ByCity breaks ties on city ID. It is the default.
func ByCity(a, b cargo.Supplier) bool {
	return a.City < b.City
}

type options struct {
	tieBreak TieBreak
}

// Option configures Allocate.
type Option func(*options)

// WithTieBreak replaces the secondary sort key.
func WithTieBreak(tb TieBreak) Option {
	return func(o *options) {
		o.tieBreak = tb
	}
}

// Order returns a copy of suppliers sorted by ascending distance with the
// tie-break applied. The input slice is not modified.
func Order(suppliers []cargo.Supplier, opts ...Option) []cargo.Supplier {
	o := options{tieBreak: ByCity}
	for _, opt := range opts {
		opt(&o)
	}
	ordered := make([]cargo.Supplier, len(suppliers))
	copy(ordered, suppliers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Distance != ordered[j].Distance {
			return ordered[i].Distance < ordered[j].Distance
		}
		return o.tieBreak(ordered[i], ordered[j])
	})
	return ordered
}

// Allocate splits requested across suppliers. Allocations come back in
// supplier order, one per supplier that contributes anything.
func Allocate(requested cargo.Vector, destination cargo.CityID, suppliers []cargo.Supplier, opts ...Option) ([]cargo.Allocation, error) {
	if !requested.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("requested vector has negative entries: %v", requested))
	}
	for _, s := range suppliers {
		if s.Distance < 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("supplier %s has negative distance", s.City))
		}
		if !s.Available.Valid() {
			return nil, errors.InvalidInput(fmt.Sprintf("supplier %s has negative stock", s.City))
		}
	}

	ordered := Order(suppliers, opts...)

	var total cargo.Vector
	for _, s := range ordered {
		total = total.Add(s.Available)
	}
	if err := Cover(requested, total); err != nil {
		return nil, err
	}

	contrib := make([]cargo.Vector, len(ordered))
	for _, k := range cargo.Kinds() {
		remaining := requested[k]
		for i := range ordered {
			if remaining == 0 {
				break
			}
			take := ordered[i].Available[k]
			if take > remaining {
				take = remaining
			}
			contrib[i][k] += take
			remaining -= take
		}
	}

	var out []cargo.Allocation
	for i, s := range ordered {
		if contrib[i].IsZero() {
			continue
		}
		out = append(out, cargo.Allocation{
			Source:      s.City,
			Destination: destination,
			Resource:    contrib[i],
		})
	}
	return out, nil
}
