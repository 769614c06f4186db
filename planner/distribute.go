package planner

import (
	"context"
	"fmt"

	"github.com/vinayprograms/freightkit/allocator"
	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/splitter"
)

// Distribute and Even plans move cargo between named cities. Each transfer
// is a complete order of its own, so every remainder ships and nothing is
// deferred.

func (p *Planner) holdingsOf(ctx context.Context, cities []cargo.CityID) ([]cargo.Holding, error) {
	if p.holdings == nil {
		return nil, errors.Internal("planner has no holding query")
	}
	hs, err := p.holdings.Holdings(ctx, cities)
	if err != nil {
		return nil, errors.Wrap(err, "read holdings")
	}
	if len(hs) != len(cities) {
		return nil, errors.Internal(fmt.Sprintf("asked for %d cities, got %d", len(cities), len(hs)))
	}
	return hs, nil
}

// unique drops duplicates and skip, keeping first-seen order.
func unique(cities []cargo.CityID, skip cargo.CityID) []cargo.CityID {
	seen := map[cargo.CityID]bool{skip: true}
	var out []cargo.CityID
	for _, c := range cities {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (p *Planner) distribute(ctx context.Context, req Request) (*Plan, error) {
	dests := unique(req.Destinations, req.Source)
	if len(dests) == 0 {
		return nil, errors.InvalidInput("no destination other than the source")
	}
	hs, err := p.holdingsOf(ctx, append([]cargo.CityID{req.Source}, dests...))
	if err != nil {
		return nil, err
	}
	src := hs[0]
	each := req.mask(req.Amounts)

	var allocs []cargo.Allocation
	var requested, clipped cargo.Vector
	for _, h := range hs[1:] {
		give := each
		for _, k := range cargo.Kinds() {
			if room := h.Room(k); room >= 0 && give[k] > room {
				give[k] = room
			}
		}
		clipped = clipped.Add(each.Sub(give))
		if give.IsZero() {
			continue
		}
		allocs = append(allocs, cargo.Allocation{Source: src.City, Destination: h.City, Resource: give})
		requested = requested.Add(give)
	}
	if requested.IsZero() {
		return nil, errors.InvalidInput("nothing to send")
	}
	if err := allocator.Cover(requested, src.Available); err != nil {
		return nil, err
	}

	shipments, err := p.splitEach(allocs, req.ShipType)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Source:      src.City,
		Requested:   requested,
		Clipped:     clipped,
		Suppliers:   []cargo.Supplier{{City: src.City, Name: src.Name, Available: src.Available}},
		Allocations: allocs,
		Shipments:   shipments,
	}, nil
}

func (p *Planner) balance(ctx context.Context, req Request) (*Plan, error) {
	cities := unique(req.Cities, "")
	if len(cities) < 2 {
		return nil, errors.InvalidInput("even distribution needs at least two cities")
	}
	hs, err := p.holdingsOf(ctx, cities)
	if err != nil {
		return nil, err
	}

	allocs, err := allocator.Balance(req.Kind, hs)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s is already even across %d cities", req.Kind, len(hs)))
	}

	var requested cargo.Vector
	givers := make(map[cargo.CityID]bool)
	for _, a := range allocs {
		requested = requested.Add(a.Resource)
		givers[a.Source] = true
	}
	var suppliers []cargo.Supplier
	for _, h := range hs {
		if givers[h.City] {
			suppliers = append(suppliers, cargo.Supplier{City: h.City, Name: h.Name, Available: h.Available})
		}
	}

	shipments, err := p.splitEach(allocs, req.ShipType)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Requested:   requested,
		Suppliers:   suppliers,
		Allocations: allocs,
		Shipments:   shipments,
	}, nil
}

func (p *Planner) splitEach(allocs []cargo.Allocation, shipType cargo.ShipType) ([]cargo.Shipment, error) {
	var out []cargo.Shipment
	for _, a := range allocs {
		res, err := splitter.Split(a, shipType, true, splitter.WithMinFill(p.cfg.MinFill))
		if err != nil {
			return nil, err
		}
		out = append(out, res.Shipments...)
	}
	return out, nil
}
