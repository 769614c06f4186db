package planner

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vinayprograms/freightkit/cargo"
)

// Plan is the output of one planning pass. It is never modified after it
// is handed to the review gate.
type Plan struct {
	ID       string
	Strategy Strategy
	ShipType cargo.ShipType

	// Destination and Mode are set for Consolidate, Source for
	// Distribute.
	Destination cargo.CityID
	Mode        Mode
	Source      cargo.CityID

	// Requested is what was allocated, after the free-space cap.
	Requested cargo.Vector

	// Clipped is what the free-space cap removed from the request.
	Clipped cargo.Vector

	// Suppliers is the snapshot in allocation order.
	Suppliers   []cargo.Supplier
	Allocations []cargo.Allocation
	Shipments   []cargo.Shipment

	// Deferred is cargo held back by the min-fill rule.
	Deferred cargo.Vector

	CreatedAt time.Time
}

// Planned returns the cargo the shipments carry.
func (p *Plan) Planned() cargo.Vector {
	var v cargo.Vector
	for _, s := range p.Shipments {
		v = v.Add(s.Resource)
	}
	return v
}

// Vessels returns the vessels needed across all shipments.
func (p *Plan) Vessels() int64 {
	var n int64
	for _, s := range p.Shipments {
		n += s.Vessels
	}
	return n
}

// KindTotal compares requested and planned amounts for one kind.
type KindTotal struct {
	Kind      cargo.Kind
	Requested int64
	Planned   int64
	Deferred  int64
}

// Totals returns one row per kind that was requested.
func (p *Plan) Totals() []KindTotal {
	planned := p.Planned()
	var out []KindTotal
	for _, k := range cargo.Kinds() {
		if p.Requested[k] == 0 {
			continue
		}
		out = append(out, KindTotal{
			Kind:      k,
			Requested: p.Requested[k],
			Planned:   planned[k],
			Deferred:  p.Deferred[k],
		})
	}
	return out
}

// Render writes the shipments and per-kind totals as tables.
func (p *Plan) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Plan %s: %d shipments, %d x %s, %s\n\n",
		p.ID, len(p.Shipments), p.Vessels(), p.ShipType.Name, p.headline())

	fmt.Fprintln(tw, "#\tFROM\tTO\tCARGO\tVESSELS")
	for i, s := range p.Shipments {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", i+1, s.Source, s.Destination, s.Resource, s.Vessels)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "KIND\tREQUESTED\tPLANNED\tDEFERRED")
	for _, t := range p.Totals() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", t.Kind, t.Requested, t.Planned, t.Deferred)
	}
	if !p.Clipped.IsZero() {
		fmt.Fprintf(tw, "\nclipped by destination storage: %s\n", p.Clipped)
	}
	return tw.Flush()
}

func (p *Plan) headline() string {
	switch p.Strategy {
	case Distribute:
		return fmt.Sprintf("distributing from %s", p.Source)
	case Even:
		return "evening out stock"
	default:
		return fmt.Sprintf("consolidating to %s", p.Destination)
	}
}
