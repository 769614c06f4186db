package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/freightkit/allocator"
	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/logging"
	"github.com/vinayprograms/freightkit/shipping"
	"github.com/vinayprograms/freightkit/splitter"
	"github.com/vinayprograms/freightkit/telemetry"
)

// Mode selects how a request's amounts are read.
type Mode int

const (
	// Send moves exactly the requested amount of each kind.
	Send Mode = iota

	// Keep leaves the given reserve of each kind in every supplier and
	// moves the surplus.
	Keep
)

func (m Mode) String() string {
	switch m {
	case Send:
		return "send"
	case Keep:
		return "keep"
	default:
		return "unknown"
	}
}

// ParseMode parses "send" or "keep".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send":
		return Send, nil
	case "keep":
		return Keep, nil
	default:
		return Send, errors.InvalidInput(fmt.Sprintf("unknown mode %q", s))
	}
}

// Strategy selects the shape of a plan.
type Strategy int

const (
	// Consolidate gathers cargo from every other city into Destination.
	Consolidate Strategy = iota

	// Distribute sends Amounts from Source to each of Destinations.
	Distribute

	// Even balances one kind across Cities.
	Even
)

func (s Strategy) String() string {
	switch s {
	case Consolidate:
		return "consolidate"
	case Distribute:
		return "distribute"
	case Even:
		return "even"
	default:
		return "unknown"
	}
}

// ParseStrategy parses "consolidate", "distribute" or "even".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consolidate", "":
		return Consolidate, nil
	case "distribute":
		return Distribute, nil
	case "even":
		return Even, nil
	default:
		return Consolidate, errors.InvalidInput(fmt.Sprintf("unknown strategy %q", s))
	}
}

// Request is one shipping order.
type Request struct {
	Strategy Strategy
	ShipType cargo.ShipType

	// Destination and Mode apply to Consolidate.
	Destination cargo.CityID
	Mode        Mode

	// Source and Destinations apply to Distribute.
	Source       cargo.CityID
	Destinations []cargo.CityID

	// Cities and Kind apply to Even.
	Cities []cargo.CityID
	Kind   cargo.Kind

	// Amounts is the quantity per kind for Send, the per-supplier reserve
	// for Keep, or the quantity each destination receives for Distribute.
	Amounts cargo.Vector

	// Ignore lists kinds not to move at all.
	Ignore []cargo.Kind
}

// Validate checks the request before any query is made.
func (r Request) Validate() error {
	if err := r.ShipType.Validate(); err != nil {
		return errors.InvalidInput(err.Error())
	}
	if !r.Amounts.Valid() {
		return errors.InvalidInput(fmt.Sprintf("negative amount in %v", r.Amounts))
	}
	switch r.Strategy {
	case Consolidate:
		if r.Destination == "" {
			return errors.InvalidInput("no destination")
		}
		if r.Mode != Send && r.Mode != Keep {
			return errors.InvalidInput(fmt.Sprintf("unknown mode %d", r.Mode))
		}
	case Distribute:
		if r.Source == "" {
			return errors.InvalidInput("no source")
		}
		if len(r.Destinations) == 0 {
			return errors.InvalidInput("no destinations")
		}
	case Even:
		if len(r.Cities) < 2 {
			return errors.InvalidInput("even distribution needs at least two cities")
		}
		if !r.Kind.Valid() {
			return errors.InvalidInput(fmt.Sprintf("unknown kind %d", r.Kind))
		}
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown strategy %d", r.Strategy))
	}
	return nil
}

// target names what the plan is about, for logs and spans.
func (r Request) target() string {
	switch r.Strategy {
	case Distribute:
		return string(r.Source)
	case Even:
		return r.Kind.String()
	default:
		return string(r.Destination)
	}
}

func (r Request) label() string {
	if r.Strategy == Consolidate {
		return r.Mode.String()
	}
	return r.Strategy.String()
}

// mask zeroes ignored kinds in v.
func (r Request) mask(v cargo.Vector) cargo.Vector {
	for _, k := range r.Ignore {
		if k.Valid() {
			v[k] = 0
		}
	}
	return v
}

func (r Request) ignored(k cargo.Kind) bool {
	for _, i := range r.Ignore {
		if i == k {
			return true
		}
	}
	return false
}

// Config tunes planning.
type Config struct {
	MinFill  float64
	TieBreak allocator.TieBreak
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinFill:  splitter.DefaultMinFill,
		TieBreak: allocator.ByCity,
	}
}

// Planner runs planning passes: snapshot suppliers, allocate, split.
type Planner struct {
	suppliers shipping.SupplierQuery
	storage   shipping.StorageQuery
	holdings  shipping.HoldingQuery
	cfg       Config
	logger    *logging.Logger
	tracer    *telemetry.Tracer
	nowFunc   func() time.Time
}

// New creates a planner. storage may be nil, in which case requests are
// never capped by destination space. When suppliers also implements
// shipping.HoldingQuery it serves the Distribute and Even strategies.
func New(suppliers shipping.SupplierQuery, storage shipping.StorageQuery, cfg Config, logger *logging.Logger) *Planner {
	if cfg.MinFill == 0 {
		cfg.MinFill = splitter.DefaultMinFill
	}
	if cfg.TieBreak == nil {
		cfg.TieBreak = allocator.ByCity
	}
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Planner{
		suppliers: suppliers,
		storage:   storage,
		cfg:       cfg,
		logger:    logger.WithComponent("planner"),
		tracer:    telemetry.GetTracer(),
		nowFunc:   time.Now,
	}
	if hq, ok := suppliers.(shipping.HoldingQuery); ok {
		p.holdings = hq
	}
	return p
}

// SetHoldingQuery sets the query used by Distribute and Even.
func (p *Planner) SetHoldingQuery(q shipping.HoldingQuery) {
	p.holdings = q
}

// SetTracer overrides the global tracer.
func (p *Planner) SetTracer(t *telemetry.Tracer) {
	p.tracer = t
}

// Plan runs one planning pass. Every call takes a fresh snapshot; nothing
// is reused between passes.
func (p *Planner) Plan(ctx context.Context, req Request) (plan *Plan, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.StartPlanSpan(ctx, req.target(), req.label())
	defer func() {
		opts := telemetry.PlanSpanOptions{}
		if plan != nil {
			opts = telemetry.PlanSpanOptions{
				PlanID:    plan.ID,
				Suppliers: len(plan.Suppliers),
				Shipments: len(plan.Shipments),
				Vessels:   plan.Vessels(),
				Deferred:  plan.Deferred.Sum(),
			}
		}
		p.tracer.EndPlanSpan(span, opts, err)
	}()

	switch req.Strategy {
	case Distribute:
		plan, err = p.distribute(ctx, req)
	case Even:
		plan, err = p.balance(ctx, req)
	default:
		plan, err = p.consolidate(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	plan.ID = uuid.NewString()
	plan.Strategy = req.Strategy
	plan.ShipType = req.ShipType
	plan.CreatedAt = p.nowFunc()
	p.logger.PlanProposed(plan.ID, req.target(), len(plan.Shipments), plan.Vessels())
	return plan, nil
}

func (p *Planner) consolidate(ctx context.Context, req Request) (*Plan, error) {
	snapshot, err := p.suppliers.ListSuppliers(ctx, req.Destination)
	if err != nil {
		return nil, errors.Wrap(err, "list suppliers")
	}
	suppliers := make([]cargo.Supplier, 0, len(snapshot))
	for _, s := range snapshot {
		if s.City == req.Destination {
			continue
		}
		suppliers = append(suppliers, s)
	}

	requested, suppliers := p.requested(req, suppliers)

	var clipped cargo.Vector
	if p.storage != nil {
		free, ok, err := p.storage.FreeStorage(ctx, req.Destination)
		if err != nil {
			return nil, errors.Wrap(err, "destination storage")
		}
		if ok {
			capped := requested.Min(free)
			clipped = requested.Sub(capped)
			requested = capped
		}
	}

	if requested.IsZero() {
		return nil, errors.InvalidInput("nothing to send")
	}

	allocs, err := allocator.Allocate(requested, req.Destination, suppliers, allocator.WithTieBreak(p.cfg.TieBreak))
	if err != nil {
		return nil, err
	}

	split, err := splitter.SplitAll(allocs, req.ShipType, splitter.WithMinFill(p.cfg.MinFill))
	if err != nil {
		return nil, err
	}

	return &Plan{
		Destination: req.Destination,
		Mode:        req.Mode,
		Requested:   requested,
		Clipped:     clipped,
		Suppliers:   allocator.Order(suppliers, allocator.WithTieBreak(p.cfg.TieBreak)),
		Allocations: allocs,
		Shipments:   split.Shipments,
		Deferred:    split.Deferred,
	}, nil
}

// requested computes the vector to allocate and the supplier view to
// allocate from. In Keep mode suppliers only offer their surplus.
func (p *Planner) requested(req Request, suppliers []cargo.Supplier) (cargo.Vector, []cargo.Supplier) {
	var mask cargo.Vector
	for _, k := range cargo.Kinds() {
		if !req.ignored(k) {
			mask[k] = 1
		}
	}

	if req.Mode == Send {
		var v cargo.Vector
		for k := range v {
			v[k] = req.Amounts[k] * mask[k]
		}
		return v, suppliers
	}

	var total cargo.Vector
	out := make([]cargo.Supplier, len(suppliers))
	for i, s := range suppliers {
		surplus := s.Available.Sub(req.Amounts).Floor()
		for k := range surplus {
			surplus[k] *= mask[k]
		}
		s.Available = surplus
		out[i] = s
		total = total.Add(surplus)
	}
	return total, out
}
