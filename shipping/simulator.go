package shipping

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
	"github.com/vinayprograms/freightkit/fleet"
)

// City is one simulated city.
type City struct {
	ID      cargo.CityID
	Name    string
	X, Y    float64
	Stock   cargo.Vector
	Storage int64 // per-kind warehouse limit, 0 for unlimited
}

// Simulator is an in-memory game: cities with stock, a vessel pool and a
// dispatch endpoint. It implements Service, SupplierQuery, StorageQuery
// and HoldingQuery. Scripted outcomes let tests inject failures.
type Simulator struct {
	mu         sync.Mutex
	cities     map[cargo.CityID]*City
	pool       *fleet.MemoryPool
	travel     time.Duration
	script     []error
	dispatched []Request
	calls      int
}

// NewSimulator creates a simulator over pool. Vessels come home after
// travel; zero keeps them away until the pool is closed.
func NewSimulator(pool *fleet.MemoryPool, travel time.Duration) *Simulator {
	return &Simulator{
		cities: make(map[cargo.CityID]*City),
		pool:   pool,
		travel: travel,
	}
}

// AddCity adds or replaces a city.
func (s *Simulator) AddCity(c City) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.cities[c.ID] = &cp
}

// Stock returns a city's current stock.
func (s *Simulator) Stock(id cargo.CityID) (cargo.Vector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cities[id]
	if !ok {
		return cargo.Vector{}, false
	}
	return c.Stock, true
}

// Script queues outcomes for the next Dispatch calls, in order. A nil
// entry lets that call run normally.
func (s *Simulator) Script(outcomes ...error) {
	s.mu.Lock()
	s.script = append(s.script, outcomes...)
	s.mu.Unlock()
}

// Dispatched returns the successful requests so far.
func (s *Simulator) Dispatched() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.dispatched))
	copy(out, s.dispatched)
	return out
}

// Calls returns how many times Dispatch was called.
func (s *Simulator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ListSuppliers implements SupplierQuery.
func (s *Simulator) ListSuppliers(ctx context.Context, exclude cargo.CityID) ([]cargo.Supplier, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "list suppliers")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	origin, ok := s.cities[exclude]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("city %s", exclude))
	}

	out := make([]cargo.Supplier, 0, len(s.cities)-1)
	for id, c := range s.cities {
		if id == exclude {
			continue
		}
		out = append(out, cargo.Supplier{
			City:      id,
			Name:      c.Name,
			Distance:  math.Hypot(c.X-origin.X, c.Y-origin.Y),
			Available: c.Stock,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out, nil
}

// FreeStorage implements StorageQuery.
func (s *Simulator) FreeStorage(ctx context.Context, city cargo.CityID) (cargo.Vector, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cities[city]
	if !ok {
		return cargo.Vector{}, false, errors.NotFound(fmt.Sprintf("city %s", city))
	}
	if c.Storage <= 0 {
		return cargo.Vector{}, false, nil
	}
	var free cargo.Vector
	for i := range free {
		free[i] = c.Storage - c.Stock[i]
	}
	return free.Floor(), true, nil
}

// Holdings implements HoldingQuery, in the order asked.
func (s *Simulator) Holdings(ctx context.Context, cities []cargo.CityID) ([]cargo.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "holdings")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]cargo.Holding, 0, len(cities))
	for _, id := range cities {
		c, ok := s.cities[id]
		if !ok {
			return nil, errors.NotFound(fmt.Sprintf("city %s", id))
		}
		h := cargo.Holding{City: id, Name: c.Name, Available: c.Stock, Capacity: c.Storage}
		if c.Storage > 0 {
			for i := range h.Free {
				h.Free[i] = c.Storage - c.Stock[i]
			}
			h.Free = h.Free.Floor()
		}
		out = append(out, h)
	}
	return out, nil
}

// Dispatch implements Service. The caller must hold the ship type's pool
// lock, as it would around a real dispatch.
func (s *Simulator) Dispatch(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if len(s.script) > 0 {
		outcome := s.script[0]
		s.script = s.script[1:]
		if outcome != nil {
			return outcome
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "dispatch")
	}

	src, ok := s.cities[req.Source]
	if !ok {
		return Permanent(fmt.Sprintf("unknown source %s", req.Source), nil)
	}
	dst, ok := s.cities[req.Destination]
	if !ok {
		return Permanent(fmt.Sprintf("unknown destination %s", req.Destination), nil)
	}
	if !src.Stock.Covers(req.Resource) {
		return Permanent(fmt.Sprintf("%s holds %s, cannot send %s", req.Source, src.Stock, req.Resource), nil)
	}
	if need := vesselsFor(req.Resource.Sum(), req.ShipType.Capacity); need > req.Vessels {
		return Permanent(fmt.Sprintf("%d vessels cannot carry %d units", req.Vessels, req.Resource.Sum()), nil)
	}

	if err := s.pool.Take(req.ShipType, req.Vessels); err != nil {
		return Transient("vessels unavailable", err)
	}

	src.Stock = src.Stock.Sub(req.Resource)
	dst.Stock = dst.Stock.Add(req.Resource)
	s.dispatched = append(s.dispatched, req)

	if s.travel > 0 {
		s.pool.ReturnAfter(req.ShipType, req.Vessels, s.travel)
	}
	return nil
}

func vesselsFor(units, capacity int64) int64 {
	if capacity <= 0 {
		return 0
	}
	return (units + capacity - 1) / capacity
}

var (
	_ Service       = (*Simulator)(nil)
	_ SupplierQuery = (*Simulator)(nil)
	_ StorageQuery  = (*Simulator)(nil)
)
