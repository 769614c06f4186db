package cargo

import "fmt"

// CityID identifies a city within one account.
type CityID string

// Supplier is an immutable snapshot of one source city taken during a
// planning pass.
type Supplier struct {
	City      CityID
	Name      string
	Distance  float64
	Available Vector
}

// Holding is a snapshot of one city's stock and warehouse for the
// distribution strategies. Capacity is the per-kind storage limit; zero
// means the city reports no limit and Free is meaningless.
type Holding struct {
	City      CityID
	Name      string
	Available Vector
	Free      Vector
	Capacity  int64
}

// Room returns how much more of kind k the city can take, or -1 when it
// has no limit.
func (h Holding) Room(k Kind) int64 {
	if h.Capacity <= 0 {
		return -1
	}
	return h.Free[k]
}

// DefaultCapacity is the cargo a single vessel carries unless configured
// otherwise.
const DefaultCapacity int64 = 500

// ShipType is a class of vessel drawn from its own pool.
type ShipType struct {
	Name     string
	Capacity int64
}

// Built-in ship types.
var (
	Merchant  = ShipType{Name: "merchant", Capacity: DefaultCapacity}
	Freighter = ShipType{Name: "freighter", Capacity: DefaultCapacity}
)

// PoolName is the lock name guarding this ship type's pool.
func (s ShipType) PoolName() string {
	return "ship-pool:" + s.Name
}

// Validate checks the ship type is usable for splitting.
func (s ShipType) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("ship type has no name")
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("ship type %s: capacity must be positive, got %d", s.Name, s.Capacity)
	}
	return nil
}

// Allocation is the part of a request assigned to one supplier.
type Allocation struct {
	Source      CityID
	Destination CityID
	Resource    Vector
}

// Shipment is one supplier to destination transfer measured in vessels.
type Shipment struct {
	Source      CityID
	Destination CityID
	Resource    Vector
	Vessels     int64
	ShipType    ShipType
}

// Units returns the total cargo carried.
func (s Shipment) Units() int64 {
	return s.Resource.Sum()
}

// Take splits off a load of at most n vessels. The load is filled in
// canonical kind order up to n full vessels; the rest keeps whatever is
// left. If n covers the whole shipment, rest has zero vessels.
func (s Shipment) Take(n int64) (load, rest Shipment) {
	if n >= s.Vessels {
		rest = s
		rest.Resource = Vector{}
		rest.Vessels = 0
		return s, rest
	}

	room := n * s.ShipType.Capacity
	var taken Vector
	for i := range s.Resource {
		if room == 0 {
			break
		}
		amount := s.Resource[i]
		if amount > room {
			amount = room
		}
		taken[i] = amount
		room -= amount
	}

	load = s
	load.Resource = taken
	load.Vessels = n

	rest = s
	rest.Resource = s.Resource.Sub(taken)
	rest.Vessels = s.Vessels - n
	return load, rest
}

func (s Shipment) String() string {
	return fmt.Sprintf("%s -> %s: %s (%d x %s)", s.Source, s.Destination, s.Resource, s.Vessels, s.ShipType.Name)
}
