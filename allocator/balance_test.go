package allocator

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

func wine(city string, have int64) cargo.Holding {
	return cargo.Holding{City: cargo.CityID(city), Available: cargo.Of(cargo.LuxuryA, have)}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name     string
		holdings []cargo.Holding
		want     []cargo.Allocation
	}{
		{
			name:     "one giver, smallest need first",
			holdings: []cargo.Holding{wine("A", 1000), wine("B", 0), wine("C", 200)},
			want: []cargo.Allocation{
				{Source: "A", Destination: "C", Resource: cargo.Of(cargo.LuxuryA, 200)},
				{Source: "A", Destination: "B", Resource: cargo.Of(cargo.LuxuryA, 400)},
			},
		},
		{
			name: "small warehouse is filled and drops out",
			holdings: []cargo.Holding{
				wine("A", 900),
				{City: "B", Capacity: 100, Free: cargo.Of(cargo.LuxuryA, 100)},
				wine("C", 0),
			},
			want: []cargo.Allocation{
				{Source: "A", Destination: "B", Resource: cargo.Of(cargo.LuxuryA, 100)},
				{Source: "A", Destination: "C", Resource: cargo.Of(cargo.LuxuryA, 400)},
			},
		},
		{
			name:     "remainder stays with the giver",
			holdings: []cargo.Holding{wine("A", 101), wine("B", 0)},
			want: []cargo.Allocation{
				{Source: "A", Destination: "B", Resource: cargo.Of(cargo.LuxuryA, 50)},
			},
		},
		{
			name:     "already even",
			holdings: []cargo.Holding{wine("A", 300), wine("B", 300)},
		},
		{
			name:     "single city",
			holdings: []cargo.Holding{wine("A", 300)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Balance(cargo.LuxuryA, tt.holdings)
			if err != nil {
				t.Fatalf("Balance: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestBalanceInvalid(t *testing.T) {
	if _, err := Balance(cargo.Kind(9), []cargo.Holding{wine("A", 1), wine("B", 2)}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown kind: %v", err)
	}
	if _, err := Balance(cargo.LuxuryA, []cargo.Holding{wine("A", 1), wine("A", 2)}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate city: %v", err)
	}
}

func TestBalanceEvensOut(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 2 + rng.Intn(6)
		holdings := make([]cargo.Holding, n)
		stock := make(map[cargo.CityID]int64, n)
		var total int64
		for i := range holdings {
			have := rng.Int63n(50000)
			holdings[i] = wine(string(rune('A'+i)), have)
			stock[holdings[i].City] = have
			total += have
		}

		allocs, err := Balance(cargo.LuxuryA, holdings)
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		for _, a := range allocs {
			amount := a.Resource[cargo.LuxuryA]
			if amount <= 0 || a.Resource.Sum() != amount {
				t.Fatalf("round %d: bad allocation %+v", round, a)
			}
			stock[a.Source] -= amount
			stock[a.Destination] += amount
		}

		target := total / int64(n)
		var after int64
		for city, have := range stock {
			after += have
			if have < target || have > target+int64(n)-1 {
				t.Errorf("round %d: %s ends with %d, target %d", round, city, have, target)
			}
		}
		if after != total {
			t.Errorf("round %d: total %d became %d", round, total, after)
		}
	}
}
