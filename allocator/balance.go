package allocator

import (
	"fmt"
	"sort"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

// Balance plans transfers that even out one kind across holdings.
//
// The target is the average stock. A city whose warehouse is smaller than
// the target can only be filled: it asks for its free space and drops out,
// and the target is recomputed over the rest. Once no city drops out,
// cities above the target give their surplus and cities below it ask for
// the difference. Integer division leaves any remainder with the givers.
//
// Givers are drained largest surplus first into the smallest needs first;
// ties go by city ID so the same holdings always give the same plan. Every
// allocation carries only kind.
func Balance(kind cargo.Kind, holdings []cargo.Holding) ([]cargo.Allocation, error) {
	if !kind.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown kind %d", kind))
	}
	seen := make(map[cargo.CityID]bool, len(holdings))
	for _, h := range holdings {
		if seen[h.City] {
			return nil, errors.InvalidInput(fmt.Sprintf("city %s listed twice", h.City))
		}
		seen[h.City] = true
		if !h.Available.Valid() || !h.Free.Valid() {
			return nil, errors.InvalidInput(fmt.Sprintf("city %s has negative stock", h.City))
		}
	}
	if len(holdings) < 2 {
		return nil, nil
	}

	n := len(holdings)
	var total int64
	for _, h := range holdings {
		total += h.Available[kind]
	}

	filled := make([]bool, n)
	need := make([]int64, n)
	give := make([]int64, n)
	target := total / int64(n)
	out := 0
	for {
		before := out
		for i, h := range holdings {
			if filled[i] || h.Capacity <= 0 || h.Capacity >= target {
				continue
			}
			filled[i] = true
			need[i] = h.Free[kind]
			total -= h.Capacity
			out++
		}
		if out == n {
			break
		}
		target = total / int64(n-out)
		if out > before {
			continue
		}
		for i, h := range holdings {
			if filled[i] {
				continue
			}
			if have := h.Available[kind]; have > target {
				give[i] = have - target
			} else {
				need[i] = target - have
			}
		}
		break
	}

	givers := rank(holdings, give, true)
	takers := rank(holdings, need, false)

	var allocs []cargo.Allocation
	for _, g := range givers {
		for _, t := range takers {
			if give[g] == 0 {
				break
			}
			amount := min(give[g], need[t])
			if amount == 0 {
				continue
			}
			allocs = append(allocs, cargo.Allocation{
				Source:      holdings[g].City,
				Destination: holdings[t].City,
				Resource:    cargo.Of(kind, amount),
			})
			give[g] -= amount
			need[t] -= amount
		}
	}
	return allocs, nil
}

// rank returns the indexes with a positive amount, largest first when desc
// is set and smallest first otherwise.
func rank(holdings []cargo.Holding, amounts []int64, desc bool) []int {
	var idx []int
	for i, a := range amounts {
		if a > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := amounts[idx[a]], amounts[idx[b]]
		if x != y {
			return (x > y) == desc
		}
		return holdings[idx[a]].City < holdings[idx[b]].City
	})
	return idx
}
