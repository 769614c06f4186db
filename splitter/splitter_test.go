package splitter

import (
	"reflect"
	"testing"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

func alloc(src string, v cargo.Vector) cargo.Allocation {
	return cargo.Allocation{Source: cargo.CityID(src), Destination: "D", Resource: v}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		resource     cargo.Vector
		final        bool
		wantVessels  int64
		wantResource cargo.Vector
		wantDeferred cargo.Vector
	}{
		{"exact", cargo.Of(cargo.Primary, 1000), false, 2, cargo.Of(cargo.Primary, 1000), cargo.Vector{}},
		{"remainder_final", cargo.Of(cargo.Primary, 1240), true, 3, cargo.Of(cargo.Primary, 1240), cargo.Vector{}},
		{"remainder_deferred", cargo.Of(cargo.Primary, 1240), false, 2, cargo.Of(cargo.Primary, 1000), cargo.Of(cargo.Primary, 240)},
		{"near_full", cargo.Of(cargo.Primary, 1375), false, 3, cargo.Of(cargo.Primary, 1375), cargo.Vector{}},
		{"just_below", cargo.Of(cargo.Primary, 1374), false, 2, cargo.Of(cargo.Primary, 1000), cargo.Of(cargo.Primary, 374)},
		{"mixed_tail", cargo.Vector{900, 200, 0, 0, 40}, false, 2, cargo.Vector{900, 100, 0, 0, 0}, cargo.Vector{0, 100, 0, 0, 40}},
		{"small_final", cargo.Of(cargo.LuxuryB, 10), true, 1, cargo.Of(cargo.LuxuryB, 10), cargo.Vector{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Split(alloc("A", tt.resource), cargo.Merchant, tt.final)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if len(res.Shipments) != 1 {
				t.Fatalf("shipments = %+v", res.Shipments)
			}
			s := res.Shipments[0]
			if s.Vessels != tt.wantVessels {
				t.Errorf("Vessels = %d, want %d", s.Vessels, tt.wantVessels)
			}
			if s.Resource != tt.wantResource {
				t.Errorf("Resource = %v, want %v", s.Resource, tt.wantResource)
			}
			if res.Deferred != tt.wantDeferred {
				t.Errorf("Deferred = %v, want %v", res.Deferred, tt.wantDeferred)
			}
			if s.Vessels*cargo.Merchant.Capacity < s.Units() {
				t.Errorf("vessels cannot carry cargo: %v", s)
			}
			if s.Units()+res.Deferred.Sum() != tt.resource.Sum() {
				t.Error("cargo lost in split")
			}
		})
	}
}

func TestSplitSmallRemainderOnly(t *testing.T) {
	res, err := Split(alloc("A", cargo.Of(cargo.Primary, 100)), cargo.Merchant, false)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(res.Shipments) != 0 {
		t.Errorf("expected no shipment, got %+v", res.Shipments)
	}
	if res.Deferred != cargo.Of(cargo.Primary, 100) {
		t.Errorf("Deferred = %v", res.Deferred)
	}
}

func TestSplitEmptyAllocation(t *testing.T) {
	res, err := Split(alloc("A", cargo.Vector{}), cargo.Merchant, true)
	if err != nil || len(res.Shipments) != 0 || !res.Deferred.IsZero() {
		t.Errorf("empty allocation: %+v, %v", res, err)
	}
}

func TestSplitMinFillOption(t *testing.T) {
	res, err := Split(alloc("A", cargo.Of(cargo.Primary, 1240)), cargo.Merchant, false, WithMinFill(0.4))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if res.Vessels() != 3 {
		t.Errorf("240 >= 0.4*500 should ship, vessels = %d", res.Vessels())
	}

	for _, bad := range []float64{0, -0.1, 1.01} {
		_, err := Split(alloc("A", cargo.Of(cargo.Primary, 10)), cargo.Merchant, true, WithMinFill(bad))
		if !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("min fill %v: expected INVALID_INPUT, got %v", bad, err)
		}
	}
}

func TestSplitInvalid(t *testing.T) {
	if _, err := Split(alloc("A", cargo.Vector{5}), cargo.ShipType{Name: "raft"}, true); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("zero capacity: %v", err)
	}
	if _, err := Split(alloc("A", cargo.Vector{-5}), cargo.Merchant, true); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("negative resource: %v", err)
	}
}

func TestSplitAllEndToEnd(t *testing.T) {
	allocs := []cargo.Allocation{
		alloc("A", cargo.Of(cargo.Primary, 30000)),
		alloc("B", cargo.Of(cargo.Primary, 20000)),
	}
	res, err := SplitAll(allocs, cargo.Merchant)
	if err != nil {
		t.Fatalf("SplitAll: %v", err)
	}
	if len(res.Shipments) != 2 {
		t.Fatalf("shipments = %d", len(res.Shipments))
	}
	if res.Shipments[0].Vessels != 60 || res.Shipments[1].Vessels != 40 {
		t.Errorf("vessels = %d, %d", res.Shipments[0].Vessels, res.Shipments[1].Vessels)
	}
	if res.Vessels() != 100 {
		t.Errorf("total vessels = %d", res.Vessels())
	}
}

func TestSplitAllLastGetsException(t *testing.T) {
	allocs := []cargo.Allocation{
		alloc("A", cargo.Of(cargo.Primary, 1240)),
		alloc("B", cargo.Of(cargo.Primary, 1240)),
	}
	res, err := SplitAll(allocs, cargo.Merchant)
	if err != nil {
		t.Fatalf("SplitAll: %v", err)
	}
	if res.Shipments[0].Vessels != 2 || res.Shipments[1].Vessels != 3 {
		t.Errorf("vessels = %d, %d", res.Shipments[0].Vessels, res.Shipments[1].Vessels)
	}
	if res.Deferred != cargo.Of(cargo.Primary, 240) {
		t.Errorf("Deferred = %v", res.Deferred)
	}
}

func TestSplitDeterministic(t *testing.T) {
	allocs := []cargo.Allocation{
		alloc("A", cargo.Vector{1234, 567, 89, 0, 3}),
		alloc("B", cargo.Vector{0, 0, 4000, 12, 0}),
	}
	a, _ := SplitAll(allocs, cargo.Freighter)
	b, _ := SplitAll(allocs, cargo.Freighter)
	if !reflect.DeepEqual(a, b) {
		t.Error("SplitAll is not deterministic")
	}
}
