package cargo

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one of the fixed resource types. The numeric order is the
// canonical vector alignment and the order vessels are filled in.
type Kind int

const (
	Primary Kind = iota
	LuxuryA
	LuxuryB
	LuxuryC
	LuxuryD
)

// NumKinds is the number of resource kinds carried by a Vector.
const NumKinds = 5

var kindNames = [NumKinds]string{"wood", "wine", "marble", "crystal", "sulfur"}

// Kinds returns every kind in canonical order.
func Kinds() []Kind {
	return []Kind{Primary, LuxuryA, LuxuryB, LuxuryC, LuxuryD}
}

// String returns the in-game resource name.
func (k Kind) String() string {
	if k < 0 || int(k) >= NumKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the canonical kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < NumKinds
}

// ParseKind accepts the in-game name ("wine") in any case.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", s)
}

// Vector holds one amount per Kind.
type Vector [NumKinds]int64

// Of builds a vector with a single non-zero kind.
func Of(k Kind, amount int64) Vector {
	var v Vector
	v[k] = amount
	return v
}

// Sum returns the total units across all kinds.
func (v Vector) Sum() int64 {
	var total int64
	for _, n := range v {
		total += n
	}
	return total
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Sub returns v - o. The result may hold negative entries; callers check
// Valid when that matters.
func (v Vector) Sub(o Vector) Vector {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

// Min returns the per-kind minimum of v and o.
func (v Vector) Min(o Vector) Vector {
	for i := range v {
		if o[i] < v[i] {
			v[i] = o[i]
		}
	}
	return v
}

// Floor clamps negative entries to zero.
func (v Vector) Floor() Vector {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
	}
	return v
}

// IsZero reports whether every entry is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Valid reports whether every entry is non-negative.
func (v Vector) Valid() bool {
	for _, n := range v {
		if n < 0 {
			return false
		}
	}
	return true
}

// Covers reports whether v holds at least o of every kind.
func (v Vector) Covers(o Vector) bool {
	for i := range v {
		if v[i] < o[i] {
			return false
		}
	}
	return true
}

// String renders only the non-zero kinds, e.g. "wood=500 wine=20".
func (v Vector) String() string {
	var parts []string
	for i, n := range v {
		if n != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kindNames[i], n))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

// ParseVector reads the String form back, e.g. "wood=500 wine=20". Commas
// may separate entries. "empty" and "" give the zero vector.
func ParseVector(s string) (Vector, error) {
	var v Vector
	s = strings.TrimSpace(s)
	if s == "" || s == "empty" {
		return v, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	for _, f := range fields {
		name, amount, ok := strings.Cut(f, "=")
		if !ok {
			return Vector{}, fmt.Errorf("expected kind=amount, got %q", f)
		}
		k, err := ParseKind(name)
		if err != nil {
			return Vector{}, err
		}
		n, err := strconv.ParseInt(amount, 10, 64)
		if err != nil || n < 0 {
			return Vector{}, fmt.Errorf("bad amount for %s: %q", k, amount)
		}
		v[k] = n
	}
	return v, nil
}
