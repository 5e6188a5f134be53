package indicator

import (
	"math"
	"strconv"
)

// Value is an indicator reading that may not exist yet. The zero value is None.
type Value struct {
	v  float64
	ok bool
}

// None is the absent reading: not enough history, or an undefined ratio.
var None = Value{}

// Some wraps a computed reading. NaN and Inf collapse to None.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None
	}
	return Value{v: v, ok: true}
}

// Get returns the reading and whether it is defined.
func (x Value) Get() (float64, bool) {
	return x.v, x.ok
}

// Valid reports whether the reading is defined.
func (x Value) Valid() bool {
	return x.ok
}

// Format renders the reading with prec decimals, or "" when undefined.
func (x Value) Format(prec int) string {
	if !x.ok {
		return ""
	}
	return strconv.FormatFloat(x.v, 'f', prec, 64)
}

func (x Value) String() string {
	if !x.ok {
		return "n/a"
	}
	return strconv.FormatFloat(x.v, 'f', -1, 64)
}

func sub(a, b Value) Value {
	if !a.ok || !b.ok {
		return None
	}
	return Some(a.v - b.v)
}

func add(a, b Value) Value {
	if !a.ok || !b.ok {
		return None
	}
	return Some(a.v + b.v)
}

func scale(a Value, k float64) Value {
	if !a.ok {
		return None
	}
	return Some(a.v * k)
}

// ratio returns 100*num/den, None when den is zero or either side is undefined.
func ratio(num, den Value) Value {
	if !num.ok || !den.ok || den.v == 0 {
		return None
	}
	return Some(100 * num.v / den.v)
}
