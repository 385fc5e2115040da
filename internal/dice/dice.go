// Package dice implements the dice-notation expression language used by game
// rules: parsing formula text such as "2d6+3", "4d6d1", or "1d20e" into an
// immutable syntax tree, evaluating that tree against caller-supplied
// variable bindings, and producing both a numeric result and a human-readable
// trace of how the result was derived (e.g. "2d6[3+5=8] + 3").
//
// A parsed Formula is reusable and safe to share across goroutines; all
// mutable evaluation state lives in a per-call context. Randomness is drawn
// from a Source, so tests can inject deterministic draws.
package dice

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the result of evaluating one node of a formula: either a scalar
// Number or a Sequence of die results. Anywhere a single number is required,
// Scalar coerces a Sequence by summing its elements.
type Value interface {
	// Scalar coerces the value to a single Number.
	Scalar() Number
	String() string
}

// Number is a scalar formula value. It stays integral until a real literal
// or a real-producing function (sqrt, log, average, ...) enters the
// computation, after which it carries a float64.
type Number struct {
	i    int64
	f    float64
	real bool
}

// IntNumber returns an integral Number.
func IntNumber(v int64) Number { return Number{i: v} }

// FloatNumber returns a real Number.
func FloatNumber(v float64) Number { return Number{f: v, real: true} }

// Real reports whether the number carries a fractional part.
func (n Number) Real() bool { return n.real }

// Int returns the value as an int64, truncating any fractional part.
func (n Number) Int() int64 {
	if n.real {
		return int64(n.f)
	}
	return n.i
}

// Float returns the value as a float64.
func (n Number) Float() float64 {
	if n.real {
		return n.f
	}
	return float64(n.i)
}

// Scalar returns the number itself, satisfying Value.
func (n Number) Scalar() Number { return n }

// Add returns n + o. The result is integral only if both operands are.
func (n Number) Add(o Number) Number {
	if n.real || o.real {
		return FloatNumber(n.Float() + o.Float())
	}
	return IntNumber(n.i + o.i)
}

// Sub returns n - o.
func (n Number) Sub(o Number) Number {
	if n.real || o.real {
		return FloatNumber(n.Float() - o.Float())
	}
	return IntNumber(n.i - o.i)
}

// Mul returns n * o.
func (n Number) Mul(o Number) Number {
	if n.real || o.real {
		return FloatNumber(n.Float() * o.Float())
	}
	return IntNumber(n.i * o.i)
}

// Div returns n / o. Integer operands use truncated integer division.
//
// Postcondition: Returns ErrDivideByZero when o is zero.
func (n Number) Div(o Number) (Number, error) {
	if n.real || o.real {
		if o.Float() == 0 {
			return Number{}, ErrDivideByZero
		}
		return FloatNumber(n.Float() / o.Float()), nil
	}
	if o.i == 0 {
		return Number{}, ErrDivideByZero
	}
	return IntNumber(n.i / o.i), nil
}

// Pow returns n raised to o. Integral base and non-negative integral exponent
// stay integral; everything else goes through math.Pow.
func (n Number) Pow(o Number) Number {
	if !n.real && !o.real && o.i >= 0 {
		result := int64(1)
		for e := int64(0); e < o.i; e++ {
			result *= n.i
		}
		return IntNumber(result)
	}
	return FloatNumber(math.Pow(n.Float(), o.Float()))
}

// Neg returns -n.
func (n Number) Neg() Number {
	if n.real {
		return FloatNumber(-n.f)
	}
	return IntNumber(-n.i)
}

// Less reports whether n < o.
func (n Number) Less(o Number) bool { return n.Float() < o.Float() }

func (n Number) String() string {
	if n.real {
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	}
	return strconv.FormatInt(n.i, 10)
}

// Sequence is an ordered multiset of die results. Order is roll/declaration
// order and is preserved through modifier application.
type Sequence []int64

// Sum returns the sum of all elements.
func (s Sequence) Sum() int64 {
	var total int64
	for _, v := range s {
		total += v
	}
	return total
}

// Scalar coerces the sequence to a Number by summation. This rule is
// load-bearing: "{1,2,3} + 1" evaluates to 7.
func (s Sequence) Scalar() Number { return IntNumber(s.Sum()) }

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}
