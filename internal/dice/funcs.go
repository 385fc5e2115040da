package dice

import (
	"fmt"
	"math"
	"sort"
)

// builtins are the functions available in every formula unless shadowed by a
// caller binding of the same name.
var builtins = map[string]Function{
	"trunc": unaryNumeric(func(n Number) Value { return IntNumber(int64(math.Trunc(n.Float()))) }),
	"floor": unaryNumeric(func(n Number) Value { return IntNumber(int64(math.Floor(n.Float()))) }),
	"ceil":  unaryNumeric(func(n Number) Value { return IntNumber(int64(math.Ceil(n.Float()))) }),
	"abs": unaryNumeric(func(n Number) Value {
		if n.Less(IntNumber(0)) {
			return n.Neg()
		}
		return n
	}),
	"sqrt": unaryNumeric(func(n Number) Value { return FloatNumber(math.Sqrt(n.Float())) }),
	"log":  unaryNumeric(func(n Number) Value { return FloatNumber(math.Log(n.Float())) }),
	"round": func(args ...Value) (Value, error) {
		switch len(args) {
		case 1:
			return IntNumber(int64(math.Round(args[0].Scalar().Float()))), nil
		case 2:
			digits := args[1].Scalar().Int()
			shift := math.Pow(10, float64(digits))
			return FloatNumber(math.Round(args[0].Scalar().Float()*shift) / shift), nil
		default:
			return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(args))
		}
	},
	"min": func(args ...Value) (Value, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("min expects at least one argument")
		}
		best := args[0].Scalar()
		for _, a := range args[1:] {
			if n := a.Scalar(); n.Less(best) {
				best = n
			}
		}
		return best, nil
	},
	"max": func(args ...Value) (Value, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("max expects at least one argument")
		}
		best := args[0].Scalar()
		for _, a := range args[1:] {
			if n := a.Scalar(); best.Less(n) {
				best = n
			}
		}
		return best, nil
	},
	"sum": func(args ...Value) (Value, error) {
		total := IntNumber(0)
		for _, a := range args {
			total = total.Add(a.Scalar())
		}
		return total, nil
	},
	"pow": func(args ...Value) (Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(args))
		}
		return args[0].Scalar().Pow(args[1].Scalar()), nil
	},
}

func unaryNumeric(fn func(Number) Value) Function {
	return func(args ...Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects 1 argument, got %d", len(args))
		}
		return fn(args[0].Scalar()), nil
	}
}

// seqMethods back the chained-method syntax, e.g. "4d6.highest(3)". Each is a
// pure function of the realized sequence (args[0]) with no side effects on
// the evaluation context.
var seqMethods = map[string]Function{
	"sum": seqFunc0(func(s Sequence) (Value, error) { return IntNumber(s.Sum()), nil }),
	"max": seqFunc0(func(s Sequence) (Value, error) {
		if len(s) == 0 {
			return nil, fmt.Errorf("max of empty sequence")
		}
		_, maxV := minMaxFaces(s)
		return IntNumber(maxV), nil
	}),
	"min": seqFunc0(func(s Sequence) (Value, error) {
		if len(s) == 0 {
			return nil, fmt.Errorf("min of empty sequence")
		}
		minV, _ := minMaxFaces(s)
		return IntNumber(minV), nil
	}),
	"average": seqFunc0(func(s Sequence) (Value, error) {
		if len(s) == 0 {
			return nil, fmt.Errorf("average of empty sequence")
		}
		return FloatNumber(float64(s.Sum()) / float64(len(s))), nil
	}),
	"highest": func(args ...Value) (Value, error) {
		s, n, err := seqAndCount(args)
		if err != nil {
			return nil, err
		}
		sorted := sortedCopy(s)
		if n > len(sorted) {
			n = len(sorted)
		}
		return sorted[len(sorted)-n:], nil
	},
	"lowest": func(args ...Value) (Value, error) {
		s, n, err := seqAndCount(args)
		if err != nil {
			return nil, err
		}
		sorted := sortedCopy(s)
		if n > len(sorted) {
			n = len(sorted)
		}
		return sorted[:n], nil
	},
	"drop": func(args ...Value) (Value, error) {
		s := args[0].(Sequence)
		exclude := make(map[int64]bool, len(args)-1)
		for _, a := range args[1:] {
			exclude[a.Scalar().Int()] = true
		}
		out := make(Sequence, 0, len(s))
		for _, v := range s {
			if !exclude[v] {
				out = append(out, v)
			}
		}
		return out, nil
	},
}

func seqFunc0(fn func(Sequence) (Value, error)) Function {
	return func(args ...Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expects no arguments, got %d", len(args)-1)
		}
		return fn(args[0].(Sequence))
	}
}

// seqAndCount unpacks a sequence receiver and an optional count argument
// defaulting to 1.
func seqAndCount(args []Value) (Sequence, int, error) {
	s := args[0].(Sequence)
	n := 1
	switch len(args) {
	case 1:
	case 2:
		n = int(args[1].Scalar().Int())
		if n < 0 {
			return nil, 0, fmt.Errorf("count must not be negative, got %d", n)
		}
	default:
		return nil, 0, fmt.Errorf("expects at most one argument, got %d", len(args)-1)
	}
	return s, n, nil
}

func sortedCopy(s Sequence) Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
