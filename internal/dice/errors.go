package dice

import (
	"errors"
	"fmt"
)

// ErrDivideByZero is returned when a division's right operand evaluates to zero.
var ErrDivideByZero = errors.New("dice: division by zero")

// SyntaxError describes a formula that does not match the grammar. Pos is the
// byte offset of the offending input within Expr.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("dice: syntax error in %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// UnknownNameError is returned when a formula references an identifier that
// is neither bound by the caller nor a built-in function.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("dice: unknown name %q", e.Name)
}

// DegenerateModifierError is returned before any dice are drawn when an
// explode modifier's threshold is not strictly above the minimum face, since
// every die would then explode forever.
type DegenerateModifierError struct {
	Die       string
	Threshold int64
	MinFace   int64
}

func (e *DegenerateModifierError) Error() string {
	return fmt.Sprintf("dice: %s: explode threshold %d is not above the minimum face %d; every roll would explode",
		e.Die, e.Threshold, e.MinFace)
}

// EvalError wraps a failure raised while evaluating a parsed formula, such as
// a non-callable identifier used as a function or an empty face set.
type EvalError struct {
	Node string
	Msg  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("dice: cannot evaluate %s: %s", e.Node, e.Msg)
}
