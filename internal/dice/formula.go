package dice

import (
	"fmt"
	"reflect"
)

// Formula is a parsed, reusable dice-notation expression. The syntax tree is
// built once and reused for every evaluation, supporting many rolls of the
// same formula (e.g. a weapon's damage formula rolled on every hit).
//
// A Formula is immutable once constructed and safe to share across
// goroutines; all per-roll state lives in an internal evaluation context.
type Formula struct {
	raw  string
	ast  Node
	vars Bindings
}

// Parse compiles formula text into a Formula.
//
// Postcondition: Returns a non-nil Formula or a *SyntaxError; parsing
// performs no evaluation and draws no randomness.
func Parse(text string) (*Formula, error) {
	ast, err := parseFormula(text)
	if err != nil {
		return nil, err
	}
	return &Formula{raw: text, ast: ast}, nil
}

// MustParse parses text and panics on error. Useful for package-level
// formula constants.
func MustParse(text string) *Formula {
	f, err := Parse(text)
	if err != nil {
		panic("dice: MustParse failed for formula " + text + ": " + err.Error())
	}
	return f
}

// FromNode wraps an already-built syntax tree as a Formula.
//
// Precondition: n must be non-nil.
func FromNode(n Node) *Formula {
	return &Formula{raw: n.String(), ast: n}
}

// Bind returns a copy of the formula carrying vars as default bindings.
// Defaults are overlaid by per-call bindings at evaluation time.
func (f *Formula) Bind(vars Bindings) *Formula {
	return &Formula{raw: f.raw, ast: f.ast, vars: overlay(f.vars, vars)}
}

// Raw returns the original formula text.
func (f *Formula) Raw() string { return f.raw }

// String returns the canonical re-emission of the parsed tree. Parsing the
// canonical form yields a structurally equal Formula.
func (f *Formula) String() string { return f.ast.String() }

// Equal reports structural equality of the parsed trees. Two formulas with
// different source text but identical structure (e.g. "1d6 + 2" and "1d6+2")
// are equal.
func (f *Formula) Equal(other *Formula) bool {
	if other == nil {
		return false
	}
	return reflect.DeepEqual(f.ast, other.ast)
}

// Result is the terminal outcome of one formula evaluation.
type Result struct {
	// Formula is the evaluated formula's original text.
	Formula string
	// Value is the scalar outcome; a sequence at the root is summed.
	Value Number
	// Trace explains how Value was derived, e.g. "2d6[3+5=8] + 3".
	// Empty unless the evaluation was traced.
	Trace string
	// Dice holds every individual die result in roll order, after
	// modifiers.
	Dice []int64
}

// Int returns the outcome as an int64.
func (r Result) Int() int64 { return r.Value.Int() }

// Float returns the outcome as a float64.
func (r Result) Float() float64 { return r.Value.Float() }

// String renders "trace = value" when a trace is present, else just the value.
func (r Result) String() string {
	if r.Trace == "" {
		return r.Value.String()
	}
	return fmt.Sprintf("%s = %s", r.Trace, r.Value)
}

// Eval performs one randomized evaluation without building a trace, skipping
// all trace string work on the hot path.
//
// Precondition: src must be non-nil.
func (f *Formula) Eval(src Source, vars Bindings) (Result, error) {
	return f.run(src, vars, false)
}

// EvalTraced performs one randomized evaluation and populates Result.Trace.
//
// Precondition: src must be non-nil.
func (f *Formula) EvalTraced(src Source, vars Bindings) (Result, error) {
	return f.run(src, vars, true)
}

func (f *Formula) run(src Source, vars Bindings, trace bool) (Result, error) {
	st := newEvalState(src, trace)
	v, desc, err := eval(f.ast, overlay(f.vars, vars), st)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Formula: f.raw,
		Value:   v.Scalar(),
		Trace:   desc,
		Dice:    st.allDice(),
	}, nil
}

// Bounds computes the theoretical minimum and maximum outcome by re-walking
// the tree with every die forced to its extreme face. No randomness is drawn,
// so the result is deterministic and repeatable.
//
// Known limitation, preserved deliberately: the amplifying effect of reroll
// and explode modifiers on the true achievable maximum is ignored; modifiers
// are skipped entirely in forced-roll mode.
func (f *Formula) Bounds(vars Bindings) (minOut, maxOut int64, err error) {
	merged := overlay(f.vars, vars)

	st := newEvalState(nil, false)
	st.forceMin = true
	v, _, err := eval(f.ast, merged, st)
	if err != nil {
		return 0, 0, err
	}
	minOut = v.Scalar().Int()

	st = newEvalState(nil, false)
	st.forceMax = true
	v, _, err = eval(f.ast, merged, st)
	if err != nil {
		return 0, 0, err
	}
	maxOut = v.Scalar().Int()

	return minOut, maxOut, nil
}

// Roll parses and evaluates text in one call, for formulas used only once.
// Reuse a parsed Formula when rolling repeatedly.
//
// Precondition: src must be non-nil.
func Roll(text string, src Source, vars Bindings) (Result, error) {
	f, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	return f.Eval(src, vars)
}
