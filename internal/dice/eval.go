package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Bindings maps identifier names to values usable inside a formula: any Go
// integer or float, a Number, a Sequence, a nested *Formula, a prior Result,
// or a callable (see Function). Names resolve case-insensitively.
type Bindings map[string]any

// Function is a callable binding invocable from a formula, e.g.
// "ceil(1d6/2)" with "ceil" bound. Built-in functions use the same shape.
type Function func(args ...Value) (Value, error)

// die is one die's result within a roll instance. desc is the per-die trace
// fragment and is only populated when tracing.
type die struct {
	label string // e.g. "d6#2"
	value int64
	desc  string
}

// evalState is the per-call mutable scratch space for one evaluation. It is
// created fresh for every top-level evaluate call and discarded afterward;
// the AST itself is never mutated.
type evalState struct {
	trace    bool
	forceMin bool
	forceMax bool
	src      Source
	faces    map[string][]int64 // canonical faces text -> resolved face set
	sigCount map[string]int     // die-roll signature -> occurrences so far
	dieCount map[string]int     // die type ("d6") -> dice drawn so far
	rolls    map[string][]*die  // roll-instance id ("2d6#1") -> results
	order    []string           // roll-instance ids in evaluation order
}

func newEvalState(src Source, trace bool) *evalState {
	return &evalState{
		trace:    trace,
		src:      src,
		faces:    make(map[string][]int64),
		sigCount: make(map[string]int),
		dieCount: make(map[string]int),
		rolls:    make(map[string][]*die),
	}
}

// allDice returns every individual die result, in roll order.
func (st *evalState) allDice() []int64 {
	var out []int64
	for _, id := range st.order {
		for _, d := range st.rolls[id] {
			out = append(out, d.value)
		}
	}
	return out
}

// rollDie draws one die from faces and labels it with a per-die-type ordinal
// ("d6#1", "d6#2", ...) used in trace bookkeeping.
func (st *evalState) rollDie(dieType string, faces []int64) *die {
	v := faces[st.src.Intn(len(faces))]
	st.dieCount[dieType]++
	d := &die{
		label: fmt.Sprintf("%s#%d", dieType, st.dieCount[dieType]),
		value: v,
	}
	if st.trace {
		d.desc = strconv.FormatInt(v, 10)
	}
	return d
}

// resolveFaces returns the face set for n, caching per context under the
// canonical faces text so a die expression referenced repeatedly within one
// evaluation resolves once.
func (st *evalState) resolveFaces(n *DieRoll, vars Bindings) ([]int64, error) {
	key := n.Faces.String()
	if faces, ok := st.faces[key]; ok {
		return faces, nil
	}
	var faces []int64
	switch ft := n.Faces.(type) {
	case *Literal:
		if ft.Value.Real() {
			return nil, &EvalError{Node: n.String(), Msg: "die faces must be an integer"}
		}
		sides := ft.Value.Int()
		if sides < 1 {
			return nil, &EvalError{Node: n.String(), Msg: "die must have at least one face"}
		}
		faces = make([]int64, sides)
		for i := range faces {
			faces[i] = int64(i) + 1
		}
	case *SequenceLit:
		v, _, err := eval(ft, vars, st)
		if err != nil {
			return nil, err
		}
		seq := v.(Sequence)
		if len(seq) == 0 {
			return nil, &EvalError{Node: n.String(), Msg: "die face sequence is empty"}
		}
		faces = seq
	default:
		return nil, &EvalError{Node: n.String(), Msg: "unsupported face specification"}
	}
	st.faces[key] = faces
	return faces, nil
}

func minMaxFaces(faces []int64) (minFace, maxFace int64) {
	minFace, maxFace = faces[0], faces[0]
	for _, f := range faces[1:] {
		if f < minFace {
			minFace = f
		}
		if f > maxFace {
			maxFace = f
		}
	}
	return minFace, maxFace
}

// eval evaluates one node, returning its value and, when tracing is enabled,
// the trace fragment explaining it. The switch is exhaustive over the closed
// set of Node variants.
func eval(n Node, vars Bindings, st *evalState) (Value, string, error) {
	switch n := n.(type) {
	case *Literal:
		desc := ""
		if st.trace {
			desc = n.Value.String()
		}
		return n.Value, desc, nil

	case *DieRoll:
		return evalDieRoll(n, vars, st)

	case *SequenceLit:
		return evalSequence(n, vars, st)

	case *Variable:
		return evalVariable(n, vars, st)

	case *FunctionCall:
		return evalFunctionCall(n, vars, st)

	case *SeqMethodCall:
		return evalSeqMethod(n, vars, st)

	case *UnaryOp:
		v, d, err := evalScalar(n.Operand, vars, st)
		if err != nil {
			return nil, "", err
		}
		result := v
		if n.Op == '-' {
			result = v.Neg()
		}
		desc := ""
		if st.trace {
			desc = string(n.Op) + parenIf(n.Operand, unaryPrec, d)
		}
		return result, desc, nil

	case *BinaryOp:
		lhs, ld, err := evalScalar(n.LHS, vars, st)
		if err != nil {
			return nil, "", err
		}
		rhs, rd, err := evalScalar(n.RHS, vars, st)
		if err != nil {
			return nil, "", err
		}
		var result Number
		switch n.Op {
		case '+':
			result = lhs.Add(rhs)
		case '-':
			result = lhs.Sub(rhs)
		case '*':
			result = lhs.Mul(rhs)
		case '/':
			result, err = lhs.Div(rhs)
			if err != nil {
				return nil, "", err
			}
		case '^':
			result = lhs.Pow(rhs)
		}
		desc := ""
		if st.trace {
			p := precedence(n)
			desc = fmt.Sprintf("%s %c %s", parenIf(n.LHS, p, ld), n.Op, parenIf(n.RHS, p, rd))
		}
		return result, desc, nil

	default:
		return nil, "", &EvalError{Node: fmt.Sprintf("%T", n), Msg: "unknown node variant"}
	}
}

// evalScalar evaluates n and coerces the result to a scalar; sequences sum.
func evalScalar(n Node, vars Bindings, st *evalState) (Number, string, error) {
	v, desc, err := eval(n, vars, st)
	if err != nil {
		return Number{}, "", err
	}
	return v.Scalar(), desc, nil
}

// parenIf wraps s in parentheses when child is an operator node binding more
// loosely than parentPrec, mirroring the formula's structure in the trace.
func parenIf(child Node, parentPrec int, s string) string {
	if prec := precedence(child); prec < parentPrec && prec < atomPrec {
		return "(" + s + ")"
	}
	return s
}

func evalSequence(n *SequenceLit, vars Bindings, st *evalState) (Value, string, error) {
	if n.IsRange() {
		start, sd, err := evalScalar(n.Start, vars, st)
		if err != nil {
			return nil, "", err
		}
		stop, ed, err := evalScalar(n.Stop, vars, st)
		if err != nil {
			return nil, "", err
		}
		var seq Sequence
		for v := start.Int(); v <= stop.Int(); v++ {
			seq = append(seq, v)
		}
		desc := ""
		if st.trace {
			desc = fmt.Sprintf("{%s..%s}", sd, ed)
		}
		return seq, desc, nil
	}

	seq := make(Sequence, 0, len(n.Elems))
	descs := make([]string, 0, len(n.Elems))
	for _, elem := range n.Elems {
		v, d, err := evalScalar(elem, vars, st)
		if err != nil {
			return nil, "", err
		}
		seq = append(seq, v.Int())
		if st.trace {
			if isOpNode(elem) {
				d += " = " + v.String()
			}
			descs = append(descs, d)
		}
	}
	desc := ""
	if st.trace {
		desc = fmt.Sprintf("{%s}", strings.Join(descs, ", "))
	}
	return seq, desc, nil
}

func isOpNode(n Node) bool {
	switch n.(type) {
	case *UnaryOp, *BinaryOp:
		return true
	default:
		return false
	}
}

func evalVariable(n *Variable, vars Bindings, st *evalState) (Value, string, error) {
	bound, ok := vars[strings.ToLower(n.Name)]
	if !ok {
		return nil, "", &UnknownNameError{Name: n.Name}
	}
	v, desc, err := boundValue(n, bound, vars, st)
	if err != nil {
		return nil, "", err
	}
	if st.trace && desc == "" {
		desc = fmt.Sprintf("%s[%s]", n.Name, v.String())
	}
	return v, desc, nil
}

// boundValue converts one binding into a formula Value. Nested formulas are
// evaluated in place against the current context, so "1d20 + STR" works when
// STR is itself a small formula.
func boundValue(n *Variable, bound any, vars Bindings, st *evalState) (Value, string, error) {
	switch b := bound.(type) {
	case int:
		return IntNumber(int64(b)), "", nil
	case int8:
		return IntNumber(int64(b)), "", nil
	case int16:
		return IntNumber(int64(b)), "", nil
	case int32:
		return IntNumber(int64(b)), "", nil
	case int64:
		return IntNumber(b), "", nil
	case uint:
		return IntNumber(int64(b)), "", nil
	case uint32:
		return IntNumber(int64(b)), "", nil
	case float32:
		return FloatNumber(float64(b)), "", nil
	case float64:
		return FloatNumber(b), "", nil
	case Number:
		return b, "", nil
	case Sequence:
		return b, "", nil
	case []int64:
		return Sequence(b), "", nil
	case *Formula:
		v, d, err := eval(b.ast, overlay(b.vars, vars), st)
		if err != nil {
			return nil, "", err
		}
		if st.trace && isOpNode(b.ast) {
			d += " = " + v.Scalar().String()
		}
		return v, d, nil
	case Result:
		desc := ""
		if st.trace {
			desc = b.Value.String()
		}
		return b.Value, desc, nil
	default:
		if _, ok := asFunction(bound); ok {
			return nil, "", &EvalError{Node: n.Name, Msg: "bound to a function; call it with ()"}
		}
		return nil, "", &EvalError{Node: n.Name, Msg: fmt.Sprintf("unsupported binding type %T", bound)}
	}
}

// asFunction adapts the callable shapes accepted in bindings to Function.
func asFunction(v any) (Function, bool) {
	switch fn := v.(type) {
	case Function:
		return fn, true
	case func(...Value) (Value, error):
		return fn, true
	case func() (Value, error):
		return func(args ...Value) (Value, error) {
			if len(args) != 0 {
				return nil, fmt.Errorf("dice: function takes no arguments, got %d", len(args))
			}
			return fn()
		}, true
	case func(Value) (Value, error):
		return func(args ...Value) (Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("dice: function takes one argument, got %d", len(args))
			}
			return fn(args[0])
		}, true
	default:
		return nil, false
	}
}

func evalFunctionCall(n *FunctionCall, vars Bindings, st *evalState) (Value, string, error) {
	name := strings.ToLower(n.Name)
	var fn Function
	if bound, ok := vars[name]; ok {
		fn, ok = asFunction(bound)
		if !ok {
			return nil, "", &EvalError{Node: n.Name, Msg: fmt.Sprintf("%T is not callable", bound)}
		}
	} else if builtin, ok := builtins[name]; ok {
		fn = builtin
	} else {
		return nil, "", &UnknownNameError{Name: n.Name}
	}

	args, descs, err := prepArgs(n.Args, vars, st, false)
	if err != nil {
		return nil, "", err
	}
	result, err := fn(args...)
	if err != nil {
		return nil, "", fmt.Errorf("dice: %s: %w", n.Name, err)
	}
	desc := ""
	if st.trace {
		desc = fmt.Sprintf("%s(%s)=>%s", n.Name, strings.Join(descs, ", "), result.String())
	}
	return result, desc, nil
}

func evalSeqMethod(n *SeqMethodCall, vars Bindings, st *evalState) (Value, string, error) {
	method, ok := seqMethods[strings.ToLower(n.Name)]
	if !ok {
		return nil, "", &UnknownNameError{Name: n.Name}
	}
	recv, recvDesc, err := eval(n.Recv, vars, st)
	if err != nil {
		return nil, "", err
	}
	seq, ok := recv.(Sequence)
	if !ok {
		return nil, "", &EvalError{Node: n.String(), Msg: fmt.Sprintf("method %s requires a sequence receiver", n.Name)}
	}
	args, descs, err := prepArgs(n.Args, vars, st, true)
	if err != nil {
		return nil, "", err
	}
	result, err := method(append([]Value{seq}, args...)...)
	if err != nil {
		return nil, "", fmt.Errorf("dice: %s: %w", n.Name, err)
	}
	desc := ""
	if st.trace {
		desc = fmt.Sprintf("%s.%s(%s)=>%s", recvDesc, n.Name, strings.Join(descs, ", "), result.String())
	}
	return result, desc, nil
}

// prepArgs evaluates call arguments. For plain functions, dice and sequence
// arguments coerce to their scalar sum (with the sum shown in the trace);
// sequence methods receive sequences untouched.
func prepArgs(args []Node, vars Bindings, st *evalState, seqMethod bool) ([]Value, []string, error) {
	values := make([]Value, 0, len(args))
	descs := make([]string, 0, len(args))
	for _, a := range args {
		var (
			v   Value
			d   string
			err error
		)
		coerce := false
		if !seqMethod {
			switch a.(type) {
			case *SequenceLit, *DieRoll:
				coerce = true
			}
		}
		if coerce {
			var num Number
			num, d, err = evalScalar(a, vars, st)
			if err != nil {
				return nil, nil, err
			}
			if st.trace && d != "" {
				d += "=>" + num.String()
			}
			v = num
		} else {
			v, d, err = eval(a, vars, st)
			if err != nil {
				return nil, nil, err
			}
		}
		values = append(values, v)
		if st.trace {
			descs = append(descs, d)
		}
	}
	return values, descs, nil
}

// evalDieRoll resolves the face set, draws count dice (or forces min/max for
// bound computation), applies modifiers in formula order, and renders the
// "NdS<mods>[r1+r2+...=sum]" trace fragment.
func evalDieRoll(n *DieRoll, vars Bindings, st *evalState) (Value, string, error) {
	faces, err := st.resolveFaces(n, vars)
	if err != nil {
		return nil, "", err
	}
	minFace, maxFace := minMaxFaces(faces)

	// Degenerate explode checks happen before any dice are drawn. An 'e'
	// threshold at or below the minimum face would explode every die
	// forever. An 'x' over a single-valued face set whose trigger is
	// reachable would re-draw the same maximum face forever.
	for _, m := range n.Mods {
		switch m.Code {
		case 'e':
			threshold := maxFace
			if m.HasN {
				threshold = m.N
			}
			if threshold <= minFace {
				return nil, "", &DegenerateModifierError{Die: n.String(), Threshold: threshold, MinFace: minFace}
			}
		case 'x':
			threshold := int64(n.Count) * maxFace
			if m.HasN {
				threshold = m.N
			}
			if minFace >= maxFace && int64(n.Count)*maxFace >= threshold {
				return nil, "", &DegenerateModifierError{Die: n.String(), Threshold: threshold, MinFace: minFace}
			}
		}
	}

	sig := n.String()
	st.sigCount[sig]++
	id := fmt.Sprintf("%s#%d", sig, st.sigCount[sig])

	// Bound computation: every die at its extreme face, modifiers skipped.
	if st.forceMin || st.forceMax {
		face := minFace
		if st.forceMax {
			face = maxFace
		}
		total := face * int64(n.Count)
		desc := ""
		if st.trace {
			desc = fmt.Sprintf("%s[%d]", sig, total)
		}
		return IntNumber(total), desc, nil
	}

	dieType := "d" + n.Faces.String()
	dice := make([]*die, 0, n.Count)
	for i := 0; i < n.Count; i++ {
		dice = append(dice, st.rollDie(dieType, faces))
	}

	for _, m := range n.Mods {
		dice, err = applyMod(m, n, dieType, dice, faces, st)
		if err != nil {
			return nil, "", err
		}
	}
	st.rolls[id] = dice
	st.order = append(st.order, id)

	seq := make(Sequence, len(dice))
	for i, d := range dice {
		seq[i] = d.value
	}

	desc := ""
	if st.trace {
		var sb strings.Builder
		sb.WriteString(sig)
		sb.WriteByte('[')
		if len(dice) > 1 {
			for i, d := range dice {
				if i > 0 {
					sb.WriteByte('+')
				}
				sb.WriteString(d.desc)
			}
			sb.WriteByte('=')
		}
		sb.WriteString(strconv.FormatInt(seq.Sum(), 10))
		sb.WriteByte(']')
		desc = sb.String()
	}
	return seq, desc, nil
}

// overlay merges binding maps, later maps winning, with keys lowercased for
// case-insensitive resolution.
func overlay(maps ...Bindings) Bindings {
	merged := make(Bindings)
	for _, m := range maps {
		for k, v := range m {
			merged[strings.ToLower(k)] = v
		}
	}
	return merged
}
