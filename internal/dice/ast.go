package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is one variant of the formula syntax tree. The set of implementations
// is closed: Literal, DieRoll, SequenceLit, Variable, FunctionCall,
// SeqMethodCall, UnaryOp, and BinaryOp. Nodes are immutable after parse;
// evaluation never mutates the tree.
//
// String returns the canonical re-emission of the node. Parsing the canonical
// form yields a structurally equal tree.
type Node interface {
	fmt.Stringer
	node()
}

// Literal is an integer or real constant.
type Literal struct {
	Value Number
}

func (*Literal) node() {}

func (l *Literal) String() string { return l.Value.String() }

// Mod is a single die-roll modifier suffix: drop-lowest 'd', keep-highest
// 'k', reroll-low 'r', explode 'e', or modified-explode 'x', each with an
// optional integer argument.
type Mod struct {
	Code byte
	N    int64
	HasN bool
}

func (m Mod) String() string {
	if m.HasN {
		return string(m.Code) + strconv.FormatInt(m.N, 10)
	}
	return string(m.Code)
}

// DieRoll is a dice sub-expression: count, face specification, and modifier
// suffixes in formula order. Faces is either an integer Literal (faces 1..N)
// or a SequenceLit of explicit face values.
type DieRoll struct {
	Count int
	Faces Node
	Mods  []Mod
}

func (*DieRoll) node() {}

func (d *DieRoll) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(d.Count))
	sb.WriteByte('d')
	sb.WriteString(d.Faces.String())
	for _, m := range d.Mods {
		sb.WriteString(m.String())
	}
	return sb.String()
}

// SequenceLit is a sequence literal: an explicit element list "{a, b, c}" or
// an inclusive numeric range "{a..b}". The range form sets Start and Stop and
// leaves Elems nil.
type SequenceLit struct {
	Elems []Node
	Start Node
	Stop  Node
}

func (*SequenceLit) node() {}

// IsRange reports whether the literal is the "{a..b}" range form.
func (s *SequenceLit) IsRange() bool { return s.Start != nil && s.Stop != nil }

func (s *SequenceLit) String() string {
	if s.IsRange() {
		return fmt.Sprintf("{%s..%s}", s.Start, s.Stop)
	}
	parts := make([]string, len(s.Elems))
	for i, e := range s.Elems {
		parts[i] = e.String()
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

// Variable is a name reference resolved against bindings at evaluation time.
// Resolution is case-insensitive; Name preserves the formula's spelling for
// trace output.
type Variable struct {
	Name string
}

func (*Variable) node() {}

func (v *Variable) String() string { return v.Name }

// FunctionCall invokes a built-in or caller-bound function by name.
type FunctionCall struct {
	Name string
	Args []Node
}

func (*FunctionCall) node() {}

func (f *FunctionCall) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, joinNodes(f.Args))
}

// SeqMethodCall is the chained-method form, e.g. "2d20.lowest(1)": a function
// whose implicit receiver is the preceding dice, sequence, or function
// sub-expression. Chains fold left, each call wrapping the previous.
type SeqMethodCall struct {
	Recv Node
	Name string
	Args []Node
}

func (*SeqMethodCall) node() {}

func (s *SeqMethodCall) String() string {
	return fmt.Sprintf("%s.%s(%s)", s.Recv, s.Name, joinNodes(s.Args))
}

// UnaryOp is a prefix '+' or '-'.
type UnaryOp struct {
	Op      byte
	Operand Node
}

func (*UnaryOp) node() {}

func (u *UnaryOp) String() string {
	operand := u.Operand.String()
	if precedence(u.Operand) < unaryPrec {
		operand = "(" + operand + ")"
	}
	return string(u.Op) + operand
}

// BinaryOp applies '+', '-', '*', '/', or '^' to two operands. Same-precedence
// chains of left-associative operators parse into a left-deep tree.
type BinaryOp struct {
	Op  byte
	LHS Node
	RHS Node
}

func (*BinaryOp) node() {}

func (b *BinaryOp) String() string {
	p := precedence(b)
	l := b.LHS.String()
	r := b.RHS.String()
	// Parenthesize where re-parsing would otherwise regroup the tree:
	// strictly lower precedence on either side, or equal precedence on the
	// non-associative side.
	if lp := precedence(b.LHS); lp < p || (lp == p && b.Op == '^') {
		l = "(" + l + ")"
	}
	if rp := precedence(b.RHS); rp < p || (rp == p && b.Op != '^') {
		r = "(" + r + ")"
	}
	return fmt.Sprintf("%s %c %s", l, b.Op, r)
}

// Operator precedence levels. Atoms rank above every operator so they are
// never parenthesized.
const (
	addPrec   = 1
	mulPrec   = 2
	unaryPrec = 3
	powPrec   = 4
	atomPrec  = 5
)

// precedence returns the binding strength of n's top-level operator, or
// atomPrec for non-operator nodes.
func precedence(n Node) int {
	switch n := n.(type) {
	case *BinaryOp:
		switch n.Op {
		case '^':
			return powPrec
		case '*', '/':
			return mulPrec
		default:
			return addPrec
		}
	case *UnaryOp:
		return unaryPrec
	default:
		return atomPrec
	}
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
