package dice

import (
	"fmt"
	"strconv"
)

// parser is a hand-written scanner and operator-precedence parser over raw
// formula text. Die rolls are whitespace-sensitive ("2d6" is a roll, "2 d6"
// is not), so the parser works at the byte level instead of over a separate
// token stream.
type parser struct {
	src string
	pos int
}

// parseFormula parses a complete expression and requires the entire input to
// be consumed.
//
// Postcondition: Returns a non-nil Node or a *SyntaxError; never both.
func parseFormula(src string) (Node, error) {
	p := &parser{src: src}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("empty formula")
	}
	n, err := p.parseExpr(addPrec)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.rest())
	}
	return n, nil
}

func (p *parser) errorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Expr: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

// peek returns the current byte, or 0 at end of input.
func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// peekAt returns the byte at offset n past the current position, or 0.
func (p *parser) peekAt(n int) byte {
	if p.pos+n >= len(p.src) {
		return 0
	}
	return p.src[p.pos+n]
}

// rest returns up to 16 bytes of unconsumed input for error messages.
func (p *parser) rest() string {
	end := p.pos + 16
	if end > len(p.src) {
		end = len(p.src)
	}
	return p.src[p.pos:end]
}

func (p *parser) skipSpace() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// binaryPrec returns the precedence of c as a binary operator, or 0 when c is
// not one.
func binaryPrec(c byte) int {
	switch c {
	case '+', '-':
		return addPrec
	case '*', '/':
		return mulPrec
	case '^':
		return powPrec
	default:
		return 0
	}
}

// parseExpr parses by precedence climbing: binary operators bind only while
// their precedence is at least minPrec. Left-associative chains fold into a
// left-deep tree; '^' is right-associative.
func (p *parser) parseExpr(minPrec int) (Node, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		prec := binaryPrec(op)
		if prec == 0 || prec < minPrec {
			return lhs, nil
		}
		p.pos++
		var rhs Node
		if op == '^' {
			rhs, err = p.parseExpr(prec)
		} else {
			rhs, err = p.parseExpr(prec + 1)
		}
		if err != nil {
			return nil, err
		}
		lhs = &BinaryOp{Op: op, LHS: lhs, RHS: rhs}
	}
}

// parseUnary handles prefix '+'/'-'. The operand binds everything above unary
// precedence, so "-2^2" parses as -(2^2) while "-2*3" parses as (-2)*3.
func (p *parser) parseUnary() (Node, error) {
	p.skipSpace()
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
		operand, err := p.parseExpr(powPrec)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: c, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses an atom followed by any chained sequence-method calls.
// Only dice, sequences, functions, and prior method calls accept a method
// chain; for anything else the '.' is left unconsumed.
func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.peek() == '.' {
		switch n.(type) {
		case *DieRoll, *SequenceLit, *FunctionCall, *SeqMethodCall:
		default:
			return n, nil
		}
		save := p.pos
		p.pos++
		name := p.scanIdent()
		if name == "" || p.peek() != '(' {
			p.pos = save
			return n, nil
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		n = &SeqMethodCall{Recv: n, Name: name, Args: args}
	}
	return n, nil
}

func (p *parser) parseAtom() (Node, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		n, err := p.parseExpr(addPrec)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, p.errorf("expected ')'")
		}
		p.pos++
		return n, nil

	case c == '{':
		return p.parseSequence()

	case isDigit(c):
		return p.parseNumberOrRoll()

	case c == 'd' && (isDigit(p.peekAt(1)) || p.peekAt(1) == '{'):
		// Die roll with the count omitted: "d20" means "1d20".
		return p.parseRoll(1)

	case isIdentStart(c):
		name := p.scanIdent()
		if p.peek() == '(' {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &FunctionCall{Name: name, Args: args}, nil
		}
		return &Variable{Name: name}, nil

	case p.eof():
		return nil, p.errorf("unexpected end of formula")

	default:
		return nil, p.errorf("unexpected %q", p.rest())
	}
}

// parseNumberOrRoll disambiguates a leading digit run: a die roll when
// immediately followed by 'd' and a face specification, a real literal when
// followed by a fractional part, and an integer literal otherwise.
func (p *parser) parseNumberOrRoll() (Node, error) {
	digits := p.scanDigits()
	if p.peek() == 'd' && (isDigit(p.peekAt(1)) || p.peekAt(1) == '{') {
		count, err := strconv.Atoi(digits)
		if err != nil {
			return nil, p.errorf("invalid die count %q: %v", digits, err)
		}
		return p.parseRoll(count)
	}
	if p.peek() == '.' && isDigit(p.peekAt(1)) {
		p.pos++
		frac := p.scanDigits()
		f, err := strconv.ParseFloat(digits+"."+frac, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q: %v", digits+"."+frac, err)
		}
		return &Literal{Value: FloatNumber(f)}, nil
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q: %v", digits, err)
	}
	return &Literal{Value: IntNumber(v)}, nil
}

// parseRoll parses the remainder of a die roll starting at the 'd'. No
// whitespace is permitted within a roll, so nothing here skips spaces.
//
// Precondition: p.peek() == 'd' and the following byte starts a face
// specification.
func (p *parser) parseRoll(count int) (Node, error) {
	p.pos++ // 'd'
	var faces Node
	if p.peek() == '{' {
		seq, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		faces = seq
	} else {
		digits := p.scanDigits()
		v, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid die faces %q: %v", digits, err)
		}
		faces = &Literal{Value: IntNumber(v)}
	}
	return &DieRoll{Count: count, Faces: faces, Mods: p.scanMods()}, nil
}

// scanMods consumes modifier suffixes (d/k/r/e/x with optional integer
// argument) until a byte that cannot start one.
func (p *parser) scanMods() []Mod {
	var mods []Mod
	for {
		c := p.peek()
		switch c {
		case 'd', 'k', 'r', 'e', 'x':
			p.pos++
			m := Mod{Code: c}
			if isDigit(p.peek()) {
				n, err := strconv.ParseInt(p.scanDigits(), 10, 64)
				if err == nil {
					m.N = n
					m.HasN = true
				}
			}
			mods = append(mods, m)
		default:
			return mods
		}
	}
}

// parseSequence parses "{a..b}" or "{a, b, c}" starting at the '{'.
func (p *parser) parseSequence() (*SequenceLit, error) {
	p.pos++ // '{'
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return &SequenceLit{}, nil
	}
	first, err := p.parseExpr(addPrec)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == '.' && p.peekAt(1) == '.' {
		p.pos += 2
		stop, err := p.parseExpr(addPrec)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != '}' {
			return nil, p.errorf("expected '}' to close range")
		}
		p.pos++
		return &SequenceLit{Start: first, Stop: stop}, nil
	}
	elems := []Node{first}
	for p.peek() == ',' {
		p.pos++
		elem, err := p.parseExpr(addPrec)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		p.skipSpace()
	}
	if p.peek() != '}' {
		return nil, p.errorf("expected '}' to close sequence")
	}
	p.pos++
	return &SequenceLit{Elems: elems}, nil
}

// parseArgs parses a parenthesized, comma-separated argument list.
//
// Precondition: p.peek() == '('.
func (p *parser) parseArgs() ([]Node, error) {
	p.pos++ // '('
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return nil, nil
	}
	var args []Node
	for {
		arg, err := p.parseExpr(addPrec)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ')' in argument list")
		}
	}
}

func (p *parser) scanDigits() string {
	start := p.pos
	for !p.eof() && isDigit(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) scanIdent() string {
	if !isIdentStart(p.peek()) {
		return ""
	}
	start := p.pos
	for !p.eof() && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}
