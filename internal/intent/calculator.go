package intent

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

const maxExpressionLen = 100

// Limits on integer exponentiation keep evaluation bounded.
const (
	maxExponent   = 10000
	maxResultBits = 1 << 16
)

var (
	errSyntax         = errors.New("invalid expression")
	errDivisionByZero = errors.New("division by zero")
	errOverflow       = errors.New("result out of range")
)

var chineseDigits = strings.NewReplacer(
	"零", "0", "一", "1", "二", "2", "三", "3", "四", "4",
	"五", "5", "六", "6", "七", "7", "八", "8", "九", "9",
)

var (
	commandPrefixes = []string{"请", "帮我", "计算", "算一下", "算", "calculate"}
	questionSuffixes = []string{"等于多少", "等于几", "是多少", "等于", "=?", "=？", "=", "?", "？"}
)

// NormalizeExpression strips whitespace, maps Chinese digits and removes
// surrounding command words. ok is false unless the remainder consists solely
// of digits, the operators + - * / and parentheses or dots, and is at most 100
// characters long.
func NormalizeExpression(text string) (expr string, ok bool) {
	expr = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	expr = chineseDigits.Replace(expr)

	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(expr)
		for _, p := range commandPrefixes {
			if strings.HasPrefix(lower, p) {
				expr = expr[len(p):]
				changed = true
				break
			}
		}
	}
	for changed := true; changed; {
		changed = false
		for _, s := range questionSuffixes {
			if strings.HasSuffix(expr, s) {
				expr = expr[:len(expr)-len(s)]
				changed = true
				break
			}
		}
	}

	if expr == "" || len(expr) > maxExpressionLen {
		return "", false
	}
	for _, r := range expr {
		if !strings.ContainsRune("0123456789+-*/().", r) {
			return "", false
		}
	}
	return expr, true
}

// isArithmetic reports whether text is nothing but an arithmetic expression
// with at least one binary operator.
func isArithmetic(text string) bool {
	expr, ok := NormalizeExpression(text)
	if !ok || !strings.ContainsAny(expr, "0123456789") {
		return false
	}
	// A leading sign alone does not make an expression.
	return strings.ContainsAny(strings.TrimLeft(expr, "+-"), "+-*/")
}

// Evaluate computes expr with Python-compatible numeric semantics: integer
// arithmetic stays exact, "/" always yields a float, "//" floors and "**"
// binds tighter than unary minus.
func Evaluate(expr string) (string, error) {
	p := &parser{src: expr}
	v, err := p.parseExpr()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.src) {
		return "", fmt.Errorf("%w: unexpected %q at %d", errSyntax, p.src[p.pos:], p.pos)
	}
	return v.String(), nil
}

// number is either an exact integer or a float.
type number struct {
	i       *big.Int
	f       float64
	isFloat bool
}

func intNumber(i *big.Int) number { return number{i: i} }

func floatNumber(f float64) (number, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return number{}, errOverflow
	}
	return number{f: f, isFloat: true}, nil
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	f, _ := new(big.Float).SetInt(n.i).Float64()
	return f
}

func (n number) isZero() bool {
	if n.isFloat {
		return n.f == 0
	}
	return n.i.Sign() == 0
}

func (n number) String() string {
	if !n.isFloat {
		return n.i.String()
	}
	abs := math.Abs(n.f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(n.f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(n.f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek(tok string) bool {
	return strings.HasPrefix(p.src[p.pos:], tok)
}

func (p *parser) accept(tok string) bool {
	if p.peek(tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

// expr := term (("+" | "-") term)*
func (p *parser) parseExpr() (number, error) {
	left, err := p.parseTerm()
	if err != nil {
		return number{}, err
	}
	for {
		var op byte
		switch {
		case p.accept("+"):
			op = '+'
		case p.accept("-"):
			op = '-'
		default:
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return number{}, err
		}
		if left, err = apply(op, left, right); err != nil {
			return number{}, err
		}
	}
}

// term := unary (("*" | "/" | "//") unary)*
func (p *parser) parseTerm() (number, error) {
	left, err := p.parseUnary()
	if err != nil {
		return number{}, err
	}
	for {
		var op byte
		switch {
		case p.peek("**"):
			return left, nil
		case p.accept("//"):
			op = 'f'
		case p.accept("*"):
			op = '*'
		case p.accept("/"):
			op = '/'
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return number{}, err
		}
		if left, err = apply(op, left, right); err != nil {
			return number{}, err
		}
	}
}

// unary := ("+" | "-") unary | power
func (p *parser) parseUnary() (number, error) {
	switch {
	case p.accept("+"):
		return p.parseUnary()
	case p.accept("-"):
		v, err := p.parseUnary()
		if err != nil {
			return number{}, err
		}
		if v.isFloat {
			return floatNumber(-v.f)
		}
		return intNumber(new(big.Int).Neg(v.i)), nil
	}
	return p.parsePower()
}

// power := primary ("**" unary)?
func (p *parser) parsePower() (number, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return number{}, err
	}
	if !p.accept("**") {
		return base, nil
	}
	exp, err := p.parseUnary()
	if err != nil {
		return number{}, err
	}
	return power(base, exp)
}

// primary := number | "(" expr ")"
func (p *parser) parsePrimary() (number, error) {
	if p.accept("(") {
		v, err := p.parseExpr()
		if err != nil {
			return number{}, err
		}
		if !p.accept(")") {
			return number{}, fmt.Errorf("%w: missing closing parenthesis", errSyntax)
		}
		return v, nil
	}
	return p.parseNumber()
}

func (p *parser) parseNumber() (number, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." || dots > 1 {
		return number{}, fmt.Errorf("%w: bad number at %d", errSyntax, start)
	}
	if dots == 1 {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return number{}, fmt.Errorf("%w: %v", errSyntax, err)
		}
		return floatNumber(f)
	}
	if len(lit) > 1 && lit[0] == '0' && strings.Trim(lit, "0") != "" {
		return number{}, fmt.Errorf("%w: leading zeros in %q", errSyntax, lit)
	}
	i, ok := new(big.Int).SetString(lit, 10)
	if !ok {
		return number{}, fmt.Errorf("%w: bad integer %q", errSyntax, lit)
	}
	return intNumber(i), nil
}

func apply(op byte, a, b number) (number, error) {
	if (op == '/' || op == 'f') && b.isZero() {
		return number{}, errDivisionByZero
	}

	if op == '/' {
		if !a.isFloat && !b.isFloat {
			q, _ := new(big.Rat).SetFrac(a.i, b.i).Float64()
			return floatNumber(q)
		}
		return floatNumber(a.float() / b.float())
	}

	if a.isFloat || b.isFloat {
		x, y := a.float(), b.float()
		switch op {
		case '+':
			return floatNumber(x + y)
		case '-':
			return floatNumber(x - y)
		case '*':
			return floatNumber(x * y)
		case 'f':
			return floatNumber(math.Floor(x / y))
		}
		return number{}, fmt.Errorf("%w: operator %c", errSyntax, op)
	}

	r := new(big.Int)
	switch op {
	case '+':
		r.Add(a.i, b.i)
	case '-':
		r.Sub(a.i, b.i)
	case '*':
		r.Mul(a.i, b.i)
	case 'f':
		m := new(big.Int)
		r.QuoRem(a.i, b.i, m)
		if m.Sign() != 0 && m.Sign() != b.i.Sign() {
			r.Sub(r, big.NewInt(1))
		}
	default:
		return number{}, fmt.Errorf("%w: operator %c", errSyntax, op)
	}
	if r.BitLen() > maxResultBits {
		return number{}, errOverflow
	}
	return intNumber(r), nil
}

func power(base, exp number) (number, error) {
	if !base.isFloat && !exp.isFloat && exp.i.Sign() >= 0 {
		if !exp.i.IsInt64() || exp.i.Int64() > maxExponent {
			return number{}, errOverflow
		}
		if int64(base.i.BitLen())*exp.i.Int64() > maxResultBits {
			return number{}, errOverflow
		}
		return intNumber(new(big.Int).Exp(base.i, exp.i, nil)), nil
	}

	x, y := base.float(), exp.float()
	if x == 0 && y < 0 {
		return number{}, errDivisionByZero
	}
	if x < 0 && y != math.Trunc(y) {
		return number{}, fmt.Errorf("%w: fractional power of negative number", errSyntax)
	}
	return floatNumber(math.Pow(x, y))
}
