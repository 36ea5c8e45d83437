package script

import (
	"fmt"
	"strconv"
	"strings"
)

// exprEval evaluates an integer/boolean expression after substitution.
// The grammar is the usual precedence ladder: || > && > equality >
// comparison > additive > multiplicative > unary > primary.
func (in *Interp) exprEval(raw string) (string, error) {
	substituted, err := in.subst(raw)
	if err != nil {
		return "", err
	}
	p := &exprParser{src: substituted}
	v, err := p.parseOr()
	if err != nil {
		return "", &ScriptError{Msg: fmt.Sprintf("invalid expression %q: %v", raw, err)}
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return "", &ScriptError{Msg: fmt.Sprintf("invalid expression %q: trailing garbage", raw)}
	}
	return v, nil
}

func (in *Interp) exprTruthy(raw string) (bool, error) {
	v, err := in.exprEval(raw)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *exprParser) parseOr() (string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		if !p.accept("||") {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return "", err
		}
		left = boolStr(truthy(left) || truthy(right))
	}
}

func (p *exprParser) parseAnd() (string, error) {
	left, err := p.parseEquality()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		if !p.accept("&&") {
			return left, nil
		}
		right, err := p.parseEquality()
		if err != nil {
			return "", err
		}
		left = boolStr(truthy(left) && truthy(right))
	}
}

func (p *exprParser) parseEquality() (string, error) {
	left, err := p.parseComparison()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		var op string
		switch {
		case p.accept("=="):
			op = "=="
		case p.accept("!="):
			op = "!="
		default:
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return "", err
		}
		eq := valueEq(left, right)
		if op == "==" {
			left = boolStr(eq)
		} else {
			left = boolStr(!eq)
		}
	}
}

func (p *exprParser) parseComparison() (string, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		var op string
		switch {
		case p.accept("<="):
			op = "<="
		case p.accept(">="):
			op = ">="
		case p.peek() == '<':
			p.pos++
			op = "<"
		case p.peek() == '>':
			p.pos++
			op = ">"
		default:
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return "", err
		}
		res, err := compare(left, right, op)
		if err != nil {
			return "", err
		}
		left = res
	}
}

func (p *exprParser) parseAdditive() (string, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		c := p.peek()
		if c != '+' && c != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return "", err
		}
		a, b, err := twoInts(left, right)
		if err != nil {
			return "", err
		}
		if c == '+' {
			left = strconv.FormatInt(a+b, 10)
		} else {
			left = strconv.FormatInt(a-b, 10)
		}
	}
}

func (p *exprParser) parseMultiplicative() (string, error) {
	left, err := p.parseUnary()
	if err != nil {
		return "", err
	}
	for {
		p.skipSpace()
		c := p.peek()
		if c != '*' && c != '/' && c != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		a, b, err := twoInts(left, right)
		if err != nil {
			return "", err
		}
		switch c {
		case '*':
			left = strconv.FormatInt(a*b, 10)
		case '/':
			if b == 0 {
				return "", fmt.Errorf("divide by zero")
			}
			left = strconv.FormatInt(a/b, 10)
		case '%':
			if b == 0 {
				return "", fmt.Errorf("divide by zero")
			}
			left = strconv.FormatInt(a%b, 10)
		}
	}
}

func (p *exprParser) parseUnary() (string, error) {
	p.skipSpace()
	switch p.peek() {
	case '!':
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		return boolStr(!truthy(v)), nil
	case '-':
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", fmt.Errorf("expected number, got %q", v)
		}
		return strconv.FormatInt(-n, 10), nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("unexpected end of expression")
	}
	c := p.src[p.pos]
	if c == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return "", err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return "", fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	if c == '"' {
		raw, next, err := scanQuoted(p.src, p.pos)
		if err != nil {
			return "", err
		}
		p.pos = next
		return raw, nil
	}
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || strings.IndexByte("()+-*/%<>=!&|", c) >= 0 {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("unexpected character %q", c)
	}
	tok := p.src[start:p.pos]
	switch strings.ToLower(tok) {
	case "true":
		return "1", nil
	case "false":
		return "0", nil
	}
	return tok, nil
}

func (p *exprParser) accept(op string) bool {
	if strings.HasPrefix(p.src[p.pos:], op) {
		p.pos += len(op)
		return true
	}
	return false
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func twoInts(a, b string) (int64, int64, error) {
	x, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("expected number, got %q", a)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("expected number, got %q", b)
	}
	return x, y, nil
}

func valueEq(a, b string) bool {
	x, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	y, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errA == nil && errB == nil {
		return x == y
	}
	return a == b
}

func compare(a, b, op string) (string, error) {
	var less, eq bool
	x, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	y, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errA == nil && errB == nil {
		less, eq = x < y, x == y
	} else {
		less, eq = a < b, a == b
	}
	switch op {
	case "<":
		return boolStr(less), nil
	case "<=":
		return boolStr(less || eq), nil
	case ">":
		return boolStr(!less && !eq), nil
	case ">=":
		return boolStr(!less), nil
	}
	return "", fmt.Errorf("unknown operator %q", op)
}
