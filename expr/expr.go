// Copyright 2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package expr evaluates the integer expressions accepted by the LLMP16
// assembler and debugger host: decimal, $hex, 0x/0b/0d-prefixed and 'c'
// character literals, identifiers resolved by the caller, parentheses, and
// the operators * / % + - << >> & ^ | ~ with C-like precedence.
package expr

import (
	"errors"
	"strconv"
)

// Errors returned by the parser.
var (
	ErrSyntax     = errors.New("expression syntax error")
	ErrDivideZero = errors.New("division by zero in expression")
)

// A Resolver maps identifiers appearing in an expression to values.
type Resolver interface {
	ResolveIdentifier(s string) (int64, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(s string) (int64, error)

// ResolveIdentifier calls f(s).
func (f ResolverFunc) ResolveIdentifier(s string) (int64, error) {
	return f(s)
}

type tokenType byte

const (
	tokenNil tokenType = iota
	tokenIdentifier
	tokenNumber
	tokenOp
	tokenLParen
	tokenRParen
)

type token struct {
	typ tokenType
	num int64
	id  string
	op  *operator
}

type opType byte

const (
	opNil opType = iota
	opMultiply
	opDivide
	opModulo
	opAdd
	opSubtract
	opShiftLeft
	opShiftRight
	opBitwiseAnd
	opBitwiseXor
	opBitwiseOr
	opBitwiseNot
	opUnaryMinus
	opUnaryPlus
	opUnaryBinary
)

type operator struct {
	typ        opType
	precedence byte
	rightAssoc bool
	args       byte
	unary      opType // operator to use when this symbol appears in unary position
	eval       func(a, b int64) (int64, error)
}

func binop(fn func(a, b int64) int64) func(a, b int64) (int64, error) {
	return func(a, b int64) (int64, error) { return fn(a, b), nil }
}

var operators = [...]operator{
	opNil:      {},
	opMultiply: {opMultiply, 6, false, 2, opNil, binop(func(a, b int64) int64 { return a * b })},
	opDivide: {opDivide, 6, false, 2, opNil, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideZero
		}
		return a / b, nil
	}},
	opModulo: {opModulo, 6, false, 2, opUnaryBinary, func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrDivideZero
		}
		return a % b, nil
	}},
	opAdd:         {opAdd, 5, false, 2, opUnaryPlus, binop(func(a, b int64) int64 { return a + b })},
	opSubtract:    {opSubtract, 5, false, 2, opUnaryMinus, binop(func(a, b int64) int64 { return a - b })},
	opShiftLeft:   {opShiftLeft, 4, false, 2, opNil, binop(func(a, b int64) int64 { return a << uint64(b&63) })},
	opShiftRight:  {opShiftRight, 4, false, 2, opNil, binop(func(a, b int64) int64 { return a >> uint64(b&63) })},
	opBitwiseAnd:  {opBitwiseAnd, 3, false, 2, opNil, binop(func(a, b int64) int64 { return a & b })},
	opBitwiseXor:  {opBitwiseXor, 2, false, 2, opNil, binop(func(a, b int64) int64 { return a ^ b })},
	opBitwiseOr:   {opBitwiseOr, 1, false, 2, opNil, binop(func(a, b int64) int64 { return a | b })},
	opBitwiseNot:  {opBitwiseNot, 7, true, 1, opNil, binop(func(a, b int64) int64 { return ^a })},
	opUnaryMinus:  {opUnaryMinus, 7, true, 1, opNil, binop(func(a, b int64) int64 { return -a })},
	opUnaryPlus:   {opUnaryPlus, 7, true, 1, opNil, binop(func(a, b int64) int64 { return a })},
	opUnaryBinary: {opUnaryBinary, 7, true, 1, opNil, func(a, b int64) (int64, error) { return fromBinary(a) }},
}

// Single-character operator symbols.
var symbols = map[byte]opType{
	'*': opMultiply,
	'/': opDivide,
	'%': opModulo,
	'+': opAdd,
	'-': opSubtract,
	'&': opBitwiseAnd,
	'^': opBitwiseXor,
	'|': opBitwiseOr,
	'~': opBitwiseNot,
}

// A Parser evaluates expressions using the shunting-yard algorithm. The zero
// value is ready to use. A Parser is not safe for concurrent use.
type Parser struct {
	// HexMode causes bare numbers to be read as hexadecimal.
	HexMode bool

	output    []token
	operators []token
	prev      tokenType
}

// Parse evaluates an expression, resolving identifiers with r. A nil
// resolver rejects every identifier.
func (p *Parser) Parse(s string, r Resolver) (int64, error) {
	p.output = p.output[:0]
	p.operators = p.operators[:0]
	p.prev = tokenNil

	for {
		tok, remain, err := p.next(s)
		if err != nil {
			return 0, err
		}
		if tok.typ == tokenNil {
			break
		}
		s = remain

		switch tok.typ {
		case tokenNumber:
			p.output = append(p.output, tok)

		case tokenIdentifier:
			if r == nil {
				return 0, ErrSyntax
			}
			v, err := r.ResolveIdentifier(tok.id)
			if err != nil {
				return 0, err
			}
			p.output = append(p.output, token{typ: tokenNumber, num: v})

		case tokenLParen:
			p.operators = append(p.operators, tok)

		case tokenRParen:
			found := false
			for len(p.operators) > 0 {
				top := p.popOperator()
				if top.typ == tokenLParen {
					found = true
					break
				}
				p.output = append(p.output, top)
			}
			if !found {
				return 0, ErrSyntax
			}

		case tokenOp:
			if p.prev == tokenOp || p.prev == tokenLParen || p.prev == tokenNil {
				if tok.op.unary == opNil && tok.op.args != 1 {
					return 0, ErrSyntax
				}
				if tok.op.unary != opNil {
					tok.op = &operators[tok.op.unary]
				}
			}
			for p.collapsible(tok.op) {
				p.output = append(p.output, p.popOperator())
			}
			p.operators = append(p.operators, tok)
		}

		p.prev = tok.typ
	}

	for len(p.operators) > 0 {
		tok := p.popOperator()
		if tok.typ == tokenLParen {
			return 0, ErrSyntax
		}
		p.output = append(p.output, tok)
	}

	v, err := p.eval()
	if err != nil {
		return 0, err
	}
	if len(p.output) != 0 {
		return 0, ErrSyntax
	}
	return v, nil
}

func (p *Parser) popOperator() token {
	n := len(p.operators) - 1
	tok := p.operators[n]
	p.operators = p.operators[:n]
	return tok
}

func (p *Parser) collapsible(op *operator) bool {
	if len(p.operators) == 0 {
		return false
	}
	top := p.operators[len(p.operators)-1]
	if top.typ != tokenOp {
		return false
	}
	if top.op.precedence > op.precedence {
		return true
	}
	return top.op.precedence == op.precedence && !op.rightAssoc
}

// Evaluate the postfix output stack from the top down.
func (p *Parser) eval() (int64, error) {
	if len(p.output) == 0 {
		return 0, ErrSyntax
	}
	n := len(p.output) - 1
	tok := p.output[n]
	p.output = p.output[:n]

	if tok.typ == tokenNumber {
		return tok.num, nil
	}
	if tok.typ != tokenOp {
		return 0, ErrSyntax
	}

	if tok.op.args == 1 {
		a, err := p.eval()
		if err != nil {
			return 0, err
		}
		return tok.op.eval(a, 0)
	}

	b, err := p.eval()
	if err != nil {
		return 0, err
	}
	a, err := p.eval()
	if err != nil {
		return 0, err
	}
	return tok.op.eval(a, b)
}

// Scan the next token from s.
func (p *Parser) next(s string) (tok token, remain string, err error) {
	s = skipSpace(s)
	if s == "" {
		return token{}, s, nil
	}

	c := s[0]
	switch {
	case c == '(':
		return token{typ: tokenLParen}, s[1:], nil
	case c == ')':
		return token{typ: tokenRParen}, s[1:], nil
	case c == '<' || c == '>':
		if len(s) < 2 || s[1] != c {
			return token{}, s, ErrSyntax
		}
		op := opShiftLeft
		if c == '>' {
			op = opShiftRight
		}
		return token{typ: tokenOp, op: &operators[op]}, s[2:], nil
	case c == '\'':
		if len(s) < 3 || s[2] != '\'' {
			return token{}, s, ErrSyntax
		}
		return token{typ: tokenNumber, num: int64(s[1])}, s[3:], nil
	case c == '$' || isDecimal(c):
		return p.number(s)
	case isIdentStart(c):
		if p.HexMode {
			if tok, remain, err := p.number(s); err == nil {
				return tok, remain, nil
			}
		}
		n := scan(s, isIdent)
		return token{typ: tokenIdentifier, id: s[:n]}, s[n:], nil
	}

	if op, ok := symbols[c]; ok {
		return token{typ: tokenOp, op: &operators[op]}, s[1:], nil
	}
	return token{}, s, ErrSyntax
}

func (p *Parser) number(s string) (tok token, remain string, err error) {
	base, digits := 10, isDecimal
	if p.HexMode {
		base, digits = 16, isHex
	}

	num := s
	switch {
	case num[0] == '$':
		base, digits, num = 16, isHex, num[1:]
	case len(num) > 2 && num[0] == '0' && (num[1] == 'x' || num[1] == 'X'):
		base, digits, num = 16, isHex, num[2:]
	case len(num) > 2 && num[0] == '0' && (num[1] == 'b' || num[1] == 'B') && isBinary(num[2]):
		base, digits, num = 2, isBinary, num[2:]
	case len(num) > 2 && num[0] == '0' && num[1] == 'd':
		base, digits, num = 10, isDecimal, num[2:]
	}

	n := scan(num, digits)
	if n == 0 || (n < len(num) && isIdent(num[n])) {
		return token{}, s, ErrSyntax
	}

	v, err := strconv.ParseInt(num[:n], base, 64)
	if err != nil {
		return token{}, s, ErrSyntax
	}
	return token{typ: tokenNumber, num: v}, num[n:], nil
}

// Reinterpret the decimal digits of a as a binary number, so that %101
// evaluates to 5.
func fromBinary(a int64) (int64, error) {
	v, err := strconv.ParseInt(strconv.FormatInt(a, 10), 2, 64)
	if err != nil {
		return 0, ErrSyntax
	}
	return v, nil
}

func skipSpace(s string) string {
	return s[scan(s, func(c byte) bool { return c == ' ' || c == '\t' }):]
}

func scan(s string, fn func(c byte) bool) int {
	i := 0
	for i < len(s) && fn(s[i]) {
		i++
	}
	return i
}

func isDecimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHex(c byte) bool {
	return isDecimal(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isBinary(c byte) bool {
	return c == '0' || c == '1'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.'
}

func isIdent(c byte) bool {
	return isIdentStart(c) || isDecimal(c)
}
