/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package platform evaluates the platform restrictions cargo attaches to
// dependencies, e.g. `cfg(target_os = "windows")` or a bare target triple.
package platform

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("invalid platform expression")

// Cfg is a single configuration flag reported by rustc: either a bare name
// such as `unix` or a key/value pair such as `target_os="linux"`.
type Cfg struct {
	Key   string
	Value string
	// HasValue distinguishes `key=""` from the bare name `key`.
	HasValue bool
}

// Name returns a bare-name cfg.
func Name(name string) Cfg {
	return Cfg{Key: name}
}

// KeyPair returns a key/value cfg.
func KeyPair(key, value string) Cfg {
	return Cfg{Key: key, Value: value, HasValue: true}
}

func (c Cfg) String() string {
	if !c.HasValue {
		return c.Key
	}
	return fmt.Sprintf("%s = %q", c.Key, c.Value)
}

// ParseCfgs parses the output of `rustc --print cfg`, one cfg per line.
func ParseCfgs(output string) ([]Cfg, error) {
	var cfgs []Cfg
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p := &parser{lex: newLexer(line)}
		cfg, err := p.cfg()
		if err != nil {
			return nil, err
		}
		if err := p.expectEnd(); err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

type exprKind int

const (
	exprAll exprKind = iota
	exprAny
	exprNot
	exprValue
)

// Expr is a parsed cfg() expression.
type Expr struct {
	kind  exprKind
	args  []Expr
	value Cfg
}

// Matches evaluates the expression against a set of cfgs. all() of nothing
// is true, any() of nothing is false.
func (e Expr) Matches(cfgs []Cfg) bool {
	switch e.kind {
	case exprAll:
		for _, arg := range e.args {
			if !arg.Matches(cfgs) {
				return false
			}
		}
		return true
	case exprAny:
		for _, arg := range e.args {
			if arg.Matches(cfgs) {
				return true
			}
		}
		return false
	case exprNot:
		return !e.args[0].Matches(cfgs)
	default:
		return slices.Contains(cfgs, e.value)
	}
}

func (e Expr) String() string {
	switch e.kind {
	case exprAll, exprAny:
		name := "all"
		if e.kind == exprAny {
			name = "any"
		}
		parts := make([]string, len(e.args))
		for i, arg := range e.args {
			parts[i] = arg.String()
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	case exprNot:
		return "not(" + e.args[0].String() + ")"
	default:
		return e.value.String()
	}
}

// Platform is the parsed `target` field of a dependency.
type Platform struct {
	triple string
	expr   *Expr
}

// Parse parses either `cfg(<expr>)` or a target triple name.
func Parse(raw string) (Platform, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "cfg("); ok {
		body, ok := strings.CutSuffix(rest, ")")
		if !ok {
			return Platform{}, fmt.Errorf("%w: %q: missing closing parenthesis", ErrSyntax, raw)
		}
		p := &parser{lex: newLexer(body)}
		expr, err := p.expr()
		if err != nil {
			return Platform{}, fmt.Errorf("%q: %w", raw, err)
		}
		if err := p.expectEnd(); err != nil {
			return Platform{}, fmt.Errorf("%q: %w", raw, err)
		}
		return Platform{expr: &expr}, nil
	}

	if raw == "" {
		return Platform{}, fmt.Errorf("%w: empty target name", ErrSyntax)
	}
	for _, r := range raw {
		if !isIdentRune(r) && r != '-' && r != '.' {
			return Platform{}, fmt.Errorf("%w: %q: invalid character %q in target name", ErrSyntax, raw, r)
		}
	}
	return Platform{triple: raw}, nil
}

// Matches reports whether the platform applies when compiling for triple
// with the given cfgs.
func (p Platform) Matches(triple string, cfgs []Cfg) bool {
	if p.expr != nil {
		return p.expr.Matches(cfgs)
	}
	return p.triple == triple
}

func (p Platform) String() string {
	if p.expr != nil {
		return "cfg(" + p.expr.String() + ")"
	}
	return p.triple
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokComma
	tokEquals
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}

	r := l.src[l.pos]
	switch r {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case '=':
		l.pos++
		return token{kind: tokEquals, text: "="}, nil
	case '"':
		start := l.pos + 1
		end := start
		for end < len(l.src) && l.src[end] != '"' {
			end++
		}
		if end >= len(l.src) {
			return token{}, fmt.Errorf("%w: unterminated string", ErrSyntax)
		}
		l.pos = end + 1
		return token{kind: tokString, text: string(l.src[start:end])}, nil
	}

	if isIdentStart(r) {
		start := l.pos
		for l.pos < len(l.src) && isIdentRune(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
	}
	return token{}, fmt.Errorf("%w: unexpected character %q", ErrSyntax, r)
}

type parser struct {
	lex    *lexer
	peeked *token
}

func (p *parser) peek() (token, error) {
	if p.peeked == nil {
		t, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.peeked = &t
	}
	return *p.peeked, nil
}

func (p *parser) take() (token, error) {
	t, err := p.peek()
	p.peeked = nil
	return t, err
}

func (p *parser) expect(kind tokenKind, what string) error {
	t, err := p.take()
	if err != nil {
		return err
	}
	if t.kind != kind {
		return fmt.Errorf("%w: expected %s, found %q", ErrSyntax, what, t.text)
	}
	return nil
}

func (p *parser) expectEnd() error {
	t, err := p.peek()
	if err != nil {
		return err
	}
	if t.kind != tokEOF {
		return fmt.Errorf("%w: unexpected %q after expression", ErrSyntax, t.text)
	}
	return nil
}

func (p *parser) expr() (Expr, error) {
	t, err := p.peek()
	if err != nil {
		return Expr{}, err
	}
	if t.kind != tokIdent {
		return Expr{}, fmt.Errorf("%w: expected identifier, found %q", ErrSyntax, t.text)
	}

	switch t.text {
	case "all", "any", "not":
		if _, err := p.take(); err != nil {
			return Expr{}, err
		}
		if next, err := p.peek(); err != nil {
			return Expr{}, err
		} else if next.kind != tokLParen {
			// A cfg literally named all/any/not.
			return Expr{kind: exprValue, value: Name(t.text)}, nil
		}
		return p.call(t.text)
	}

	cfg, err := p.cfg()
	if err != nil {
		return Expr{}, err
	}
	return Expr{kind: exprValue, value: cfg}, nil
}

func (p *parser) call(name string) (Expr, error) {
	if err := p.expect(tokLParen, "("); err != nil {
		return Expr{}, err
	}

	var args []Expr
	for {
		t, err := p.peek()
		if err != nil {
			return Expr{}, err
		}
		if t.kind == tokRParen {
			break
		}
		arg, err := p.expr()
		if err != nil {
			return Expr{}, err
		}
		args = append(args, arg)

		t, err = p.peek()
		if err != nil {
			return Expr{}, err
		}
		if t.kind != tokComma {
			break
		}
		if _, err := p.take(); err != nil {
			return Expr{}, err
		}
	}
	if err := p.expect(tokRParen, ")"); err != nil {
		return Expr{}, err
	}

	switch name {
	case "all":
		return Expr{kind: exprAll, args: args}, nil
	case "any":
		return Expr{kind: exprAny, args: args}, nil
	default:
		if len(args) != 1 {
			return Expr{}, fmt.Errorf("%w: not() takes exactly one argument, got %d", ErrSyntax, len(args))
		}
		return Expr{kind: exprNot, args: args}, nil
	}
}

func (p *parser) cfg() (Cfg, error) {
	t, err := p.take()
	if err != nil {
		return Cfg{}, err
	}
	if t.kind != tokIdent {
		return Cfg{}, fmt.Errorf("%w: expected identifier, found %q", ErrSyntax, t.text)
	}

	next, err := p.peek()
	if err != nil {
		return Cfg{}, err
	}
	if next.kind != tokEquals {
		return Name(t.text), nil
	}
	if _, err := p.take(); err != nil {
		return Cfg{}, err
	}
	value, err := p.take()
	if err != nil {
		return Cfg{}, err
	}
	if value.kind != tokString {
		return Cfg{}, fmt.Errorf("%w: expected string after %s =, found %q", ErrSyntax, t.text, value.text)
	}
	return KeyPair(t.text, value.text), nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
