package dsl

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Binding powers, lowest first.
const (
	bpOr  = 10
	bpAnd = 20
	bpNot = 30
	bpIn  = 40
)

// Evaluator evaluates condition and assignment expressions.
//
// Grammar, loosest binding first:
//
//	expr    := expr "or" expr | expr "and" expr | "not" expr | expr "in" expr | atom
//	atom    := "defined" $name | $(shell) | "text" | 'text' | $name | ${name}
//	         | words... | "(" expr ")"
//
// Mappings, sequences and booleans given instead of a string evaluate to
// themselves.
type Evaluator struct {
	Shell Shell
	Files *Files
}

// Evaluate evaluates expr against scope and returns its (truth, value) pair.
func (ev *Evaluator) Evaluate(ctx context.Context, expr any, scope Scope) (Result, error) {
	s, ok := expr.(string)
	if !ok {
		if expr == nil {
			return Result{Value: ""}, nil
		}
		return Result{OK: Truthy(expr), Value: expr}, nil
	}
	if strings.TrimSpace(s) == "" {
		return Result{Value: ""}, nil
	}

	n, err := parseExpression(s)
	if err != nil {
		return Result{Value: ""}, err
	}
	res, err := n.eval(ctx, ev, scope)
	if err != nil {
		return Result{Value: ""}, err
	}
	return res, nil
}

type node interface {
	eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error)
}

type (
	varNode struct {
		name string
	}
	definedNode struct {
		name string
	}
	shellNode struct {
		body string
	}
	literalNode struct {
		text        string
		interpolate bool
	}
	notNode struct {
		operand node
	}
	andNode struct {
		left, right node
	}
	orNode struct {
		left, right node
	}
	inNode struct {
		left, right node
	}
	// wordsNode is a run of words and variables with at least one shell
	// substitution among them, such as `ls $(pwd)/bin`.
	wordsNode struct {
		src  string
		toks []token
	}
)

// Boolean variables carry truth but no text.
func (n varNode) eval(_ context.Context, _ *Evaluator, scope Scope) (Result, error) {
	v, ok := scope[n.name]
	if !ok || v == nil {
		return Result{Value: ""}, nil
	}
	if b, ok := v.(bool); ok {
		return Result{OK: b, Value: ""}, nil
	}
	return Result{OK: Truthy(v), Value: v}, nil
}

func (n definedNode) eval(_ context.Context, _ *Evaluator, scope Scope) (Result, error) {
	v, ok := scope[n.name]
	if !ok {
		return Result{Value: ""}, nil
	}
	return Result{OK: true, Value: v}, nil
}

func (n shellNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	if ev.Shell == nil {
		return Result{}, errors.New("shell substitution requires a shell")
	}
	cmd := Substitute(n.body, scope, ev.Files)
	res, err := ev.Shell.Run(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	return Result{OK: res.OK(), Value: res.Output}, nil
}

func (n literalNode) eval(_ context.Context, ev *Evaluator, scope Scope) (Result, error) {
	s := n.text
	if n.interpolate {
		s = Substitute(s, scope, ev.Files)
	}
	return Result{OK: s != "", Value: s}, nil
}

func (n notNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	r, err := n.operand.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	r.OK = !r.OK
	return r, nil
}

// A false left side decides an `and`. Otherwise the truth is the right
// side's, and the text is the right side's unless the left had none.
func (n andNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	l, err := n.left.eval(ctx, ev, scope)
	if err != nil || !l.OK {
		return l, err
	}
	r, err := n.right.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	if !Truthy(l.Value) {
		return Result{OK: r.OK, Value: l.Value}, nil
	}
	return r, nil
}

// A true left side decides an `or`. When it has no text, such as a boolean
// variable, a right side without shell substitutions may still supply it.
func (n orNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	l, err := n.left.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	if l.OK && (Truthy(l.Value) || !pure(n.right)) {
		return l, nil
	}
	r, err := n.right.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	if Truthy(l.Value) {
		return Result{OK: l.OK || r.OK, Value: l.Value}, nil
	}
	return Result{OK: l.OK || r.OK, Value: r.Value}, nil
}

func (n inNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	l, err := n.left.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	r, err := n.right.eval(ctx, ev, scope)
	if err != nil {
		return Result{}, err
	}
	haystack, ok := r.Value.(string)
	if !ok && r.Value != nil {
		return Result{}, &SyntaxError{Message: fmt.Sprintf("right side of 'in' must be a string, got %T", r.Value)}
	}
	return Result{OK: strings.Contains(haystack, Text(l.Value)), Value: l.Value}, nil
}

func (n wordsNode) eval(ctx context.Context, ev *Evaluator, scope Scope) (Result, error) {
	var b strings.Builder
	ok := true
	pos := n.toks[0].start
	for _, t := range n.toks {
		b.WriteString(n.src[pos:t.start])
		pos = t.end
		if t.kind != tokShell {
			b.WriteString(Substitute(n.src[t.start:t.end], scope, ev.Files))
			continue
		}
		r, err := shellNode{body: t.value}.eval(ctx, ev, scope)
		if err != nil {
			return Result{}, err
		}
		ok = ok && r.OK
		b.WriteString(Text(r.Value))
	}
	s := b.String()
	return Result{OK: ok && s != "", Value: s}, nil
}

// pure reports whether evaluating n runs no shell commands.
func pure(n node) bool {
	switch t := n.(type) {
	case varNode, definedNode, literalNode:
		return true
	case notNode:
		return pure(t.operand)
	case andNode:
		return pure(t.left) && pure(t.right)
	case orNode:
		return pure(t.left) && pure(t.right)
	case inNode:
		return pure(t.left) && pure(t.right)
	}
	return false
}

// parser is a Pratt parser over the token stream of one expression.
type parser struct {
	src  string
	toks []token
	pos  int
}

func parseExpression(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	n, err := p.expression(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t.kind)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{
		Directive: p.src,
		Message:   fmt.Sprintf(format, args...) + fmt.Sprintf(" at offset %d", t.start),
	}
}

func bindingPower(k tokenKind) int {
	switch k {
	case tokOr:
		return bpOr
	case tokAnd:
		return bpAnd
	case tokIn:
		return bpIn
	}
	return 0
}

func (p *parser) expression(rbp int) (node, error) {
	left, err := p.nud(p.next())
	if err != nil {
		return nil, err
	}
	for rbp < bindingPower(p.peek().kind) {
		t := p.next()
		right, err := p.expression(bindingPower(t.kind))
		if err != nil {
			return nil, err
		}
		switch t.kind {
		case tokOr:
			left = orNode{left: left, right: right}
		case tokAnd:
			left = andNode{left: left, right: right}
		case tokIn:
			left = inNode{left: left, right: right}
		}
	}
	return left, nil
}

func (p *parser) nud(t token) (node, error) {
	switch t.kind {
	case tokNot:
		operand, err := p.expression(bpNot)
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil

	case tokDefined:
		v := p.next()
		if v.kind != tokVar {
			return nil, p.errorf(v, "'defined' expects a variable, got %s", v.kind)
		}
		return definedNode{name: v.value}, nil

	case tokString:
		return literalNode{text: t.value, interpolate: t.quote == '"'}, nil

	case tokVar, tokWord, tokShell:
		run := []token{t}
		shell := t.kind == tokShell
		for k := p.peek().kind; k == tokWord || k == tokVar || k == tokString || k == tokShell; k = p.peek().kind {
			next := p.next()
			shell = shell || next.kind == tokShell
			run = append(run, next)
		}
		switch {
		case len(run) == 1 && t.kind == tokVar:
			return varNode{name: t.value}, nil
		case len(run) == 1 && t.kind == tokShell:
			return shellNode{body: t.value}, nil
		case shell:
			return wordsNode{src: p.src, toks: run}, nil
		}
		return literalNode{text: p.src[t.start:run[len(run)-1].end], interpolate: true}, nil

	case tokLParen:
		n, err := p.expression(0)
		if err != nil {
			return nil, err
		}
		if r := p.next(); r.kind != tokRParen {
			return nil, p.errorf(r, "expected ')', got %s", r.kind)
		}
		return n, nil
	}
	return nil, p.errorf(t, "unexpected %s", t.kind)
}
