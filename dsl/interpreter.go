package dsl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// InterpreterOption configures the interpreter.
type InterpreterOption func(*Interpreter)

// WithDispatcher sets the collaborator that handles external directives.
func WithDispatcher(d Dispatcher) InterpreterOption {
	return func(i *Interpreter) {
		i.dispatcher = d
	}
}

// WithShell sets the shell used for `$(...)` substitutions.
func WithShell(s Shell) InterpreterOption {
	return func(i *Interpreter) {
		i.eval.Shell = s
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) InterpreterOption {
	return func(i *Interpreter) {
		i.logger = l
	}
}

// WithFiles sets the files manifest used for `*name` substitution.
func WithFiles(f *Files) InterpreterOption {
	return func(i *Interpreter) {
		i.eval.Files = f
	}
}

// WithDependencyTypes replaces the dependency group types recognised in
// dependency sections.
func WithDependencyTypes(types ...string) InterpreterOption {
	return func(i *Interpreter) {
		i.depTypes = make(map[string]bool, len(types))
		for _, t := range types {
			i.depTypes[t] = true
		}
	}
}

// DefaultDependencyTypes are the dependency group types recognised unless
// WithDependencyTypes says otherwise.
var DefaultDependencyTypes = []string{"rpm", "dnf", "pip", "npm", "gem"}

// Interpreter executes assistant sections.
//
// An Interpreter holds no per-run state: everything a run mutates lives in
// the Scope passed to Run. Running two sections over the same scope
// concurrently is not supported.
type Interpreter struct {
	eval       Evaluator
	dispatcher Dispatcher
	logger     *slog.Logger
	depTypes   map[string]bool
}

// NewInterpreter creates a new interpreter. Without WithShell it runs
// substitutions through /bin/sh.
func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		eval:   Evaluator{Shell: NewExecShell()},
		logger: slog.Default(),
	}
	WithDependencyTypes(DefaultDependencyTypes...)(i)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ForFiles returns a copy of the interpreter that substitutes `*name`
// against files. Snippets run this way so their own manifest applies.
func (i *Interpreter) ForFiles(files *Files) *Interpreter {
	c := *i
	c.eval.Files = files
	return &c
}

// Shell returns the shell used for substitutions.
func (i *Interpreter) Shell() Shell {
	return i.eval.Shell
}

// Files returns the files manifest in effect.
func (i *Interpreter) Files() *Files {
	return i.eval.Files
}

// Logger returns the interpreter's logger.
func (i *Interpreter) Logger() *slog.Logger {
	return i.logger
}

// Evaluate evaluates a single expression against scope.
func (i *Interpreter) Evaluate(ctx context.Context, expr any, scope Scope) (Result, error) {
	return i.eval.Evaluate(ctx, expr, scope)
}

// Substitute expands variable and file references in text.
func (i *Interpreter) Substitute(text any, scope Scope) string {
	return Substitute(text, scope, i.eval.Files)
}

// Run executes section entry by entry and returns the result of the last
// entry executed. An empty section yields (false, "").
func (i *Interpreter) Run(ctx context.Context, section Section, scope Scope) (Result, error) {
	return i.run(ctx, section, scope, KindRun)
}

func (i *Interpreter) run(ctx context.Context, section Section, scope Scope, kind SectionKind) (Result, error) {
	res := Result{Value: ""}
	var prevIf, taken bool

	for _, e := range section {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := strings.TrimSpace(e.Key)
		i.logger.Debug("running directive", "directive", key, "kind", kind)

		var err error
		isIf := false
		switch {
		case key == "":
			res, err = i.branch(ctx, "nested section", e.Value, scope, kind)

		case strings.HasPrefix(key, "$"):
			res, err = i.assign(ctx, key, e.Value, scope)

		case key == "else":
			if !prevIf {
				return res, syntaxErrorf(key, "else without a preceding if")
			}
			if !taken {
				res, err = i.branch(ctx, key, e.Value, scope, kind)
			}

		case hasKeyword(key, "if"):
			isIf = true
			taken, err = i.condition(ctx, key, scope)
			if err == nil {
				res = Result{Value: ""}
				if taken {
					res, err = i.branch(ctx, key, e.Value, scope, kind)
				}
			}

		case hasKeyword(key, "for"):
			res, err = i.loop(ctx, key, e.Value, scope, kind)

		default:
			res, err = i.dispatch(ctx, key, e.Value, scope, kind, res)
		}
		if err != nil {
			return res, err
		}
		prevIf = isIf
	}
	return res, nil
}

// branch runs the body of a conditional, loop or nested section.
func (i *Interpreter) branch(ctx context.Context, directive string, body any, scope Scope, kind SectionKind) (Result, error) {
	s, ok := AsSection(body)
	if !ok {
		return Result{Value: ""}, syntaxErrorf(directive, "body must be a sequence of commands, got %T", body)
	}
	return i.run(ctx, s, scope, kind)
}

// condition evaluates the expression of an `if` directive.
func (i *Interpreter) condition(ctx context.Context, key string, scope Scope) (bool, error) {
	expr := strings.TrimSpace(strings.TrimPrefix(key, "if"))
	if expr == "" {
		return false, syntaxErrorf(key, "if needs a condition")
	}
	res, err := i.eval.Evaluate(ctx, expr, scope)
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

func (i *Interpreter) assign(ctx context.Context, key string, rhs any, scope Scope) (Result, error) {
	targets, exec, err := parseAssignment(key)
	if err != nil {
		return Result{Value: ""}, err
	}
	res, err := i.input(ctx, rhs, exec, scope)
	if err != nil {
		return Result{Value: ""}, err
	}

	if len(targets) == 2 {
		scope[targets[0]] = res.OK
		scope[targets[1]] = res.Value
	} else {
		scope[targets[0]] = res.Value
	}
	return res, nil
}

// parseAssignment splits `$a[, $b][~]` into its target names and exec flag.
func parseAssignment(key string) ([]string, bool, error) {
	exec := strings.HasSuffix(key, "~")
	parts := strings.Split(strings.TrimSuffix(key, "~"), ",")
	if len(parts) > 2 {
		return nil, false, syntaxErrorf(key, "at most two assignment targets are allowed")
	}

	targets := make([]string, 0, len(parts))
	for _, p := range parts {
		name, err := parseTarget(key, p)
		if err != nil {
			return nil, false, err
		}
		targets = append(targets, name)
	}
	return targets, exec, nil
}

// input evaluates a directive payload. With the exec flag the payload is an
// expression. Without it a string payload is only substituted and always
// counts as true, except that a lone reference to a mapping or sequence
// yields that value unchanged.
func (i *Interpreter) input(ctx context.Context, payload any, exec bool, scope Scope) (Result, error) {
	s, ok := payload.(string)
	if exec || !ok {
		return i.eval.Evaluate(ctx, payload, scope)
	}

	if name, ok := loneRef(s); ok {
		switch v := scope[name].(type) {
		case Map, map[string]any, []any:
			return Result{OK: Truthy(v), Value: v}, nil
		}
	}
	return Result{OK: true, Value: Substitute(s, scope, i.eval.Files)}, nil
}

func loneRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "$") {
		return "", false
	}
	name, n := scanRef(s[1:])
	if n == 0 || n != len(s)-1 {
		return "", false
	}
	return name, true
}

func (i *Interpreter) loop(ctx context.Context, key string, body any, scope Scope, kind SectionKind) (Result, error) {
	vars, src, err := ParseFor(key)
	if err != nil {
		return Result{Value: ""}, err
	}
	s, ok := AsSection(body)
	if !ok {
		return Result{Value: ""}, syntaxErrorf(key, "loop body must be a sequence of commands, got %T", body)
	}

	source, err := i.eval.Evaluate(ctx, src, scope)
	if err != nil {
		return Result{Value: ""}, err
	}

	res := Result{Value: ""}
	if m, ok := pairs(source.Value); ok {
		if len(vars) != 2 {
			return res, syntaxErrorf(key, "iterating a mapping needs two control variables")
		}
		for _, p := range m {
			scope[vars[0]] = p.Key
			scope[vars[1]] = p.Value
			if res, err = i.run(ctx, s, scope, kind); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	if len(vars) != 1 {
		return res, syntaxErrorf(key, "two control variables need a mapping to iterate, got %q", Text(source.Value))
	}
	for _, item := range items(source.Value) {
		scope[vars[0]] = item
		if res, err = i.run(ctx, s, scope, kind); err != nil {
			return res, err
		}
	}
	return res, nil
}

// items splits a loop source into the values bound on each iteration.
func items(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	fields := strings.Fields(Text(v))
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f
	}
	return out
}

// dispatch forwards an external directive. prev is returned unchanged when
// the directive is skipped.
func (i *Interpreter) dispatch(ctx context.Context, key string, payload any, scope Scope, kind SectionKind, prev Result) (Result, error) {
	exec := strings.HasSuffix(key, "~")
	typ := strings.TrimSpace(strings.TrimSuffix(key, "~"))
	if i.dispatcher == nil {
		return prev, &DirectiveError{Directive: typ, Err: ErrNoHandler}
	}

	in, err := i.input(ctx, payload, exec, scope)
	if err != nil {
		return prev, err
	}

	res, err := i.dispatcher.Dispatch(ctx, &Command{
		Type:     typ,
		Raw:      payload,
		ExecFlag: exec,
		Input:    in,
		Scope:    scope,
		Interp:   i,
		Kind:     kind,
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrUnknownDirective):
		i.logger.Warn("skipping unknown directive", "directive", typ, "error", err)
		return prev, nil
	case errors.Is(err, ErrNoHandler):
		var de *DirectiveError
		if errors.As(err, &de) {
			return prev, err
		}
		return prev, &DirectiveError{Directive: typ, Err: err}
	}
	return prev, err
}

// hasKeyword reports whether key is kw or starts with kw and whitespace.
func hasKeyword(key, kw string) bool {
	if key == kw {
		return true
	}
	return strings.HasPrefix(key, kw) && len(key) > len(kw) && isSpace(key[len(kw)])
}
