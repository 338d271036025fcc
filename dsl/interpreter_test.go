package dsl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// recorder is a Dispatcher that understands log_i and records every command.
type recorder struct {
	logged   []string
	commands []*Command
}

func (r *recorder) Dispatch(_ context.Context, cmd *Command) (Result, error) {
	r.commands = append(r.commands, cmd)
	switch {
	case cmd.Type == "log_i":
		r.logged = append(r.logged, cmd.Input.Text())
		return Result{OK: true, Value: cmd.Input.Text()}, nil
	case strings.HasPrefix(cmd.Type, "log_"):
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownDirective, cmd.Type)
	case cmd.Type == "boom":
		return Result{}, errBoom
	}
	return Result{}, &DirectiveError{Directive: cmd.Type, Err: ErrNoHandler}
}

var errBoom = errors.New("boom")

func newTestInterpreter(t *testing.T, opts ...InterpreterOption) (*Interpreter, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []InterpreterOption{
		WithDispatcher(rec),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewInterpreter(append(base, opts...)...), rec
}

func mustSection(t *testing.T, src string) Section {
	t.Helper()
	s, err := ParseSection([]byte(src))
	if err != nil {
		t.Fatalf("ParseSection() returned error: %v", err)
	}
	return s
}

func TestRunEmptySection(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	for _, scope := range []Scope{{}, {"foo": "bar"}, testNames()} {
		got, err := interp.Run(context.Background(), nil, scope)
		if err != nil {
			t.Fatalf("Run() returned error: %v", err)
		}
		if diff := cmp.Diff(Result{false, ""}, got); diff != "" {
			t.Errorf("Run(nil) mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRunResults(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name  string
		src   string
		scope Scope
		want  Result
	}{
		{"log", `[{log_i: foo}]`, Scope{}, Result{true, "foo"}},
		{"exec assignment", `[{"$foo~": "$(echo asd)"}]`, Scope{}, Result{true, "asd"}},
		{"assignment without exec flag", `[{"$foo": "$(echo asd)"}]`, Scope{}, Result{true, "$(echo asd)"}},
		{"if not taken", `[{"if $foo": [{"$foo": bar}, {"$foo": baz}]}]`, Scope{}, Result{false, ""}},
		{"if taken", `[{"if $foo": [{"$foo": bar}, {"$foo": baz}]}]`, Scope{"foo": "yes"}, Result{true, "baz"}},
		{"nested condition", `[{"if $foo": [{"if $bar": bar}, {else: [{log_i: baz}]}]}]`, Scope{"foo": "yes"}, Result{true, "baz"}},
		{"if before else", `[{"if $foo": [{"$foo": bar}]}, {else: [{"$foo": baz}]}]`, Scope{"foo": "yes"}, Result{true, "bar"}},
		{"else", `[{"if $foo": [{"$foo": bar}]}, {else: [{"$foo": baz}]}]`, Scope{}, Result{true, "baz"}},
		{"for one item", `[{"for $i in $list": [{"$foo~": "$(echo $i)"}]}]`, Scope{"list": "1"}, Result{true, "1"}},
		{"for last item wins", `[{"for $i in $list": [{"$foo~": "$(echo $i)"}]}]`, Scope{"list": "1 2"}, Result{true, "2"}},
		{"for undefined source", `[{"for $i in $list": [{"$foo~": "$(echo $i)"}]}]`, Scope{}, Result{false, ""}},
		{"nested sequence", `[[{log_i: inner}]]`, Scope{}, Result{true, "inner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp, _ := newTestInterpreter(t)
			got, err := interp.Run(context.Background(), mustSection(t, tt.src), tt.scope)
			if err != nil {
				t.Fatalf("Run() returned error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Run() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	_, err := interp.Run(context.Background(), mustSection(t, `[{foo: bar}]`), Scope{})

	var de *DirectiveError
	if !errors.As(err, &de) {
		t.Fatalf("Run() error = %v, want *DirectiveError", err)
	}
	if de.Directive != "foo" {
		t.Errorf("DirectiveError.Directive = %q, want %q", de.Directive, "foo")
	}
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Run() error = %v, want ErrNoHandler", err)
	}
}

func TestRunWithoutDispatcher(t *testing.T) {
	interp := NewInterpreter(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := interp.Run(context.Background(), mustSection(t, `[{log_i: foo}]`), Scope{})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Run() error = %v, want ErrNoHandler", err)
	}
}

func TestRunUnknownDirectiveContinues(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	scope := Scope{}
	got, err := interp.Run(context.Background(), mustSection(t, `
- log_i: first
- log_x: skipped
- $after: done
`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff(Result{true, "done"}, got); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}
	if len(rec.commands) != 2 {
		t.Errorf("dispatched %d commands, want 2", len(rec.commands))
	}

	got, err = interp.Run(context.Background(), mustSection(t, `[{log_i: kept}, {log_x: skipped}]`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff(Result{true, "kept"}, got); diff != "" {
		t.Errorf("skipped directive changed the result (-want +got):\n%s", diff)
	}
}

func TestRunDispatchErrorPropagates(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	_, err := interp.Run(context.Background(), mustSection(t, `[{boom: x}, {log_i: never}]`), Scope{})
	if !errors.Is(err, errBoom) {
		t.Errorf("Run() error = %v, want %v", err, errBoom)
	}
	if len(rec.logged) != 0 {
		t.Errorf("entries after a failure ran: %v", rec.logged)
	}
}

func TestRunForEmptyString(t *testing.T) {
	requireShell(t)

	interp, _ := newTestInterpreter(t)
	scope := Scope{}
	if _, err := interp.Run(context.Background(), mustSection(t, `[{'for $i in $(echo "")': [{"$foo": "$i"}]}]`), scope); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if _, ok := scope["foo"]; ok {
		t.Errorf("scope[foo] = %v, want unset", scope["foo"])
	}
}

func TestRunLoopTwoControlVars(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	scope := Scope{"foo": Map{
		{Key: "bar", Value: "barval"},
		{Key: "spam", Value: "spamval"},
	}}
	_, err := interp.Run(context.Background(), mustSection(t, `[{"for $i, $j in $foo": [{log_i: "$i, $j"}]}]`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"bar, barval", "spam, spamval"}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
	if scope["i"] != "spam" || scope["j"] != "spamval" {
		t.Errorf("loop variables = %v, %v, want last pair to stay bound", scope["i"], scope["j"])
	}
}

func TestRunLoopOverPlainMap(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	scope := Scope{"foo": map[string]any{"b": "2", "a": "1"}}
	_, err := interp.Run(context.Background(), mustSection(t, `[{"for $k, $v in $foo": [{log_i: "$k=$v"}]}]`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"a=1", "b=2"}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
}

func TestRunLoopOverSequence(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	scope := Scope{"items": []any{"one two", "three"}}
	_, err := interp.Run(context.Background(), mustSection(t, `[{"for $x in $items": [{log_i: "<$x>"}]}]`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"<one two>", "<three>"}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
}

func TestRunLoopSyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		scope Scope
	}{
		{"two vars over string", `[{'for $i, $j in $(echo "foo bar")': [{log_i: "$i"}]}]`, Scope{}},
		{"one var over mapping", `[{"for $i in $foo": [{log_i: "$i"}]}]`, Scope{"foo": Map{{Key: "a", Value: "b"}}}},
		{"malformed header", `[{"for foo": [{log_i: x}]}]`, Scope{}},
		{"scalar body", `[{"for $i in $foo": x}]`, Scope{"foo": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp, _ := newTestInterpreter(t, WithShell(&fakeShell{results: map[string]ShellResult{
				`echo "foo bar"`: {Output: "foo bar"},
			}}))
			_, err := interp.Run(context.Background(), mustSection(t, tt.src), tt.scope)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Errorf("Run() error = %v, want *SyntaxError", err)
			}
		})
	}
}

func TestRunConditionalSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"else without if", `[{log_i: a}, {else: [{log_i: b}]}]`},
		{"empty condition", `[{if: [{log_i: a}]}]`},
		{"too many targets", `[{"$a, $b, $c": x}]`},
		{"bad target", `[{"$a b": x}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp, _ := newTestInterpreter(t)
			_, err := interp.Run(context.Background(), mustSection(t, tt.src), Scope{})
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Errorf("Run() error = %v, want *SyntaxError", err)
			}
		})
	}
}

func TestRunSuccessfulCommandWithNoOutput(t *testing.T) {
	interp, _ := newTestInterpreter(t, WithShell(&fakeShell{}))
	scope := Scope{}
	if _, err := interp.Run(context.Background(), mustSection(t, `[{"if $(true)": [{"$success": success}]}]`), scope); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if _, ok := scope["success"]; !ok {
		t.Error("scope[success] unset, want the if body to run")
	}
}

func TestRunAssignInConditionModifiesOuterScope(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	scope := Scope{"foo": "foo", "spam": "spam"}
	if _, err := interp.Run(context.Background(), mustSection(t, `[{"if $foo": [{"$foo": "$spam"}]}]`), scope); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if scope["foo"] != "spam" {
		t.Errorf("scope[foo] = %v, want %q", scope["foo"], "spam")
	}
}

func TestRunAssignments(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		scope Scope
		want  Scope
	}{
		{
			name:  "existing nonempty variable",
			src:   `[{"$foo": "$bar"}, {"$success, $val": "$bar"}]`,
			scope: Scope{"bar": "bar"},
			want:  Scope{"bar": "bar", "foo": "bar", "success": true, "val": "bar"},
		},
		{
			name:  "existing empty variable",
			src:   `[{"$foo": "$bar"}, {"$success, $val": "$foo"}]`,
			scope: Scope{"bar": ""},
			want:  Scope{"bar": "", "foo": "", "success": true, "val": ""},
		},
		{
			name:  "existing empty variable with exec flag",
			src:   `[{"$foo~": "$bar"}, {"$success, $val~": "$foo"}]`,
			scope: Scope{"bar": ""},
			want:  Scope{"bar": "", "foo": "", "success": false, "val": ""},
		},
		{
			name:  "nonexisting variable",
			src:   `[{"$foo": "$bar"}, {"$success, $val": "$bar"}]`,
			scope: Scope{},
			want:  Scope{"foo": "$bar", "success": true, "val": "$bar"},
		},
		{
			name:  "nonexisting variable with exec flag",
			src:   `[{"$foo~": "$bar"}, {"$success, $val~": "$bar"}]`,
			scope: Scope{},
			want:  Scope{"foo": "", "success": false, "val": ""},
		},
		{
			name:  "defined empty variable",
			src:   `[{"$success, $val~": "defined $foo"}]`,
			scope: Scope{"foo": ""},
			want:  Scope{"foo": "", "success": true, "val": ""},
		},
		{
			name:  "defined variable",
			src:   `[{"$success, $val~": "defined $foo"}]`,
			scope: Scope{"foo": "foo"},
			want:  Scope{"foo": "foo", "success": true, "val": "foo"},
		},
		{
			name:  "defined nonexistent variable",
			src:   `[{"$success, $val~": "defined $foo"}]`,
			scope: Scope{},
			want:  Scope{"success": false, "val": ""},
		},
		{
			name:  "braced targets",
			src:   `[{"${ok}, ${val}~": "$foo"}]`,
			scope: Scope{"foo": "x"},
			want:  Scope{"foo": "x", "ok": true, "val": "x"},
		},
		{
			name:  "structured value copied",
			src:   `[{"$copy": "$list"}]`,
			scope: Scope{"list": []any{"a", "b"}},
			want:  Scope{"list": []any{"a", "b"}, "copy": []any{"a", "b"}},
		},
		{
			name:  "structured literal",
			src:   `[{"$m": {a: b}}]`,
			scope: Scope{},
			want:  Scope{"m": Map{{Key: "a", Value: "b"}}},
		},
		{
			name:  "boolean literal",
			src:   `[{"$flag": true}]`,
			scope: Scope{},
			want:  Scope{"flag": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp, _ := newTestInterpreter(t, WithShell(&fakeShell{}))
			if _, err := interp.Run(context.Background(), mustSection(t, tt.src), tt.scope); err != nil {
				t.Fatalf("Run() returned error: %v", err)
			}
			if diff := cmp.Diff(tt.want, tt.scope); diff != "" {
				t.Errorf("scope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunAssignCommand(t *testing.T) {
	sh := &fakeShell{results: map[string]ShellResult{
		"basename foo/bar":  {Output: "bar"},
		"ls spam/spam/spam": {ExitCode: 2, Output: "ls: cannot access spam/spam/spam: No such file or directory"},
	}}
	interp, rec := newTestInterpreter(t, WithShell(sh))
	scope := Scope{}

	_, err := interp.Run(context.Background(), mustSection(t, `
- $foo~: $(basename foo/bar)
- log_i: $foo
- $success, $val~: $(ls spam/spam/spam)
`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	want := Scope{
		"foo":     "bar",
		"success": false,
		"val":     "ls: cannot access spam/spam/spam: No such file or directory",
	}
	if diff := cmp.Diff(want, scope); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bar"}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCommandFields(t *testing.T) {
	interp, rec := newTestInterpreter(t, WithShell(&fakeShell{results: map[string]ShellResult{
		"echo hi": {Output: "hi"},
	}}))
	scope := Scope{"who": "world"}

	_, err := interp.Run(context.Background(), mustSection(t, `
- log_i: hello $who
- log_i~: $(echo hi)
`), scope)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(rec.commands) != 2 {
		t.Fatalf("dispatched %d commands, want 2", len(rec.commands))
	}

	first := rec.commands[0]
	if first.Type != "log_i" || first.ExecFlag || first.Raw != "hello $who" {
		t.Errorf("first command = %+v", first)
	}
	if diff := cmp.Diff(Result{true, "hello world"}, first.Input); diff != "" {
		t.Errorf("first input mismatch (-want +got):\n%s", diff)
	}
	if first.Kind != KindRun || first.Interp != interp {
		t.Errorf("first command kind = %q, interp = %p", first.Kind, first.Interp)
	}

	second := rec.commands[1]
	if second.Type != "log_i" || !second.ExecFlag {
		t.Errorf("second command = %+v, want exec flag stripped from type", second)
	}
	if diff := cmp.Diff(Result{true, "hi"}, second.Input); diff != "" {
		t.Errorf("second input mismatch (-want +got):\n%s", diff)
	}
}

func TestRunKeepsEntryOrder(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	_, err := interp.Run(context.Background(), mustSection(t, `
- log_i: one
  log_x: skipped
  $v: two
- log_i: $v
`), Scope{})
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"one", "two"}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancelled(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := interp.Run(ctx, mustSection(t, `[{log_i: never}]`), Scope{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(rec.logged) != 0 {
		t.Errorf("logged %v after cancellation", rec.logged)
	}
}

func TestForFiles(t *testing.T) {
	interp, rec := newTestInterpreter(t)
	snippet := interp.ForFiles(&Files{Dir: "/snip", Entries: map[string]FileRef{"tpl": {Source: "t.txt"}}})

	if _, err := snippet.Run(context.Background(), mustSection(t, `[{log_i: "cp *tpl ."}]`), Scope{}); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if _, err := interp.Run(context.Background(), mustSection(t, `[{log_i: "cp *tpl ."}]`), Scope{}); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"cp /snip/t.txt .", "cp *tpl ."}, rec.logged); diff != "" {
		t.Errorf("logged mismatch (-want +got):\n%s", diff)
	}
}
