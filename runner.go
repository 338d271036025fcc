package devassist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/store"
)

// Runner runs assistant documents. Each Run gets its own Session and shell.
type Runner struct {
	commands  *Commands
	snippets  SnippetSource
	builder   ImageBuilder
	installer *Installer
	history   History
	logger    *slog.Logger
	shellPath string
	newShell  func() Shell
	depTypes  []string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCommands replaces the command registry. Built-ins are not added to it.
func WithCommands(c *Commands) RunnerOption {
	return func(r *Runner) {
		r.commands = c
	}
}

// WithSnippets sets where call and extends look up documents.
func WithSnippets(s SnippetSource) RunnerOption {
	return func(r *Runner) {
		r.snippets = s
	}
}

// WithImageBuilder enables docker_b.
func WithImageBuilder(b ImageBuilder) RunnerOption {
	return func(r *Runner) {
		r.builder = b
	}
}

// WithInstaller sets the dependency installer.
func WithInstaller(in *Installer) RunnerOption {
	return func(r *Runner) {
		r.installer = in
	}
}

// WithHistory records runs and their commands.
func WithHistory(h History) RunnerOption {
	return func(r *Runner) {
		r.history = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithShellPath sets the shell binary for new sessions.
func WithShellPath(path string) RunnerOption {
	return func(r *Runner) {
		r.shellPath = path
	}
}

// WithShellFactory sets how each session's shell is created.
func WithShellFactory(fn func() Shell) RunnerOption {
	return func(r *Runner) {
		r.newShell = fn
	}
}

// WithDependencyTypes overrides the recognised dependency group types.
func WithDependencyTypes(types ...string) RunnerOption {
	return func(r *Runner) {
		r.depTypes = types
	}
}

// NewRunner creates a runner with the built-in commands and the default
// installer.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		installer: NewInstaller(),
		logger:    slog.Default(),
		shellPath: "/bin/sh",
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.commands == nil {
		r.commands = NewCommands()
		r.commands.RegisterBuiltins()
		r.commands.Use(Logging())
	}
	if r.history != nil {
		r.commands.Use(Journal(r.history))
	}
	if r.newShell == nil {
		path := r.shellPath
		r.newShell = func() Shell { return &dsl.ExecShell{Path: path} }
	}
	return r
}

// Commands returns the runner's command registry.
func (r *Runner) Commands() *Commands {
	return r.commands
}

// NewSession creates a session for doc.
func (r *Runner) NewSession(doc *dsl.Document) *Session {
	s := newSession(doc, r.newShell(), r.commands, r.logger, r.depTypes)
	s.Snippets = r.snippets
	s.Builder = r.builder
	s.Installer = r.installer
	return s
}

// SeedScope builds the initial scope of a run: argument defaults, then the
// given args. A required argument missing from both is an error.
func SeedScope(doc *dsl.Document, args map[string]any) (dsl.Scope, error) {
	scope := make(dsl.Scope, len(doc.Args)+len(args))
	for name, arg := range doc.Args {
		if arg != nil && arg.Default != nil {
			scope[name] = arg.Default
		}
	}
	for name, v := range args {
		scope[name] = v
	}
	for name, arg := range doc.Args {
		if arg == nil || !arg.Required {
			continue
		}
		if _, ok := scope[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, name)
		}
	}
	return scope, nil
}

// ResolveSection maps a section name given on the command line to a
// section of doc: "" is run, "x" is run_x unless doc defines x itself.
func ResolveSection(doc *dsl.Document, name string) (string, dsl.Section, error) {
	candidates := []string{"run"}
	if name != "" {
		candidates = []string{name, "run_" + name}
	}
	for _, c := range candidates {
		if s, ok := doc.Section(c); ok {
			return c, s, nil
		}
	}

	err := fmt.Errorf("%w: %s", ErrSectionNotFound, candidates[len(candidates)-1])
	if hint := doc.SuggestSection(strings.TrimPrefix(name, "run_")); hint != "" {
		err = fmt.Errorf("%w (did you mean %q?)", err, hint)
	}
	return "", nil, err
}

// Run resolves and installs doc's dependencies, then runs the named section.
func (r *Runner) Run(ctx context.Context, doc *dsl.Document, section string, args map[string]any) (dsl.Result, error) {
	name, body, err := ResolveSection(doc, section)
	if err != nil {
		return dsl.Result{}, err
	}
	scope, err := SeedScope(doc, args)
	if err != nil {
		return dsl.Result{}, err
	}

	s := r.NewSession(doc)
	started := time.Now()
	r.recordStart(ctx, s, name, started)
	s.Logger.Info("running assistant", "section", name)

	res, err := r.run(ctx, s, body, scope)

	status := store.StatusSucceeded
	if err != nil {
		status = store.StatusFailed
	}
	r.recordFinish(ctx, s, status, err)
	s.Logger.Info("assistant finished", "section", name, "status", status, "duration", time.Since(started))
	return res, err
}

func (r *Runner) run(ctx context.Context, s *Session, body dsl.Section, scope dsl.Scope) (dsl.Result, error) {
	groups, err := s.Dependencies(ctx, scope)
	if err != nil {
		return dsl.Result{}, fmt.Errorf("resolve dependencies: %w", err)
	}
	if len(groups) > 0 {
		cmd := &dsl.Command{
			Type:   "dependencies",
			Raw:    groups,
			Input:  dsl.Result{OK: true, Value: groups},
			Scope:  scope,
			Interp: s.Interpreter(),
			Kind:   dsl.KindDependencies,
		}
		if _, err := s.Dispatch(ctx, cmd); err != nil {
			return dsl.Result{}, err
		}
	}
	return s.Run(ctx, body, scope)
}

// Dependencies resolves doc's dependency sections without installing them.
func (r *Runner) Dependencies(ctx context.Context, doc *dsl.Document, args map[string]any) ([]dsl.DependencyGroup, error) {
	scope, err := SeedScope(doc, args)
	if err != nil {
		return nil, err
	}
	return r.NewSession(doc).Dependencies(ctx, scope)
}

func (r *Runner) recordStart(ctx context.Context, s *Session, section string, at time.Time) {
	if r.history == nil {
		return
	}
	run := store.Run{ID: s.ID, Assistant: s.Doc.Name, Section: section, StartedAt: at}
	if err := r.history.InsertRun(ctx, run); err != nil {
		s.Logger.Warn("record run failed", "error", err)
	}
}

func (r *Runner) recordFinish(ctx context.Context, s *Session, status string, runErr error) {
	if r.history == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	// The run context may already be cancelled.
	if err := r.history.FinishRun(context.WithoutCancel(ctx), s.ID, status, msg, time.Now()); err != nil {
		s.Logger.Warn("record run failed", "error", err)
	}
}
