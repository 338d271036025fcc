package devassist

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/store"
)

// Shell runs shell commands and keeps a working directory across them.
type Shell interface {
	dsl.Shell
	Chdir(dir string) error
}

// SnippetSource resolves snippet and parent assistant names to documents.
type SnippetSource interface {
	Get(name string) (*dsl.Document, error)
}

// ImageBuilder builds container images for docker_* commands.
type ImageBuilder interface {
	Build(ctx context.Context, dir, tag string) (string, error)
}

// History records runs and the commands dispatched during them.
type History interface {
	InsertRun(ctx context.Context, run store.Run) error
	FinishRun(ctx context.Context, id, status, errMsg string, finishedAt time.Time) error
	InsertEvent(ctx context.Context, ev store.Event) error
}

// Session is the state of one assistant run. Handlers receive it with every
// command; nothing about a run is kept anywhere else.
type Session struct {
	ID        string
	Doc       *dsl.Document
	Logger    *slog.Logger
	Shell     Shell
	Commands  *Commands
	Snippets  SnippetSource
	Builder   ImageBuilder
	Installer *Installer

	scl    [][]string
	interp *dsl.Interpreter
}

// newSession creates a session and its interpreter. The interpreter
// dispatches external directives back to the session.
func newSession(doc *dsl.Document, sh Shell, commands *Commands, logger *slog.Logger, depTypes []string) *Session {
	id := uuid.New().String()
	s := &Session{
		ID:       id,
		Doc:      doc,
		Logger:   logger.With("run", id[:8], "assistant", doc.Name),
		Shell:    sh,
		Commands: commands,
	}
	opts := []dsl.InterpreterOption{
		dsl.WithDispatcher(s),
		dsl.WithShell(sh),
		dsl.WithLogger(s.Logger),
		dsl.WithFiles(doc.Manifest()),
	}
	if depTypes != nil {
		opts = append(opts, dsl.WithDependencyTypes(depTypes...))
	}
	s.interp = dsl.NewInterpreter(opts...)
	return s
}

// Dispatch implements dsl.Dispatcher.
func (s *Session) Dispatch(ctx context.Context, cmd *dsl.Command) (dsl.Result, error) {
	return s.Commands.Execute(ctx, s, cmd)
}

// Interpreter returns the session's interpreter.
func (s *Session) Interpreter() *dsl.Interpreter {
	return s.interp
}

// Run executes section against scope.
func (s *Session) Run(ctx context.Context, section dsl.Section, scope dsl.Scope) (dsl.Result, error) {
	return s.interp.Run(ctx, section, scope)
}

// Dependencies resolves the document's `dependencies` section followed by
// every `dependencies_<name>` whose name is set in scope.
func (s *Session) Dependencies(ctx context.Context, scope dsl.Scope) ([]dsl.DependencyGroup, error) {
	var groups []dsl.DependencyGroup
	for _, name := range s.Doc.SectionNames() {
		if !dependencySectionApplies(name, scope) {
			continue
		}
		g, err := s.interp.Dependencies(ctx, s.Doc.Sections[name], scope)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g...)
	}
	return groups, nil
}

func dependencySectionApplies(name string, scope dsl.Scope) bool {
	if name == "dependencies" {
		return true
	}
	const prefix = "dependencies_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	v, ok := scope[name[len(prefix):]]
	return ok && dsl.Truthy(v)
}

// SCL returns the software collections enabled for shell commands, outermost first.
func (s *Session) SCL() []string {
	var names []string
	for _, layer := range s.scl {
		names = append(names, layer...)
	}
	return names
}

func (s *Session) pushSCL(names []string) {
	s.scl = append(s.scl, names)
}

func (s *Session) popSCL() {
	if len(s.scl) > 0 {
		s.scl = s.scl[:len(s.scl)-1]
	}
}
