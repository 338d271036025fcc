package devassist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/store"
)

// fakeShell answers commands from a table and records every call. Unknown
// commands succeed with no output.
type fakeShell struct {
	results map[string]dsl.ShellResult
	calls   []string
	dirs    []string
}

func (f *fakeShell) Run(_ context.Context, command string) (dsl.ShellResult, error) {
	f.calls = append(f.calls, command)
	if r, ok := f.results[command]; ok {
		return r, nil
	}
	return dsl.ShellResult{}, nil
}

func (f *fakeShell) Chdir(dir string) error {
	if strings.Contains(dir, "missing") {
		return fmt.Errorf("chdir %s: no such file or directory", dir)
	}
	f.dirs = append(f.dirs, dir)
	return nil
}

// fakeHistory keeps runs and events in memory.
type fakeHistory struct {
	mu     sync.Mutex
	runs   map[string]store.Run
	events []store.Event
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{runs: make(map[string]store.Run)}
}

func (h *fakeHistory) InsertRun(_ context.Context, r store.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[r.ID] = r
	return nil
}

func (h *fakeHistory) FinishRun(_ context.Context, id, status, errMsg string, _ time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[id]
	if !ok {
		return store.ErrRunNotFound
	}
	r.Status = status
	r.Error = errMsg
	h.runs[id] = r
	return nil
}

func (h *fakeHistory) InsertEvent(_ context.Context, e store.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *fakeHistory) directives() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.Directive)
	}
	return out
}

// snippetMap resolves snippets from memory.
type snippetMap map[string]*dsl.Document

func (m snippetMap) Get(name string) (*dsl.Document, error) {
	if doc, ok := m[name]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSnippetNotFound, name)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParse(t *testing.T, src string) *dsl.Document {
	t.Helper()
	doc, err := dsl.NewParser().Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

func newTestSession(t *testing.T, doc *dsl.Document, sh *fakeShell) *Session {
	t.Helper()
	c := NewCommands()
	c.RegisterBuiltins()
	s := newSession(doc, sh, c, discardLogger(), nil)
	s.Installer = NewInstaller()
	return s
}

func TestSessionDependencies(t *testing.T) {
	doc := mustParse(t, `
name: py
dependencies:
- rpm: [python3]
dependencies_flask:
- pip: [flask]
dependencies_django:
- pip: [django]
run:
- log_i: hi
`)
	s := newTestSession(t, doc, &fakeShell{})

	got, err := s.Dependencies(context.Background(), dsl.Scope{"flask": true, "django": ""})
	if err != nil {
		t.Fatalf("Dependencies() error = %v", err)
	}
	want := []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"python3"}},
		{Type: "pip", Packages: []string{"flask"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dependencies() mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionSCL(t *testing.T) {
	s := newTestSession(t, mustParse(t, "name: x\nrun:\n- log_i: hi\n"), &fakeShell{})

	s.pushSCL([]string{"python27"})
	s.pushSCL([]string{"devtoolset-2", "ruby193"})
	if diff := cmp.Diff([]string{"python27", "devtoolset-2", "ruby193"}, s.SCL()); diff != "" {
		t.Errorf("SCL() mismatch (-want +got):\n%s", diff)
	}
	s.popSCL()
	s.popSCL()
	s.popSCL()
	if len(s.SCL()) != 0 {
		t.Errorf("SCL() = %v, want empty", s.SCL())
	}
}

func TestSessionIDs(t *testing.T) {
	doc := mustParse(t, "name: x\nrun:\n- log_i: hi\n")
	a := newTestSession(t, doc, &fakeShell{})
	b := newTestSession(t, doc, &fakeShell{})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("session IDs %q and %q should be unique", a.ID, b.ID)
	}
	if a.Interpreter() == nil {
		t.Error("Interpreter() is nil")
	}
}
