// Package dsl provides the assistant DSL parser and interpreter.
package dsl

import (
	"context"
	"strconv"
)

// Document represents a parsed assistant or snippet file.
type Document struct {
	Name        string             `yaml:"name"`
	FullName    string             `yaml:"fullname"`
	Description string             `yaml:"description"`
	Extends     string             `yaml:"extends"`
	Args        map[string]*Arg    `yaml:"args"`
	Files       map[string]FileRef `yaml:"files"`
	FilesDir    string             `yaml:"files_dir"`
	Sections    map[string]Section `yaml:"-"` // dependencies*, run*
	Path        string             `yaml:"-"`
}

// Section returns the named section and whether the document defines it.
func (d *Document) Section(name string) (Section, bool) {
	s, ok := d.Sections[name]
	return s, ok
}

// Manifest returns the files manifest used for `*name` substitution.
func (d *Document) Manifest() *Files {
	return &Files{Dir: d.FilesDir, Entries: d.Files}
}

// Arg is an assistant argument definition.
type Arg struct {
	Flags    []string `yaml:"flags"`
	Help     string   `yaml:"help"`
	Default  any      `yaml:"default"`
	Required bool     `yaml:"required"`
}

// FileRef points at a file shipped with an assistant.
type FileRef struct {
	Source string `yaml:"source"`
}

// Files is a files manifest plus the directory its sources are relative to.
type Files struct {
	Dir     string
	Entries map[string]FileRef
}

// Entry is one directive of a section, or one pair of a Map.
type Entry struct {
	Key   string
	Value any
}

// Section is an ordered sequence of command entries.
// An entry with an empty key holds a nested section.
type Section []Entry

// Scope is the variable scope of one assistant run. It is shared by reference
// with every nested conditional, loop and section of that run.
type Scope map[string]any

// Lookup returns the value bound to name.
func (s Scope) Lookup(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// Clone returns a shallow copy of the scope.
func (s Scope) Clone() Scope {
	c := make(Scope, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Result is the (truth, value) pair every construct evaluates to.
type Result struct {
	OK    bool
	Value any
}

// Text returns the textual form of the value.
func (r Result) Text() string {
	return Text(r.Value)
}

// SectionKind tells handlers which kind of section a command appeared in.
type SectionKind string

const (
	KindRun          SectionKind = "run"
	KindDependencies SectionKind = "dependencies"
)

// Command is an external directive forwarded to a Dispatcher.
type Command struct {
	// Type is the directive name with the exec flag stripped.
	Type string

	// Raw is the unevaluated payload.
	Raw any

	// ExecFlag is set when the directive ended with `~`.
	ExecFlag bool

	// Input is the payload evaluated the same way an assignment would be.
	Input Result

	// Scope is the live scope of the run.
	Scope Scope

	// Interp runs nested sections on behalf of handlers.
	Interp *Interpreter

	Kind SectionKind
}

// Dispatcher resolves directives the interpreter does not handle natively.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd *Command) (Result, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, cmd *Command) (Result, error)

// Dispatch calls f(ctx, cmd).
func (f DispatcherFunc) Dispatch(ctx context.Context, cmd *Command) (Result, error) {
	return f(ctx, cmd)
}

// DependencyGroup is one resolved group of a dependency section.
type DependencyGroup struct {
	Type     string   `yaml:"type"`
	Packages []string `yaml:"packages"`
}

// ValidationError provides detailed document validation errors.
type ValidationError struct {
	File    string
	Line    int
	Field   string
	Message string
	Hint    string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Line > 0 {
		msg = msg + " (line " + strconv.Itoa(e.Line) + ")"
	}
	if e.Hint != "" {
		msg = msg + "\n  → " + e.Hint
	}
	return msg
}
