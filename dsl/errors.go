package dsl

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned by a Dispatcher that has nothing registered
	// for a directive. It aborts the run.
	ErrNoHandler = errors.New("no handler for directive")

	// ErrUnknownDirective is returned by a handler that recognised the
	// directive family but not the directive. The interpreter logs it and
	// continues with the next entry.
	ErrUnknownDirective = errors.New("unknown directive")
)

// SyntaxError reports a malformed directive, loop header or expression.
type SyntaxError struct {
	Directive string
	Message   string
}

func (e *SyntaxError) Error() string {
	if e.Directive == "" {
		return "syntax error: " + e.Message
	}
	return fmt.Sprintf("syntax error in %q: %s", e.Directive, e.Message)
}

func syntaxErrorf(directive, format string, args ...any) *SyntaxError {
	return &SyntaxError{Directive: directive, Message: fmt.Sprintf(format, args...)}
}

// DirectiveError wraps a dispatch error with the directive that caused it.
type DirectiveError struct {
	Directive string
	Err       error
}

func (e *DirectiveError) Error() string {
	return "directive " + e.Directive + ": " + e.Err.Error()
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}

// ShellError reports a shell command that exited unsuccessfully.
type ShellError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ShellError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
}
