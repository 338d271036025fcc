package devassist

import "errors"

// Standard errors
var (
	// ErrCommandRegistered is returned when a command name is registered twice.
	ErrCommandRegistered = errors.New("command already registered")

	// ErrFatalLog is returned by log_e and log_c after logging their message.
	ErrFatalLog = errors.New("fatal log message")

	// ErrSectionNotFound is returned when a run or call names a missing section.
	ErrSectionNotFound = errors.New("section not found")

	// ErrSnippetNotFound is returned when a call names an unknown snippet.
	ErrSnippetNotFound = errors.New("snippet not found")

	// ErrMissingArgument is returned when a required assistant argument is not given.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrInvalidInput is returned when a command payload has the wrong shape.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInstallDeclined is returned when the user refuses a dependency install.
	ErrInstallDeclined = errors.New("dependency installation declined")
)

// CommandError wraps errors with command context.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return "command " + e.Command + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
