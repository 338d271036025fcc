package devassist

import (
	"errors"
	"testing"
)

func TestStandardErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrCommandRegistered", ErrCommandRegistered, "command already registered"},
		{"ErrFatalLog", ErrFatalLog, "fatal log message"},
		{"ErrSectionNotFound", ErrSectionNotFound, "section not found"},
		{"ErrSnippetNotFound", ErrSnippetNotFound, "snippet not found"},
		{"ErrMissingArgument", ErrMissingArgument, "missing required argument"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrInstallDeclined", ErrInstallDeclined, "dependency installation declined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("%s.Error() = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Command: "cl", Err: ErrInvalidInput}

	if got, want := err.Error(), "command cl: invalid input"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("errors.Is should see the wrapped error")
	}
}
