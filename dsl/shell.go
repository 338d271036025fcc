package dsl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Shell runs command lines for `$(...)` substitutions and shell directives.
type Shell interface {
	Run(ctx context.Context, command string) (ShellResult, error)
}

// ShellResult is the outcome of one shell invocation.
type ShellResult struct {
	ExitCode int
	Output   string // combined stdout and stderr, trimmed
}

// OK reports whether the command exited with status zero.
func (r ShellResult) OK() bool {
	return r.ExitCode == 0
}

// ExecShell runs commands through a system shell.
type ExecShell struct {
	// Path is the shell binary. Defaults to /bin/sh.
	Path string

	// Dir is the working directory. Empty means the process directory.
	Dir string

	// Env is appended to the process environment.
	Env []string
}

// NewExecShell creates a shell that runs commands with /bin/sh -c.
func NewExecShell() *ExecShell {
	return &ExecShell{Path: "/bin/sh"}
}

// Run executes command and waits for it to exit. A non-zero exit status is
// reported in the result, not as an error.
func (s *ExecShell) Run(ctx context.Context, command string) (ShellResult, error) {
	path := s.Path
	if path == "" {
		path = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, path, "-c", command)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	out, err := cmd.CombinedOutput()
	res := ShellResult{Output: strings.TrimSpace(string(out))}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %q: %w", command, err)
	}
	return res, nil
}

// Chdir changes the working directory used for later commands.
func (s *ExecShell) Chdir(dir string) error {
	if !filepath.IsAbs(dir) {
		base := s.Dir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			base = wd
		}
		dir = filepath.Join(base, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	s.Dir = dir
	return nil
}
