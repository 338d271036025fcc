package devassist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/everydev1618/devassist/dsl"
)

// maxExtendsDepth bounds the walk up an assistant's extends chain.
const maxExtendsDepth = 16

// RegisterBuiltins adds the built-in commands.
func (c *Commands) RegisterBuiltins() {
	c.Register("cl", shellCommand(slog.LevelDebug))
	c.Register("cl_i", shellCommand(slog.LevelInfo))
	c.RegisterPrefix("log_", logCommand)
	c.Register("call", callCommand)
	c.Register("use", callCommand)
	c.Register("dependencies", dependenciesCommand)
	c.Register("docker_b", dockerBuildCommand)
	c.RegisterPrefix("scl ", sclCommand)
	c.Register("jinja_render", renderCommand)
	c.Register("render", renderCommand)
}

// shellCommand runs the substituted input as a shell command. A non-zero
// exit status aborts the run with a *dsl.ShellError.
func shellCommand(level slog.Level) CommandFunc {
	return func(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
		line := strings.TrimSpace(cmd.Input.Text())
		if line == "" {
			return dsl.Result{}, fmt.Errorf("%w: empty command", ErrInvalidInput)
		}

		if dir, ok := cdTarget(line); ok {
			if err := s.Shell.Chdir(dir); err != nil {
				return dsl.Result{}, &dsl.ShellError{Command: line, ExitCode: 1, Output: err.Error()}
			}
			s.Logger.Log(ctx, level, "changed directory", "dir", dir)
			return dsl.Result{OK: true, Value: dir}, nil
		}

		if scls := s.SCL(); len(scls) > 0 {
			line = sclWrap(scls, line)
		}

		s.Logger.Log(ctx, level, "running command", "command", line)
		res, err := s.Shell.Run(ctx, line)
		if err != nil {
			return dsl.Result{}, err
		}
		if res.Output != "" {
			s.Logger.Log(ctx, level, res.Output)
		}
		if !res.OK() {
			return dsl.Result{}, &dsl.ShellError{Command: line, ExitCode: res.ExitCode, Output: res.Output}
		}
		return dsl.Result{OK: true, Value: res.Output}, nil
	}
}

// cdTarget recognises a bare `cd <dir>`, which must persist across commands.
func cdTarget(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "cd" || strings.ContainsAny(line, ";&|") {
		return "", false
	}
	dir := fields[1]
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir, true
}

func sclWrap(scls []string, line string) string {
	return fmt.Sprintf("scl enable %s - << 'DA_SCL_EOF'\n%s\nDA_SCL_EOF", strings.Join(scls, " "), line)
}

var logLevels = map[string]slog.Level{
	"log_d": slog.LevelDebug,
	"log_i": slog.LevelInfo,
	"log_w": slog.LevelWarn,
	"log_e": slog.LevelError,
	"log_c": slog.LevelError,
}

func logCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	level, ok := logLevels[cmd.Type]
	if !ok {
		return dsl.Result{}, fmt.Errorf("%w: %s", dsl.ErrUnknownDirective, cmd.Type)
	}

	msg := cmd.Input.Text()
	if cmd.Type == "log_c" {
		s.Logger.Log(ctx, level, msg, "critical", true)
	} else {
		s.Logger.Log(ctx, level, msg)
	}
	if level >= slog.LevelError {
		return dsl.Result{}, fmt.Errorf("%w: %s", ErrFatalLog, msg)
	}
	return dsl.Result{OK: true, Value: msg}, nil
}

// callCommand runs another section on a copy of the scope:
//
//	self.<section>      - a section of the running assistant
//	super.<section>     - the nearest assistant up the extends chain that has it
//	<snippet>.<section> - a snippet section, with the snippet's files
//
// Without a section part the run or dependencies section is used, matching
// the kind of section the call appears in.
func callCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	target := strings.TrimSpace(cmd.Input.Text())
	if target == "" {
		return dsl.Result{}, fmt.Errorf("%w: call needs a target", ErrInvalidInput)
	}

	owner, name, _ := strings.Cut(target, ".")
	if name == "" {
		name = string(cmd.Kind)
	}

	doc, err := s.resolveCall(owner, name)
	if err != nil {
		return dsl.Result{}, err
	}
	section, ok := doc.Section(name)
	if !ok {
		return dsl.Result{}, fmt.Errorf("%w: %s in %s", ErrSectionNotFound, name, doc.Name)
	}

	interp := cmd.Interp
	if owner != "self" && owner != "super" {
		interp = interp.ForFiles(doc.Manifest())
	}

	scope := cmd.Scope.Clone()
	s.Logger.Debug("calling section", "target", target, "from", doc.Name)
	if cmd.Kind == dsl.KindDependencies {
		groups, err := interp.Dependencies(ctx, section, scope)
		if err != nil {
			return dsl.Result{}, err
		}
		return dsl.Result{OK: true, Value: groups}, nil
	}
	return interp.Run(ctx, section, scope)
}

func (s *Session) resolveCall(owner, section string) (*dsl.Document, error) {
	switch owner {
	case "self":
		return s.Doc, nil
	case "super":
		doc := s.Doc
		for depth := 0; doc.Extends != "" && depth < maxExtendsDepth; depth++ {
			parent, err := s.snippet(doc.Extends)
			if err != nil {
				return nil, err
			}
			if _, ok := parent.Section(section); ok {
				return parent, nil
			}
			doc = parent
		}
		return nil, fmt.Errorf("%w: %s in any assistant extended by %s", ErrSectionNotFound, section, s.Doc.Name)
	}
	return s.snippet(owner)
}

func (s *Session) snippet(name string) (*dsl.Document, error) {
	if s.Snippets == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnippetNotFound, name)
	}
	return s.Snippets.Get(name)
}

// dependenciesCommand resolves its payload as a dependency section and
// installs the result. Already resolved groups are installed as given.
func dependenciesCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	if groups, ok := cmd.Raw.([]dsl.DependencyGroup); ok {
		if err := s.install(ctx, groups); err != nil {
			return dsl.Result{}, err
		}
		return dsl.Result{OK: true, Value: groups}, nil
	}

	section, ok := dsl.AsSection(cmd.Raw)
	if !ok {
		return dsl.Result{}, fmt.Errorf("%w: dependencies must be a list, got %T", ErrInvalidInput, cmd.Raw)
	}
	groups, err := cmd.Interp.Dependencies(ctx, section, cmd.Scope)
	if err != nil {
		return dsl.Result{}, err
	}
	if err := s.install(ctx, groups); err != nil {
		return dsl.Result{}, err
	}
	return dsl.Result{OK: true, Value: groups}, nil
}

func (s *Session) install(ctx context.Context, groups []dsl.DependencyGroup) error {
	if len(groups) == 0 {
		return nil
	}
	if s.Installer == nil {
		s.Logger.Warn("no installer configured, skipping dependencies", "groups", len(groups))
		return nil
	}
	_, err := s.Installer.Install(ctx, s.Shell, s.Logger, groups)
	return err
}

// dockerBuildCommand builds the directory named by its input. Without a
// builder it warns and evaluates to (false, "").
func dockerBuildCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	dir, tag := cmd.Input.Text(), ""
	if m, ok := cmd.Input.Value.(dsl.Map); ok {
		d, _ := m.Get("path")
		t, _ := m.Get("tag")
		dir, tag = cmd.Interp.Substitute(d, cmd.Scope), cmd.Interp.Substitute(t, cmd.Scope)
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return dsl.Result{}, fmt.Errorf("%w: docker_b needs a directory", ErrInvalidInput)
	}

	if s.Builder == nil {
		s.Logger.Warn("docker is not available, cannot build image", "dir", dir)
		return dsl.Result{Value: ""}, nil
	}

	s.Logger.Info("building docker image", "dir", dir, "tag", tag)
	id, err := s.Builder.Build(ctx, dir, tag)
	if err != nil {
		s.Logger.Info("failed to build docker image", "error", err)
		return dsl.Result{Value: ""}, nil
	}
	s.Logger.Info("finished building docker image", "image", id)
	return dsl.Result{OK: true, Value: id}, nil
}

// sclCommand runs its body with shell commands wrapped in `scl enable`.
// The directive is `scl [enable] <collection>...`.
func sclCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	names := strings.Fields(cmd.Type)[1:]
	if len(names) > 0 && names[0] == "enable" {
		names = names[1:]
	}
	if len(names) == 0 {
		return dsl.Result{}, fmt.Errorf("%w: scl needs at least one collection", ErrInvalidInput)
	}

	body, ok := dsl.AsSection(cmd.Raw)
	if !ok {
		return dsl.Result{}, fmt.Errorf("%w: scl body must be a list of commands", ErrInvalidInput)
	}

	s.pushSCL(names)
	defer s.popSCL()
	return cmd.Interp.Run(ctx, body, cmd.Scope)
}

// renderCommand renders a text/template from the files directory:
//
//	- render:
//	    template: {source: setup.py.tpl}
//	    destination: $name
//	    output: setup.py      # default: template name without .tpl
//	    data: {name: $name}
//	    overwrite: true
func renderCommand(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	args, ok := cmd.Input.Value.(dsl.Map)
	if !ok {
		return dsl.Result{}, fmt.Errorf("%w: %s needs a mapping", ErrInvalidInput, cmd.Type)
	}

	source, err := templateSource(args)
	if err != nil {
		return dsl.Result{}, err
	}
	source = cmd.Interp.Substitute(source, cmd.Scope)
	v, _ := args.Get("destination")
	dest := strings.TrimSpace(cmd.Interp.Substitute(v, cmd.Scope))
	if info, err := os.Stat(dest); dest == "" || err != nil || !info.IsDir() {
		return dsl.Result{}, fmt.Errorf("%w: destination directory %q does not exist", ErrInvalidInput, dest)
	}

	output := strings.TrimSuffix(filepath.Base(source), ".tpl")
	if v, ok := args.Get("output"); ok {
		output = cmd.Interp.Substitute(v, cmd.Scope)
	}
	target := filepath.Join(dest, output)

	dir := ""
	if files := cmd.Interp.Files(); files != nil {
		dir = files.Dir
	}
	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, source)
	}
	tpl, err := template.New(filepath.Base(path)).Option("missingkey=zero").ParseFiles(path)
	if err != nil {
		return dsl.Result{}, fmt.Errorf("template %s: %w", source, err)
	}

	data := make(map[string]any)
	if v, ok := args.Get("data"); ok {
		m, ok := v.(dsl.Map)
		if !ok {
			return dsl.Result{}, fmt.Errorf("%w: data must be a mapping", ErrInvalidInput)
		}
		for _, e := range m {
			data[e.Key] = templateValue(cmd.Interp, e.Value, cmd.Scope)
		}
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return dsl.Result{}, fmt.Errorf("render %s: %w", source, err)
	}

	if _, err := os.Stat(target); err == nil {
		ow, _ := args.Get("overwrite")
		if !isYes(ow) {
			return dsl.Result{}, fmt.Errorf("%w: destination file already exists: %s", ErrInvalidInput, target)
		}
		s.Logger.Info("overwriting destination file", "path", target)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return dsl.Result{}, err
	}
	s.Logger.Debug("rendered template", "template", source, "path", target)
	return dsl.Result{OK: true, Value: "success"}, nil
}

func templateSource(args dsl.Map) (string, error) {
	v, ok := args.Get("template")
	if !ok {
		return "", fmt.Errorf("%w: missing template parameter", ErrInvalidInput)
	}
	if m, ok := v.(dsl.Map); ok {
		v, _ = m.Get("source")
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: template needs a source", ErrInvalidInput)
	}
	return s, nil
}

// templateValue substitutes scope references in strings, recursively.
func templateValue(interp *dsl.Interpreter, v any, scope dsl.Scope) any {
	switch t := v.(type) {
	case string:
		return interp.Substitute(t, scope)
	case dsl.Map:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = templateValue(interp, e.Value, scope)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = templateValue(interp, item, scope)
		}
		return out
	}
	return v
}

func isYes(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true", "yes":
			return true
		}
	}
	return false
}
