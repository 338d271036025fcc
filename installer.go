package devassist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/everydev1618/devassist/dsl"
)

// PackageManager describes how to install one dependency group type.
type PackageManager struct {
	// Install is the command prefix; package names are appended.
	Install string

	// Check, when set, is run per package; exit status 0 means installed.
	Check string
}

// DefaultPackageManagers maps the default dependency types to their commands.
var DefaultPackageManagers = map[string]PackageManager{
	"rpm": {Install: "dnf install -y", Check: "rpm -q"},
	"dnf": {Install: "dnf install -y", Check: "rpm -q"},
	"pip": {Install: "pip install --user"},
	"npm": {Install: "npm install -g"},
	"gem": {Install: "gem install"},
}

// Installer installs resolved dependency groups through a shell.
type Installer struct {
	Managers map[string]PackageManager

	// DryRun logs the install commands instead of running them.
	DryRun bool

	// Confirm, when set, is asked before each group's missing packages are
	// installed. Declining stops the install with ErrInstallDeclined.
	Confirm func(typ string, pkgs []string) bool
}

// NewInstaller creates an installer with the default package managers.
func NewInstaller() *Installer {
	m := make(map[string]PackageManager, len(DefaultPackageManagers))
	for k, v := range DefaultPackageManagers {
		m[k] = v
	}
	return &Installer{Managers: m}
}

// Install installs every group in order and returns the installed packages.
// Packages a manager reports as present are skipped. A failed install is a
// *dsl.ShellError.
func (in *Installer) Install(ctx context.Context, sh dsl.Shell, logger *slog.Logger, groups []dsl.DependencyGroup) ([]string, error) {
	var installed []string
	for _, g := range merge(groups) {
		pm, ok := in.Managers[g.Type]
		if !ok {
			logger.Warn("no package manager for dependency type", "type", g.Type)
			continue
		}

		missing, err := in.missing(ctx, sh, pm, g.Packages)
		if err != nil {
			return installed, err
		}
		if len(missing) == 0 {
			logger.Debug("dependencies already installed", "type", g.Type)
			continue
		}

		command := pm.Install + " " + shellJoin(missing)
		if in.DryRun {
			logger.Info("would install dependencies", "type", g.Type, "command", command)
			installed = append(installed, missing...)
			continue
		}

		if in.Confirm != nil && !in.Confirm(g.Type, missing) {
			return installed, fmt.Errorf("%w: %s %s", ErrInstallDeclined, g.Type, strings.Join(missing, " "))
		}

		logger.Info("installing dependencies", "type", g.Type, "packages", strings.Join(missing, " "))
		res, err := sh.Run(ctx, command)
		if err != nil {
			return installed, fmt.Errorf("install %s dependencies: %w", g.Type, err)
		}
		if !res.OK() {
			return installed, &dsl.ShellError{Command: command, ExitCode: res.ExitCode, Output: res.Output}
		}
		installed = append(installed, missing...)
	}
	return installed, nil
}

func (in *Installer) missing(ctx context.Context, sh dsl.Shell, pm PackageManager, pkgs []string) ([]string, error) {
	if pm.Check == "" || in.DryRun {
		return pkgs, nil
	}
	var missing []string
	for _, p := range pkgs {
		res, err := sh.Run(ctx, pm.Check+" "+shellQuote(p))
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// merge combines groups of the same type, keeping first-seen order of
// types and packages and dropping duplicate packages.
func merge(groups []dsl.DependencyGroup) []dsl.DependencyGroup {
	index := make(map[string]int)
	seen := make(map[string]bool)
	var out []dsl.DependencyGroup
	for _, g := range groups {
		i, ok := index[g.Type]
		if !ok {
			i = len(out)
			index[g.Type] = i
			out = append(out, dsl.DependencyGroup{Type: g.Type})
		}
		for _, p := range g.Packages {
			key := g.Type + "\x00" + p
			if seen[key] {
				continue
			}
			seen[key] = true
			out[i].Packages = append(out[i].Packages, p)
		}
	}
	return out
}

// Types returns the dependency types the installer can handle, sorted.
func (in *Installer) Types() []string {
	types := make([]string, 0, len(in.Managers))
	for t := range in.Managers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shellQuote quotes s for /bin/sh when it contains anything but safe characters.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./_-", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
