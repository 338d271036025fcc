package devassist

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/everydev1618/devassist/dsl"
)

func TestMerge(t *testing.T) {
	groups := []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"git", "vim"}},
		{Type: "pip", Packages: []string{"flask"}},
		{Type: "rpm", Packages: []string{"vim", "make"}},
		{Type: "pip", Packages: []string{"flask", "requests"}},
	}
	want := []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"git", "vim", "make"}},
		{Type: "pip", Packages: []string{"flask", "requests"}},
	}
	if diff := cmp.Diff(want, merge(groups)); diff != "" {
		t.Errorf("merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall(t *testing.T) {
	sh := &fakeShell{results: map[string]dsl.ShellResult{
		"rpm -q git": {ExitCode: 0},
		"rpm -q vim": {ExitCode: 1},
	}}
	in := NewInstaller()
	groups := []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"git", "vim"}},
		{Type: "npm", Packages: []string{"left-pad"}},
		{Type: "cargo", Packages: []string{"ripgrep"}},
	}

	installed, err := in.Install(context.Background(), sh, discardLogger(), groups)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if diff := cmp.Diff([]string{"vim", "left-pad"}, installed); diff != "" {
		t.Errorf("Install() mismatch (-want +got):\n%s", diff)
	}
	wantCalls := []string{"rpm -q git", "rpm -q vim", "dnf install -y vim", "npm install -g left-pad"}
	if diff := cmp.Diff(wantCalls, sh.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallAllPresent(t *testing.T) {
	sh := &fakeShell{}
	in := NewInstaller()
	installed, err := in.Install(context.Background(), sh, discardLogger(), []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"git"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(installed) != 0 {
		t.Errorf("Install() = %v, want nothing installed", installed)
	}
	if diff := cmp.Diff([]string{"rpm -q git"}, sh.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallDryRun(t *testing.T) {
	sh := &fakeShell{}
	in := NewInstaller()
	in.DryRun = true

	installed, err := in.Install(context.Background(), sh, discardLogger(), []dsl.DependencyGroup{
		{Type: "pip", Packages: []string{"flask", "it's"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"flask", "it's"}, installed); diff != "" {
		t.Errorf("Install() mismatch (-want +got):\n%s", diff)
	}
	if len(sh.calls) != 0 {
		t.Errorf("dry run ran %v", sh.calls)
	}
}

func TestInstallFailure(t *testing.T) {
	sh := &fakeShell{results: map[string]dsl.ShellResult{
		"pip install --user nosuchpkg": {ExitCode: 1, Output: "No matching distribution"},
	}}
	in := NewInstaller()
	_, err := in.Install(context.Background(), sh, discardLogger(), []dsl.DependencyGroup{
		{Type: "pip", Packages: []string{"nosuchpkg"}},
	})
	var se *dsl.ShellError
	if !errors.As(err, &se) {
		t.Fatalf("Install() error = %v, want *dsl.ShellError", err)
	}
	if se.Output != "No matching distribution" {
		t.Errorf("Output = %q", se.Output)
	}
}

func TestInstallConfirm(t *testing.T) {
	sh := &fakeShell{results: map[string]dsl.ShellResult{
		"rpm -q git": {ExitCode: 1},
	}}
	in := NewInstaller()
	var asked []string
	in.Confirm = func(typ string, pkgs []string) bool {
		asked = append(asked, typ)
		return typ == "pip"
	}

	installed, err := in.Install(context.Background(), sh, discardLogger(), []dsl.DependencyGroup{
		{Type: "pip", Packages: []string{"flask"}},
		{Type: "rpm", Packages: []string{"git"}},
		{Type: "npm", Packages: []string{"left-pad"}},
	})
	if !errors.Is(err, ErrInstallDeclined) {
		t.Fatalf("Install() error = %v, want ErrInstallDeclined", err)
	}
	if diff := cmp.Diff([]string{"flask"}, installed); diff != "" {
		t.Errorf("Install() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pip", "rpm"}, asked); diff != "" {
		t.Errorf("confirmations mismatch (-want +got):\n%s", diff)
	}
	wantCalls := []string{"pip install --user flask", "rpm -q git"}
	if diff := cmp.Diff(wantCalls, sh.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallConfirmSkippedWhenPresent(t *testing.T) {
	in := NewInstaller()
	in.Confirm = func(string, []string) bool {
		t.Error("Confirm called with nothing to install")
		return false
	}
	if _, err := in.Install(context.Background(), &fakeShell{}, discardLogger(), []dsl.DependencyGroup{
		{Type: "rpm", Packages: []string{"git"}},
	}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"flask", "flask"},
		{"python3-devel", "python3-devel"},
		{"pkg>=1.0", "'pkg>=1.0'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstallerTypes(t *testing.T) {
	want := []string{"dnf", "gem", "npm", "pip", "rpm"}
	if diff := cmp.Diff(want, NewInstaller().Types()); diff != "" {
		t.Errorf("Types() mismatch (-want +got):\n%s", diff)
	}
}
