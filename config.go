package devassist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/everydev1618/devassist/dsl"
)

// Config holds user settings read from config.toml.
type Config struct {
	LogLevel slog.Level

	// Shell is the binary used for shell commands and substitutions.
	Shell string

	// SnippetDirs are searched in order for snippets named by call and extends.
	SnippetDirs []string

	// DBPath is the run history database. History must be set for it to be used.
	DBPath  string
	History bool

	// Docker enables docker_* commands.
	Docker bool

	// DryRunDeps logs dependency installs instead of running them.
	DryRunDeps bool

	// DependencyTypes overrides the recognised dependency group types.
	DependencyTypes []string
}

// config.toml key mapping.
type fileConfig struct {
	LogLevel        string   `toml:"log_level"`
	Shell           string   `toml:"shell"`
	SnippetDirs     []string `toml:"snippet_dirs"`
	DBPath          string   `toml:"db_path"`
	History         bool     `toml:"history"`
	Docker          bool     `toml:"docker"`
	DryRunDeps      bool     `toml:"dry_run_deps"`
	DependencyTypes []string `toml:"dependency_types"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() Config {
	return Config{
		LogLevel:        slog.LevelInfo,
		Shell:           "/bin/sh",
		SnippetDirs:     []string{SnippetsPath()},
		DBPath:          DefaultDBPath(),
		History:         true,
		Docker:          true,
		DependencyTypes: append([]string(nil), dsl.DefaultDependencyTypes...),
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("log_level") {
		level, err := parseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("shell") {
		cfg.Shell = strings.TrimSpace(raw.Shell)
	}
	if meta.IsDefined("snippet_dirs") {
		cfg.SnippetDirs = raw.SnippetDirs
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("history") {
		cfg.History = raw.History
	}
	if meta.IsDefined("docker") {
		cfg.Docker = raw.Docker
	}
	if meta.IsDefined("dry_run_deps") {
		cfg.DryRunDeps = raw.DryRunDeps
	}
	if meta.IsDefined("dependency_types") {
		if len(raw.DependencyTypes) == 0 {
			return Config{}, fmt.Errorf("load config: dependency_types must list at least one type")
		}
		cfg.DependencyTypes = raw.DependencyTypes
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys", "path", path, "keys", fmt.Sprint(undecoded))
	}
	if cfg.Shell == "" {
		return Config{}, fmt.Errorf("load config: shell must not be empty")
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}

// SaveConfig writes cfg to path, creating the parent directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	raw := fileConfig{
		LogLevel:        strings.ToLower(cfg.LogLevel.String()),
		Shell:           cfg.Shell,
		SnippetDirs:     cfg.SnippetDirs,
		DBPath:          cfg.DBPath,
		History:         cfg.History,
		Docker:          cfg.Docker,
		DryRunDeps:      cfg.DryRunDeps,
		DependencyTypes: cfg.DependencyTypes,
	}
	if err := toml.NewEncoder(f).Encode(raw); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return f.Close()
}
