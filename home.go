package devassist

import (
	"os"
	"path/filepath"
)

// Home is where devassist keeps config.toml, the run history and the
// default snippets directory. DEVASSIST_HOME moves it; otherwise it is
// ~/.devassist.
func Home() string {
	if v := os.Getenv("DEVASSIST_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".devassist")
}

// DefaultDBPath is the run history database used when config.toml sets no db_path.
func DefaultDBPath() string {
	return filepath.Join(Home(), "devassist.db")
}

// DefaultConfigPath is config.toml under Home.
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// SnippetsPath is the snippets directory searched when config.toml sets no
// snippet_dirs. call and extends resolve names relative to it.
func SnippetsPath() string {
	return filepath.Join(Home(), "snippets")
}

// EnsureHome creates Home and its snippets directory.
func EnsureHome() error {
	return os.MkdirAll(SnippetsPath(), 0o755)
}
