// Package snippets finds the snippet and assistant files that call and
// extends refer to by name.
package snippets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/everydev1618/devassist"
	"github.com/everydev1618/devassist/dsl"
)

// Loader indexes *.yaml files under a list of directories. A file's name is
// its path relative to the directory without the extension, so
// `<dir>/python/flask.yaml` is `python/flask`. Earlier directories win.
type Loader struct {
	directories []string
	exclude     []string
	paths       map[string]string
	docs        map[string]*dsl.Document
	parser      *dsl.Parser
	mu          sync.RWMutex
}

// NewLoader creates a loader for the given directories.
func NewLoader(dirs ...string) *Loader {
	expanded := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if strings.HasPrefix(dir, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				dir = filepath.Join(home, dir[2:])
			}
		}
		expanded = append(expanded, dir)
	}
	return &Loader{
		directories: expanded,
		paths:       make(map[string]string),
		docs:        make(map[string]*dsl.Document),
		parser:      dsl.NewParser(),
	}
}

// Exclude hides snippets whose names match any pattern. A pattern may start
// or end with '*'.
func (l *Loader) Exclude(patterns ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exclude = append(l.exclude, patterns...)
}

// Load scans the directories. Missing directories are skipped.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, dir := range l.directories {
		if err := l.scanDirectory(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) scanDirectory(ctx context.Context, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return fs.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ext))
		if l.excluded(name) {
			return nil
		}
		if _, ok := l.paths[name]; !ok {
			l.paths[name] = path
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	return nil
}

func (l *Loader) excluded(name string) bool {
	for _, pattern := range l.exclude {
		if matchPattern(name, pattern) {
			return true
		}
	}
	return false
}

// matchPattern supports a leading or trailing * wildcard.
func matchPattern(name, pattern string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	}
	return name == pattern
}

// Get parses the named file on first use. Unknown names wrap
// devassist.ErrSnippetNotFound.
func (l *Loader) Get(name string) (*dsl.Document, error) {
	l.mu.RLock()
	doc, ok := l.docs[name]
	path, known := l.paths[name]
	l.mu.RUnlock()
	if ok {
		return doc, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", devassist.ErrSnippetNotFound, name)
	}

	doc, err := l.parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("load snippet %s: %w", name, err)
	}

	l.mu.Lock()
	l.docs[name] = doc
	l.mu.Unlock()
	return doc, nil
}

// Names returns the names of all indexed files, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.paths))
	for name := range l.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of indexed files.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.paths)
}

// Reload clears the index and the parsed documents and scans again.
func (l *Loader) Reload(ctx context.Context) error {
	l.mu.Lock()
	l.paths = make(map[string]string)
	l.docs = make(map[string]*dsl.Document)
	l.mu.Unlock()

	return l.Load(ctx)
}
