package dsl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser parses assistant and snippet YAML files.
type Parser struct {
	// BaseDir for resolving relative paths
	BaseDir string
}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses an assistant file. The document name defaults to the
// file name without extension and files_dir to a `files` directory next to
// the file.
func (p *Parser) ParseFile(path string) (*Document, error) {
	if !filepath.IsAbs(path) && p.BaseDir != "" {
		path = filepath.Join(p.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	doc, err := p.parse(data, path)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && ve.File == "" {
			ve.File = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse parses YAML content into a Document.
func (p *Parser) Parse(data []byte) (*Document, error) {
	return p.parse(data, "")
}

func (p *Parser) parse(data []byte, path string) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, &ValidationError{Message: "document is empty"}
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &ValidationError{Line: top.Line, Message: "document must be a mapping"}
	}

	doc := &Document{
		Args:     make(map[string]*Arg),
		Files:    make(map[string]FileRef),
		Sections: make(map[string]Section),
		Path:     path,
	}

	for k := 0; k+1 < len(top.Content); k += 2 {
		keyNode, val := top.Content[k], top.Content[k+1]
		key := keyNode.Value

		var err error
		switch {
		case key == "name":
			doc.Name, err = scalar(key, val)
		case key == "fullname":
			doc.FullName, err = scalar(key, val)
		case key == "description":
			doc.Description, err = scalar(key, val)
		case key == "extends":
			doc.Extends, err = scalar(key, val)
		case key == "files_dir":
			doc.FilesDir, err = scalar(key, val)
		case key == "args":
			err = p.parseArgs(doc, val)
		case key == "files":
			err = p.parseFiles(doc, val)
		case isSectionName(key):
			var s Section
			s, err = sectionNode(key, val)
			doc.Sections[key] = s
		}
		if err != nil {
			return nil, err
		}
	}

	if path != "" {
		if doc.Name == "" {
			doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		switch {
		case doc.FilesDir == "":
			doc.FilesDir = filepath.Join(filepath.Dir(path), "files")
		case !filepath.IsAbs(doc.FilesDir):
			doc.FilesDir = filepath.Join(filepath.Dir(path), doc.FilesDir)
		}
	}

	if err := p.validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSection parses a bare YAML sequence of command entries.
func ParseSection(data []byte) (Section, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return Section{}, nil
	}
	return sectionNode("section", root.Content[0])
}

// ParseValue parses a YAML value into the interpreter's value model.
func ParseValue(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	return nodeValue(root.Content[0]), nil
}

func (p *Parser) parseArgs(doc *Document, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return &ValidationError{Line: n.Line, Field: "args", Message: "expected a mapping of argument definitions"}
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		name, def := n.Content[k].Value, n.Content[k+1]
		arg := &Arg{}
		if def.Kind != yaml.MappingNode {
			return &ValidationError{
				Line:    def.Line,
				Field:   "args." + name,
				Message: "expected a mapping",
				Hint:    "Add 'help:' and 'flags:' keys to the argument",
			}
		}
		if err := def.Decode(arg); err != nil {
			return &ValidationError{Line: def.Line, Field: "args." + name, Message: err.Error()}
		}
		if d := mappingValue(def, "default"); d != nil {
			arg.Default = nodeValue(d)
		}
		doc.Args[name] = arg
	}
	return nil
}

func (p *Parser) parseFiles(doc *Document, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return &ValidationError{Line: n.Line, Field: "files", Message: "expected a mapping of file references"}
	}
	for k := 0; k+1 < len(n.Content); k += 2 {
		name, ref := n.Content[k].Value, n.Content[k+1]
		var f FileRef
		if err := ref.Decode(&f); err != nil {
			return &ValidationError{Line: ref.Line, Field: "files." + name, Message: err.Error()}
		}
		doc.Files[name] = f
	}
	return nil
}

// validate validates the parsed document.
func (p *Parser) validate(doc *Document) error {
	if doc.Name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "name is required",
		}
	}

	if len(doc.Sections) == 0 {
		return &ValidationError{
			Field:   "run",
			Message: "at least one run or dependencies section must be defined",
			Hint:    "Add a 'run:' list of commands",
		}
	}

	for name, ref := range doc.Files {
		if ref.Source == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("files.%s.source", name),
				Message: "source is required",
			}
		}
	}

	for name, arg := range doc.Args {
		for _, flag := range arg.Flags {
			if !strings.HasPrefix(flag, "-") {
				return &ValidationError{
					Field:   fmt.Sprintf("args.%s.flags", name),
					Message: fmt.Sprintf("flag '%s' must start with '-'", flag),
				}
			}
		}
	}

	return nil
}

// SectionNames returns the names of all sections in sorted order.
func (d *Document) SectionNames() []string {
	names := make([]string, 0, len(d.Sections))
	for name := range d.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SuggestSection returns the section name closest to name, for hints.
func (d *Document) SuggestSection(name string) string {
	return findSimilar(name, d.SectionNames())
}

func isSectionName(key string) bool {
	return key == "run" || strings.HasPrefix(key, "run_") ||
		key == "dependencies" || strings.HasPrefix(key, "dependencies_")
}

func scalar(field string, n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", &ValidationError{Line: n.Line, Field: field, Message: "expected a string"}
	}
	return n.Value, nil
}

// sectionNode converts a YAML sequence into a section. Each mapping item
// contributes its keys as entries in order; each sequence item becomes a
// nested section.
func sectionNode(field string, n *yaml.Node) (Section, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return Section{}, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, &ValidationError{
			Line:    n.Line,
			Field:   field,
			Message: "expected a list of commands",
			Hint:    "Write each command as a list item, e.g. '- cl: ls'",
		}
	}

	s := make(Section, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind == yaml.AliasNode {
			item = item.Alias
		}
		switch item.Kind {
		case yaml.MappingNode:
			for k := 0; k+1 < len(item.Content); k += 2 {
				s = append(s, Entry{Key: item.Content[k].Value, Value: nodeValue(item.Content[k+1])})
			}
		case yaml.SequenceNode:
			s = append(s, Entry{Value: nodeValue(item)})
		default:
			return nil, &ValidationError{
				Line:    item.Line,
				Field:   field,
				Message: fmt.Sprintf("command must be a mapping, got %q", item.Value),
			}
		}
	}
	return s, nil
}

// nodeValue converts a YAML node into the interpreter's value model:
// mappings become Map, sequences []any, booleans bool, null nil and every
// other scalar its literal text.
func nodeValue(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			items = append(items, nodeValue(c))
		}
		return items
	case yaml.MappingNode:
		m := make(Map, 0, len(n.Content)/2)
		for k := 0; k+1 < len(n.Content); k += 2 {
			m = append(m, Entry{Key: n.Content[k].Value, Value: nodeValue(n.Content[k+1])})
		}
		return m
	}

	switch n.Tag {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	}
	return n.Value
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for k := 0; k+1 < len(n.Content); k += 2 {
		if n.Content[k].Value == key {
			return n.Content[k+1]
		}
	}
	return nil
}

// findSimilar finds the most similar string using simple edit distance.
// It returns "" when no candidate shares anything with target.
func findSimilar(target string, candidates []string) string {
	target = strings.ToLower(target)
	best := ""
	bestScore := 0

	for _, c := range candidates {
		score := similarity(target, strings.ToLower(c))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	return best
}

// similarity returns a simple similarity score.
func similarity(a, b string) int {
	if a == b {
		return 100
	}

	score := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			score += 2
		} else {
			break
		}
	}

	if strings.Contains(b, a) || strings.Contains(a, b) {
		score += 10
	}

	return score
}
