package dsl

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Map is a mapping that keeps the key order of the source document.
type Map []Entry

// Get returns the value for key.
func (m Map) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// MarshalYAML renders the map as an ordered YAML mapping.
func (m Map) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m {
		var val yaml.Node
		if err := val.Encode(e.Value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&val,
		)
	}
	return node, nil
}

// Truthy reports whether v counts as true: non-empty strings, true booleans
// and non-empty mappings or sequences.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case Map:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case Section:
		return len(t) > 0
	default:
		return true
	}
}

// Text returns the textual form of v. Booleans render as true/false.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case Map:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, e.Key+": "+Text(e.Value))
		}
		return strings.Join(parts, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, Text(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

// pairs returns the key/value pairs of a mapping value in iteration order.
// Plain Go maps iterate in sorted key order.
func pairs(v any) (Map, bool) {
	switch t := v.(type) {
	case Map:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(Map, 0, len(keys))
		for _, k := range keys {
			m = append(m, Entry{Key: k, Value: t[k]})
		}
		return m, true
	}
	return nil, false
}

// AsSection converts a payload into a section. Sequence items that are
// mappings contribute their entries in order; sequence items that are
// themselves sequences become nested-section entries.
func AsSection(v any) (Section, bool) {
	switch t := v.(type) {
	case Section:
		return t, true
	case []Entry:
		return Section(t), true
	case []any:
		s := make(Section, 0, len(t))
		for _, item := range t {
			if m, ok := pairs(item); ok {
				s = append(s, m...)
				continue
			}
			switch item.(type) {
			case []any, Section:
				s = append(s, Entry{Value: item})
			default:
				return nil, false
			}
		}
		return s, true
	case []map[string]any:
		s := make(Section, 0, len(t))
		for _, item := range t {
			m, _ := pairs(item)
			s = append(s, m...)
		}
		return s, true
	}
	return nil, false
}
