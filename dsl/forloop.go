package dsl

import (
	"regexp"
	"strings"
)

var forPattern = regexp.MustCompile(`(?s)^for\s+(\$\{\w+\}|\$\w+)(?:\s*,\s*(\$\{\w+\}|\$\w+))?\s+in\s+(\S.*)$`)

// ParseFor splits a loop header of the form `for $var[, $var2] in <expr>`
// into its control variable names and the unparsed source expression.
//
//	for $i in $foo          -> [i], "$foo"
//	for ${k}, ${v} in $(ls) -> [k v], "$(ls)"
func ParseFor(header string) ([]string, string, error) {
	header = strings.TrimSpace(header)
	m := forPattern.FindStringSubmatch(header)
	if m == nil {
		return nil, "", syntaxErrorf(header, "loop must have the form 'for $var[, $var2] in expression'")
	}

	vars := []string{varName(m[1])}
	if m[2] != "" {
		vars = append(vars, varName(m[2]))
	}
	return vars, strings.TrimSpace(m[3]), nil
}

// varName strips the `$` and optional braces from a matched reference.
func varName(ref string) string {
	return strings.Trim(strings.TrimPrefix(ref, "$"), "{}")
}

// parseTarget parses a single assignment target such as `$foo` or `${foo}`.
func parseTarget(directive, target string) (string, error) {
	name := strings.Trim(strings.TrimSpace(target), `"'`)
	if !strings.HasPrefix(name, "$") {
		return "", syntaxErrorf(directive, "not a proper variable name: %q", target)
	}
	name = varName(name)
	if !isName(name) {
		return "", syntaxErrorf(directive, "not a proper variable name: %q", target)
	}
	return name, nil
}
