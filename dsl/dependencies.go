package dsl

import (
	"context"
	"strings"
)

// Dependencies resolves a dependency section into the groups that apply
// under scope. Conditionals choose a branch exactly as Run would; nothing
// else is executed. A `call` is forwarded to the dispatcher, which may
// return further groups as a []DependencyGroup value.
func (i *Interpreter) Dependencies(ctx context.Context, section Section, scope Scope) ([]DependencyGroup, error) {
	var groups []DependencyGroup
	var prevIf, taken bool

	for _, e := range section {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key := strings.TrimSpace(e.Key)
		isIf := false
		var (
			more []DependencyGroup
			err  error
		)
		switch {
		case key == "":
			more, err = i.dependencyBranch(ctx, "nested section", e.Value, scope)

		case key == "else":
			if !prevIf {
				return nil, syntaxErrorf(key, "else without a preceding if")
			}
			if !taken {
				more, err = i.dependencyBranch(ctx, key, e.Value, scope)
			}

		case hasKeyword(key, "if"):
			isIf = true
			taken, err = i.condition(ctx, key, scope)
			if err == nil && taken {
				more, err = i.dependencyBranch(ctx, key, e.Value, scope)
			}

		case hasKeyword(key, "for"):
			return nil, syntaxErrorf(key, "loops are not allowed in dependency sections")

		case key == "call" || key == "use":
			var res Result
			res, err = i.dispatch(ctx, key, e.Value, scope, KindDependencies, Result{})
			if g, ok := res.Value.([]DependencyGroup); ok && err == nil {
				more = g
			}

		case i.depTypes[key]:
			var pkgs []string
			pkgs, err = i.packages(key, e.Value, scope)
			if len(pkgs) > 0 {
				more = []DependencyGroup{{Type: key, Packages: pkgs}}
			}

		default:
			i.logger.Warn("skipping unknown dependency type", "type", key)
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, more...)
		prevIf = isIf
	}
	return groups, nil
}

func (i *Interpreter) dependencyBranch(ctx context.Context, directive string, body any, scope Scope) ([]DependencyGroup, error) {
	s, ok := AsSection(body)
	if !ok {
		return nil, syntaxErrorf(directive, "body must be a sequence of dependency groups, got %T", body)
	}
	return i.Dependencies(ctx, s, scope)
}

// packages substitutes variables in every package spec of a group.
func (i *Interpreter) packages(typ string, v any, scope Scope) ([]string, error) {
	var raw []any
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		raw = t
	case []string:
		for _, s := range t {
			raw = append(raw, s)
		}
	case string:
		for _, f := range strings.Fields(t) {
			raw = append(raw, f)
		}
	default:
		return nil, syntaxErrorf(typ, "dependency group must be a list of packages, got %T", v)
	}

	pkgs := make([]string, 0, len(raw))
	for _, p := range raw {
		switch p.(type) {
		case string, bool:
		default:
			return nil, syntaxErrorf(typ, "package spec must be a string, got %T", p)
		}
		if s := strings.TrimSpace(i.Substitute(p, scope)); s != "" {
			pkgs = append(pkgs, s)
		}
	}
	return pkgs, nil
}
