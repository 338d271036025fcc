package dsl

import (
	"path/filepath"
	"strings"
)

// Substitute expands `$name` and `${name}` from scope and `*name` and
// `*{name}` from the files manifest. References that cannot be resolved are
// left exactly as written, as is every other character.
func Substitute(text any, scope Scope, files *Files) string {
	s := Text(text)
	if !strings.ContainsAny(s, "$*") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' && c != '*' {
			b.WriteByte(c)
			i++
			continue
		}

		name, n := scanRef(s[i+1:])
		if n == 0 {
			b.WriteByte(c)
			i++
			continue
		}
		token := s[i : i+1+n]
		i += 1 + n

		if c == '$' {
			if v, ok := scope[name]; ok {
				b.WriteString(Text(v))
			} else {
				b.WriteString(token)
			}
			continue
		}
		if ref, ok := files.lookup(name); ok {
			b.WriteString(filepath.Join(files.Dir, ref.Source))
		} else {
			b.WriteString(token)
		}
	}
	return b.String()
}

func (f *Files) lookup(name string) (FileRef, bool) {
	if f == nil {
		return FileRef{}, false
	}
	ref, ok := f.Entries[name]
	return ref, ok
}

// scanRef reads `name` or `{name}` from the start of s and returns the name
// and the number of bytes consumed, or 0 when s does not start with one.
func scanRef(s string) (string, int) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 || !isName(s[1:end]) {
			return "", 0
		}
		return s[1:end], end + 1
	}
	n := 0
	for n < len(s) && isNameByte(s[n]) {
		n++
	}
	return s[:n], n
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
