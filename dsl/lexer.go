package dsl

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokIn
	tokDefined
	tokVar
	tokShell
	tokString
	tokWord
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokAnd:
		return "'and'"
	case tokOr:
		return "'or'"
	case tokNot:
		return "'not'"
	case tokIn:
		return "'in'"
	case tokDefined:
		return "'defined'"
	case tokVar:
		return "variable"
	case tokShell:
		return "shell substitution"
	case tokString:
		return "string literal"
	case tokWord:
		return "word"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "unknown token"
	}
}

type token struct {
	kind  tokenKind
	value string
	quote byte // '"' or '\'' for string literals
	start int
	end   int
}

var keywords = map[string]tokenKind{
	"and":     tokAnd,
	"or":      tokOr,
	"not":     tokNot,
	"in":      tokIn,
	"defined": tokDefined,
}

// lex splits an expression into tokens. The body of a `$(...)` substitution
// is kept verbatim so the shell sees exactly what was written.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for {
		for i < len(input) && isSpace(input[i]) {
			i++
		}
		if i >= len(input) {
			toks = append(toks, token{kind: tokEOF, start: i, end: i})
			return toks, nil
		}

		start := i
		switch c := input[i]; {
		case strings.HasPrefix(input[i:], "$("):
			body, n, err := scanShell(input[i+2:])
			if err != nil {
				return nil, err
			}
			i += 2 + n
			toks = append(toks, token{kind: tokShell, value: body, start: start, end: i})

		case c == '$':
			name, n := scanRef(input[i+1:])
			if n == 0 {
				end := scanWord(input, i)
				toks = append(toks, token{kind: tokWord, value: input[i:end], start: start, end: end})
				i = end
				continue
			}
			i += 1 + n
			toks = append(toks, token{kind: tokVar, value: name, start: start, end: i})

		case c == '"' || c == '\'':
			text, n, err := scanQuoted(input[i:])
			if err != nil {
				return nil, err
			}
			i += n
			toks = append(toks, token{kind: tokString, value: text, quote: c, start: start, end: i})

		case c == '(':
			i++
			toks = append(toks, token{kind: tokLParen, start: start, end: i})

		case c == ')':
			i++
			toks = append(toks, token{kind: tokRParen, start: start, end: i})

		default:
			i = scanWord(input, i)
			word := input[start:i]
			if kind, ok := keywords[word]; ok {
				toks = append(toks, token{kind: kind, value: word, start: start, end: i})
			} else {
				toks = append(toks, token{kind: tokWord, value: word, start: start, end: i})
			}
		}
	}
}

// scanShell returns the body of a substitution whose opening `$(` has already
// been consumed, and the number of bytes consumed including the closing paren.
func scanShell(s string) (string, int, error) {
	depth := 1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case c == '\\':
			i++
		case quote == '"':
			if c == '"' {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return s[:i], i + 1, nil
			}
		}
	}
	return "", 0, &SyntaxError{Message: fmt.Sprintf("unterminated shell substitution: $(%s", s)}
}

// scanQuoted reads a quoted literal starting at s[0]. Double-quoted literals
// honour \" and \\ escapes; single-quoted literals are taken as is.
func scanQuoted(s string) (string, int, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == q {
			return b.String(), i + 1, nil
		}
		if q == '"' && c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
			c = s[i]
		}
		b.WriteByte(c)
	}
	return "", 0, &SyntaxError{Message: fmt.Sprintf("unterminated string literal: %s", s)}
}

func scanWord(s string, i int) int {
	for i < len(s) && !isSpace(s[i]) && s[i] != '(' && s[i] != ')' {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
