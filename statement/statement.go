// Package statement turns a SQL template with positional ? markers into
// executable statement text by substituting formatted literals.
//
// The scanner understands just enough SQL lexing to leave markers alone when
// they appear inside quoted strings, quoted identifiers and comments. It is
// not a parser: anything else is copied through untouched.
//
// Templates written for a plain text replace of every ? need care: a literal
// such as '?' is not a placeholder here, so
//
//	SELECT '?', ?
//
// takes one value, and supplying two is a *MismatchError rather than a
// substitution into the string.
package statement

import (
	"fmt"
	"strings"

	"github.com/tomyedwab/sqlbridge/value"
)

// Marker is the positional placeholder character.
const Marker = '?'

// MismatchError reports a template whose placeholder count differs from the
// number of values supplied.
type MismatchError struct {
	Placeholders int
	Values       int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("statement has %d placeholders but %d values were supplied", e.Placeholders, e.Values)
}

// Materialize replaces each placeholder in tmpl, left to right, with the
// literal for the value at the same position. Substituted text is never
// rescanned, so a value containing '?' cannot shift later values.
func Materialize(tmpl string, values []value.Value) (string, error) {
	if n := Count(tmpl); n != len(values) {
		return "", &MismatchError{Placeholders: n, Values: len(values)}
	}
	if len(values) == 0 {
		return tmpl, nil
	}

	var sb strings.Builder
	sb.Grow(len(tmpl) + 16*len(values))
	next := 0
	last := 0
	scan(tmpl, func(pos int) {
		sb.WriteString(tmpl[last:pos])
		sb.WriteString(value.Literal(values[next]))
		next++
		last = pos + 1
	})
	sb.WriteString(tmpl[last:])
	return sb.String(), nil
}

// Count returns the number of placeholders in tmpl.
func Count(tmpl string) int {
	n := 0
	scan(tmpl, func(int) { n++ })
	return n
}

// scan calls fn with the byte offset of every placeholder in tmpl that is
// outside quotes and comments.
func scan(tmpl string, fn func(pos int)) {
	for i := 0; i < len(tmpl); i++ {
		switch c := tmpl[i]; c {
		case Marker:
			fn(i)
		case '\'', '"', '`':
			i = skipQuoted(tmpl, i, c)
		case '-':
			if i+1 < len(tmpl) && tmpl[i+1] == '-' {
				i = skipLine(tmpl, i)
			}
		case '/':
			if i+1 < len(tmpl) && tmpl[i+1] == '*' {
				i = skipBlock(tmpl, i)
			}
		}
	}
}

// skipQuoted returns the offset of the closing quote that matches the one
// at start. A doubled quote is an escaped quote. An unterminated run
// extends to the end of the template.
func skipQuoted(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return len(s) - 1
}

func skipLine(s string, start int) int {
	if j := strings.IndexByte(s[start:], '\n'); j >= 0 {
		return start + j
	}
	return len(s) - 1
}

func skipBlock(s string, start int) int {
	if j := strings.Index(s[start+2:], "*/"); j >= 0 {
		return start + 2 + j + 1
	}
	return len(s) - 1
}
