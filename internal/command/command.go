// Package command parses one line of the interactive command syntax into a
// Command.
//
// Grammar (whitespace is never significant):
//
//	literal ::= predicate [ '(' term (',' term)* ')' ]
//	term    ::= constant | variable      first letter lower-case / upper-case
//	clause  ::= literal [ (':' | '-') literal ('.' literal)* ] terminator
//	terminator ::= '.' | '?' | '~'
//
// The head/body separator is the first ':' or '-' on the line, so neither
// character may appear inside predicate or term text. "p(X):-q(X)." and
// "p(X):q(X)." are the same rule.
package command

import (
	"strings"

	"datalogbridge/internal/ir"
)

// Marker is the terminator the line ended with.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerQuery
	MarkerStatement
	MarkerRetraction
)

func (m Marker) String() string {
	switch m {
	case MarkerQuery:
		return "?"
	case MarkerStatement:
		return "."
	case MarkerRetraction:
		return "~"
	default:
		return ""
	}
}

// Kind is derived from the marker and from whether a body is present.
type Kind int

const (
	KindQuery Kind = iota
	KindFact
	KindRule
	KindRetraction
	KindExit
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindFact:
		return "fact"
	case KindRule:
		return "rule"
	case KindRetraction:
		return "retraction"
	case KindExit:
		return "exit"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Reserved control words.
const (
	ExitWord = "exit"
	HelpWord = "help"
)

// Command is one parsed line. Control commands (exit, help) carry no literal.
type Command struct {
	Kind   Kind
	Marker Marker
	Head   ir.Literal
	Body   []ir.Literal
	Input  string
}

// IsControl reports whether the command is exit or help.
func (c Command) IsControl() bool {
	return c.Kind == KindExit || c.Kind == KindHelp
}

// Clause returns the head and body as an IR clause.
func (c Command) Clause() ir.Clause {
	return ir.Clause{Head: c.Head, Body: c.Body}
}

// String renders the command back in command syntax.
func (c Command) String() string {
	switch c.Kind {
	case KindExit:
		return ExitWord
	case KindHelp:
		return HelpWord
	}
	var sb strings.Builder
	sb.WriteString(c.Head.String())
	if len(c.Body) > 0 {
		sb.WriteString(":-")
		for i, lit := range c.Body {
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(lit.String())
		}
	}
	sb.WriteString(c.Marker.String())
	return sb.String()
}

// HelpText documents the grammar for the interactive shell.
const HelpText = `# Commands

One command per line. Whitespace is ignored.

| Input | Meaning |
|-------|---------|
| ` + "`likes(mary,tom).`" + ` | assert a fact |
| ` + "`likes(X,Y):-friend(X,Y).knows(X,Y).`" + ` | assert a rule |
| ` + "`likes(mary,X)?`" + ` | query |
| ` + "`likes(mary,tom)~`" + ` | retract a fact |
| ` + "`likes(X,Y):-friend(X,Y)~`" + ` | retract a rule |
| ` + "`help`" + ` | show this text |
| ` + "`exit`" + ` | leave the shell |

Terms starting with an upper-case letter are variables, lower-case are constants.
The characters ` + "`:`" + ` and ` + "`-`" + ` separate head from body and cannot appear in names.
`
