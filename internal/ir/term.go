// Package ir holds the intermediate representation shared by every front end:
// terms, literals, clauses and the answer sets produced by queries.
//
// All three surface syntaxes (command lines, markup documents, object-notation
// documents) decode into these values, and only these values are handed to the
// stack-protocol assembler. Values are plain single-owner trees; nothing here
// talks to the engine.
package ir

import (
	"fmt"
	"strings"
)

// Kind tells a constant term from a variable term.
type Kind uint8

const (
	Constant Kind = iota
	Variable
)

// String returns the lower-case kind name, which is also the tag used by the
// markup format and the JSON encoding.
func (k Kind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Variable:
		return "variable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Constant, Variable:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown term kind %d", uint8(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKind maps a kind name ("constant", "variable") to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "constant":
		return Constant, nil
	case "variable":
		return Variable, nil
	default:
		return 0, fmt.Errorf("unknown term kind %q", name)
	}
}

// Term is a single argument of a literal.
type Term struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// NewTerm builds a term, rejecting empty text.
func NewTerm(text string, kind Kind) (Term, error) {
	if text == "" {
		return Term{}, ErrEmptyText
	}
	if kind != Constant && kind != Variable {
		return Term{}, fmt.Errorf("unknown term kind %d", uint8(kind))
	}
	return Term{Text: text, Kind: kind}, nil
}

// Const and Var are shorthands for well-formed terms. They panic on empty text
// and are meant for literals written out in code.
func Const(text string) Term { return mustTerm(text, Constant) }

func Var(text string) Term { return mustTerm(text, Variable) }

func mustTerm(text string, kind Kind) Term {
	t, err := NewTerm(text, kind)
	if err != nil {
		panic(err)
	}
	return t
}

// IsVariable reports whether the term is an unbound slot.
func (t Term) IsVariable() bool { return t.Kind == Variable }

// Validate reports ErrEmptyText for a term without text.
func (t Term) Validate() error {
	if t.Text == "" {
		return ErrEmptyText
	}
	return nil
}

func (t Term) String() string { return t.Text }
