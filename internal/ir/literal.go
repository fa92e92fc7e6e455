package ir

import (
	"fmt"
	"strings"
)

// Literal is a predicate applied to an ordered list of terms.
// Two literals with the same predicate and different arity are distinct.
type Literal struct {
	Predicate string `json:"predicate"`
	Terms     []Term `json:"terms"`
}

// NewLiteral validates and builds a literal. The terms slice is copied.
func NewLiteral(predicate string, terms ...Term) (Literal, error) {
	if predicate == "" {
		return Literal{}, ErrEmptyPredicate
	}
	owned := make([]Term, len(terms))
	for i, t := range terms {
		if err := t.Validate(); err != nil {
			return Literal{}, fmt.Errorf("term %d of %s: %w", i, predicate, err)
		}
		owned[i] = t
	}
	return Literal{Predicate: predicate, Terms: owned}, nil
}

// MustLiteral is NewLiteral for literals written out in code.
func MustLiteral(predicate string, terms ...Term) Literal {
	lit, err := NewLiteral(predicate, terms...)
	if err != nil {
		panic(err)
	}
	return lit
}

// Arity is the number of terms.
func (l Literal) Arity() int { return len(l.Terms) }

// With returns a copy of l extended by t. l itself is left untouched.
func (l Literal) With(t Term) Literal {
	terms := make([]Term, len(l.Terms), len(l.Terms)+1)
	copy(terms, l.Terms)
	return Literal{Predicate: l.Predicate, Terms: append(terms, t)}
}

// Variables returns the distinct variable names in first-occurrence order.
func (l Literal) Variables() []string {
	var names []string
	seen := make(map[string]bool)
	for _, t := range l.Terms {
		if t.IsVariable() && !seen[t.Text] {
			seen[t.Text] = true
			names = append(names, t.Text)
		}
	}
	return names
}

// Validate checks the predicate and every term.
func (l Literal) Validate() error {
	if l.Predicate == "" {
		return ErrEmptyPredicate
	}
	for i, t := range l.Terms {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("term %d of %s: %w", i, l.Predicate, err)
		}
	}
	return nil
}

// String renders the literal as pred(t1,t2). A zero-arity literal renders as
// the bare predicate.
func (l Literal) String() string {
	if len(l.Terms) == 0 {
		return l.Predicate
	}
	var sb strings.Builder
	sb.WriteString(l.Predicate)
	sb.WriteByte('(')
	for i, t := range l.Terms {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.Text)
	}
	sb.WriteByte(')')
	return sb.String()
}

// Clause is a head literal with an optional body. An empty body makes it a
// fact, a non-empty body a rule.
type Clause struct {
	Head Literal   `json:"head"`
	Body []Literal `json:"body,omitempty"`
}

// NewClause validates and builds a clause. The body slice is copied.
func NewClause(head Literal, body ...Literal) (Clause, error) {
	c := Clause{Head: head}
	if len(body) > 0 {
		c.Body = append([]Literal(nil), body...)
	}
	if err := c.Validate(); err != nil {
		return Clause{}, err
	}
	return c, nil
}

// IsFact reports whether the clause has no body.
func (c Clause) IsFact() bool { return len(c.Body) == 0 }

// Label returns "Fact" or "Rule". It is only used for reporting.
func (c Clause) Label() string {
	if c.IsFact() {
		return "Fact"
	}
	return "Rule"
}

// Validate checks the head and every body literal.
func (c Clause) Validate() error {
	if err := c.Head.Validate(); err != nil {
		return fmt.Errorf("head: %w", err)
	}
	for i, lit := range c.Body {
		if err := lit.Validate(); err != nil {
			return fmt.Errorf("body literal %d: %w", i, err)
		}
	}
	return nil
}

// String renders the clause in command syntax: head. or head:-b1.b2.
func (c Clause) String() string {
	if c.IsFact() {
		return c.Head.String() + "."
	}
	parts := make([]string, len(c.Body))
	for i, lit := range c.Body {
		parts[i] = lit.String()
	}
	return c.Head.String() + ":-" + strings.Join(parts, ".") + "."
}
