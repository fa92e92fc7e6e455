package ir

import (
	"fmt"
	"slices"
	"strings"
)

// AnswerSet holds the rows an ask produced for one query literal.
// Every tuple has exactly Arity entries. An empty Tuples is a valid answer.
type AnswerSet struct {
	Predicate string     `json:"predicate"`
	Arity     int        `json:"arity"`
	Tuples    [][]string `json:"tuples"`
}

// Validate checks that every tuple matches the arity.
func (a *AnswerSet) Validate() error {
	if a.Predicate == "" {
		return ErrEmptyPredicate
	}
	for i, tuple := range a.Tuples {
		if len(tuple) != a.Arity {
			return fmt.Errorf("tuple %d has %d values, want %d", i, len(tuple), a.Arity)
		}
	}
	return nil
}

// Len returns the number of tuples.
func (a *AnswerSet) Len() int { return len(a.Tuples) }

// Format renders each tuple as predicate(v1,v2,...).
func (a *AnswerSet) Format() []string {
	lines := make([]string, 0, len(a.Tuples))
	for _, tuple := range a.Tuples {
		if len(tuple) == 0 {
			lines = append(lines, a.Predicate)
			continue
		}
		lines = append(lines, a.Predicate+"("+strings.Join(tuple, ",")+")")
	}
	return lines
}

// Sorted returns a copy with tuples in lexicographic order.
func (a *AnswerSet) Sorted() *AnswerSet {
	out := &AnswerSet{Predicate: a.Predicate, Arity: a.Arity, Tuples: make([][]string, len(a.Tuples))}
	for i, tuple := range a.Tuples {
		out.Tuples[i] = slices.Clone(tuple)
	}
	slices.SortFunc(out.Tuples, func(x, y []string) int { return slices.Compare(x, y) })
	return out
}
