package ir

import "fmt"

// RawTerm is a term as read from a structured document, before validation.
type RawTerm struct {
	Text string
	Kind Kind
}

// LiteralSource is the per-format half of literal decoding. The markup and
// object-notation front ends each implement it once; DecodeLiteral does the rest.
type LiteralSource interface {
	// ReadPredicate returns the predicate text and whether it was present.
	ReadPredicate() (string, bool)
	// ReadTerms returns the terms in document order. A missing terms section
	// is an empty result, not an error.
	ReadTerms() ([]RawTerm, error)
}

// DecodeLiteral reconstructs a validated literal from a LiteralSource.
// A missing or empty predicate yields ErrMissingPredicate.
func DecodeLiteral(src LiteralSource) (Literal, error) {
	predicate, ok := src.ReadPredicate()
	if !ok || predicate == "" {
		return Literal{}, ErrMissingPredicate
	}
	raw, err := src.ReadTerms()
	if err != nil {
		return Literal{}, err
	}
	terms := make([]Term, 0, len(raw))
	for i, r := range raw {
		t, err := NewTerm(r.Text, r.Kind)
		if err != nil {
			return Literal{}, fmt.Errorf("term %d of %s: %w", i, predicate, err)
		}
		terms = append(terms, t)
	}
	return NewLiteral(predicate, terms...)
}
