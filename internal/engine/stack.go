package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/mangle/ast"

	"datalogbridge/internal/ir"
)

// arityMark joins a predicate name to its arity in the symbol handed to
// Mangle. Mangle declares predicates by name, so p/1 and p/2 would otherwise
// be one predicate with conflicting arities.
const arityMark = "__"

// engineSymbol returns the Mangle symbol for name/arity.
func engineSymbol(name string, arity int) string {
	return name + arityMark + strconv.Itoa(arity)
}

// displayName recovers the predicate name from a Mangle symbol.
func displayName(sym ast.PredicateSym) string {
	return strings.TrimSuffix(sym.Symbol, arityMark+strconv.Itoa(sym.Arity))
}

type frameKind int

const (
	frameOpen   frameKind = iota // literal under construction
	frameAtom                    // finalized literal
	frameClause                  // finalized clause
)

func (k frameKind) String() string {
	switch k {
	case frameOpen:
		return "open literal"
	case frameAtom:
		return "literal"
	case frameClause:
		return "clause"
	default:
		return "unknown"
	}
}

// frame is one stack slot. Only the fields for its kind are set.
type frame struct {
	kind frameKind

	// frameOpen
	predicate  string
	hasPred    bool
	args       []ast.BaseTerm
	pending    string
	hasPending bool

	// frameAtom
	atom ast.Atom

	// frameClause
	clause ast.Clause
}

// stack is the engine's implicit construction stack.
type stack struct {
	frames []*frame
}

func (s *stack) len() int { return len(s.frames) }

func (s *stack) push(f *frame) { s.frames = append(s.frames, f) }

func (s *stack) reset() { s.frames = s.frames[:0] }

func (s *stack) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// open returns the literal under construction.
func (s *stack) open() (*frame, error) {
	f := s.top()
	if f == nil {
		return nil, fmt.Errorf("%w: no literal has been begun", ir.ErrStackUnderflow)
	}
	if f.kind != frameOpen {
		return nil, fmt.Errorf("%w: top of stack is a %s, not an open literal", ir.ErrStackState, f.kind)
	}
	return f, nil
}

func (s *stack) beginLiteral() error {
	if f := s.top(); f != nil && f.kind == frameOpen {
		return fmt.Errorf("%w: literal %q is still open", ir.ErrStackState, f.predicate)
	}
	s.push(&frame{kind: frameOpen})
	return nil
}

func (s *stack) pushPredicate(symbol string) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	if f.hasPred {
		return fmt.Errorf("%w: predicate already bound to %q", ir.ErrStackState, f.predicate)
	}
	if symbol == "" {
		return ir.ErrEmptyPredicate
	}
	f.predicate, f.hasPred = symbol, true
	return nil
}

func (s *stack) pushTerm(text string) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	if !f.hasPred {
		return fmt.Errorf("%w: term pushed before the predicate", ir.ErrStackState)
	}
	if f.hasPending {
		return fmt.Errorf("%w: term %q has not been bound", ir.ErrStackState, f.pending)
	}
	if text == "" {
		return ir.ErrEmptyText
	}
	f.pending, f.hasPending = text, true
	return nil
}

func (s *stack) bind(kind ir.Kind) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	if !f.hasPending {
		return fmt.Errorf("%w: no term to bind as %s", ir.ErrStackUnderflow, kind)
	}
	if kind == ir.Variable {
		f.args = append(f.args, ast.Variable{Symbol: f.pending})
	} else {
		f.args = append(f.args, ast.String(f.pending))
	}
	f.pending, f.hasPending = "", false
	return nil
}

func (s *stack) finalizeLiteral() error {
	f, err := s.open()
	if err != nil {
		return err
	}
	if !f.hasPred {
		return fmt.Errorf("%w: literal has no predicate", ir.ErrStackState)
	}
	if f.hasPending {
		return fmt.Errorf("%w: term %q has not been bound", ir.ErrStackState, f.pending)
	}
	sym := ast.PredicateSym{Symbol: engineSymbol(f.predicate, len(f.args)), Arity: len(f.args)}
	*f = frame{kind: frameAtom, atom: ast.Atom{Predicate: sym, Args: f.args}}
	return nil
}

// finalizeClause collapses exactly bodyCount+1 literals, which must be the
// whole stack, into one clause.
func (s *stack) finalizeClause(bodyCount int) error {
	if bodyCount < 0 {
		return fmt.Errorf("%w: negative body count %d", ir.ErrCountMismatch, bodyCount)
	}
	want := bodyCount + 1
	if len(s.frames) != want {
		return fmt.Errorf("%w: declared %d body literals, stack holds %d entries", ir.ErrCountMismatch, bodyCount, len(s.frames))
	}
	for i, f := range s.frames {
		if f.kind != frameAtom {
			return fmt.Errorf("%w: stack entry %d is a %s", ir.ErrCountMismatch, i, f.kind)
		}
	}

	clause := ast.Clause{Head: s.frames[0].atom}
	for _, f := range s.frames[1:] {
		clause.Premises = append(clause.Premises, f.atom)
	}
	s.frames = append(s.frames[:0], &frame{kind: frameClause, clause: clause})
	return nil
}

// takeClause pops the finalized clause consumed by assert or retract.
func (s *stack) takeClause() (ast.Clause, error) {
	f := s.top()
	if f == nil {
		return ast.Clause{}, fmt.Errorf("%w: nothing to commit", ir.ErrStackUnderflow)
	}
	if f.kind != frameClause || len(s.frames) != 1 {
		return ast.Clause{}, fmt.Errorf("%w: expected one finalized clause, top is a %s of %d entries", ir.ErrStackState, f.kind, len(s.frames))
	}
	s.reset()
	return f.clause, nil
}

// takeAtom pops the finalized query literal consumed by ask.
func (s *stack) takeAtom() (ast.Atom, error) {
	f := s.top()
	if f == nil {
		return ast.Atom{}, fmt.Errorf("%w: nothing to ask", ir.ErrStackUnderflow)
	}
	if f.kind != frameAtom || len(s.frames) != 1 {
		return ast.Atom{}, fmt.Errorf("%w: expected one finalized literal, top is a %s of %d entries", ir.ErrStackState, f.kind, len(s.frames))
	}
	s.reset()
	return f.atom, nil
}
