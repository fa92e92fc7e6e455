package engine

import (
	"errors"
	"testing"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalogbridge/internal/ir"
)

func buildAtom(t *testing.T, s *stack, pred string, terms ...ir.Term) {
	t.Helper()
	require.NoError(t, s.beginLiteral())
	require.NoError(t, s.pushPredicate(pred))
	for _, term := range terms {
		require.NoError(t, s.pushTerm(term.Text))
		require.NoError(t, s.bind(term.Kind))
	}
	require.NoError(t, s.finalizeLiteral())
}

func TestStackBuildsClause(t *testing.T) {
	var s stack
	buildAtom(t, &s, "p", ir.Var("X"))
	buildAtom(t, &s, "q", ir.Var("X"), ir.Const("a"))
	require.NoError(t, s.finalizeClause(1))

	clause, err := s.takeClause()
	require.NoError(t, err)
	assert.Equal(t, "p", displayName(clause.Head.Predicate))
	assert.Equal(t, 1, clause.Head.Predicate.Arity)
	require.Len(t, clause.Premises, 1)

	body := clause.Premises[0].(ast.Atom)
	assert.Equal(t, ast.Variable{Symbol: "X"}, body.Args[0])
	assert.Equal(t, ast.String("a"), body.Args[1])
	assert.Equal(t, 0, s.len())
}

func TestStackCountMismatch(t *testing.T) {
	tests := []struct {
		name      string
		literals  int
		bodyCount int
	}{
		{"too few declared", 3, 1},
		{"too many declared", 1, 1},
		{"negative", 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s stack
			for i := 0; i < tt.literals; i++ {
				buildAtom(t, &s, "p")
			}
			err := s.finalizeClause(tt.bodyCount)
			assert.True(t, errors.Is(err, ir.ErrCountMismatch), "got %v", err)
		})
	}
}

func TestStackOrderErrors(t *testing.T) {
	t.Run("predicate without literal", func(t *testing.T) {
		var s stack
		assert.ErrorIs(t, s.pushPredicate("p"), ir.ErrStackUnderflow)
	})
	t.Run("term before predicate", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		assert.ErrorIs(t, s.pushTerm("a"), ir.ErrStackState)
	})
	t.Run("predicate twice", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		require.NoError(t, s.pushPredicate("p"))
		assert.ErrorIs(t, s.pushPredicate("q"), ir.ErrStackState)
	})
	t.Run("bind without term", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		require.NoError(t, s.pushPredicate("p"))
		assert.ErrorIs(t, s.bind(ir.Constant), ir.ErrStackUnderflow)
	})
	t.Run("two unbound terms", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		require.NoError(t, s.pushPredicate("p"))
		require.NoError(t, s.pushTerm("a"))
		assert.ErrorIs(t, s.pushTerm("b"), ir.ErrStackState)
	})
	t.Run("finalize with pending term", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		require.NoError(t, s.pushPredicate("p"))
		require.NoError(t, s.pushTerm("a"))
		assert.ErrorIs(t, s.finalizeLiteral(), ir.ErrStackState)
	})
	t.Run("nested begin", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		assert.ErrorIs(t, s.beginLiteral(), ir.ErrStackState)
	})
	t.Run("empty predicate", func(t *testing.T) {
		var s stack
		require.NoError(t, s.beginLiteral())
		assert.ErrorIs(t, s.pushPredicate(""), ir.ErrEmptyPredicate)
	})
	t.Run("take from empty stack", func(t *testing.T) {
		var s stack
		_, err := s.takeClause()
		assert.ErrorIs(t, err, ir.ErrStackUnderflow)
		_, err = s.takeAtom()
		assert.ErrorIs(t, err, ir.ErrStackUnderflow)
	})
	t.Run("take clause from literal", func(t *testing.T) {
		var s stack
		buildAtom(t, &s, "p")
		_, err := s.takeClause()
		assert.ErrorIs(t, err, ir.ErrStackState)
	})
}

func TestStackZeroArity(t *testing.T) {
	var s stack
	buildAtom(t, &s, "ready")
	atom, err := s.takeAtom()
	require.NoError(t, err)
	assert.Equal(t, ast.PredicateSym{Symbol: engineSymbol("ready", 0), Arity: 0}, atom.Predicate)
	assert.Equal(t, "ready", displayName(atom.Predicate))
	assert.Empty(t, atom.Args)
}

func TestEngineSymbolKeepsAritiesApart(t *testing.T) {
	tests := []struct {
		name  string
		arity int
	}{
		{"p", 1},
		{"p", 2},
		{"p__2", 0},
		{"p_", 12},
	}
	seen := make(map[string]bool)
	for _, tt := range tests {
		sym := ast.PredicateSym{Symbol: engineSymbol(tt.name, tt.arity), Arity: tt.arity}
		assert.False(t, seen[sym.Symbol], "symbol %s reused", sym.Symbol)
		seen[sym.Symbol] = true
		assert.Equal(t, tt.name, displayName(sym))
	}
}
