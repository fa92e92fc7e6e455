package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalogbridge/internal/command"
	"datalogbridge/internal/engine"
	"datalogbridge/internal/ir"
	"datalogbridge/internal/journal"
)

func newExecutor(t *testing.T, j Journal) *Executor {
	t.Helper()
	return NewExecutor(engine.NewMangle(engine.DefaultConfig()), j)
}

func run(t *testing.T, e *Executor, line string) *Result {
	t.Helper()
	res, err := e.Process(context.Background(), line)
	require.NoError(t, err, "line %q", line)
	return res
}

func TestProcessRoutesByKind(t *testing.T) {
	e := newExecutor(t, nil)

	res := run(t, e, "likes(mary, tom).")
	assert.Equal(t, command.KindFact, res.Kind)
	assert.Nil(t, res.Answers)

	run(t, e, "likes(mary, ann).")
	run(t, e, "friend(X,Y) :- likes(X,Y).likes(Y,X).")
	run(t, e, "likes(ann, mary).")

	res = run(t, e, "likes(mary, X)?")
	assert.Equal(t, command.KindQuery, res.Kind)
	require.NotNil(t, res.Answers)
	assert.Equal(t, [][]string{{"mary", "ann"}, {"mary", "tom"}}, res.Answers.Sorted().Tuples)

	res = run(t, e, "friend(mary, Who)?")
	assert.Equal(t, [][]string{{"mary", "ann"}}, res.Answers.Tuples)

	res = run(t, e, "likes(mary, tom)~")
	assert.Equal(t, command.KindRetraction, res.Kind)
	res = run(t, e, "likes(mary, X)?")
	assert.Equal(t, [][]string{{"mary", "ann"}}, res.Answers.Tuples)
}

func TestControlCommands(t *testing.T) {
	e := newExecutor(t, nil)

	res := run(t, e, "  help ")
	assert.Equal(t, command.KindHelp, res.Kind)
	assert.Equal(t, command.HelpText, res.Message)

	res = run(t, e, "exit")
	assert.Equal(t, command.KindExit, res.Kind)
}

func TestErrorsKeepTheirType(t *testing.T) {
	e := newExecutor(t, nil)

	_, err := e.Process(context.Background(), "likes(mary,X)")
	var syn *ir.SyntaxError
	require.True(t, errors.As(err, &syn), "got %T", err)
	assert.ErrorIs(t, err, ir.ErrMissingTerminator)

	_, err = e.Process(context.Background(), "likes(mary,tom)~")
	var perr *ir.EngineProtocolError
	require.True(t, errors.As(err, &perr), "got %T", err)
	assert.ErrorIs(t, err, ir.ErrNotFound)

	history := e.GetHistory()
	require.Len(t, history, 2)
	assert.Error(t, history[0].Err)
	assert.Equal(t, command.KindRetraction, history[1].Kind)
}

func TestHistoryIsBounded(t *testing.T) {
	e := newExecutor(t, nil)
	e.SetConfig(ExecutorConfig{MaxHistory: 2})

	run(t, e, "p(a).")
	run(t, e, "p(b).")
	run(t, e, "p(c).")

	history := e.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "p(b).", history[0].Input)

	e.ClearHistory()
	assert.Empty(t, e.GetHistory())
}

func TestJournalAndReplay(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(journal.DriverPure, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	e := newExecutor(t, j)
	run(t, e, "parent(ann, bob).")
	run(t, e, "parent(bob, cid).")
	run(t, e, "grandparent(X,Z) :- parent(X,Y).parent(Y,Z).")
	run(t, e, "parent(bob, cid)~")

	// A failed assert is not journaled.
	_, err = e.Process(ctx, "bad(X).")
	require.Error(t, err)

	clauses, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.Equal(t, "parent(ann,bob).", clauses[0].String())
	assert.Equal(t, "grandparent(X,Z):-parent(X,Y).parent(Y,Z).", clauses[1].String())

	fresh := newExecutor(t, nil)
	n, err := fresh.Replay(ctx, clauses)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res := run(t, fresh, "parent(ann, X)?")
	assert.Equal(t, [][]string{{"ann", "bob"}}, res.Answers.Tuples)
}
