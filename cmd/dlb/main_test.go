package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalogbridge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.Journal.Driver = config.DriverPure
	c.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	require.NoError(t, c.Validate())
	return c
}

func TestReplSession(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), t.TempDir(), false)
	require.NoError(t, err)
	defer a.Close()

	in := strings.NewReader(strings.Join([]string{
		"likes(mary, tom).",
		"likes(mary, ann).",
		"",
		"likes(mary, X)?",
		"likes(mary, X)",
		"exit",
		"likes(never, reached).",
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, repl(ctx, a.exec, in, &out, false))

	text := out.String()
	assert.Contains(t, text, "likes(mary,ann)\n")
	assert.Contains(t, text, "likes(mary,tom)\n")
	assert.Contains(t, text, "2 answer(s)")
	assert.Contains(t, text, "syntax error")
	assert.Contains(t, text, "missing terminator")
	assert.Equal(t, 2, a.engine.Stats().TotalFacts)
}

func TestJournalSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	ws := t.TempDir()

	a, err := newApp(ctx, c, ws, true)
	require.NoError(t, err)
	var out bytes.Buffer
	in := strings.NewReader("parent(ann,bob).\nancestor(X,Y):-parent(X,Y).\n")
	require.NoError(t, repl(ctx, a.exec, in, &out, false))
	a.Close()

	b, err := newApp(ctx, c, ws, true)
	require.NoError(t, err)
	defer b.Close()

	stats := b.engine.Stats()
	assert.Equal(t, 1, stats.TotalFacts)
	assert.Equal(t, []string{"ancestor(X,Y):-parent(X,Y)."}, stats.Rules)

	out.Reset()
	require.NoError(t, repl(ctx, b.exec, strings.NewReader("ancestor(ann,Y)?\n"), &out, false))
	assert.Contains(t, out.String(), "ancestor(ann,bob)")
}

func TestImportReports(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), t.TempDir(), false)
	require.NoError(t, err)
	defer a.Close()

	reports, err := a.importer.Import(ctx, "../../internal/markup/testdata/thermostat.xml")
	require.NoError(t, err)

	var out bytes.Buffer
	printReports(&out, reports, false)
	assert.Contains(t, out.String(), "3 clause(s), 3 asserted")
	assert.Contains(t, out.String(), "hall-thermostat")

	out.Reset()
	printStats(&out, a.engine.Stats(), -1)
	assert.Contains(t, out.String(), "owner/2")
	assert.Contains(t, out.String(), "can_adjust(P,D):-owner(P,D).")
}

func TestErrorLabel(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), t.TempDir(), false)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.exec.Process(ctx, "gone(x)~")
	require.Error(t, err)
	assert.Equal(t, "engine error", errorLabel(err))
}
