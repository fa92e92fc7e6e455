package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"datalogbridge/internal/config"
	"datalogbridge/internal/engine"
	"datalogbridge/internal/importer"
	"datalogbridge/internal/journal"
	"datalogbridge/internal/logging"
	"datalogbridge/internal/session"
)

// app wires one engine to its executor, journal and importer.
type app struct {
	engine   *engine.Mangle
	exec     *session.Executor
	journal  *journal.Journal // nil when disabled
	importer *importer.Importer
}

// newApp builds the engine and, when the journal is enabled, replays it.
func newApp(ctx context.Context, cfg *config.Config, ws string, useJournal bool) (*app, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "newApp")
	defer timer.Stop()

	m := engine.NewMangle(engine.Config{FactLimit: cfg.Engine.FactLimit})
	a := &app{engine: m}

	var j session.Journal
	if useJournal && cfg.Journal.Enabled {
		jr, err := journal.Open(cfg.Journal.Driver, cfg.JournalPath(ws))
		if err != nil {
			return nil, err
		}
		a.journal = jr
		j = jr
	}

	a.exec = session.NewExecutor(m, j)
	a.importer = importer.New(a.exec, cfg.Import.Parallelism)

	if a.journal != nil {
		clauses, err := a.journal.Load(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		n, err := a.exec.Replay(ctx, clauses)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("journal %s: %w", a.journal.Path(), err)
		}
		if logger != nil {
			logger.Debug("Journal replayed", zap.String("path", a.journal.Path()), zap.Int("clauses", n))
		}
	}

	logging.Boot("engine ready (fact_limit=%d, journal=%t)", cfg.Engine.FactLimit, a.journal != nil)
	return a, nil
}

// Close releases the journal.
func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logging.BootWarn("failed to close journal: %v", err)
		}
	}
}

func openApp(ctx context.Context) (*app, error) {
	return newApp(ctx, cfg, workspace, !noJournal)
}
