// Package session routes command lines to the engine.
//
// A line is parsed by the command normalizer, then:
//
//	exit, help  → control result, engine untouched
//	query       → query engine
//	fact, rule  → assert
//	retraction  → retract
//
// Successful mutations are recorded in the journal when one is attached.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datalogbridge/internal/assembler"
	"datalogbridge/internal/command"
	"datalogbridge/internal/engine"
	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
	"datalogbridge/internal/query"
)

// Journal receives every committed mutation. *journal.Journal implements it.
type Journal interface {
	Record(ctx context.Context, c ir.Clause) (bool, error)
	Forget(ctx context.Context, c ir.Clause) (bool, error)
}

// Executor executes command lines against one engine.
type Executor struct {
	mu sync.Mutex

	asm     *assembler.Assembler
	queries *query.Engine
	journal Journal

	history []Turn
	config  ExecutorConfig
}

// ExecutorConfig holds executor settings.
type ExecutorConfig struct {
	// MaxHistory bounds the remembered turns.
	MaxHistory int
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxHistory: 50}
}

// Turn is one processed line.
type Turn struct {
	Input string
	Kind  command.Kind
	Err   error
}

// Result is the outcome of one line.
type Result struct {
	Kind     command.Kind
	Command  command.Command
	Answers  *ir.AnswerSet // set for queries
	Message  string
	Duration time.Duration
}

// NewExecutor creates an executor over f. j may be nil.
func NewExecutor(f engine.Facade, j Journal) *Executor {
	logging.Session("Creating new Executor (journal=%t)", j != nil)
	asm := assembler.New(f)
	return &Executor{
		asm:     asm,
		queries: query.New(asm, f),
		journal: j,
		config:  DefaultExecutorConfig(),
	}
}

// SetConfig updates the executor configuration.
func (e *Executor) SetConfig(cfg ExecutorConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = cfg
}

// Assembler returns the assembler the executor drives.
func (e *Executor) Assembler() *assembler.Assembler { return e.asm }

// Process parses and executes one line. Errors are returned unchanged so
// callers can classify them with errors.As.
func (e *Executor) Process(ctx context.Context, line string) (*Result, error) {
	start := time.Now()

	cmd, err := command.Parse(line)
	if err != nil {
		logging.SessionDebug("rejected line %q: %v", line, err)
		e.appendToHistory(Turn{Input: line, Err: err})
		return nil, err
	}

	result := &Result{Kind: cmd.Kind, Command: cmd}
	switch cmd.Kind {
	case command.KindExit:
		result.Message = "bye"
	case command.KindHelp:
		result.Message = command.HelpText
	case command.KindQuery:
		result.Answers, err = e.queries.Ask(cmd.Head)
		if err == nil {
			result.Message = fmt.Sprintf("%d answer(s)", result.Answers.Len())
		}
	case command.KindFact, command.KindRule:
		err = e.Apply(ctx, cmd.Clause())
		if err == nil {
			result.Message = fmt.Sprintf("asserted %s", cmd.Clause())
		}
	case command.KindRetraction:
		err = e.Remove(ctx, cmd.Clause())
		if err == nil {
			result.Message = fmt.Sprintf("retracted %s", cmd.Clause())
		}
	default:
		err = fmt.Errorf("unhandled command kind %s", cmd.Kind)
	}

	e.appendToHistory(Turn{Input: line, Kind: cmd.Kind, Err: err})
	if err != nil {
		logging.Get(logging.CategorySession).Warn("%s %q failed: %v", cmd.Kind, line, err)
		return nil, err
	}

	result.Duration = time.Since(start)
	logging.SessionDebug("%s %s in %v", cmd.Kind, cmd, result.Duration)
	return result, nil
}

// Apply asserts c and journals it.
func (e *Executor) Apply(ctx context.Context, c ir.Clause) error {
	if err := e.asm.Assert(c); err != nil {
		return err
	}
	if e.journal != nil {
		if _, err := e.journal.Record(ctx, c); err != nil {
			// The engine already holds the clause; only persistence is lost.
			logging.JournalWarn("failed to journal %s: %v", c, err)
		}
	}
	return nil
}

// Remove retracts c and drops it from the journal.
func (e *Executor) Remove(ctx context.Context, c ir.Clause) error {
	if err := e.asm.Retract(c); err != nil {
		return err
	}
	if e.journal != nil {
		if _, err := e.journal.Forget(ctx, c); err != nil {
			logging.JournalWarn("failed to forget %s: %v", c, err)
		}
	}
	return nil
}

// Replay asserts previously journaled clauses without journaling them again.
// It stops at the first failure and reports how many were applied.
func (e *Executor) Replay(ctx context.Context, clauses []ir.Clause) (int, error) {
	timer := logging.StartTimer(logging.CategorySession, "Replay")
	defer timer.Stop()

	for i, c := range clauses {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := e.asm.Assert(c); err != nil {
			return i, fmt.Errorf("replay clause %d (%s): %w", i, c, err)
		}
	}
	logging.Session("Replayed %d journaled clauses", len(clauses))
	return len(clauses), nil
}

// appendToHistory adds a turn, dropping the oldest beyond MaxHistory.
func (e *Executor) appendToHistory(t Turn) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, t)
	if limit := e.config.MaxHistory; limit > 0 && len(e.history) > limit {
		e.history = e.history[len(e.history)-limit:]
	}
}

// ClearHistory clears the turn history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// GetHistory returns a copy of the turn history.
func (e *Executor) GetHistory() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]Turn, len(e.history))
	copy(history, e.history)
	return history
}
