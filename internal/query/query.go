// Package query answers a single literal against the engine.
package query

import (
	"fmt"
	"time"

	"datalogbridge/internal/assembler"
	"datalogbridge/internal/command"
	"datalogbridge/internal/engine"
	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Engine runs asks through an assembler.
type Engine struct {
	asm *assembler.Assembler
	f   engine.Facade
}

// New creates a query engine. f must be the facade asm drives.
func New(asm *assembler.Assembler, f engine.Facade) *Engine {
	return &Engine{asm: asm, f: f}
}

// Ask builds lit, issues ask and collects every row. Zero rows is a valid
// answer; a row whose width differs from the literal's arity is a protocol
// error.
func (e *Engine) Ask(lit ir.Literal) (*ir.AnswerSet, error) {
	if err := lit.Validate(); err != nil {
		return nil, ir.NewSyntaxError(err, lit.String(), "invalid query literal")
	}

	start := time.Now()
	answers := &ir.AnswerSet{Predicate: lit.Predicate, Arity: lit.Arity(), Tuples: [][]string{}}

	err := e.asm.Sequence(func() error {
		if err := e.asm.BuildLiteral(lit); err != nil {
			return err
		}
		rows, err := e.f.Ask()
		if err != nil {
			return wrapAsk(err)
		}
		for row := rows.Next(); row != nil; row = rows.Next() {
			if len(row) != answers.Arity {
				return &ir.EngineProtocolError{
					Command: engine.CmdAsk,
					Err:     fmt.Errorf("row %d has %d values, %s has arity %d", answers.Len(), len(row), lit.Predicate, answers.Arity),
				}
			}
			answers.Tuples = append(answers.Tuples, append([]string(nil), row...))
		}
		return nil
	})
	if err != nil {
		logging.Get(logging.CategoryQuery).Error("ask %s failed: %v", lit, err)
		return nil, err
	}

	elapsed := time.Since(start)
	logging.QueryDebug("ask %s: %d rows in %v", lit, answers.Len(), elapsed)
	logging.QueryAnswered(lit.String(), answers.Len(), elapsed)
	return answers, nil
}

func wrapAsk(err error) error {
	if ir.IsAllocation(err) {
		return err
	}
	logging.ProtocolError(engine.CmdAsk, err)
	return &ir.EngineProtocolError{Command: engine.CmdAsk, Err: err}
}

// AskLine parses a command line that must be a query and answers it.
func (e *Engine) AskLine(line string) (*ir.AnswerSet, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		return nil, err
	}
	if cmd.Kind != command.KindQuery {
		return nil, ir.NewSyntaxError(ir.ErrNotAQuery, line, "expected a query ending in ?, got a %s", cmd.Kind)
	}
	return e.Ask(cmd.Head)
}
