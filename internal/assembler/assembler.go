// Package assembler translates IR literals and clauses into the engine's
// stack-protocol command sequence.
//
// Every sequence runs inside Facade.Exclusive. The first failing command
// aborts the sequence, the engine stack is reset, and neither assert nor
// retract is issued. Nothing is ever partially committed.
package assembler

import (
	"errors"
	"fmt"

	"datalogbridge/internal/engine"
	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Assembler drives an engine.Facade.
type Assembler struct {
	f engine.Facade

	// finalized counts literals finalized since the last clause boundary.
	finalized int
}

// New creates an assembler over f.
func New(f engine.Facade) *Assembler {
	return &Assembler{f: f}
}

// Facade returns the engine the assembler drives.
func (a *Assembler) Facade() engine.Facade { return a.f }

// Sequence runs fn as one exclusive command sequence. If fn fails the engine
// stack is reset before the lock is released.
func (a *Assembler) Sequence(fn func() error) error {
	return a.f.Exclusive(func() error {
		a.finalized = 0
		if err := fn(); err != nil {
			a.f.Reset()
			a.finalized = 0
			return err
		}
		return nil
	})
}

// BuildLiteral issues beginLiteral, pushPredicate, a pushTerm/bind pair per
// term and finalizeLiteral. It must be called inside Sequence.
func (a *Assembler) BuildLiteral(lit ir.Literal) error {
	if err := lit.Validate(); err != nil {
		return ir.NewSyntaxError(err, lit.String(), "invalid literal")
	}
	return a.buildLiteral(lit)
}

func (a *Assembler) buildLiteral(lit ir.Literal) error {
	if err := call(engine.CmdBeginLiteral, a.f.BeginLiteral); err != nil {
		return err
	}
	if err := call(engine.CmdPushPredicate, func() error { return a.f.PushPredicate(lit.Predicate) }); err != nil {
		return err
	}
	for _, term := range lit.Terms {
		if err := call(engine.CmdPushTerm, func() error { return a.f.PushTerm(term.Text) }); err != nil {
			return err
		}
		if term.IsVariable() {
			if err := call(engine.CmdBindVariable, a.f.BindVariable); err != nil {
				return err
			}
			continue
		}
		if err := call(engine.CmdBindConstant, a.f.BindConstant); err != nil {
			return err
		}
	}
	if err := call(engine.CmdFinalizeLiteral, a.f.FinalizeLiteral); err != nil {
		return err
	}
	a.finalized++
	logging.AssembleDebug("finalized literal %s", lit)
	return nil
}

// BuildClause builds the head, then each body literal in order, then issues
// finalizeClause with the body length. It must be called inside Sequence.
func (a *Assembler) BuildClause(c ir.Clause) error {
	if err := c.Validate(); err != nil {
		return ir.NewSyntaxError(err, c.String(), "invalid clause")
	}
	return a.buildClause(c)
}

func (a *Assembler) buildClause(c ir.Clause) error {
	a.finalized = 0
	if err := a.buildLiteral(c.Head); err != nil {
		return err
	}
	for _, lit := range c.Body {
		if err := a.buildLiteral(lit); err != nil {
			return err
		}
	}

	want := len(c.Body) + 1
	if a.finalized != want {
		err := fmt.Errorf("%w: finalized %d literals, clause needs %d", ir.ErrCountMismatch, a.finalized, want)
		return protocolError(engine.CmdFinalizeClause, err)
	}
	if err := call(engine.CmdFinalizeClause, func() error { return a.f.FinalizeClause(len(c.Body)) }); err != nil {
		return err
	}
	a.finalized = 0
	return nil
}

// Assert builds c and commits it with assert.
func (a *Assembler) Assert(c ir.Clause) error {
	err := a.commit(c, engine.CmdAssert, a.f.Assert)
	logging.ClauseAsserted(c.String(), err)
	return err
}

// Retract builds c and commits it with retract.
func (a *Assembler) Retract(c ir.Clause) error {
	err := a.commit(c, engine.CmdRetract, a.f.Retract)
	logging.ClauseRetracted(c.String(), err)
	return err
}

func (a *Assembler) commit(c ir.Clause, command string, fn func() error) error {
	// Invalid IR never reaches the engine, not even the lock.
	if err := c.Validate(); err != nil {
		return ir.NewSyntaxError(err, c.String(), "invalid clause")
	}
	return a.Sequence(func() error {
		if err := a.buildClause(c); err != nil {
			return err
		}
		return call(command, fn)
	})
}

// call runs one engine command and classifies its failure.
func call(command string, fn func() error) error {
	if err := fn(); err != nil {
		return protocolError(command, err)
	}
	return nil
}

// protocolError wraps an engine failure. Allocation errors keep their own
// type so callers can tell exhaustion from a protocol fault.
func protocolError(command string, err error) error {
	var alloc *ir.AllocationError
	if errors.As(err, &alloc) {
		logging.AssembleError("%s: %v", command, err)
		return err
	}
	logging.ProtocolError(command, err)
	logging.AssembleError("%s failed: %v", command, err)
	return &ir.EngineProtocolError{Command: command, Err: err}
}
