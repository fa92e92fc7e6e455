// Package enginetest provides a recording engine.Facade for tests.
package enginetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"datalogbridge/internal/engine"
	"datalogbridge/internal/ir"
)

// ErrInjected is returned by the command selected with FailAt.
var ErrInjected = errors.New("injected failure")

// Call is one recorded command.
type Call struct {
	Command string
	Arg     string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Command
	}
	return c.Command + " " + c.Arg
}

// Recorder records every command and checks the stack protocol with a
// counting model: it tracks open literals, finalized literals and pending
// terms but does not store facts. Ask answers come from Answers.
type Recorder struct {
	mu sync.Mutex

	calls    []Call
	failAt   int // 1-based command index, 0 = never
	resets   int
	inLock   bool
	unlocked []string // commands issued outside Exclusive

	open     bool
	hasPred  bool
	pending  bool
	literals int
	clauses  int

	// Answers maps a predicate to the rows Ask returns for it.
	Answers  map[string][][]string
	lastPred string

	// Committed records finalized clauses as "assert" or "retract".
	Committed []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Answers: make(map[string][][]string)}
}

var _ engine.Facade = (*Recorder)(nil)

// FailAt makes the n-th command (1-based, counted from now on) fail with
// ErrInjected.
func (r *Recorder) FailAt(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt = len(r.calls) + n
}

// Calls returns a copy of the recorded trace.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Trace renders the recorded commands one per line.
func (r *Recorder) Trace() string {
	var sb strings.Builder
	for _, c := range r.Calls() {
		sb.WriteString(c.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Count returns how many times command was issued.
func (r *Recorder) Count(command string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Command == command {
			n++
		}
	}
	return n
}

// Resets returns how many times Reset was called.
func (r *Recorder) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

// Unlocked returns the commands that were issued outside Exclusive.
func (r *Recorder) Unlocked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.unlocked...)
}

// Clear forgets the trace and the protocol state.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.failAt = 0
	r.resets = 0
	r.unlocked = nil
	r.Committed = nil
	r.resetLocked()
}

func (r *Recorder) resetLocked() {
	r.open, r.hasPred, r.pending = false, false, false
	r.literals, r.clauses = 0, 0
}

// record appends the call and reports an injected failure.
func (r *Recorder) record(command, arg string) error {
	r.calls = append(r.calls, Call{Command: command, Arg: arg})
	if !r.inLock {
		r.unlocked = append(r.unlocked, command)
	}
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return ErrInjected
	}
	return nil
}

// Exclusive implements engine.Facade.
func (r *Recorder) Exclusive(fn func() error) error {
	r.mu.Lock()
	if r.inLock {
		r.mu.Unlock()
		return fmt.Errorf("%w: nested Exclusive", ir.ErrStackState)
	}
	r.inLock = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inLock = false
		r.mu.Unlock()
	}()
	return fn()
}

// Reset implements engine.Facade.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.resetLocked()
}

// BeginLiteral implements engine.Facade.
func (r *Recorder) BeginLiteral() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdBeginLiteral, ""); err != nil {
		return err
	}
	if r.open {
		return fmt.Errorf("%w: literal already open", ir.ErrStackState)
	}
	r.open, r.hasPred, r.pending = true, false, false
	return nil
}

// PushPredicate implements engine.Facade.
func (r *Recorder) PushPredicate(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdPushPredicate, symbol); err != nil {
		return err
	}
	if !r.open || r.hasPred {
		return fmt.Errorf("%w: predicate outside a fresh literal", ir.ErrStackState)
	}
	r.hasPred = true
	r.lastPred = symbol
	return nil
}

// PushTerm implements engine.Facade.
func (r *Recorder) PushTerm(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdPushTerm, text); err != nil {
		return err
	}
	if !r.open || !r.hasPred || r.pending {
		return fmt.Errorf("%w: term pushed out of order", ir.ErrStackState)
	}
	r.pending = true
	return nil
}

// BindConstant implements engine.Facade.
func (r *Recorder) BindConstant() error { return r.bind(engine.CmdBindConstant) }

// BindVariable implements engine.Facade.
func (r *Recorder) BindVariable() error { return r.bind(engine.CmdBindVariable) }

func (r *Recorder) bind(command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(command, ""); err != nil {
		return err
	}
	if !r.pending {
		return fmt.Errorf("%w: no term to bind", ir.ErrStackUnderflow)
	}
	r.pending = false
	return nil
}

// FinalizeLiteral implements engine.Facade.
func (r *Recorder) FinalizeLiteral() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdFinalizeLiteral, ""); err != nil {
		return err
	}
	if !r.open || !r.hasPred || r.pending {
		return fmt.Errorf("%w: literal is incomplete", ir.ErrStackState)
	}
	r.open = false
	r.literals++
	return nil
}

// FinalizeClause implements engine.Facade. It rejects a body count that does
// not match the finalized literals on the stack.
func (r *Recorder) FinalizeClause(bodyCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdFinalizeClause, fmt.Sprint(bodyCount)); err != nil {
		return err
	}
	if r.open || r.literals != bodyCount+1 {
		return fmt.Errorf("%w: declared %d body literals, %d literals finalized", ir.ErrCountMismatch, bodyCount, r.literals)
	}
	r.literals = 0
	r.clauses++
	return nil
}

// Assert implements engine.Facade.
func (r *Recorder) Assert() error { return r.commit(engine.CmdAssert) }

// Retract implements engine.Facade.
func (r *Recorder) Retract() error { return r.commit(engine.CmdRetract) }

func (r *Recorder) commit(command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(command, ""); err != nil {
		return err
	}
	if r.clauses != 1 || r.literals != 0 || r.open {
		return fmt.Errorf("%w: %s needs exactly one finalized clause", ir.ErrStackState, command)
	}
	r.clauses = 0
	r.Committed = append(r.Committed, command)
	return nil
}

// Ask implements engine.Facade.
func (r *Recorder) Ask() (engine.Rows, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(engine.CmdAsk, ""); err != nil {
		return nil, err
	}
	if r.literals != 1 || r.open || r.clauses != 0 {
		return nil, fmt.Errorf("%w: ask needs exactly one finalized literal", ir.ErrStackState)
	}
	r.literals = 0
	return engine.NewSliceRows(r.Answers[r.lastPred]), nil
}
