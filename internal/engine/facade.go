// Package engine defines the stack-protocol command set of the deductive
// database and provides its one concrete implementation over Google Mangle.
//
// The engine owns a single implicit stack and a single fact database. Neither
// is reentrant: callers run every build-then-commit sequence inside
// Facade.Exclusive.
package engine

// Command names, as they appear in traces and protocol errors.
const (
	CmdBeginLiteral    = "beginLiteral"
	CmdPushPredicate   = "pushPredicate"
	CmdPushTerm        = "pushTerm"
	CmdBindConstant    = "bindConstant"
	CmdBindVariable    = "bindVariable"
	CmdFinalizeLiteral = "finalizeLiteral"
	CmdFinalizeClause  = "finalizeClause"
	CmdAssert          = "assert"
	CmdRetract         = "retract"
	CmdAsk             = "ask"
)

// Facade is the engine's command vocabulary. Every command either succeeds
// or returns an error; none is idempotent.
type Facade interface {
	BeginLiteral() error
	PushPredicate(symbol string) error
	PushTerm(text string) error
	BindConstant() error
	BindVariable() error
	FinalizeLiteral() error
	FinalizeClause(bodyCount int) error
	Assert() error
	Retract() error
	Ask() (Rows, error)

	// Reset discards anything left on the stack after a failed sequence.
	Reset()
	// Exclusive runs fn while holding the engine's global lock.
	Exclusive(fn func() error) error
}

// Rows is a cursor over query answers. Next returns nil once exhausted.
type Rows interface {
	Next() []string
}

// SliceRows serves rows from memory.
type SliceRows struct {
	rows [][]string
	pos  int
}

// NewSliceRows wraps rows in a cursor. The slice is not copied.
func NewSliceRows(rows [][]string) *SliceRows {
	return &SliceRows{rows: rows}
}

// Next implements Rows.
func (r *SliceRows) Next() []string {
	if r == nil || r.pos >= len(r.rows) {
		return nil
	}
	row := r.rows[r.pos]
	r.pos++
	return row
}
