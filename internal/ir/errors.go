package ir

import (
	"errors"
	"fmt"
)

// Reasons. Typed errors below wrap one of these so callers can test with errors.Is.
var (
	ErrEmptyText      = errors.New("term text is empty")
	ErrEmptyPredicate = errors.New("predicate is empty")

	// Command syntax.
	ErrEmptyLine           = errors.New("empty line")
	ErrMissingTerminator   = errors.New("missing terminator")
	ErrInvalidTermStart    = errors.New("invalid term start")
	ErrQueryCannotHaveBody = errors.New("query cannot have a body")
	ErrMalformedLiteral    = errors.New("malformed literal")
	ErrNotAQuery           = errors.New("not a query")

	// Documents.
	ErrMalformedDocument = errors.New("malformed document")
	ErrWrongRoot         = errors.New("wrong document root")
	ErrNoMappingsSection = errors.New("no mappings section")
	ErrMissingPredicate  = errors.New("missing predicate")
	ErrMissingField      = errors.New("missing field")

	// Engine protocol.
	ErrCountMismatch  = errors.New("finalize-clause count mismatch")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackState     = errors.New("unexpected stack state")
	ErrNotFound       = errors.New("clause not found")
	ErrRejected       = errors.New("rejected by engine")

	// Resources.
	ErrFactLimit = errors.New("fact limit exceeded")
)

// SyntaxError reports malformed interactive input. It aborts one line only.
type SyntaxError struct {
	Reason error
	Input  string
	Detail string
}

func (e *SyntaxError) Error() string {
	msg := "syntax error: " + e.Reason.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Input != "" {
		msg += fmt.Sprintf(" (in %q)", e.Input)
	}
	return msg
}

func (e *SyntaxError) Unwrap() error { return e.Reason }

// NewSyntaxError builds a SyntaxError with a formatted detail.
func NewSyntaxError(reason error, input, format string, args ...any) *SyntaxError {
	return &SyntaxError{Reason: reason, Input: input, Detail: fmt.Sprintf(format, args...)}
}

// SchemaError reports a missing or malformed section of a structured
// document. It aborts the whole document import.
type SchemaError struct {
	Reason error
	Path   string
	Detail string
}

func (e *SchemaError) Error() string {
	msg := "schema error: " + e.Reason.Error()
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Reason }

// NewSchemaError builds a SchemaError with a formatted detail.
func NewSchemaError(reason error, path, format string, args ...any) *SchemaError {
	return &SchemaError{Reason: reason, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// EngineProtocolError reports a failed stack command or a broken assembly
// contract. It points at a bug in the assembler or the engine, not at input.
type EngineProtocolError struct {
	Command string
	Err     error
}

func (e *EngineProtocolError) Error() string {
	return fmt.Sprintf("engine protocol error: %s: %v", e.Command, e.Err)
}

func (e *EngineProtocolError) Unwrap() error { return e.Err }

// AllocationError reports resource exhaustion inside the engine. It is fatal
// for the current operation only.
type AllocationError struct {
	Limit  int
	Detail string
}

func (e *AllocationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("allocation error: limit %d reached", e.Limit)
	}
	return fmt.Sprintf("allocation error: limit %d reached: %s", e.Limit, e.Detail)
}

func (e *AllocationError) Unwrap() error { return ErrFactLimit }

// IsSyntax, IsSchema, IsProtocol and IsAllocation classify an error chain.
func IsSyntax(err error) bool {
	var target *SyntaxError
	return errors.As(err, &target)
}

func IsSchema(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

func IsProtocol(err error) bool {
	var target *EngineProtocolError
	return errors.As(err, &target)
}

func IsAllocation(err error) bool {
	var target *AllocationError
	return errors.As(err, &target)
}
