// Package objnotation normalizes an object-notation (JSON) knowledge-base
// document into IR.
//
//	{
//	  "rules": [{"@type": "Rule", "head": LITERAL, "body": [LITERAL, ...]}],
//	  "facts": [{"@type": "Fact", "head": LITERAL}]
//	}
//	LITERAL = {"predicate": "p", "terms": [{"variable": "X"}, {"value": "a"}]}
//
// Term kind is signalled by which field is present.
package objnotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Entry type tags.
const (
	TypeRule = "Rule"
	TypeFact = "Fact"
)

// Warning is a skipped entry. Warnings never abort an import.
type Warning struct {
	Path    string
	Message string
	Err     error // *ir.SyntaxError for a malformed literal, nil otherwise
}

func (w Warning) String() string { return w.Path + ": " + w.Message }

// Document is a fully normalized object-notation document. Rules come first,
// then facts, each in array order.
type Document struct {
	Clauses  []ir.Clause
	Warnings []Warning
}

type rawDocument struct {
	Rules *[]json.RawMessage `json:"rules"`
	Facts *[]json.RawMessage `json:"facts"`
}

type rawEntry struct {
	Type *string       `json:"@type"`
	Head *rawLiteral   `json:"head"`
	Body *[]rawLiteral `json:"body"`
}

type rawLiteral struct {
	Predicate *string   `json:"predicate"`
	Terms     []rawTerm `json:"terms"`
}

type rawTerm struct {
	Variable *string `json:"variable"`
	Value    *string `json:"value"`
}

// ParseFile opens and parses one object-notation document.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBytes(data)
}

// Parse reads the whole stream and parses it.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "%v", err)
	}
	return ParseBytes(data)
}

// ParseBytes normalizes a document. A schema error anywhere aborts the whole
// document. Entries with a missing or mismatched @type, or with a literal that
// fails validation, are skipped and reported as warnings.
func ParseBytes(data []byte) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryImport, "objnotation.Parse")
	defer timer.Stop()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "top level must be an object")
	}
	var raw rawDocument
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "%v", err)
	}
	if raw.Rules == nil && raw.Facts == nil {
		return nil, ir.NewSchemaError(ir.ErrMissingField, "", "document has neither %q nor %q", "rules", "facts")
	}

	doc := &Document{}
	if raw.Rules != nil {
		if err := doc.readArray("rules", TypeRule, *raw.Rules); err != nil {
			return nil, err
		}
	}
	if raw.Facts != nil {
		if err := doc.readArray("facts", TypeFact, *raw.Facts); err != nil {
			return nil, err
		}
	}

	for _, w := range doc.Warnings {
		logging.ImportWarn("objnotation: skipped %s", w)
	}
	logging.Import("objnotation: %d clauses, %d warnings", len(doc.Clauses), len(doc.Warnings))
	return doc, nil
}

func (d *Document) warn(path, format string, args ...any) {
	d.Warnings = append(d.Warnings, Warning{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (d *Document) readArray(name, want string, entries []json.RawMessage) error {
	for i, msg := range entries {
		path := fmt.Sprintf("%s[%d]", name, i)

		var entry rawEntry
		if err := json.Unmarshal(msg, &entry); err != nil {
			return ir.NewSchemaError(ir.ErrMalformedDocument, path, "%v", err)
		}
		switch {
		case entry.Type == nil:
			d.warn(path, "missing @type")
			continue
		case *entry.Type != want:
			d.warn(path, "@type %q in %q, want %q", *entry.Type, name, want)
			continue
		}

		c, err := d.readEntry(entry, path, want)
		if ir.IsSyntax(err) {
			d.Warnings = append(d.Warnings, Warning{Path: path, Message: err.Error(), Err: err})
			continue
		}
		if err != nil {
			return err
		}
		d.Clauses = append(d.Clauses, c)
	}
	return nil
}

func (d *Document) readEntry(entry rawEntry, path, kind string) (ir.Clause, error) {
	if entry.Head == nil {
		return ir.Clause{}, ir.NewSchemaError(ir.ErrMissingField, path, "entry has no head")
	}
	head, err := readLiteral(*entry.Head, path+".head")
	if err != nil {
		return ir.Clause{}, err
	}
	c := ir.Clause{Head: head}

	if entry.Body == nil {
		return c, nil
	}
	if kind == TypeFact {
		d.warn(path, "body ignored on a Fact")
		return c, nil
	}
	for i, raw := range *entry.Body {
		lit, err := readLiteral(raw, fmt.Sprintf("%s.body[%d]", path, i))
		if err != nil {
			return ir.Clause{}, err
		}
		c.Body = append(c.Body, lit)
	}
	return c, nil
}

// readLiteral reports missing fields as schema errors and invalid field
// values as syntax errors scoped to the entry.
func readLiteral(raw rawLiteral, path string) (ir.Literal, error) {
	if raw.Predicate == nil {
		return ir.Literal{}, ir.NewSchemaError(ir.ErrMissingPredicate, path, "literal has no %q", "predicate")
	}
	lit, err := ir.DecodeLiteral(literalSource{raw: raw, path: path})
	if err != nil {
		var schema *ir.SchemaError
		if errors.As(err, &schema) {
			return ir.Literal{}, err
		}
		return ir.Literal{}, &ir.SyntaxError{Reason: err, Input: path}
	}
	return lit, nil
}

// literalSource reads one literal object.
type literalSource struct {
	raw  rawLiteral
	path string
}

func (s literalSource) ReadPredicate() (string, bool) {
	if s.raw.Predicate == nil {
		return "", false
	}
	return *s.raw.Predicate, true
}

func (s literalSource) ReadTerms() ([]ir.RawTerm, error) {
	out := make([]ir.RawTerm, 0, len(s.raw.Terms))
	for i, t := range s.raw.Terms {
		termPath := fmt.Sprintf("%s.terms[%d]", s.path, i)
		switch {
		case t.Variable != nil && t.Value != nil:
			return nil, ir.NewSchemaError(ir.ErrMissingField, termPath, "term has both %q and %q", "variable", "value")
		case t.Variable != nil:
			out = append(out, ir.RawTerm{Text: *t.Variable, Kind: ir.Variable})
		case t.Value != nil:
			out = append(out, ir.RawTerm{Text: *t.Value, Kind: ir.Constant})
		default:
			return nil, ir.NewSchemaError(ir.ErrMissingField, termPath, "term needs %q or %q", "variable", "value")
		}
	}
	return out, nil
}
