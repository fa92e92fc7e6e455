// Package markup normalizes a markup (XML) knowledge-base document into IR.
//
// Schema:
//
//	<datalog>
//	  <metadata>
//	    <description/> <author/>
//	    <device><name/><type/><manufacturer/><contact/><model/><serial/><year/></device>
//	  </metadata>
//	  <mappings>
//	    <fact><head><literal>...</literal></head></fact>
//	    <rule><head><literal>...</literal></head><body><literal>...</literal>*</body></rule>
//	  </mappings>
//	</datalog>
//
//	<literal><predicate>p</predicate><terms><constant>a</constant><variable>X</variable></terms></literal>
//
// Term kind is the tag name; no first-letter heuristic applies here.
package markup

import (
	"errors"
	"fmt"
	"io"
	"os"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Tag names.
const (
	TagRoot      = "datalog"
	TagMetadata  = "metadata"
	TagMappings  = "mappings"
	TagFact      = "fact"
	TagRule      = "rule"
	TagHead      = "head"
	TagBody      = "body"
	TagLiteral   = "literal"
	TagPredicate = "predicate"
	TagTerms     = "terms"
	TagConstant  = "constant"
	TagVariable  = "variable"
)

// Device describes the device a knowledge base was exported for.
type Device struct {
	Name         string `json:"name,omitempty"`
	Type         string `json:"type,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Contact      string `json:"contact,omitempty"`
	Model        string `json:"model,omitempty"`
	Serial       string `json:"serial,omitempty"`
	Year         string `json:"year,omitempty"`
}

// Metadata is reported to the user and never asserted.
type Metadata struct {
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Device      Device `json:"device"`
}

// IsZero reports whether the document carried no metadata at all.
func (m Metadata) IsZero() bool { return m == Metadata{} }

// Document is a fully normalized markup document.
type Document struct {
	Metadata Metadata
	Clauses  []ir.Clause
}

// ParseFile opens and parses one markup document.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and normalizes a markup document. Any failure aborts the
// whole document; no partial clause list is returned.
func Parse(r io.Reader) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryImport, "markup.Parse")
	defer timer.Stop()

	root, err := decodeTree(r)
	if err != nil {
		return nil, err
	}
	if root.Name != TagRoot {
		return nil, ir.NewSchemaError(ir.ErrWrongRoot, root.Name, "expected <%s>", TagRoot)
	}

	doc := &Document{}
	if meta := root.Child(TagMetadata); meta != nil {
		doc.Metadata = readMetadata(meta)
	}

	mappings := root.ChildrenNamed(TagMappings)
	switch len(mappings) {
	case 0:
		return nil, ir.NewSchemaError(ir.ErrNoMappingsSection, TagRoot, "")
	case 1:
	default:
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, TagRoot, "found %d <%s> sections, want one", len(mappings), TagMappings)
	}

	base := childPath(TagRoot, TagMappings, -1)
	var facts, rules int
	for i, node := range mappings[0].Children {
		path := childPath(base, node.Name, i)
		switch node.Name {
		case TagFact:
			c, err := readFact(node, path)
			if err != nil {
				return nil, err
			}
			doc.Clauses = append(doc.Clauses, c)
			facts++
		case TagRule:
			c, err := readRule(node, path)
			if err != nil {
				return nil, err
			}
			doc.Clauses = append(doc.Clauses, c)
			rules++
		default:
			logging.ImportDebug("markup: ignoring <%s> at %s", node.Name, path)
		}
	}

	logging.Import("markup: %d facts, %d rules", facts, rules)
	return doc, nil
}

func readMetadata(el *Element) Metadata {
	m := Metadata{
		Description: el.ChildText("description"),
		Author:      el.ChildText("author"),
	}
	if d := el.Child("device"); d != nil {
		m.Device = Device{
			Name:         d.ChildText("name"),
			Type:         d.ChildText("type"),
			Manufacturer: d.ChildText("manufacturer"),
			Contact:      d.ChildText("contact"),
			Model:        d.ChildText("model"),
			Serial:       d.ChildText("serial"),
			Year:         d.ChildText("year"),
		}
	}
	return m
}

func readFact(node *Element, path string) (ir.Clause, error) {
	head, err := readHead(node, path)
	if err != nil {
		return ir.Clause{}, err
	}
	return ir.Clause{Head: head}, nil
}

func readRule(node *Element, path string) (ir.Clause, error) {
	head, err := readHead(node, path)
	if err != nil {
		return ir.Clause{}, err
	}

	c := ir.Clause{Head: head}
	body := node.Child(TagBody)
	if body == nil {
		return c, nil
	}
	bodyPath := childPath(path, TagBody, -1)
	for i, el := range body.ChildrenNamed(TagLiteral) {
		lit, err := readLiteral(el, childPath(bodyPath, TagLiteral, i))
		if err != nil {
			return ir.Clause{}, err
		}
		c.Body = append(c.Body, lit)
	}
	return c, nil
}

func readHead(node *Element, path string) (ir.Literal, error) {
	head := node.Child(TagHead)
	if head == nil {
		return ir.Literal{}, ir.NewSchemaError(ir.ErrMissingField, path, "<%s> has no <%s>", node.Name, TagHead)
	}
	headPath := childPath(path, TagHead, -1)
	lit := head.Child(TagLiteral)
	if lit == nil {
		return ir.Literal{}, ir.NewSchemaError(ir.ErrMissingField, headPath, "<%s> has no <%s>", TagHead, TagLiteral)
	}
	return readLiteral(lit, childPath(headPath, TagLiteral, -1))
}

func readLiteral(el *Element, path string) (ir.Literal, error) {
	lit, err := ir.DecodeLiteral(literalSource{el: el, path: path})
	if err != nil {
		var schema *ir.SchemaError
		if errors.As(err, &schema) {
			return ir.Literal{}, err
		}
		return ir.Literal{}, &ir.SchemaError{Reason: err, Path: path}
	}
	return lit, nil
}

// literalSource reads one <literal> element.
type literalSource struct {
	el   *Element
	path string
}

func (s literalSource) ReadPredicate() (string, bool) {
	p := s.el.Child(TagPredicate)
	if p == nil {
		return "", false
	}
	return p.Text, true
}

func (s literalSource) ReadTerms() ([]ir.RawTerm, error) {
	terms := s.el.Child(TagTerms)
	if terms == nil {
		return nil, nil
	}
	raw := make([]ir.RawTerm, 0, len(terms.Children))
	for i, t := range terms.Children {
		kind, err := ir.ParseKind(t.Name)
		if err != nil {
			return nil, ir.NewSchemaError(ir.ErrMissingField, childPath(s.path+"/"+TagTerms, t.Name, i),
				"term tag must be <%s> or <%s>", TagConstant, TagVariable)
		}
		raw = append(raw, ir.RawTerm{Text: t.Text, Kind: kind})
	}
	return raw, nil
}
