package markup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"datalogbridge/internal/ir"
)

// Element is one node of a decoded markup document. Attributes are not
// part of the schema and are dropped.
type Element struct {
	Name     string
	Text     string
	Children []*Element
}

// Child returns the first child with the given tag, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child with the given tag in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the trimmed text of the first child with the given tag.
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// decodeTree reads the whole token stream into an element tree. Character
// data is trimmed; mixed content is concatenated.
func decodeTree(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var (
		root  *Element
		stack []*Element
		text  []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "%v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "more than one root element")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
			text = append(text, "")
		case xml.CharData:
			if len(stack) > 0 {
				text[len(text)-1] += string(t)
			}
		case xml.EndElement:
			el := stack[len(stack)-1]
			el.Text = strings.TrimSpace(text[len(text)-1])
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	if root == nil {
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "document has no root element")
	}
	if len(stack) != 0 {
		return nil, ir.NewSchemaError(ir.ErrMalformedDocument, "", "unclosed element %q", stack[len(stack)-1].Name)
	}
	return root, nil
}

func childPath(parent, name string, index int) string {
	if index < 0 {
		return parent + "/" + name
	}
	return fmt.Sprintf("%s/%s[%d]", parent, name, index)
}
