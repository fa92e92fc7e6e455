package objnotation

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/markup"
)

func TestParseFile(t *testing.T) {
	doc, err := ParseFile("testdata/family.json")
	require.NoError(t, err)

	want := []ir.Clause{
		{
			Head: ir.MustLiteral("grandparent", ir.Var("X"), ir.Var("Z")),
			Body: []ir.Literal{
				ir.MustLiteral("parent", ir.Var("X"), ir.Var("Y")),
				ir.MustLiteral("parent", ir.Var("Y"), ir.Var("Z")),
			},
		},
		{Head: ir.MustLiteral("parent", ir.Const("ann"), ir.Const("bob"))},
		{Head: ir.MustLiteral("parent", ir.Const("bob"), ir.Const("cid"))},
	}
	if diff := cmp.Diff(want, doc.Clauses); diff != "" {
		t.Errorf("Clauses mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, doc.Warnings, 2)
	assert.Equal(t, "rules[1]", doc.Warnings[0].Path)
	assert.Equal(t, "facts[2]", doc.Warnings[1].Path)
	assert.Contains(t, doc.Warnings[1].String(), "missing @type")
}

func TestRulesBeforeFacts(t *testing.T) {
	src := `{
		"facts": [{"@type": "Fact", "head": {"predicate": "q", "terms": [{"value": "a"}]}}],
		"rules": [{"@type": "Rule", "head": {"predicate": "p", "terms": [{"variable": "X"}]},
		           "body": [{"predicate": "q", "terms": [{"variable": "X"}]}]}]
	}`
	doc, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, doc.Clauses, 2)
	assert.Equal(t, "p(X):-q(X).", doc.Clauses[0].String())
	assert.Equal(t, "q(a).", doc.Clauses[1].String())
}

func TestFieldPresenceIsKind(t *testing.T) {
	src := `{"facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"variable": "lower"}, {"value": "Upper"}]}}]}`
	doc, err := ParseBytes([]byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Clauses, 1)
	assert.Equal(t, []ir.Term{{Text: "lower", Kind: ir.Variable}, {Text: "Upper", Kind: ir.Constant}}, doc.Clauses[0].Head.Terms)
}

func TestFactBodyIgnored(t *testing.T) {
	src := `{"facts": [{"@type": "Fact", "head": {"predicate": "p"}, "body": [{"predicate": "q"}]}]}`
	doc, err := ParseBytes([]byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Clauses, 1)
	assert.True(t, doc.Clauses[0].IsFact())
	require.Len(t, doc.Warnings, 1)
}

func TestWrongArrayTypeIsWarning(t *testing.T) {
	src := `{"facts": [{"@type": "Rule", "head": {"predicate": "p"}}]}`
	doc, err := ParseBytes([]byte(src))
	require.NoError(t, err)
	assert.Empty(t, doc.Clauses)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, "facts[0]", doc.Warnings[0].Path)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		reason error
		path   string
	}{
		{"empty", ``, ir.ErrMalformedDocument, ""},
		{"array root", `[]`, ir.ErrMalformedDocument, ""},
		{"invalid json", `{"rules": [`, ir.ErrMalformedDocument, ""},
		{"no sections", `{"other": 1}`, ir.ErrMissingField, ""},
		{"entry not object", `{"facts": [3]}`, ir.ErrMalformedDocument, "facts[0]"},
		{"no head", `{"facts": [{"@type": "Fact"}]}`, ir.ErrMissingField, "facts[0]"},
		{"no predicate", `{"facts": [{"@type": "Fact", "head": {"terms": []}}]}`, ir.ErrMissingPredicate, "facts[0].head"},
		{
			"term without kind",
			`{"facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"name": "a"}]}}]}`,
			ir.ErrMissingField, "facts[0].head.terms[0]",
		},
		{
			"term with both kinds",
			`{"facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"value": "a", "variable": "A"}]}}]}`,
			ir.ErrMissingField, "facts[0].head.terms[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.src))
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, tt.reason), "got %v, want %v", err, tt.reason)

			var schema *ir.SchemaError
			require.True(t, errors.As(err, &schema), "got %T", err)
			assert.Equal(t, tt.path, schema.Path)
		})
	}
}

func TestMalformedLiteralSkipsEntry(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		reason error
		path   string
	}{
		{
			"empty fact term",
			`{"facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"value": "a"}]}},
			            {"@type": "Fact", "head": {"predicate": "p", "terms": [{"value": ""}]}}]}`,
			ir.ErrEmptyText, "facts[1]",
		},
		{
			"empty predicate",
			`{"facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"value": "a"}]}},
			            {"@type": "Fact", "head": {"predicate": ""}}]}`,
			ir.ErrMissingPredicate, "facts[1]",
		},
		{
			"empty body term",
			`{"rules": [{"@type": "Rule", "head": {"predicate": "q"}, "body": [{"predicate": "r", "terms": [{"value": ""}]}]}],
			  "facts": [{"@type": "Fact", "head": {"predicate": "p", "terms": [{"value": "a"}]}}]}`,
			ir.ErrEmptyText, "rules[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.src))
			require.NoError(t, err)

			want := []ir.Clause{{Head: ir.MustLiteral("p", ir.Const("a"))}}
			if diff := cmp.Diff(want, doc.Clauses); diff != "" {
				t.Errorf("clauses mismatch (-want +got):\n%s", diff)
			}
			require.Len(t, doc.Warnings, 1)
			w := doc.Warnings[0]
			assert.Equal(t, tt.path, w.Path)
			assert.True(t, ir.IsSyntax(w.Err), "got %T", w.Err)
			assert.True(t, errors.Is(w.Err, tt.reason), "got %v, want %v", w.Err, tt.reason)
		})
	}
}

// The two structured formats decode the same literal to the same IR.
func TestMatchesMarkup(t *testing.T) {
	xmlDoc, err := markup.Parse(strings.NewReader(
		`<datalog><mappings><fact><head><literal><predicate>p</predicate><terms><constant>x</constant></terms></literal></head></fact></mappings></datalog>`))
	require.NoError(t, err)

	jsonDoc, err := ParseBytes([]byte(
		`{"facts": [{"@type": "Fact", "head": {"predicate":"p","terms":[{"value":"x"}]}}]}`))
	require.NoError(t, err)

	if diff := cmp.Diff(xmlDoc.Clauses, jsonDoc.Clauses); diff != "" {
		t.Errorf("markup and object notation disagree (-markup +json):\n%s", diff)
	}
	if diff := cmp.Diff(ir.MustLiteral("p", ir.Const("x")), jsonDoc.Clauses[0].Head); diff != "" {
		t.Errorf("literal mismatch (-want +got):\n%s", diff)
	}
}
