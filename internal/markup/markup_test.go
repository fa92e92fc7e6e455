package markup

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalogbridge/internal/ir"
)

func TestParseFile(t *testing.T) {
	doc, err := ParseFile("testdata/thermostat.xml")
	require.NoError(t, err)

	want := []ir.Clause{
		{Head: ir.MustLiteral("owner", ir.Const("alice"), ir.Const("thermostat"))},
		{
			Head: ir.MustLiteral("can_adjust", ir.Var("P"), ir.Var("D")),
			Body: []ir.Literal{ir.MustLiteral("owner", ir.Var("P"), ir.Var("D"))},
		},
		{Head: ir.MustLiteral("online")},
	}
	if diff := cmp.Diff(want, doc.Clauses); diff != "" {
		t.Errorf("Clauses mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Thermostat access rules", doc.Metadata.Description)
	assert.Equal(t, "ops", doc.Metadata.Author)
	assert.Equal(t, Device{
		Name: "hall-thermostat", Type: "thermostat", Manufacturer: "acme",
		Contact: "ops@example.com", Model: "T100", Serial: "SN-0042", Year: "2019",
	}, doc.Metadata.Device)
}

func TestParseTagNameIsKind(t *testing.T) {
	// Lower-case variable text and upper-case constant text keep the tag's kind.
	src := `<datalog><mappings><fact><head><literal>
		<predicate>p</predicate>
		<terms><variable>x</variable><constant>Y</constant></terms>
	</literal></head></fact></mappings></datalog>`

	doc, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, doc.Clauses, 1)
	assert.Equal(t, []ir.Term{{Text: "x", Kind: ir.Variable}, {Text: "Y", Kind: ir.Constant}}, doc.Clauses[0].Head.Terms)
	assert.True(t, doc.Metadata.IsZero())
}

func TestParseRuleBodyOrder(t *testing.T) {
	src := `<datalog><mappings><rule>
		<head><literal><predicate>p</predicate><terms><variable>X</variable></terms></literal></head>
		<body>
			<literal><predicate>q</predicate><terms><variable>X</variable></terms></literal>
			<literal><predicate>r</predicate><terms><variable>X</variable></terms></literal>
		</body>
	</rule></mappings></datalog>`

	doc, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, doc.Clauses, 1)
	assert.Equal(t, "p(X):-q(X).r(X).", doc.Clauses[0].String())
}

func TestParseIgnoresUnknownMappings(t *testing.T) {
	src := `<datalog><mappings>
		<comment>not a clause</comment>
		<fact><head><literal><predicate>a</predicate></literal></head></fact>
	</mappings></datalog>`

	doc, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, doc.Clauses, 1)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		reason error
		path   string
	}{
		{"empty input", ``, ir.ErrMalformedDocument, ""},
		{"not xml", `<datalog><mappings>`, ir.ErrMalformedDocument, ""},
		{"wrong root", `<prolog><mappings/></prolog>`, ir.ErrWrongRoot, "prolog"},
		{"no mappings", `<datalog><metadata/></datalog>`, ir.ErrNoMappingsSection, "datalog"},
		{"two mappings", `<datalog><mappings/><mappings/></datalog>`, ir.ErrMalformedDocument, "datalog"},
		{
			"fact without head",
			`<datalog><mappings><fact/></mappings></datalog>`,
			ir.ErrMissingField, "datalog/mappings/fact[0]",
		},
		{
			"head without literal",
			`<datalog><mappings><fact><head/></fact></mappings></datalog>`,
			ir.ErrMissingField, "datalog/mappings/fact[0]/head",
		},
		{
			"missing predicate",
			`<datalog><mappings><fact><head><literal><terms><constant>a</constant></terms></literal></head></fact></mappings></datalog>`,
			ir.ErrMissingPredicate, "datalog/mappings/fact[0]/head/literal",
		},
		{
			"empty predicate",
			`<datalog><mappings><fact><head><literal><predicate> </predicate></literal></head></fact></mappings></datalog>`,
			ir.ErrMissingPredicate, "datalog/mappings/fact[0]/head/literal",
		},
		{
			"unknown term tag",
			`<datalog><mappings><fact><head><literal><predicate>p</predicate><terms><atom>a</atom></terms></literal></head></fact></mappings></datalog>`,
			ir.ErrMissingField, "datalog/mappings/fact[0]/head/literal/terms/atom[0]",
		},
		{
			"empty term",
			`<datalog><mappings><rule><head><literal><predicate>p</predicate></literal></head><body><literal><predicate>q</predicate><terms><variable></variable></terms></literal></body></rule></mappings></datalog>`,
			ir.ErrEmptyText, "datalog/mappings/rule[0]/body/literal[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, tt.reason), "got %v, want %v", err, tt.reason)

			var schema *ir.SchemaError
			require.True(t, errors.As(err, &schema), "got %T", err)
			assert.Equal(t, tt.path, schema.Path)
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("testdata/does-not-exist.xml")
	assert.Error(t, err)
}
