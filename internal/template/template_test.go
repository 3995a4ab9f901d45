package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
)

func row(values map[string]any) entity.Row {
	return entity.Row{Index: 0, Values: values}
}

func TestRender_SubstitutesColumn(t *testing.T) {
	tpl, err := Parse("{company} headquarters address")
	require.NoError(t, err)

	q, err := tpl.Render(row(map[string]any{"company": "Acme"}))
	require.NoError(t, err)
	assert.Equal(t, "Acme headquarters address", q)
}

func TestRender_MissingColumn(t *testing.T) {
	tpl, err := Parse("{missing_col} info")
	require.NoError(t, err)

	_, err = tpl.Render(row(map[string]any{"company": "Acme"}))
	require.Error(t, err)

	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "missing_col", te.Column)
	assert.Contains(t, err.Error(), "missing_col")
}

func TestRender_IsDeterministic(t *testing.T) {
	tpl := MustParse("{a}-{b}-{a}")
	r := row(map[string]any{"a": "x", "b": 2.5})

	first, err := tpl.Render(r)
	require.NoError(t, err)
	second, err := tpl.Render(r)
	require.NoError(t, err)

	assert.Equal(t, "x-2.5-x", first)
	assert.Equal(t, first, second)
}

func TestRender_ValueFormatting(t *testing.T) {
	tpl := MustParse("{n}|{f}|{b}|{empty}")
	q, err := tpl.Render(row(map[string]any{"n": float64(42), "f": 0.125, "b": true, "empty": nil}))
	require.NoError(t, err)
	assert.Equal(t, "42|0.125|true|", q)
}

func TestParse_Escapes(t *testing.T) {
	tpl := MustParse("{{literal}} {name}")
	assert.Equal(t, []string{"name"}, tpl.Placeholders())

	q, err := tpl.Render(row(map[string]any{"name": "v"}))
	require.NoError(t, err)
	assert.Equal(t, "{literal} v", q)
}

func TestParse_TrimsPlaceholderNames(t *testing.T) {
	tpl := MustParse("{ company name }")
	assert.Equal(t, []string{"company name"}, tpl.Placeholders())
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"{open", "close}", "{}", "{ }", "{a{b}"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			var te *TemplateError
			assert.True(t, errors.As(err, &te), "expected TemplateError for %q, got %v", raw, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tpl := MustParse("{entity} email {city}")

	assert.NoError(t, tpl.Validate([]string{"entity", "city", "extra"}))

	err := tpl.Validate([]string{"entity"})
	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "city", te.Column)
}

func TestRenderAll(t *testing.T) {
	table := &entity.Table{
		Columns: []string{"entity"},
		Rows: []entity.Row{
			{Index: 0, Values: map[string]any{"entity": "Acme"}},
			{Index: 1, Values: map[string]any{"entity": "Globex"}},
		},
	}

	queries, err := RenderAll(MustParse("Get me the email address of {entity}"), table)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Get me the email address of Acme",
		"Get me the email address of Globex",
	}, queries)

	_, err = RenderAll(MustParse("{nope}"), table)
	assert.Error(t, err)
}

func TestPlaceholders_Distinct(t *testing.T) {
	tpl := MustParse("{a} {b} {a}")
	assert.Equal(t, []string{"a", "b"}, tpl.Placeholders())
	assert.Equal(t, "{a} {b} {a}", tpl.String())
}
