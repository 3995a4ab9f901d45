package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
)

func TestOutputColumns_AppendsFields(t *testing.T) {
	spec := entity.ExtractionSpec{Fields: []entity.FieldSpec{{Name: "price"}, {Name: "availability"}}}
	cols, names := OutputColumns([]string{"product", "sku"}, spec)

	assert.Equal(t, []string{"product", "sku", "price", "availability"}, cols)
	assert.Equal(t, map[string]string{"price": "price", "availability": "availability"}, names)
}

func TestOutputColumns_SuffixesCollisions(t *testing.T) {
	spec := entity.ExtractionSpec{Fields: []entity.FieldSpec{{Name: "email"}, {Name: "city"}}}
	cols, names := OutputColumns([]string{"company", "email", "email_extracted"}, spec)

	assert.Equal(t, []string{"company", "email", "email_extracted", "email_extracted_2", "city"}, cols)
	assert.Equal(t, "email_extracted_2", names["email"])
	assert.Equal(t, "city", names["city"])
}

func TestAssemble_KeepsInputAndNullFills(t *testing.T) {
	spec := entity.ExtractionSpec{Fields: []entity.FieldSpec{{Name: "email"}, {Name: "phone"}}}
	_, names := OutputColumns([]string{"company", "email"}, spec)
	row := entity.Row{Index: 3, Values: map[string]any{"company": "Acme", "email": "old@acme.test"}}

	got := Assemble(row, entity.ExtractedFields{"email": entity.StringPtr("new@acme.test")}, names)

	assert.Equal(t, map[string]any{
		"company":         "Acme",
		"email":           "old@acme.test",
		"email_extracted": "new@acme.test",
		"phone":           nil,
	}, got)
	assert.Len(t, row.Values, 2, "input row untouched")
}

func TestRowProgress(t *testing.T) {
	p := newRowProgress(0)
	require.NoError(t, p.advance(entity.RowRendered))
	require.NoError(t, p.advance(entity.RowSearched))

	err := p.advance(entity.RowAssembled)
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, entity.RowSearched, ae.From)

	require.NoError(t, p.advance(entity.RowExtracted))
	require.NoError(t, p.advance(entity.RowAssembled))
	assert.Error(t, p.advance(entity.RowRendered))

	skipped := newRowProgress(1)
	assert.NoError(t, skipped.advance(entity.RowAssembled))
}
