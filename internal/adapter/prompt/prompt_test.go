package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
)

func spec(names ...string) entity.ExtractionSpec {
	var s entity.ExtractionSpec
	for _, n := range names {
		s.Fields = append(s.Fields, entity.FieldSpec{Name: n})
	}
	return s
}

func TestBuild(t *testing.T) {
	s := entity.ExtractionSpec{Fields: []entity.FieldSpec{
		{Name: "price", Description: "listed retail price"},
		{Name: "availability"},
	}}
	got := Build(s, "Title: Widget\nSnippet: $10")

	assert.Contains(t, got, "- price: listed retail price\n- availability\n")
	assert.Contains(t, got, "Search results:\nTitle: Widget\nSnippet: $10")
}

func TestQuestion(t *testing.T) {
	assert.Equal(t, "What is the contact email?", Question(entity.FieldSpec{Name: "contact_email"}))
	assert.Equal(t, "Who is the CEO?", Question(entity.FieldSpec{Name: "ceo", Description: "Who is the CEO?"}))
}

func TestParse_NoMentionIsNull(t *testing.T) {
	got := Parse("The product page describes colours and sizes only.", spec("price"))

	require.Contains(t, got, "price")
	assert.Nil(t, got["price"])
}

func TestParse_JSON(t *testing.T) {
	text := "Sure! Here you go:\n```json\n{\"Price\": \"$19.99\", \"availability\": null, \"tags\": [\"a\", \"b\"], \"rank\": 3}\n```"
	got := Parse(text, spec("price", "availability", "tags", "rank", "color"))

	require.NotNil(t, got["price"])
	assert.Equal(t, "$19.99", *got["price"])
	assert.Nil(t, got["availability"])
	assert.Equal(t, "a, b", *got["tags"])
	assert.Equal(t, "3", *got["rank"])
	assert.Nil(t, got["color"])
	assert.Len(t, got, 5)
}

func TestParse_Lines(t *testing.T) {
	text := "- **Price**: $5\n* Availability: N/A\nContact Email: sales@acme.test\nnoise without colon"
	got := Parse(text, spec("price", "availability", "contact_email"))

	assert.Equal(t, "$5", *got["price"])
	assert.Nil(t, got["availability"])
	assert.Equal(t, "sales@acme.test", *got["contact_email"])
}

func TestParse_AppliesPattern(t *testing.T) {
	s := entity.ExtractionSpec{Fields: []entity.FieldSpec{
		{Name: "email", Pattern: `[\w.+-]+@[\w-]+\.[\w.]+`},
		{Name: "phone", Pattern: `\d{3}-\d{4}`},
	}}
	got := Parse(`{"email": "write to info@acme.test today", "phone": "call us"}`, s)

	assert.Equal(t, "info@acme.test", *got["email"])
	assert.Nil(t, got["phone"])
}

func TestMatch(t *testing.T) {
	v := entity.StringPtr("abc123")
	assert.Equal(t, v, Match(v, ""))
	assert.Equal(t, "123", *Match(v, `\d+`))
	assert.Nil(t, Match(v, `(`))
	assert.Nil(t, Match(nil, `\d+`))
}
