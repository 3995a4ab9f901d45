package table

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enrich-service/internal/entity"
)

func sample() *entity.Table {
	return &entity.Table{
		Columns: []string{"company", "city", "employees"},
		Rows: []entity.Row{
			{Index: 0, Values: map[string]any{"company": "Acme", "city": "Berlin", "employees": float64(10)}},
			{Index: 1, Values: map[string]any{"company": "Globex", "city": "Paris", "employees": float64(250)}},
			{Index: 2, Values: map[string]any{"company": "Initech", "city": "Berlin", "employees": nil}},
			{Index: 3, Values: map[string]any{"company": "Acme", "city": "Rome", "employees": float64(40)}},
		},
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		cond Condition
		want []string
	}{
		{Condition{Column: "city", Op: "eq", Value: "Berlin"}, []string{"Acme", "Initech"}},
		{Condition{Column: "city", Op: "neq", Value: "Berlin"}, []string{"Globex", "Acme"}},
		{Condition{Column: "company", Op: "contains", Value: "te"}, []string{"Initech"}},
		{Condition{Column: "employees", Op: "gt", Value: "10"}, []string{"Globex", "Acme"}},
		{Condition{Column: "employees", Op: "gte", Value: "10"}, []string{"Acme", "Globex", "Acme"}},
		{Condition{Column: "employees", Op: "lt", Value: "40"}, []string{"Acme"}},
		{Condition{Column: "employees", Op: "lte", Value: "40"}, []string{"Acme", "Acme"}},
		{Condition{Column: "employees", Op: "eq", Value: "10.0"}, []string{"Acme"}},
		{Condition{Column: "employees", Op: "neq", Value: "10.0"}, []string{"Globex", "Initech", "Acme"}},
		{Condition{Column: "city", Op: "in", Values: []string{"Paris", "Rome"}}, []string{"Globex", "Acme"}},
		{Condition{Column: "employees", Op: "in", Values: []string{"40", "250.0"}}, []string{"Globex", "Acme"}},
	}
	for _, tc := range cases {
		t.Run(tc.cond.Op+"_"+tc.cond.Value+strings.Join(tc.cond.Values, "_"), func(t *testing.T) {
			out, err := Filter(sample(), tc.cond)
			require.NoError(t, err)

			var got []string
			for i, r := range out.Rows {
				assert.Equal(t, i, r.Index)
				got = append(got, r.Values["company"].(string))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilter_Errors(t *testing.T) {
	_, err := Filter(sample(), Condition{Column: "nope", Op: "eq"})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = Filter(sample(), Condition{Column: "city", Op: "like"})
	assert.ErrorIs(t, err, ErrInvalidCondition)

	_, err = Filter(sample(), Condition{Column: "employees", Op: "gt", Value: "many"})
	assert.ErrorIs(t, err, ErrInvalidCondition)

	_, err = Filter(sample(), Condition{Column: "city", Op: "in"})
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestFilter_DoesNotShareRowMaps(t *testing.T) {
	src := sample()
	out, err := Filter(src, Condition{Column: "city", Op: "eq", Value: "Paris"})
	require.NoError(t, err)

	out.Rows[0].Values["city"] = "changed"
	assert.Equal(t, "Paris", src.Rows[1].Values["city"])
}

func TestUnique(t *testing.T) {
	got, err := Unique(sample(), "company")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex", "Initech"}, got)
}

func TestBuildHistogram_Numeric(t *testing.T) {
	h, err := BuildHistogram(sample(), "employees", 2)
	require.NoError(t, err)

	assert.True(t, h.Numeric)
	assert.Equal(t, 1, h.Missing)
	require.Len(t, h.Buckets, 2)
	assert.Equal(t, 2, h.Buckets[0].Count)
	assert.Equal(t, 1, h.Buckets[1].Count)
	assert.Equal(t, float64(250), *h.Buckets[1].Upper)
}

func TestBuildHistogram_Categorical(t *testing.T) {
	h, err := BuildHistogram(sample(), "city", 0)
	require.NoError(t, err)

	assert.False(t, h.Numeric)
	require.Len(t, h.Buckets, 3)
	assert.Equal(t, Bucket{Label: "Berlin", Count: 2}, h.Buckets[0])
	assert.Equal(t, "Paris", h.Buckets[1].Label)
	assert.Equal(t, "Rome", h.Buckets[2].Label)
}

func TestBuildHistogram_SingleValue(t *testing.T) {
	tbl := &entity.Table{Columns: []string{"n"}, Rows: []entity.Row{
		{Values: map[string]any{"n": float64(5)}},
		{Values: map[string]any{"n": float64(5)}},
	}}
	h, err := BuildHistogram(tbl, "n", 4)
	require.NoError(t, err)
	require.Len(t, h.Buckets, 1)
	assert.Equal(t, 2, h.Buckets[0].Count)
}

func TestBuildHistogram_RejectsTooManyBins(t *testing.T) {
	_, err := BuildHistogram(sample(), "employees", MaxBins+1)
	assert.ErrorIs(t, err, ErrInvalidBins)

	_, err = BuildHistogram(sample(), "employees", 1<<50)
	assert.ErrorIs(t, err, ErrInvalidBins)

	h, err := BuildHistogram(sample(), "employees", MaxBins)
	require.NoError(t, err)
	assert.Len(t, h.Buckets, MaxBins)
}

func TestBuildHistogram_NonFiniteCountsAsMissing(t *testing.T) {
	tbl := &entity.Table{Columns: []string{"score"}, Rows: []entity.Row{
		{Values: map[string]any{"score": math.NaN()}},
		{Values: map[string]any{"score": math.Inf(1)}},
		{Values: map[string]any{"score": float64(1)}},
		{Values: map[string]any{"score": float64(3)}},
	}}
	h, err := BuildHistogram(tbl, "score", 2)
	require.NoError(t, err)
	assert.True(t, h.Numeric)
	assert.Equal(t, 2, h.Missing)
	require.Len(t, h.Buckets, 2)
	assert.Equal(t, 1, h.Buckets[0].Count)
	assert.Equal(t, 1, h.Buckets[1].Count)
}

func TestBuildHistogram_NaNTextFromCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("company,score\nAcme,NaN\nBeta,3\n"))
	require.NoError(t, err)

	h, err := BuildHistogram(tbl, "score", 4)
	require.NoError(t, err)
	assert.False(t, h.Numeric)
	assert.Len(t, h.Buckets, 2)
}
