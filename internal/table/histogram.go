package table

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/user/enrich-service/internal/entity"
)

// Bucket is one bar of a histogram. Lower and Upper are set for numeric
// columns only.
type Bucket struct {
	Label string   `json:"label"`
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
	Count int      `json:"count"`
}

type Histogram struct {
	Column  string   `json:"column"`
	Numeric bool     `json:"numeric"`
	Missing int      `json:"missing"`
	Buckets []Bucket `json:"buckets"`
}

const (
	DefaultBins = 10
	MaxBins     = 1000
)

var ErrInvalidBins = errors.New("invalid histogram bins")

// BuildHistogram bins a numeric column into equal-width buckets, or counts
// the distinct values of any other column (most frequent first). bins <= 0
// uses DefaultBins; more than MaxBins is an error. NaN and infinite cells
// count as missing.
func BuildHistogram(t *entity.Table, column string, bins int) (*Histogram, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, column)
	}
	if bins > MaxBins {
		return nil, fmt.Errorf("%w: %d exceeds the maximum of %d", ErrInvalidBins, bins, MaxBins)
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	h := &Histogram{Column: column, Numeric: true}
	var nums []float64
	for _, r := range t.Rows {
		v := r.Values[column]
		if v == nil {
			h.Missing++
			continue
		}
		f, ok := v.(float64)
		if !ok {
			h.Numeric = false
		} else if !isFinite(f) {
			h.Missing++
			continue
		}
		nums = append(nums, f)
	}

	if h.Numeric && len(nums) > 0 {
		h.Buckets = numericBuckets(nums, bins)
		return h, nil
	}
	h.Numeric = false
	h.Buckets = valueCounts(t, column)
	return h, nil
}

func numericBuckets(nums []float64, bins int) []Bucket {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, n := range nums {
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
	}
	if lo == hi {
		l, u := lo, hi
		return []Bucket{{Label: entity.Stringify(lo), Lower: &l, Upper: &u, Count: len(nums)}}
	}

	width := (hi - lo) / float64(bins)
	buckets := make([]Bucket, bins)
	for i := range buckets {
		l := lo + float64(i)*width
		u := l + width
		if i == bins-1 {
			u = hi
		}
		buckets[i] = Bucket{
			Label: fmt.Sprintf("%s-%s", entity.Stringify(round(l)), entity.Stringify(round(u))),
			Lower: &l,
			Upper: &u,
		}
	}
	for _, n := range nums {
		i := int((n - lo) / width)
		if i < 0 {
			i = 0
		}
		if i >= bins {
			i = bins - 1
		}
		buckets[i].Count++
	}
	return buckets
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func valueCounts(t *entity.Table, column string) []Bucket {
	counts := make(map[string]int)
	for _, r := range t.Rows {
		if v := r.Values[column]; v != nil {
			counts[entity.Stringify(v)]++
		}
	}
	buckets := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, Bucket{Label: label, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets
}
