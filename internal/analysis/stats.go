package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/davidfague/bmtool/internal/data/tables"
)

// Summary describes a sample of per-cell connection counts.
type Summary struct {
	N      int
	Mean   float64
	Std    float64
	Median float64
	// DataAbsent is set when there are too few samples for Std.
	DataAbsent bool
}

// Summarize computes mean, sample standard deviation and median of xs.
func Summarize(xs []float64) Summary {
	s := Summary{N: len(xs)}
	if len(xs) == 0 {
		s.DataAbsent = true
		return s
	}
	s.Mean = stat.Mean(xs, nil)
	s.Median = median(xs)
	if len(xs) < 2 {
		s.DataAbsent = true
		return s
	}
	s.Std = stat.StdDev(xs, nil)
	return s
}

// Label renders the summary for a histogram legend.
func (s Summary) Label() string {
	if s.DataAbsent {
		return fmt.Sprintf("mean %.2f median %.2f", s.Mean, s.Median)
	}
	return fmt.Sprintf("mean %.2f std %.2f median %.2f", s.Mean, s.Std, s.Median)
}

// median averages the two middle values of an even-length sample.
func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// countsBy returns the number of rows per distinct value of col.
func countsBy(t *tables.Table, col string) []float64 {
	keys, groups := t.GroupBy(col)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = float64(len(groups[k]))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// formatNumber prints v rounded to two decimals without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

// Histogram counts xs over bins equal-width bins spanning [lo, hi]. The
// last bin is closed.
func Histogram(xs []float64, lo, hi float64, bins int) (edges, counts []float64) {
	if bins < 1 {
		bins = 1
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges = floats.Span(make([]float64, bins+1), lo, hi)
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	in := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lo && x <= hi {
			in = append(in, x)
		}
	}
	sort.Float64s(in)
	counts = stat.Histogram(nil, dividers, in, nil)
	return edges, counts
}

// bounds returns the finite min and max of xs.
func bounds(xs []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		ok = true
	}
	return lo, hi, ok
}
