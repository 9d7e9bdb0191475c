package connectivity

import "fmt"

// Ratio divides num by den elementwise. Division by zero follows IEEE 754:
// 0/0 is NaN and x/0 is ±Inf.
func Ratio(num, den []float64) ([]float64, error) {
	if len(num) != len(den) {
		return nil, fmt.Errorf("%d numerators, %d denominators: %w", len(num), len(den), ErrLengthMismatch)
	}
	out := make([]float64, len(num))
	for i := range num {
		out[i] = num[i] / den[i]
	}
	return out, nil
}

// LeftEdges drops the last bin edge so that edges pair with bin counts.
func LeftEdges(edges []float64) []float64 {
	if len(edges) == 0 {
		return nil
	}
	out := make([]float64, len(edges)-1)
	copy(out, edges)
	return out
}

// BinnedCounts pairs two histograms over the same bin edges: connected
// pairs and all candidate pairs.
type BinnedCounts struct {
	Edges     []float64
	Connected []float64
	Possible  []float64
}

// BinnedRatio is a probability series ready to plot.
type BinnedRatio struct {
	X []float64
	Y []float64
}

// Ratio reduces the counts to connection probability per bin.
func (b BinnedCounts) Ratio() (BinnedRatio, error) {
	y, err := Ratio(b.Connected, b.Possible)
	if err != nil {
		return BinnedRatio{}, err
	}
	x := LeftEdges(b.Edges)
	if len(x) != len(y) {
		return BinnedRatio{}, fmt.Errorf("%d edges for %d bins: %w", len(b.Edges), len(y), ErrLengthMismatch)
	}
	return BinnedRatio{X: x, Y: y}, nil
}
