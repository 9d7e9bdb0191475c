package connectivity

import (
	"fmt"
	"math"
)

// Grid is a labelled matrix with optional per-cell annotation text.
// Annotations is either nil or has the same shape as Values.
type Grid struct {
	Values      *Matrix
	Annotations [][]string
	RowLabels   []string
	ColLabels   []string
}

// Validate checks that labels and annotations match the matrix shape.
func (g Grid) Validate() error {
	if g.Values == nil {
		return fmt.Errorf("nil values: %w", ErrShapeMismatch)
	}
	if len(g.RowLabels) != g.Values.Rows() || len(g.ColLabels) != g.Values.Cols() {
		return fmt.Errorf("labels %dx%d for %dx%d matrix: %w",
			len(g.RowLabels), len(g.ColLabels), g.Values.Rows(), g.Values.Cols(), ErrShapeMismatch)
	}
	if g.Annotations == nil {
		return nil
	}
	if len(g.Annotations) != g.Values.Rows() {
		return fmt.Errorf("%d annotation rows: %w", len(g.Annotations), ErrShapeMismatch)
	}
	for i, row := range g.Annotations {
		if len(row) != g.Values.Cols() {
			return fmt.Errorf("annotation row %d has %d cells: %w", i, len(row), ErrShapeMismatch)
		}
	}
	return nil
}

// Annotation returns the text for cell (i, j), or "" without annotations.
func (g Grid) Annotation(i, j int) string {
	if g.Annotations == nil {
		return ""
	}
	return g.Annotations[i][j]
}

// sparse reports whether every value is NaN or every value is zero.
// An empty slice counts as sparse.
func sparse(vals []float64) bool {
	allNaN, allZero := true, true
	for _, v := range vals {
		if !math.IsNaN(v) {
			allNaN = false
		}
		if v != 0 {
			allZero = false
		}
	}
	return allNaN || allZero
}

func keepRows(m *Matrix) []bool {
	mask := make([]bool, m.Rows())
	for i := range mask {
		mask[i] = !sparse(m.Row(i))
	}
	return mask
}

func keepCols(m *Matrix) []bool {
	mask := make([]bool, m.Cols())
	col := make([]float64, m.Rows())
	for j := range mask {
		for i := range col {
			col[i] = m.At(i, j)
		}
		mask[j] = !sparse(col)
	}
	return mask
}

// FilterRows drops rows whose values are all NaN or all zero, with their
// labels and annotations.
func FilterRows(g Grid) Grid {
	all := make([]bool, g.Values.Cols())
	for j := range all {
		all[j] = true
	}
	return g.mask(keepRows(g.Values), all)
}

// FilterColumns drops columns whose values are all NaN or all zero.
func FilterColumns(g Grid) Grid {
	all := make([]bool, g.Values.Rows())
	for i := range all {
		all[i] = true
	}
	return g.mask(all, keepCols(g.Values))
}

// FilterRowsAndColumns drops sparse rows, then drops columns that are
// sparse in the row-filtered matrix. It makes one pass of each, so a row
// left all zero by the column pass is kept.
func FilterRowsAndColumns(g Grid) Grid {
	return FilterColumns(FilterRows(g))
}

func (g Grid) mask(rows, cols []bool) Grid {
	var ri, ci []int
	for i, keep := range rows {
		if keep {
			ri = append(ri, i)
		}
	}
	for j, keep := range cols {
		if keep {
			ci = append(ci, j)
		}
	}

	out := Grid{
		Values:    NewMatrix(len(ri), len(ci)),
		RowLabels: make([]string, 0, len(ri)),
		ColLabels: make([]string, 0, len(ci)),
	}
	if g.Annotations != nil {
		out.Annotations = make([][]string, len(ri))
	}
	for a, i := range ri {
		if i < len(g.RowLabels) {
			out.RowLabels = append(out.RowLabels, g.RowLabels[i])
		}
		if out.Annotations != nil {
			out.Annotations[a] = make([]string, len(ci))
		}
		for b, j := range ci {
			out.Values.Set(a, b, g.Values.At(i, j))
			if out.Annotations != nil {
				out.Annotations[a][b] = g.Annotations[i][j]
			}
		}
	}
	for _, j := range ci {
		if j < len(g.ColLabels) {
			out.ColLabels = append(out.ColLabels, g.ColLabels[j])
		}
	}
	return out
}
