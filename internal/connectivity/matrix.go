package connectivity

import (
	"fmt"
	"math"
	"strings"
)

// Matrix is a dense row-major float64 matrix. Zero-sized matrices are valid.
// Index arguments out of range panic, as in slices.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix returns a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("connectivity: negative dimension %dx%d", rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// NewMatrixFrom copies a rectangular slice of rows.
func NewMatrixFrom(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), m.cols, ErrShapeMismatch)
		}
		copy(m.data[i*m.cols:], row)
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) index(i, j int) int {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("connectivity: index (%d,%d) out of range for %dx%d", i, j, m.rows, m.cols))
	}
	return i*m.cols + j
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 { return m.data[m.index(i, j)] }

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v float64) { m.data[m.index(i, j)] = v }

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, m.cols)
	copy(out, m.data[m.index(i, 0):])
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(c.data, m.data)
	return c
}

// Slices returns the matrix as a fresh slice of rows.
func (m *Matrix) Slices() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Equal reports whether m and o have the same shape and elements.
// NaN equals NaN here.
func (m *Matrix) Equal(o *Matrix) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for k, v := range m.data {
		w := o.data[k]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

// NaNToZero returns a copy with NaN replaced by 0 and infinities clamped to
// the largest finite float64.
func (m *Matrix) NaNToZero() *Matrix {
	c := m.Clone()
	for k, v := range c.data {
		switch {
		case math.IsNaN(v):
			c.data[k] = 0
		case math.IsInf(v, 1):
			c.data[k] = math.MaxFloat64
		case math.IsInf(v, -1):
			c.data[k] = -math.MaxFloat64
		}
	}
	return c
}

// Range returns the smallest and largest finite element. ok is false when
// the matrix has no finite elements.
func (m *Matrix) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

// String renders the matrix one row per line.
func (m *Matrix) String() string {
	var b strings.Builder
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%g", m.At(i, j))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
