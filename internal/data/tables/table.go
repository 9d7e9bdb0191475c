// Package tables provides the column-named tables that node, edge, spike
// and connection-report files are loaded into.
package tables

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingColumn is matched by every *MissingColumnError.
var ErrMissingColumn = errors.New("tables: missing column")

// MissingColumnError names the table and the absent column.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found in %s", e.Column, e.Table)
}

// Is reports ErrMissingColumn as a match.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}

// Table is an in-memory string table with named columns. Cells are parsed
// on access.
type Table struct {
	Name    string
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given columns.
func New(name string, columns []string) *Table {
	t := &Table{Name: name, index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(c string) int {
	if i, ok := t.index[c]; ok {
		return i
	}
	t.index[c] = len(t.columns)
	t.columns = append(t.columns, c)
	return len(t.columns) - 1
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Has reports whether the table has column c.
func (t *Table) Has(c string) bool {
	_, ok := t.index[c]
	return ok
}

// Require returns a *MissingColumnError for the first absent column.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return &MissingColumnError{Table: t.Name, Column: c}
		}
	}
	return nil
}

// Append adds a row. Short rows are padded with empty cells.
func (t *Table) Append(row []string) error {
	if len(row) > len(t.columns) {
		return fmt.Errorf("row has %d cells, table %s has %d columns", len(row), t.Name, len(t.columns))
	}
	r := make([]string, len(t.columns))
	copy(r, row)
	t.rows = append(t.rows, r)
	return nil
}

// String returns cell (i, c) or "" when the column is absent.
func (t *Table) String(i int, c string) string {
	j, ok := t.index[c]
	if !ok {
		return ""
	}
	return t.rows[i][j]
}

// Float parses cell (i, c). ok is false for absent columns and cells that
// are empty or not numeric.
func (t *Table) Float(i int, c string) (float64, bool) {
	s := strings.TrimSpace(t.String(i, c))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int parses cell (i, c) as an integer. Float text such as "3.0" is
// accepted.
func (t *Table) Int(i int, c string) (int64, bool) {
	s := strings.TrimSpace(t.String(i, c))
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, ok := t.Float(i, c)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Bool parses cell (i, c); "1", "true" and "True" are true.
func (t *Table) Bool(i int, c string) bool {
	switch strings.TrimSpace(t.String(i, c)) {
	case "1", "true", "True", "TRUE", "1.0":
		return true
	}
	return false
}

// Filter returns a table with the rows for which keep is true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := New(t.Name, t.columns)
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string(nil), r...))
		}
	}
	return out
}

// Rows returns a table with the rows at idx, in that order.
func (t *Table) Rows(idx []int) *Table {
	out := New(t.Name, t.columns)
	for _, i := range idx {
		out.rows = append(out.rows, append([]string(nil), t.rows[i]...))
	}
	return out
}

// Unique returns the distinct values of column c in first-seen order.
func (t *Table) Unique(c string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range t.rows {
		v := t.String(i, c)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedUnique returns the distinct values of column c, numerically
// ordered when every value is numeric and lexically otherwise.
func (t *Table) SortedUnique(c string) []string {
	vals := t.Unique(c)
	nums := make(map[string]float64, len(vals))
	numeric := true
	for _, v := range vals {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			numeric = false
			break
		}
		nums[v] = f
	}
	if numeric {
		sort.SliceStable(vals, func(a, b int) bool { return nums[vals[a]] < nums[vals[b]] })
	} else {
		sort.Strings(vals)
	}
	return vals
}

// GroupBy returns row indices per distinct value of column c, with keys in
// first-seen order.
func (t *Table) GroupBy(c string) ([]string, map[string][]int) {
	groups := make(map[string][]int)
	var keys []string
	for i := range t.rows {
		v := t.String(i, c)
		if _, ok := groups[v]; !ok {
			keys = append(keys, v)
		}
		groups[v] = append(groups[v], i)
	}
	return keys, groups
}

// Set writes v into cell (i, c), adding the column if needed.
func (t *Table) Set(i int, c string, v string) {
	t.rows[i][t.ensureColumn(c)] = v
}

func (t *Table) ensureColumn(c string) int {
	if j, ok := t.index[c]; ok {
		return j
	}
	j := t.addColumn(c)
	for k, r := range t.rows {
		wide := make([]string, len(t.columns))
		copy(wide, r)
		t.rows[k] = wide
	}
	return j
}

// Lookup indexes the table by column key, keeping the first row per value.
func (t *Table) Lookup(key string) map[string]int {
	idx := make(map[string]int, len(t.rows))
	for i := range t.rows {
		v := t.String(i, key)
		if _, ok := idx[v]; !ok {
			idx[v] = i
		}
	}
	return idx
}

// Join copies columns from other into t as prefix+column, matching t's
// onKey cells against other's otherKey cells. Unmatched rows get "".
func (t *Table) Join(other *Table, onKey, otherKey, prefix string, cols ...string) error {
	if err := t.Require(onKey); err != nil {
		return err
	}
	if err := other.Require(otherKey); err != nil {
		return err
	}
	if len(cols) == 0 {
		cols = other.columns
	}
	idx := other.Lookup(otherKey)
	for _, c := range cols {
		dst := prefix + c
		t.ensureColumn(dst)
		for i := range t.rows {
			v := ""
			if j, ok := idx[t.String(i, onKey)]; ok {
				v = other.String(j, c)
			}
			t.Set(i, dst, v)
		}
	}
	return nil
}
