package connectivity

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// MappingCell is one column entry of a Mapping row.
type MappingCell struct {
	Col   string
	Value string
}

// MappingRow holds the cells of one row label, in column order.
type MappingRow struct {
	Row   string
	Cells []MappingCell
}

// Mapping is an ordered nested {row: {col: text}} view of a Grid.
// It marshals to a JSON object that keeps row-major order.
type Mapping struct {
	Rows []MappingRow
}

// Mapping builds the ordered view of g. Cells without annotation text
// render as "0"; grids without annotations use the formatted value.
func (g Grid) Mapping() Mapping {
	out := Mapping{Rows: make([]MappingRow, 0, len(g.RowLabels))}
	for i, rl := range g.RowLabels {
		row := MappingRow{Row: rl, Cells: make([]MappingCell, 0, len(g.ColLabels))}
		for j, cl := range g.ColLabels {
			var v string
			if g.Annotations == nil {
				v = strconv.FormatFloat(g.Values.At(i, j), 'g', -1, 64)
			} else if v = g.Annotations[i][j]; v == "" {
				v = "0"
			}
			row.Cells = append(row.Cells, MappingCell{Col: cl, Value: v})
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Get returns the value at (row, col) for the first matching labels.
func (m Mapping) Get(row, col string) (string, bool) {
	for _, r := range m.Rows {
		if r.Row != row {
			continue
		}
		for _, c := range r.Cells {
			if c.Col == col {
				return c.Value, true
			}
		}
		return "", false
	}
	return "", false
}

// MarshalJSON writes rows and cells in insertion order.
func (m Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range m.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, r.Row); err != nil {
			return nil, err
		}
		buf.WriteString(":{")
		for j, c := range r.Cells {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(&buf, c.Col); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSONString(&buf, c.Value); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
