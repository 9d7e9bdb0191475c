// Package export writes matrix grids to spreadsheets and reads connection
// reports back in.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
)

// Sheet names of an exported workbook.
const (
	ValuesSheet      = "values"
	AnnotationsSheet = "annotations"
)

// Report columns of a connection report.
const (
	SourceColumn = "Source"
	TargetColumn = "Target"
)

// WriteXLSX writes g as a workbook with a numeric values sheet and, when g
// has annotations, an annotations sheet. NaN cells are left blank.
func WriteXLSX(w io.Writer, g connectivity.Grid, title string) error {
	if err := g.Validate(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ValuesSheet); err != nil {
		return fmt.Errorf("failed to name values sheet: %w", err)
	}
	err := writeSheet(f, ValuesSheet, title, g, func(i, j int) interface{} {
		v := g.Values.At(i, j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	})
	if err != nil {
		return err
	}

	if g.Annotations != nil {
		if _, err := f.NewSheet(AnnotationsSheet); err != nil {
			return fmt.Errorf("failed to add annotations sheet: %w", err)
		}
		err := writeSheet(f, AnnotationsSheet, title, g, func(i, j int) interface{} {
			return g.Annotations[i][j]
		})
		if err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// writeSheet lays out the title in A1, column labels on row 2 and one row
// per source label below.
func writeSheet(f *excelize.File, sheet, title string, g connectivity.Grid, cell func(i, j int) interface{}) error {
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	header := make([]interface{}, 0, len(g.ColLabels)+1)
	header = append(header, "Source \\ Target")
	for _, l := range g.ColLabels {
		header = append(header, l)
	}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, l := range g.RowLabels {
		row := make([]interface{}, 0, len(g.ColLabels)+1)
		row = append(row, l)
		for j := range g.ColLabels {
			row = append(row, cell(i, j))
		}
		start, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &row); err != nil {
			return fmt.Errorf("failed to write row %s: %w", l, err)
		}
	}
	return nil
}

// WriteCSV writes g as a labelled CSV matrix. Annotated grids write their
// annotation text, with "0" for empty cells; others write the values.
func WriteCSV(w io.Writer, g connectivity.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, g.ColLabels...)); err != nil {
		return err
	}
	for i, l := range g.RowLabels {
		rec := make([]string, 0, len(g.ColLabels)+1)
		rec = append(rec, l)
		for j := range g.ColLabels {
			if g.Annotations != nil {
				text := g.Annotations[i][j]
				if text == "" {
					text = "0"
				}
				rec = append(rec, text)
				continue
			}
			rec = append(rec, strconv.FormatFloat(g.Values.At(i, j), 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable reads a table from r. Names ending in ".xlsx" are read from
// the first worksheet; anything else is parsed as delimited text.
func ReadTable(name string, r io.Reader) (*tables.Table, error) {
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return tables.Read(tables.TableName(name), r)
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", name)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s has no header", name)
	}
	header := rows[0]
	if len(header) > 0 && header[0] == "" {
		header[0] = "index"
	}
	t := tables.New(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), header)
	for k, row := range rows[1:] {
		if err := t.Append(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", k+2, err)
		}
	}
	return t, nil
}

// ConnectorRecords extracts the source, target and percent connectivity
// columns of a connection report.
func ConnectorRecords(t *tables.Table) ([]connectivity.ConnectorRecord, error) {
	if err := t.Require(SourceColumn, TargetColumn, connectivity.PercentColumn); err != nil {
		return nil, err
	}
	out := make([]connectivity.ConnectorRecord, t.Len())
	for i := range out {
		out[i] = connectivity.ConnectorRecord{
			Source: t.String(i, SourceColumn),
			Target: t.String(i, TargetColumn),
			Value:  t.String(i, connectivity.PercentColumn),
		}
	}
	return out, nil
}

// ReadConnectorReport reads a CSV or XLSX connection report.
func ReadConnectorReport(name string, data []byte) ([]connectivity.ConnectorRecord, error) {
	t, err := ReadTable(name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ConnectorRecords(t)
}
