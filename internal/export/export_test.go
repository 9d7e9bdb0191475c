package export

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
)

func grid(t *testing.T) connectivity.Grid {
	t.Helper()
	m, err := connectivity.NewMatrixFrom([][]float64{{12.5, math.NaN()}, {0, 3}})
	require.NoError(t, err)
	return connectivity.Grid{
		Values:      m,
		Annotations: [][]string{{"12.50%", ""}, {"0.00%", "3.00%"}},
		RowLabels:   []string{"PN", "PV"},
		ColLabels:   []string{"PN", "PV"},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, grid(t), "Percent Connectivity"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ValuesSheet, AnnotationsSheet}, f.GetSheetList())

	title, err := f.GetCellValue(ValuesSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Percent Connectivity", title)

	v, err := f.GetCellValue(ValuesSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "12.5", v)

	blank, err := f.GetCellValue(ValuesSheet, "C3")
	require.NoError(t, err)
	assert.Empty(t, blank)

	label, err := f.GetCellValue(AnnotationsSheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "PV", label)

	text, err := f.GetCellValue(AnnotationsSheet, "C4")
	require.NoError(t, err)
	assert.Equal(t, "3.00%", text)
}

func TestWriteXLSXWithoutAnnotations(t *testing.T) {
	g := grid(t)
	g.Annotations = nil

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, g, ""))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{ValuesSheet}, f.GetSheetList())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, grid(t)))
	assert.Equal(t, ",PN,PV\nPN,12.50%,0\nPV,0.00%,3.00%\n", buf.String())

	g := grid(t)
	g.Annotations = nil
	buf.Reset()
	require.NoError(t, WriteCSV(&buf, g))
	assert.Equal(t, ",PN,PV\nPN,12.5,NaN\nPV,0,3\n", buf.String())

	g.ColLabels = nil
	assert.ErrorIs(t, WriteCSV(&buf, g), connectivity.ErrShapeMismatch)
}

const report = `Source,Target,Percent connectionivity within possible connections
['PopA'],['PopB'],[12.5]
['PopB'],['PopA'],"[1.0, 2.0, 0.5]"
`

func TestReadConnectorReportCSV(t *testing.T) {
	recs, err := ReadConnectorReport("report.csv", []byte(report))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, connectivity.ConnectorRecord{Source: "['PopA']", Target: "['PopB']", Value: "[12.5]"}, recs[0])
	assert.Equal(t, "[1.0, 2.0, 0.5]", recs[1].Value)
}

func TestReadConnectorReportXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{SourceColumn, TargetColumn, connectivity.PercentColumn},
		{"['PopA']", "['PopB']", "[12.5]"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	recs, err := ReadConnectorReport("report.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "['PopB']", recs[0].Target)
}

func TestReadConnectorReportMissingColumn(t *testing.T) {
	_, err := ReadConnectorReport("report.csv", []byte("Source,Target\nA,B\n"))
	var mc *tables.MissingColumnError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, connectivity.PercentColumn, mc.Column)
	assert.True(t, strings.Contains(err.Error(), "Percent"))
}
