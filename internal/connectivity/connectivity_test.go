package connectivity

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		exclude []string
		key     string
		want    string
		ok      bool
	}{
		{name: "bracket", raw: "['PopA']", want: "PopA", ok: true},
		{name: "gap", raw: "['PopA']_Gap_junction", want: "PopA-Gap", ok: true},
		{name: "excluded", raw: "['Virt']", exclude: []string{"Virt"}, ok: false},
		{name: "exclusion wins over bracket", raw: "['PopA']_Virt", exclude: []string{"Virt"}, ok: false},
		{name: "plain passthrough", raw: "PopB", want: "PopB", ok: true},
		{name: "plain keeps Gap text", raw: "PopB_Gap", want: "PopB_Gap", ok: true},
		{name: "assembly", raw: "['PopA']_assem1", key: "_assem", want: "PopA_assem", ok: true},
		{name: "gap and assembly", raw: "['PopA']_Gap_assem", key: "_assem", want: "PopA-Gap_assem", ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "empty bracket", raw: "['']", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLabel(tc.raw, tc.exclude, tc.key)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Equal(t, tc.want, got.String())
			}
		})
	}
}

func TestLabelTagsStaySeparate(t *testing.T) {
	l, ok := ParseLabel("['PV']_Gap_assem", nil, "_assem")
	require.True(t, ok)
	require.Equal(t, "PV", l.Base)
	require.True(t, l.Gap)
	require.True(t, l.InAssembly())
	require.Equal(t, "PV-Gap", l.WithoutAssembly().String())
}

func TestDecodeStatistic(t *testing.T) {
	s, err := DecodeStatistic("[0.1 0.5 9.0]")
	require.NoError(t, err)
	require.Equal(t, KindBidirectional, s.Kind())
	b, ok := s.Backward()
	require.True(t, ok)
	require.Equal(t, 0.5, b)
	require.Equal(t, []float64{0.1, 0.5, 9.0}, s.Values())

	s, err = DecodeStatistic("[0.3]")
	require.NoError(t, err)
	require.Equal(t, KindSymmetric, s.Kind())

	s, err = DecodeStatistic(0.25)
	require.NoError(t, err)
	require.Equal(t, 0.25, s.Forward())

	s, err = DecodeStatistic([]float64{2, 7})
	require.NoError(t, err)
	require.Equal(t, KindDirected, s.Kind())
	_, ok = s.Backward()
	require.False(t, ok)

	_, err = DecodeStatistic("[1 2 3 4]")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeStatistic("[]")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeStatistic(struct{}{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeStatistic("[0.1 abc]")
	require.Error(t, err)
}

func TestReduceAssembly(t *testing.T) {
	v, err := ReduceAssemblyValues([][]float64{{0.2}, {0.4}})
	require.NoError(t, err)
	require.InDelta(t, 0.3, v, 1e-12)

	v, err = ReduceAssemblyValues([][]float64{{0.1, 0.5, 9.0}})
	require.NoError(t, err)
	require.InDelta(t, 0.3, v, 1e-12)

	v, err = ReduceAssemblyValues([][]float64{{0.2, 100}, {0.4}})
	require.NoError(t, err)
	require.InDelta(t, 0.3, v, 1e-12)

	_, err = ReduceAssemblyValues([][]float64{{1, 2, 3, 4}})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	require.True(t, math.IsNaN(ReduceAssembly(nil)))
}

func TestBuildBidirectional(t *testing.T) {
	obs, err := NewObservation("A", "B", []float64{0.1, 0.5, 9})
	require.NoError(t, err)

	m := Build([]string{"A", "B"}, []Observation{obs})
	require.Equal(t, 0.1, m.At(0, 1))
	require.Equal(t, 0.5, m.At(1, 0))
	require.Equal(t, 0.0, m.At(0, 0))
	require.Equal(t, 0.0, m.At(1, 1))
}

func TestBuildIgnoresUnknownAndLastWriteWins(t *testing.T) {
	obs := []Observation{
		{Source: "A", Target: "B", Value: Symmetric(1)},
		{Source: "A", Target: "Z", Value: Symmetric(5)},
		{Source: "A", Target: "B", Value: Directed(2, 40)},
	}
	m := Build([]string{"A", "B"}, obs)
	require.Equal(t, 2.0, m.At(0, 1))
	require.Equal(t, 0.0, m.At(1, 0))
}

func TestBuildDeterministic(t *testing.T) {
	pops := []string{"A", "B", "C"}
	obs := []Observation{
		{Source: "A", Target: "C", Value: Bidirectional(1, 2, 3)},
		{Source: "C", Target: "B", Value: Symmetric(4)},
		{Source: "B", Target: "B", Value: Directed(5, 6)},
	}
	first := Build(pops, obs)
	for i := 0; i < 10; i++ {
		require.True(t, first.Equal(Build(pops, obs)))
	}
}

func TestBuildRect(t *testing.T) {
	obs := []Observation{
		{Source: "A", Target: "X", Value: Bidirectional(1, 2, 0)},
		{Source: "B", Target: "Y", Value: Symmetric(3)},
	}
	m := BuildRect([]string{"A", "B"}, []string{"X", "Y", "Z"}, obs)
	require.Equal(t, 2, m.Rows())
	require.Equal(t, 3, m.Cols())
	require.Equal(t, 1.0, m.At(0, 0))
	require.Equal(t, 3.0, m.At(1, 1))
}

func TestBuildEmpty(t *testing.T) {
	m := Build(nil, nil)
	require.Equal(t, 0, m.Rows())
	require.Equal(t, 0, m.Cols())
}

func grid(t *testing.T, rows [][]float64, rl, cl []string) Grid {
	t.Helper()
	m, err := NewMatrixFrom(rows)
	require.NoError(t, err)
	return Grid{Values: m, RowLabels: rl, ColLabels: cl}
}

func TestFilterRowsDropsZeroRow(t *testing.T) {
	g := grid(t, [][]float64{{0, 0}, {1, 2}}, []string{"r0", "r1"}, []string{"c0", "c1"})
	g.Annotations = [][]string{{"a", "b"}, {"c", "d"}}

	out := FilterRows(g)
	require.Equal(t, []string{"r1"}, out.RowLabels)
	require.Equal(t, []string{"c0", "c1"}, out.ColLabels)
	require.Equal(t, [][]float64{{1, 2}}, out.Values.Slices())
	require.Equal(t, [][]string{{"c", "d"}}, out.Annotations)
}

func TestFilterRowsDropsNaNRow(t *testing.T) {
	nan := math.NaN()
	g := grid(t, [][]float64{{1, nan}, {nan, nan}}, []string{"r0", "r1"}, []string{"c0", "c1"})
	out := FilterRows(g)
	require.Equal(t, []string{"r0"}, out.RowLabels)
}

func TestFilterMixedNaNAndZeroKept(t *testing.T) {
	g := grid(t, [][]float64{{0, math.NaN()}}, []string{"r0"}, []string{"c0", "c1"})
	out := FilterRows(g)
	require.Equal(t, []string{"r0"}, out.RowLabels)
}

func TestFilterFullyPopulatedIsIdentity(t *testing.T) {
	g := grid(t, [][]float64{{1, 2}, {3, 4}}, []string{"A", "B"}, []string{"X", "Y"})
	out := FilterRowsAndColumns(g)
	require.True(t, g.Values.Equal(out.Values))
	require.Equal(t, g.RowLabels, out.RowLabels)
	require.Equal(t, g.ColLabels, out.ColLabels)
}

func TestFilterColumnsSeeRowFilteredMatrix(t *testing.T) {
	// r0 is all NaN and goes first; c0 is then all zero and goes too.
	nan := math.NaN()
	g := grid(t, [][]float64{
		{nan, nan, nan},
		{0, 5, 0},
		{0, 0, 7},
	}, []string{"r0", "r1", "r2"}, []string{"c0", "c1", "c2"})

	out := FilterRowsAndColumns(g)
	require.Equal(t, []string{"r1", "r2"}, out.RowLabels)
	require.Equal(t, []string{"c1", "c2"}, out.ColLabels)
	require.Equal(t, [][]float64{{5, 0}, {0, 7}}, out.Values.Slices())
}

func TestFilterRowsAndColumnsIdempotent(t *testing.T) {
	g := grid(t, [][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{math.NaN(), 2, 0},
	}, []string{"a", "b", "c"}, []string{"x", "y", "z"})
	once := FilterRowsAndColumns(g)
	twice := FilterRowsAndColumns(once)
	require.True(t, once.Values.Equal(twice.Values))
	require.Equal(t, once.RowLabels, twice.RowLabels)
	require.Equal(t, once.ColLabels, twice.ColLabels)
}

func TestFilterRowsAndColumnsSinglePass(t *testing.T) {
	// Dropping the NaN column x leaves row a all zero; a is still kept.
	nan := math.NaN()
	g := grid(t, [][]float64{{nan, 0}, {nan, 1}}, []string{"a", "b"}, []string{"x", "y"})
	out := FilterRowsAndColumns(g)
	require.Equal(t, []string{"a", "b"}, out.RowLabels)
	require.Equal(t, []string{"y"}, out.ColLabels)
	require.Equal(t, [][]float64{{0}, {1}}, out.Values.Slices())
}

func TestRatio(t *testing.T) {
	got, err := Ratio([]float64{0, 2, 4}, []float64{0, 2, 2})
	require.NoError(t, err)
	require.True(t, math.IsNaN(got[0]))
	require.Equal(t, []float64{1, 2}, got[1:])

	got, err = Ratio([]float64{3}, []float64{0})
	require.NoError(t, err)
	require.True(t, math.IsInf(got[0], 1))

	_, err = Ratio([]float64{1}, nil)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestBinnedCountsRatio(t *testing.T) {
	b := BinnedCounts{
		Edges:     []float64{0, 10, 20, 30},
		Connected: []float64{1, 0, 0},
		Possible:  []float64{2, 4, 0},
	}
	r, err := b.Ratio()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 10, 20}, r.X)
	require.Equal(t, 0.5, r.Y[0])
	require.Equal(t, 0.0, r.Y[1])
	require.True(t, math.IsNaN(r.Y[2]))
}

func TestMappingOrderAndDefaults(t *testing.T) {
	g := grid(t, [][]float64{{1, 2}, {3, 4}}, []string{"B", "A"}, []string{"Y", "X"})
	g.Annotations = [][]string{{"1\n(0)", ""}, {"3", "4"}}

	m := g.Mapping()
	v, ok := m.Get("B", "X")
	require.True(t, ok)
	require.Equal(t, "0", v)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `{"B":{"Y":"1\n(0)","X":"0"},"A":{"Y":"3","X":"4"}}`, string(b))
}

func TestReduceConnector(t *testing.T) {
	records := []ConnectorRecord{
		{Source: "['PN']", Target: "['PV']", Value: "[10.0 20.0 1.0]"},
		{Source: "['PV']", Target: "['PV']", Value: "[5.0]"},
		{Source: "['PN']_assem1", Target: "['PV']", Value: "[2.0]"},
		{Source: "['PN']_assem2", Target: "['PV']", Value: "[4.0 8.0 1.0]"},
		{Source: "['Virt']", Target: "['PV']", Value: "[99]"},
	}
	res, err := ReduceConnector(records, ConnectorOptions{Exclude: []string{"Virt"}, AssemblyKey: "_assem"})
	require.NoError(t, err)

	require.Equal(t, []string{"PN", "PN_assem", "PV"}, res.Populations)
	m := res.Grid.Values
	// The averaged assembly row overrides the plain PN -> PV value.
	require.InDelta(t, (2.0+4.0+8.0)/3, m.At(0, 2), 1e-12)
	// The replacement is a single value, so nothing is written backward.
	require.Equal(t, 0.0, m.At(2, 0))
	require.Equal(t, 4.0, m.At(1, 2))
	require.Equal(t, 8.0, m.At(2, 1))
	require.Equal(t, 5.0, m.At(2, 2))
	require.Equal(t, "5.00%", res.Grid.Annotations[2][2])
}

func TestReduceConnectorUnbracketedAssembly(t *testing.T) {
	records := []ConnectorRecord{
		{Source: "PN_assem", Target: "PV", Value: "[10.0]"},
		{Source: "PN_assem", Target: "PV", Value: "[20.0]"},
	}
	res, err := ReduceConnector(records, ConnectorOptions{AssemblyKey: "_assem"})
	require.NoError(t, err)

	require.Equal(t, []string{"PN", "PN_assem", "PV"}, res.Populations)
	m := res.Grid.Values
	require.InDelta(t, 15.0, m.At(0, 2), 1e-12)
	require.Equal(t, 20.0, m.At(1, 2))
}

func TestReduceConnectorPopOrder(t *testing.T) {
	records := []ConnectorRecord{
		{Source: "A", Target: "B", Value: "1"},
		{Source: "C", Target: "A", Value: "2"},
	}
	res, err := ReduceConnector(records, ConnectorOptions{PopOrder: []string{"C", "A", "Missing"}})
	require.NoError(t, err)
	require.Equal(t, []string{"C", "A"}, res.Populations)
	require.Equal(t, 2.0, res.Grid.Values.At(0, 1))
}

func TestReduceConnectorUnsupported(t *testing.T) {
	_, err := ReduceConnector([]ConnectorRecord{{Source: "A", Target: "B", Value: "[1 2 3 4]"}}, ConnectorOptions{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
