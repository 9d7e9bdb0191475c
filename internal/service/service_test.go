package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/cache"
	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
	"github.com/davidfague/bmtool/internal/reportstore"
	"github.com/davidfague/bmtool/internal/telemetry"
)

const (
	testNodes = `node_id,node_type_id,pop_name,pos_x,pos_y,pos_z,model_type,model_template,rotation_angle_zaxis
0,100,PN,0,0,0,biophysical,hoc:PN,0
1,100,PN,1,0,0,biophysical,hoc:PN,1.57
2,101,PV,0,2,0,biophysical,hoc:PV,0
`
	testEdges = `source_node_id,target_node_id,is_gap_junction,model_template,dynamics_params,syn_weight,target_query
0,2,False,exp2syn,AMPA.json,1.5,pop_name=='PV'
1,2,False,exp2syn,AMPA.json,2.5,pop_name=='PV'
2,0,False,exp2syn,GABA.json,3,pop_name=='PN'
0,1,True,gap,,0,pop_name=='PN'
1,0,True,gap,,0,pop_name=='PN'
`
	testSpikes = "timestamps,node_ids\n10,0\n20,2\n30,1\n"
)

func mustRead(t *testing.T, name, content string) *tables.Table {
	t.Helper()
	tbl, err := tables.Read(name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("tables.Read(%s) error = %v", name, err)
	}
	return tbl
}

func testSource(t *testing.T) *network.Memory {
	t.Helper()
	return &network.Memory{
		Order:    []string{"net"},
		NodeSets: map[string]*tables.Table{"net": mustRead(t, "net", testNodes)},
		EdgeSets: map[string]*tables.Table{"net_to_net": mustRead(t, "net_to_net", testEdges)},
		SpikeSet: mustRead(t, "spikes", testSpikes),
	}
}

func newTestService(t *testing.T, withCache bool) *PlotService {
	t.Helper()
	cfg := Config{
		Source:   testSource(t),
		Renderer: render.NewRenderer(render.Config{Width: 240, Height: 200}),
		Metrics:  telemetry.NewMetrics(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if withCache {
		m, err := cache.NewManager(cache.Config{FigureCacheSizeMB: 8, FigureTTL: time.Minute, ResultEntries: 8})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		t.Cleanup(func() { m.Close() })
		cfg.Cache = m
	}
	return NewPlotService(cfg)
}

func popParams(extra map[string]string) map[string]string {
	p := map[string]string{
		ParamSources: "net",
		ParamTargets: "net",
		ParamSIDs:    "pop_name",
		ParamTIDs:    "pop_name",
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestMatrixRequestFromParams(t *testing.T) {
	req, err := MatrixRequestFromParams(KindPercent, popParams(map[string]string{ParamMethod: "uni"}))
	if err != nil {
		t.Fatalf("MatrixRequestFromParams() error = %v", err)
	}
	if !req.Selection.PrependPop || !req.Selection.IncludeGap {
		t.Fatalf("expected prepend_pop and include_gap to default to true: %+v", req.Selection)
	}
	if got := req.Params()[ParamMethod]; got != "uni" {
		t.Fatalf("method param = %q", got)
	}

	tests := []struct {
		name   string
		kind   string
		params map[string]string
	}{
		{"unknown kind", "heat", popParams(nil)},
		{"no sources", KindTotal, map[string]string{ParamTargets: "net"}},
		{"bad bool", KindTotal, popParams(map[string]string{ParamIncludeGap: "maybe"})},
		{"bad method", KindGap, popParams(map[string]string{ParamMethod: "total"})},
		{"bad synaptic info", KindTotal, popParams(map[string]string{ParamSynapticInfo: "9"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MatrixRequestFromParams(tt.kind, tt.params)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNoSourceIsConfigurationError(t *testing.T) {
	s := NewPlotService(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := context.Background()
	sel, _ := SelectionFromParams(popParams(nil))
	req, err := MatrixRequestFromParams(KindTotal, popParams(nil))
	if err != nil {
		t.Fatalf("MatrixRequestFromParams() error = %v", err)
	}

	calls := map[string]func() error{
		"matrix":  func() error { _, err := s.Matrix(ctx, req, Options{}); return err },
		"mapping": func() error { _, err := s.MatrixMapping(ctx, req); return err },
		"probability": func() error {
			_, err := s.Probability(ctx, ProbabilityRequest{Selection: sel, Axes: analysis.AllAxes}, Options{})
			return err
		},
		"histogram": func() error {
			_, err := s.ConnectionHistogram(ctx, HistogramRequest{Selection: sel, SourceCell: "PN", TargetCell: "PV"}, Options{})
			return err
		},
		"edge histogram": func() error {
			_, err := s.EdgeHistogram(ctx, EdgeHistogramRequest{Selection: sel, Property: "syn_weight"}, Options{})
			return err
		},
		"distance": func() error {
			_, err := s.Distance(ctx, analysis.DistanceQuery{Source: "net", Target: "net"}, Options{})
			return err
		},
		"positions": func() error { _, err := s.Positions(ctx, SpatialRequest{}, Options{}); return err },
		"rotations": func() error { _, err := s.Rotations(ctx, SpatialRequest{}, Options{}); return err },
		"raster":    func() error { _, err := s.Raster(ctx, RasterRequest{}, Options{}); return err },
		"graph":     func() error { _, err := s.Graph(ctx, GraphRequest{Selection: sel}, Options{}); return err },
		"cells":     func() error { _, _, err := s.Cells(ctx); return err },
		"iclamps":   func() error { _, err := s.Clamps(ctx, Options{}); return err },
		"inspikes":  func() error { _, err := s.InputSpikes(ctx, Options{}); return err },
		"setup":     func() error { _, err := s.Setup(ctx, SetupRequest{}); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Field != "config" {
				t.Fatalf("expected config field, got %v", err)
			}
		})
	}
}

func TestMatrix(t *testing.T) {
	s := newTestService(t, false)
	ctx := context.Background()

	for _, kind := range MatrixKinds {
		t.Run(kind, func(t *testing.T) {
			req, err := MatrixRequestFromParams(kind, popParams(map[string]string{ParamPrependPop: "false"}))
			if err != nil {
				t.Fatalf("MatrixRequestFromParams() error = %v", err)
			}
			out, err := s.Matrix(ctx, req, Options{ReturnDict: true})
			if err != nil {
				t.Fatalf("Matrix() error = %v", err)
			}
			if len(out.PNG) == 0 || out.Grid == nil || out.Mapping == nil {
				t.Fatalf("incomplete output: %+v", out)
			}
			if out.Title == "" {
				t.Fatal("expected default title")
			}
		})
	}
}

func TestMatrixTotalValues(t *testing.T) {
	s := newTestService(t, false)
	req, _ := MatrixRequestFromParams(KindTotal, popParams(map[string]string{ParamPrependPop: "false", ParamIncludeGap: "false"}))

	res, err := s.ReduceMatrix(context.Background(), req)
	if err != nil {
		t.Fatalf("ReduceMatrix() error = %v", err)
	}
	if res.Title != "Total Connections" {
		t.Fatalf("title = %q", res.Title)
	}
	v, ok := res.Grid.Mapping().Get("PN", "PV")
	if !ok || v != "2" {
		t.Fatalf("PN->PV = %q, %v", v, ok)
	}
	v, _ = res.Grid.Mapping().Get("PN", "PN")
	if v != "0" {
		t.Fatalf("PN->PN without gap junctions = %q", v)
	}
}

func TestMatrixFigureCached(t *testing.T) {
	s := newTestService(t, true)
	req, _ := MatrixRequestFromParams(KindTotal, popParams(nil))
	ctx := context.Background()

	first, err := s.MatrixFigure(ctx, req, Options{})
	if err != nil {
		t.Fatalf("MatrixFigure() error = %v", err)
	}
	second, err := s.MatrixFigure(ctx, req, Options{})
	if err != nil {
		t.Fatalf("MatrixFigure() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("cached figure differs")
	}
	stats := s.cache.Stats()
	if stats["figure_cache_len"] != 1 || stats["figure_cache_hits"] != int64(1) {
		t.Fatalf("cache stats = %v", stats)
	}
}

func TestMatrixMapping(t *testing.T) {
	s := newTestService(t, true)
	req, _ := MatrixRequestFromParams(KindPercent, popParams(map[string]string{ParamPrependPop: "false"}))

	data, err := s.MatrixMapping(context.Background(), req)
	if err != nil {
		t.Fatalf("MatrixMapping() error = %v", err)
	}
	if !strings.HasPrefix(string(data), `{"PN":{"PN":`) {
		t.Fatalf("unexpected mapping order: %s", data)
	}
	var decoded map[string]map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["PN"]["PV"] != "100" {
		t.Fatalf("PN->PV = %q", decoded["PN"]["PV"])
	}
	if _, ok := s.cache.GetResult(cache.Key(KindPercent+".json", req.Params())); !ok {
		t.Fatal("expected cached mapping")
	}
}

func TestConnector(t *testing.T) {
	s := newTestService(t, false)
	csv := "Source,Target,Percent connectionivity within possible connections\n" +
		"['PopA'],['PopB'],[10.0]\n" +
		"['PopB'],['PopA'],\"[5.0, 7.0]\"\n"

	out, err := s.Connector(context.Background(), "report.csv", []byte(csv), connectivity.ConnectorOptions{}, Options{ReturnDict: true})
	if err != nil {
		t.Fatalf("Connector() error = %v", err)
	}
	if out.Title != DefaultConnectorTitle {
		t.Fatalf("title = %q", out.Title)
	}
	if v, _ := out.Mapping.Get("PopA", "PopB"); v != "10.00%" {
		t.Fatalf("PopA->PopB = %q", v)
	}

	_, err = s.Connector(context.Background(), "report.csv", []byte("Source,Target\n"), connectivity.ConnectorOptions{}, Options{})
	if !errors.Is(err, network.ErrMissingColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestProbability(t *testing.T) {
	s := newTestService(t, false)
	sel, _ := SelectionFromParams(popParams(nil))

	for _, line := range []bool{false, true} {
		out, err := s.Probability(context.Background(), ProbabilityRequest{Selection: sel, Axes: analysis.AllAxes, Bins: 2, LinePlot: line, Verbose: true}, Options{})
		if err != nil {
			t.Fatalf("Probability() error = %v", err)
		}
		ratios := out.Data.(map[string]connectivity.BinnedRatio)
		if len(ratios) == 0 || len(out.PNG) == 0 {
			t.Fatalf("unexpected output: %v", ratios)
		}
	}

	_, err := s.Probability(context.Background(), ProbabilityRequest{Selection: sel, Bins: 2}, Options{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for no axes, got %v", err)
	}
}

func TestConnectionHistogram(t *testing.T) {
	s := newTestService(t, false)
	sel, _ := SelectionFromParams(popParams(map[string]string{ParamPrependPop: "false"}))

	out, err := s.ConnectionHistogram(context.Background(), HistogramRequest{Selection: sel, SourceCell: "PN", TargetCell: "PV"}, Options{})
	if err != nil {
		t.Fatalf("ConnectionHistogram() error = %v", err)
	}
	hist := out.Data.(analysis.ConnectionHistogram)
	if !hist.Summary.DataAbsent || hist.Summary.Mean != 2 {
		t.Fatalf("summary = %+v", hist.Summary)
	}

	edges, counts := countHistogram([]float64{1, 2, 2, 4})
	if len(edges) != 5 || counts[1] != 2 {
		t.Fatalf("countHistogram() = %v, %v", edges, counts)
	}
}

func TestEdgeHistogram(t *testing.T) {
	s := newTestService(t, false)
	sel, _ := SelectionFromParams(popParams(nil))

	out, err := s.EdgeHistogram(context.Background(), EdgeHistogramRequest{Selection: sel, Property: "syn_weight"}, Options{})
	if err != nil {
		t.Fatalf("EdgeHistogram() error = %v", err)
	}
	if out.Title != "syn_weight Histogram Matrix" {
		t.Fatalf("title = %q", out.Title)
	}
	if _, err := s.EdgeHistogram(context.Background(), EdgeHistogramRequest{Selection: sel}, Options{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDistanceSavesHistogram(t *testing.T) {
	s := newTestService(t, false)
	path := filepath.Join(t.TempDir(), "distance.png")

	out, err := s.Distance(context.Background(), analysis.DistanceQuery{Source: "net", Target: "net", SourceCellID: 0, IgnoreZ: true}, Options{SaveFile: path})
	if err != nil {
		t.Fatalf("Distance() error = %v", err)
	}
	if len(out.SecondaryPNG) == 0 {
		t.Fatal("expected distance histogram")
	}
	res := out.Data.(analysis.DistanceResult)
	if len(res.Distances) != 2 {
		t.Fatalf("distances = %v", res.Distances)
	}
	for _, p := range []string{path, filepath.Join(filepath.Dir(path), "distance_hist.png")} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
}

func TestPositionsAndRotations(t *testing.T) {
	s := newTestService(t, false)
	req := SpatialRequest{Query: analysis.PositionQuery{GroupBy: "pop_name"}}

	out, err := s.Positions(context.Background(), req, Options{})
	if err != nil {
		t.Fatalf("Positions() error = %v", err)
	}
	if sp := out.Data.(analysis.Spatial); len(sp.Groups) != 2 || out.Title != "3D positions" {
		t.Fatalf("positions = %+v, title %q", sp, out.Title)
	}

	out, err = s.Rotations(context.Background(), req, Options{Title: "rot"})
	if err != nil {
		t.Fatalf("Rotations() error = %v", err)
	}
	if sp := out.Data.(analysis.Spatial); len(sp.Groups[0].Directions) != len(sp.Groups[0].Points) {
		t.Fatalf("rotations = %+v", sp)
	}

	_, err = s.Positions(context.Background(), SpatialRequest{Query: analysis.PositionQuery{GroupBy: "layer"}}, Options{})
	if !errors.Is(err, network.ErrMissingColumn) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestRaster(t *testing.T) {
	s := newTestService(t, false)

	out, err := s.Raster(context.Background(), RasterRequest{}, Options{})
	if err != nil {
		t.Fatalf("Raster() error = %v", err)
	}
	groups := out.Data.([]analysis.SpikeGroup)
	if len(groups) != 2 || groups[0].Population != "PN" {
		t.Fatalf("groups = %+v", groups)
	}

	_, err = s.Raster(context.Background(), RasterRequest{ColorMap: map[string]string{"PN": "red"}}, Options{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected color map error, got %v", err)
	}
}

func TestGraph(t *testing.T) {
	s := newTestService(t, false)
	sel, _ := SelectionFromParams(popParams(map[string]string{ParamPrependPop: "false"}))
	path := filepath.Join(t.TempDir(), "graph.dot")

	out, err := s.Graph(context.Background(), GraphRequest{Selection: sel}, Options{SaveFile: path})
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	dot := string(out.DOT)
	for _, want := range []string{"digraph Network_Graph {", "PN -> PV", "label=exp2syn"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	saved, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(saved, out.DOT) {
		t.Fatalf("saved DOT mismatch: %v", err)
	}
}

func TestCells(t *testing.T) {
	s := newTestService(t, false)
	cells, bio, err := s.Cells(context.Background())
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if bio != "net" || len(cells) != 1 {
		t.Fatalf("cells = %+v, bio %q", cells, bio)
	}
}

func TestExecuteJob(t *testing.T) {
	s := newTestService(t, false)
	store, err := reportstore.NewStore(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	job := &reportstore.RenderJob{Kind: KindTotal, Params: popParams(map[string]string{"title": "All"})}
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := s.ExecuteJob(context.Background(), store, job.ID); err != nil {
		t.Fatalf("ExecuteJob() error = %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.ReportID == "" || got.Phase != PhaseStore {
		t.Fatalf("job = %+v", got)
	}
	report, err := store.GetReport(got.ReportID)
	if err != nil || report == nil {
		t.Fatalf("GetReport() = %v, %v", report, err)
	}
	if report.Title != "All" || len(report.Grid.RowLabels) != 2 {
		t.Fatalf("report = %+v", report)
	}

	bad := &reportstore.RenderJob{Kind: "heat", Params: popParams(nil)}
	if err := store.CreateJob(bad); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := s.ExecuteJob(context.Background(), store, bad.ID); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	s := newTestService(t, false)
	sel := analysis.Selection{Sources: []string{"cortex"}, Targets: []string{"net"}}
	_, err := s.Matrix(context.Background(), MatrixRequest{Kind: KindTotal, Selection: sel}, Options{})
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func withInputs(t *testing.T, s *PlotService) {
	t.Helper()
	s.source.(*network.Memory).InputSet = network.Inputs{
		TStop: 100,
		Clamps: []network.CurrentClamp{
			{Name: "step", NodeSet: "PN", Amps: []float64{0.5}, Delays: []float64{10}, Durations: []float64{20}},
		},
		SpikeTrains: []network.SpikeTrain{
			{Name: "bg", NodeSet: "thalamus", Spikes: mustRead(t, "bg", "timestamps,node_ids\n5,0\n15,1\n")},
		},
	}
}

func TestClampsAndInputSpikes(t *testing.T) {
	s := newTestService(t, false)

	out, err := s.Clamps(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Clamps() error = %v", err)
	}
	if len(out.PNG) != 0 || len(out.Data.([]analysis.ClampTrace)) != 0 {
		t.Fatalf("expected no figure without clamps, got %d bytes", len(out.PNG))
	}

	withInputs(t, s)
	out, err = s.Clamps(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Clamps() error = %v", err)
	}
	if !bytes.HasPrefix(out.PNG, []byte("\x89PNG")) {
		t.Fatalf("expected PNG output")
	}
	traces := out.Data.([]analysis.ClampTrace)
	if len(traces) != 1 || traces[0].Label() != "I Clamp to: PN" {
		t.Fatalf("traces = %+v", traces)
	}

	out, err = s.InputSpikes(context.Background(), Options{})
	if err != nil {
		t.Fatalf("InputSpikes() error = %v", err)
	}
	if !bytes.HasPrefix(out.PNG, []byte("\x89PNG")) {
		t.Fatalf("expected PNG output")
	}
	trains := out.Data.([]analysis.InputTrain)
	if len(trains) != 1 || len(trains[0].Times) != 2 {
		t.Fatalf("trains = %+v", trains)
	}
}

func TestSetup(t *testing.T) {
	s := newTestService(t, false)
	dir := t.TempDir()

	rep, err := s.Setup(context.Background(), SetupRequest{Dir: dir})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if rep.Network != "net" || rep.Biophysical != "net" {
		t.Fatalf("report network = %q, biophysical = %q", rep.Network, rep.Biophysical)
	}
	var names []string
	for _, st := range rep.Steps {
		names = append(names, st.Name)
	}
	if got := strings.Join(names, ","); got != "probability,total,positions" {
		t.Fatalf("steps = %s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "total.png")); err != nil {
		t.Fatalf("expected saved matrix figure: %v", err)
	}

	withInputs(t, s)
	rep, err = s.Setup(context.Background(), SetupRequest{Network: "net"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if len(rep.Steps) != 5 || rep.Steps[1].Name != "iclamps" || rep.Steps[2].Name != "inspikes" {
		t.Fatalf("steps = %+v", rep.Steps)
	}

	_, err = s.Setup(context.Background(), SetupRequest{Network: "cortex"})
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
