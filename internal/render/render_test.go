package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidfague/bmtool/internal/connectivity"
)

func testGrid(t *testing.T) connectivity.Grid {
	t.Helper()
	m, err := connectivity.NewMatrixFrom([][]float64{{1, 2}, {math.NaN(), 4}})
	if err != nil {
		t.Fatalf("NewMatrixFrom() error = %v", err)
	}
	return connectivity.Grid{
		Values:      m,
		Annotations: [][]string{{"1", "2"}, {"", "4\n(1)"}},
		RowLabels:   []string{"PN", "PV"},
		ColLabels:   []string{"PN", "PV"},
	}
}

func decodePNG(t *testing.T, data []byte, w, h int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		t.Fatalf("image size = %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}
}

func TestHeatmap(t *testing.T) {
	r := NewRenderer(Config{Width: 400, Height: 300})

	fig, err := r.Heatmap(testGrid(t), "Total Synapses", Options{ReturnAsMapping: true})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	decodePNG(t, fig.PNG, 400, 300)
	if fig.Mapping == nil {
		t.Fatal("expected mapping")
	}
	if v, ok := fig.Mapping.Get("PV", "PN"); !ok || v != "0" {
		t.Fatalf("mapping PV->PN = %q, %v", v, ok)
	}

	fig, err = r.Heatmap(testGrid(t), "", Options{})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	if fig.Mapping != nil {
		t.Fatal("mapping returned without ReturnAsMapping")
	}
}

func TestHeatmapShapeMismatch(t *testing.T) {
	r := NewRenderer(Config{})
	g := testGrid(t)
	g.RowLabels = g.RowLabels[:1]
	if _, err := r.Heatmap(g, "", Options{}); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestHeatmapEmpty(t *testing.T) {
	r := NewRenderer(Config{Width: 200, Height: 200})
	fig, err := r.Heatmap(connectivity.Grid{Values: connectivity.NewMatrix(0, 0)}, "empty", Options{})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	decodePNG(t, fig.PNG, 200, 200)
}

func TestSaveFile(t *testing.T) {
	r := NewRenderer(Config{Width: 200, Height: 150})
	path := filepath.Join(t.TempDir(), "out", "matrix.png")

	fig, err := r.Heatmap(testGrid(t), "saved", Options{SavePath: path})
	if err != nil {
		t.Fatalf("Heatmap() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(data, fig.PNG) {
		t.Fatal("saved file differs from returned PNG")
	}
}

func TestViewerDisplay(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100, Display: DisplayViewer})
	var opened []string
	r.open = func(path string) error {
		opened = append(opened, path)
		return nil
	}

	if _, err := r.Histogram([]float64{0, 1, 2}, []float64{3, 1}, "h", "x", "y", "", Options{}); err != nil {
		t.Fatalf("Histogram() error = %v", err)
	}
	if len(opened) != 1 || !strings.HasSuffix(opened[0], ".png") {
		t.Fatalf("opened = %v", opened)
	}
	os.Remove(opened[0])
}

func TestParseDisplayMode(t *testing.T) {
	tests := []struct {
		in   string
		want DisplayMode
		err  bool
	}{
		{"", DisplayNone, false},
		{"none", DisplayNone, false},
		{"Viewer", DisplayViewer, false},
		{"show", DisplayViewer, false},
		{"window", DisplayNone, true},
	}
	for _, tt := range tests {
		got, err := ParseDisplayMode(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseDisplayMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestPlots(t *testing.T) {
	r := NewRenderer(Config{Width: 320, Height: 240})

	t.Run("series grid", func(t *testing.T) {
		g := SeriesGrid{
			RowLabels: []string{"PN"},
			ColLabels: []string{"PN", "PV"},
			Cells: [][]*Series{{
				{X: []float64{0, 1, 2}, Y: []float64{0.5, math.NaN(), 1}},
				nil,
			}},
		}
		for _, style := range []SeriesStyle{StyleBars, StyleLines} {
			fig, err := r.SeriesGrid(g, "Probability", style, Options{})
			if err != nil {
				t.Fatalf("SeriesGrid() error = %v", err)
			}
			decodePNG(t, fig.PNG, 320, 240)
		}
		g.Cells = [][]*Series{{nil}}
		if _, err := r.SeriesGrid(g, "", StyleBars, Options{}); err == nil {
			t.Fatal("expected ragged grid error")
		}
	})

	t.Run("histogram", func(t *testing.T) {
		if _, err := r.Histogram([]float64{0, 1}, []float64{1, 2}, "", "", "", "", Options{}); err == nil {
			t.Fatal("expected edges/counts error")
		}
		fig, err := r.Histogram([]float64{0, 1, 2}, []float64{1, 2}, "h", "x", "y", "mean 1.00 median 1.00", Options{})
		if err != nil {
			t.Fatalf("Histogram() error = %v", err)
		}
		decodePNG(t, fig.PNG, 320, 240)
	})

	t.Run("scatter", func(t *testing.T) {
		sets := []PointSet{{
			Name:       "PN",
			Color:      color.RGBA{255, 0, 0, 255},
			Points:     [][3]float64{{0, 0, 0}, {10, 5, 2}},
			Directions: [][3]float64{{1, 0, 0}, {0, 1, 0}},
		}}
		for _, flat := range []bool{false, true} {
			fig, err := r.Scatter(sets, "Cell positions", flat, Arrows{}, Options{})
			if err != nil {
				t.Fatalf("Scatter() error = %v", err)
			}
			decodePNG(t, fig.PNG, 320, 240)
		}
	})

	t.Run("raster", func(t *testing.T) {
		sets := []SpikeSet{{Name: "PN", Color: color.Black, Times: []float64{1, 2}, NodeIDs: []float64{0, 1}}}
		fig, err := r.Raster(sets, "Spikes", Options{})
		if err != nil {
			t.Fatalf("Raster() error = %v", err)
		}
		decodePNG(t, fig.PNG, 320, 240)

		sets[0].NodeIDs = sets[0].NodeIDs[:1]
		if _, err := r.Raster(sets, "", Options{}); err == nil {
			t.Fatal("expected length mismatch error")
		}
	})
}

func TestPopulationColors(t *testing.T) {
	got, err := PopulationColors([]string{"PN", "PV"}, nil)
	if err != nil {
		t.Fatalf("PopulationColors() error = %v", err)
	}
	if len(got) != 2 || got["PN"] == got["PV"] {
		t.Fatalf("default colors = %v", got)
	}

	got, err = PopulationColors([]string{"PN"}, map[string]string{"PN": "#ff0000"})
	if err != nil {
		t.Fatalf("PopulationColors() error = %v", err)
	}
	if got["PN"] != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("PN color = %v", got["PN"])
	}

	if _, err := PopulationColors([]string{"PN", "SOM"}, map[string]string{"PN": "#ff0000"}); err == nil || !strings.Contains(err.Error(), "SOM") {
		t.Fatalf("expected missing population error, got %v", err)
	}
}

func TestDOT(t *testing.T) {
	data, err := DOT("network", []GraphEdge{
		{Source: "PN", Target: "PV", Labels: []string{"AMPA", "NMDA"}},
		{Source: "PN", Target: "PN", Labels: []string{"AMPA"}},
		{Source: "PV", Target: "PN"},
	})
	if err != nil {
		t.Fatalf("DOT() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{"digraph network {", "PN -> PV", "PN -> PN", "PV -> PN", `label="AMPA\nNMDA"`} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q:\n%s", want, out)
		}
	}

	if _, err := DOT("g", []GraphEdge{{Source: "PN"}}); err == nil {
		t.Fatal("expected endpoint error")
	}
}
