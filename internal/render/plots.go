package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/davidfague/bmtool/pkg/colormap"
)

// SeriesStyle selects how a series is drawn.
type SeriesStyle int

const (
	StyleBars SeriesStyle = iota
	StyleLines
)

// Series is one x/y series. Bars start at X and span to the next X.
type Series struct {
	X []float64
	Y []float64
}

// SeriesGrid is a grid of small plots, one per source and target.
// Nil cells stay empty.
type SeriesGrid struct {
	RowLabels []string
	ColLabels []string
	Cells     [][]*Series
}

// SeriesGrid draws one small plot per cell, with target labels under the
// last row and source labels left of the first column.
func (r *Renderer) SeriesGrid(g SeriesGrid, title string, style SeriesStyle, opts Options) (Figure, error) {
	rows, cols := len(g.RowLabels), len(g.ColLabels)
	if len(g.Cells) != rows {
		return Figure{}, fmt.Errorf("series grid has %d rows for %d labels", len(g.Cells), rows)
	}
	dc := r.newContext()
	drawTitle(dc, title)

	if rows > 0 && cols > 0 {
		left, top := 110.0, 50.0
		cw := (float64(dc.Width()) - left - 30) / float64(cols)
		ch := (float64(dc.Height()) - top - 70) / float64(rows)
		for i := 0; i < rows; i++ {
			if len(g.Cells[i]) != cols {
				return Figure{}, fmt.Errorf("series grid row %d has %d cells for %d labels", i, len(g.Cells[i]), cols)
			}
			for j := 0; j < cols; j++ {
				f := frame{left + float64(j)*cw, top + float64(i)*ch, cw, ch}.inner(10)
				drawAxesBox(dc, f)
				if s := g.Cells[i][j]; s != nil {
					drawSeries(dc, f, *s, style, colormap.Tab10.AtIndex(0))
				}
				dc.SetColor(color.Black)
				if i == rows-1 {
					dc.DrawStringAnchored(g.ColLabels[j], f.x+f.w/2, f.y+f.h+14, 0.5, 0.5)
				}
				if j == 0 {
					dc.DrawStringAnchored(g.RowLabels[i], f.x-6, f.y+f.h/2, 1, 0.5)
				}
			}
		}
		dc.SetColor(color.Black)
		dc.DrawStringAnchored("Target", float64(dc.Width())/2, float64(dc.Height())-16, 0.5, 0.5)
		dc.Push()
		dc.RotateAbout(gg.Radians(-90), 14, float64(dc.Height())/2)
		dc.DrawStringAnchored("Source", 14, float64(dc.Height())/2, 0.5, 0.5)
		dc.Pop()
	}

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

// Histogram draws pre-binned counts with axis labels and an optional
// legend line.
func (r *Renderer) Histogram(edges, counts []float64, title, xlabel, ylabel, legend string, opts Options) (Figure, error) {
	if len(edges) != len(counts)+1 {
		return Figure{}, fmt.Errorf("%d edges for %d counts", len(edges), len(counts))
	}
	dc := r.newContext()
	drawTitle(dc, title)
	f := frame{70, 50, float64(dc.Width()) - 100, float64(dc.Height()) - 110}
	drawAxesBox(dc, f)
	s := Series{X: edges, Y: counts}
	drawSeries(dc, f, s, StyleBars, colormap.Tab10.AtIndex(0))
	drawTicks(dc, f, edges[0], edges[len(edges)-1], 0, maxOf(counts))

	drawAxisLabels(dc, f, xlabel, ylabel)
	if legend != "" {
		drawLegend(dc, f, []legendEntry{{legend, colormap.Tab10.AtIndex(0)}})
	}

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) && x > m {
			m = x
		}
	}
	return m
}

// drawSeries draws s inside f. Bar series with one more X than Y use the
// extra X as the right edge of the last bar. NaN and infinite points are
// skipped.
func drawSeries(dc *gg.Context, f frame, s Series, style SeriesStyle, c color.Color) {
	n := len(s.Y)
	if n == 0 || len(s.X) < n {
		return
	}
	xlo, xhi := s.X[0], s.X[len(s.X)-1]
	if style == StyleBars && len(s.X) == n && n > 1 {
		xhi += s.X[n-1] - s.X[n-2]
	}
	ymax := maxOf(s.Y)
	if ymax == 0 {
		ymax = 1
	}
	dc.SetColor(c)
	switch style {
	case StyleLines:
		started := false
		for k := 0; k < n; k++ {
			y := s.Y[k]
			if math.IsNaN(y) || math.IsInf(y, 0) {
				started = false
				continue
			}
			px := scale(s.X[k], xlo, xhi, f.x, f.x+f.w)
			py := scale(y, 0, ymax, f.y+f.h, f.y)
			if started {
				dc.LineTo(px, py)
			} else {
				dc.MoveTo(px, py)
				started = true
			}
		}
		dc.SetLineWidth(1.5)
		dc.Stroke()
	default:
		for k := 0; k < n; k++ {
			y := s.Y[k]
			if math.IsNaN(y) || math.IsInf(y, 0) {
				continue
			}
			right := xhi
			if k+1 < len(s.X) {
				right = s.X[k+1]
			}
			x0 := scale(s.X[k], xlo, xhi, f.x, f.x+f.w)
			x1 := scale(right, xlo, xhi, f.x, f.x+f.w)
			top := scale(y, 0, ymax, f.y+f.h, f.y)
			dc.DrawRectangle(x0, top, math.Max(x1-x0-1, 1), f.y+f.h-top)
			dc.Fill()
		}
	}
}

func drawAxesBox(dc *gg.Context, f frame) {
	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawRectangle(f.x, f.y, f.w, f.h)
	dc.Stroke()
}

func drawTicks(dc *gg.Context, f frame, xlo, xhi, ylo, yhi float64) {
	dc.SetColor(color.Black)
	for k := 0; k <= 4; k++ {
		t := float64(k) / 4
		x := f.x + t*f.w
		dc.DrawLine(x, f.y+f.h, x, f.y+f.h+4)
		dc.Stroke()
		dc.DrawStringAnchored(strconv.FormatFloat(xlo+t*(xhi-xlo), 'g', 3, 64), x, f.y+f.h+16, 0.5, 0.5)
		y := f.y + f.h - t*f.h
		dc.DrawLine(f.x-4, y, f.x, y)
		dc.Stroke()
		dc.DrawStringAnchored(strconv.FormatFloat(ylo+t*(yhi-ylo), 'g', 3, 64), f.x-6, y, 1, 0.5)
	}
}

type legendEntry struct {
	label string
	color color.Color
}

func drawLegend(dc *gg.Context, f frame, entries []legendEntry) {
	w := 0.0
	for _, e := range entries {
		if lw, _ := dc.MeasureString(e.label); lw > w {
			w = lw
		}
	}
	lh := dc.FontHeight() * 1.5
	x := f.x + f.w - w - 34
	y := f.y + 8
	dc.SetColor(color.RGBA{255, 255, 255, 230})
	dc.DrawRectangle(x-6, y-4, w+34, lh*float64(len(entries))+8)
	dc.Fill()
	for k, e := range entries {
		cy := y + lh*float64(k) + lh/2
		dc.SetColor(e.color)
		dc.DrawCircle(x+6, cy, 4)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(e.label, x+16, cy, 0, 0.5)
	}
}

// PointSet is one coloured group of a scatter plot. Directions, when set,
// are drawn as arrows from each point.
type PointSet struct {
	Name       string
	Color      color.Color
	Points     [][3]float64
	Directions [][3]float64
}

// Arrows sizes direction arrows. Zero values use length 1 and head ratio
// 0.3.
type Arrows struct {
	Length    float64
	HeadRatio float64
}

// projection maps 3D points to the plane using the azimuth and elevation
// of a default 3D axes view. Flat projections drop z.
type projection struct {
	flat bool
	cosA float64
	sinA float64
	cosE float64
	sinE float64
}

func newProjection(flat bool) projection {
	az, el := gg.Radians(-60), gg.Radians(30)
	return projection{flat: flat, cosA: math.Cos(az), sinA: math.Sin(az), cosE: math.Cos(el), sinE: math.Sin(el)}
}

func (p projection) apply(v [3]float64) (float64, float64) {
	if p.flat {
		return v[0], v[1]
	}
	x := v[0]*p.cosA - v[1]*p.sinA
	depth := v[0]*p.sinA + v[1]*p.cosA
	y := v[2]*p.cosE - depth*p.sinE
	return x, y
}

// Scatter draws point sets in 3D, or in the xy plane when flat is set.
func (r *Renderer) Scatter(sets []PointSet, title string, flat bool, arrows Arrows, opts Options) (Figure, error) {
	if arrows.Length == 0 {
		arrows.Length = 1
	}
	if arrows.HeadRatio == 0 {
		arrows.HeadRatio = 0.3
	}
	proj := newProjection(flat)

	xlo, ylo := math.Inf(1), math.Inf(1)
	xhi, yhi := math.Inf(-1), math.Inf(-1)
	grow := func(v [3]float64) {
		x, y := proj.apply(v)
		xlo, xhi = math.Min(xlo, x), math.Max(xhi, x)
		ylo, yhi = math.Min(ylo, y), math.Max(yhi, y)
	}
	for _, s := range sets {
		for k, p := range s.Points {
			grow(p)
			if k < len(s.Directions) {
				d := s.Directions[k]
				grow([3]float64{p[0] + d[0]*arrows.Length, p[1] + d[1]*arrows.Length, p[2] + d[2]*arrows.Length})
			}
		}
	}

	dc := r.newContext()
	drawTitle(dc, title)
	f := frame{50, 50, float64(dc.Width()) - 100, float64(dc.Height()) - 100}
	if !math.IsInf(xlo, 0) {
		// Keep the aspect ratio so distances are comparable along both axes.
		span := math.Max(xhi-xlo, yhi-ylo)
		if span == 0 {
			span = 1
		}
		side := math.Min(f.w, f.h)
		ox := f.x + (f.w-side)/2
		oy := f.y + (f.h-side)/2
		toPx := func(v [3]float64) (float64, float64) {
			x, y := proj.apply(v)
			return ox + (x-xlo)/span*side, oy + side - (y-ylo)/span*side
		}
		var legend []legendEntry
		for _, s := range sets {
			c := s.Color
			if c == nil {
				c = color.RGBA{0, 0, 255, 255}
			}
			dc.SetColor(c)
			for k, p := range s.Points {
				px, py := toPx(p)
				dc.DrawCircle(px, py, 2.5)
				dc.Fill()
				if k < len(s.Directions) {
					d := s.Directions[k]
					end := [3]float64{p[0] + d[0]*arrows.Length, p[1] + d[1]*arrows.Length, p[2] + d[2]*arrows.Length}
					ex, ey := toPx(end)
					drawArrow(dc, px, py, ex, ey, arrows.HeadRatio)
				}
			}
			legend = append(legend, legendEntry{s.Name, c})
		}
		drawLegend(dc, f, legend)
	}

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

func drawArrow(dc *gg.Context, x0, y0, x1, y1, head float64) {
	dc.SetLineWidth(1)
	dc.DrawLine(x0, y0, x1, y1)
	dc.Stroke()
	l := math.Hypot(x1-x0, y1-y0) * head
	if l == 0 {
		return
	}
	a := math.Atan2(y1-y0, x1-x0)
	for _, side := range []float64{-1, 1} {
		b := a + math.Pi - side*gg.Radians(20)
		dc.DrawLine(x1, y1, x1+l*math.Cos(b), y1+l*math.Sin(b))
		dc.Stroke()
	}
}

// SpikeSet is the spikes of one population.
type SpikeSet struct {
	Name    string
	Color   color.Color
	Times   []float64
	NodeIDs []float64
}

// Raster draws spike times against node ids, one colour per population.
func (r *Renderer) Raster(sets []SpikeSet, title string, opts Options) (Figure, error) {
	tlo, thi := math.Inf(1), math.Inf(-1)
	nlo, nhi := math.Inf(1), math.Inf(-1)
	for _, s := range sets {
		if len(s.Times) != len(s.NodeIDs) {
			return Figure{}, fmt.Errorf("population %s has %d times for %d node ids", s.Name, len(s.Times), len(s.NodeIDs))
		}
		for k := range s.Times {
			tlo, thi = math.Min(tlo, s.Times[k]), math.Max(thi, s.Times[k])
			nlo, nhi = math.Min(nlo, s.NodeIDs[k]), math.Max(nhi, s.NodeIDs[k])
		}
	}

	dc := r.newContext()
	drawTitle(dc, title)
	f := frame{80, 50, float64(dc.Width()) - 110, float64(dc.Height()) - 110}
	drawAxesBox(dc, f)
	if !math.IsInf(tlo, 0) {
		var legend []legendEntry
		for _, s := range sets {
			dc.SetColor(s.Color)
			for k := range s.Times {
				dc.DrawRectangle(scale(s.Times[k], tlo, thi, f.x, f.x+f.w), scale(s.NodeIDs[k], nlo, nhi, f.y+f.h, f.y), 1, 1)
			}
			dc.Fill()
			legend = append(legend, legendEntry{s.Name, s.Color})
		}
		drawTicks(dc, f, tlo, thi, nlo, nhi)
		drawLegend(dc, f, legend)
	}
	drawAxisLabels(dc, f, "Time", "Node ID")

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

// PopulationColors assigns a colour to each population. Given colours are
// parsed and must cover every population; otherwise tab10 is spread over
// the populations.
func PopulationColors(pops []string, given map[string]string) (map[string]color.Color, error) {
	out := make(map[string]color.Color, len(pops))
	if len(given) == 0 {
		for i, c := range colormap.Spread(colormap.Tab10, len(pops)) {
			out[pops[i]] = c
		}
		return out, nil
	}
	var missing []string
	for _, p := range pops {
		s, ok := given[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		c, err := colormap.ParseColor(s)
		if err != nil {
			return nil, err
		}
		out[p] = c
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("color_map is missing colors for populations: %v", missing)
	}
	return out, nil
}
