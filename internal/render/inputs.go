package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/davidfague/bmtool/pkg/colormap"
)

// StepTrace is a step function: Values[i] holds from Times[i] until
// Times[i+1].
type StepTrace struct {
	Label  string
	Times  []float64
	Values []float64
}

// Steps draws step traces on shared axes, one tab10 colour each.
func (r *Renderer) Steps(traces []StepTrace, title, xlabel, ylabel string, opts Options) (Figure, error) {
	tlo, thi := math.Inf(1), math.Inf(-1)
	vlo, vhi := 0.0, 0.0
	for _, tr := range traces {
		if len(tr.Times) != len(tr.Values) {
			return Figure{}, fmt.Errorf("trace %s has %d times for %d values", tr.Label, len(tr.Times), len(tr.Values))
		}
		for k := range tr.Times {
			tlo, thi = math.Min(tlo, tr.Times[k]), math.Max(thi, tr.Times[k])
			vlo, vhi = math.Min(vlo, tr.Values[k]), math.Max(vhi, tr.Values[k])
		}
	}

	dc := r.newContext()
	drawTitle(dc, title)
	f := frame{80, 50, float64(dc.Width()) - 110, float64(dc.Height()) - 110}
	drawAxesBox(dc, f)
	if !math.IsInf(tlo, 0) {
		if vlo == vhi {
			vhi = vlo + 1
		}
		var legend []legendEntry
		for i, tr := range traces {
			c := colormap.Tab10.AtIndex(i)
			dc.SetColor(c)
			for k := range tr.Times {
				x := scale(tr.Times[k], tlo, thi, f.x, f.x+f.w)
				y := scale(tr.Values[k], vlo, vhi, f.y+f.h, f.y)
				if k == 0 {
					dc.MoveTo(x, y)
					continue
				}
				// Hold the previous level up to this time, then step.
				dc.LineTo(x, scale(tr.Values[k-1], vlo, vhi, f.y+f.h, f.y))
				dc.LineTo(x, y)
			}
			dc.SetLineWidth(1.5)
			dc.Stroke()
			legend = append(legend, legendEntry{tr.Label, c})
		}
		drawTicks(dc, f, tlo, thi, vlo, vhi)
		drawLegend(dc, f, legend)
	}
	drawAxisLabels(dc, f, xlabel, ylabel)

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

// SpikePanel is one titled scatter of spike times against node ids.
type SpikePanel struct {
	Title   string
	Times   []float64
	NodeIDs []float64
}

// SpikePanels stacks one scatter panel per spike train.
func (r *Renderer) SpikePanels(panels []SpikePanel, title string, opts Options) (Figure, error) {
	dc := r.newContext()
	drawTitle(dc, title)
	if n := len(panels); n > 0 {
		top, bottom := 40.0, 40.0
		ph := (float64(dc.Height()) - top - bottom) / float64(n)
		for i, p := range panels {
			if len(p.Times) != len(p.NodeIDs) {
				return Figure{}, fmt.Errorf("panel %q has %d times for %d node ids", p.Title, len(p.Times), len(p.NodeIDs))
			}
			f := frame{80, top + float64(i)*ph + 20, float64(dc.Width()) - 110, ph - 44}
			dc.SetColor(color.Black)
			dc.DrawStringAnchored(p.Title, f.x+f.w/2, f.y-10, 0.5, 0.5)
			drawAxesBox(dc, f)
			if len(p.Times) == 0 {
				continue
			}
			tlo, thi := minMax(p.Times)
			nlo, nhi := minMax(p.NodeIDs)
			dc.SetColor(colormap.Tab10.AtIndex(0))
			for k := range p.Times {
				dc.DrawRectangle(scale(p.Times[k], tlo, thi, f.x, f.x+f.w), scale(p.NodeIDs[k], nlo, nhi, f.y+f.h, f.y), 1, 1)
			}
			dc.Fill()
			drawTicks(dc, f, tlo, thi, nlo, nhi)
		}
	}

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	return Figure{PNG: data}, nil
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return lo, hi
}

func drawAxisLabels(dc *gg.Context, f frame, xlabel, ylabel string) {
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(xlabel, f.x+f.w/2, f.y+f.h+40, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 16, f.y+f.h/2)
	dc.DrawStringAnchored(ylabel, 16, f.y+f.h/2, 0.5, 0.5)
	dc.Pop()
}
