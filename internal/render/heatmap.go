package render

import (
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/pkg/colormap"
)

const (
	heatLeft   = 150.0
	heatTop    = 50.0
	heatRight  = 100.0
	heatBottom = 130.0
)

// Heatmap draws g as a labelled colour grid with its annotation text on
// each cell. NaN values are drawn as zero. Rows are sources, columns
// targets.
func (r *Renderer) Heatmap(g connectivity.Grid, title string, opts Options) (Figure, error) {
	if err := g.Validate(); err != nil {
		return Figure{}, err
	}
	var fig Figure
	if opts.ReturnAsMapping {
		m := g.Mapping()
		fig.Mapping = &m
	}

	dc := r.newContext()
	drawTitle(dc, title)

	vals := g.Values.NaNToZero()
	rows, cols := vals.Rows(), vals.Cols()
	if rows > 0 && cols > 0 {
		r.drawCells(dc, g, vals, opts)
	}

	data, err := r.finish(dc, opts)
	if err != nil {
		return Figure{}, err
	}
	fig.PNG = data
	return fig, nil
}

func (r *Renderer) drawCells(dc *gg.Context, g connectivity.Grid, vals *connectivity.Matrix, opts Options) {
	rows, cols := vals.Rows(), vals.Cols()
	w := float64(dc.Width()) - heatLeft - heatRight
	h := float64(dc.Height()) - heatTop - heatBottom
	cell := math.Min(w/float64(cols), h/float64(rows))
	x0, y0 := heatLeft, heatTop

	lo, hi, _ := vals.Range()
	cmap := r.colormap(opts.Colormap)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			t := 0.0
			if hi > lo {
				t = (vals.At(i, j) - lo) / (hi - lo)
			}
			dc.SetColor(cmap.At(t))
			x, y := x0+float64(j)*cell, y0+float64(i)*cell
			dc.DrawRectangle(x, y, cell, cell)
			dc.Fill()

			if g.Annotations == nil {
				continue
			}
			text := g.Annotation(i, j)
			if text == "" {
				text = "0"
			}
			cx, cy := x+cell/2, y+cell/2
			dc.SetColor(color.White)
			if opts.RotateText {
				dc.Push()
				dc.RotateAbout(gg.Radians(-37.5), cx, cy)
				drawLines(dc, text, cx, cy)
				dc.Pop()
			} else {
				drawLines(dc, text, cx, cy)
			}
		}
	}

	dc.SetColor(color.Black)
	for i, l := range g.RowLabels {
		dc.DrawStringAnchored(l, x0-8, y0+(float64(i)+0.5)*cell, 1, 0.5)
	}
	for j, l := range g.ColLabels {
		cx, cy := x0+(float64(j)+0.5)*cell, y0+float64(rows)*cell+8
		dc.Push()
		dc.RotateAbout(gg.Radians(-45), cx, cy)
		dc.DrawStringAnchored(l, cx, cy, 1, 0.5)
		dc.Pop()
	}

	dc.DrawStringAnchored("Target", x0+float64(cols)*cell/2, float64(dc.Height())-16, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 16, y0+float64(rows)*cell/2)
	dc.DrawStringAnchored("Source", 16, y0+float64(rows)*cell/2, 0.5, 0.5)
	dc.Pop()

	drawColorbar(dc, cmap, frame{x0 + float64(cols)*cell + 20, y0, 18, float64(rows) * cell}, lo, hi)
}

func drawColorbar(dc *gg.Context, cmap colormap.Colormap, f frame, lo, hi float64) {
	if f.h <= 0 {
		return
	}
	steps := int(f.h)
	for k := 0; k < steps; k++ {
		dc.SetColor(cmap.At(1 - float64(k)/float64(steps)))
		dc.DrawRectangle(f.x, f.y+float64(k), f.w, 1)
		dc.Fill()
	}
	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawRectangle(f.x, f.y, f.w, f.h)
	dc.Stroke()
	if hi < lo {
		lo, hi = 0, 0
	}
	dc.DrawStringAnchored(strconv.FormatFloat(hi, 'g', 4, 64), f.x+f.w+4, f.y, 0, 0.5)
	dc.DrawStringAnchored(strconv.FormatFloat(lo, 'g', 4, 64), f.x+f.w+4, f.y+f.h, 0, 0.5)
}
