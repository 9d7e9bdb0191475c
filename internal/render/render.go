// Package render draws bmplot figures with fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fogleman/gg"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/pkg/colormap"
)

// DisplayMode decides what happens to a figure after it is drawn.
type DisplayMode int

const (
	// DisplayNone only saves or returns figures.
	DisplayNone DisplayMode = iota
	// DisplayViewer also opens each figure in the platform image viewer.
	DisplayViewer
)

// ParseDisplayMode maps "none" and "viewer" to a DisplayMode.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return DisplayNone, nil
	case "viewer", "show":
		return DisplayViewer, nil
	}
	return DisplayNone, fmt.Errorf("unknown display mode %q", s)
}

// Config contains renderer configuration.
type Config struct {
	Width           int
	Height          int
	DefaultColormap string
	Display         DisplayMode
}

// Options are per-figure settings.
type Options struct {
	Colormap string
	// SavePath writes the PNG to disk when set.
	SavePath string
	// ReturnAsMapping asks for the ordered annotation mapping of a heatmap.
	ReturnAsMapping bool
	// RotateText slants heatmap annotations, for long text cells.
	RotateText bool
}

// Figure is a rendered plot.
type Figure struct {
	PNG     []byte
	Mapping *connectivity.Mapping
}

// Renderer draws figures. It is safe for concurrent use; each figure gets
// its own drawing context.
type Renderer struct {
	config     Config
	bufferPool sync.Pool
	open       func(path string) error
}

// NewRenderer creates a new renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 900
	}
	if cfg.Height <= 0 {
		cfg.Height = 800
	}
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "viridis"
	}
	return &Renderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
		open: OpenViewer,
	}
}

// Config returns the renderer configuration.
func (r *Renderer) Config() Config { return r.config }

func (r *Renderer) colormap(name string) colormap.Colormap {
	if cmap, ok := colormap.Lookup(name); ok {
		return cmap
	}
	cmap, _ := colormap.Lookup(r.config.DefaultColormap)
	if cmap == nil {
		return colormap.Viridis
	}
	return cmap
}

func (r *Renderer) newContext() *gg.Context {
	dc := gg.NewContext(r.config.Width, r.config.Height)
	dc.SetColor(color.White)
	dc.Clear()
	return dc
}

// finish encodes dc, saves it when asked, and shows it in DisplayViewer
// mode.
func (r *Renderer) finish(dc *gg.Context, opts Options) ([]byte, error) {
	data, err := r.encodeContext(dc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode figure: %w", err)
	}
	if opts.SavePath != "" {
		if err := Save(opts.SavePath, data); err != nil {
			return nil, err
		}
	}
	if r.config.Display == DisplayViewer {
		if err := r.show(data, opts.SavePath); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (r *Renderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// Save writes data to path, creating parent directories.
func Save(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save figure: %w", err)
	}
	return nil
}

func (r *Renderer) show(data []byte, saved string) error {
	path := saved
	if path == "" {
		f, err := os.CreateTemp("", "bmplot-*.png")
		if err != nil {
			return fmt.Errorf("failed to create preview file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("failed to write preview file: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		path = f.Name()
	}
	if err := r.open(path); err != nil {
		return fmt.Errorf("failed to open viewer: %w", err)
	}
	return nil
}

// drawTitle centres a title at the top of dc.
func drawTitle(dc *gg.Context, title string) {
	if title == "" {
		return
	}
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(title, float64(dc.Width())/2, 20, 0.5, 0.5)
}

// drawLines draws s line by line, centred on (x, y).
func drawLines(dc *gg.Context, s string, x, y float64) {
	lines := strings.Split(s, "\n")
	h := dc.FontHeight() * 1.2
	top := y - h*float64(len(lines)-1)/2
	for i, l := range lines {
		dc.DrawStringAnchored(l, x, top+h*float64(i), 0.5, 0.5)
	}
}

// frame is a rectangular plot area in pixels.
type frame struct {
	x, y, w, h float64
}

func (f frame) inner(pad float64) frame {
	return frame{f.x + pad, f.y + pad, f.w - 2*pad, f.h - 2*pad}
}

// scale maps v from [lo, hi] onto [a, b].
func scale(v, lo, hi, a, b float64) float64 {
	if hi == lo {
		return (a + b) / 2
	}
	return a + (v-lo)/(hi-lo)*(b-a)
}
