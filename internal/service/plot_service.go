// Package service provides the plot operations shared by the CLI, the HTTP
// API and the render job workers.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/cache"
	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
	"github.com/davidfague/bmtool/internal/telemetry"
)

// ConfigurationError reports an invalid or missing request parameter.
type ConfigurationError = analysis.ConfigurationError

// ErrConfiguration matches every *ConfigurationError.
var ErrConfiguration = analysis.ErrConfiguration

// Config contains plot service dependencies. Cache, Metrics and Tracer are
// optional.
type Config struct {
	Source   network.Source
	Renderer *render.Renderer
	Cache    *cache.Manager
	Metrics  *telemetry.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// PlotService reduces network tables and renders the resulting figures.
type PlotService struct {
	source   network.Source
	renderer *render.Renderer
	cache    *cache.Manager
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewPlotService creates a new plot service.
func NewPlotService(cfg Config) *PlotService {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewRenderer(render.Config{})
	}
	return &PlotService{
		source:   cfg.Source,
		renderer: renderer,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		logger:   logger.With("component", "service"),
	}
}

// ready reports a ConfigurationError when the service has no network
// source to read.
func (s *PlotService) ready() error {
	if s.source == nil {
		return network.ErrNoConfig
	}
	return nil
}

// Source returns the network source the service reads.
func (s *PlotService) Source() network.Source { return s.source }

// Options are the figure settings of one call.
type Options struct {
	Title      string
	SaveFile   string
	Colormap   string
	ReturnDict bool
	RotateText bool
}

func (o Options) figure() render.Options {
	return render.Options{
		Colormap:        o.Colormap,
		SavePath:        o.SaveFile,
		ReturnAsMapping: o.ReturnDict,
		RotateText:      o.RotateText,
	}
}

func (o Options) titleOr(def string) string {
	if o.Title != "" {
		return o.Title
	}
	return def
}

// Output is the result of a plot call. Only the fields that apply to the
// plot are set.
type Output struct {
	Title   string
	Grid    *connectivity.Grid
	Mapping *connectivity.Mapping
	PNG     []byte
	// SecondaryPNG holds a second figure, such as the distance histogram
	// drawn next to a connection distance scatter.
	SecondaryPNG []byte
	DOT          []byte
	// Data carries the reduced values of non-matrix plots.
	Data any
}

// stage runs fn inside a span named after the pipeline stage.
func (s *PlotService) stage(ctx context.Context, name, kind string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("bmplot.kind", kind)))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// reduce runs a reduction stage and counts its outcome.
func (s *PlotService) reduce(ctx context.Context, kind string, fn func(context.Context) error) error {
	err := s.stage(ctx, "reduce", kind, fn)
	s.metrics.Reduction(kind, err)
	if err != nil {
		s.logger.Debug("reduction failed", "kind", kind, "error", err)
	}
	return err
}

// draw runs a render stage and records its duration.
func (s *PlotService) draw(ctx context.Context, kind string, fn func() (render.Figure, error)) (render.Figure, error) {
	var fig render.Figure
	start := time.Now()
	err := s.stage(ctx, "render", kind, func(context.Context) error {
		var err error
		fig, err = fn()
		return err
	})
	if err != nil {
		return render.Figure{}, err
	}
	s.metrics.Render(kind, time.Since(start))
	return fig, nil
}

// cacheable reports whether a figure may be served from the figure cache.
// Saved or displayed figures always go through the renderer.
func (s *PlotService) cacheable(opts Options) bool {
	return s.cache != nil && opts.SaveFile == "" && s.renderer.Config().Display == render.DisplayNone
}

func (s *PlotService) cachedFigure(key string) ([]byte, bool) {
	data, ok := s.cache.GetFigure(key)
	s.metrics.CacheLookup("figure", ok)
	return data, ok
}

func (s *PlotService) storeFigure(key string, data []byte) {
	if err := s.cache.SetFigure(key, data); err != nil {
		s.logger.Warn("failed to cache figure", "key", key, "error", err)
	}
}
