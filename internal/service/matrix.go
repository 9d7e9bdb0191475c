package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/cache"
	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/export"
	"github.com/davidfague/bmtool/internal/logging"
	"github.com/davidfague/bmtool/internal/render"
)

// DefaultConnectorTitle is the title of a connector percent matrix.
const DefaultConnectorTitle = "Percent connection matrix"

// ReduceMatrix validates req and reduces it to a titled grid without
// rendering.
func (s *PlotService) ReduceMatrix(ctx context.Context, req MatrixRequest) (analysis.Result, error) {
	if err := s.ready(); err != nil {
		return analysis.Result{}, err
	}
	if err := req.Validate(); err != nil {
		return analysis.Result{}, err
	}
	var res analysis.Result
	err := s.reduce(ctx, req.Kind, func(ctx context.Context) error {
		var err error
		sel := req.Selection
		switch req.Kind {
		case KindTotal:
			info, _ := analysis.ParseSynapticInfo(string(req.SynapticInfo))
			res, err = analysis.Totals(ctx, s.source, sel, info)
		case KindPercent:
			method, _ := analysis.ParsePercentMethod(req.Method)
			res, err = analysis.Percent(ctx, s.source, sel, method)
		case KindConvergence, KindDivergence:
			method, _ := analysis.ParseSpreadMethod(req.Method)
			res, err = analysis.Divergence(ctx, s.source, sel, req.Kind == KindConvergence, method)
		case KindGap:
			method, _ := analysis.ParseGapMethod(req.Method)
			res, err = analysis.GapJunctions(ctx, s.source, sel, method)
		}
		return err
	})
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to reduce %s matrix: %w", req.Kind, err)
	}
	return res, nil
}

// Matrix reduces req and draws it as an annotated heatmap.
func (s *PlotService) Matrix(ctx context.Context, req MatrixRequest, opts Options) (Output, error) {
	res, err := s.ReduceMatrix(ctx, req)
	if err != nil {
		return Output{}, err
	}
	return s.heatmap(ctx, req.Kind, res.Grid, opts.titleOr(res.Title), opts)
}

func (s *PlotService) heatmap(ctx context.Context, kind string, g connectivity.Grid, title string, opts Options) (Output, error) {
	fig, err := s.draw(ctx, kind, func() (render.Figure, error) {
		return s.renderer.Heatmap(g, title, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render %s matrix: %w", kind, err)
	}
	return Output{Title: title, Grid: &g, Mapping: fig.Mapping, PNG: fig.PNG}, nil
}

// MatrixFigure returns the PNG heatmap of req, served from the figure cache
// when possible.
func (s *PlotService) MatrixFigure(ctx context.Context, req MatrixRequest, opts Options) ([]byte, error) {
	if !s.cacheable(opts) {
		out, err := s.Matrix(ctx, req, opts)
		if err != nil {
			return nil, err
		}
		return out.PNG, nil
	}

	params := req.Params()
	params["title"] = opts.Title
	params["colormap"] = opts.Colormap
	params["rotate_text"] = strconv.FormatBool(opts.RotateText)
	key := cache.Key(req.Kind+".png", params)
	if data, ok := s.cachedFigure(key); ok {
		return data, nil
	}

	out, err := s.Matrix(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	s.storeFigure(key, out.PNG)
	return out.PNG, nil
}

// MatrixMapping returns the ordered {row: {col: annotation}} JSON of req,
// served from the result cache when possible.
func (s *PlotService) MatrixMapping(ctx context.Context, req MatrixRequest) ([]byte, error) {
	key := cache.Key(req.Kind+".json", req.Params())
	if s.cache != nil {
		data, ok := s.cache.GetResult(key)
		s.metrics.CacheLookup("result", ok)
		if ok {
			return data, nil
		}
	}

	res, err := s.ReduceMatrix(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(res.Grid.Mapping())
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping: %w", err)
	}
	if s.cache != nil {
		s.cache.SetResult(key, data)
	}
	return data, nil
}

// Connector reads a connection report (CSV or xlsx) and draws its percent
// connectivity matrix.
func (s *PlotService) Connector(ctx context.Context, name string, data []byte, copts connectivity.ConnectorOptions, opts Options) (Output, error) {
	var records []connectivity.ConnectorRecord
	err := s.stage(ctx, "load", "connector", func(context.Context) error {
		var err error
		records, err = export.ReadConnectorReport(name, data)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to read connection report: %w", err)
	}

	var res connectivity.ConnectorResult
	err = s.reduce(ctx, "connector", func(context.Context) error {
		var err error
		res, err = connectivity.ReduceConnector(records, copts)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce connection report: %w", err)
	}
	s.logger.Debug("connector matrix reduced", "records", len(records), "populations", len(res.Populations))

	out, err := s.heatmap(ctx, "connector", res.Grid, opts.titleOr(DefaultConnectorTitle), opts)
	if err != nil {
		return Output{}, err
	}
	out.Data = res.Populations
	return out, nil
}

// Probability draws, per group pair, the fraction of candidate node pairs
// that are connected against distance.
func (s *PlotService) Probability(ctx context.Context, req ProbabilityRequest, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	if err := req.Selection.Validate(); err != nil {
		return Output{}, err
	}
	if req.Bins == 0 {
		req.Bins = 8
	}

	var rel *analysis.Relation[connectivity.BinnedCounts]
	err := s.reduce(ctx, "probability", func(ctx context.Context) error {
		var err error
		rel, err = analysis.Probability(ctx, s.source, req.Selection, req.Axes, req.Bins)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce probability matrix: %w", err)
	}

	grid := render.SeriesGrid{RowLabels: rel.RowLabels, ColLabels: rel.ColLabels, Cells: make([][]*render.Series, len(rel.RowLabels))}
	ratios := make(map[string]connectivity.BinnedRatio)
	for i := range rel.RowLabels {
		grid.Cells[i] = make([]*render.Series, len(rel.ColLabels))
		for j := range rel.ColLabels {
			if !rel.Present[i][j] {
				continue
			}
			ratio, err := rel.Cells[i][j].Ratio()
			if err != nil {
				return Output{}, fmt.Errorf("failed to bin %s -> %s: %w", rel.RowLabels[i], rel.ColLabels[j], err)
			}
			if req.Verbose {
				s.logger.Log(ctx, logging.LevelTrace, "probability series",
					"source", rel.RowLabels[i], "target", rel.ColLabels[j], "x", ratio.X, "y", ratio.Y)
			}
			ratios[rel.RowLabels[i]+" -> "+rel.ColLabels[j]] = ratio
			grid.Cells[i][j] = &render.Series{X: ratio.X, Y: ratio.Y}
		}
	}

	style := render.StyleBars
	if req.LinePlot {
		style = render.StyleLines
	}
	title := opts.titleOr("Distance Probability Matrix")
	fig, err := s.draw(ctx, "probability", func() (render.Figure, error) {
		return s.renderer.SeriesGrid(grid, title, style, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render probability matrix: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: ratios}, nil
}

// ConnectionHistogram draws how many connections each target cell of one
// group receives from one source group.
func (s *PlotService) ConnectionHistogram(ctx context.Context, req HistogramRequest, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	if err := req.Selection.Validate(); err != nil {
		return Output{}, err
	}

	var hist analysis.ConnectionHistogram
	err := s.reduce(ctx, "histogram", func(ctx context.Context) error {
		var err error
		hist, err = analysis.PairHistogram(ctx, s.source, req.Selection, req.SourceCell, req.TargetCell)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce connection histogram: %w", err)
	}
	if hist.Summary.DataAbsent {
		s.logger.Warn("too few target cells for a standard deviation",
			"source", hist.Source, "target", hist.Target, "n", hist.Summary.N)
	}

	edges, counts := countHistogram(hist.Counts)
	title := opts.titleOr(fmt.Sprintf("%s to %s", hist.Source, hist.Target))
	fig, err := s.draw(ctx, "histogram", func() (render.Figure, error) {
		return s.renderer.Histogram(edges, counts, title,
			fmt.Sprintf("# of conns from %s to %s", hist.Source, hist.Target), "# of cells",
			hist.Summary.Label(), opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render connection histogram: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: hist}, nil
}

// countHistogram bins integer counts one per bin, up to 50 bins.
func countHistogram(xs []float64) (edges, counts []float64) {
	if len(xs) == 0 {
		return analysis.Histogram(nil, 0, 1, 1)
	}
	lo, hi := floats.Min(xs), floats.Max(xs)
	bins := int(hi-lo) + 1
	if bins > 50 {
		bins = 50
	}
	return analysis.Histogram(xs, lo-0.5, hi+0.5, bins)
}

// EdgeHistogram draws a histogram of a numeric edge property per group
// pair.
func (s *PlotService) EdgeHistogram(ctx context.Context, req EdgeHistogramRequest, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	if err := req.Selection.Validate(); err != nil {
		return Output{}, err
	}
	if req.Bins == 0 {
		req.Bins = 10
	}

	var rel *analysis.Relation[[]float64]
	err := s.reduce(ctx, "edge-hist", func(ctx context.Context) error {
		var err error
		rel, err = analysis.EdgeValues(ctx, s.source, req.Selection, req.Property)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce edge histogram: %w", err)
	}

	grid := render.SeriesGrid{RowLabels: rel.RowLabels, ColLabels: rel.ColLabels, Cells: make([][]*render.Series, len(rel.RowLabels))}
	for i := range rel.RowLabels {
		grid.Cells[i] = make([]*render.Series, len(rel.ColLabels))
		for j := range rel.ColLabels {
			vals := rel.Cells[i][j]
			if !rel.Present[i][j] || len(vals) == 0 {
				continue
			}
			edges, counts := analysis.Histogram(vals, floats.Min(vals), floats.Max(vals), req.Bins)
			grid.Cells[i][j] = &render.Series{X: connectivity.LeftEdges(edges), Y: counts}
		}
	}

	title := opts.titleOr(req.Property + " Histogram Matrix")
	fig, err := s.draw(ctx, "edge-hist", func() (render.Figure, error) {
		return s.renderer.SeriesGrid(grid, title, render.StyleBars, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render edge histogram: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG}, nil
}
