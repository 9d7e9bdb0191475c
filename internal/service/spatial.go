package service

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
	"github.com/davidfague/bmtool/pkg/colormap"
)

var (
	targetColor = color.RGBA{31, 119, 180, 255}
	sourceColor = color.RGBA{214, 39, 40, 255}
)

// Distance draws the target cells of one source cell and a histogram of
// their distances. The histogram is saved next to SaveFile with a _hist
// suffix.
func (s *PlotService) Distance(ctx context.Context, q analysis.DistanceQuery, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	var res analysis.DistanceResult
	err := s.reduce(ctx, "distance", func(ctx context.Context) error {
		var err error
		res, err = analysis.Distances(ctx, s.source, q)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce connection distance: %w", err)
	}

	targets := make([][3]float64, len(res.Targets))
	for i, p := range res.Targets {
		targets[i] = p
	}
	sets := []render.PointSet{
		{Name: "target cells", Color: targetColor, Points: targets},
		{Name: "source cell", Color: sourceColor, Points: [][3]float64{res.Source}},
	}
	title := opts.titleOr(fmt.Sprintf("Targets of %s cell %d", q.Source, q.SourceCellID))
	scatter, err := s.draw(ctx, "distance", func() (render.Figure, error) {
		return s.renderer.Scatter(sets, title, q.IgnoreZ, render.Arrows{}, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render connection distance: %w", err)
	}

	histOpts := opts.figure()
	if opts.SaveFile != "" {
		histOpts.SavePath = suffixed(opts.SaveFile, "_hist")
	}
	hist, err := s.draw(ctx, "distance", func() (render.Figure, error) {
		return s.renderer.Histogram(res.Edges, res.Counts, "Distance from Source Node to Each Target Node",
			"Distance", "Count", "", histOpts)
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render distance histogram: %w", err)
	}
	return Output{Title: title, PNG: scatter.PNG, SecondaryPNG: hist.PNG, Data: res}, nil
}

// suffixed inserts suffix before the extension of path.
func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// Positions draws node positions in 3D, one colour per group.
func (s *PlotService) Positions(ctx context.Context, req SpatialRequest, opts Options) (Output, error) {
	return s.spatial(ctx, "positions", req, "3D positions", analysis.Positions, opts)
}

// Rotations draws node orientations as arrows from their positions.
func (s *PlotService) Rotations(ctx context.Context, req SpatialRequest, opts Options) (Output, error) {
	return s.spatial(ctx, "rotations", req, "Cell rotations", analysis.Rotations, opts)
}

type spatialFunc func(context.Context, network.Source, analysis.PositionQuery) (analysis.Spatial, error)

func (s *PlotService) spatial(ctx context.Context, kind string, req SpatialRequest, defTitle string, fn spatialFunc, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	var sp analysis.Spatial
	err := s.reduce(ctx, kind, func(ctx context.Context) error {
		var err error
		sp, err = fn(ctx, s.source, req.Query)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce %s: %w", kind, err)
	}
	for _, g := range sp.Skipped {
		s.logger.Warn("group has no data to plot, skipping", "kind", kind, "group", g)
	}

	colors := colormap.Spread(colormap.HSV, len(sp.Groups))
	sets := make([]render.PointSet, len(sp.Groups))
	for i, g := range sp.Groups {
		set := render.PointSet{Name: g.Name, Color: colors[i], Points: make([][3]float64, len(g.Points))}
		for k, p := range g.Points {
			set.Points[k] = p
		}
		for _, d := range g.Directions {
			set.Directions = append(set.Directions, d)
		}
		sets[i] = set
	}

	title := opts.titleOr(defTitle)
	fig, err := s.draw(ctx, kind, func() (render.Figure, error) {
		return s.renderer.Scatter(sets, title, false, req.Arrows, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render %s: %w", kind, err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: sp}, nil
}

// Raster draws spike times per population.
func (s *PlotService) Raster(ctx context.Context, req RasterRequest, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	var groups []analysis.SpikeGroup
	err := s.reduce(ctx, "raster", func(ctx context.Context) error {
		spikes, err := s.source.Spikes(ctx)
		if err != nil {
			return err
		}
		nodes, err := s.rasterNodes(ctx, req.Network, spikes)
		if err != nil {
			return err
		}
		groups, err = analysis.Raster(spikes, nodes, analysis.RasterQuery{TStart: req.TStart, TStop: req.TStop})
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce raster: %w", err)
	}

	pops := make([]string, len(groups))
	for i, g := range groups {
		pops[i] = g.Population
	}
	colors, err := render.PopulationColors(pops, req.ColorMap)
	if err != nil {
		return Output{}, &ConfigurationError{Field: "color_map", Reason: err.Error()}
	}
	sets := make([]render.SpikeSet, len(groups))
	for i, g := range groups {
		sets[i] = render.SpikeSet{Name: g.Population, Color: colors[g.Population], Times: g.Times, NodeIDs: g.NodeIDs}
	}

	title := opts.titleOr("Raster")
	fig, err := s.draw(ctx, "raster", func() (render.Figure, error) {
		return s.renderer.Raster(sets, title, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render raster: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: groups}, nil
}

// rasterNodes picks the node table that names spike populations. A spike
// table with its own pop_name column needs none unless a network is named.
func (s *PlotService) rasterNodes(ctx context.Context, name string, spikes *tables.Table) (*tables.Table, error) {
	if name == "" {
		if spikes.Has(network.ColPopName) {
			return nil, nil
		}
		nets := s.source.Networks()
		if len(nets) == 0 {
			return nil, &ConfigurationError{Field: "network", Reason: "no networks to read population names from"}
		}
		name = nets[0]
		s.logger.Info("no network given for raster, using the first network", "network", name)
	}
	return s.source.Nodes(ctx, name)
}

// Graph encodes the distinct values of an edge property between groups as
// a Graphviz digraph. SaveFile receives the DOT text.
func (s *PlotService) Graph(ctx context.Context, req GraphRequest, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	if err := req.Selection.Validate(); err != nil {
		return Output{}, err
	}

	var rel *analysis.Relation[[]string]
	err := s.reduce(ctx, "graph", func(ctx context.Context) error {
		var err error
		rel, err = analysis.EdgeTypes(ctx, s.source, req.Selection, req.Property)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce network graph: %w", err)
	}

	var edges []render.GraphEdge
	for i := range rel.RowLabels {
		for j := range rel.ColLabels {
			if !rel.Present[i][j] || len(rel.Cells[i][j]) == 0 {
				continue
			}
			edges = append(edges, render.GraphEdge{Source: rel.RowLabels[i], Target: rel.ColLabels[j], Labels: rel.Cells[i][j]})
		}
	}

	title := opts.titleOr("Network Graph")
	var data []byte
	err = s.stage(ctx, "render", "graph", func(context.Context) error {
		var err error
		data, err = render.DOT(dotID(title), edges)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render network graph: %w", err)
	}
	if opts.SaveFile != "" {
		if err := render.Save(opts.SaveFile, data); err != nil {
			return Output{}, err
		}
	}
	return Output{Title: title, DOT: data}, nil
}

// dotID turns a title into a bare Graphviz identifier.
func dotID(title string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, title)
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "g" + id
	}
	return id
}

// Cells summarises the node types of every network.
func (s *PlotService) Cells(ctx context.Context) ([]analysis.NetworkCells, string, error) {
	if err := s.ready(); err != nil {
		return nil, "", err
	}
	var (
		cells []analysis.NetworkCells
		bio   string
	)
	err := s.reduce(ctx, "cells", func(ctx context.Context) error {
		var err error
		cells, bio, err = analysis.CellSummary(ctx, s.source)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to summarise cells: %w", err)
	}
	if bio == "" {
		s.logger.Debug("no biophysical network found")
	}
	return cells, bio, nil
}

// IsNotFound reports whether err names a network, edge table or spike table
// the source does not have.
func IsNotFound(err error) bool {
	return errors.Is(err, network.ErrUnknownNetwork) || errors.Is(err, network.ErrNoEdges) || errors.Is(err, network.ErrNoSpikes)
}
