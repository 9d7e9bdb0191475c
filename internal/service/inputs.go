package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
)

// Clamps draws the current injected by every current clamp. Output.PNG is
// empty when the simulation has no clamps.
func (s *PlotService) Clamps(ctx context.Context, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	var traces []analysis.ClampTrace
	err := s.reduce(ctx, "iclamps", func(ctx context.Context) error {
		var err error
		traces, err = analysis.ClampTraces(ctx, s.source)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce current clamps: %w", err)
	}
	title := opts.titleOr("Current clamps")
	if len(traces) == 0 {
		s.logger.Info("no current clamps were found")
		return Output{Title: title, Data: traces}, nil
	}

	steps := make([]render.StepTrace, len(traces))
	for i, tr := range traces {
		steps[i] = render.StepTrace{Label: tr.Label(), Times: tr.Times, Values: tr.Amps}
	}
	fig, err := s.draw(ctx, "iclamps", func() (render.Figure, error) {
		return s.renderer.Steps(steps, title, "Time (ms)", "Current (nA)", opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render current clamps: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: traces}, nil
}

// InputSpikes draws one panel per input spike train. Output.PNG is empty
// when the simulation has no spike inputs.
func (s *PlotService) InputSpikes(ctx context.Context, opts Options) (Output, error) {
	if err := s.ready(); err != nil {
		return Output{}, err
	}
	var trains []analysis.InputTrain
	err := s.reduce(ctx, "inspikes", func(ctx context.Context) error {
		var err error
		trains, err = analysis.InputTrains(ctx, s.source)
		return err
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to reduce input spike trains: %w", err)
	}
	title := opts.titleOr("Input spike trains")
	if len(trains) == 0 {
		s.logger.Info("no spike trains were found")
		return Output{Title: title, Data: trains}, nil
	}

	panels := make([]render.SpikePanel, len(trains))
	for i, tr := range trains {
		panels[i] = render.SpikePanel{Title: tr.Title(), Times: tr.Times, NodeIDs: tr.NodeIDs}
	}
	fig, err := s.draw(ctx, "inspikes", func() (render.Figure, error) {
		return s.renderer.SpikePanels(panels, title, opts.figure())
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to render input spike trains: %w", err)
	}
	return Output{Title: title, PNG: fig.PNG, Data: trains}, nil
}

// SetupRequest selects the network of a setup overview.
type SetupRequest struct {
	// Network defaults to the biophysical network.
	Network string
	// Dir, when set, receives one PNG per figure named after its step.
	Dir string
}

// SetupStep is one figure of a setup overview.
type SetupStep struct {
	Name   string
	Output Output
}

// SetupReport summarises a simulation: its cell counts and the figures
// drawn for it, in order.
type SetupReport struct {
	Cells       []analysis.NetworkCells
	Biophysical string
	Network     string
	Steps       []SetupStep
}

// Setup draws the overview figures of a simulation in order. Steps without
// data, such as a simulation without clamps, produce no figure.
func (s *PlotService) Setup(ctx context.Context, req SetupRequest) (SetupReport, error) {
	cells, bio, err := s.Cells(ctx)
	if err != nil {
		return SetupReport{}, err
	}
	rep := SetupReport{Cells: cells, Biophysical: bio, Network: req.Network}
	if rep.Network == "" {
		rep.Network = bio
	}
	if rep.Network == "" {
		return SetupReport{}, &ConfigurationError{Field: "network", Reason: "no biophysical network found, name a network"}
	}
	s.logger.Info("drawing setup figures, this may take a while depending on network size", "network", rep.Network)

	byPop := []string{network.ColPopName}
	own := analysis.Selection{Sources: []string{rep.Network}, Targets: []string{rep.Network}, SIDs: byPop, TIDs: byPop}
	all := analysis.Selection{Sources: []string{"all"}, Targets: []string{"all"}, SIDs: byPop, TIDs: byPop}

	steps := []struct {
		name  string
		title string
		run   func(Options) (Output, error)
	}{
		{"probability", "", func(o Options) (Output, error) {
			return s.Probability(ctx, ProbabilityRequest{Selection: own, Axes: analysis.AllAxes, Bins: 10, LinePlot: true}, o)
		}},
		{"iclamps", "", func(o Options) (Output, error) { return s.Clamps(ctx, o) }},
		{"inspikes", "", func(o Options) (Output, error) { return s.InputSpikes(ctx, o) }},
		{KindTotal, "All Connections found", func(o Options) (Output, error) {
			return s.Matrix(ctx, MatrixRequest{Kind: KindTotal, Selection: all, SynapticInfo: analysis.InfoTotal}, o)
		}},
		{"positions", "3D Positions", func(o Options) (Output, error) {
			return s.Positions(ctx, SpatialRequest{Query: analysis.PositionQuery{GroupBy: network.ColPopName}}, o)
		}},
	}
	for _, st := range steps {
		o := Options{Title: st.title}
		if req.Dir != "" {
			o.SaveFile = filepath.Join(req.Dir, st.name+".png")
		}
		out, err := st.run(o)
		if err != nil {
			return SetupReport{}, fmt.Errorf("setup %s: %w", st.name, err)
		}
		if len(out.PNG) == 0 {
			continue
		}
		rep.Steps = append(rep.Steps, SetupStep{Name: st.name, Output: out})
	}
	return rep, nil
}
