// Package main is the entry point for the bmplot command line tool and
// server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davidfague/bmtool/internal/config"
	"github.com/davidfague/bmtool/internal/logging"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/render"
	"github.com/davidfague/bmtool/internal/service"
	"github.com/davidfague/bmtool/internal/telemetry"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bmplot",
		Short: "Connectivity plots for simulated networks",
		Long: `bmplot reduces the node and edge tables of a simulated network into
population connectivity matrices and draws them as annotated heatmaps.

It also draws raster, position, rotation and distance plots, and serves
the same reductions over HTTP with 'bmplot serve'.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "config/bmplot.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("sim", "", "Path to the simulation config (overrides data.sim_config)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringP("save-file", "o", "", "Save the figure to this path")
	rootCmd.PersistentFlags().Bool("show", false, "Open each figure in the image viewer")

	rootCmd.AddCommand(
		newVersionCmd(),
		// Matrices
		newMatrixCmd(service.KindTotal, "Total connection matrix"),
		newMatrixCmd(service.KindPercent, "Percent connectivity matrix"),
		newMatrixCmd(service.KindConvergence, "Convergence matrix"),
		newMatrixCmd(service.KindDivergence, "Divergence matrix"),
		newMatrixCmd(service.KindGap, "Gap junction matrix"),
		newProbabilityCmd(),
		newHistogramCmd(),
		newEdgeHistCmd(),
		newConnectorCmd(),
		// Other plots
		newDistanceCmd(),
		newRasterCmd(),
		newSpatialCmd("positions", "Plot 3D cell positions"),
		newSpatialCmd("rotations", "Plot cell rotation vectors"),
		newGraphCmd(),
		newCellsCmd(),
		// Simulation inputs
		newClampsCmd(),
		newInputSpikesCmd(),
		newSetupCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// app holds what a subcommand needs to run a plot.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracing *telemetry.Tracing
	svc     *service.PlotService
	out     io.Writer
	json    bool
}

// newApp loads configuration and builds the plot service. Commands that
// work on a report file rather than a network pass needSource false.
func newApp(cmd *cobra.Command, needSource bool) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if sim, _ := cmd.Flags().GetString("sim"); sim != "" {
		cfg.Data.SimConfig = sim
	}
	if show, _ := cmd.Flags().GetBool("show"); show {
		cfg.Render.Display = "viewer"
	}
	display, err := render.ParseDisplayMode(cfg.Render.Display)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, logging.Format(cfg.Logging.Format), cmd.ErrOrStderr())
	slog.SetDefault(logger)

	tracing, err := telemetry.NewTracing(telemetry.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: cfg.Tracing.Exporter,
		Service:  "bmplot",
		Version:  version,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	var src network.Source
	if needSource {
		fs, err := network.LoadSimConfig(cfg.Data.SimConfig, logger.With("component", "network"))
		if err != nil {
			return nil, err
		}
		src = fs
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	return &app{
		cfg:     cfg,
		logger:  logger,
		tracing: tracing,
		svc: service.NewPlotService(service.Config{
			Source: src,
			Renderer: render.NewRenderer(render.Config{
				Width:           cfg.Render.Width,
				Height:          cfg.Render.Height,
				DefaultColormap: cfg.Render.DefaultColormap,
				Display:         display,
			}),
			Tracer: tracing.Tracer,
			Logger: logger,
		}),
		out:  cmd.OutOrStdout(),
		json: jsonOut,
	}, nil
}

// Close flushes pending spans.
func (a *app) Close() {
	if err := a.tracing.Shutdown(context.Background()); err != nil {
		a.logger.Warn("failed to flush traces", "error", err)
	}
}

// figureOptions reads the figure flags shared by plot commands.
func figureOptions(cmd *cobra.Command) service.Options {
	opts := service.Options{}
	opts.SaveFile, _ = cmd.Flags().GetString("save-file")
	if f := cmd.Flags().Lookup("title"); f != nil {
		opts.Title = f.Value.String()
	}
	if f := cmd.Flags().Lookup("colormap"); f != nil {
		opts.Colormap = f.Value.String()
	}
	if f := cmd.Flags().Lookup("rotate-text"); f != nil {
		opts.RotateText = f.Value.String() == "true"
	}
	return opts
}

func addFigureFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Figure title")
	cmd.Flags().String("colormap", "", "Colormap name (viridis, plasma, inferno, magma, hsv, tab10)")
}

// writeJSON encodes v as indented JSON.
func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// report prints a plot result: its mapping or data as JSON with --json,
// otherwise a labelled table for matrices and the saved path.
func (a *app) report(out service.Output, opts service.Options) error {
	if a.json {
		if out.Grid != nil {
			return a.writeJSON(out.Grid.Mapping())
		}
		return a.writeJSON(out.Data)
	}

	if out.Grid != nil {
		fmt.Fprintln(a.out, out.Title)
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		m := out.Grid.Mapping()
		for _, c := range out.Grid.ColLabels {
			fmt.Fprintf(tw, "\t%s", c)
		}
		fmt.Fprintln(tw)
		for _, row := range m.Rows {
			fmt.Fprint(tw, row.Row)
			for _, c := range row.Cells {
				fmt.Fprintf(tw, "\t%s", strings.ReplaceAll(c.Value, "\n", " "))
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if opts.SaveFile != "" {
		fmt.Fprintf(a.out, "saved %s\n", opts.SaveFile)
	}
	return nil
}
