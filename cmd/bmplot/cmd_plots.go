package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/api"
	"github.com/davidfague/bmtool/internal/service"
)

func newDistanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Plot the targets of one source cell and their distances",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := analysis.DistanceQuery{}
			q.Source, _ = cmd.Flags().GetString("source")
			q.Target, _ = cmd.Flags().GetString("target")
			q.SourceCellID, _ = cmd.Flags().GetInt64("source-cell-id")
			q.TargetIDType, _ = cmd.Flags().GetString("target-id-type")
			q.IgnoreZ, _ = cmd.Flags().GetBool("ignore-z")
			q.Bins, _ = cmd.Flags().GetInt("bins")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Distance(cmd.Context(), q, opts)
			if err != nil {
				return err
			}
			if !a.json {
				res := out.Data.(analysis.DistanceResult)
				fmt.Fprintf(a.out, "%d targets of %s cell %d\n", len(res.Targets), q.Source, q.SourceCellID)
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	cmd.Flags().String("source", "", "Source network")
	cmd.Flags().String("target", "", "Target network")
	cmd.Flags().Int64("source-cell-id", 0, "Node id of the source cell")
	cmd.Flags().String("target-id-type", "", "Keep edges whose target_query contains this text")
	cmd.Flags().Bool("ignore-z", false, "Measure and draw in the xy plane")
	cmd.Flags().Int("bins", 20, "Number of distance histogram bins")
	return cmd
}

func newRasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raster",
		Short: "Spike raster colored by population",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.RasterRequest{}
			req.Network, _ = cmd.Flags().GetString("network")
			for _, name := range []string{"tstart", "tstop"} {
				if !cmd.Flags().Changed(name) {
					continue
				}
				v, _ := cmd.Flags().GetFloat64(name)
				if name == "tstart" {
					req.TStart = &v
				} else {
					req.TStop = &v
				}
			}
			cm, _ := cmd.Flags().GetString("color-map")
			colors, err := api.ParseColorMap(cm)
			if err != nil {
				return err
			}
			req.ColorMap = colors

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Raster(cmd.Context(), req, opts)
			if err != nil {
				return err
			}
			if !a.json {
				for _, g := range out.Data.([]analysis.SpikeGroup) {
					fmt.Fprintf(a.out, "%s: %d spikes\n", g.Population, len(g.Times))
				}
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	cmd.Flags().String("network", "", "Network whose node table names the populations")
	cmd.Flags().Float64("tstart", 0, "Drop spikes before this time")
	cmd.Flags().Float64("tstop", 0, "Drop spikes after this time")
	cmd.Flags().String("color-map", "", "Population colors as pop:color pairs, e.g. PN:red,PV:#00f")
	return cmd
}

func newSpatialCmd(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.SpatialRequest{}
			networks, _ := cmd.Flags().GetString("networks")
			groups, _ := cmd.Flags().GetString("groups")
			req.Query.Networks = analysis.SplitList(networks)
			req.Query.Groups = analysis.SplitList(groups)
			req.Query.GroupBy, _ = cmd.Flags().GetString("group-by")
			req.Query.Subset, _ = cmd.Flags().GetInt("subset")
			if use == "rotations" {
				req.Arrows.Length, _ = cmd.Flags().GetFloat64("quiver-length")
				req.Arrows.HeadRatio, _ = cmd.Flags().GetFloat64("arrow-length-ratio")
			}

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			var out service.Output
			if use == "rotations" {
				out, err = a.svc.Rotations(cmd.Context(), req, opts)
			} else {
				out, err = a.svc.Positions(cmd.Context(), req, opts)
			}
			if err != nil {
				return err
			}
			if !a.json {
				sp := out.Data.(analysis.Spatial)
				for _, g := range sp.Groups {
					fmt.Fprintf(a.out, "%s/%s: %d cells\n", g.Network, g.Name, len(g.Points))
				}
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	cmd.Flags().String("networks", "", "Comma separated networks (default all)")
	cmd.Flags().String("group-by", "pop_name", "Node column that splits cells into groups")
	cmd.Flags().String("groups", "", "Comma separated groups to draw (default all)")
	cmd.Flags().Int("subset", 0, "Draw every Nth cell of a group")
	if use == "rotations" {
		cmd.Flags().Float64("quiver-length", 0, "Arrow length")
		cmd.Flags().Float64("arrow-length-ratio", 0, "Arrow head size relative to its length")
	}
	return cmd
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Population graph in DOT format",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selection(cmd)
			if err != nil {
				return err
			}
			prop, _ := cmd.Flags().GetString("edge-property")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Graph(cmd.Context(), service.GraphRequest{Selection: sel, Property: prop}, opts)
			if err != nil {
				return err
			}
			if opts.SaveFile != "" {
				fmt.Fprintf(a.out, "saved %s\n", opts.SaveFile)
				return nil
			}
			_, err = a.out.Write(out.DOT)
			return err
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().String("title", "", "Graph title")
	cmd.Flags().String("edge-property", "", "Edge column used as edge labels (default model_template)")
	return cmd
}

func newCellsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cells",
		Short: "Count cells per node type in every network",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cells, bio, err := a.svc.Cells(cmd.Context())
			if err != nil {
				return err
			}
			if a.json {
				return a.writeJSON(map[string]interface{}{
					"networks":    cells,
					"biophysical": bio,
				})
			}
			return a.printCells(cells, bio)
		},
	}
}

// printCells writes one line per node type.
func (a *app) printCells(cells []analysis.NetworkCells, bio string) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tNODE TYPE\tPOP NAME\tMODEL TYPE\tTEMPLATE\tMORPHOLOGY\tCOUNT")
	for _, n := range cells {
		for _, c := range n.Cells {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				n.Network, c.NodeTypeID, c.PopName, c.ModelType,
				orDash(c.ModelTemplate), orDash(c.Morphology), c.Count)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if bio != "" {
		fmt.Fprintf(a.out, "biophysical network: %s\n", bio)
	}
	return nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
