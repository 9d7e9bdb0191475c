package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/service"
)

// addSelectionFlags registers the network and grouping flags of every
// population relation command.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("sources", "", "Comma separated source networks, or 'all'")
	cmd.Flags().String("targets", "", "Comma separated target networks, or 'all'")
	cmd.Flags().String("sids", "", "Comma separated grouping column per source network")
	cmd.Flags().String("tids", "", "Comma separated grouping column per target network")
	cmd.Flags().Bool("no-prepend-pop", false, "Do not prefix group labels with the network name")
	cmd.Flags().Bool("no-gap", false, "Exclude gap junctions")
}

// selectionParams maps the selection flags to request parameters.
func selectionParams(cmd *cobra.Command) map[string]string {
	params := make(map[string]string)
	for flag, key := range map[string]string{
		"sources": service.ParamSources,
		"targets": service.ParamTargets,
		"sids":    service.ParamSIDs,
		"tids":    service.ParamTIDs,
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			params[key] = v
		}
	}
	noPrepend, _ := cmd.Flags().GetBool("no-prepend-pop")
	noGap, _ := cmd.Flags().GetBool("no-gap")
	params[service.ParamPrependPop] = strconv.FormatBool(!noPrepend)
	params[service.ParamIncludeGap] = strconv.FormatBool(!noGap)
	return params
}

func selection(cmd *cobra.Command) (analysis.Selection, error) {
	return service.SelectionFromParams(selectionParams(cmd))
}

func newMatrixCmd(kind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := selectionParams(cmd)
			// Only one of method and synaptic-info is registered per kind.
			if v, _ := cmd.Flags().GetString("method"); v != "" {
				params[service.ParamMethod] = v
			}
			if v, _ := cmd.Flags().GetString("synaptic-info"); v != "" {
				params[service.ParamSynapticInfo] = v
			}
			req, err := service.MatrixRequestFromParams(kind, params)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Matrix(cmd.Context(), req, opts)
			if err != nil {
				return err
			}
			return a.report(out, opts)
		},
	}
	addSelectionFlags(cmd)
	addFigureFlags(cmd)
	cmd.Flags().Bool("rotate-text", false, "Slant cell annotations")

	switch kind {
	case service.KindTotal:
		cmd.Flags().String("synaptic-info", "0", "0 total, 1 mean and stdev per target, 2 synapse mod files, 3 dynamics param files")
	case service.KindPercent:
		cmd.Flags().String("method", "total", "total, uni or bi")
	case service.KindConvergence, service.KindDivergence:
		cmd.Flags().String("method", "mean+std", "min, max, std, mean or mean+std")
	case service.KindGap:
		cmd.Flags().String("method", "convergence", "convergence or percent")
	}
	return cmd
}

// ratioJSON is a binned ratio with empty bins as null.
type ratioJSON struct {
	X []float64  `json:"x"`
	Y []*float64 `json:"y"`
}

func finiteRatios(in map[string]connectivity.BinnedRatio) map[string]ratioJSON {
	out := make(map[string]ratioJSON, len(in))
	for k, r := range in {
		y := make([]*float64, len(r.Y))
		for i, v := range r.Y {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				v := v
				y[i] = &v
			}
		}
		out[k] = ratioJSON{X: r.X, Y: y}
	}
	return out
}

func newProbabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probability",
		Short: "Connection probability against distance",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selection(cmd)
			if err != nil {
				return err
			}
			var axes analysis.Axes
			axes[0], _ = cmd.Flags().GetBool("dist-x")
			axes[1], _ = cmd.Flags().GetBool("dist-y")
			axes[2], _ = cmd.Flags().GetBool("dist-z")
			bins, _ := cmd.Flags().GetInt("bins")
			line, _ := cmd.Flags().GetBool("line-plot")
			verbose, _ := cmd.Flags().GetBool("verbose")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Probability(cmd.Context(), service.ProbabilityRequest{
				Selection: sel,
				Axes:      axes,
				Bins:      bins,
				LinePlot:  line,
				Verbose:   verbose,
			}, opts)
			if err != nil {
				return err
			}
			if a.json {
				return a.writeJSON(finiteRatios(out.Data.(map[string]connectivity.BinnedRatio)))
			}
			return a.report(out, opts)
		},
	}
	addSelectionFlags(cmd)
	addFigureFlags(cmd)
	cmd.Flags().Bool("dist-x", true, "Include x in the distance")
	cmd.Flags().Bool("dist-y", true, "Include y in the distance")
	cmd.Flags().Bool("dist-z", true, "Include z in the distance")
	cmd.Flags().Int("bins", 8, "Number of distance bins")
	cmd.Flags().Bool("line-plot", false, "Draw lines instead of bars")
	cmd.Flags().Bool("verbose", false, "Log the ratio of every bin at trace level")
	return cmd
}

func newHistogramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Histogram of connections per target cell for one group pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selection(cmd)
			if err != nil {
				return err
			}
			srcCell, _ := cmd.Flags().GetString("source-cell")
			tgtCell, _ := cmd.Flags().GetString("target-cell")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.ConnectionHistogram(cmd.Context(), service.HistogramRequest{
				Selection:  sel,
				SourceCell: srcCell,
				TargetCell: tgtCell,
			}, opts)
			if err != nil {
				return err
			}
			if !a.json {
				h := out.Data.(analysis.ConnectionHistogram)
				fmt.Fprintf(a.out, "%s -> %s: %s\n", h.Source, h.Target, h.Summary.Label())
			}
			return a.report(out, opts)
		},
	}
	addSelectionFlags(cmd)
	addFigureFlags(cmd)
	cmd.Flags().String("source-cell", "", "Source group label")
	cmd.Flags().String("target-cell", "", "Target group label")
	return cmd
}

func newEdgeHistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge-hist",
		Short: "Histogram matrix of an edge property",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selection(cmd)
			if err != nil {
				return err
			}
			prop, _ := cmd.Flags().GetString("edge-property")
			bins, _ := cmd.Flags().GetInt("bins")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.EdgeHistogram(cmd.Context(), service.EdgeHistogramRequest{
				Selection: sel,
				Property:  prop,
				Bins:      bins,
			}, opts)
			if err != nil {
				return err
			}
			return a.report(out, opts)
		},
	}
	addSelectionFlags(cmd)
	addFigureFlags(cmd)
	cmd.Flags().String("edge-property", "", "Edge column to histogram")
	cmd.Flags().Int("bins", 10, "Number of bins")
	return cmd
}

func newConnectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connector <report.csv|report.xlsx>",
		Short: "Percent connectivity matrix of a connection report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read connection report: %w", err)
			}
			exclude, _ := cmd.Flags().GetStringSlice("exclude")
			assemblyKey, _ := cmd.Flags().GetString("assembly-key")
			popOrder, _ := cmd.Flags().GetStringSlice("pop-order")

			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Connector(cmd.Context(), args[0], data, connectivity.ConnectorOptions{
				Exclude:     exclude,
				AssemblyKey: assemblyKey,
				PopOrder:    popOrder,
			}, opts)
			if err != nil {
				return err
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	cmd.Flags().Bool("rotate-text", false, "Slant cell annotations")
	cmd.Flags().StringSlice("exclude", nil, "Substrings of population names to drop")
	cmd.Flags().String("assembly-key", "", "Substring marking assembly populations to average")
	cmd.Flags().StringSlice("pop-order", nil, "Populations to keep, in axis order")
	return cmd
}
