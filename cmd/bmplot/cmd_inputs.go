package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/service"
)

func newClampsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iclamps",
		Short: "Plot the current clamps of the simulation inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.Clamps(cmd.Context(), opts)
			if err != nil {
				return err
			}
			traces := out.Data.([]analysis.ClampTrace)
			if !a.json {
				if len(traces) == 0 {
					fmt.Fprintln(a.out, "No current clamps were found.")
					return nil
				}
				for _, tr := range traces {
					fmt.Fprintf(a.out, "%s: %s, %d steps\n", tr.Name, tr.Label(), len(tr.Times)-1)
				}
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	return cmd
}

func newInputSpikesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspikes",
		Short: "Plot the input spike trains of the simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := figureOptions(cmd)
			out, err := a.svc.InputSpikes(cmd.Context(), opts)
			if err != nil {
				return err
			}
			trains := out.Data.([]analysis.InputTrain)
			if !a.json {
				if len(trains) == 0 {
					fmt.Fprintln(a.out, "No spike trains were found.")
					return nil
				}
				for _, tr := range trains {
					fmt.Fprintf(a.out, "%s: %s, %d spikes\n", tr.Name, tr.Title(), len(tr.Times))
				}
			}
			return a.report(out, opts)
		},
	}
	addFigureFlags(cmd)
	return cmd
}

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Summarise a simulation: cells, connectivity, inputs and positions",
		Long: `setup prints the cell table of every network and draws, in order, the
connection probability of one network, the current clamps, the input spike
trains, the total connection matrix and the 3D positions. Figures go to
--dir when set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.SetupRequest{}
			req.Network, _ = cmd.Flags().GetString("network")
			req.Dir, _ = cmd.Flags().GetString("dir")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.svc.Setup(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.json {
				steps := make([]string, len(rep.Steps))
				for i, st := range rep.Steps {
					steps[i] = st.Name
				}
				return a.writeJSON(map[string]interface{}{
					"networks":    rep.Cells,
					"biophysical": rep.Biophysical,
					"network":     rep.Network,
					"figures":     steps,
				})
			}

			if err := a.printCells(rep.Cells, rep.Biophysical); err != nil {
				return err
			}
			for _, st := range rep.Steps {
				if req.Dir != "" {
					fmt.Fprintf(a.out, "saved %s\n", filepath.Join(req.Dir, st.Name+".png"))
					continue
				}
				fmt.Fprintf(a.out, "%s: %s\n", st.Name, st.Output.Title)
			}
			return nil
		},
	}
	cmd.Flags().String("network", "", "Network of the probability plot (default the biophysical network)")
	cmd.Flags().String("dir", "", "Directory that receives one PNG per figure")
	return cmd
}
