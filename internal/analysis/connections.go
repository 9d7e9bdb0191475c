package analysis

import (
	"context"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
)

// Cell is one reduced relation: the value that colours the heatmap and the
// text drawn on it.
type Cell struct {
	Value float64
	Text  string
}

func cellOf(c Cell) (float64, string) { return c.Value, c.Text }

// Result is a titled heatmap grid.
type Result struct {
	Title string
	Grid  connectivity.Grid
}

// SynapticInfo selects what a total connection matrix reports.
type SynapticInfo string

const (
	InfoTotal     SynapticInfo = "0"
	InfoMeanStd   SynapticInfo = "1"
	InfoModFiles  SynapticInfo = "2"
	InfoJSONFiles SynapticInfo = "3"
)

// Title returns the default heatmap title for the info kind.
func (s SynapticInfo) Title() string {
	switch s {
	case InfoMeanStd:
		return "Mean and Stdev # of Conn on Target"
	case InfoModFiles:
		return "All Synapse .mod Files Used"
	case InfoJSONFiles:
		return "All Synapse .json Files Used"
	}
	return "Total Connections"
}

// ParseSynapticInfo validates a synaptic_info flag value.
func ParseSynapticInfo(s string) (SynapticInfo, error) {
	switch v := SynapticInfo(s); v {
	case InfoTotal, InfoMeanStd, InfoModFiles, InfoJSONFiles:
		return v, nil
	case "":
		return InfoTotal, nil
	}
	return "", invalidMethod("synaptic_info", s, "0", "1", "2", "3")
}

// Totals counts the edges of each group pair, or summarises them as
// selected by info.
func Totals(ctx context.Context, src network.Source, sel Selection, info SynapticInfo) (Result, error) {
	rel, err := Relate(ctx, src, sel, func(p Pair) (Cell, error) {
		n := float64(p.Edges.Len())
		switch info {
		case InfoMeanStd:
			if n == 0 {
				return Cell{Text: "0"}, nil
			}
			s := Summarize(countsBy(p.Edges, network.ColTargetNodeID))
			return Cell{Value: s.Mean, Text: meanStdText(s.Mean, s.Std)}, nil
		case InfoModFiles:
			return uniqueText(p.Edges, network.ColTemplate, n)
		case InfoJSONFiles:
			return uniqueText(p.Edges, network.ColDynamics, n)
		}
		return Cell{Value: n, Text: strconv.Itoa(p.Edges.Len())}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Title: info.Title(), Grid: rel.Grid(cellOf)}, nil
}

func meanStdText(mean, std float64) string {
	return formatNumber(mean) + "\n(" + formatNumber(std) + ")"
}

func uniqueText(edges *tables.Table, col string, n float64) (Cell, error) {
	if edges.Len() == 0 {
		return Cell{Value: n}, nil
	}
	if err := edges.Require(col); err != nil {
		return Cell{}, err
	}
	return Cell{Value: n, Text: strings.Join(edges.Unique(col), "\n")}, nil
}

// PercentMethod selects which connected pairs count towards percent
// connectivity.
type PercentMethod string

const (
	PercentTotal PercentMethod = "total"
	PercentUni   PercentMethod = "uni"
	PercentBi    PercentMethod = "bi"
)

// ParsePercentMethod validates a percent method flag value.
func ParsePercentMethod(s string) (PercentMethod, error) {
	switch m := PercentMethod(s); m {
	case PercentTotal, PercentUni, PercentBi:
		return m, nil
	case "":
		return PercentTotal, nil
	}
	return "", invalidMethod("method", s, "total", "uni", "bi")
}

type nodePair struct{ s, t string }

func uniquePairs(edges *tables.Table) map[nodePair]struct{} {
	out := make(map[nodePair]struct{}, edges.Len())
	for i := 0; i < edges.Len(); i++ {
		out[nodePair{edges.String(i, network.ColSourceNodeID), edges.String(i, network.ColTargetNodeID)}] = struct{}{}
	}
	return out
}

// percentOf returns the connected share of all source-target node pairs,
// in percent and rounded to two decimals.
func percentOf(connected int, p Pair) float64 {
	possible := p.SourceNodes.Len() * p.TargetNodes.Len()
	if possible == 0 {
		return 0
	}
	return round2(float64(connected) / float64(possible) * 100)
}

// Percent reports the percentage of connected source-target node pairs.
// Uni counts pairs without a reverse connection, bi those with one.
func Percent(ctx context.Context, src network.Source, sel Selection, method PercentMethod) (Result, error) {
	rel, err := Relate(ctx, src, sel, func(p Pair) (Cell, error) {
		pairs := uniquePairs(p.Edges)
		var n int
		switch method {
		case PercentUni, PercentBi:
			reverse := uniquePairs(p.Reverse)
			for k := range pairs {
				_, bi := reverse[nodePair{k.t, k.s}]
				if bi == (method == PercentBi) {
					n++
				}
			}
		default:
			n = len(pairs)
		}
		v := percentOf(n, p)
		return Cell{Value: v, Text: formatNumber(v)}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Title: "Percent Connectivity", Grid: rel.Grid(cellOf)}, nil
}

// SpreadMethod selects the statistic of a convergence or divergence matrix.
type SpreadMethod string

const (
	SpreadMin     SpreadMethod = "min"
	SpreadMax     SpreadMethod = "max"
	SpreadStd     SpreadMethod = "std"
	SpreadMean    SpreadMethod = "mean"
	SpreadMeanStd SpreadMethod = "mean+std"
)

// ParseSpreadMethod validates a convergence or divergence method.
func ParseSpreadMethod(s string) (SpreadMethod, error) {
	switch m := SpreadMethod(s); m {
	case SpreadMin, SpreadMax, SpreadStd, SpreadMean, SpreadMeanStd:
		return m, nil
	case "":
		return SpreadMeanStd, nil
	}
	return "", invalidMethod("method", s, "min", "max", "std", "mean", "mean+std")
}

// SpreadTitle is the default title of a convergence or divergence matrix.
func SpreadTitle(method SpreadMethod, convergence bool) string {
	var t string
	switch method {
	case SpreadMin:
		t = "Minimum "
	case SpreadMax:
		t = "Maximum "
	case SpreadStd:
		t = "Standard Deviation "
	case SpreadMean:
		t = "Mean "
	default:
		t = "Mean + Std "
	}
	if convergence {
		return t + "Synaptic Convergence"
	}
	return t + "Synaptic Divergence"
}

// spread reduces per-node connection counts. Standard deviation is the
// population form.
func spread(counts []float64, method SpreadMethod) Cell {
	if len(counts) == 0 {
		return Cell{Text: "0"}
	}
	var v float64
	switch method {
	case SpreadMin:
		v = floats.Min(counts)
	case SpreadMax:
		v = floats.Max(counts)
	case SpreadStd:
		v = stat.PopStdDev(counts, nil)
	case SpreadMean:
		v = stat.Mean(counts, nil)
	default:
		mean, std := stat.PopMeanStdDev(counts, nil)
		return Cell{Value: round2(mean), Text: meanStdText(mean, std)}
	}
	return Cell{Value: round2(v), Text: formatNumber(v)}
}

// Divergence reports how many connections each source node makes, or with
// convergence how many each target node receives, reduced by method.
func Divergence(ctx context.Context, src network.Source, sel Selection, convergence bool, method SpreadMethod) (Result, error) {
	col := network.ColSourceNodeID
	if convergence {
		col = network.ColTargetNodeID
	}
	rel, err := Relate(ctx, src, sel, func(p Pair) (Cell, error) {
		return spread(countsBy(p.Edges, col), method), nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Title: SpreadTitle(method, convergence), Grid: rel.Grid(cellOf)}, nil
}

// GapMethod selects the gap junction statistic.
type GapMethod string

const (
	GapConvergence GapMethod = "convergence"
	GapPercent     GapMethod = "percent"
)

// ParseGapMethod validates a gap junction method.
func ParseGapMethod(s string) (GapMethod, error) {
	switch m := GapMethod(s); m {
	case GapConvergence, GapPercent:
		return m, nil
	case "":
		return GapConvergence, nil
	}
	return "", &ConfigurationError{Field: "method", Reason: "type must be 'convergence' or 'percent'"}
}

// GapTitle is the default title of a gap junction matrix.
func GapTitle(method GapMethod) string {
	if method == GapPercent {
		return "Gap Junction Percent Connectivity"
	}
	return "Gap Junction Syn Convergence"
}

// GapJunctions reduces gap junction edges only and drops the rows and
// columns left without data.
func GapJunctions(ctx context.Context, src network.Source, sel Selection, method GapMethod) (Result, error) {
	if method != GapConvergence && method != GapPercent {
		return Result{}, &ConfigurationError{Field: "method", Reason: "type must be 'convergence' or 'percent'"}
	}
	sel.IncludeGap = true
	rel, err := Relate(ctx, src, sel, func(p Pair) (Cell, error) {
		gaps := p.Edges
		if gaps.Has(network.ColGapJunction) {
			gaps = gaps.Filter(func(i int) bool { return gaps.Bool(i, network.ColGapJunction) })
		} else {
			gaps = gaps.Filter(func(int) bool { return false })
		}
		if method == GapPercent {
			v := percentOf(len(uniquePairs(gaps)), p)
			return Cell{Value: v, Text: formatNumber(v)}, nil
		}
		return spread(countsBy(gaps, network.ColTargetNodeID), SpreadMeanStd), nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Title: GapTitle(method), Grid: connectivity.FilterRowsAndColumns(rel.Grid(cellOf))}, nil
}
