package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/render"
)

// Matrix kinds.
const (
	KindTotal       = "total"
	KindPercent     = "percent"
	KindConvergence = "convergence"
	KindDivergence  = "divergence"
	KindGap         = "gap"
)

// MatrixKinds lists the heatmap kinds served by Matrix.
var MatrixKinds = []string{KindTotal, KindPercent, KindConvergence, KindDivergence, KindGap}

// Request parameter names.
const (
	ParamSources      = "sources"
	ParamTargets      = "targets"
	ParamSIDs         = "sids"
	ParamTIDs         = "tids"
	ParamPrependPop   = "prepend_pop"
	ParamIncludeGap   = "include_gap"
	ParamSynapticInfo = "synaptic_info"
	ParamMethod       = "method"
)

// MatrixRequest selects one heatmap reduction.
type MatrixRequest struct {
	Kind         string
	Selection    analysis.Selection
	SynapticInfo analysis.SynapticInfo
	// Method is the percent, spread or gap method, depending on Kind.
	Method string
}

// Validate checks the kind, the selection and the method before any table
// is read.
func (r MatrixRequest) Validate() error {
	if err := r.Selection.Validate(); err != nil {
		return err
	}
	var err error
	switch r.Kind {
	case KindTotal:
		_, err = analysis.ParseSynapticInfo(string(r.SynapticInfo))
	case KindPercent:
		_, err = analysis.ParsePercentMethod(r.Method)
	case KindConvergence, KindDivergence:
		_, err = analysis.ParseSpreadMethod(r.Method)
	case KindGap:
		_, err = analysis.ParseGapMethod(r.Method)
	default:
		err = &ConfigurationError{Field: "kind", Reason: fmt.Sprintf("unknown matrix kind %q, want one of %v", r.Kind, MatrixKinds)}
	}
	return err
}

// Params flattens the request into string parameters, the form stored with
// render jobs and reports and used for cache keys.
func (r MatrixRequest) Params() map[string]string {
	p := map[string]string{
		ParamSources:    strings.Join(r.Selection.Sources, ","),
		ParamTargets:    strings.Join(r.Selection.Targets, ","),
		ParamSIDs:       strings.Join(r.Selection.SIDs, ","),
		ParamTIDs:       strings.Join(r.Selection.TIDs, ","),
		ParamPrependPop: strconv.FormatBool(r.Selection.PrependPop),
		ParamIncludeGap: strconv.FormatBool(r.Selection.IncludeGap),
	}
	if r.SynapticInfo != "" {
		p[ParamSynapticInfo] = string(r.SynapticInfo)
	}
	if r.Method != "" {
		p[ParamMethod] = r.Method
	}
	return p
}

// MatrixRequestFromParams builds and validates a request from string
// parameters. prepend_pop and include_gap default to true.
func MatrixRequestFromParams(kind string, params map[string]string) (MatrixRequest, error) {
	sel, err := SelectionFromParams(params)
	if err != nil {
		return MatrixRequest{}, err
	}
	req := MatrixRequest{
		Kind:         kind,
		Selection:    sel,
		SynapticInfo: analysis.SynapticInfo(params[ParamSynapticInfo]),
		Method:       params[ParamMethod],
	}
	if err := req.Validate(); err != nil {
		return MatrixRequest{}, err
	}
	return req, nil
}

// SelectionFromParams reads the sources, targets, sids, tids, prepend_pop
// and include_gap parameters.
func SelectionFromParams(params map[string]string) (analysis.Selection, error) {
	prepend, err := boolParam(params, ParamPrependPop, true)
	if err != nil {
		return analysis.Selection{}, err
	}
	includeGap, err := boolParam(params, ParamIncludeGap, true)
	if err != nil {
		return analysis.Selection{}, err
	}
	return analysis.Selection{
		Sources:    analysis.SplitList(params[ParamSources]),
		Targets:    analysis.SplitList(params[ParamTargets]),
		SIDs:       splitIDs(params[ParamSIDs]),
		TIDs:       splitIDs(params[ParamTIDs]),
		PrependPop: prepend,
		IncludeGap: includeGap,
	}, nil
}

// splitIDs keeps empty entries, which put a whole network in one group.
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	ids := strings.Split(s, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	return ids
}

func boolParam(params map[string]string, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ConfigurationError{Field: key, Reason: fmt.Sprintf("%s must be true or false, got %q", key, v)}
	}
	return b, nil
}

// ProbabilityRequest selects a distance probability grid.
type ProbabilityRequest struct {
	Selection analysis.Selection
	Axes      analysis.Axes
	// Bins defaults to 8.
	Bins     int
	LinePlot bool
	// Verbose logs the X and Y series of every cell at trace level.
	Verbose bool
}

// HistogramRequest selects one source and target group of a connection
// histogram.
type HistogramRequest struct {
	Selection  analysis.Selection
	SourceCell string
	TargetCell string
}

// EdgeHistogramRequest selects a numeric edge property histogram grid.
type EdgeHistogramRequest struct {
	Selection analysis.Selection
	Property  string
	// Bins defaults to 10.
	Bins int
}

// RasterRequest selects the spikes of a raster plot.
type RasterRequest struct {
	// Network names the node table used for population names. When empty
	// and the spike table has no pop_name column, the first network is
	// used.
	Network  string
	TStart   *float64
	TStop    *float64
	ColorMap map[string]string
}

// SpatialRequest selects the node groups of a positions or rotations plot.
type SpatialRequest struct {
	Query analysis.PositionQuery
	// Arrows sizes rotation arrows.
	Arrows render.Arrows
}

// GraphRequest selects the edges of a network graph.
type GraphRequest struct {
	Selection analysis.Selection
	// Property defaults to model_template.
	Property string
}
