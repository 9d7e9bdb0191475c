// Package network loads simulated network node, edge and spike tables.
package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidfague/bmtool/internal/data/tables"
)

// Well-known column names.
const (
	ColNodeID       = "node_id"
	ColNodeTypeID   = "node_type_id"
	ColPopName      = "pop_name"
	ColModelType    = "model_type"
	ColTemplate     = "model_template"
	ColMorphology   = "morphology"
	ColSourceNodeID = "source_node_id"
	ColTargetNodeID = "target_node_id"
	ColEdgeTypeID   = "edge_type_id"
	ColGapJunction  = "is_gap_junction"
	ColDynamics     = "dynamics_params"
	ColTargetQuery  = "target_query"
	ColTimestamps   = "timestamps"
	ColSpikeNodeIDs = "node_ids"
)

// Position columns in x, y, z order.
var PositionColumns = [3]string{"pos_x", "pos_y", "pos_z"}

// Rotation columns in x, y, z order.
var RotationColumns = [3]string{"rotation_angle_xaxis", "rotation_angle_yaxis", "rotation_angle_zaxis"}

var (
	// ErrUnknownNetwork is returned for a network the source does not list.
	ErrUnknownNetwork = errors.New("network: unknown network")
	// ErrNoEdges is returned when no edge table joins two networks.
	ErrNoEdges = errors.New("network: no edges between networks")
	// ErrNoSpikes is returned when the source has no spike table.
	ErrNoSpikes = errors.New("network: no spike table")
)

// Source supplies the tables of one simulated network model. Implementations
// must be safe for concurrent use.
type Source interface {
	// Networks returns the network names in configuration order.
	Networks() []string
	// Nodes returns the node table of a network.
	Nodes(ctx context.Context, network string) (*tables.Table, error)
	// Edges returns the edge table from source to target.
	Edges(ctx context.Context, source, target string) (*tables.Table, error)
	// Spikes returns the spike table.
	Spikes(ctx context.Context) (*tables.Table, error)
	// Inputs returns the current clamps and input spike trains.
	Inputs(ctx context.Context) (Inputs, error)
}

// EdgeKey is the conventional "src_to_tgt" key of an edge table.
func EdgeKey(source, target string) string {
	return source + "_to_" + target
}

// Expand resolves "all" to every network of src and checks the rest.
func Expand(src Source, names []string) ([]string, error) {
	known := make(map[string]struct{})
	for _, n := range src.Networks() {
		known[n] = struct{}{}
	}
	var out []string
	for _, n := range names {
		if n == "all" {
			out = append(out, src.Networks()...)
			continue
		}
		if _, ok := known[n]; !ok {
			return nil, fmt.Errorf("%q: %w", n, ErrUnknownNetwork)
		}
		out = append(out, n)
	}
	return out, nil
}

// Memory is a Source over tables already in memory.
type Memory struct {
	Order    []string
	NodeSets map[string]*tables.Table
	EdgeSets map[string]*tables.Table
	SpikeSet *tables.Table
	InputSet Inputs
}

// Networks implements Source.
func (m *Memory) Networks() []string { return append([]string(nil), m.Order...) }

// Nodes implements Source.
func (m *Memory) Nodes(_ context.Context, network string) (*tables.Table, error) {
	t, ok := m.NodeSets[network]
	if !ok {
		return nil, fmt.Errorf("%q: %w", network, ErrUnknownNetwork)
	}
	return t, nil
}

// Edges implements Source.
func (m *Memory) Edges(_ context.Context, source, target string) (*tables.Table, error) {
	t, ok := m.EdgeSets[EdgeKey(source, target)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", EdgeKey(source, target), ErrNoEdges)
	}
	return t, nil
}

// Spikes implements Source.
func (m *Memory) Spikes(context.Context) (*tables.Table, error) {
	if m.SpikeSet == nil {
		return nil, ErrNoSpikes
	}
	return m.SpikeSet, nil
}

// MissingColumnError names the table and a required column it lacks.
type MissingColumnError = tables.MissingColumnError

// ErrMissingColumn matches every *MissingColumnError.
var ErrMissingColumn = tables.ErrMissingColumn
