package analysis

import (
	"context"
	"sort"

	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
)

// SpikeGroup holds the spikes of one population.
type SpikeGroup struct {
	Population string
	Times      []float64
	NodeIDs    []float64
}

// RasterQuery bounds the spikes of a raster plot. Bounds are exclusive.
type RasterQuery struct {
	TStart *float64
	TStop  *float64
}

// Raster groups spikes by population, ordered by name. When nodes is
// given, population names come from it by node id and any pop_name column
// of the spike table is ignored.
func Raster(spikes, nodes *tables.Table, q RasterQuery) ([]SpikeGroup, error) {
	if err := spikes.Require(network.ColTimestamps, network.ColSpikeNodeIDs); err != nil {
		return nil, err
	}
	var popOf func(i int) string
	if nodes != nil {
		if err := nodes.Require(network.ColNodeID, network.ColPopName); err != nil {
			return nil, err
		}
		byID := nodes.Lookup(network.ColNodeID)
		popOf = func(i int) string {
			if j, ok := byID[spikes.String(i, network.ColSpikeNodeIDs)]; ok {
				return nodes.String(j, network.ColPopName)
			}
			return ""
		}
	} else {
		popOf = func(i int) string { return spikes.String(i, network.ColPopName) }
	}

	groups := make(map[string]*SpikeGroup)
	for i := 0; i < spikes.Len(); i++ {
		t, ok := spikes.Float(i, network.ColTimestamps)
		if !ok {
			continue
		}
		if q.TStart != nil && !(t > *q.TStart) {
			continue
		}
		if q.TStop != nil && !(t < *q.TStop) {
			continue
		}
		id, ok := spikes.Float(i, network.ColSpikeNodeIDs)
		if !ok {
			continue
		}
		pop := popOf(i)
		g, ok := groups[pop]
		if !ok {
			g = &SpikeGroup{Population: pop}
			groups[pop] = g
		}
		g.Times = append(g.Times, t)
		g.NodeIDs = append(g.NodeIDs, id)
	}

	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]SpikeGroup, len(names))
	for i, n := range names {
		out[i] = *groups[n]
	}
	return out, nil
}

// CellType is a run of consecutive nodes sharing a node type.
type CellType struct {
	NodeTypeID    string `json:"node_type"`
	PopName       string `json:"pop_name"`
	ModelType     string `json:"model_type"`
	ModelTemplate string `json:"model_template,omitempty"`
	Morphology    string `json:"morphology,omitempty"`
	Count         int    `json:"count"`
}

// NetworkCells summarises the node types of one network.
type NetworkCells struct {
	Network     string     `json:"network"`
	Biophysical bool       `json:"biophysical"`
	Cells       []CellType `json:"cells"`
}

// CellSummary counts runs of consecutive node_type_id values per network.
// It also returns the first biophysical network, if any.
func CellSummary(ctx context.Context, src network.Source) ([]NetworkCells, string, error) {
	var out []NetworkCells
	firstBio := ""
	for _, net := range src.Networks() {
		nodes, err := src.Nodes(ctx, net)
		if err != nil {
			return nil, "", err
		}
		if nodes.Len() == 0 {
			continue
		}
		if err := nodes.Require(network.ColNodeTypeID); err != nil {
			return nil, "", err
		}
		nc := NetworkCells{Network: net, Biophysical: nodes.String(0, network.ColModelType) == "biophysical"}
		if nc.Biophysical && firstBio == "" {
			firstBio = net
		}
		for i := 0; i < nodes.Len(); {
			j := i + 1
			for j < nodes.Len() && nodes.String(j, network.ColNodeTypeID) == nodes.String(i, network.ColNodeTypeID) {
				j++
			}
			ct := CellType{
				NodeTypeID: nodes.String(i, network.ColNodeTypeID),
				PopName:    nodes.String(i, network.ColPopName),
				ModelType:  nodes.String(i, network.ColModelType),
				Count:      j - i,
			}
			if nc.Biophysical {
				ct.ModelTemplate = nodes.String(i, network.ColTemplate)
				ct.Morphology = nodes.String(i, network.ColMorphology)
			}
			nc.Cells = append(nc.Cells, ct)
			i = j
		}
		out = append(out, nc)
	}
	return out, firstBio, nil
}
