// Package analysis reduces network node and edge tables to the per-group
// matrices and series that bmplot draws.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
)

// DefaultGroupColumn groups nodes when no id column is given for a network.
const DefaultGroupColumn = network.ColNodeTypeID

// Selection picks the networks and node groupings of a relation matrix.
type Selection struct {
	Sources []string
	Targets []string
	// SIDs and TIDs name the grouping column per source and target network.
	// Missing entries use DefaultGroupColumn; an empty entry puts the whole
	// network in one group labelled with its name.
	SIDs       []string
	TIDs       []string
	PrependPop bool
	IncludeGap bool
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports a ConfigurationError for an empty source or target list.
func (s Selection) Validate() error {
	return requireNetworks(len(s.Sources) > 0, len(s.Targets) > 0)
}

// requireNetworks names the first missing side of a source/target pair.
func requireNetworks(haveSources, haveTargets bool) error {
	switch {
	case !haveSources:
		return &ConfigurationError{Field: "sources", Reason: "Sources or targets not defined"}
	case !haveTargets:
		return &ConfigurationError{Field: "targets", Reason: "Sources or targets not defined"}
	}
	return nil
}

func groupColumn(ids []string, i int) string {
	if i < len(ids) {
		return ids[i]
	}
	return DefaultGroupColumn
}

// Pair is the input of a relation function: one source group, one target
// group and the edges between them.
type Pair struct {
	SourceNetwork string
	TargetNetwork string
	SourceLabel   string
	TargetLabel   string
	SourceValue   string
	TargetValue   string
	SourceNodes   *tables.Table
	TargetNodes   *tables.Table
	// Edges carry source_ and target_ prefixed node columns.
	Edges *tables.Table
	// Reverse holds the edges of the same table running from the target
	// group back to the source group.
	Reverse *tables.Table
}

// Relation is a labelled grid of per-pair results. Present is false for
// pairs without an edge table.
type Relation[T any] struct {
	RowLabels []string
	ColLabels []string
	// RowValues and ColValues are the raw group values behind the labels.
	RowValues []string
	ColValues []string
	Cells     [][]T
	Present   [][]bool
}

// Grid converts the relation into a connectivity grid. Absent cells hold 0
// with empty annotation text.
func (r *Relation[T]) Grid(cell func(T) (float64, string)) connectivity.Grid {
	g := connectivity.Grid{
		Values:      connectivity.NewMatrix(len(r.RowLabels), len(r.ColLabels)),
		Annotations: make([][]string, len(r.RowLabels)),
		RowLabels:   append([]string(nil), r.RowLabels...),
		ColLabels:   append([]string(nil), r.ColLabels...),
	}
	for i := range r.RowLabels {
		g.Annotations[i] = make([]string, len(r.ColLabels))
		for j := range r.ColLabels {
			if !r.Present[i][j] {
				continue
			}
			v, text := cell(r.Cells[i][j])
			g.Values.Set(i, j, v)
			g.Annotations[i][j] = text
		}
	}
	return g
}

// Find returns the first present cell whose source and target match by
// label or by raw group value.
func (r *Relation[T]) Find(source, target string) (T, bool) {
	var zero T
	for i := range r.RowLabels {
		for j := range r.ColLabels {
			if !r.Present[i][j] {
				continue
			}
			srcOK := r.RowLabels[i] == source || r.RowValues[i] == source
			tgtOK := r.ColLabels[j] == target || r.ColValues[j] == target
			if srcOK && tgtOK {
				return r.Cells[i][j], true
			}
		}
	}
	return zero, false
}

type group struct {
	network string
	label   string
	value   string
	nodes   *tables.Table
}

type axis struct {
	groups []group
	// start is the first group index of each network.
	start map[string]int
	count map[string]int
	col   map[string]string
	nodes map[string]*tables.Table
}

func (a *axis) labels() (labels, values []string) {
	labels = make([]string, len(a.groups))
	values = make([]string, len(a.groups))
	for i, g := range a.groups {
		labels[i], values[i] = g.label, g.value
	}
	return labels, values
}

// Relate evaluates fn on every (source group, target group) pair of the
// selection. Networks without an edge table to any counterpart are left
// off the axes.
func Relate[T any](ctx context.Context, src network.Source, sel Selection, fn func(Pair) (T, error)) (*Relation[T], error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	sources, err := network.Expand(src, sel.Sources)
	if err != nil {
		return nil, err
	}
	targets, err := network.Expand(src, sel.Targets)
	if err != nil {
		return nil, err
	}

	edgeSets := make(map[string]*tables.Table)
	hasOut := make(map[string]bool)
	hasIn := make(map[string]bool)
	for _, s := range sources {
		for _, t := range targets {
			e, err := src.Edges(ctx, s, t)
			if errors.Is(err, network.ErrNoEdges) {
				continue
			}
			if err != nil {
				return nil, err
			}
			edgeSets[network.EdgeKey(s, t)] = e
			hasOut[s] = true
			hasIn[t] = true
		}
	}

	rows, err := buildAxis(ctx, src, sources, sel.SIDs, hasOut, sel.PrependPop)
	if err != nil {
		return nil, err
	}
	cols, err := buildAxis(ctx, src, targets, sel.TIDs, hasIn, sel.PrependPop)
	if err != nil {
		return nil, err
	}

	rel := &Relation[T]{
		Cells:   make([][]T, len(rows.groups)),
		Present: make([][]bool, len(rows.groups)),
	}
	rel.RowLabels, rel.RowValues = rows.labels()
	rel.ColLabels, rel.ColValues = cols.labels()
	for i := range rel.Cells {
		rel.Cells[i] = make([]T, len(cols.groups))
		rel.Present[i] = make([]bool, len(cols.groups))
	}

	for _, s := range sources {
		if !hasOut[s] {
			continue
		}
		for _, t := range targets {
			edges, ok := edgeSets[network.EdgeKey(s, t)]
			if !ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := relatePair(rel, rows, cols, s, t, edges, sel.IncludeGap, fn); err != nil {
				return nil, fmt.Errorf("%s: %w", network.EdgeKey(s, t), err)
			}
		}
	}
	return rel, nil
}

func buildAxis(ctx context.Context, src network.Source, nets, ids []string, keep map[string]bool, prepend bool) (*axis, error) {
	a := &axis{
		start: make(map[string]int),
		count: make(map[string]int),
		col:   make(map[string]string),
		nodes: make(map[string]*tables.Table),
	}
	for i, net := range nets {
		if !keep[net] {
			continue
		}
		if _, dup := a.start[net]; dup {
			continue
		}
		nodes, err := src.Nodes(ctx, net)
		if err != nil {
			return nil, err
		}
		col := groupColumn(ids, i)
		a.start[net] = len(a.groups)
		a.col[net] = col
		a.nodes[net] = nodes
		if col == "" {
			a.groups = append(a.groups, group{network: net, label: net, nodes: nodes})
			a.count[net] = 1
			continue
		}
		if err := nodes.Require(col); err != nil {
			return nil, err
		}
		values, idx := nodes.GroupBy(col)
		for _, v := range values {
			label := v
			if prepend {
				label = net + "_" + v
			}
			a.groups = append(a.groups, group{network: net, label: label, value: v, nodes: nodes.Rows(idx[v])})
		}
		a.count[net] = len(values)
	}
	return a, nil
}

func relatePair[T any](rel *Relation[T], rows, cols *axis, s, t string, raw *tables.Table, includeGap bool, fn func(Pair) (T, error)) error {
	edges, err := annotateEdges(raw, rows.nodes[s], cols.nodes[t])
	if err != nil {
		return err
	}
	if !includeGap && edges.Has(network.ColGapJunction) {
		edges = edges.Filter(func(i int) bool { return !edges.Bool(i, network.ColGapJunction) })
	}

	sCol, tCol := rows.col[s], cols.col[t]
	type key struct{ s, t string }
	buckets := make(map[key][]int)
	for i := 0; i < edges.Len(); i++ {
		var k key
		if sCol != "" {
			k.s = edges.String(i, "source_"+sCol)
		}
		if tCol != "" {
			k.t = edges.String(i, "target_"+tCol)
		}
		buckets[k] = append(buckets[k], i)
	}

	for a := rows.start[s]; a < rows.start[s]+rows.count[s]; a++ {
		sg := rows.groups[a]
		for b := cols.start[t]; b < cols.start[t]+cols.count[t]; b++ {
			tg := cols.groups[b]
			p := Pair{
				SourceNetwork: s,
				TargetNetwork: t,
				SourceLabel:   sg.label,
				TargetLabel:   tg.label,
				SourceValue:   sg.value,
				TargetValue:   tg.value,
				SourceNodes:   sg.nodes,
				TargetNodes:   tg.nodes,
				Edges:         edges.Rows(buckets[key{sg.value, tg.value}]),
				Reverse:       edges.Rows(buckets[key{tg.value, sg.value}]),
			}
			v, err := fn(p)
			if err != nil {
				return err
			}
			rel.Cells[a][b] = v
			rel.Present[a][b] = true
		}
	}
	return nil
}

// annotateEdges copies raw and joins every node column as source_<col> and
// target_<col>.
func annotateEdges(raw, sNodes, tNodes *tables.Table) (*tables.Table, error) {
	if err := raw.Require(network.ColSourceNodeID, network.ColTargetNodeID); err != nil {
		return nil, err
	}
	edges := raw.Filter(func(int) bool { return true })
	if err := edges.Join(sNodes, network.ColSourceNodeID, network.ColNodeID, "source_"); err != nil {
		return nil, err
	}
	if err := edges.Join(tNodes, network.ColTargetNodeID, network.ColNodeID, "target_"); err != nil {
		return nil, err
	}
	return edges, nil
}
