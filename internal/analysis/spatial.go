package analysis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/data/tables"
	"github.com/davidfague/bmtool/internal/network"
)

// Point is a position in space.
type Point [3]float64

// Axes selects the coordinates a distance is measured over.
type Axes [3]bool

// AllAxes measures full 3D distance.
var AllAxes = Axes{true, true, true}

func (a Axes) distance(p, q Point) float64 {
	var d [3]float64
	n := 0
	for k := 0; k < 3; k++ {
		if a[k] {
			d[n] = p[k] - q[k]
			n++
		}
	}
	return floats.Norm(d[:n], 2)
}

// positions maps node ids to positions. Nodes with any coordinate missing
// are left out.
func positions(nodes *tables.Table) (map[string]Point, error) {
	cols := network.PositionColumns
	if err := nodes.Require(cols[:]...); err != nil {
		return nil, err
	}
	out := make(map[string]Point, nodes.Len())
	for i := 0; i < nodes.Len(); i++ {
		var p Point
		ok := true
		for k, c := range cols {
			v, has := nodes.Float(i, c)
			if !has {
				ok = false
				break
			}
			p[k] = v
		}
		if ok {
			out[nodes.String(i, network.ColNodeID)] = p
		}
	}
	return out, nil
}

// Probability computes, per group pair, histograms of the distances of all
// candidate node pairs and of connected node pairs over bins equal-width
// bins spanning the candidate distances. A node is never paired with
// itself.
func Probability(ctx context.Context, src network.Source, sel Selection, axes Axes, bins int) (*Relation[connectivity.BinnedCounts], error) {
	if bins < 1 {
		return nil, &ConfigurationError{Field: "bins", Reason: "bins must be positive"}
	}
	if !axes[0] && !axes[1] && !axes[2] {
		return nil, &ConfigurationError{Field: "dist", Reason: "at least one distance axis is required"}
	}
	return Relate(ctx, src, sel, func(p Pair) (connectivity.BinnedCounts, error) {
		sp, err := positions(p.SourceNodes)
		if err != nil {
			return connectivity.BinnedCounts{}, err
		}
		tp, err := positions(p.TargetNodes)
		if err != nil {
			return connectivity.BinnedCounts{}, err
		}
		self := p.SourceNetwork == p.TargetNetwork

		var possible []float64
		for sid, s := range sp {
			for tid, t := range tp {
				if self && sid == tid {
					continue
				}
				possible = append(possible, axes.distance(s, t))
			}
		}
		var connected []float64
		for k := range uniquePairs(p.Edges) {
			if self && k.s == k.t {
				continue
			}
			s, ok1 := sp[k.s]
			t, ok2 := tp[k.t]
			if ok1 && ok2 {
				connected = append(connected, axes.distance(s, t))
			}
		}

		lo, hi, ok := bounds(possible)
		if !ok {
			lo, hi = 0, 1
		}
		edges, pc := Histogram(possible, lo, hi, bins)
		_, cc := Histogram(connected, lo, hi, bins)
		return connectivity.BinnedCounts{Edges: edges, Connected: cc, Possible: pc}, nil
	})
}

// EdgeValues collects a numeric edge property per group pair. Cells that
// do not parse are skipped.
func EdgeValues(ctx context.Context, src network.Source, sel Selection, property string) (*Relation[[]float64], error) {
	if property == "" {
		return nil, &ConfigurationError{Field: "edge_property", Reason: "edge property not defined"}
	}
	return Relate(ctx, src, sel, func(p Pair) ([]float64, error) {
		if p.Edges.Len() == 0 {
			return nil, nil
		}
		if err := p.Edges.Require(property); err != nil {
			return nil, err
		}
		var out []float64
		for i := 0; i < p.Edges.Len(); i++ {
			if v, ok := p.Edges.Float(i, property); ok {
				out = append(out, v)
			}
		}
		return out, nil
	})
}

// EdgeTypes collects the distinct values of an edge property per group
// pair, in first-seen order.
func EdgeTypes(ctx context.Context, src network.Source, sel Selection, property string) (*Relation[[]string], error) {
	if property == "" {
		property = network.ColTemplate
	}
	return Relate(ctx, src, sel, func(p Pair) ([]string, error) {
		if p.Edges.Len() == 0 {
			return nil, nil
		}
		if err := p.Edges.Require(property); err != nil {
			return nil, err
		}
		return p.Edges.Unique(property), nil
	})
}

// ConnectionHistogram is the per-target connection count sample of one
// source and target group.
type ConnectionHistogram struct {
	Source  string
	Target  string
	Counts  []float64
	Summary Summary
}

// PairHistogram counts, for every target node of targetCell, the
// connections it receives from sourceCell.
func PairHistogram(ctx context.Context, src network.Source, sel Selection, sourceCell, targetCell string) (ConnectionHistogram, error) {
	if sourceCell == "" || targetCell == "" {
		return ConnectionHistogram{}, &ConfigurationError{Field: "source_cell", Reason: "source_cell and target_cell are required"}
	}
	rel, err := Relate(ctx, src, sel, func(p Pair) ([]float64, error) {
		if !matches(p.SourceLabel, p.SourceValue, sourceCell) || !matches(p.TargetLabel, p.TargetValue, targetCell) {
			return nil, nil
		}
		return countsBy(p.Edges, network.ColTargetNodeID), nil
	})
	if err != nil {
		return ConnectionHistogram{}, err
	}
	counts, ok := rel.Find(sourceCell, targetCell)
	if !ok {
		return ConnectionHistogram{}, fmt.Errorf("no groups %s -> %s: %w", sourceCell, targetCell, network.ErrNoEdges)
	}
	return ConnectionHistogram{
		Source:  sourceCell,
		Target:  targetCell,
		Counts:  counts,
		Summary: Summarize(counts),
	}, nil
}

func matches(label, value, want string) bool {
	return label == want || value == want
}

// DistanceQuery selects one source cell and its outgoing edges.
type DistanceQuery struct {
	Source       string
	Target       string
	SourceCellID int64
	// TargetIDType keeps edges whose target_query contains it.
	TargetIDType string
	IgnoreZ      bool
	Bins         int
}

// DistanceResult is the geometry of one source cell's targets.
type DistanceResult struct {
	Source    Point
	Targets   []Point
	Distances []float64
	Edges     []float64
	Counts    []float64
}

// Distances measures the distance from one source cell to each of its
// target cells.
func Distances(ctx context.Context, src network.Source, q DistanceQuery) (DistanceResult, error) {
	if err := requireNetworks(q.Source != "", q.Target != ""); err != nil {
		return DistanceResult{}, err
	}
	if q.Bins == 0 {
		q.Bins = 20
	}
	edges, err := src.Edges(ctx, q.Source, q.Target)
	if err != nil {
		return DistanceResult{}, err
	}
	sNodes, err := src.Nodes(ctx, q.Source)
	if err != nil {
		return DistanceResult{}, err
	}
	tNodes, err := src.Nodes(ctx, q.Target)
	if err != nil {
		return DistanceResult{}, err
	}
	sp, err := positions(sNodes)
	if err != nil {
		return DistanceResult{}, err
	}
	tp, err := positions(tNodes)
	if err != nil {
		return DistanceResult{}, err
	}

	id := strconv.FormatInt(q.SourceCellID, 10)
	origin, ok := sp[id]
	if !ok {
		return DistanceResult{}, fmt.Errorf("source cell %s not found in %s", id, q.Source)
	}
	if q.TargetIDType != "" {
		if err := edges.Require(network.ColTargetQuery); err != nil {
			return DistanceResult{}, err
		}
	}

	axes := AllAxes
	if q.IgnoreZ {
		axes[2] = false
	}
	res := DistanceResult{Source: origin}
	seen := make(map[string]bool)
	for i := 0; i < edges.Len(); i++ {
		if sid, ok := edges.Int(i, network.ColSourceNodeID); !ok || sid != q.SourceCellID {
			continue
		}
		if q.TargetIDType != "" && !strings.Contains(edges.String(i, network.ColTargetQuery), q.TargetIDType) {
			continue
		}
		tid := edges.String(i, network.ColTargetNodeID)
		if seen[tid] {
			continue
		}
		seen[tid] = true
		t, ok := tp[tid]
		if !ok {
			continue
		}
		res.Targets = append(res.Targets, t)
		res.Distances = append(res.Distances, axes.distance(origin, t))
	}
	lo, hi, ok := bounds(res.Distances)
	if !ok {
		lo, hi = 0, 1
	}
	res.Edges, res.Counts = Histogram(res.Distances, lo, hi, q.Bins)
	return res, nil
}

// PointGroup is a named set of node positions, with optional unit
// orientation vectors.
type PointGroup struct {
	Network    string
	Name       string
	Points     []Point
	Directions []Point
}

// PositionQuery selects node groups for 3D plots.
type PositionQuery struct {
	Networks []string
	GroupBy  string
	// Subset keeps every Nth node of a group when above 1.
	Subset int
	// Groups, when set, keeps only the named groups.
	Groups []string
}

// Spatial holds the groups to draw and the groups skipped for lack of
// data, as "network/group".
type Spatial struct {
	Groups  []PointGroup
	Skipped []string
}

func (q PositionQuery) networks(src network.Source) ([]string, error) {
	if len(q.Networks) == 0 {
		return src.Networks(), nil
	}
	return network.Expand(src, q.Networks)
}

func (q PositionQuery) groups(nodes *tables.Table, net string) ([]string, map[string][]int, error) {
	col := q.GroupBy
	if col == "" {
		col = DefaultGroupColumn
	}
	if !nodes.Has(col) {
		return nil, nil, &network.MissingColumnError{Table: net, Column: col}
	}
	keys, idx := nodes.GroupBy(col)
	if len(q.Groups) > 0 {
		keep := make(map[string]bool, len(q.Groups))
		for _, g := range q.Groups {
			keep[g] = true
		}
		var kept []string
		for _, k := range keys {
			if keep[k] {
				kept = append(kept, k)
			}
		}
		keys = kept
	}
	if q.Subset > 1 {
		for k, rows := range idx {
			var sub []int
			for i := 0; i < len(rows); i += q.Subset {
				sub = append(sub, rows[i])
			}
			idx[k] = sub
		}
	}
	return keys, idx, nil
}

func hasPositions(nodes *tables.Table) bool {
	for _, c := range network.PositionColumns {
		if !nodes.Has(c) {
			return false
		}
	}
	return true
}

func pointAt(nodes *tables.Table, i int, cols [3]string) Point {
	var p Point
	for k, c := range cols {
		p[k], _ = nodes.Float(i, c)
	}
	return p
}

// Positions groups node positions per network by a node column.
func Positions(ctx context.Context, src network.Source, q PositionQuery) (Spatial, error) {
	nets, err := q.networks(src)
	if err != nil {
		return Spatial{}, err
	}
	var out Spatial
	for _, net := range nets {
		nodes, err := src.Nodes(ctx, net)
		if err != nil {
			return Spatial{}, err
		}
		keys, idx, err := q.groups(nodes, net)
		if err != nil {
			return Spatial{}, err
		}
		for _, k := range keys {
			if !hasPositions(nodes) {
				out.Skipped = append(out.Skipped, net+"/"+k)
				continue
			}
			g := PointGroup{Network: net, Name: k}
			for _, i := range idx[k] {
				g.Points = append(g.Points, pointAt(nodes, i, network.PositionColumns))
			}
			out.Groups = append(out.Groups, g)
		}
	}
	return out, nil
}

// Rotations returns node positions with the unit x vector rotated by each
// node's extrinsic xyz Euler angles, in radians. Missing angles are zero.
// Groups without positions or any rotation column are skipped.
func Rotations(ctx context.Context, src network.Source, q PositionQuery) (Spatial, error) {
	nets, err := q.networks(src)
	if err != nil {
		return Spatial{}, err
	}
	var out Spatial
	for _, net := range nets {
		nodes, err := src.Nodes(ctx, net)
		if err != nil {
			return Spatial{}, err
		}
		keys, idx, err := q.groups(nodes, net)
		if err != nil {
			return Spatial{}, err
		}
		rotated := false
		for _, c := range network.RotationColumns {
			rotated = rotated || nodes.Has(c)
		}
		for _, k := range keys {
			if !hasPositions(nodes) || !rotated {
				out.Skipped = append(out.Skipped, net+"/"+k)
				continue
			}
			g := PointGroup{Network: net, Name: k}
			for _, i := range idx[k] {
				g.Points = append(g.Points, pointAt(nodes, i, network.PositionColumns))
				g.Directions = append(g.Directions, RotateUnitX(pointAt(nodes, i, network.RotationColumns)))
			}
			out.Groups = append(out.Groups, g)
		}
	}
	return out, nil
}

// RotateUnitX applies the extrinsic rotation about x, then y, then z by the
// given angles to (1, 0, 0).
func RotateUnitX(angles Point) Point {
	rx := axisRotation(0, angles[0])
	ry := axisRotation(1, angles[1])
	rz := axisRotation(2, angles[2])

	var r, zy mat.Dense
	zy.Mul(rz, ry)
	r.Mul(&zy, rx)

	var v mat.VecDense
	v.MulVec(&r, mat.NewVecDense(3, []float64{1, 0, 0}))
	return Point{v.AtVec(0), v.AtVec(1), v.AtVec(2)}
}

func axisRotation(axis int, theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	switch axis {
	case 0:
		return mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, c, -s,
			0, s, c,
		})
	case 1:
		return mat.NewDense(3, 3, []float64{
			c, 0, s,
			0, 1, 0,
			-s, 0, c,
		})
	}
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}
