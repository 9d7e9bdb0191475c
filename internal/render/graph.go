package render

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"
)

// GraphEdge is a labelled connection between two populations.
type GraphEdge struct {
	Source string
	Target string
	Labels []string
}

type popNode struct {
	id   int64
	name string
}

func (n popNode) ID() int64     { return n.id }
func (n popNode) DOTID() string { return n.name }

type popLine struct {
	multi.Line
	label string
}

func (l popLine) ReversedLine() graph.Line {
	l.F, l.T = l.T, l.F
	return l
}

func (l popLine) Attributes() []encoding.Attribute {
	if l.label == "" {
		return nil
	}
	return []encoding.Attribute{{Key: "label", Value: l.label}}
}

// DOT encodes edges as a Graphviz digraph. Populations become nodes in
// first-seen order; self connections are kept.
func DOT(name string, edges []GraphEdge) ([]byte, error) {
	g := multi.NewDirectedGraph()
	nodes := make(map[string]popNode)
	node := func(pop string) popNode {
		n, ok := nodes[pop]
		if !ok {
			n = popNode{id: int64(len(nodes)), name: pop}
			nodes[pop] = n
			g.AddNode(n)
		}
		return n
	}
	for i, e := range edges {
		if e.Source == "" || e.Target == "" {
			return nil, fmt.Errorf("graph edge %d has no endpoint", i)
		}
		from, to := node(e.Source), node(e.Target)
		g.SetLine(popLine{
			Line:  multi.Line{F: from, T: to, UID: int64(i)},
			label: strings.Join(e.Labels, "\n"),
		})
	}
	data, err := dot.MarshalMulti(g, name, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}
