package connectivity

import (
	"fmt"
	"sort"
	"strings"
)

// PercentColumn is the connection-report column read by the connector path.
const PercentColumn = "Percent connectionivity within possible connections"

// ConnectorRecord is one raw row of a connection report.
type ConnectorRecord struct {
	Source string
	Target string
	Value  string
}

// ConnectorOptions controls label parsing and axis order.
type ConnectorOptions struct {
	Exclude     []string
	AssemblyKey string
	// PopOrder, when set, selects and orders the axis populations.
	// Observed populations it does not list are dropped.
	PopOrder []string
}

// ConnectorResult is the reduced connection report.
type ConnectorResult struct {
	Grid         Grid
	Populations  []string
	Observations []Observation
}

type pairKey struct{ source, target string }

// orderedPairs keeps the first insertion position of each pair and the
// last value written to it.
type orderedPairs struct {
	order []pairKey
	vals  map[pairKey]Statistic
}

func newOrderedPairs() *orderedPairs {
	return &orderedPairs{vals: make(map[pairKey]Statistic)}
}

func (o *orderedPairs) put(k pairKey, s Statistic) {
	if _, ok := o.vals[k]; !ok {
		o.order = append(o.order, k)
	}
	o.vals[k] = s
}

func (o *orderedPairs) observations() []Observation {
	out := make([]Observation, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, Observation{Source: k.source, Target: k.target, Value: o.vals[k]})
	}
	return out
}

type parsedRecord struct {
	source, target Label
	value          Statistic
}

// ReduceConnector parses, aggregates and places a connection report.
// Annotations are the cell values formatted as percentages.
func ReduceConnector(records []ConnectorRecord, opts ConnectorOptions) (ConnectorResult, error) {
	parser := LabelParser{Exclude: opts.Exclude, AssemblyKey: opts.AssemblyKey}

	var parsed []parsedRecord
	for i, rec := range records {
		src, ok := parser.Parse(rec.Source)
		if !ok {
			continue
		}
		tgt, ok := parser.Parse(rec.Target)
		if !ok {
			continue
		}
		val, err := ParseStatistic(rec.Value)
		if err != nil {
			return ConnectorResult{}, fmt.Errorf("failed to decode record %d (%s -> %s): %w", i, rec.Source, rec.Target, err)
		}
		parsed = append(parsed, parsedRecord{source: src, target: tgt, value: val})
	}

	seen := make(map[string]struct{})
	pairs := newOrderedPairs()
	for _, p := range parsed {
		s, t := p.source.String(), p.target.String()
		seen[s] = struct{}{}
		seen[t] = struct{}{}
		pairs.put(pairKey{s, t}, p.value)
	}

	for _, g := range groupAssemblies(parsed, opts.AssemblyKey) {
		s := strings.ReplaceAll(g.source, opts.AssemblyKey, "")
		t := strings.ReplaceAll(g.target, opts.AssemblyKey, "")
		seen[s] = struct{}{}
		seen[t] = struct{}{}
		pairs.put(pairKey{s, t}, Symmetric(ReduceAssembly(g.members)))
	}

	pops := make([]string, 0, len(seen))
	for p := range seen {
		pops = append(pops, p)
	}
	sort.Strings(pops)
	if len(opts.PopOrder) > 0 {
		pops = orderBy(opts.PopOrder, seen)
	}

	obs := pairs.observations()
	m := Build(pops, obs)
	grid := Grid{
		Values:      m,
		Annotations: FormatCells(m, "%.2f%%"),
		RowLabels:   append([]string(nil), pops...),
		ColLabels:   append([]string(nil), pops...),
	}
	return ConnectorResult{Grid: grid, Populations: pops, Observations: obs}, nil
}

type assemblyGroup struct {
	source, target string
	members        []Statistic
}

// groupAssemblies collects records whose rendered source contains key,
// keyed by (source, target) in first-seen order. Unbracketed labels carry
// the key in their base name and group the same way.
func groupAssemblies(parsed []parsedRecord, key string) []assemblyGroup {
	if key == "" {
		return nil
	}
	var groups []assemblyGroup
	index := make(map[pairKey]int)
	for _, p := range parsed {
		if !strings.Contains(p.source.String(), key) {
			continue
		}
		k := pairKey{p.source.String(), p.target.String()}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, assemblyGroup{source: k.source, target: k.target})
		}
		groups[i].members = append(groups[i].members, p.value)
	}

	// Groups are reduced source by source, as the report lists them.
	rank := make(map[string]int)
	for i, g := range groups {
		if _, ok := rank[g.source]; !ok {
			rank[g.source] = i
		}
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return rank[groups[a].source] < rank[groups[b].source]
	})
	return groups
}

func orderBy(order []string, present map[string]struct{}) []string {
	out := make([]string, 0, len(order))
	for _, p := range order {
		if _, ok := present[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FormatCells renders every value of m with a fmt verb such as "%.2f".
func FormatCells(m *Matrix, format string) [][]string {
	out := make([][]string, m.Rows())
	for i := range out {
		out[i] = make([]string, m.Cols())
		for j := range out[i] {
			out[i][j] = fmt.Sprintf(format, m.At(i, j))
		}
	}
	return out
}
