package connectivity

// Observation is one decoded (source, target, statistic) record.
type Observation struct {
	Source string
	Target string
	Value  Statistic
}

// NewObservation decodes a positional value list into an observation.
func NewObservation(source, target string, vals []float64) (Observation, error) {
	s, err := FromValues(vals)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Source: source, Target: target, Value: s}, nil
}

// Build places observations into a square matrix over populations.
// Observations naming an unlisted population are ignored. When two
// observations write the same cell the later one wins.
func Build(populations []string, observations []Observation) *Matrix {
	return BuildRect(populations, populations, observations)
}

// BuildRect places observations into a sources x targets matrix. A
// backward value lands at (target, source) only when target is a row label
// and source a column label.
func BuildRect(sources, targets []string, observations []Observation) *Matrix {
	rowIdx := indexOf(sources)
	colIdx := indexOf(targets)
	m := NewMatrix(len(sources), len(targets))

	for _, o := range observations {
		r, okR := rowIdx[o.Source]
		c, okC := colIdx[o.Target]
		if !okR || !okC {
			continue
		}
		p := o.Value.Placement()
		m.Set(r, c, p.Forward)
		if !p.HasBackward {
			continue
		}
		br, okBR := rowIdx[o.Target]
		bc, okBC := colIdx[o.Source]
		if okBR && okBC {
			m.Set(br, bc, p.Backward)
		}
	}
	return m
}

func indexOf(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		if _, dup := idx[l]; !dup {
			idx[l] = i
		}
	}
	return idx
}
