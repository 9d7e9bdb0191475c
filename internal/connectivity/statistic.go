package connectivity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Kind identifies the positional layout of a Statistic.
type Kind int

const (
	// KindSymmetric holds a single value, written forward only.
	KindSymmetric Kind = iota + 1
	// KindDirected holds a forward value and a retained extra value.
	KindDirected
	// KindBidirectional holds forward and backward values plus an extra value.
	KindBidirectional
)

func (k Kind) String() string {
	switch k {
	case KindSymmetric:
		return "symmetric"
	case KindDirected:
		return "directed"
	case KindBidirectional:
		return "bidirectional"
	}
	return "unknown"
}

// Statistic is a decoded connection statistic. The zero value is invalid;
// build one with Symmetric, Directed, Bidirectional or a decoder.
type Statistic struct {
	kind     Kind
	forward  float64
	backward float64
	extra    float64
}

// Symmetric returns a one-valued statistic.
func Symmetric(v float64) Statistic {
	return Statistic{kind: KindSymmetric, forward: v}
}

// Directed returns a two-valued statistic. Only forward is placed.
func Directed(forward, extra float64) Statistic {
	return Statistic{kind: KindDirected, forward: forward, extra: extra}
}

// Bidirectional returns a three-valued statistic.
func Bidirectional(forward, backward, extra float64) Statistic {
	return Statistic{kind: KindBidirectional, forward: forward, backward: backward, extra: extra}
}

// Kind returns the statistic's layout.
func (s Statistic) Kind() Kind { return s.kind }

// Forward returns the value written at (source, target).
func (s Statistic) Forward() float64 { return s.forward }

// Backward returns the value written at (target, source), if any.
func (s Statistic) Backward() (float64, bool) {
	if s.kind == KindBidirectional {
		return s.backward, true
	}
	return 0, false
}

// Values returns the statistic in its original positional form.
func (s Statistic) Values() []float64 {
	switch s.kind {
	case KindSymmetric:
		return []float64{s.forward}
	case KindDirected:
		return []float64{s.forward, s.extra}
	case KindBidirectional:
		return []float64{s.forward, s.backward, s.extra}
	}
	return nil
}

// Placement describes the matrix writes a statistic produces.
type Placement struct {
	Forward     float64
	Backward    float64
	HasBackward bool
}

// Placement returns the forward and optional backward writes.
func (s Statistic) Placement() Placement {
	b, ok := s.Backward()
	return Placement{Forward: s.forward, Backward: b, HasBackward: ok}
}

// assemblyTerms returns the values an assembly member contributes to the
// group mean: element 0 for one or two values, elements 0 and 1 for three.
func (s Statistic) assemblyTerms() []float64 {
	if s.kind == KindBidirectional {
		return []float64{s.forward, s.backward}
	}
	return []float64{s.forward}
}

// FromValues decodes a positional value list.
func FromValues(vals []float64) (Statistic, error) {
	switch len(vals) {
	case 1:
		return Symmetric(vals[0]), nil
	case 2:
		return Directed(vals[0], vals[1]), nil
	case 3:
		return Bidirectional(vals[0], vals[1], vals[2]), nil
	}
	return Statistic{}, fmt.Errorf("%d values: %w", len(vals), ErrUnsupportedFormat)
}

// ParseStatistic decodes a report cell such as "[0.1 0.5 9.0]" or "0.3".
// Brackets are stripped and the rest split on whitespace.
func ParseStatistic(s string) (Statistic, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "[]")
	fields := strings.Fields(trimmed)
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.Trim(f, ","), 64)
		if err != nil {
			return Statistic{}, fmt.Errorf("failed to parse statistic %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return FromValues(vals)
}

// DecodeStatistic accepts a number, a string cell, or a value slice.
func DecodeStatistic(v any) (Statistic, error) {
	switch t := v.(type) {
	case Statistic:
		return t, nil
	case float64:
		return Symmetric(t), nil
	case float32:
		return Symmetric(float64(t)), nil
	case int:
		return Symmetric(float64(t)), nil
	case int64:
		return Symmetric(float64(t)), nil
	case string:
		return ParseStatistic(t)
	case []float64:
		return FromValues(t)
	}
	return Statistic{}, fmt.Errorf("value of type %T: %w", v, ErrUnsupportedFormat)
}

// ReduceAssembly averages the contributions of all members of one assembly
// group. An empty group yields NaN.
func ReduceAssembly(members []Statistic) float64 {
	var terms []float64
	for _, m := range members {
		terms = append(terms, m.assemblyTerms()...)
	}
	if len(terms) == 0 {
		return math.NaN()
	}
	return stat.Mean(terms, nil)
}

// ReduceAssemblyValues decodes raw value lists and reduces them.
func ReduceAssemblyValues(members [][]float64) (float64, error) {
	stats := make([]Statistic, 0, len(members))
	for _, vals := range members {
		s, err := FromValues(vals)
		if err != nil {
			return 0, err
		}
		stats = append(stats, s)
	}
	return ReduceAssembly(stats), nil
}
