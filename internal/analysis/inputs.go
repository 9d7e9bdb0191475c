package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/davidfague/bmtool/internal/network"
)

// ClampTrace is the injected current of one clamp as a step function:
// Amps[i] holds from Times[i] until Times[i+1]. The last point closes the
// trace.
type ClampTrace struct {
	Name    string
	NodeSet string
	Times   []float64
	Amps    []float64
}

// Label names the clamp target for plot legends.
func (c ClampTrace) Label() string {
	return "I Clamp to: " + c.NodeSet
}

// ClampTraces turns every current clamp of src into a step trace.
func ClampTraces(ctx context.Context, src network.Source) ([]ClampTrace, error) {
	inputs, err := src.Inputs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ClampTrace, 0, len(inputs.Clamps))
	for _, c := range inputs.Clamps {
		tr, err := clampTrace(c, inputs.TStop)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

type pulse struct{ amp, start, stop float64 }

func pulses(c network.CurrentClamp) ([]pulse, error) {
	n := max(len(c.Amps), len(c.Delays), len(c.Durations))
	if n == 0 {
		return nil, &ConfigurationError{Field: "inputs", Reason: fmt.Sprintf("current clamp %s has no pulses", c.Name)}
	}
	at := func(xs []float64, k int) (float64, bool) {
		switch len(xs) {
		case 1:
			return xs[0], true
		case n:
			return xs[k], true
		}
		return 0, false
	}
	out := make([]pulse, n)
	for k := range out {
		amp, ok1 := at(c.Amps, k)
		delay, ok2 := at(c.Delays, k)
		dur, ok3 := at(c.Durations, k)
		if !ok1 || !ok2 || !ok3 {
			return nil, &ConfigurationError{
				Field:  "inputs",
				Reason: fmt.Sprintf("current clamp %s: amp, delay and duration need one value or %d values each", c.Name, n),
			}
		}
		if dur < 0 {
			return nil, &ConfigurationError{Field: "inputs", Reason: fmt.Sprintf("current clamp %s has a negative duration", c.Name)}
		}
		out[k] = pulse{amp: amp, start: delay, stop: delay + dur}
	}
	return out, nil
}

// clampTrace sums overlapping pulses. The trace runs from 0 to tstop, or
// to the end of the last pulse when tstop is zero.
func clampTrace(c network.CurrentClamp, tstop float64) (ClampTrace, error) {
	ps, err := pulses(c)
	if err != nil {
		return ClampTrace{}, err
	}
	end := tstop
	if end <= 0 {
		for _, p := range ps {
			end = max(end, p.stop)
		}
	}

	points := []float64{0, end}
	for _, p := range ps {
		points = append(points, p.start, p.stop)
	}
	sort.Float64s(points)

	tr := ClampTrace{Name: c.Name, NodeSet: c.NodeSet}
	for k, t := range points {
		if t < 0 || t > end || (k > 0 && t == points[k-1]) {
			continue
		}
		amp := 0.0
		for _, p := range ps {
			if p.start <= t && t < p.stop {
				amp += p.amp
			}
		}
		tr.Times = append(tr.Times, t)
		tr.Amps = append(tr.Amps, amp)
	}
	// The closing point repeats the level of the last segment.
	if n := len(tr.Amps); n > 1 {
		tr.Amps[n-1] = tr.Amps[n-2]
	}
	return tr, nil
}

// InputTrain holds the spikes of one input spike train.
type InputTrain struct {
	Name    string
	NodeSet string
	Times   []float64
	NodeIDs []float64
}

// Title names the train's target node set.
func (t InputTrain) Title() string {
	group := t.NodeSet
	if group == "" {
		group = "Defined by gids (y-axis)"
	}
	return "Input Spike Train to: " + group
}

// InputTrains reads the spikes of every input spike train of src.
func InputTrains(ctx context.Context, src network.Source) ([]InputTrain, error) {
	inputs, err := src.Inputs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]InputTrain, 0, len(inputs.SpikeTrains))
	for _, st := range inputs.SpikeTrains {
		if err := st.Spikes.Require(network.ColTimestamps, network.ColSpikeNodeIDs); err != nil {
			return nil, err
		}
		tr := InputTrain{Name: st.Name, NodeSet: st.NodeSet}
		for i := 0; i < st.Spikes.Len(); i++ {
			t, ok := st.Spikes.Float(i, network.ColTimestamps)
			if !ok {
				continue
			}
			id, ok := st.Spikes.Float(i, network.ColSpikeNodeIDs)
			if !ok {
				continue
			}
			tr.Times = append(tr.Times, t)
			tr.NodeIDs = append(tr.NodeIDs, id)
		}
		out = append(out, tr)
	}
	return out, nil
}
