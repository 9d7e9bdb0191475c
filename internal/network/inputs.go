package network

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/davidfague/bmtool/internal/data/tables"
)

// Input types read from the inputs section of a simulation config.
const (
	InputCurrentClamp = "current_clamp"
	InputSpikes       = "spikes"
)

// Inputs are the stimuli driving a simulation.
type Inputs struct {
	// TStop is the simulated time. Zero means the end of the last pulse.
	TStop       float64
	Clamps      []CurrentClamp
	SpikeTrains []SpikeTrain
}

// CurrentClamp injects square current pulses into a node set. Amps, Delays
// and Durations hold one entry per pulse or a single entry shared by all
// pulses.
type CurrentClamp struct {
	Name      string
	NodeSet   string
	Amps      []float64
	Delays    []float64
	Durations []float64
}

// SpikeTrain is an input spike table with timestamps and node_ids columns.
type SpikeTrain struct {
	Name    string
	NodeSet string
	Spikes  *tables.Table
}

// RunConfig holds the run settings bmplot reads.
type RunConfig struct {
	TStop float64 `yaml:"tstop"`
}

// InputFiles is one entry of the inputs section.
type InputFiles struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"input_type"`
	NodeSet  string `yaml:"node_set"`
	Amp      Floats `yaml:"amp"`
	Delay    Floats `yaml:"delay"`
	Duration Floats `yaml:"duration"`
	File     string `yaml:"input_file"`
}

// Floats decodes a YAML scalar or sequence of numbers.
type Floats []float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Floats) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var xs []float64
		if err := value.Decode(&xs); err != nil {
			return err
		}
		*f = xs
		return nil
	}
	var x float64
	if err := value.Decode(&x); err != nil {
		return err
	}
	*f = Floats{x}
	return nil
}

func checkInputs(inputs []InputFiles) error {
	seen := make(map[string]bool)
	for _, in := range inputs {
		if in.Name == "" {
			return &ConfigurationError{Field: "inputs", Reason: "input entry needs a name"}
		}
		if seen[in.Name] {
			return &ConfigurationError{Field: "inputs", Reason: fmt.Sprintf("input %q listed twice", in.Name)}
		}
		seen[in.Name] = true
		if in.Type == InputSpikes && in.File == "" {
			return &ConfigurationError{Field: "inputs", Reason: fmt.Sprintf("spike input %q needs input_file", in.Name)}
		}
	}
	return nil
}

// Inputs implements Source. Spike input tables load on first use; input
// types other than current clamps and spikes are skipped.
func (s *FileSource) Inputs(ctx context.Context) (Inputs, error) {
	out := Inputs{TStop: s.cfg.Run.TStop}
	for _, in := range s.cfg.Inputs {
		if err := ctx.Err(); err != nil {
			return Inputs{}, err
		}
		switch in.Type {
		case InputCurrentClamp:
			out.Clamps = append(out.Clamps, CurrentClamp{
				Name:      in.Name,
				NodeSet:   in.NodeSet,
				Amps:      in.Amp,
				Delays:    in.Delay,
				Durations: in.Duration,
			})
		case InputSpikes:
			t, err := s.table("input:"+in.Name, in.File)
			if err != nil {
				return Inputs{}, fmt.Errorf("input %s: %w", in.Name, err)
			}
			out.SpikeTrains = append(out.SpikeTrains, SpikeTrain{Name: in.Name, NodeSet: in.NodeSet, Spikes: t})
		default:
			s.logger.Debug("skipping input", "input", in.Name, "type", in.Type)
		}
	}
	return out, nil
}

// Inputs implements Source.
func (m *Memory) Inputs(context.Context) (Inputs, error) { return m.InputSet, nil }
