package network

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func writeSim(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "cortex_nodes.csv", "node_id,node_type_id,pos_x,pos_y,pos_z\n0,100,0,0,0\n1,100,1,0,0\n2,101,0,3,4\n")
	writeFile(t, dir, "cortex_node_types.csv", "node_type_id,pop_name,model_type,model_template\n100,PN,biophysical,hoc:PN\n101,PV,biophysical,hoc:PV\n")
	writeFile(t, dir, "cortex_cortex_edges.csv", "source_node_id,target_node_id,edge_type_id\n0,2,1\n1,2,1\n2,0,2\n")
	writeFile(t, dir, "cortex_cortex_edge_types.csv", "edge_type_id,dynamics_params,model_template\n1,AMPA.json,exp2syn\n2,GABA.json,exp2syn\n")
	writeFile(t, dir, "sim.yaml", `
networks:
  - name: cortex
    nodes: cortex_nodes.csv
    node_types: cortex_node_types.csv
edges:
  - source: cortex
    target: cortex
    file: cortex_cortex_edges.csv
    edge_types: cortex_cortex_edge_types.csv
`)
	return filepath.Join(dir, "sim.yaml")
}

func TestFileSource_NodesJoinTypes(t *testing.T) {
	src, err := LoadSimConfig(writeSim(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cortex"}, src.Networks())

	nodes, err := src.Nodes(context.Background(), "cortex")
	require.NoError(t, err)
	require.Equal(t, 3, nodes.Len())
	assert.Equal(t, "PV", nodes.String(2, ColPopName))
	assert.Equal(t, "biophysical", nodes.String(0, ColModelType))

	again, err := src.Nodes(context.Background(), "cortex")
	require.NoError(t, err)
	assert.Same(t, nodes, again)
}

func TestFileSource_Edges(t *testing.T) {
	src, err := LoadSimConfig(writeSim(t), nil)
	require.NoError(t, err)

	edges, err := src.Edges(context.Background(), "cortex", "cortex")
	require.NoError(t, err)
	assert.Equal(t, "GABA.json", edges.String(2, ColDynamics))
	// model_template comes from the edge types table.
	assert.True(t, edges.Has("model_template"))

	_, err = src.Edges(context.Background(), "cortex", "thalamus")
	assert.True(t, errors.Is(err, ErrNoEdges))
	_, err = src.Nodes(context.Background(), "thalamus")
	assert.True(t, errors.Is(err, ErrUnknownNetwork))
	_, err = src.Spikes(context.Background())
	assert.True(t, errors.Is(err, ErrNoSpikes))
}

func TestFileSource_LoadAll(t *testing.T) {
	src, err := LoadSimConfig(writeSim(t), nil)
	require.NoError(t, err)
	require.NoError(t, src.LoadAll(context.Background()))
}

func TestLoadSimConfig_Errors(t *testing.T) {
	_, err := LoadSimConfig("", nil)
	assert.EqualError(t, err, "config not defined")
	assert.True(t, errors.Is(err, ErrConfiguration))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config", cfgErr.Field)

	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "networks:\n  - name: a\n    nodes: a.csv\nedges:\n  - source: a\n    target: b\n    file: e.csv\n")
	_, err = LoadSimConfig(filepath.Join(dir, "bad.yaml"), nil)
	assert.True(t, errors.Is(err, ErrUnknownNetwork))
}

func appendSim(t *testing.T, sim, text string) {
	t.Helper()
	f, err := os.OpenFile(sim, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(text)
	require.NoError(t, err)
}

func TestFileSource_Inputs(t *testing.T) {
	sim := writeSim(t)
	writeFile(t, filepath.Dir(sim), "bg.csv", "timestamps,node_ids\n5,0\n15,1\n")
	appendSim(t, sim, `
run:
  tstop: 250
inputs:
  - name: step
    input_type: current_clamp
    node_set: PN
    amp: [0.1, 0.3]
    delay: [10, 60]
    duration: 20
  - name: bg
    input_type: spikes
    node_set: thalamus
    input_file: bg.csv
  - name: noise
    input_type: voltage_clamp
`)
	src, err := LoadSimConfig(sim, nil)
	require.NoError(t, err)

	in, err := src.Inputs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250.0, in.TStop)
	require.Len(t, in.Clamps, 1)
	assert.Equal(t, []float64{0.1, 0.3}, in.Clamps[0].Amps)
	assert.Equal(t, []float64{20}, in.Clamps[0].Durations)
	require.Len(t, in.SpikeTrains, 1)
	assert.Equal(t, "thalamus", in.SpikeTrains[0].NodeSet)
	assert.Equal(t, 2, in.SpikeTrains[0].Spikes.Len())
}

func TestLoadSimConfig_BadInputs(t *testing.T) {
	sim := writeSim(t)
	appendSim(t, sim, "inputs:\n  - name: bg\n    input_type: spikes\n")
	_, err := LoadSimConfig(sim, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "inputs", cfgErr.Field)
}

func TestExpand(t *testing.T) {
	m := &Memory{Order: []string{"a", "b"}}
	got, err := Expand(m, []string{"all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = Expand(m, []string{"c"})
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}
