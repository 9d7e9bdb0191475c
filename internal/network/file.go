package network

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/davidfague/bmtool/internal/data/tables"
)

// SimConfig describes where the tables of a simulated network live. Relative
// paths resolve against the directory of the config file.
type SimConfig struct {
	Networks []NodeFiles  `yaml:"networks"`
	Edges    []EdgeFiles  `yaml:"edges"`
	Spikes   string       `yaml:"spikes"`
	Run      RunConfig    `yaml:"run"`
	Inputs   []InputFiles `yaml:"inputs"`
}

// NodeFiles names the node and node-type tables of one network.
type NodeFiles struct {
	Name      string `yaml:"name"`
	Nodes     string `yaml:"nodes"`
	NodeTypes string `yaml:"node_types"`
}

// EdgeFiles names the edge and edge-type tables between two networks.
type EdgeFiles struct {
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	File      string `yaml:"file"`
	EdgeTypes string `yaml:"edge_types"`
}

// FileSource is a Source reading tables from disk on first use.
type FileSource struct {
	cfg    SimConfig
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[string]*tables.Table
}

// LoadSimConfig reads a simulation config and returns a FileSource for it.
func LoadSimConfig(path string, logger *slog.Logger) (*FileSource, error) {
	if path == "" {
		return nil, ErrNoConfig
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulation config: %w", err)
	}
	var cfg SimConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse simulation config: %w", err)
	}
	return NewFileSource(cfg, filepath.Dir(path), logger)
}

// NewFileSource creates a FileSource resolving relative paths against dir.
func NewFileSource(cfg SimConfig, dir string, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool)
	for _, n := range cfg.Networks {
		if n.Name == "" || n.Nodes == "" {
			return nil, fmt.Errorf("network entry needs name and nodes")
		}
		if seen[n.Name] {
			return nil, fmt.Errorf("network %q listed twice", n.Name)
		}
		seen[n.Name] = true
	}
	for _, e := range cfg.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return nil, fmt.Errorf("edges %s: %w", EdgeKey(e.Source, e.Target), ErrUnknownNetwork)
		}
	}
	if err := checkInputs(cfg.Inputs); err != nil {
		return nil, err
	}
	return &FileSource{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
		loaded: make(map[string]*tables.Table),
	}, nil
}

// Networks implements Source.
func (s *FileSource) Networks() []string {
	names := make([]string, len(s.cfg.Networks))
	for i, n := range s.cfg.Networks {
		names[i] = n.Name
	}
	return names
}

func (s *FileSource) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.dir, p)
}

// table loads path once and caches it under key.
func (s *FileSource) table(key, path string) (*tables.Table, error) {
	s.mu.Lock()
	if t, ok := s.loaded[key]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	t, err := tables.Load(s.resolve(path))
	if err != nil {
		return nil, err
	}
	t.Name = key
	s.logger.Debug("loaded table", "table", key, "rows", t.Len())

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.loaded[key]; ok {
		return prev, nil
	}
	s.loaded[key] = t
	return t, nil
}

// Nodes implements Source. Node types are joined on node_type_id without
// overwriting node columns.
func (s *FileSource) Nodes(ctx context.Context, network string) (*tables.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var files *NodeFiles
	for i := range s.cfg.Networks {
		if s.cfg.Networks[i].Name == network {
			files = &s.cfg.Networks[i]
			break
		}
	}
	if files == nil {
		return nil, fmt.Errorf("%q: %w", network, ErrUnknownNetwork)
	}

	key := network + "_nodes"
	s.mu.Lock()
	t, ok := s.loaded[key]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	nodes, err := s.table(key+"_raw", files.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes of %s: %w", network, err)
	}
	out := nodes.Filter(func(int) bool { return true })
	out.Name = key
	if files.NodeTypes != "" {
		types, err := s.table(network+"_node_types", files.NodeTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to load node types of %s: %w", network, err)
		}
		if err := joinMissing(out, types, ColNodeTypeID); err != nil {
			return nil, fmt.Errorf("failed to join node types of %s: %w", network, err)
		}
	}
	return s.store(key, out), nil
}

// Edges implements Source. Edge types are joined on edge_type_id.
func (s *FileSource) Edges(ctx context.Context, source, target string) (*tables.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := EdgeKey(source, target)
	var files *EdgeFiles
	for i := range s.cfg.Edges {
		if s.cfg.Edges[i].Source == source && s.cfg.Edges[i].Target == target {
			files = &s.cfg.Edges[i]
			break
		}
	}
	if files == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrNoEdges)
	}

	s.mu.Lock()
	t, ok := s.loaded[key]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	edges, err := s.table(key+"_raw", files.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges %s: %w", key, err)
	}
	out := edges.Filter(func(int) bool { return true })
	out.Name = key
	if files.EdgeTypes != "" {
		types, err := s.table(key+"_edge_types", files.EdgeTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to load edge types %s: %w", key, err)
		}
		if err := joinMissing(out, types, ColEdgeTypeID); err != nil {
			return nil, fmt.Errorf("failed to join edge types %s: %w", key, err)
		}
	}
	return s.store(key, out), nil
}

// Spikes implements Source.
func (s *FileSource) Spikes(ctx context.Context) (*tables.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cfg.Spikes == "" {
		return nil, ErrNoSpikes
	}
	t, err := s.table("spikes", s.cfg.Spikes)
	if err != nil {
		return nil, fmt.Errorf("failed to load spikes: %w", err)
	}
	return t, nil
}

func (s *FileSource) store(key string, t *tables.Table) *tables.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.loaded[key]; ok {
		return prev
	}
	s.loaded[key] = t
	return t
}

// LoadAll reads every node and edge table concurrently.
func (s *FileSource) LoadAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, n := range s.cfg.Networks {
		name := n.Name
		g.Go(func() error {
			_, err := s.Nodes(ctx, name)
			return err
		})
	}
	for _, e := range s.cfg.Edges {
		src, tgt := e.Source, e.Target
		g.Go(func() error {
			_, err := s.Edges(ctx, src, tgt)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("network tables loaded", "networks", len(s.cfg.Networks), "edge_sets", len(s.cfg.Edges))
	return nil
}

// joinMissing copies the type-table columns t lacks, matched on key.
func joinMissing(t, types *tables.Table, key string) error {
	var cols []string
	for _, c := range types.Columns() {
		if c != key && !t.Has(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	return t.Join(types, key, key, "", cols...)
}
