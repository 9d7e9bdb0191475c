// Package cache provides caching for rendered figures and reduction results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	FigureCacheSizeMB int
	FigureTTL         time.Duration
	ResultEntries     int
}

// Manager manages figure and result caches.
type Manager struct {
	figureCache *bigcache.BigCache
	resultCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.FigureTTL <= 0 {
		cfg.FigureTTL = 10 * time.Minute
	}
	if cfg.ResultEntries <= 0 {
		cfg.ResultEntries = 256
	}

	figureCacheConfig := bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.FigureTTL,
		CleanWindow:        cfg.FigureTTL / 2,
		MaxEntriesInWindow: 256,
		MaxEntrySize:       64 * 1024, // initial sizing only, larger figures still fit
		HardMaxCacheSize:   cfg.FigureCacheSizeMB,
		Verbose:            false,
	}

	figureCache, err := bigcache.New(context.Background(), figureCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create figure cache: %w", err)
	}

	resultCache, err := lru.New[string, []byte](cfg.ResultEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Manager{
		figureCache: figureCache,
		resultCache: resultCache,
	}, nil
}

// GetFigure retrieves an encoded figure from cache.
func (m *Manager) GetFigure(key string) ([]byte, bool) {
	data, err := m.figureCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetFigure stores an encoded figure in cache.
func (m *Manager) SetFigure(key string, data []byte) error {
	return m.figureCache.Set(key, data)
}

// GetResult retrieves a serialized reduction result from cache.
func (m *Manager) GetResult(key string) ([]byte, bool) {
	return m.resultCache.Get(key)
}

// SetResult stores a serialized reduction result in cache.
func (m *Manager) SetResult(key string, data []byte) {
	m.resultCache.Add(key, data)
}

// Reset drops every entry, for when the underlying network data changes.
func (m *Manager) Reset() error {
	m.resultCache.Purge()
	return m.figureCache.Reset()
}

// Key builds a stable cache key for a request of kind. Params are hashed
// in key order, so map iteration order does not matter.
func Key(kind string, params map[string]string) string {
	if len(params) == 0 {
		return kind
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, k := range names {
		fmt.Fprintf(h, "%s=%s\x00", k, params[k])
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	stats := m.figureCache.Stats()
	return map[string]interface{}{
		"figure_cache_len":    m.figureCache.Len(),
		"figure_cache_cap":    m.figureCache.Capacity(),
		"figure_cache_hits":   stats.Hits,
		"figure_cache_misses": stats.Misses,
		"result_cache_len":    m.resultCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.figureCache.Close()
}
