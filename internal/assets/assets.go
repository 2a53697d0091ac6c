// Package assets handles asset lookup across directories and zip archives,
// with caching.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/m2view/internal/logger"
)

// ErrNotFound is returned when no source holds the requested file.
var ErrNotFound = errors.New("asset not found")

// Source is a searchable collection of asset files.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Read returns the contents of the file with the given normalized key.
	Read(key string) ([]byte, bool, error)
	// Keys returns the normalized keys of all files in the source.
	Keys() []string
	Close() error
}

// Manager handles asset loading from directories and archives.
type Manager struct {
	sources []Source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// Add adds a directory or a zip archive, depending on what path is.
func (m *Manager) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("adding asset path %s: %w", path, err)
	}
	if info.IsDir() {
		return m.AddDir(path)
	}
	return m.AddArchive(path)
}

// AddDir adds a directory tree to the manager.
func (m *Manager) AddDir(path string) error {
	src, err := OpenDir(path)
	if err != nil {
		return err
	}
	m.AddSource(src)
	return nil
}

// AddArchive adds a zip archive to the manager.
func (m *Manager) AddArchive(path string) error {
	src, err := OpenZip(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	m.AddSource(src)
	return nil
}

// AddSource adds a source to the manager.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddSource(src Source) {
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()

	logger.Debug("asset source added", zap.String("source", src.Name()), zap.Int("files", len(src.Keys())))
}

// Fetch returns the contents of the named file. Names are matched
// case-insensitively, first as a relative path and then by base name.
func (m *Manager) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := NormalizeKey(name)

	// Check cache first
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := []string{key}
	if base := baseKey(key); base != key {
		candidates = append(candidates, base)
	}

	for _, k := range candidates {
		// Search sources in reverse order
		for i := len(m.sources) - 1; i >= 0; i-- {
			data, ok, err := m.sources[i].Read(k)
			if err != nil {
				return nil, fmt.Errorf("reading %s from %s: %w", name, m.sources[i].Name(), err)
			}
			if ok {
				m.cache.Set(key, data)
				return data, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load loads a file without a context.
func (m *Manager) Load(path string) ([]byte, error) {
	return m.Fetch(context.Background(), path)
}

// List returns the keys of all files across all sources that contain
// pattern, sorted and without duplicates.
func (m *Manager) List(pattern string) []string {
	pattern = strings.ToLower(pattern)

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var keys []string
	for _, src := range m.sources {
		for _, k := range src.Keys() {
			if seen[k] || !strings.Contains(k, pattern) {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// CacheStats returns cache hit and miss counts.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close closes all sources.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range m.sources {
		if err := src.Close(); err != nil {
			logger.Warn("closing asset source", zap.String("source", src.Name()), zap.Error(err))
		}
	}
	m.sources = nil
	m.cache.Clear()
}

// NormalizeKey lower-cases a path and uses forward slashes.
func NormalizeKey(name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(key, "./")
}

func baseKey(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
