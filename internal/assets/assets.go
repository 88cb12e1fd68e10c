// Package assets finds, caches and fetches terrain resources.
package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/logger"
)

// ErrNotFound is returned when no search directory holds a file.
var ErrNotFound = errors.New("asset not found")

// Manager resolves resource names against search directories.
// Directories are searched in reverse order (last added = highest priority),
// and new files are written to the highest priority one.
type Manager struct {
	dirs  []string
	cache *Cache
	mu    sync.RWMutex
	log   *zap.Logger
}

// NewManager creates a manager searching dirs, lowest priority first.
func NewManager(dirs ...string) *Manager {
	return &Manager{
		dirs:  append([]string(nil), dirs...),
		cache: NewCache(),
		log:   logger.Named("assets"),
	}
}

// AddDir adds a search directory with the highest priority.
func (m *Manager) AddDir(dir string) {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()
	m.cache.Clear()
}

// Dirs returns the search directories, lowest priority first.
func (m *Manager) Dirs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.dirs...)
}

// Resolve returns the path of name in the highest priority directory that
// has it. Absolute names are used as they are.
func (m *Manager) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return name, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.dirs) - 1; i >= 0; i-- {
		p := filepath.Join(m.dirs[i], name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Exists reports whether name can be resolved.
func (m *Manager) Exists(name string) bool {
	_, err := m.Resolve(name)
	return err == nil
}

// Open opens name for reading.
func (m *Manager) Open(name string) (io.ReadCloser, error) {
	p, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

// Load reads name, serving repeats from the cache.
func (m *Manager) Load(name string) ([]byte, error) {
	if data, ok := m.cache.Get(name); ok {
		return data, nil
	}
	p, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	m.cache.Set(name, data)
	return data, nil
}

// WritePath returns where a new file called name is written.
func (m *Manager) WritePath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.dirs) == 0 {
		return "", fmt.Errorf("no writable directory for %s", name)
	}
	return filepath.Join(m.dirs[len(m.dirs)-1], name), nil
}

// Create opens name for writing in the highest priority directory,
// replacing any cached copy.
func (m *Manager) Create(name string) (io.WriteCloser, error) {
	p, err := m.WritePath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", name, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	m.cache.Delete(name)
	m.log.Debug("asset created", zap.String("path", p))
	return f, nil
}

// Close drops cached data.
func (m *Manager) Close() {
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

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

// Delete removes an item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}
