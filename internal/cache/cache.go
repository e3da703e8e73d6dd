// Package cache memoises model and search responses keyed by a hash of the
// call arguments.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/josephgoksu/quill/internal/metrics"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/utils"
)

// Names of the caches the engine uses.
const (
	NameLLM     = "llm"
	NameSearch  = "search"
	NameWebPage = "web_page"
)

// maxHintLen caps the argument preview stored next to each entry.
const maxHintLen = 2000

// Backend persists entries. *store.SQLiteStore satisfies it.
type Backend interface {
	GetCache(key string) (string, bool, error)
	PutCache(e store.CacheEntry) error
}

// Cache is one named cache over a backend. A nil *Cache never hits and
// drops writes.
type Cache struct {
	name    string
	backend Backend
	logger  *slog.Logger
}

// New binds a named cache to a backend.
func New(name string, backend Backend) *Cache {
	return &Cache{name: name, backend: backend, logger: slog.Default()}
}

// WithLogger sends the cache's logs to l.
func (c *Cache) WithLogger(l *slog.Logger) *Cache {
	if c != nil && l != nil {
		c.logger = l
	}
	return c
}

// Key hashes args together with the cache name. Map keys are encoded in
// sorted order, so equal arguments give equal keys.
func Key(name string, args map[string]any) (string, error) {
	obj := make(map[string]any, len(args)+1)
	for k, v := range args {
		obj[k] = v
	}
	obj["cache_name"] = name
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get decodes the entry for args into out and reports whether it was found.
func (c *Cache) Get(args map[string]any, out any) bool {
	if c == nil || c.backend == nil {
		return false
	}
	key, err := Key(c.name, args)
	if err != nil {
		return false
	}
	raw, ok, err := c.backend.GetCache(key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "cache", c.name, "error", err)
		return false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.logger.Warn("cache entry undecodable", "cache", c.name, "key", key, "error", err)
		return false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	c.logger.Debug("cache hit", "cache", c.name, "key", key)
	return true
}

// Put stores value under args. Nil values are not stored.
func (c *Cache) Put(args map[string]any, value any) {
	if c == nil || c.backend == nil || value == nil {
		return
	}
	key, err := Key(c.name, args)
	if err != nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value unencodable", "cache", c.name, "error", err)
		return
	}
	hint, _ := json.Marshal(args)
	err = c.backend.PutCache(store.CacheEntry{
		Key:   key,
		Name:  c.name,
		Value: string(data),
		Hint:  utils.Truncate(string(hint), maxHintLen),
	})
	if err != nil {
		c.logger.Warn("cache write failed", "cache", c.name, "error", err)
		return
	}
	c.logger.Debug("cache add", "cache", c.name, "key", key)
}

// MemoryBackend keeps entries in a map. Headless runs without a data
// directory and tests use it.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]store.CacheEntry
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]store.CacheEntry)}
}

func (m *MemoryBackend) GetCache(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e.Value, ok, nil
}

func (m *MemoryBackend) PutCache(e store.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

// Len reports how many entries are stored.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
