package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Entry is one cached consultation.
type Entry struct {
	Key          string               `json:"key"`
	Consultation *models.Consultation `json:"consultation"`
	CachedAt     time.Time            `json:"cached_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Hits         int64                `json:"hits"`
}

// Config defines cache configuration.
type Config struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	BaseTTL       time.Duration `json:"base_ttl" yaml:"base_ttl"`             // scaled by complexity
	MaxSize       int           `json:"max_size" yaml:"max_size"`             // maximum number of entries
	CleanupPeriod time.Duration `json:"cleanup_period" yaml:"cleanup_period"` // 0 disables background cleanup
}

// UnmarshalYAML accepts Go duration strings ("30m") for the TTL fields.
// Absent keys keep the values already present, so defaults survive a
// partial config file.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Enabled       *bool  `yaml:"enabled"`
		BaseTTL       string `yaml:"base_ttl"`
		MaxSize       *int   `yaml:"max_size"`
		CleanupPeriod string `yaml:"cleanup_period"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.MaxSize != nil {
		c.MaxSize = *raw.MaxSize
	}
	if raw.BaseTTL != "" {
		d, err := time.ParseDuration(raw.BaseTTL)
		if err != nil {
			return fmt.Errorf("invalid base_ttl: %w", err)
		}
		c.BaseTTL = d
	}
	if raw.CleanupPeriod != "" {
		d, err := time.ParseDuration(raw.CleanupPeriod)
		if err != nil {
			return fmt.Errorf("invalid cleanup_period: %w", err)
		}
		c.CleanupPeriod = d
	}
	return nil
}

// DefaultConfig returns sensible defaults for consultation caching.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		BaseTTL:       1 * time.Hour,
		MaxSize:       10000,
		CleanupPeriod: 5 * time.Minute,
	}
}

// TTLFor scales the base TTL by complexity: more complex consultations are
// more expensive to recompute and stay cached longer, capped at 2x.
func (c *Config) TTLFor(complexity float64) time.Duration {
	factor := complexity / 5
	if factor > 2 {
		factor = 2
	}
	if factor <= 0 {
		factor = 0.2
	}
	return time.Duration(float64(c.BaseTTL) * factor)
}

// Backend is the interface for cache storage backends.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// Cache stores validated consultations keyed by task fingerprint. Expired
// entries are evicted lazily on read; a background loop sweeps the rest.
type Cache struct {
	backend Backend
	config  *Config
	entries map[string]*Entry
	mu      sync.RWMutex
	stats   Stats
}

// Stats tracks cache performance.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	TotalEntries int64   `json:"total_entries"`
	HitRate      float64 `json:"hit_rate"`
}

// New creates an in-memory cache instance.
func New(config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Cache{
		config:  config,
		entries: make(map[string]*Entry),
	}

	if config.Enabled && config.CleanupPeriod > 0 {
		go c.cleanupLoop()
	}

	return c
}

// NewWithBackend creates a cache that delegates storage to a backend, such
// as Redis for shared deployments.
func NewWithBackend(config *Config, backend Backend) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	return &Cache{config: config, backend: backend}
}

// Get retrieves a cached consultation if present and not expired. Expired
// entries are evicted on the spot.
func (c *Cache) Get(ctx context.Context, key string) (*models.Consultation, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	if c.backend != nil {
		entry, found := c.backend.Get(ctx, key)
		c.recordLookup(found)
		if !found {
			return nil, false
		}
		return entry.Consultation, true
	}

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordLookup(false)
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.stats.Evictions++
		c.mu.Unlock()
		c.recordLookup(false)
		return nil, false
	}

	c.mu.Lock()
	entry.Hits++
	c.mu.Unlock()

	c.recordLookup(true)
	return entry.Consultation, true
}

// Set stores a consultation under the given key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, consultation *models.Consultation, ttl time.Duration) error {
	if !c.config.Enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.config.BaseTTL
	}

	entry := &Entry{
		Key:          key,
		Consultation: consultation,
		CachedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(ttl),
	}

	if c.backend != nil {
		return c.backend.Set(ctx, key, entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.config.MaxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	return nil
}

// Delete removes an entry.
func (c *Cache) Delete(ctx context.Context, key string) {
	if !c.config.Enabled {
		return
	}
	if c.backend != nil {
		c.backend.Delete(ctx, key)
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) {
	if !c.config.Enabled {
		return
	}
	if c.backend != nil {
		c.backend.Clear(ctx)
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.TotalEntries = int64(len(c.entries))
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// cleanupLoop periodically removes expired entries.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *Cache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// evictOldest removes the oldest entry by CachedAt. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

func (c *Cache) recordLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}
