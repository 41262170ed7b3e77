// Package cache provides the parser and subtree caches behind the latency
// guarantees of the live pipeline.
//
// Caching here is a correctness concern, not just performance: every cache is
// keyed by content hash, so a hit is only ever returned for byte-identical
// input. TTLs bound memory; they are not a staleness mitigation. Disabling a
// cache must produce identical outputs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
)

// Defaults for the shared AST cache.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 60 * time.Second
)

// ContentKey is the cache key for a source unit: hex SHA-256 of its bytes.
type ContentKey string

// KeyFor hashes source content into a cache key.
func KeyFor(content []byte) ContentKey {
	sum := sha256.Sum256(content)
	return ContentKey(hex.EncodeToString(sum[:]))
}

// ASTCache is the shared per-dialect IR cache. Safe for concurrent use by
// every front-end instance of one dialect.
type ASTCache struct {
	dialect  ir.Dialect
	disabled bool
	mu       sync.Mutex
	lru      *expirable.LRU[ContentKey, *ir.IR]
}

// NewASTCache creates a cache with the given bounds. maxEntries <= 0 and
// ttl <= 0 fall back to the defaults.
func NewASTCache(dialect ir.Dialect, maxEntries int, ttl time.Duration) *ASTCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ASTCache{
		dialect: dialect,
		lru:     expirable.NewLRU[ContentKey, *ir.IR](maxEntries, nil, ttl),
	}
}

// Disable turns the cache into a pass-through. Outputs must be identical
// with the cache disabled; tests rely on this.
func (c *ASTCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	c.lru.Purge()
}

// Get returns the cached IR for byte-identical content, if present.
func (c *ASTCache) Get(key ContentKey) (*ir.IR, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		observability.RecordCacheLookup(string(c.dialect), false)
		return nil, false
	}
	doc, ok := c.lru.Get(key)
	observability.RecordCacheLookup(string(c.dialect), ok)
	return doc, ok
}

// Put stores a fully produced IR. Partial results must never be cached;
// callers only Put after a successful, validated lowering. Size bounds are
// enforced synchronously on insertion by LRU eviction.
func (c *ASTCache) Put(key ContentKey, doc *ir.IR) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return
	}
	c.lru.Add(key, doc)
}

// Len reports the live entry count.
func (c *ASTCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// SubtreeCache is a per-front-end-instance cache of lowered fragments
// (component bodies, JSX trees, widget subtrees). Not shared across tasks;
// bounded; cleared on instance disposal.
type SubtreeCache struct {
	maxEntries int
	disabled   bool
	entries    map[ContentKey]entry
	order      []ContentKey // insertion order for bounded eviction
}

type entry struct {
	value any
}

// NewSubtreeCache creates a bounded fragment cache.
func NewSubtreeCache(maxEntries int) *SubtreeCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &SubtreeCache{
		maxEntries: maxEntries,
		entries:    make(map[ContentKey]entry),
	}
}

// Disable turns the cache into a pass-through.
func (c *SubtreeCache) Disable() {
	c.disabled = true
	c.Clear()
}

// Get returns the cached fragment for byte-identical source.
func (c *SubtreeCache) Get(key ContentKey) (any, bool) {
	if c.disabled {
		return nil, false
	}
	e, ok := c.entries[key]
	return e.value, ok
}

// Put stores a lowered fragment, evicting the oldest entry at the bound.
func (c *SubtreeCache) Put(key ContentKey, value any) {
	if c.disabled {
		return
	}
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{value: value}
}

// Clear drops every entry. Called on front-end disposal.
func (c *SubtreeCache) Clear() {
	c.entries = make(map[ContentKey]entry)
	c.order = nil
}

// Len reports the live entry count.
func (c *SubtreeCache) Len() int { return len(c.entries) }
