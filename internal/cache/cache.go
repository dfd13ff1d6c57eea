package cache

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Default limits applied when a Config leaves a field unset
const (
	DefaultMaxEntries     = 1000
	DefaultMaxMemoryBytes = 50 * 1024 * 1024
	DefaultTTL            = 30 * time.Minute
)

// Config configures a bounded cache
type Config struct {
	// Name identifies the cache in logs and metrics
	Name string

	// MaxEntries limits the number of live entries (0 = DefaultMaxEntries)
	MaxEntries int

	// MaxMemoryBytes limits the approximate memory held by values (0 = DefaultMaxMemoryBytes)
	MaxMemoryBytes int64

	// DefaultTTL is used when Set is called without a TTL (0 = DefaultTTL)
	DefaultTTL time.Duration

	// SweepInterval sets how often expired entries are removed in the
	// background (0 = no background sweep)
	SweepInterval time.Duration

	Logger *slog.Logger
}

// Entry is a cached value together with its bookkeeping
type Entry[V any] struct {
	Key            string
	Value          V
	CreatedAt      time.Time
	TTL            time.Duration
	Size           int64
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the entry is logically absent at now
func (e *Entry[V]) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Stats is a point-in-time view of cache counters
type Stats struct {
	Name           string
	Entries        int
	MemoryBytes    int64
	MaxEntries     int
	MaxMemoryBytes int64
	Hits           uint64
	Misses         uint64
	Evictions      uint64
	Expirations    uint64
	HitRate        float64
}

// Cache is a goroutine-safe string-keyed store bounded by entry count and
// approximate memory, with per-entry TTL and strict LRU eviction.
type Cache[V any] struct {
	name       string
	maxEntries int
	maxMemory  int64
	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	lru    *simplelru.LRU[string, *Entry[V]]
	memory int64

	group singleflight.Group

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its sweeper when cfg.SweepInterval > 0.
// Call Close to stop the sweeper.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache[V]{
		name:       cfg.Name,
		maxEntries: cfg.MaxEntries,
		maxMemory:  cfg.MaxMemoryBytes,
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger.With("cache", cfg.Name),
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	// Capacity is one above the limit: eviction is done here, before Add,
	// so simplelru never evicts on its own. The callback runs for every
	// removal and keeps the memory counter in step.
	lru, err := simplelru.NewLRU[string, *Entry[V]](cfg.MaxEntries+1, func(_ string, e *Entry[V]) {
		c.memory -= e.Size
	})
	if err != nil {
		// Only possible with a non-positive size, which is ruled out above
		panic(err)
	}
	c.lru = lru

	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	} else {
		close(c.doneCh)
	}

	return c
}

// Name returns the configured cache name
func (c *Cache[V]) Name() string {
	return c.name
}

// Get returns the value for key. Expired entries are removed and reported
// as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if e.Expired(now) {
		c.lru.Remove(key)
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	}

	e.AccessCount++
	e.LastAccessedAt = now
	c.hits.Add(1)
	return e.Value, true
}

// Has reports whether a live entry exists for key without touching access
// statistics or LRU order
func (c *Cache[V]) Has(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	return ok && !e.Expired(now)
}

// Set stores value under key. A ttl <= 0 uses the default TTL. Least
// recently used entries are evicted until the new value fits both limits;
// a value larger than the whole memory budget is not stored.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	size := approxSize(value)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)

	if size > c.maxMemory {
		c.logger.Debug("value exceeds cache memory budget, not stored",
			"key", key, "size", size, "max_memory_bytes", c.maxMemory)
		return
	}

	for c.lru.Len() >= c.maxEntries || c.memory+size > c.maxMemory {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.evictions.Add(1)
	}

	c.lru.Add(key, &Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		Size:           size,
		LastAccessedAt: now,
	})
	c.memory += size
}

// Delete removes key and reports whether it was present
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.memory = 0
}

// Len returns the number of physically present entries, expired or not
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the present keys from least to most recently used
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Loader produces a value for a missing key
type Loader[V any] func(ctx context.Context) (V, error)

// GetOrSet returns the cached value for key, or calls load and stores its
// result. Concurrent callers for the same missing key share a single load
// call. Load errors are returned to every waiting caller and nothing is
// cached.
//
// The shared load is detached from any one caller's cancellation: a caller
// whose ctx is done returns ctx.Err() while the load keeps running for the
// others and its result is still cached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished between Get and DoChan may have stored it
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// peek returns a live value without updating statistics
func (c *Cache[V]) peek(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok || e.Expired(now) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// InvalidatePattern removes every key containing substr and returns the
// number removed
func (c *Cache[V]) InvalidatePattern(substr string) int {
	return c.invalidate(func(key string) bool {
		return strings.Contains(key, substr)
	})
}

// InvalidateRegexp removes every key matching re and returns the number
// removed
func (c *Cache[V]) InvalidateRegexp(re *regexp.Regexp) int {
	return c.invalidate(re.MatchString)
}

func (c *Cache[V]) invalidate(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []string
	for _, key := range c.lru.Keys() {
		if match(key) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		c.lru.Remove(key)
	}
	return len(victims)
}

// Sweep removes all expired entries and returns the number removed
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.lru.Remove(key)
	}
	c.expirations.Add(uint64(len(expired)))
	return len(expired)
}

// Stats returns current counters
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	entries := c.lru.Len()
	memory := c.memory
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Name:           c.name,
		Entries:        entries,
		MemoryBytes:    memory,
		MaxEntries:     c.maxEntries,
		MaxMemoryBytes: c.maxMemory,
		Hits:           hits,
		Misses:         misses,
		Evictions:      c.evictions.Load(),
		Expirations:    c.expirations.Load(),
		HitRate:        hitRate,
	}
}

// Close stops the background sweeper and waits for it to exit. It is safe
// to call more than once; the cache stays usable afterwards.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
	return nil
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired cache entries", "removed", n)
			}
		}
	}
}
