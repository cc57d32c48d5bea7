// Package cache keeps compiled units in a set-associative table keyed by
// guest address, using Akita's cache directory for placement and LRU
// replacement.
package cache

import (
	"sync"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/sarchlab/m2dbt/codegen"
)

// unitAlign is the directory block size. Guest units start on
// instruction boundaries, so every aligned address is its own line.
const unitAlign = 4

var (
	// ErrInvalidConfig is returned for geometries the directory cannot
	// hold.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrMisaligned is returned for guest addresses that are not
	// instruction aligned.
	ErrMisaligned = errors.New("misaligned unit address")
)

// Config holds the cache geometry.
type Config struct {
	// Sets is the number of sets.
	Sets int
	// Ways is the associativity.
	Ways int
}

// DefaultConfig returns a 1024-unit, 4-way cache.
func DefaultConfig() Config {
	return Config{
		Sets: 256,
		Ways: 4,
	}
}

// Validate checks that the geometry is usable.
func (c Config) Validate() error {
	if c.Sets <= 0 || c.Ways <= 0 {
		return errors.Wrap(ErrInvalidConfig, "%d sets x %d ways", c.Sets, c.Ways)
	}
	if c.Sets&(c.Sets-1) != 0 {
		return errors.Wrap(ErrInvalidConfig, "sets %d is not a power of two", c.Sets)
	}
	return nil
}

// Statistics holds cache counters.
type Statistics struct {
	Lookups       uint64
	Hits          uint64
	Misses        uint64
	Inserts       uint64
	Evictions     uint64
	Invalidations uint64
}

// HitRate returns hits per lookup, or 0 before the first lookup.
func (s Statistics) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// TranslationCache maps guest unit addresses to generated code. It is
// safe for concurrent use.
type TranslationCache struct {
	mu sync.Mutex

	config    Config
	directory *akitacache.DirectoryImpl

	// units is indexed by setID*ways + wayID.
	units []*codegen.Func
	stats Statistics
}

// New creates an empty translation cache.
func New(config Config) (*TranslationCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &TranslationCache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Ways,
			unitAlign,
			akitacache.NewLRUVictimFinder(),
		),
		units: make([]*codegen.Func, config.Sets*config.Ways),
	}, nil
}

// Config returns the cache geometry.
func (c *TranslationCache) Config() Config {
	return c.config
}

func (c *TranslationCache) slot(block *akitacache.Block) int {
	return block.SetID*c.config.Ways + block.WayID
}

func checkAlign(addr uint64) error {
	if addr%unitAlign != 0 {
		return errors.Wrap(ErrMisaligned, "%#x", addr)
	}
	return nil
}

// Lookup returns the unit compiled for addr, if cached.
func (c *TranslationCache) Lookup(addr uint64) (*codegen.Func, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Lookups++

	if addr%unitAlign != 0 {
		c.stats.Misses++
		return nil, false
	}

	block := c.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	c.directory.Visit(block)

	return c.units[c.slot(block)], true
}

// Insert caches fn for addr. When the set is full the least recently
// used unit is evicted and its address returned.
func (c *TranslationCache) Insert(addr uint64, fn *codegen.Func) (evicted uint64, ok bool, err error) {
	if err := checkAlign(addr); err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Inserts++

	if block := c.directory.Lookup(0, addr); block != nil && block.IsValid {
		c.units[c.slot(block)] = fn
		c.directory.Visit(block)
		return 0, false, nil
	}

	victim := c.directory.FindVictim(addr)
	if victim == nil {
		return 0, false, errors.Wrap(ErrInvalidConfig, "no victim for %#x", addr)
	}

	if victim.IsValid {
		evicted, ok = victim.Tag, true
		c.stats.Evictions++

		tlog.V("cache").Printw("evict unit",
			"addr", victim.Tag,
			"set", victim.SetID,
			"for", addr)
	}

	victim.Tag = addr
	victim.IsValid = true
	victim.IsDirty = false
	c.units[c.slot(victim)] = fn
	c.directory.Visit(victim)

	return evicted, ok, nil
}

// Invalidate drops the unit for addr. It reports whether one was cached.
func (c *TranslationCache) Invalidate(addr uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	block := c.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		return false
	}

	c.drop(block)
	c.stats.Invalidations++
	return true
}

// InvalidateRange drops every unit whose entry address lies in
// [lo, hi). It returns the number of units dropped.
func (c *TranslationCache) InvalidateRange(lo, hi uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.Tag >= lo && block.Tag < hi {
				c.drop(block)
				n++
			}
		}
	}

	c.stats.Invalidations += uint64(n)
	return n
}

func (c *TranslationCache) drop(block *akitacache.Block) {
	block.IsValid = false
	block.IsDirty = false
	c.units[c.slot(block)] = nil
}

// Len returns the number of cached units.
func (c *TranslationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}

// Flush drops every cached unit. Statistics are kept.
func (c *TranslationCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.directory.Reset()
	for i := range c.units {
		c.units[i] = nil
	}
}

// Stats returns a snapshot of the counters.
func (c *TranslationCache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// ResetStats clears the counters.
func (c *TranslationCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = Statistics{}
}
