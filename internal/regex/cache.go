package regex

import (
	"fmt"
	"sync"
	"time"

	"hotscript/internal/errors"
	"hotscript/internal/trace"
)

// DefaultCapacity is the number of compiled patterns kept
const DefaultCapacity = 100

// Entry is a cached compiled pattern. The key is the raw string the script
// passed, option prefix included.
type Entry struct {
	Key       string
	Pattern   Pattern
	Extra     Extra
	Options   Options
	PrefixLen int
}

// Source returns the pattern text without its option prefix
func (e *Entry) Source() string {
	return e.Key[e.PrefixLen:]
}

// Stats counts cache activity
type Stats struct {
	Hits          int64
	Misses        int64
	Compiles      int64
	CompileErrors int64
	Studies       int64
	StudyFailures int64
	Evictions     int64
	Releases      int64
}

// Cache maps raw pattern strings to compiled patterns. It is shared by the
// interpreter goroutine and the input hook goroutine, so every lookup and
// insertion happens under one mutex.
type Cache struct {
	mu           sync.Mutex
	engine       Engine
	slots        []*Entry
	used         int
	lastFound    int
	lastInserted int
	stats        Stats

	Tracer *trace.Recorder
}

// NewCache creates a cache holding up to capacity patterns
func NewCache(engine Engine, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		engine:       engine,
		slots:        make([]*Entry, capacity),
		lastInserted: -1,
	}
}

// Capacity returns the number of slots
func (c *Cache) Capacity() int { return len(c.slots) }

// Len returns the number of occupied slots
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// find searches outward from the last hit, alternating right and left
func (c *Cache) find(key string) int {
	if c.used == 0 {
		return -1
	}
	if c.slots[c.lastFound].Key == key {
		return c.lastFound
	}
	for step := 1; ; step++ {
		right, left := c.lastFound+step, c.lastFound-step
		if right >= c.used && left < 0 {
			return -1
		}
		if right < c.used && c.slots[right].Key == key {
			return right
		}
		if left >= 0 && c.slots[left].Key == key {
			return left
		}
	}
}

// Get returns the compiled form of raw, compiling and caching it on a miss.
// Compile failures are returned as a RegexError and never cached.
func (c *Cache) Get(raw string) (*Entry, error) {
	e, ev, err := c.lookup(raw)
	if ev != nil {
		c.Tracer.Emit(*ev)
	}
	return e, err
}

// lookup does the locked part of Get. The trace event, if any, is handed
// back so sinks run without the cache mutex held.
func (c *Cache) lookup(raw string) (*Entry, *trace.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.find(raw); i >= 0 {
		c.lastFound = i
		c.stats.Hits++
		return c.slots[i], nil, nil
	}
	c.stats.Misses++

	opts, prefix := ParseOptions(raw)
	started := time.Now()
	pat, err := c.engine.Compile(raw[prefix:], opts)
	c.stats.Compiles++
	if err != nil {
		c.stats.CompileErrors++
		ev := &trace.Event{Kind: trace.KindRegexCompile, Target: raw, Duration: time.Since(started), Err: err.Error()}
		return nil, ev, errors.New(errors.RegexError, err.Error()).WithWhat("RegEx").WithExtra(raw).WithCause(err)
	}
	e := &Entry{Key: raw, Pattern: pat, Options: opts, PrefixLen: prefix}
	if opts.Study {
		c.stats.Studies++
		if x, err := c.engine.Study(pat); err != nil {
			c.stats.StudyFailures++
		} else {
			e.Extra = x
		}
	}
	ev := &trace.Event{Kind: trace.KindRegexCompile, Target: raw, Detail: opts.String(), Duration: time.Since(started)}

	slot := (c.lastInserted + 1) % len(c.slots)
	if old := c.slots[slot]; old != nil {
		c.engine.Release(old.Pattern, old.Extra)
		c.stats.Evictions++
		c.stats.Releases++
	} else {
		c.used++
	}
	c.slots[slot] = e
	c.lastInserted = slot
	c.lastFound = slot
	return e, ev, nil
}

// Shutdown releases every cached pattern and empties the cache
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.slots {
		if e != nil {
			c.engine.Release(e.Pattern, e.Extra)
			c.stats.Releases++
			c.slots[i] = nil
		}
	}
	c.used = 0
	c.lastFound = 0
	c.lastInserted = -1
}

var shared struct {
	mu       sync.Mutex
	cache    *Cache
	engine   Engine
	capacity int
}

// Configure sets the engine and capacity the shared cache is created with.
// It fails once the shared cache exists.
func Configure(engine Engine, capacity int) error {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.cache != nil {
		return fmt.Errorf("regex cache already initialized")
	}
	shared.engine, shared.capacity = engine, capacity
	return nil
}

// Shared returns the process-wide cache, creating it on first use. Without
// a configured engine it uses PCRE2 when the library loads, else regexp2.
func Shared() *Cache {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.cache == nil {
		engine := shared.engine
		if engine == nil {
			engine, _ = NewDefaultEngine("")
		}
		shared.cache = NewCache(engine, shared.capacity)
	}
	return shared.cache
}

// Shutdown tears down the process-wide cache. A later Shared creates a
// fresh one.
func Shutdown() {
	shared.mu.Lock()
	c := shared.cache
	shared.cache = nil
	shared.mu.Unlock()
	if c != nil {
		c.Shutdown()
	}
}
