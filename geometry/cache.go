package geometry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/graph"
)

// DefaultDebounce is how long the cache waits after a node-set change before
// re-measuring
const DefaultDebounce = 50 * time.Millisecond

// Cache is a debounced PortLocator. Lookups between an invalidation and the
// recompute see the previous generation.
type Cache struct {
	measurer Measurer
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu         sync.RWMutex
	anchors    map[PortKey]Point
	generation uint64

	timerMu sync.Mutex
	timer   *time.Timer
	pending []graph.Node
	dirty   bool
	stopped bool
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithDebounce overrides the recompute delay; 0 recomputes synchronously
func WithDebounce(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.debounce = d
	}
}

// WithCacheLogger sets a logger for recompute traces
func WithCacheLogger(logger *zap.SugaredLogger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache. A nil measurer uses DefaultCardLayout.
func NewCache(measurer Measurer, opts ...CacheOption) *Cache {
	if measurer == nil {
		measurer = DefaultCardLayout
	}
	c := &Cache{
		measurer: measurer,
		debounce: DefaultDebounce,
		anchors:  make(map[PortKey]Point),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PortPosition implements PortLocator
func (c *Cache) PortPosition(nodeID, portID string) (Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.anchors[PortKey{nodeID, portID}]
	return p, ok
}

// Generation counts completed recomputes
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Invalidate schedules a recompute from snap. Repeated calls within the
// debounce window collapse into one recompute of the latest snapshot.
func (c *Cache) Invalidate(snap graph.Snapshot) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.stopped {
		return
	}
	c.pending = snap.Nodes
	c.dirty = true

	if c.debounce <= 0 {
		c.recomputeLocked()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.timerMu.Lock()
		defer c.timerMu.Unlock()
		if !c.stopped && c.dirty {
			c.recomputeLocked()
		}
	})
}

// Flush runs any pending recompute now
func (c *Cache) Flush() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.dirty {
		c.recomputeLocked()
	}
}

// Observe is a graph.Observer that invalidates on changes that move or
// add/remove ports
func (c *Cache) Observe(change graph.Change) {
	switch change.Op {
	case graph.OpNodeAdded, graph.OpNodeMoved, graph.OpNodeDeleted, graph.OpCleared, graph.OpRestored:
		c.Invalidate(change.Snapshot)
	}
}

// Stop cancels a pending recompute; later invalidations are ignored
func (c *Cache) Stop() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Cache) recomputeLocked() {
	anchors := c.measurer.Measure(c.pending)
	c.pending = nil
	c.dirty = false

	c.mu.Lock()
	c.anchors = anchors
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debugw("Port geometry recomputed", "generation", gen, "anchors", len(anchors))
	}
}
