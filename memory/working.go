package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// EvictionPolicy selects which item a full WorkingBuffer evicts.
type EvictionPolicy string

const (
	// EvictFIFO evicts the oldest item by insertion order.
	EvictFIFO EvictionPolicy = "fifo"

	// EvictLRU evicts the item with the oldest LastAccessedAt.
	EvictLRU EvictionPolicy = "lru"
)

// DefaultWorkingCapacity models the classic cognitive-load limit of
// roughly seven items held in attention at once.
const DefaultWorkingCapacity = 7

// WorkingBufferConfig configures a WorkingBuffer.
type WorkingBufferConfig struct {
	// Capacity is the maximum number of items held. Must be >= 1.
	Capacity int `json:"capacity" yaml:"capacity"`

	// Policy selects the eviction policy. Defaults to EvictFIFO.
	Policy EvictionPolicy `json:"policy" yaml:"policy"`

	// Now supplies the clock, for tests. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`
}

// WorkingBuffer is the agent's short-term attention window: an ordered,
// fixed-capacity sequence of the most recent interaction items.
type WorkingBuffer struct {
	mu     sync.RWMutex
	items  []types.Item
	cfg    WorkingBufferConfig
	logger *zap.Logger
}

// NewWorkingBuffer creates a working buffer. It rejects capacity < 1 and
// unknown eviction policies with a CONFIGURATION error before any writes.
func NewWorkingBuffer(cfg WorkingBufferConfig, logger *zap.Logger) (*WorkingBuffer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Capacity < 1 {
		return nil, types.NewError(types.ErrConfiguration, "working buffer capacity must be >= 1, got %d", cfg.Capacity)
	}
	if cfg.Policy == "" {
		cfg.Policy = EvictFIFO
	}
	if cfg.Policy != EvictFIFO && cfg.Policy != EvictLRU {
		return nil, types.NewError(types.ErrConfiguration, "unknown eviction policy %q", cfg.Policy)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WorkingBuffer{
		items:  make([]types.Item, 0, cfg.Capacity),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "working_buffer")),
	}, nil
}

// Push appends item to the buffer. When the capacity bound is breached it
// removes and returns the item selected by the eviction policy; otherwise
// it returns nil. The capacity invariant holds after every call.
func (b *WorkingBuffer) Push(item types.Item) *types.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	item.Importance = types.ClampImportance(item.Importance)
	b.items = append(b.items, item)

	if len(b.items) <= b.cfg.Capacity {
		return nil
	}

	idx := 0
	if b.cfg.Policy == EvictLRU {
		for i, it := range b.items {
			if it.LastAccessedAt.Before(b.items[idx].LastAccessedAt) {
				idx = i
			}
		}
	}

	evicted := b.items[idx]
	b.items = append(b.items[:idx], b.items[idx+1:]...)

	b.logger.Debug("working buffer eviction",
		zap.String("id", evicted.ID),
		zap.String("policy", string(b.cfg.Policy)))

	return &evicted
}

// Touch records an access to the item with the given id, updating its
// LastAccessedAt and AccessCount. Required for LRU correctness. Returns
// false when the item is not in the buffer.
func (b *WorkingBuffer) Touch(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].Touch(b.cfg.Now())
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current items in insertion order,
// most-recent-last.
func (b *WorkingBuffer) Snapshot() []types.Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.Item(nil), b.items...)
}

// Len returns the current number of items.
func (b *WorkingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Capacity returns the configured capacity bound.
func (b *WorkingBuffer) Capacity() int {
	return b.cfg.Capacity
}

// Clear removes all items.
func (b *WorkingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}
