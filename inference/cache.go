package inference

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
)

// entryBytes approximates the per-entry memory footprint: the
// fingerprint, a policy of actionSpace float32s, a float32 value, and
// doubly-linked-list/map linkage overhead.
func entryBytes(actionSpace int) int {
	const linkageOverhead = 64 // list.Element + map bucket, a rough estimate
	return 16 + 4*actionSpace + 4 + linkageOverhead
}

type cacheEntry struct {
	fingerprint Fingerprint
	policy      []float32
	value       float32
}

// InferenceCache is a thread-safe, strict-LRU cache from Fingerprint to
// (policy, value), hand-rolled on container/list + a map rather than any
// pack library: see DESIGN.md for why the obvious candidates
// (dgraph-io/ristretto's probabilistic TinyLFU admission, badger's
// disk-backed KV semantics) cannot satisfy an exact "least-recently-used
// entry is absent" invariant.
type InferenceCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[Fingerprint]*list.Element
}

// NewInferenceCache returns a cache sized to hold capacityMB megabytes of
// entries for a model whose policy vectors have actionSpace elements.
func NewInferenceCache(capacityMB int, actionSpace int) *InferenceCache {
	perEntry := entryBytes(actionSpace)
	capacity := (capacityMB * 1 << 20) / perEntry
	if capacity < 1 {
		capacity = 1
	}
	return &InferenceCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[Fingerprint]*list.Element),
	}
}

// Lookup returns the cached (policy, value) for fingerprint, promoting it
// to most-recently-used, or ok=false on a miss.
func (c *InferenceCache) Lookup(fingerprint Fingerprint) (policy []float32, value float32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.index[fingerprint]
	if !found {
		return nil, 0, false
	}
	c.ll.MoveToFront(el)
	entry := el.Value.(*cacheEntry)
	return entry.policy, entry.value, true
}

// Insert records (policy, value) under fingerprint, promoting it to
// most-recently-used. If the cache is already at capacity and fingerprint
// is new, the least-recently-used entry is evicted first.
func (c *InferenceCache) Insert(fingerprint Fingerprint, policy []float32, value float32) error {
	if len(policy) == 0 {
		return errors.New("inference: cannot cache an empty policy")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, found := c.index[fingerprint]; found {
		entry := el.Value.(*cacheEntry)
		entry.policy = policy
		entry.value = value
		c.ll.MoveToFront(el)
		return nil
	}

	if c.ll.Len() >= c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).fingerprint)
		}
	}

	entry := &cacheEntry{fingerprint: fingerprint, policy: policy, value: value}
	el := c.ll.PushFront(entry)
	c.index[fingerprint] = el
	return nil
}

// Len returns the number of entries currently cached.
func (c *InferenceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
