package monitor

import (
	"container/list"
	"sync"

	"order_monitor/internal/domain"
)

// StateCache holds the last observed state per order, bounded by capacity.
// When full, the least-recently-touched entry is evicted. Put and Touch
// count as touches; Get does not.
type StateCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently touched
	items    map[string]*list.Element
}

type cacheEntry struct {
	id    string
	state domain.OrderState
}

func NewStateCache(capacity int) *StateCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &StateCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached state for id.
func (c *StateCache) Get(id string) (domain.OrderState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		return el.Value.(*cacheEntry).state, true
	}
	return domain.OrderState{}, false
}

// Put replaces the state for its order id and marks it most recent.
// It returns the id evicted to stay within capacity, if any.
func (c *StateCache) Put(state domain.OrderState) (evicted string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[state.OrderID]; ok {
		el.Value.(*cacheEntry).state = state
		c.ll.MoveToFront(el)
		return ""
	}

	c.items[state.OrderID] = c.ll.PushFront(&cacheEntry{id: state.OrderID, state: state})
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		evicted = oldest.Value.(*cacheEntry).id
		delete(c.items, evicted)
	}
	return evicted
}

// Touch marks id most recent without changing its state.
func (c *StateCache) Touch(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if ok {
		c.ll.MoveToFront(el)
	}
	return ok
}

func (c *StateCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
}

// Retain drops every entry for which keep returns false and reports how
// many were dropped.
func (c *StateCache) Retain(keep func(id string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		id := el.Value.(*cacheEntry).id
		if !keep(id) {
			c.ll.Remove(el)
			delete(c.items, id)
			dropped++
		}
		el = next
	}
	return dropped
}

func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Snapshot copies the cached states, most recent first.
func (c *StateCache) Snapshot() []domain.OrderState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.OrderState, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*cacheEntry).state)
	}
	return out
}
