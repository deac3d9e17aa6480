package cache

import "sync"

// FIFO is a bounded map that evicts the oldest inserted key once full.
// Overwriting a key does not refresh its position.
type FIFO[K comparable, V any] struct {
	mu    sync.Mutex
	cap   int
	order []K
	m     map[K]V
}

func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[K, V]{cap: capacity, m: make(map[K]V, capacity)}
}

func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *FIFO[K, V]) Set(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		c.m[key] = val
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.m, oldest)
	}
	c.order = append(c.order, key)
	c.m[key] = val
}

func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
