package embedding

import "sync"

// Cache retains embeddings for recently seen texts so repeated lookups of
// the same label or chunk skip the model. Eviction is least-recently-used;
// both Get and Set refresh an entry's recency.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*cacheNode
	front    *cacheNode // most recently used
	back     *cacheNode // next eviction victim
}

type cacheNode struct {
	key  string
	vec  []float32
	prev *cacheNode
	next *cacheNode
}

// NewCache creates a cache holding at most capacity embeddings.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*cacheNode, capacity),
	}
}

// Get returns the cached embedding for key and marks it most recently used.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.touch(n)
	return n.vec, true
}

// Set stores the embedding for key, evicting the least recently used entry
// when the cache is full. Setting an existing key replaces its vector.
func (c *Cache) Set(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.entries[key]; ok {
		n.vec = vec
		c.touch(n)
		return
	}
	if len(c.entries) >= c.capacity {
		if victim := c.back; victim != nil {
			c.unlink(victim)
			delete(c.entries, victim.key)
		}
	}
	n := &cacheNode{key: key, vec: vec}
	c.entries[key] = n
	c.pushFront(n)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) touch(n *cacheNode) {
	if c.front == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache) pushFront(n *cacheNode) {
	n.prev = nil
	n.next = c.front
	if c.front != nil {
		c.front.prev = n
	}
	c.front = n
	if c.back == nil {
		c.back = n
	}
}

func (c *Cache) unlink(n *cacheNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.back = n.prev
	}
	n.prev, n.next = nil, nil
}
