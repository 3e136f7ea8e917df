// ABOUTME: Bounded TTL set of recently seen submission keys
// ABOUTME: Lets the web chat drop retried POSTs that carry the same idempotency key

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a submission key is remembered.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxSize bounds the number of remembered keys.
	DefaultMaxSize = 1024
)

type entry struct {
	key    string
	seenAt time.Time
}

// Cache remembers keys for a TTL, evicting the oldest key once full.
// Keys are kept in insertion order so expiry and eviction both pop from the
// front of the list.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow replaces the clock.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. Non-positive arguments select the defaults.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seen reports whether key was recorded within the TTL. A key that was not
// seen is recorded. The check and the record happen under one lock, so two
// concurrent retries cannot both pass.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if _, ok := c.entries[key]; ok {
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget removes key so a later request with it is accepted again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of remembered keys, including any not yet expired
// by a Seen call.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// expireLocked drops keys older than the TTL. Must be called with mu held.
func (c *Cache) expireLocked(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		e, _ := el.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		c.removeLocked(el)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e, _ := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}
