package resilience

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ConnectorCache caches configured connector instances by name, so the
// executor doesn't reconfigure (and reconnect) a connector on every
// operation that references it.
type ConnectorCache[T any] struct {
	cache *lru.Cache[string, T]
}

// NewConnectorCache builds a cache holding up to size instances, evicting
// least-recently-used entries past that bound.
func NewConnectorCache[T any](size int) (*ConnectorCache[T], error) {
	if size <= 0 {
		size = 32
	}
	c, err := lru.New[string, T](size)
	if err != nil {
		return nil, err
	}
	return &ConnectorCache[T]{cache: c}, nil
}

// Get returns the cached instance for name, if any.
func (c *ConnectorCache[T]) Get(name string) (T, bool) {
	return c.cache.Get(name)
}

// Put stores inst under name, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *ConnectorCache[T]) Put(name string, inst T) {
	c.cache.Add(name, inst)
}

// Remove evicts name, forcing the next Get to miss. Used by connection
// recovery: a detected pool/socket failure removes the stale instance so a
// fresh one is constructed before the next retry attempt.
func (c *ConnectorCache[T]) Remove(name string) {
	c.cache.Remove(name)
}
