package store

import (
	"container/list"
	"sync"

	"github.com/atriumhq/atrium/pkg/episode"
)

// lruCache is the in-memory tier in front of Badger point reads.
type lruCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	hits     int64
	misses   int64
}

type cacheItem struct {
	key string
	ep  *episode.Episode
}

func newLRUCache(maxSize int) *lruCache {
	return &lruCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// get returns a clone of the cached row. Callers may mutate the result
// freely without racing other readers.
func (c *lruCache) get(key string) (*episode.Episode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheItem).ep.Clone(), true
	}
	c.misses++
	return nil, false
}

// put stores a clone of ep, so later writes through the caller's pointer
// never reach the cached copy.
func (c *lruCache) put(key string, ep *episode.Episode) {
	ep = ep.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*cacheItem).ep = ep
		return
	}
	if c.eviction.Len() >= c.maxSize {
		back := c.eviction.Back()
		if back != nil {
			c.eviction.Remove(back)
			delete(c.items, back.Value.(*cacheItem).key)
		}
	}
	c.items[key] = c.eviction.PushFront(&cacheItem{key: key, ep: ep})
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
}

// hitRate reports the cache hit rate and total accesses.
func (c *lruCache) hitRate() (rate float64, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total = c.hits + c.misses
	if total == 0 {
		return 0, 0
	}
	return float64(c.hits) / float64(total), total
}

// CacheHitRate exposes the L1 hit rate for the status endpoint.
func (s *BadgerStore) CacheHitRate() (float64, int64) {
	return s.cache.hitRate()
}
