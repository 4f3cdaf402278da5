package segment

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheBytes is the default SegmentCache byte budget (§4.4).
const DefaultCacheBytes = 256 << 20

// Cache is a byte-budgeted LRU over decoded Segments, with single-flight
// loading so concurrent requests for the same id share one Store read
// (§4.4). currentSize always equals the sum of cached segment lengths.
type Cache struct {
	store   Store
	factory *Factory
	maxSize int64

	mu          sync.Mutex
	lru         *list.List // front = most recently used
	elems       map[Id]*list.Element
	currentSize int64

	group singleflight.Group
}

type cacheEntry struct {
	id  Id
	seg *Segment
}

// NewCache returns a Cache bounded by maxSize bytes, loading misses from
// store and interning ids through factory.
func NewCache(store Store, factory *Factory, maxSize int64) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheBytes
	}
	return &Cache{
		store:   store,
		factory: factory,
		maxSize: maxSize,
		lru:     list.New(),
		elems:   make(map[Id]*list.Element),
	}
}

// Get returns the decoded Segment for id, loading it from the store on a
// miss. Concurrent Get calls for the same id block on a single load.
func (c *Cache) Get(id Id) (*Segment, error) {
	if seg, ok := c.lookup(id); ok {
		return seg, nil
	}

	v, err, _ := c.group.Do(id.String(), func() (interface{}, error) {
		// Re-check: another goroutine may have populated the cache while
		// we queued up behind the singleflight group.
		if seg, ok := c.lookup(id); ok {
			return seg, nil
		}
		data, err := c.store.ReadSegment(id)
		if err != nil {
			return nil, err
		}
		seg, err := ParseSegment(id, data)
		if err != nil {
			return nil, err
		}
		c.insert(id, seg)
		return seg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Segment), nil
}

func (c *Cache) lookup(id Id) (*Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elems[id]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).seg, true
}

func (c *Cache) insert(id Id, seg *Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elems[id]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*cacheEntry).seg = seg
		return
	}

	el := c.lru.PushFront(&cacheEntry{id: id, seg: seg})
	c.elems[id] = el
	c.currentSize += int64(seg.Length())

	for c.currentSize > c.maxSize {
		back := c.lru.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.elems, entry.id)
		c.currentSize -= int64(entry.seg.Length())
	}
}

// CurrentSize returns the sum of cached segment byte lengths.
func (c *Cache) CurrentSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Resolve adapts Cache into a segment.Resolver bound to a fixed reference
// base, following a RecordId's segment id through the cache.
func (c *Cache) Resolve(rid RecordId) (*Segment, error) {
	return c.Get(rid.Segment)
}

// Evict drops id from the cache, used by GC after a segment is swept from
// the backing store.
func (c *Cache) Evict(id Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elems[id]
	if !ok {
		return
	}
	entry := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.elems, id)
	c.currentSize -= int64(entry.seg.Length())
}
