package segment

import (
	"encoding/binary"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
)

// stringCacheBytes bounds each segment's own second-chance decode cache
// (§4.3). Segments are read far more often than written, so a modest
// per-segment budget amortizes repeated string decodes cheaply.
const stringCacheBytes = 64 * 1024

// stringCache is the segment's second-chance string cache (§4.3): decoded
// strings are kept keyed by their source offset in a fastcache.Cache byte
// store, and a recent-use flag per offset drives a CLOCK-style eviction
// pass in dropOldCacheEntries. Template decodes are not cached, and
// nothing in the package calls dropOldCacheEntries.
type stringCache struct {
	mu     sync.Mutex
	cache  *fastcache.Cache
	recent map[uint32]bool
}

func newStringCache() *stringCache {
	return &stringCache{
		cache:  fastcache.New(stringCacheBytes),
		recent: make(map[uint32]bool),
	}
}

func cacheKey(offset uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], offset)
	return b[:]
}

func (c *stringCache) get(offset uint32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cache.HasGet(nil, cacheKey(offset))
	if !ok {
		return "", false
	}
	c.recent[offset] = true
	return string(v), true
}

func (c *stringCache) put(offset uint32, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Set(cacheKey(offset), []byte(s))
	c.recent[offset] = true
}

// dropOldCacheEntries evicts every cached offset that was not touched since
// the previous pass, then clears the recent-use marks for survivors —
// classic CLOCK / second-chance eviction.
func (c *stringCache) dropOldCacheEntries() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for offset, touched := range c.recent {
		if touched {
			c.recent[offset] = false
			continue
		}
		c.cache.Del(cacheKey(offset))
		delete(c.recent, offset)
	}
}
