package segment

import "fmt"

// GC implements the segment reclamation sweep (§2 SegmentWriter/§4.2
// GetReferencedSegmentIds doc: "used by a GC mark phase"). Mark roots are
// the live weak-interned ids from the Factory plus any ids the caller
// passes as pinned; anything in the Store that is neither is swept.
type GC struct {
	factory *Factory
	store   Store
	cache   *Cache
}

// NewGC builds a GC bound to factory's live-id table, store's persisted
// segments, and cache (evicted as segments are swept).
func NewGC(factory *Factory, store Store, cache *Cache) *GC {
	return &GC{factory: factory, store: store, cache: cache}
}

// Stats summarizes one sweep.
type Stats struct {
	Marked int
	Swept  int
	Bytes  int64
}

// Sweep walks every segment currently in the store and deletes any whose
// id is not reachable from the mark set (the Factory's live weak-ref
// table, unioned with the caller's pinned ids). It is best-effort
// and may be interrupted between deletions without leaving the store in
// an inconsistent state, since every intermediate state is itself a valid
// repository state (§5 Cancellation/timeouts).
func (g *GC) Sweep(pinned []Id) (Stats, error) {
	mark := make(map[Id]struct{})
	for _, id := range g.factory.GetReferencedSegmentIds() {
		mark[id] = struct{}{}
	}
	for _, id := range pinned {
		mark[id] = struct{}{}
	}

	stats := Stats{Marked: len(mark)}
	var toDelete []Id
	err := g.store.ForEach(func(id Id, size int) error {
		if _, ok := mark[id]; ok {
			return nil
		}
		toDelete = append(toDelete, id)
		stats.Bytes += int64(size)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("segment: gc: enumerate store: %w", err)
	}

	for _, id := range toDelete {
		if err := g.store.DeleteSegment(id); err != nil {
			return stats, fmt.Errorf("segment: gc: delete %s: %w", id, err)
		}
		if g.cache != nil {
			g.cache.Evict(id)
		}
		stats.Swept++
	}
	return stats, nil
}
