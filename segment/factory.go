package segment

import (
	"sync"
	"weak"
)

const (
	initialBucketBits = 4 // 16 buckets to start
	maxBucketEntries   = 5
)

// Factory is the weak-interning registry of Segment Ids described in §4.2.
// It hands out a single canonical *Id for any given 128-bit value so equal
// IDs compare pointer-equal, while letting the garbage collector reclaim IDs
// that are no longer referenced anywhere else in the process — exactly the
// "weak references to segment IDs" design called out in §9.
type Factory struct {
	mu      sync.Mutex
	bits    uint
	buckets [][]weak.Pointer[Id]
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		bits:    initialBucketBits,
		buckets: make([][]weak.Pointer[Id], 1<<initialBucketBits),
	}
}

// GetSegmentId returns the canonical, live *Id for (msb, lsb), creating and
// interning one if none is currently reachable.
func (f *Factory) GetSegmentId(msb, lsb uint64) *Id {
	target := Id{MSB: msb, LSB: lsb}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := target.bucketKey(f.bits)
	bucket := f.buckets[idx]

	kept := bucket[:0]
	var found *Id
	for _, wp := range bucket {
		p := wp.Value()
		if p == nil {
			continue // prune stale weak reference lazily
		}
		kept = append(kept, wp)
		if *p == target {
			found = p
		}
	}
	f.buckets[idx] = kept

	if found != nil {
		return found
	}

	p := new(Id)
	*p = target
	f.buckets[idx] = append(f.buckets[idx], weak.Make(p))
	f.maybeExpandLocked(idx)
	return p
}

// newMinted interns a freshly minted Id, identical in shape to
// GetSegmentId but skipping the "look for an existing match" step since a
// fresh random 128-bit value cannot already be interned.
func (f *Factory) newMinted(t Type) *Id {
	id := newID(t)

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := id.bucketKey(f.bits)
	p := new(Id)
	*p = id
	f.buckets[idx] = append(f.buckets[idx], weak.Make(p))
	f.maybeExpandLocked(idx)
	return p
}

// NewDataSegmentId mints and interns a fresh data-segment Id.
func (f *Factory) NewDataSegmentId() *Id { return f.newMinted(DataType) }

// NewBulkSegmentId mints and interns a fresh bulk-segment Id.
func (f *Factory) NewBulkSegmentId() *Id { return f.newMinted(BulkType) }

// maybeExpandLocked doubles the table, redistributing entries by the next
// higher bit, when the bucket just touched holds more than
// maxBucketEntries live entries (§4.2). Caller must hold f.mu.
func (f *Factory) maybeExpandLocked(touchedIdx uint32) {
	if len(f.buckets[touchedIdx]) <= maxBucketEntries {
		return
	}
	f.expandLocked()
}

func (f *Factory) expandLocked() {
	newBits := f.bits + 1
	newBuckets := make([][]weak.Pointer[Id], 1<<newBits)

	for _, bucket := range f.buckets {
		for _, wp := range bucket {
			p := wp.Value()
			if p == nil {
				continue
			}
			idx := p.bucketKey(newBits)
			newBuckets[idx] = append(newBuckets[idx], wp)
		}
	}
	f.bits = newBits
	f.buckets = newBuckets
}

// GetReferencedSegmentIds returns a snapshot of every Id currently reachable
// through the factory — the GC mark-phase root set (§4.2, §9).
func (f *Factory) GetReferencedSegmentIds() []Id {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Id
	for bi, bucket := range f.buckets {
		kept := bucket[:0]
		for _, wp := range bucket {
			p := wp.Value()
			if p == nil {
				continue
			}
			kept = append(kept, wp)
			out = append(out, *p)
		}
		f.buckets[bi] = kept
	}
	return out
}

// Len reports how many live IDs the factory currently interns (for tests).
func (f *Factory) Len() int {
	return len(f.GetReferencedSegmentIds())
}
