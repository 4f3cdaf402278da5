package revision

import (
	"fmt"
	"sort"
	"sync"
)

// kind classifies how a foreign revision was resolved during Compare (§4.1
// steps 2-4).
type kind int

const (
	kindFallback kind = iota // no range ever recorded for the cluster: raw timestamp order
	kindKnown                // resolved to a recorded seenAt
	kindNewest               // newer than the newest recorded range, local cluster
	kindFuture               // newer than the newest recorded range, foreign cluster: invisible
)

// entry is one (foreign revision, seenAt) pair in a per-cluster range list.
// Entries are kept sorted ascending by revision, matching the order a single
// cluster mints its own revisions in.
type entry struct {
	revision Revision
	seenAt   Revision
}

// Comparator orders revisions originating on different clusters by
// consulting per-cluster ranges recorded via Add. It implements §4.1.
type Comparator struct {
	mu           sync.Mutex
	localCluster uint32
	ranges       map[uint32][]entry
}

// NewComparator returns a Comparator for a reader whose own cluster is
// localCluster.
func NewComparator(localCluster uint32) *Comparator {
	return &Comparator{localCluster: localCluster, ranges: make(map[uint32][]entry)}
}

// compareTriple orders two revisions by (timestamp, counter), the within-
// cluster natural order.
func compareTriple(a, b Revision) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	return 0
}

func compareClusterTiebreak(a, b Revision) int {
	if a.ClusterID == b.ClusterID {
		return 0
	}
	if a.ClusterID < b.ClusterID {
		return -1
	}
	return 1
}

func compareRaw(a, b Revision) int {
	if c := compareTriple(a, b); c != 0 {
		return c
	}
	return compareClusterTiebreak(a, b)
}

func kindOrder(k kind) int {
	switch k {
	case kindKnown:
		return 0
	case kindNewest:
		return 1
	case kindFuture:
		return 2
	default:
		return -1
	}
}

// Add records that revision r (minted on a foreign cluster) became visible
// to this process at local revision seenAt. If the last recorded entry for
// r's cluster already has the same seenAt, it is replaced rather than
// appended (§4.1 "the revision cannot be older than the last recorded one").
//
// Add reports an error — a programming error per §4.1 — if r is older than
// the tail of the existing list.
func (c *Comparator) Add(r Revision, seenAt Revision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.ranges[r.ClusterID]
	if len(list) > 0 {
		last := list[len(list)-1]
		if compareTriple(r, last.revision) < 0 {
			return fmt.Errorf("revision: comparator.Add: %s is older than the recorded tail %s for cluster %d", r, last.revision, r.ClusterID)
		}
		if last.seenAt.EqualsIgnoreBranch(seenAt) {
			list[len(list)-1] = entry{revision: r, seenAt: seenAt}
			return nil
		}
	}
	c.ranges[r.ClusterID] = append(list, entry{revision: r, seenAt: seenAt})
	return nil
}

// Purge discards ranges whose seenAt timestamp is <= t, for every cluster.
func (c *Comparator) Purge(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for cid, list := range c.ranges {
		i := 0
		for i < len(list) && list[i].seenAt.Timestamp <= t {
			i++
		}
		if i == 0 {
			continue
		}
		if i == len(list) {
			delete(c.ranges, cid)
		} else {
			c.ranges[cid] = append([]entry(nil), list[i:]...)
		}
	}
}

// classify resolves a single revision to a (seenAt, kind) pair per the
// translation rules in §4.1 steps 2-4. Caller must hold c.mu.
func (c *Comparator) classify(r Revision) (Revision, kind) {
	if r.ClusterID == c.localCluster {
		return r, kindKnown
	}
	list, ok := c.ranges[r.ClusterID]
	if !ok || len(list) == 0 {
		return Revision{}, kindFallback
	}
	// Largest entry with entry.revision <= r.
	i := sort.Search(len(list), func(i int) bool {
		return compareTriple(list[i].revision, r) > 0
	})
	if i == 0 {
		// r is older than everything recorded: treat conservatively as the
		// oldest known seenAt rather than fabricating an earlier one.
		return list[0].seenAt, kindKnown
	}
	if i == len(list) && compareTriple(r, list[len(list)-1].revision) > 0 {
		// Newer than the newest known range for this foreign cluster.
		return Revision{}, kindFuture
	}
	return list[i-1].seenAt, kindKnown
}

// Compare orders a and b. Same-cluster revisions compare by (timestamp,
// counter) directly (step 1). Cross-cluster revisions are translated to
// their local seenAt values and compared there (step 2), falling back to
// raw timestamp order when no range has ever been recorded for a cluster
// (step 4); a revision newer than every recorded range sorts after every
// known revision of that cluster (step 3), with FUTURE (foreign, unseen)
// sorting after NEWEST (local, just-minted).
func (c *Comparator) Compare(a, b Revision) int {
	if a.ClusterID == b.ClusterID {
		return compareTriple(a, b)
	}

	c.mu.Lock()
	sa, ka := c.classify(a)
	sb, kb := c.classify(b)
	c.mu.Unlock()

	if ka == kindFallback || kb == kindFallback {
		return compareRaw(a, b)
	}
	if ka != kb {
		if kindOrder(ka) < kindOrder(kb) {
			return -1
		}
		return 1
	}
	if ka == kindKnown {
		if cmp := compareTriple(sa, sb); cmp != 0 {
			return cmp
		}
	}
	return compareClusterTiebreak(a, b)
}

// Newer reports whether a is strictly newer than b under this comparator.
func (c *Comparator) Newer(a, b Revision) bool { return c.Compare(a, b) > 0 }

// IsOlder reports whether a is strictly older than b under this
// comparator — convenience complement to Newer.
func (c *Comparator) IsOlder(a, b Revision) bool { return c.Compare(a, b) < 0 }
