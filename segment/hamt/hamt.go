// Package hamt implements MapRecord (§4.5): a hash-array-mapped trie over
// segment records used for a node's child-name map once it outgrows the
// inline ONE/ZERO template shapes.
package hamt

import (
	"hash/fnv"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/contentgraph/corestore/segment"
)

// maxLeafSize is the invariant boundary from §4.5: a level-L map with size
// > 32 must be a branch; at or below 32 (below MAX depth) it is a leaf.
const maxLeafSize = 32

// maxLevel bounds recursion: a 32-bit hash yields six five-bit levels
// (0-5) and a seventh (level 6) that uses the 2 remaining high bits; at
// level 7 entries collide into one oversized leaf rather than recursing
// further.
const maxLevel = 7

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

func levelIndex(hash uint32, level int) uint32 {
	return (hash >> (uint(level) * 5)) & 0x1F
}

// Entry is one key/value pair stored in a leaf, value being a RecordId
// pointing at the segment's encoding of the value.
type Entry struct {
	Key   string
	Value segment.RecordId
	hash  uint32
}

// Node is an in-memory MapRecord: either a leaf holding entries directly,
// or a branch of up to 32 child Nodes indexed by bitmap.
type Node struct {
	leaf    bool
	level   int
	entries []Entry        // leaf only, sorted by hash then key
	bitmap  uint32          // branch only
	kids    map[uint32]*Node // branch only, keyed by 5-bit index
}

// Build constructs a Node from an unordered set of entries at level 0,
// splitting into branches per the size invariant.
func Build(pairs map[string]segment.RecordId) *Node {
	entries := make([]Entry, 0, len(pairs))
	for k, v := range pairs {
		entries = append(entries, Entry{Key: k, Value: v, hash: hashKey(k)})
	}
	return build(entries, 0)
}

func build(entries []Entry, level int) *Node {
	if len(entries) <= maxLeafSize || level >= maxLevel {
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		slices.SortFunc(sorted, func(a, b Entry) bool {
			if a.hash != b.hash {
				return a.hash < b.hash
			}
			return a.Key < b.Key
		})
		return &Node{leaf: true, level: level, entries: sorted}
	}

	buckets := make(map[uint32][]Entry)
	for _, e := range entries {
		idx := levelIndex(e.hash, level)
		buckets[idx] = append(buckets[idx], e)
	}

	n := &Node{leaf: false, level: level, kids: make(map[uint32]*Node)}
	for idx, es := range buckets {
		n.bitmap |= 1 << idx
		n.kids[idx] = build(es, level+1)
	}
	return n
}

// Get returns the value for key and true, or the zero value and false
// (§4.5 get: "if the bit is clear, return null").
func (n *Node) Get(key string) (segment.RecordId, bool) {
	hash := hashKey(key)
	cur := n
	for !cur.leaf {
		idx := levelIndex(hash, cur.level)
		if cur.bitmap&(1<<idx) == 0 {
			return segment.RecordId{}, false
		}
		cur = cur.kids[idx]
	}
	// Leaves are scanned by hash (sorted ascending) and then by
	// string-equal key (§4.5).
	i := sort.Search(len(cur.entries), func(i int) bool { return cur.entries[i].hash >= hash })
	for ; i < len(cur.entries) && cur.entries[i].hash == hash; i++ {
		if cur.entries[i].Key == key {
			return cur.entries[i].Value, true
		}
	}
	return segment.RecordId{}, false
}

// Size returns the total entry count reachable from n.
func (n *Node) Size() int {
	if n.leaf {
		return len(n.entries)
	}
	total := 0
	for _, k := range n.kids {
		total += k.Size()
	}
	return total
}

// IsLeaf reports whether n is a leaf node (size-invariant check surface
// for tests, §4.5).
func (n *Node) IsLeaf() bool { return n.leaf }

// Entries returns every key/value pair reachable from n, in no particular
// order. Used to rebuild an in-memory child map from a decoded MapRecord
// (e.g. nodestore's SegmentStore.Reopen), where the caller needs every
// child name rather than a single Get lookup.
func (n *Node) Entries() []Entry {
	return flatten(n)
}
