package hamt

import (
	"sort"

	"github.com/contentgraph/corestore/segment"
)

// Visitor receives diff callbacks in hash order (§4.5). Returning false
// from any method aborts the remaining traversal.
type Visitor interface {
	EntryAdded(key string, after segment.RecordId) bool
	EntryChanged(key string, before, after segment.RecordId) bool
	EntryDeleted(key string, before segment.RecordId) bool
}

// Diff compares before and after, invoking v in hash order. If both sides
// are leaves they are walked in parallel hash-order; otherwise the
// traversal recurses structurally per matching bitmap bit (§4.5).
func Diff(before, after *Node, v Visitor) bool {
	switch {
	case before == nil && after == nil:
		return true
	case before == nil:
		return diffAll(after, v, true)
	case after == nil:
		return diffAll(before, v, false)
	}

	if before.leaf && after.leaf {
		return diffLeaves(before.entries, after.entries, v)
	}
	if before.leaf != after.leaf {
		// Shape changed (leaf promoted to branch or vice versa): flatten
		// both sides to entry lists sorted by hash then key and diff as
		// leaves — still produces correct added/changed/deleted
		// classification, just without the branch-level short-circuiting.
		bs := append([]Entry(nil), flatten(before)...)
		as := append([]Entry(nil), flatten(after)...)
		for _, es := range [][]Entry{bs, as} {
			sort.Slice(es, func(i, j int) bool {
				if es[i].hash != es[j].hash {
					return es[i].hash < es[j].hash
				}
				return es[i].Key < es[j].Key
			})
		}
		return diffLeaves(bs, as, v)
	}

	bitmap := before.bitmap | after.bitmap
	for idx := uint32(0); idx < 32; idx++ {
		if bitmap&(1<<idx) == 0 {
			continue
		}
		var b, a *Node
		if before.bitmap&(1<<idx) != 0 {
			b = before.kids[idx]
		}
		if after.bitmap&(1<<idx) != 0 {
			a = after.kids[idx]
		}
		if !Diff(b, a, v) {
			return false
		}
	}
	return true
}

func flatten(n *Node) []Entry {
	if n == nil {
		return nil
	}
	if n.leaf {
		return n.entries
	}
	var out []Entry
	for idx := uint32(0); idx < 32; idx++ {
		if k, ok := n.kids[idx]; ok {
			out = append(out, flatten(k)...)
		}
	}
	return out
}

func diffAll(n *Node, v Visitor, added bool) bool {
	for _, e := range flatten(n) {
		if added {
			if !v.EntryAdded(e.Key, e.Value) {
				return false
			}
		} else {
			if !v.EntryDeleted(e.Key, e.Value) {
				return false
			}
		}
	}
	return true
}

func diffLeaves(before, after []Entry, v Visitor) bool {
	i, j := 0, 0
	for i < len(before) && j < len(after) {
		b, a := before[i], after[j]
		switch {
		case b.hash < a.hash || (b.hash == a.hash && b.Key < a.Key):
			if !v.EntryDeleted(b.Key, b.Value) {
				return false
			}
			i++
		case b.hash > a.hash || (b.hash == a.hash && b.Key > a.Key):
			if !v.EntryAdded(a.Key, a.Value) {
				return false
			}
			j++
		default:
			if b.Value != a.Value {
				if !v.EntryChanged(b.Key, b.Value, a.Value) {
					return false
				}
			}
			i++
			j++
		}
	}
	for ; i < len(before); i++ {
		if !v.EntryDeleted(before[i].Key, before[i].Value) {
			return false
		}
	}
	for ; j < len(after); j++ {
		if !v.EntryAdded(after[j].Key, after[j].Value) {
			return false
		}
	}
	return true
}
