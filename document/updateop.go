package document

import (
	"strconv"

	"github.com/contentgraph/corestore/revision"
)

// opKind is one conditional mutation kind within an UpdateOp (§4.7, §6
// DocumentStore contract).
type opKind int

const (
	opSetMapEntry opKind = iota
	opRemoveMapEntry
	opContainsMapEntryCheck // precondition, not a mutation
	opIncrement
	opSetScalar
)

type opEntry struct {
	kind      opKind
	key       string
	revision  revision.Revision
	hasRev    bool
	value     string
	condValue bool // for opContainsMapEntryCheck: required presence
	delta     int64
}

// UpdateOp is a conditional mutation descriptor against one document
// (§4.7, §6): a document id, a "new document" flag, and an ordered list
// of field-level changes plus containsMapEntry preconditions used by the
// store's createOrUpdate to detect collisions.
type UpdateOp struct {
	Id       string
	IsNew    bool
	Delete   bool
	ops      []opEntry
}

// NewUpdateOp returns an UpdateOp targeting document id.
func NewUpdateOp(id string) *UpdateOp {
	return &UpdateOp{Id: id}
}

// SetMapEntry records value for key at r.
func (u *UpdateOp) SetMapEntry(key string, r revision.Revision, value string) *UpdateOp {
	u.ops = append(u.ops, opEntry{kind: opSetMapEntry, key: key, revision: r, hasRev: true, value: value})
	return u
}

// RemoveMapEntry deletes the entry for key at r.
func (u *UpdateOp) RemoveMapEntry(key string, r revision.Revision) *UpdateOp {
	u.ops = append(u.ops, opEntry{kind: opRemoveMapEntry, key: key, revision: r, hasRev: true})
	return u
}

// ContainsMapEntry adds a precondition: the store must reject this op
// unless the document's current state has (or lacks) key[r] matching
// expected, used to detect collisions (§4.7 step 3).
func (u *UpdateOp) ContainsMapEntry(key string, r revision.Revision, expected bool) *UpdateOp {
	u.ops = append(u.ops, opEntry{kind: opContainsMapEntryCheck, key: key, revision: r, hasRev: true, condValue: expected})
	return u
}

// Increment adds delta to a scalar field (used for _modCount).
func (u *UpdateOp) Increment(key string, delta int64) *UpdateOp {
	u.ops = append(u.ops, opEntry{kind: opIncrement, key: key, delta: delta})
	return u
}

// SetScalar sets a non-revision-keyed scalar field. Apply only recognises
// _modified; a SetScalar on any other key has no effect on the document.
func (u *UpdateOp) SetScalar(key, value string) *UpdateOp {
	u.ops = append(u.ops, opEntry{kind: opSetScalar, key: key, value: value})
	return u
}

// ReverseOperation returns the inverse of u given the document state
// before it was applied (before may be nil for a brand-new document,
// §4.7 step 4). Applying the result undoes u.
func (u *UpdateOp) ReverseOperation(before *NodeDocument) *UpdateOp {
	rev := NewUpdateOp(u.Id)
	if before == nil {
		rev.Delete = true
		return rev
	}
	for _, e := range u.ops {
		switch e.kind {
		case opSetMapEntry:
			if prior, ok := before.Get(e.key, e.revision); ok {
				rev.SetMapEntry(e.key, e.revision, prior)
			} else {
				rev.RemoveMapEntry(e.key, e.revision)
			}
		case opRemoveMapEntry:
			if prior, ok := before.Get(e.key, e.revision); ok {
				rev.SetMapEntry(e.key, e.revision, prior)
			}
		case opIncrement:
			rev.Increment(e.key, -e.delta)
		case opSetScalar:
			// Scalars (e.g. _modified) are monotonic bookkeeping; leave
			// them as-is on rollback rather than chase a prior value we
			// don't track at that granularity.
		}
	}
	return rev
}

// Apply mutates doc in place per u's entries (the in-memory counterpart
// of a store's createOrUpdate, used by the in-memory DocumentStore and by
// tests exercising the commit pipeline directly).
func (u *UpdateOp) Apply(doc *NodeDocument) {
	for _, e := range u.ops {
		switch e.kind {
		case opSetMapEntry:
			if e.key == KeyPrev {
				// _prev windows live in doc.Prev, not in Values.
				if low, err := revision.Parse(e.value); err == nil {
					doc.AddPrev(PrevEntry{High: e.revision, Low: low})
				}
				continue
			}
			doc.Set(e.key, e.revision, e.value)
		case opRemoveMapEntry:
			doc.Remove(e.key, e.revision)
		case opIncrement:
			doc.ModCount += e.delta
		case opSetScalar:
			if e.key == KeyModified {
				if v, err := strconv.ParseInt(e.value, 10, 64); err == nil {
					doc.Modified = v
				}
			}
		}
	}
}

// CheckPreconditions evaluates every ContainsMapEntry precondition in u
// against doc (nil doc behaves as an empty document).
func (u *UpdateOp) CheckPreconditions(doc *NodeDocument) bool {
	for _, e := range u.ops {
		if e.kind != opContainsMapEntryCheck {
			continue
		}
		present := false
		if doc != nil {
			_, present = doc.Get(e.key, e.revision)
		}
		if present != e.condValue {
			return false
		}
	}
	return true
}
