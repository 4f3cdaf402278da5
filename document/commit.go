package document

import (
	"fmt"

	"github.com/contentgraph/corestore/internal/engerr"
	"github.com/contentgraph/corestore/revision"
)

// PathOp is one path's worth of property mutations within a commit:
// either a node creation/deletion (IsNew/IsDelete) or a set of
// property changes to apply at the commit's revision.
type PathOp struct {
	Path       string
	IsNew      bool
	IsDelete   bool
	Properties map[string]string // every entry is written as-is; there is no property-removal form
}

// CommitResult carries every document touched by a successful commit, so
// the caller (nodestore) can fold it back into in-memory state without a
// second round-trip to the store.
type CommitResult struct {
	Revision   revision.Revision
	CommitRoot string
	Touched    []*NodeDocument
}

// Commit batches PathOps into per-document UpdateOps and applies them
// atomically against store, following §4.7's protocol. branchBase, if
// non-zero, marks this as a branch commit ("c-<base>" / "<base>" per
// mergeImmediately). cmp, if non-nil, is used to run §4.7 step 5's
// conflict check (CheckConflicts) against every touched document's
// current state before anything is applied; pass nil only when the
// caller has already established there is no concurrent writer to guard
// against (e.g. a single-shot test fixture).
func Commit(store Store, paths []PathOp, r revision.Revision, baseRevision revision.Revision, branchBase *revision.Revision, mergeImmediately bool, cmp *revision.Comparator) (*CommitResult, error) {
	if len(paths) == 0 {
		return &CommitResult{Revision: r}, nil
	}

	if cmp != nil {
		for _, p := range paths {
			if p.IsNew {
				continue
			}
			doc, err := store.Find(CollectionNodes, IdFor(p.Path))
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			touchedKeys := make([]string, 0, len(p.Properties))
			for key := range p.Properties {
				touchedKeys = append(touchedKeys, key)
			}
			if err := CheckConflicts(doc, touchedKeys, baseRevision, cmp); err != nil {
				return nil, fmt.Errorf("document: commit: %w", err)
			}
		}
	}

	commitRootPath := commonAncestor(paths)
	commitRootId := IdFor(commitRootPath)

	ops := make([]*UpdateOp, 0, len(paths))
	for _, p := range paths {
		id := IdFor(p.Path)
		op := NewUpdateOp(id)
		op.IsNew = p.IsNew

		if id != commitRootId {
			op.SetScalar("_commitRootDepth", fmt.Sprintf("%d", PathDepth(commitRootPath)))
			op.SetMapEntry(KeyCommitRoot, r, fmt.Sprintf("%d", PathDepth(commitRootPath)))
		}

		for key := range p.Properties {
			op.ContainsMapEntry(key, baseRevision, false)
		}
		for key, v := range p.Properties {
			op.SetMapEntry(key, r, v)
		}
		if p.IsNew {
			op.SetMapEntry(KeyDeleted, r, "false")
		}
		if p.IsDelete {
			op.SetMapEntry(KeyDeleted, r, "true")
		}
		op.Increment(KeyModCount, 1)
		ops = append(ops, op)
	}

	// The commit root's op carries the commit marker and is applied last,
	// so readers never observe a partially-applied transaction as
	// committed (§4.7 step 2). When the commit root is not itself a
	// touched path, a marker-only op is added for it.
	var rootOp *UpdateOp
	for i, op := range ops {
		if op.Id == commitRootId {
			rootOp = op
			ops = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	if rootOp == nil {
		rootOp = NewUpdateOp(commitRootId)
	}
	rootOp.SetMapEntry(KeyRevisions, r, commitMarker(branchBase, mergeImmediately))
	ops = append(ops, rootOp)

	applied := make([]*UpdateOp, 0, len(ops))
	before := make([]*NodeDocument, 0, len(ops))
	var touched []*NodeDocument

	for _, op := range ops {
		prior, err := store.CreateOrUpdate(CollectionNodes, op)
		if err != nil {
			rollback(store, applied, before)
			return nil, fmt.Errorf("document: commit: %w", err)
		}
		applied = append(applied, op)
		before = append(before, prior)

		doc, err := store.Find(CollectionNodes, op.Id)
		if err != nil {
			rollback(store, applied, before)
			return nil, err
		}
		touched = append(touched, doc)
	}

	return &CommitResult{Revision: r, CommitRoot: commitRootId, Touched: touched}, nil
}

func commitMarker(branchBase *revision.Revision, mergeImmediately bool) string {
	switch {
	case branchBase == nil:
		return MarkerCommittedTrunk
	case mergeImmediately:
		return CommittedBranch(*branchBase)
	default:
		return branchBase.String()
	}
}

// rollback walks the reverse of every already-applied op, per §4.7 step 4.
func rollback(store Store, applied []*UpdateOp, before []*NodeDocument) {
	for i := len(applied) - 1; i >= 0; i-- {
		rev := applied[i].ReverseOperation(before[i])
		if rev.Delete {
			_ = store.Remove(CollectionNodes, rev.Id)
			continue
		}
		_, _ = store.CreateOrUpdate(CollectionNodes, rev)
	}
}

// commonAncestor returns the longest shared path prefix across every
// touched path, the commit root per §4.7.
func commonAncestor(paths []PathOp) string {
	if len(paths) == 0 {
		return ""
	}
	best := paths[0].Path
	for _, p := range paths[1:] {
		best = commonPrefix(best, p.Path)
	}
	return best
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	lastSlash := 0
	for ; i < n && a[i] == b[i]; i++ {
		if a[i] == '/' {
			lastSlash = i
		}
	}
	if i == len(a) && i == len(b) {
		return a
	}
	if i == len(a) && b[i] == '/' {
		return a
	}
	if i == len(b) && a[i] == '/' {
		return b
	}
	if lastSlash == 0 {
		return "/"
	}
	return a[:lastSlash]
}

// CheckConflicts implements §4.7 step 5: any revision in a touched
// property's value map newer than baseRevision is a concurrent write.
func CheckConflicts(doc *NodeDocument, touchedKeys []string, baseRevision revision.Revision, cmp interface{ Newer(a, b revision.Revision) bool }) error {
	for _, key := range touchedKeys {
		for _, r := range doc.Revisions(key) {
			if cmp.Newer(r, baseRevision) {
				return fmt.Errorf("document: %w: %s touched at %s after base %s", engerr.ConflictingUpdate, key, r, baseRevision)
			}
		}
		for _, r := range doc.Revisions(KeyDeleted) {
			if cmp.Newer(r, baseRevision) {
				return fmt.Errorf("document: %w: existence changed at %s after base %s", engerr.ConflictingUpdate, r, baseRevision)
			}
		}
	}
	return nil
}
