package document

import (
	"fmt"
	"sort"
	"sync"

	"github.com/contentgraph/corestore/revision"
)

// Branch tracks one uncommitted branch: its base revision, ordered commit
// history, and current head (§4.9).
type Branch struct {
	Base    revision.Revision
	Commits []revision.Revision // ascending commit order
}

// Head returns the branch's most recent commit, or Base if no commits
// have been made yet.
func (b *Branch) Head() revision.Revision {
	if len(b.Commits) == 0 {
		return b.Base
	}
	return b.Commits[len(b.Commits)-1]
}

// UnmergedBranches tracks every branch a NodeStore session has opened but
// not yet merged (§4.9). One instance is shared per NodeStore; branches
// are indexed by every revision the branch has ever produced so any of
// its commits or its head can resolve back to the same Branch.
type UnmergedBranches struct {
	mu       sync.RWMutex
	byRev    map[revision.Revision]*Branch
	branches []*Branch
}

// NewUnmergedBranches returns an empty branch table.
func NewUnmergedBranches() *UnmergedBranches {
	return &UnmergedBranches{byRev: make(map[revision.Revision]*Branch)}
}

// NewBranch opens a branch rooted at base and returns it.
func (u *UnmergedBranches) NewBranch(base revision.Revision) *Branch {
	u.mu.Lock()
	defer u.mu.Unlock()

	b := &Branch{Base: base}
	u.branches = append(u.branches, b)
	u.byRev[base] = b
	return b
}

// RecordCommit appends commit to the branch headed (before this call) by
// head, and indexes the new commit so later lookups resolve it.
func (u *UnmergedBranches) RecordCommit(head, commit revision.Revision) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	b, ok := u.byRev[head]
	if !ok {
		return fmt.Errorf("document: branch: no open branch at head %s", head)
	}
	b.Commits = append(b.Commits, commit)
	u.byRev[commit] = b
	return nil
}

// getBranch returns the Branch containing rev (§4.9 getBranch).
func (u *UnmergedBranches) getBranch(rev revision.Revision) (*Branch, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	b, ok := u.byRev[rev]
	return b, ok
}

// Base returns the base revision the branch containing rev was forked
// from (§4.9 getBase / BranchLookup.Base).
func (u *UnmergedBranches) Base(rev revision.Revision) (revision.Revision, bool) {
	b, ok := u.getBranch(rev)
	if !ok {
		return revision.Revision{}, false
	}
	return b.Base, true
}

// ContainsCommit reports whether commit belongs to the branch identified
// by head (§4.9 containsCommit / BranchLookup.ContainsCommit).
func (u *UnmergedBranches) ContainsCommit(head, commit revision.Revision) bool {
	b, ok := u.getBranch(head)
	if !ok {
		return false
	}
	if b.Base.Equal(commit) {
		return true
	}
	for _, c := range b.Commits {
		if c.Equal(commit) {
			return true
		}
	}
	return false
}

// Merge rewrites every _revisions[R] = "<base>" marker on the commit-root
// documents touched by the branch to "c-<base>" atomically, then drops
// the branch from the table (§4.9: "Merging a branch rewrites every
// _revisions[R] = <base> marker to c-<base> atomically").
func (u *UnmergedBranches) Merge(store Store, head revision.Revision, commitRootIds map[revision.Revision]string) error {
	b, ok := u.getBranch(head)
	if !ok {
		return fmt.Errorf("document: branch: no open branch at head %s", head)
	}

	applied := make([]*UpdateOp, 0, len(b.Commits))
	for _, commit := range b.Commits {
		rootId, ok := commitRootIds[commit]
		if !ok {
			continue
		}
		op := NewUpdateOp(rootId)
		op.SetMapEntry(KeyRevisions, commit, CommittedBranch(b.Base))
		if _, err := store.CreateOrUpdate(CollectionNodes, op); err != nil {
			rollbackMerge(store, applied)
			return fmt.Errorf("document: branch: merge: %w", err)
		}
		applied = append(applied, op)
	}

	u.mu.Lock()
	delete(u.byRev, b.Base)
	for _, c := range b.Commits {
		delete(u.byRev, c)
	}
	for i, bb := range u.branches {
		if bb == b {
			u.branches = append(u.branches[:i], u.branches[i+1:]...)
			break
		}
	}
	u.mu.Unlock()
	return nil
}

func rollbackMerge(store Store, applied []*UpdateOp) {
	for i := len(applied) - 1; i >= 0; i-- {
		// The merge only ever overwrote a "<base>" marker with
		// "c-<base>"; restoring the unmerged marker is the inverse.
		op := applied[i]
		for _, e := range op.ops {
			if e.kind == opSetMapEntry && e.key == KeyRevisions {
				base, _ := BranchBaseOf(e.value)
				restore := NewUpdateOp(op.Id).SetMapEntry(KeyRevisions, e.revision, base)
				_, _ = store.CreateOrUpdate(CollectionNodes, restore)
			}
		}
	}
}

// Branches returns a snapshot of every currently-open branch, sorted by
// base revision for deterministic iteration (diagnostics/tests).
func (u *UnmergedBranches) Branches() []*Branch {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Branch, len(u.branches))
	copy(out, u.branches)
	sort.Slice(out, func(i, j int) bool {
		return revisionLess(out[i].Base, out[j].Base)
	})
	return out
}
