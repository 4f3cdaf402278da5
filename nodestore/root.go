package nodestore

import (
	"errors"
	"fmt"

	"github.com/contentgraph/corestore/document"
	"github.com/contentgraph/corestore/internal/engerr"
	"github.com/contentgraph/corestore/internal/rlog"
	"github.com/contentgraph/corestore/revision"
)

// MaxCommitRetries bounds the rebase-and-retry loop on ConflictingUpdate
// (§7: "ConflictingUpdate is reflected up to the commit driver which may
// auto-retry (bounded)").
const MaxCommitRetries = 5

// Store bundles the collaborators a NodeStore needs: the document engine
// backend, a revision generator, the comparator for visibility decisions,
// and the shared move chain/branch table.
type Store struct {
	Docs       document.Store
	Generator  *revision.Generator
	Comparator *revision.Comparator
	Branches   *document.UnmergedBranches
	ClusterID  uint32
}

// NewStore wires a NodeStore backend from its collaborators.
func NewStore(docs document.Store, gen *revision.Generator, cmp *revision.Comparator, clusterID uint32) *Store {
	return &Store{
		Docs:       docs,
		Generator:  gen,
		Comparator: cmp,
		Branches:   document.NewUnmergedBranches(),
		ClusterID:  clusterID,
	}
}

// NodeState is the read-side handle to a node: its path and the
// resolved, visible properties at the bound readRevision.
type NodeState struct {
	Path       string
	Properties map[string]string
}

// Root is a reader bound to a captured readRevision (§6: "getRoot() ->
// NodeState — read at newest visible revision"); it must call Rebase to
// observe newer state.
type Root struct {
	store       *Store
	readRev     revision.Revision
	moves       *moveChain
}

// GetRoot returns a Root bound to the newest revision this Generator has
// issued — the closest analogue available without a separate head
// pointer, since the DocumentEngine has no single "head" the way the
// SegmentEngine's Journal does.
func (s *Store) GetRoot() *Root {
	return &Root{store: s, readRev: s.Generator.Last(), moves: newMoveChain()}
}

// Rebase advances r to read at the newest currently-issued revision.
func (r *Root) Rebase() {
	r.readRev = r.store.Generator.Last()
}

// Get resolves the node at path as visible at r's readRevision (§4.6
// getNodeAtRevision), returning nil when no document exists at path or
// the existing document's newest visible state there is deleted — a
// reader has no other way to distinguish "never existed"/"deleted" from
// "exists with no properties set".
func (r *Root) Get(path string) (*NodeState, error) {
	resolvedPath, _ := apply(r.moves.latest(), path)

	doc, err := r.store.Docs.Find(document.CollectionNodes, document.IdFor(resolvedPath))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	resolver := document.NewResolver(r.store.Docs, r.store.Branches, r.store.Comparator)
	deleted, err := resolver.NodeDeleted(doc, r.readRev)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, nil
	}

	props, err := resolver.GetNodeAtRevision(doc, r.readRev)
	if err != nil {
		return nil, err
	}
	return &NodeState{Path: resolvedPath, Properties: props}, nil
}

// Branch opens a NodeStoreBranch rooted at r's readRevision (§6:
// "branch() -> NodeStoreBranch").
func (r *Root) Branch() *NodeStoreBranch {
	base := r.readRev
	branchHead := r.store.Generator.NextBranch()
	r.store.Branches.NewBranch(base)
	// The branch's own Branch record is keyed by `base`; Merge records
	// its commit under base as well. branchHead is only what GetHead
	// reports.
	return &NodeStoreBranch{
		store:    r.store,
		base:     base,
		head:     branchHead,
		moves:    newMoveChain(),
		mutation: new(MutableTree),
	}
}

// MutableTree is the transient mutation buffer a writer accumulates
// before commit: one PathOp per touched path (§2, §4.10).
type MutableTree struct {
	ops []document.PathOp
}

// AddNode stages creation of an empty node at path.
func (t *MutableTree) AddNode(path string) {
	t.ops = append(t.ops, document.PathOp{Path: path, IsNew: true, Properties: map[string]string{}})
}

// RemoveNode stages deletion of path.
func (t *MutableTree) RemoveNode(path string) {
	t.ops = append(t.ops, document.PathOp{Path: path, IsDelete: true})
}

// SetProperty stages a property write at path.
func (t *MutableTree) SetProperty(path, name, value string) {
	for i := range t.ops {
		if t.ops[i].Path == path && !t.ops[i].IsDelete {
			if t.ops[i].Properties == nil {
				t.ops[i].Properties = make(map[string]string)
			}
			t.ops[i].Properties[name] = value
			return
		}
	}
	t.ops = append(t.ops, document.PathOp{Path: path, Properties: map[string]string{name: value}})
}

// MissingProperty returns the path of every staged new-node op that does
// not set name among its properties, for use by commit hooks enforcing a
// mandatory-field policy (e.g. hooks.RequiredProperty).
func (t *MutableTree) MissingProperty(name string) []string {
	var missing []string
	for _, op := range t.ops {
		if !op.IsNew {
			continue
		}
		if _, ok := op.Properties[name]; !ok {
			missing = append(missing, op.Path)
		}
	}
	return missing
}

// Move appends a from→to record to chain (§4.10). It stages no PathOp,
// so the move is not part of what Merge commits, and Root.Get does not
// see records appended to a chain other than its own.
func (t *MutableTree) Move(from, to string, chain *moveChain) {
	chain.record(from, to)
}

// NodeStoreBranch is a writer session: a MutableTree staged against a
// base revision, eventually merged back via hooks (§6).
type NodeStoreBranch struct {
	store    *Store
	base     revision.Revision
	head     revision.Revision
	moves    *moveChain
	mutation *MutableTree
}

// GetHead returns the branch's current head revision.
func (b *NodeStoreBranch) GetHead() revision.Revision { return b.head }

// SetRoot replaces the branch's staged mutation buffer wholesale.
func (b *NodeStoreBranch) SetRoot(t *MutableTree) { b.mutation = t }

// Mutation exposes the branch's MutableTree for staging changes.
func (b *NodeStoreBranch) Mutation() *MutableTree { return b.mutation }

// Rebase re-bases this branch's base revision on the newest available
// revision without discarding its staged (uncommitted) mutations.
func (b *NodeStoreBranch) Rebase() {
	b.base = b.store.Generator.Last()
}

// Merge commits the branch's staged mutations, running preValidation
// hooks before applying and postHook after. It retries on ConflictingUpdate
// up to MaxCommitRetries times, rebasing between attempts (§4.7, §7).
// Every attempt commits against store.Branches as an immediate merge
// (§4.9): document.Commit writes the commit-root marker directly in its
// already-merged "c-<base>" form, and store.Branches.RecordCommit/Merge
// retire the branch bookkeeping Root.Branch opened, so UnmergedBranches
// never accumulates an entry per branch that was, in practice, merged on
// its first commit.
func (b *NodeStoreBranch) Merge(preValidation []CommitHook, postHook func(*document.CommitResult)) (*NodeState, error) {
	var lastErr error
	for attempt := 0; attempt < MaxCommitRetries; attempt++ {
		for _, hook := range preValidation {
			if err := hook.Validate(b.mutation); err != nil {
				return nil, fmt.Errorf("nodestore: %w: %v", engerr.CommitHookRejection, err)
			}
		}

		base := b.base
		commitRev := b.store.Generator.Next()
		result, err := document.Commit(b.store.Docs, b.mutation.ops, commitRev, base, &base, true, b.store.Comparator)
		if err == nil {
			b.recordAndMerge(base, commitRev, result)
			if postHook != nil {
				postHook(result)
			}
			return &NodeState{}, nil
		}

		if !errors.Is(err, engerr.ConflictingUpdate) {
			return nil, err
		}
		lastErr = err
		rlog.Warn("nodestore: commit conflict, rebasing and retrying", "attempt", attempt, "error", err)
		b.Rebase()
	}
	return nil, fmt.Errorf("nodestore: commit failed after %d attempts: %w", MaxCommitRetries, lastErr)
}

// recordAndMerge links commitRev into the branch table under base (opening
// a fresh entry first if Rebase moved base past the one Root.Branch
// registered) and then immediately merges it, since Merge always commits
// with mergeImmediately. Bookkeeping failures are logged, not fatal: the
// document-level commit already succeeded and is the source of truth.
func (b *NodeStoreBranch) recordAndMerge(base, commitRev revision.Revision, result *document.CommitResult) {
	if _, ok := b.store.Branches.Base(base); !ok {
		b.store.Branches.NewBranch(base)
	}
	if err := b.store.Branches.RecordCommit(base, commitRev); err != nil {
		rlog.Warn("nodestore: branch bookkeeping: record commit", "error", err)
		return
	}
	if result.CommitRoot == "" {
		return
	}
	if err := b.store.Branches.Merge(b.store.Docs, base, map[revision.Revision]string{commitRev: result.CommitRoot}); err != nil {
		rlog.Warn("nodestore: branch bookkeeping: merge", "error", err)
	}
}

// CommitHook validates a staged mutation before it is applied (§2 "Commit
// hook pipeline"); hooks package provides the ordered pipeline
// composition.
type CommitHook interface {
	Validate(*MutableTree) error
}
