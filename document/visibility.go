package document

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/contentgraph/corestore/revision"
)

// BranchLookup resolves branch membership/base information needed by
// visibility resolution (§4.6 step 3/4). nodestore's branch manager
// implements this against its UnmergedBranches table.
type BranchLookup interface {
	// ContainsCommit reports whether commit belongs to the branch headed
	// by head.
	ContainsCommit(head, commit revision.Revision) bool
	// Base returns the base revision the branch headed by head was
	// forked from.
	Base(head revision.Revision) (revision.Revision, bool)
}

// Resolver answers isCommitted/visibility queries against a DocumentStore,
// following _commitRoot/_prev pointers as needed (§4.6). One Resolver is
// created per read and discarded; its validRevisions set memoizes
// positive results for the lifetime of that read.
type Resolver struct {
	store      Store
	branches   BranchLookup
	comparator *revision.Comparator

	// validRevisions memoizes revisions already proven visible during
	// this read (§4.6: "positive results are memoized in a per-read
	// validRevisions set"). golang-set gives first-writer-wins-free set
	// semantics without hand-rolling membership bookkeeping.
	validRevisions mapset.Set[revision.Revision]
}

// NewResolver returns a Resolver for one read, bound to store for
// document lookups, branches for unmerged-branch membership, and
// comparator for cross-cluster ordering.
func NewResolver(store Store, branches BranchLookup, comparator *revision.Comparator) *Resolver {
	return &Resolver{
		store:          store,
		branches:       branches,
		comparator:     comparator,
		validRevisions: mapset.NewThreadUnsafeSet[revision.Revision](),
	}
}

// IsVisible decides whether revision r (committed somewhere in doc's
// lineage) is visible to a reader at readRevision rr (§4.6).
func (res *Resolver) IsVisible(doc *NodeDocument, r, rr revision.Revision) (bool, error) {
	if res.validRevisions.Contains(r) {
		return true, nil
	}

	commitRootDoc, value, err := res.findCommitValue(doc, r)
	if err != nil {
		return false, err
	}
	if commitRootDoc == nil {
		// No commit marker reachable anywhere in the lineage: never
		// committed, so never visible.
		return false, nil
	}

	visible, err := res.classify(commitRootDoc, value, r, rr)
	if err != nil {
		return false, err
	}
	if visible {
		res.validRevisions.Add(r)
	}
	return visible, nil
}

// findCommitValue locates the commit-root document for r and its raw
// _revisions[r] marker, descending into _prev windows when the primary
// document doesn't hold it directly (§4.6 steps 1-2).
func (res *Resolver) findCommitValue(doc *NodeDocument, r revision.Revision) (*NodeDocument, string, error) {
	if v, ok := doc.Get(KeyRevisions, r); ok {
		return doc, v, nil
	}

	depthStr, ok := doc.Get(KeyCommitRoot, r)
	if ok {
		ancestor, err := res.resolveAncestor(doc, depthStr)
		if err != nil {
			return nil, "", err
		}
		if ancestor == nil {
			return nil, "", nil
		}
		if v, ok := ancestor.Get(KeyRevisions, r); ok {
			return ancestor, v, nil
		}
		doc = ancestor
	}

	for _, prevEntry := range doc.SortedPrev() {
		if !rangeIncludes(prevEntry, r, res.comparator) {
			continue
		}
		prevId := PreviousIdFor(doc.Id, prevEntry.High)
		prevDoc, err := res.store.Find(CollectionNodes, prevId)
		if err != nil {
			return nil, "", err
		}
		if prevDoc == nil {
			// MissingDocument (§7): treated as a hole, reader continues
			// scanning rather than raising.
			continue
		}
		if cr, v, err := res.findCommitValue(prevDoc, r); err == nil && cr != nil {
			return cr, v, nil
		}
	}
	return nil, "", nil
}

func rangeIncludes(e PrevEntry, r revision.Revision, cmp *revision.Comparator) bool {
	rg := revision.Range{High: e.High, Low: e.Low}
	return rg.Includes(r, cmp)
}

// resolveAncestor walks up from doc's own path to its ancestor at depth
// depthStr to find the commit-root document. depthStr is the
// string-encoded depth of the ancestor (§3 _commitRoot row).
func (res *Resolver) resolveAncestor(doc *NodeDocument, depthStr string) (*NodeDocument, error) {
	path, ok := PathOf(doc.Id)
	if !ok {
		return nil, nil
	}
	depth := 0
	for _, c := range depthStr {
		if c < '0' || c > '9' {
			return nil, nil
		}
		depth = depth*10 + int(c-'0')
	}
	for PathDepth(path) > depth {
		path = ParentPath(path)
	}
	return res.store.Find(CollectionNodes, IdFor(path))
}

// classify implements §4.6 step 3: decide visibility of r at rr given the
// raw commit marker value found on commitRootDoc.
func (res *Resolver) classify(commitRootDoc *NodeDocument, value string, r, rr revision.Revision) (bool, error) {
	if IsCommitted(value) {
		if !rr.Branch {
			mergeRev := r
			if base, merged := BranchBaseOf(value); merged {
				if parsed, err := revision.Parse(base); err == nil {
					mergeRev = parsed
				}
			}
			return !res.comparator.Newer(mergeRev, rr), nil
		}

		// rr is on a branch: same-branch visibility if the commit root's
		// marker for rr.AsTrunk matches this same marker.
		if trunkMarker, ok := commitRootDoc.Get(KeyRevisions, rr.AsTrunk()); ok && trunkMarker == value {
			return !res.comparator.Newer(r, rr), nil
		}
		return false, nil
	}

	// Unmerged branch commit: value is itself a base-revision string.
	if r.ClusterID != rr.ClusterID {
		return false, nil
	}
	if res.branches == nil {
		return false, nil
	}
	return res.branches.ContainsCommit(rr, r), nil
}

// NodeDeleted resolves doc's own newest visible _deleted state at rr,
// independent of any single property's revision set: _deleted is only
// ever written on the commit that created or deleted the node, so a
// property last written before a later deletion would never otherwise
// see that deletion (its own value map holds no entry at or after the
// delete's revision). Exported so callers resolving node existence
// directly (e.g. nodestore.Root.Get) don't need to fish it out of
// GetNodeAtRevision's property map.
func (res *Resolver) NodeDeleted(doc *NodeDocument, rr revision.Revision) (bool, error) {
	m, ok := doc.Values[KeyDeleted]
	if !ok {
		return false, nil
	}
	revs := make([]revision.Revision, 0, len(m))
	for r := range m {
		revs = append(revs, r)
	}
	sortRevisionsDesc(revs)

	for _, r := range revs {
		visible, err := res.IsVisible(doc, r, rr)
		if err != nil {
			return false, err
		}
		if !visible {
			continue
		}
		return m[r] == "true", nil
	}
	return false, nil
}

// GetNodeAtRevision scans every property key on doc newest-first and
// returns the first committed, visible revision's value for each,
// short-circuiting to no properties at all once the node itself is
// deleted as of rr (§4.6 "getNodeAtRevision").
func (res *Resolver) GetNodeAtRevision(doc *NodeDocument, rr revision.Revision) (map[string]string, error) {
	deleted, err := res.NodeDeleted(doc, rr)
	if err != nil {
		return nil, err
	}
	if deleted {
		return map[string]string{}, nil
	}

	out := make(map[string]string)
	for key, m := range doc.Values {
		if key == KeyRevisions || key == KeyCommitRoot || key == KeyDeleted || key == KeyCollisions {
			continue
		}
		revs := make([]revision.Revision, 0, len(m))
		for r := range m {
			revs = append(revs, r)
		}
		sortRevisionsDesc(revs)

		for _, r := range revs {
			visible, err := res.IsVisible(doc, r, rr)
			if err != nil {
				return nil, err
			}
			if !visible {
				continue
			}
			out[key] = m[r]
			break
		}
	}
	return out, nil
}

func sortRevisionsDesc(revs []revision.Revision) {
	for i := 1; i < len(revs); i++ {
		for j := i; j > 0 && revisionLess(revs[j-1], revs[j]); j-- {
			revs[j-1], revs[j] = revs[j], revs[j-1]
		}
	}
}
