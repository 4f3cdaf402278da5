package document

import (
	"fmt"

	"github.com/contentgraph/corestore/revision"
)

// SplitCandidate reports whether doc has crossed either §4.8 trigger: the
// revision/commitRoot entry count threshold, or the estimated-size
// threshold.
func SplitCandidate(doc *NodeDocument, revisionsSplitOffSize int, forceSplitThresholdBytes int64) bool {
	if doc.SplitCandidateCount() > revisionsSplitOffSize {
		return true
	}
	return doc.EstimatedSize() > forceSplitThresholdBytes
}

// Split moves old revisions of doc's user-property maps into a new
// previous-document, per §4.8. localClusterId restricts the move to
// committed revisions from the local cluster; isCommitted classifies a
// key's _revisions marker the same way Resolver does.
func Split(store Store, doc *NodeDocument, localClusterId uint32, isCommitted func(key string, r revision.Revision) bool) (*NodeDocument, *UpdateOp, error) {
	lastSplitHigh := latestPrevHigh(doc)

	prevId := ""
	var high revision.Revision
	prevDoc := New("")
	moved := false

	for key, m := range doc.Values {
		if IgnoreOnSplit[key] {
			continue
		}
		revs := make([]revision.Revision, 0, len(m))
		for r := range m {
			revs = append(revs, r)
		}
		sortRevisionsDesc(revs)

		// The newest revision of each map stays in the primary document
		// (§4.8); only strictly older, local-cluster, committed
		// revisions newer than the last _prev pointer are candidates.
		for i, r := range revs {
			if i == 0 {
				continue
			}
			if r.ClusterID != localClusterId {
				continue
			}
			if !isCommitted(key, r) {
				continue
			}
			if !lastSplitHigh.IsZero() && !revisionLess(lastSplitHigh, r) {
				continue
			}
			if high.IsZero() || revisionLess(high, r) {
				high = r
			}
			prevDoc.Set(key, r, m[r])
			moved = true
		}
	}

	if !moved {
		return nil, nil, nil
	}

	prevId = PreviousIdFor(doc.Id, high)
	prevDoc.Id = prevId

	op := NewUpdateOp(doc.Id)
	for key, m := range prevDoc.Values {
		for r := range m {
			op.RemoveMapEntry(key, r)
		}
	}
	low := oldestMoved(prevDoc)
	op.SetMapEntry(KeyPrev, high, low.String())

	if _, err := store.Create(CollectionNodes, []*UpdateOp{buildCreateOp(prevDoc)}); err != nil {
		return nil, nil, fmt.Errorf("document: split: create previous document: %w", err)
	}

	return prevDoc, op, nil
}

func latestPrevHigh(doc *NodeDocument) revision.Revision {
	var best revision.Revision
	for _, e := range doc.Prev {
		if best.IsZero() || revisionLess(best, e.High) {
			best = e.High
		}
	}
	return best
}

func oldestMoved(prevDoc *NodeDocument) revision.Revision {
	var oldest revision.Revision
	first := true
	for _, m := range prevDoc.Values {
		for r := range m {
			if first || revisionLess(r, oldest) {
				oldest = r
				first = false
			}
		}
	}
	return oldest
}

func buildCreateOp(doc *NodeDocument) *UpdateOp {
	op := NewUpdateOp(doc.Id)
	op.IsNew = true
	for key, m := range doc.Values {
		for r, v := range m {
			op.SetMapEntry(key, r, v)
		}
	}
	return op
}
