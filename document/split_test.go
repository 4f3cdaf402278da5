package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/revision"
)

func alwaysCommitted(string, revision.Revision) bool { return true }

func TestSplitMovesOldRevisionsKeepsNewest(t *testing.T) {
	store := NewMemoryStore()
	doc := New("1:/a")

	r1 := revision.MustParse("r1-0-1")
	r2 := revision.MustParse("r2-0-1")
	r3 := revision.MustParse("r3-0-1")
	doc.Set("p", r1, "v1")
	doc.Set("p", r2, "v2")
	doc.Set("p", r3, "v3")

	prevDoc, op, err := Split(store, doc, 1, alwaysCommitted)
	require.NoError(t, err)
	require.NotNil(t, prevDoc)
	require.NotNil(t, op)

	v, ok := prevDoc.Get("p", r1)
	require.True(t, ok)
	require.Equal(t, "v1", v)
	_, ok = prevDoc.Get("p", r2)
	require.True(t, ok)
	_, ok = prevDoc.Get("p", r3)
	require.False(t, ok, "newest revision must stay in the primary document")

	found, err := store.Find(CollectionNodes, prevDoc.Id)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestSplitCandidateThresholds(t *testing.T) {
	doc := New("1:/a")
	require.False(t, SplitCandidate(doc, RevisionsSplitOffSize, ForceSplitThresholdBytes))

	for i := 0; i < RevisionsSplitOffSize+1; i++ {
		r := revision.Revision{Timestamp: int64(i + 1), ClusterID: 1}
		doc.Set(KeyRevisions, r, MarkerCommittedTrunk)
	}
	require.True(t, SplitCandidate(doc, RevisionsSplitOffSize, ForceSplitThresholdBytes))
}

func TestSplitNoOldRevisionsReturnsNil(t *testing.T) {
	store := NewMemoryStore()
	doc := New("1:/a")
	doc.Set("p", revision.MustParse("r1-0-1"), "only")

	prevDoc, op, err := Split(store, doc, 1, alwaysCommitted)
	require.NoError(t, err)
	require.Nil(t, prevDoc)
	require.Nil(t, op)
}
