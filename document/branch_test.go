package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/revision"
)

func TestUnmergedBranchesContainsCommit(t *testing.T) {
	u := NewUnmergedBranches()
	base := revision.MustParse("r1-0-1")
	u.NewBranch(base)

	commit := revision.MustParse("r2-0-1")
	require.NoError(t, u.RecordCommit(base, commit))

	require.True(t, u.ContainsCommit(base, base))
	require.True(t, u.ContainsCommit(base, commit))

	other := revision.MustParse("r3-0-1")
	require.False(t, u.ContainsCommit(base, other))
}

func TestUnmergedBranchesMergeRewritesMarker(t *testing.T) {
	store := NewMemoryStore()
	u := NewUnmergedBranches()

	base := revision.MustParse("r1-0-1")
	u.NewBranch(base)

	commit := revision.MustParse("r2-0-1")
	require.NoError(t, u.RecordCommit(base, commit))

	op := NewUpdateOp("1:/a")
	op.IsNew = true
	op.SetMapEntry(KeyRevisions, commit, base.String())
	_, err := store.CreateOrUpdate(CollectionNodes, op)
	require.NoError(t, err)

	err = u.Merge(store, base, map[revision.Revision]string{commit: "1:/a"})
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, "1:/a")
	require.NoError(t, err)
	marker, ok := doc.Get(KeyRevisions, commit)
	require.True(t, ok)
	require.True(t, IsCommitted(marker))
	require.Equal(t, CommittedBranch(base), marker)

	_, stillOpen := u.Base(commit)
	require.False(t, stillOpen, "branch should be dropped from the table after merge")
}

func TestUnmergedBranchesBaseLookup(t *testing.T) {
	u := NewUnmergedBranches()
	base := revision.MustParse("r5-0-1")
	u.NewBranch(base)

	got, ok := u.Base(base)
	require.True(t, ok)
	require.Equal(t, base, got)

	_, ok = u.Base(revision.MustParse("r9-0-1"))
	require.False(t, ok)
}
