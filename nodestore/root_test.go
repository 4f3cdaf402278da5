package nodestore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/document"
	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/internal/engerr"
	"github.com/contentgraph/corestore/revision"
)

func newTestNodeStore() *Store {
	docs := document.NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)
	return NewStore(docs, gen, cmp, 1)
}

func TestRootGetMissingPathReturnsNil(t *testing.T) {
	store := newTestNodeStore()
	root := store.GetRoot()

	state, err := root.Get("/nowhere")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestRootBranchMergeThenGet(t *testing.T) {
	store := newTestNodeStore()
	root := store.GetRoot()

	branch := root.Branch()
	branch.Mutation().AddNode("/a")
	branch.Mutation().SetProperty("/a", "p", "v1")
	_, err := branch.Merge(nil, nil)
	require.NoError(t, err)

	root.Rebase()
	state, err := root.Get("/a")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, "v1", state.Properties["p"])
}

func TestRootGetReturnsNilForDeletedNode(t *testing.T) {
	store := newTestNodeStore()
	root := store.GetRoot()

	branch := root.Branch()
	branch.Mutation().AddNode("/a")
	branch.Mutation().SetProperty("/a", "p", "v1")
	_, err := branch.Merge(nil, nil)
	require.NoError(t, err)
	root.Rebase()

	branch2 := root.Branch()
	branch2.Mutation().RemoveNode("/a")
	_, err = branch2.Merge(nil, nil)
	require.NoError(t, err)
	root.Rebase()

	state, err := root.Get("/a")
	require.NoError(t, err)
	require.Nil(t, state)
}

// TestConcurrentBranchesCreatingSameNodeConflict exercises §8 S3: two
// sessions branch from the same head, one creates /a first and commits,
// the other's create of the same path must fail with ConflictingUpdate
// rather than silently overwrite it.
func TestConcurrentBranchesCreatingSameNodeConflict(t *testing.T) {
	store := newTestNodeStore()
	root := store.GetRoot()

	branchA := root.Branch()
	branchA.Mutation().AddNode("/a")
	_, err := branchA.Merge(nil, nil)
	require.NoError(t, err)

	branchB := root.Branch()
	branchB.Mutation().AddNode("/a")
	_, err = branchB.Merge(nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, engerr.ConflictingUpdate))
}
