package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/document"
	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/nodestore"
	"github.com/contentgraph/corestore/revision"
)

func newTestStore() *nodestore.Store {
	docs := document.NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)
	return nodestore.NewStore(docs, gen, cmp, 1)
}

func TestRequiredPropertyRejectsMissingField(t *testing.T) {
	tree := &nodestore.MutableTree{}
	tree.AddNode("/a")

	hook := RequiredProperty{Name: "primaryType"}
	err := hook.Validate(tree)
	require.Error(t, err)
}

func TestRequiredPropertyAcceptsPresentField(t *testing.T) {
	tree := &nodestore.MutableTree{}
	tree.AddNode("/a")
	tree.SetProperty("/a", "primaryType", "folder")

	hook := RequiredProperty{Name: "primaryType"}
	err := hook.Validate(tree)
	require.NoError(t, err)
}

func TestPipelineMergeRunsPreAndPostHooks(t *testing.T) {
	store := newTestStore()
	root := store.GetRoot()
	branch := root.Branch()
	branch.Mutation().AddNode("/a")
	branch.Mutation().SetProperty("/a", "primaryType", "folder")

	p := New()
	p.Register("require-primary-type", RequiredProperty{Name: "primaryType"})

	var observed *document.CommitResult
	p.RegisterPost("observe", func(r *document.CommitResult) { observed = r })

	_, err := branch.Merge(p.PreHooks(), p.PostHook())
	require.NoError(t, err)
	require.NotNil(t, observed)
}

func TestPipelineMergeRejectedByPreHook(t *testing.T) {
	store := newTestStore()
	root := store.GetRoot()
	branch := root.Branch()
	branch.Mutation().AddNode("/a")

	p := New()
	p.Register("require-primary-type", RequiredProperty{Name: "primaryType"})

	_, err := branch.Merge(p.PreHooks(), p.PostHook())
	require.Error(t, err)
}
