package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/revision"
)

func TestResolverIsVisibleTrunkCommit(t *testing.T) {
	store := NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)

	r1 := gen.Next()
	_, err := Commit(store, []PathOp{{Path: "/a", IsNew: true, Properties: map[string]string{"p": "v1"}}}, r1, revision.Revision{}, nil, false, cmp)
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, IdFor("/a"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	res := NewResolver(store, nil, cmp)
	visible, err := res.IsVisible(doc, r1, gen.Next())
	require.NoError(t, err)
	require.True(t, visible)
}

func TestResolverIsVisibleFutureRevisionHidden(t *testing.T) {
	store := NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)

	readRev := gen.Next()
	r2 := gen.Next()
	_, err := Commit(store, []PathOp{{Path: "/a", IsNew: true, Properties: map[string]string{"p": "v1"}}}, r2, revision.Revision{}, nil, false, cmp)
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, IdFor("/a"))
	require.NoError(t, err)

	res := NewResolver(store, nil, cmp)
	visible, err := res.IsVisible(doc, r2, readRev)
	require.NoError(t, err)
	require.False(t, visible)
}

func TestResolverGetNodeAtRevisionSkipsDeleted(t *testing.T) {
	store := NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)

	r1 := gen.Next()
	_, err := Commit(store, []PathOp{{Path: "/a", IsNew: true, Properties: map[string]string{"p": "v1"}}}, r1, revision.Revision{}, nil, false, cmp)
	require.NoError(t, err)

	r2 := gen.Next()
	_, err = Commit(store, []PathOp{{Path: "/a", IsDelete: true}}, r2, r1, nil, false, cmp)
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, IdFor("/a"))
	require.NoError(t, err)

	res := NewResolver(store, nil, cmp)
	props, err := res.GetNodeAtRevision(doc, gen.Next())
	require.NoError(t, err)
	_, ok := props["p"]
	require.False(t, ok, "deleted node should contribute no properties")
}

func TestResolverGetNodeAtRevisionReturnsLatestValue(t *testing.T) {
	store := NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)

	r1 := gen.Next()
	_, err := Commit(store, []PathOp{{Path: "/a", IsNew: true, Properties: map[string]string{"p": "v1"}}}, r1, revision.Revision{}, nil, false, cmp)
	require.NoError(t, err)

	r2 := gen.Next()
	_, err = Commit(store, []PathOp{{Path: "/a", Properties: map[string]string{"p": "v2"}}}, r2, r1, nil, false, cmp)
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, IdFor("/a"))
	require.NoError(t, err)

	res := NewResolver(store, nil, cmp)
	props, err := res.GetNodeAtRevision(doc, gen.Next())
	require.NoError(t, err)
	require.Equal(t, "v2", props["p"])
}
