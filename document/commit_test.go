package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/revision"
)

func TestCommitAddReadDelete(t *testing.T) {
	store := NewMemoryStore()
	gen := revision.NewGenerator(1, clock.NewFake(1000))
	cmp := revision.NewComparator(1)

	r1 := gen.Next()
	_, err := Commit(store, []PathOp{{Path: "/test", IsNew: true, Properties: map[string]string{}}}, r1, revision.Revision{}, nil, false, cmp)
	require.NoError(t, err)

	doc, err := store.Find(CollectionNodes, IdFor("/test"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	marker, ok := doc.Get(KeyRevisions, r1)
	require.True(t, ok)
	require.True(t, IsCommitted(marker))

	r2 := gen.Next()
	_, err = Commit(store, []PathOp{{Path: "/test", IsDelete: true}}, r2, r1, nil, false, cmp)
	require.NoError(t, err)

	deleted, ok := doc.Get(KeyDeleted, r2)
	require.True(t, ok)
	require.Equal(t, "true", deleted)
}

func TestUpdateOpReverseRestoresPriorValue(t *testing.T) {
	r := revision.MustParse("r1-0-1")
	before := New("1:/a")
	before.Set("p", r, "old")

	op := NewUpdateOp("1:/a").SetMapEntry("p", r, "new")
	rev := op.ReverseOperation(before)

	doc := New("1:/a")
	doc.Set("p", r, "new")
	rev.Apply(doc)

	v, ok := doc.Get("p", r)
	require.True(t, ok)
	require.Equal(t, "old", v)
}

func TestUpdateOpReverseOnNewDocumentDeletes(t *testing.T) {
	op := NewUpdateOp("1:/a")
	op.IsNew = true
	rev := op.ReverseOperation(nil)
	require.True(t, rev.Delete)
}
