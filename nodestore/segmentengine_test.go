package nodestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/segment"
)

func newTestSegmentStore(t *testing.T) *SegmentStore {
	t.Helper()
	factory := segment.NewFactory()
	store := segment.NewMemoryStore()
	writer := segment.NewWriter(factory, store)
	journal, err := segment.OpenJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	cache := segment.NewCache(store, factory, segment.DefaultCacheBytes)
	return NewSegmentStore(writer, journal, cache, "ws")
}

func TestSegmentStoreApplyPublishesRoot(t *testing.T) {
	s := newTestSegmentStore(t)

	_, err := s.Apply([]SegmentPathOp{
		{Path: "/a", IsNew: true, Properties: map[string]string{"title": "hello"}},
	})
	require.NoError(t, err)

	props, ok := s.Get("/a")
	require.True(t, ok)
	require.Equal(t, "hello", props["title"])

	head, ok, err := s.Head()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, segment.RecordId{}, head)
}

func TestSegmentStoreApplyUpdateAndDelete(t *testing.T) {
	s := newTestSegmentStore(t)

	_, err := s.Apply([]SegmentPathOp{
		{Path: "/a", IsNew: true, Properties: map[string]string{"title": "v1"}},
	})
	require.NoError(t, err)

	_, err = s.Apply([]SegmentPathOp{
		{Path: "/a", Properties: map[string]string{"title": "v2"}},
	})
	require.NoError(t, err)

	props, ok := s.Get("/a")
	require.True(t, ok)
	require.Equal(t, "v2", props["title"])

	_, err = s.Apply([]SegmentPathOp{
		{Path: "/a", IsDelete: true},
	})
	require.NoError(t, err)

	_, ok = s.Get("/a")
	require.False(t, ok)
}

func TestSegmentStoreManyChildrenUseMapRecord(t *testing.T) {
	s := newTestSegmentStore(t)

	ops := make([]SegmentPathOp, 0, 64)
	for i := 0; i < 64; i++ {
		ops = append(ops, SegmentPathOp{
			Path:       "/parent/child" + string(rune('a'+i%26)) + string(rune('0'+i/26)),
			IsNew:      true,
			Properties: map[string]string{"n": "1"},
		})
	}
	_, err := s.Apply(ops)
	require.NoError(t, err)

	_, ok := s.Get("/parent/childa0")
	require.True(t, ok)
}
