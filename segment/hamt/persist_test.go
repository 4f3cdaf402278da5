package hamt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/segment"
)

func TestWriteReadNodeRoundTripLeaf(t *testing.T) {
	factory := segment.NewFactory()
	store := segment.NewMemoryStore()
	w := segment.NewWriter(factory, store)

	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 10; i++ {
		ref, err := w.WriteString(fmt.Sprintf("value-%d", i))
		require.NoError(t, err)
		pairs[fmt.Sprintf("key-%d", i)] = ref.RecordId
	}

	n := Build(pairs)
	require.True(t, n.leaf)

	rootId, err := WriteNode(w, n)
	require.NoError(t, err)
	w.AddRoot(rootId.Offset)

	seg, err := w.Flush()
	require.NoError(t, err)

	resolve := func(rid segment.RecordId) (*segment.Segment, error) {
		data, err := store.ReadSegment(rid.Segment)
		if err != nil {
			return nil, err
		}
		return segment.ParseSegment(rid.Segment, data)
	}

	got, err := ReadNode(seg, rootId, resolve, 0)
	require.NoError(t, err)
	require.Equal(t, n.Size(), got.Size())

	for k, want := range pairs {
		gotVal, ok := got.Get(k)
		require.True(t, ok)
		require.Equal(t, want, gotVal)
	}
}

func TestWriteReadNodeRoundTripBranch(t *testing.T) {
	factory := segment.NewFactory()
	store := segment.NewMemoryStore()
	w := segment.NewWriter(factory, store)

	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 200; i++ {
		ref, err := w.WriteString(fmt.Sprintf("value-%d", i))
		require.NoError(t, err)
		pairs[fmt.Sprintf("key-%d", i)] = ref.RecordId
	}

	n := Build(pairs)
	require.False(t, n.leaf)

	rootId, err := WriteNode(w, n)
	require.NoError(t, err)
	w.AddRoot(rootId.Offset)

	seg, err := w.Flush()
	require.NoError(t, err)

	resolve := func(rid segment.RecordId) (*segment.Segment, error) {
		data, err := store.ReadSegment(rid.Segment)
		if err != nil {
			return nil, err
		}
		return segment.ParseSegment(rid.Segment, data)
	}

	got, err := ReadNode(seg, rootId, resolve, 0)
	require.NoError(t, err)
	require.Equal(t, len(pairs), got.Size())

	for k, want := range pairs {
		gotVal, ok := got.Get(k)
		require.True(t, ok)
		require.Equal(t, want, gotVal)
	}
}
