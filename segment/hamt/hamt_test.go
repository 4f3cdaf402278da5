package hamt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/segment"
)

func recordIdFor(i int) segment.RecordId {
	return segment.RecordId{Offset: uint32(i * 4)}
}

func TestGetRoundTrip(t *testing.T) {
	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 500; i++ {
		pairs[fmt.Sprintf("key-%d", i)] = recordIdFor(i)
	}

	n := Build(pairs)
	require.Equal(t, len(pairs), n.Size())

	for k, want := range pairs {
		got, ok := n.Get(k)
		require.True(t, ok, "key %q should be present", k)
		require.Equal(t, want, got)
	}

	_, ok := n.Get("not-a-key")
	require.False(t, ok)
}

func TestSmallMapIsLeaf(t *testing.T) {
	pairs := map[string]segment.RecordId{
		"a": recordIdFor(1),
		"b": recordIdFor(2),
	}
	n := Build(pairs)
	require.True(t, n.IsLeaf())
}

func TestLargeMapIsBranch(t *testing.T) {
	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 200; i++ {
		pairs[fmt.Sprintf("key-%d", i)] = recordIdFor(i)
	}
	n := Build(pairs)
	require.False(t, n.IsLeaf())
}

type recordingVisitor struct {
	added, changed, deleted int
}

func (r *recordingVisitor) EntryAdded(key string, after segment.RecordId) bool {
	r.added++
	return true
}
func (r *recordingVisitor) EntryChanged(key string, before, after segment.RecordId) bool {
	r.changed++
	return true
}
func (r *recordingVisitor) EntryDeleted(key string, before segment.RecordId) bool {
	r.deleted++
	return true
}

func TestDiffEmptyToBuildYieldsOnlyAdds(t *testing.T) {
	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 80; i++ {
		pairs[fmt.Sprintf("key-%d", i)] = recordIdFor(i)
	}
	after := Build(pairs)

	v := &recordingVisitor{}
	require.True(t, Diff(nil, after, v))
	require.Equal(t, len(pairs), v.added)
	require.Zero(t, v.changed)
	require.Zero(t, v.deleted)
}

func TestDiffDetectsChangedAndDeleted(t *testing.T) {
	before := map[string]segment.RecordId{
		"a": recordIdFor(1),
		"b": recordIdFor(2),
		"c": recordIdFor(3),
	}
	after := map[string]segment.RecordId{
		"a": recordIdFor(1),    // unchanged
		"b": recordIdFor(99),   // changed
		"d": recordIdFor(4),    // added
		// "c" deleted
	}

	v := &recordingVisitor{}
	require.True(t, Diff(Build(before), Build(after), v))
	require.Equal(t, 1, v.added)
	require.Equal(t, 1, v.changed)
	require.Equal(t, 1, v.deleted)
}

func TestDiffAbortsOnFalseReturn(t *testing.T) {
	before := map[string]segment.RecordId{}
	after := map[string]segment.RecordId{
		"a": recordIdFor(1),
		"b": recordIdFor(2),
	}

	calls := 0
	v := &abortingVisitor{calls: &calls}
	Diff(Build(before), Build(after), v)
	require.Equal(t, 1, calls)
}

// abortingVisitor stops the traversal after its first callback, so a
// 2-entry diff should only ever see one EntryAdded call.
type abortingVisitor struct {
	calls *int
}

func (a *abortingVisitor) EntryAdded(key string, after segment.RecordId) bool {
	*a.calls++
	return false
}
func (a *abortingVisitor) EntryChanged(key string, before, after segment.RecordId) bool { return true }
func (a *abortingVisitor) EntryDeleted(key string, before segment.RecordId) bool        { return true }
