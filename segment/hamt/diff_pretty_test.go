package hamt

import (
	"fmt"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/segment"
)

// TestDiffVisitOrderIsStableAcrossRuns confirms two Diff(nil, n, ...) scans
// of the same built Node visit entries in the same order every time — the
// ordering callers (e.g. a replication log) rely on must not depend on
// build-time map iteration. pretty.Compare gives a readable key-by-key
// diff if that stability ever regresses, instead of a single opaque
// slice-equality failure across 80 keys.
func TestDiffVisitOrderIsStableAcrossRuns(t *testing.T) {
	pairs := make(map[string]segment.RecordId)
	for i := 0; i < 80; i++ {
		pairs[fmt.Sprintf("key-%d", i)] = recordIdFor(i)
	}
	after := Build(pairs)

	var first, second []string
	require.True(t, Diff(nil, after, &orderVisitor{seen: &first}))
	require.True(t, Diff(nil, after, &orderVisitor{seen: &second}))

	if diff := pretty.Compare(first, second); diff != "" {
		t.Fatalf("visit order not stable across runs (-first +second):\n%s", diff)
	}
}

type orderVisitor struct {
	seen *[]string
}

func (o *orderVisitor) EntryAdded(key string, after segment.RecordId) bool {
	*o.seen = append(*o.seen, key)
	return true
}
func (o *orderVisitor) EntryChanged(key string, before, after segment.RecordId) bool { return true }
func (o *orderVisitor) EntryDeleted(key string, before segment.RecordId) bool        { return true }
