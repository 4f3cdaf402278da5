package revision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComparatorSameCluster(t *testing.T) {
	c := NewComparator(1)
	a := Revision{Timestamp: 10, Counter: 0, ClusterID: 1}
	b := Revision{Timestamp: 20, Counter: 0, ClusterID: 1}
	require.Equal(t, -1, c.Compare(a, b))
	require.Equal(t, 1, c.Compare(b, a))
	require.Equal(t, 0, c.Compare(a, a))
}

func TestComparatorFallbackNoRangeRecorded(t *testing.T) {
	c := NewComparator(1)
	a := Revision{Timestamp: 10, ClusterID: 2}
	b := Revision{Timestamp: 20, ClusterID: 3}
	require.Equal(t, -1, c.Compare(a, b))
}

func TestComparatorKnownTranslation(t *testing.T) {
	c := NewComparator(1)
	// Cluster 2 minted r@100; we (cluster 1) learned of it at our local r@5.
	foreignOld := Revision{Timestamp: 100, ClusterID: 2}
	seenAtOld := Revision{Timestamp: 5, ClusterID: 1}
	require.NoError(t, c.Add(foreignOld, seenAtOld))

	foreignNew := Revision{Timestamp: 200, ClusterID: 2}
	seenAtNew := Revision{Timestamp: 50, ClusterID: 1}
	require.NoError(t, c.Add(foreignNew, seenAtNew))

	local := Revision{Timestamp: 10, ClusterID: 1}
	// local@10 is after seenAtOld(5) but before seenAtNew(50): foreignOld
	// should be visible/older, foreignNew should not yet be.
	require.True(t, c.Compare(foreignOld, local) < 0)
	require.True(t, c.Compare(foreignNew, local) > 0)
}

func TestComparatorAddRejectsOlderThanTail(t *testing.T) {
	c := NewComparator(1)
	require.NoError(t, c.Add(Revision{Timestamp: 100, ClusterID: 2}, Revision{Timestamp: 5, ClusterID: 1}))
	err := c.Add(Revision{Timestamp: 50, ClusterID: 2}, Revision{Timestamp: 6, ClusterID: 1})
	require.Error(t, err)
}

func TestComparatorAddReplacesSameSeenAt(t *testing.T) {
	c := NewComparator(1)
	seenAt := Revision{Timestamp: 5, ClusterID: 1}
	require.NoError(t, c.Add(Revision{Timestamp: 100, ClusterID: 2}, seenAt))
	require.NoError(t, c.Add(Revision{Timestamp: 110, ClusterID: 2}, seenAt))
	require.Len(t, c.ranges[2], 1)
	require.Equal(t, int64(110), c.ranges[2][0].revision.Timestamp)
}

func TestComparatorFutureIsInvisible(t *testing.T) {
	c := NewComparator(1)
	require.NoError(t, c.Add(Revision{Timestamp: 100, ClusterID: 2}, Revision{Timestamp: 5, ClusterID: 1}))

	future := Revision{Timestamp: 99999, ClusterID: 2}
	local := Revision{Timestamp: 6, ClusterID: 1}
	require.True(t, c.Compare(future, local) > 0, "unseen future revision must sort after local reader revision")
}

func TestComparatorPurge(t *testing.T) {
	c := NewComparator(1)
	require.NoError(t, c.Add(Revision{Timestamp: 100, ClusterID: 2}, Revision{Timestamp: 5, ClusterID: 1}))
	require.NoError(t, c.Add(Revision{Timestamp: 200, ClusterID: 2}, Revision{Timestamp: 50, ClusterID: 1}))
	c.Purge(10)
	require.Len(t, c.ranges[2], 1)
	require.Equal(t, int64(200), c.ranges[2][0].revision.Timestamp)
}

func TestRangeIncludes(t *testing.T) {
	rg := Range{
		High: Revision{Timestamp: 100, ClusterID: 1},
		Low:  Revision{Timestamp: 10, ClusterID: 1},
	}
	require.True(t, rg.Includes(Revision{Timestamp: 10, ClusterID: 1}, nil))
	require.True(t, rg.Includes(Revision{Timestamp: 100, ClusterID: 1}, nil))
	require.True(t, rg.Includes(Revision{Timestamp: 50, ClusterID: 1}, nil))
	require.False(t, rg.Includes(Revision{Timestamp: 9, ClusterID: 1}, nil))
	require.False(t, rg.Includes(Revision{Timestamp: 101, ClusterID: 1}, nil))
}
