package revision

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/internal/clock"
)

func TestRoundTrip(t *testing.T) {
	cases := []Revision{
		{Timestamp: 1, Counter: 0, ClusterID: 1},
		{Timestamp: 0x1a2b3c, Counter: 0xff, ClusterID: 2, Branch: true},
		{Timestamp: 0, Counter: 0, ClusterID: 0},
	}
	for _, r := range cases {
		s := r.String()
		got, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, r, got, "round trip of %s", s)
	}
}

func TestRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0)
	for i := 0; i < 200; i++ {
		var ts int64
		var cnt, cid uint32
		var branch bool
		f.Fuzz(&ts)
		f.Fuzz(&cnt)
		f.Fuzz(&cid)
		f.Fuzz(&branch)
		if ts < 0 {
			ts = -ts
		}
		r := Revision{Timestamp: ts, Counter: cnt, ClusterID: cid, Branch: branch}
		got, err := Parse(r.String())
		require.NoError(t, err)
		require.True(t, r.Equal(got))
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{"", "x1-2-3", "r1-2", "r1-2-3-4", "rzz-2-3"}
	for _, s := range bad {
		_, err := Parse(s)
		require.Error(t, err, s)
	}
}

func TestEqualsIgnoreBranch(t *testing.T) {
	a := Revision{Timestamp: 5, Counter: 1, ClusterID: 1}
	b := a.AsBranch()
	require.True(t, a.EqualsIgnoreBranch(b))
	require.False(t, a.Equal(b))
}

func TestGeneratorMonotonic(t *testing.T) {
	fc := clock.NewFake(1000)
	g := NewGenerator(1, fc)

	var prev Revision
	for i := 0; i < 50; i++ {
		r := g.Next()
		if i > 0 {
			require.True(t, less(prev, r), "revision %d (%s) not strictly after %s", i, r, prev)
		}
		prev = r
	}
}

func TestGeneratorMasksClockRegression(t *testing.T) {
	fc := clock.NewFake(5000)
	g := NewGenerator(1, fc)

	r1 := g.Next()
	fc.Set(1000) // clock jumps backwards
	r2 := g.Next()
	require.True(t, less(r1, r2), "regression not masked: %s then %s", r1, r2)
	require.Equal(t, r1.Timestamp, r2.Timestamp)
	require.Equal(t, r1.Counter+1, r2.Counter)
}

func TestGeneratorBranchFlag(t *testing.T) {
	fc := clock.NewFake(1)
	g := NewGenerator(1, fc)
	require.False(t, g.Next().Branch)
	require.True(t, g.NextBranch().Branch)
}
