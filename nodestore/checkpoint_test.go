package nodestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/revision"
)

func TestCheckpointCreateRetrieve(t *testing.T) {
	fake := clock.NewFake(1000)
	cp := NewCheckpoints(fake)

	r := revision.MustParse("r1-0-1")
	name := cp.Create(r, 5*time.Second)

	got, ok := cp.Retrieve(name)
	require.True(t, ok)
	require.Equal(t, r, got)
}

func TestCheckpointExpires(t *testing.T) {
	fake := clock.NewFake(1000)
	cp := NewCheckpoints(fake)

	r := revision.MustParse("r1-0-1")
	name := cp.Create(r, 1*time.Second)

	fake.Advance(2000)

	_, ok := cp.Retrieve(name)
	require.False(t, ok)
}

func TestCheckpointRelease(t *testing.T) {
	fake := clock.NewFake(1000)
	cp := NewCheckpoints(fake)

	r := revision.MustParse("r1-0-1")
	name := cp.Create(r, time.Minute)
	cp.Release(name)

	_, ok := cp.Retrieve(name)
	require.False(t, ok)
}

func TestCheckpointActiveRevisions(t *testing.T) {
	fake := clock.NewFake(1000)
	cp := NewCheckpoints(fake)

	r1 := revision.MustParse("r1-0-1")
	r2 := revision.MustParse("r2-0-1")
	cp.Create(r1, time.Minute)
	name2 := cp.Create(r2, time.Millisecond)

	fake.Advance(10)
	cp.sweepExpired()

	active := cp.ActiveRevisions()
	require.Len(t, active, 1)
	require.Equal(t, r1, active[0])

	_, ok := cp.Retrieve(name2)
	require.False(t, ok)
}
