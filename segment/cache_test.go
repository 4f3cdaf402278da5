package segment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheLoadsAndTracksSize(t *testing.T) {
	factory := NewFactory()
	store := NewMemoryStore()
	w := NewWriter(factory, store)

	off := w.WriteInt(42)
	w.AddRoot(off)
	seg, err := w.Flush()
	require.NoError(t, err)

	cache := NewCache(store, factory, int64(seg.Length()))
	got, err := cache.Get(seg.Id())
	require.NoError(t, err)
	require.Equal(t, seg.Id(), got.Id())
	require.Equal(t, int64(seg.Length()), cache.CurrentSize())
}

func TestCacheEvictsOverBudget(t *testing.T) {
	factory := NewFactory()
	store := NewMemoryStore()

	var ids []Id
	for i := 0; i < 3; i++ {
		w := NewWriter(factory, store)
		off := w.WriteInt(uint32(i))
		w.AddRoot(off)
		seg, err := w.Flush()
		require.NoError(t, err)
		ids = append(ids, seg.Id())
	}

	// Budget for roughly one segment; loading all three should evict the
	// least-recently-used entries and keep currentSize within budget.
	first, err := store.ReadSegment(ids[0])
	require.NoError(t, err)
	cache := NewCache(store, factory, int64(len(first)))

	for _, id := range ids {
		_, err := cache.Get(id)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, cache.CurrentSize(), int64(len(first)))
}

func TestCacheSingleFlight(t *testing.T) {
	factory := NewFactory()
	store := NewMemoryStore()
	w := NewWriter(factory, store)
	off := w.WriteInt(7)
	w.AddRoot(off)
	seg, err := w.Flush()
	require.NoError(t, err)

	cache := NewCache(store, factory, DefaultCacheBytes)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Get(seg.Id())
			require.NoError(t, err)
			require.Equal(t, seg.Id(), got.Id())
		}()
	}
	wg.Wait()
}
