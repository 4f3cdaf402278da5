package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, *Factory, Store) {
	t.Helper()
	factory := NewFactory()
	store := NewMemoryStore()
	return NewWriter(factory, store), factory, store
}

func TestWriterStringRoundTrip(t *testing.T) {
	w, _, store := newTestWriter(t)

	ref, err := w.WriteString("hello")
	require.NoError(t, err)
	require.Zero(t, ref.LongCount)
	w.AddRoot(ref.RecordId.Offset)

	seg, err := w.Flush()
	require.NoError(t, err)
	require.True(t, store.HasSegment(seg.Id()))

	got, err := seg.ReadString(ref.RecordId.Offset)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestWriterStringDedup(t *testing.T) {
	w, _, _ := newTestWriter(t)

	a, err := w.WriteString("repeat-me")
	require.NoError(t, err)
	b, err := w.WriteString("repeat-me")
	require.NoError(t, err)
	require.Equal(t, a.RecordId.Offset, b.RecordId.Offset)
}

func TestWriterLongStringChunking(t *testing.T) {
	w, _, _ := newTestWriter(t)

	long := strings.Repeat("x", mediumStringMax+5000)
	ref, err := w.WriteString(long)
	require.NoError(t, err)
	require.Greater(t, ref.LongCount, 0)
	w.AddRoot(ref.RecordId.Offset)

	seg, err := w.Flush()
	require.NoError(t, err)

	resolve := func(rid RecordId) (*Segment, uint32, error) {
		return seg, rid.Offset, nil
	}
	got, err := seg.ReadLongString(ref.RecordId.Offset, ref.LongCount, resolve)
	require.NoError(t, err)
	require.Equal(t, long, got)
}

func TestWriterScalarRoundTrip(t *testing.T) {
	w, _, _ := newTestWriter(t)

	intOff := w.WriteInt(0xDEADBEEF)
	longOff := w.WriteLong(0x0102030405060708)
	w.AddRoot(intOff)
	w.AddRoot(longOff)

	seg, err := w.Flush()
	require.NoError(t, err)

	gotInt, err := seg.ReadInt(intOff)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), gotInt)

	gotLong, err := seg.ReadLong(longOff)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), gotLong)
}

func TestWriterSealsAcrossFlushes(t *testing.T) {
	w, _, store := newTestWriter(t)

	first := w.CurrentId()
	off := w.WriteInt(1)
	w.AddRoot(off)
	seg1, err := w.Flush()
	require.NoError(t, err)
	require.Equal(t, first, seg1.Id())

	second := w.CurrentId()
	require.NotEqual(t, first, second)

	off2 := w.WriteInt(2)
	w.AddRoot(off2)
	seg2, err := w.Flush()
	require.NoError(t, err)
	require.Equal(t, second, seg2.Id())

	require.True(t, store.HasSegment(seg1.Id()))
	require.True(t, store.HasSegment(seg2.Id()))
}

func TestWriterCrossSegmentRecordId(t *testing.T) {
	w, factory, store := newTestWriter(t)
	_ = factory

	strRef, err := w.WriteString("payload")
	require.NoError(t, err)
	w.AddRoot(strRef.RecordId.Offset)
	seg1, err := w.Flush()
	require.NoError(t, err)

	w2 := NewWriter(factory, store)
	ptrOff, err := w2.WriteRecordId(strRef.RecordId)
	require.NoError(t, err)
	w2.AddRoot(ptrOff)
	seg2, err := w2.Flush()
	require.NoError(t, err)

	rid, err := seg2.ReadRecordId(ptrOff)
	require.NoError(t, err)
	require.Equal(t, seg1.Id(), rid.Segment)

	got, err := seg1.ReadString(rid.Offset)
	require.NoError(t, err)
	require.Equal(t, "payload", got)
}

func TestWriterRejectsTooManyExternalRefs(t *testing.T) {
	w, factory, store := newTestWriter(t)

	for i := 0; i < MaxExternalRefs+1; i++ {
		id := *factory.NewDataSegmentId()
		require.NoError(t, store.WriteSegment(id, []byte{0, 0, 0}))
		_, err := w.WriteRecordId(RecordId{Segment: id, Offset: 0})
		if i == MaxExternalRefs {
			require.Error(t, err)
			return
		}
		require.NoError(t, err)
	}
}
