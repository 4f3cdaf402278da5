package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreWriteReadDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	id := newID(DataType)
	require.NoError(t, fs.WriteSegment(id, []byte("hello")))
	require.True(t, fs.HasSegment(id))

	data, err := fs.ReadSegment(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	require.NoError(t, fs.DeleteSegment(id))
	require.False(t, fs.HasSegment(id))
}

func TestFileStoreReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	id := newID(DataType)
	require.NoError(t, fs.WriteSegment(id, []byte("persisted")))
	require.NoError(t, fs.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.True(t, reopened.HasSegment(id))
	data, err := reopened.ReadSegment(id)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), data)
}

func TestFileStoreReopenReplaysDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	id := newID(DataType)
	require.NoError(t, fs.WriteSegment(id, []byte("gone")))
	require.NoError(t, fs.DeleteSegment(id))
	require.NoError(t, fs.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.False(t, reopened.HasSegment(id))
}

func TestFileStoreLocksAgainstSecondOpen(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	defer fs.Close()

	_, err = NewFileStore(dir)
	require.Error(t, err)
}
