package storage

import (
	"testing"

	"github.com/datacore/datacore/block"
	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/merkle"
	"github.com/stretchr/testify/require"
)

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.WriteAt(10, []byte("hello")))
	out, err := m.ReadAt(10, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

func TestMemoryShortReadFails(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.WriteAt(0, []byte("hi")))
	_, err := m.ReadAt(0, 10)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestDiskWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir + "/content")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.WriteAt(4, []byte("datacore")))
	out, err := d.ReadAt(4, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("datacore"), out)
}

func TestContentStoreRoundTrip(t *testing.T) {
	cs := NewContentStore(NewMemory())
	require.NoError(t, cs.Write(0, []byte("hello world")))
	require.NoError(t, cs.Write(11, []byte("this is datacore")))

	out, err := cs.Read(0, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out))

	out, err = cs.Read(11, 17)
	require.NoError(t, err)
	require.Equal(t, "this is datacore", string(out))
}

func TestBlockStoreRoundTrip(t *testing.T) {
	bs := NewBlockStore(NewMemory())
	b := block.Block{Offset: 0, Len: 11}
	require.NoError(t, bs.Write(0, b))

	out, err := bs.Read(0)
	require.NoError(t, err)
	require.Equal(t, b, out)
}

func TestStateStoreEmptyOnFreshBackend(t *testing.T) {
	ss := NewStateStore(NewMemory())
	roots, err := ss.Read()
	require.NoError(t, err)
	require.Empty(t, roots)
}

func TestStateStoreRoundTrip(t *testing.T) {
	ss := NewStateStore(NewMemory())
	roots := []merkle.Node{
		{Index: 0, Hash: hash.Leaf([]byte("a")), Length: 1},
		{Index: 2, Hash: hash.Leaf([]byte("b")), Length: 1},
	}
	require.NoError(t, ss.Write(roots))

	out, err := ss.Read()
	require.NoError(t, err)
	require.Equal(t, roots, out)
}

func TestStateStoreOverwritesInFull(t *testing.T) {
	ss := NewStateStore(NewMemory())
	require.NoError(t, ss.Write([]merkle.Node{
		{Index: 0, Hash: hash.Leaf([]byte("a")), Length: 1},
		{Index: 2, Hash: hash.Leaf([]byte("b")), Length: 1},
	}))
	require.NoError(t, ss.Write([]merkle.Node{
		{Index: 0, Hash: hash.Leaf([]byte("c")), Length: 1},
	}))

	out, err := ss.Read()
	require.NoError(t, err)
	require.Len(t, out, 1)
}
