package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushGetPop(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	l, err := OpenList[[]byte](fork, NewIndexAddress("list"), BytesCodec{})
	require.NoError(t, err)

	l.Push([]byte("a"))
	l.Push([]byte("b"))
	l.Push([]byte("c"))
	require.Equal(t, uint64(3), l.Len())

	v, ok := l.Get(1)
	require.True(t, ok)
	require.Equal(t, "b", string(v))

	v, ok = l.Pop()
	require.True(t, ok)
	require.Equal(t, "c", string(v))
	require.Equal(t, uint64(2), l.Len())
}

func TestListSetPanicsOutOfRange(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	l, _ := OpenList[[]byte](fork, NewIndexAddress("list"), BytesCodec{})
	l.Push([]byte("a"))
	require.Panics(t, func() { l.Set(5, []byte("x")) })
}

func TestListTruncate(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	l, _ := OpenList[[]byte](fork, NewIndexAddress("list"), BytesCodec{})
	for _, b := range [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")} {
		l.Push(b)
	}
	l.Truncate(2)
	require.Equal(t, uint64(2), l.Len())
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, l.Values())
}

func TestListPersistsAcrossFlush(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("list")
	fork := NewFork(db.Snapshot())
	l, _ := OpenList[[]byte](fork, addr, BytesCodec{})
	l.Push([]byte("a"))
	l.Push([]byte("b"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	fork2 := NewFork(db.Snapshot())
	l2, err := OpenList[[]byte](fork2, addr, BytesCodec{})
	require.NoError(t, err)
	require.Equal(t, uint64(2), l2.Len())
	v, ok := l2.Get(0)
	require.True(t, ok)
	require.Equal(t, "a", string(v))
}

func TestListTypeMismatchRejected(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("x")
	fork := NewFork(db.Snapshot())
	_, err := OpenList[[]byte](fork, addr, BytesCodec{})
	require.NoError(t, err)
	fork.ReleaseMut(addr)

	_, err = OpenMap[string, []byte](fork, addr, func(s string) []byte { return []byte(s) }, BytesCodec{})
	require.ErrorIs(t, err, ErrIndexTypeMismatch)
}

func TestSparseListHolesAndSet(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	sl, err := OpenSparseList[[]byte](fork, NewIndexAddress("sl"), BytesCodec{})
	require.NoError(t, err)

	sl.Push([]byte("a"))
	sl.Push([]byte("b"))
	sl.Push([]byte("c"))
	require.Equal(t, uint64(3), sl.Len())
	require.Equal(t, uint64(3), sl.Capacity())

	sl.Remove(1)
	require.Equal(t, uint64(2), sl.Len())
	_, ok := sl.Get(1)
	require.False(t, ok)

	sl.Set(10, []byte("z"))
	require.Equal(t, uint64(11), sl.Capacity())
	require.Equal(t, uint64(3), sl.Len())

	v, ok := sl.Pop()
	require.True(t, ok)
	require.Equal(t, "a", string(v))
}

func TestMapPutGetRemove(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	m, err := OpenMap[string, []byte](fork, NewIndexAddress("m"), func(s string) []byte { return []byte(s) }, BytesCodec{})
	require.NoError(t, err)

	m.Put("x", []byte("1"))
	m.Put("y", []byte("2"))
	v, ok := m.Get("x")
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	m.Remove("x")
	_, ok = m.Get("x")
	require.False(t, ok)

	entries := m.IterFrom(nil)
	require.Len(t, entries, 1)
	require.Equal(t, "2", string(entries[0].Value))
}

func TestEntrySetGetRemove(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	e, err := OpenEntry[[]byte](fork, NewIndexAddress("e"), BytesCodec{})
	require.NoError(t, err)

	_, ok := e.Get()
	require.False(t, ok)

	e.Set([]byte("v"))
	v, ok := e.Get()
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	e.Remove()
	_, ok = e.Get()
	require.False(t, ok)
}

func TestKeySetAndValueSet(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	ks, err := OpenKeySet[string](fork, NewIndexAddress("ks"), func(s string) []byte { return []byte(s) })
	require.NoError(t, err)
	ks.Add("a")
	ks.Add("b")
	require.True(t, ks.Contains("a"))
	ks.Remove("a")
	require.False(t, ks.Contains("a"))
	require.Len(t, ks.Keys(), 1)

	fork2 := NewFork(db.Snapshot())
	vs, err := OpenValueSet[[]byte](fork2, NewIndexAddress("vs"), BytesCodec{})
	require.NoError(t, err)
	vs.Add([]byte("x"))
	require.True(t, vs.Contains([]byte("x")))
	vs.Remove([]byte("x"))
	require.False(t, vs.Contains([]byte("x")))
}
