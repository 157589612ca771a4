package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViewGetPendingOverridesSnapshot(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v, err := fork.ViewMut(addr)
	require.NoError(t, err)
	v.Put([]byte("a"), []byte("1"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	fork2 := NewFork(db.Snapshot())
	v2, err := fork2.ViewMut(addr)
	require.NoError(t, err)
	val, ok := v2.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, "1", string(val))

	v2.Put([]byte("a"), []byte("2"))
	val, ok = v2.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, "2", string(val))
}

func TestViewDeleteSuppressesSnapshot(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	fork2 := NewFork(db.Snapshot())
	v2, _ := fork2.ViewMut(addr)
	v2.Remove([]byte("a"))
	_, ok := v2.Get([]byte("a"))
	require.False(t, ok)
}

func TestViewClearMasksSnapshotUntilNewPut(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	v.Put([]byte("b"), []byte("2"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	fork2 := NewFork(db.Snapshot())
	v2, _ := fork2.ViewMut(addr)
	v2.Clear()
	_, ok := v2.Get([]byte("a"))
	require.False(t, ok)

	v2.Put([]byte("c"), []byte("3"))
	val, ok := v2.Get([]byte("c"))
	require.True(t, ok)
	require.Equal(t, "3", string(val))
	_, ok = v2.Get([]byte("a"))
	require.False(t, ok)
}

func TestViewPutPanicsOnReadOnly(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v := fork.ViewShared(addr)
	require.Panics(t, func() { v.Put([]byte("a"), []byte("1")) })
}

func TestViewIterFromMergesAndOrders(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	v.Put([]byte("c"), []byte("3"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	fork2 := NewFork(db.Snapshot())
	v2, _ := fork2.ViewMut(addr)
	v2.Put([]byte("b"), []byte("2"))
	v2.Remove([]byte("c"))

	it := v2.IterFrom(nil)
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestBorrowConflict(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	_, err := fork.ViewMut(addr)
	require.NoError(t, err)
	_, err = fork.ViewMut(addr)
	require.ErrorIs(t, err, ErrBorrowConflict)

	fork.ReleaseMut(addr)
	_, err = fork.ViewMut(addr)
	require.NoError(t, err)
}

func TestForkFlushRollback(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())
	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	fork.Flush()

	v2, _ := fork.ViewMut(addr)
	v2.Put([]byte("b"), []byte("2"))
	fork.Rollback()

	patch := fork.IntoPatch()
	require.NoError(t, db.Merge(patch))

	snap := db.Snapshot()
	_, ok := snap.Get(addr, []byte("a"))
	require.True(t, ok)
	_, ok = snap.Get(addr, []byte("b"))
	require.False(t, ok)
}
