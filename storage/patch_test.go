package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointLayeringLastWriteWins(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")
	fork := NewFork(db.Snapshot())

	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	fork.Flush()

	v2, _ := fork.ViewMut(addr)
	v2.Put([]byte("a"), []byte("2"))
	fork.Flush()

	patch := fork.IntoPatch()
	require.NoError(t, db.Merge(patch))

	snap := db.Snapshot()
	val, ok := snap.Get(addr, []byte("a"))
	require.True(t, ok)
	require.Equal(t, "2", string(val))
}

func TestCommitIsAllOrNothingFromSnapshotPerspective(t *testing.T) {
	db := NewMemDB()
	addr := NewIndexAddress("t")

	before := db.Snapshot()

	fork := NewFork(db.Snapshot())
	v, _ := fork.ViewMut(addr)
	v.Put([]byte("a"), []byte("1"))
	v.Put([]byte("b"), []byte("2"))
	fork.Flush()
	require.NoError(t, db.Merge(fork.IntoPatch()))

	after := db.Snapshot()

	_, ok := before.Get(addr, []byte("a"))
	require.False(t, ok, "snapshot taken before merge must not observe the patch")

	_, ok = after.Get(addr, []byte("a"))
	require.True(t, ok)
	_, ok = after.Get(addr, []byte("b"))
	require.True(t, ok)
}

func TestDeterministicStateAcrossIdenticalBlockSequences(t *testing.T) {
	apply := func() [32]byte {
		db := NewMemDB()
		for i := 0; i < 3; i++ {
			fork := NewFork(db.Snapshot())
			pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("state"), stringKeyPath, BytesCodec{})
			require.NoError(t, err)
			pm.Put("k", []byte{byte(i)})
			fork.Flush()
			require.NoError(t, db.Merge(fork.IntoPatch()))
		}
		fork := NewFork(db.Snapshot())
		pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("state"), stringKeyPath, BytesCodec{})
		require.NoError(t, err)
		return pm.ObjectHash()
	}

	require.Equal(t, apply(), apply())
}
