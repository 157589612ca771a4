package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProofListPushAndProof(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pl, err := OpenProofList[[]byte](fork, NewIndexAddress("pl"), BytesCodec{})
	require.NoError(t, err)

	for _, v := range [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")} {
		pl.Push(v)
	}
	root := pl.ObjectHash()

	for i := uint64(0); i < pl.Len(); i++ {
		proof, ok := pl.GetProof(i)
		require.True(t, ok)
		require.True(t, VerifyListProof(proof, pl.Len(), root))
	}

	badProof, ok := pl.GetProof(2)
	require.True(t, ok)
	badProof.Value = []byte("tampered")
	require.False(t, VerifyListProof(badProof, pl.Len(), root))
}

func TestProofListIdempotentPushPop(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pl, err := OpenProofList[[]byte](fork, NewIndexAddress("pl"), BytesCodec{})
	require.NoError(t, err)

	pl.Push([]byte("x"))
	pl.Push([]byte("y"))
	before := pl.ObjectHash()

	pl.Push([]byte("z"))
	_, ok := pl.Pop()
	require.True(t, ok)

	after := pl.ObjectHash()
	require.Equal(t, before, after)
}

func TestProofListEmptyObjectHash(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pl, err := OpenProofList[[]byte](fork, NewIndexAddress("pl"), BytesCodec{})
	require.NoError(t, err)
	require.Equal(t, uint64(0), pl.Len())
	_, ok := pl.GetProof(0)
	require.False(t, ok)
}
