package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stringKeyPath(k string) [32]byte { return HashKey([]byte(k)) }

func TestProofMapInclusionAndAbsence(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("pm"), stringKeyPath, BytesCodec{})
	require.NoError(t, err)

	pm.Put("alice", []byte("100"))
	pm.Put("bob", []byte("200"))
	pm.Put("carol", []byte("300"))

	root := pm.ObjectHash()

	proof := pm.GetProof("bob")
	require.True(t, VerifyInclusion(proof, stringKeyPath, "bob", []byte("200"), root))
	require.False(t, VerifyInclusion(proof, stringKeyPath, "bob", []byte("wrong"), root))

	absentProof := pm.GetProof("dave")
	require.True(t, VerifyAbsence(absentProof, stringKeyPath, "dave", root))
	require.False(t, VerifyAbsence(absentProof, stringKeyPath, "bob", root))
}

func TestProofMapEmptyObjectHash(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("pm"), stringKeyPath, BytesCodec{})
	require.NoError(t, err)
	require.Equal(t, emptyProofMapHash, pm.ObjectHash())
}

func identityPath(k [32]byte) [32]byte { return k }

// TestProofMapAbsenceThroughEmptySubtree forces GetProof to descend
// into a nil trie node rather than a differing leaf: both populated
// keys share their path's top bit, so the sibling subtree on the
// other side of the root is entirely empty, and an absent key routed
// there must still verify against emptyProofMapHash rather than the
// hash of a zero-value leaf.
func TestProofMapAbsenceThroughEmptySubtree(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pm, err := OpenProofMap[[32]byte, []byte](fork, NewIndexAddress("pm"), identityPath, BytesCodec{})
	require.NoError(t, err)

	var k1, k2, absent [32]byte
	k1[0] = 0x80
	k2[0] = 0x81
	pm.Put(k1, []byte("one"))
	pm.Put(k2, []byte("two"))

	root := pm.ObjectHash()
	proof := pm.GetProof(absent)
	require.True(t, proof.Empty, "absent key's top bit differs from both populated keys, so descent must hit a nil subtree")
	require.True(t, VerifyAbsence(proof, identityPath, absent, root))
}

func TestProofMapObjectHashChangesWithContent(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())
	pm, _ := OpenProofMap[string, []byte](fork, NewIndexAddress("pm"), stringKeyPath, BytesCodec{})
	pm.Put("a", []byte("1"))
	h1 := pm.ObjectHash()
	pm.Put("b", []byte("2"))
	h2 := pm.ObjectHash()
	require.NotEqual(t, h1, h2)

	pm.Remove("b")
	h3 := pm.ObjectHash()
	require.Equal(t, h1, h3)
}

func TestAggregatorConsistency(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())

	pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("svc.balances"), stringKeyPath, BytesCodec{})
	require.NoError(t, err)
	pm.Put("alice", []byte("100"))

	agg, err := OpenAggregator(fork)
	require.NoError(t, err)
	agg.Register("svc.balances", pm.ObjectHash())

	got, ok := agg.Get("svc.balances")
	require.True(t, ok)
	require.Equal(t, pm.ObjectHash(), got)
	require.Equal(t, agg.ObjectHash(), agg.pm.ObjectHash())
}

// TestAggregatorSyncPicksUpOpenedIndexes exercises the automatic path:
// opening a ProofMap registers it against the Fork, and Sync alone
// (no manual Register call) must fold its current object_hash in, and
// must pick up a later mutation made after Sync was first called.
func TestAggregatorSyncPicksUpOpenedIndexes(t *testing.T) {
	db := NewMemDB()
	fork := NewFork(db.Snapshot())

	pm, err := OpenProofMap[string, []byte](fork, NewIndexAddress("svc.balances"), stringKeyPath, BytesCodec{})
	require.NoError(t, err)
	pm.Put("alice", []byte("100"))

	agg, err := OpenAggregator(fork)
	require.NoError(t, err)
	agg.Sync(fork)

	got, ok := agg.Get("svc.balances")
	require.True(t, ok)
	require.Equal(t, pm.ObjectHash(), got)

	stateHashBefore := agg.ObjectHash()

	pm.Put("bob", []byte("200"))
	agg.Sync(fork)
	got, ok = agg.Get("svc.balances")
	require.True(t, ok)
	require.Equal(t, pm.ObjectHash(), got)
	require.NotEqual(t, stateHashBefore, agg.ObjectHash(), "state_hash must change once the index's contents change")
}
