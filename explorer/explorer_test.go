package explorer

import (
	"errors"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/meridian/replica/blockexec"
	"github.com/meridian/replica/choices"
)

type fakePool struct{ present map[ids.ID]bool }

func (p fakePool) Contains(hash ids.ID) bool { return p.present[hash] }

func TestQueryUnknownInPoolAndCommitted(t *testing.T) {
	idx := NewIndex()
	okHash, failHash, poolHash, unknownHash := ids.ID{1}, ids.ID{2}, ids.ID{3}, ids.ID{4}

	idx.RecordBlock(5, []blockexec.TxResult{
		{Hash: okHash, Err: nil},
		{Hash: failHash, Err: errors.New("insufficient balance")},
	})

	e := New(idx, fakePool{present: map[ids.ID]bool{poolHash: true}})

	got := e.Query(okHash)
	require.Equal(t, TxStatus{Kind: Committed, Height: 5, Index: 0, Status: choices.Accepted}, got)

	got = e.Query(failHash)
	require.Equal(t, Committed, got.Kind)
	require.Equal(t, choices.Rejected, got.Status)
	require.Equal(t, "insufficient balance", got.Err)

	got = e.Query(poolHash)
	require.Equal(t, TxStatus{Kind: InPool, Status: choices.Processing}, got)

	got = e.Query(unknownHash)
	require.Equal(t, TxStatus{Kind: Unknown, Status: choices.Unknown}, got)
}

func TestQueryWithNilPool(t *testing.T) {
	e := New(NewIndex(), nil)
	require.Equal(t, Unknown, e.Query(ids.ID{9}).Kind)
}
