package validators

import (
	"crypto/ed25519"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func genValidators(t *testing.T, n int) []Validator {
	t.Helper()
	vs := make([]Validator, n)
	for i := 0; i < n; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		vs[i] = Validator{NodeID: ids.GenerateTestNodeID(), PublicKey: pub}
	}
	return vs
}

func TestNewSetRejectsEmpty(t *testing.T) {
	_, err := NewSet(nil)
	require.ErrorIs(t, err, ErrEmptySet)
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	vs := genValidators(t, 1)
	_, err := NewSet([]Validator{vs[0], vs[0]})
	require.ErrorIs(t, err, ErrDuplicateValidator)
}

func TestMajorityCount(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 1},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
	}
	for _, c := range cases {
		s, err := NewSet(genValidators(t, c.n))
		require.NoError(t, err)
		require.Equal(t, c.want, s.MajorityCount())
	}
}

func TestLeaderRotation(t *testing.T) {
	vs := genValidators(t, 4)
	s, err := NewSet(vs)
	require.NoError(t, err)

	for round := uint64(0); round < 4; round++ {
		l := s.Leader(0, round)
		require.Equal(t, vs[round].NodeID, l.NodeID)
	}
	// epoch shifts the rotation by the same amount as round.
	require.Equal(t, vs[0].NodeID, s.Leader(4, 0).NodeID)
	require.Equal(t, vs[1].NodeID, s.Leader(1, 0).NodeID)
}

func TestContainsAndIndexOf(t *testing.T) {
	vs := genValidators(t, 3)
	s, err := NewSet(vs)
	require.NoError(t, err)

	require.True(t, s.Contains(vs[1].NodeID))
	idx, ok := s.IndexOf(vs[1].NodeID)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	unknown := ids.GenerateTestNodeID()
	require.False(t, s.Contains(unknown))
	_, err = s.PublicKey(unknown)
	require.ErrorIs(t, err, ErrUnknownValidator)
}
