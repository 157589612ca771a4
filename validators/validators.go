// Package validators holds the fixed validator set a replica runs
// consensus against: an ordered, equal-weight list of node identities
// indexed 0..N-1, used by the consensus driver for leader rotation and
// majority counting.
package validators

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

var (
	// ErrUnknownValidator is returned when a node ID is not a member
	// of the set.
	ErrUnknownValidator = errors.New("validators: unknown validator")
	// ErrDuplicateValidator is returned by NewSet when the same node
	// ID appears more than once.
	ErrDuplicateValidator = errors.New("validators: duplicate validator")
	// ErrEmptySet is returned by NewSet when given no validators.
	ErrEmptySet = errors.New("validators: set must be non-empty")
)

// Validator is one member of a fixed validator set.
type Validator struct {
	NodeID    ids.NodeID
	PublicKey ed25519.PublicKey
}

// Set is an immutable, ordered validator set. The ordering is fixed at
// construction time and is the ordering leader rotation indexes into;
// it is independent of the iteration order of any map.
type Set struct {
	ordered []Validator
	index   map[ids.NodeID]int
}

// NewSet builds a Set from an ordered validator list. The order given
// is preserved and becomes the leader-rotation order.
func NewSet(vs []Validator) (*Set, error) {
	if len(vs) == 0 {
		return nil, ErrEmptySet
	}
	index := make(map[ids.NodeID]int, len(vs))
	ordered := make([]Validator, len(vs))
	for i, v := range vs {
		if _, dup := index[v.NodeID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateValidator, v.NodeID)
		}
		index[v.NodeID] = i
		ordered[i] = v
	}
	return &Set{ordered: ordered, index: index}, nil
}

// Len returns the number of validators in the set.
func (s *Set) Len() int { return len(s.ordered) }

// MajorityCount returns the minimum number of validators whose
// agreement constitutes a supermajority: floor(2N/3) + 1.
func (s *Set) MajorityCount() int {
	n := len(s.ordered)
	return (2*n)/3 + 1
}

// Leader returns the validator that leads the given round, under the
// rotation leader(round) = (epoch + round) mod N.
func (s *Set) Leader(epoch, round uint64) Validator {
	n := uint64(len(s.ordered))
	return s.ordered[(epoch+round)%n]
}

// ByIndex returns the validator at the given rotation index.
func (s *Set) ByIndex(i int) (Validator, bool) {
	if i < 0 || i >= len(s.ordered) {
		return Validator{}, false
	}
	return s.ordered[i], true
}

// IndexOf returns the rotation index of a node ID, or false if it is
// not a member of the set.
func (s *Set) IndexOf(id ids.NodeID) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Contains reports whether the node ID is a member of the set.
func (s *Set) Contains(id ids.NodeID) bool {
	_, ok := s.index[id]
	return ok
}

// ByPublicKey returns the validator whose signing key matches pub, so
// a message's claimed author (an ed25519.PublicKey) can be resolved
// back to a member node ID without the caller tracking that mapping
// itself.
func (s *Set) ByPublicKey(pub ed25519.PublicKey) (Validator, bool) {
	for _, v := range s.ordered {
		if v.PublicKey.Equal(pub) {
			return v, true
		}
	}
	return Validator{}, false
}

// PublicKey returns the member's public key, for verifying messages
// signed by it.
func (s *Set) PublicKey(id ids.NodeID) (ed25519.PublicKey, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownValidator, id)
	}
	return s.ordered[i].PublicKey, nil
}

// All returns a copy of the ordered validator list.
func (s *Set) All() []Validator {
	out := make([]Validator, len(s.ordered))
	copy(out, s.ordered)
	return out
}
