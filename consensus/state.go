// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the round-based BFT protocol: a
// single owned State mutated only inside Driver's event handlers
// (spec §4.9/§4.10), running as one logical, single-threaded task per
// node.
package consensus

import (
	"github.com/luxfi/ids"

	"github.com/meridian/replica/blockexec"
	"github.com/meridian/replica/set"
	"github.com/meridian/replica/storage"
	"github.com/meridian/replica/validators"
	"github.com/meridian/replica/wire"
)

// roundProposeKey indexes prevotes/precommits by (round, propose_hash).
type roundProposeKey struct {
	Round   uint64
	Propose ids.ID
}

// storedBlock is a speculatively executed block kept by hash until it
// either commits (+2/3 precommits) or is superseded.
type storedBlock struct {
	fork         *storage.Fork
	header       wire.Block
	txHashes     []ids.ID
	proposeRound uint64
	outcomes     []blockexec.TxResult
}

// requestKind names the five retryable request families spec §4.10
// describes.
type requestKind int

const (
	RequestPropose requestKind = iota
	RequestTransactions
	RequestPrevotes
	RequestPrecommits
	RequestBlock
)

// pendingRequest tracks one outstanding request and the peers already
// tried, so a timeout can pick a fresh one.
type pendingRequest struct {
	kind      requestKind
	key       ids.ID // propose hash, or a zero ID for height-keyed block requests
	height    uint64
	attempted set.Set[ids.NodeID]
	retries   int
}

// State holds everything spec §4.9 names. Mutated only from inside
// Driver's handlers; never aliased out.
type State struct {
	Epoch       uint64
	Round       uint64
	LockedRound uint64
	LockedHash  *ids.ID // propose_hash this node is locked on, nil if unlocked
	LastHash    ids.ID
	Height      uint64

	PeerHeights map[ids.NodeID]uint64

	Proposes map[ids.ID]wire.Propose
	Blocks   map[ids.ID]*storedBlock

	Prevotes   map[roundProposeKey]map[ids.NodeID]wire.Prevote
	Precommits map[roundProposeKey]map[ids.NodeID]wire.Precommit

	// OurPrevote/OurPrecommit cache this node's own vote per round, so
	// a conflicting second vote in the same round can be detected and
	// panicked on (spec: a self-contradiction is always a bug).
	OurPrevote   map[uint64]wire.Prevote
	OurPrecommit map[uint64]wire.Precommit

	// PendingTxWaits maps a propose hash to the transaction hashes it
	// names that this node has not yet seen the body of.
	PendingTxWaits map[ids.ID]set.Set[ids.ID]

	PendingRequests map[ids.ID]*pendingRequest
}

// NewState returns an empty State for a chain whose genesis hash is
// genesisHash.
func NewState(genesisHash ids.ID) *State {
	return &State{
		LastHash:        genesisHash,
		PeerHeights:     make(map[ids.NodeID]uint64),
		Proposes:        make(map[ids.ID]wire.Propose),
		Blocks:          make(map[ids.ID]*storedBlock),
		Prevotes:        make(map[roundProposeKey]map[ids.NodeID]wire.Prevote),
		Precommits:      make(map[roundProposeKey]map[ids.NodeID]wire.Precommit),
		OurPrevote:      make(map[uint64]wire.Prevote),
		OurPrecommit:    make(map[uint64]wire.Precommit),
		PendingTxWaits:  make(map[ids.ID]set.Set[ids.ID]),
		PendingRequests: make(map[ids.ID]*pendingRequest),
	}
}

// NextHeight is the special getter spec §4.7 requires: "current
// height" is conceptually undefined at genesis-block construction, so
// the height a new block will occupy is always State.Height+1 once
// genesis (height 0) has been executed, and 0 before it has.
func (s *State) NextHeight() uint64 {
	if s.Height == 0 && s.LastHash == (ids.ID{}) {
		return 0
	}
	return s.Height + 1
}

// MajorityCount returns vs's supermajority threshold.
func MajorityCount(vs *validators.Set) int { return vs.MajorityCount() }

// Leader returns the validator leading the given round under this
// state's current epoch.
func (s *State) Leader(vs *validators.Set, round uint64) validators.Validator {
	return vs.Leader(s.Epoch, round)
}

func (s *State) recordPrevote(v wire.Prevote) {
	key := roundProposeKey{Round: v.Round, Propose: v.ProposeHash}
	m, ok := s.Prevotes[key]
	if !ok {
		m = make(map[ids.NodeID]wire.Prevote)
		s.Prevotes[key] = m
	}
	m[v.Validator] = v
}

func (s *State) recordPrecommit(c wire.Precommit) {
	key := roundProposeKey{Round: c.Round, Propose: c.ProposeHash}
	m, ok := s.Precommits[key]
	if !ok {
		m = make(map[ids.NodeID]wire.Precommit)
		s.Precommits[key] = m
	}
	m[c.Validator] = c
}

// HasMajorityPrevotes reports whether the (round, proposeHash) pair
// has collected a supermajority of prevotes.
func (s *State) HasMajorityPrevotes(vs *validators.Set, round uint64, proposeHash ids.ID) bool {
	return len(s.Prevotes[roundProposeKey{Round: round, Propose: proposeHash}]) >= vs.MajorityCount()
}

// HasMajorityPrecommits reports whether the (round, proposeHash) pair
// has collected a supermajority of precommits agreeing on blockHash.
func (s *State) HasMajorityPrecommits(vs *validators.Set, round uint64, proposeHash, blockHash ids.ID) bool {
	count := 0
	for _, c := range s.Precommits[roundProposeKey{Round: round, Propose: proposeHash}] {
		if c.BlockHash == blockHash {
			count++
		}
	}
	return count >= vs.MajorityCount()
}

// resetHeightCaches clears everything scoped to the block just
// committed, called once per commit (spec §4.10 "Commit" handler).
func (s *State) resetHeightCaches() {
	s.Proposes = make(map[ids.ID]wire.Propose)
	s.Blocks = make(map[ids.ID]*storedBlock)
	s.Prevotes = make(map[roundProposeKey]map[ids.NodeID]wire.Prevote)
	s.Precommits = make(map[roundProposeKey]map[ids.NodeID]wire.Precommit)
	s.OurPrevote = make(map[uint64]wire.Prevote)
	s.OurPrecommit = make(map[uint64]wire.Precommit)
	s.PendingTxWaits = make(map[ids.ID]set.Set[ids.ID])
	s.Round = 0
	s.LockedRound = 0
	s.LockedHash = nil
}
