// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"time"

	"github.com/luxfi/ids"
)

// Propose is a leader's proposal of an ordered set of transaction
// hashes for a (epoch, round).
type Propose struct {
	Validator ids.NodeID
	Epoch     uint64
	Round     uint64
	PrevHash  ids.ID
	TxHashes  []ids.ID
	Skip      bool
}

// Prevote is the first consensus voting round: a validator's vote to
// lock onto a known Propose.
type Prevote struct {
	Validator   ids.NodeID
	Epoch       uint64
	Round       uint64
	ProposeHash ids.ID
	LockedRound uint64
}

// Precommit is the second consensus voting round: +2/3 matching
// Precommits over (round, propose_hash, block_hash) commit the block.
type Precommit struct {
	Validator   ids.NodeID
	Epoch       uint64
	Round       uint64
	ProposeHash ids.ID
	BlockHash   ids.ID
	Time        time.Time
}

// Status is gossiped periodically so peers can detect they are
// lagging and request the blocks they are missing.
type Status struct {
	Epoch            uint64
	BlockchainHeight uint64
	LastHash         ids.ID
	PoolSize         uint32
}

// Connect announces a peer's presence, public key, and running
// application version on handshake.
type Connect struct {
	NodeID     ids.NodeID
	PublicKey  []byte
	AppVersion string
}

// BlockRequest asks a peer for the block at the given height.
type BlockRequest struct {
	Height uint64
}

// BlockResponse answers a BlockRequest with the stored block, its
// precommit set, and the ordered transaction hash list, so the
// requester can verify tx_hash and the +2/3 precommit set itself.
type BlockResponse struct {
	Block      Block
	Precommits []Precommit
	TxHashes   []ids.ID
}

// TransactionsRequest asks a peer for the bodies of the given
// transaction hashes, discovered unknown while processing a Propose.
type TransactionsRequest struct {
	TxHashes []ids.ID
}

// TransactionsResponse answers a TransactionsRequest with the signed
// transaction bodies, in the same order as requested.
type TransactionsResponse struct {
	Transactions []SignedMessage
}

// ProposeRequest asks a peer to resend a Propose by hash.
type ProposeRequest struct {
	ProposeHash ids.ID
}

// PrevotesRequest asks a peer for its known Prevotes for a round.
type PrevotesRequest struct {
	Round       uint64
	ProposeHash ids.ID
}

// PeersRequest asks a peer for the addresses of peers it knows about.
type PeersRequest struct{}
