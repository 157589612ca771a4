// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"crypto/sha256"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/meridian/replica/storage"
)

// ObjectHash is the SHA-256 of an already-encoded message, the same
// convention SignedMessage.ObjectHash uses for the envelope.
func ObjectHash(b []byte) ids.ID { return ids.ID(sha256.Sum256(b)) }

var (
	blockHashListAddr   = storage.NewIndexAddress("wire.block_hash_list")
	proposeHashListAddr = storage.NewIndexAddress("wire.propose_hash_list")
)

func idCodec() storage.ValueCodec[ids.ID] {
	return storage.BinaryCodec[ids.ID]{
		EncodeFn: func(id ids.ID) []byte { return id[:] },
		DecodeFn: func(b []byte) (ids.ID, error) {
			var id ids.ID
			copy(id[:], b)
			return id, nil
		},
	}
}

// EncodeBlockHash is the object_hash of a Block's canonical encoding:
// the value every validator must agree on to consider two blocks
// identical.
func EncodeBlockHash(b Block) ids.ID {
	return ObjectHash(EncodeBlock(b))
}

// EncodeProposeHash is the object_hash of a Propose's canonical
// encoding, used to key it in the consensus state's propose table.
func EncodeProposeHash(p Propose) ids.ID {
	return ObjectHash(EncodePropose(p))
}

// MerkleListRootIDs computes merkle_list_root over a list of IDs by
// dogfooding storage.ProofList over a throwaway in-memory fork, the
// same pattern blockexec uses for tx_hash/error_hash.
func MerkleListRootIDs(hashes []ids.ID) ids.ID {
	f := storage.NewFork(storage.NewMemDB().Snapshot())
	pl, err := storage.OpenProofList[ids.ID](f, blockHashListAddr, idCodec())
	if err != nil {
		panic(fmt.Sprintf("wire: open ephemeral hash list: %v", err))
	}
	for _, h := range hashes {
		pl.Push(h)
	}
	return ids.ID(pl.ObjectHash())
}
