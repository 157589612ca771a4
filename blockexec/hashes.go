package blockexec

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/meridian/replica/storage"
)

var (
	statusListAddr = storage.NewIndexAddress("blockexec.status_list")
	hashListAddr   = storage.NewIndexAddress("blockexec.hash_list")
)

// merkleListRoot computes merkle_list_root(hashes) by dogfooding the
// storage layer's own ProofList over a throwaway in-memory fork, the
// same way storage.Aggregator dogfoods ProofMap.
func merkleListRoot(hashes []ids.ID) ids.ID {
	f := storage.NewFork(storage.NewMemDB().Snapshot())
	pl, err := storage.OpenProofList[ids.ID](f, hashListAddr, idCodec())
	if err != nil {
		panic(fmt.Sprintf("blockexec: open ephemeral hash list: %v", err))
	}
	for _, h := range hashes {
		pl.Push(h)
	}
	return ids.ID(pl.ObjectHash())
}

// merkleListRoot32 is merkleListRoot's twin for raw per-tx/per-hook
// status records rather than hashes.
func merkleListRoot32(entries [][]byte) ids.ID {
	f := storage.NewFork(storage.NewMemDB().Snapshot())
	pl, err := storage.OpenProofList[[]byte](f, statusListAddr, storage.BytesCodec{})
	if err != nil {
		panic(fmt.Sprintf("blockexec: open ephemeral status list: %v", err))
	}
	for _, e := range entries {
		pl.Push(e)
	}
	return ids.ID(pl.ObjectHash())
}

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

// encodeTxStatus and encodeHookStatus produce the fixed-shape status
// record spec §4.7 calls "per-tx status bytes" and error_hash's
// before/after_transactions(instance) entries: a location tag, then
// Ok or the error's message.
func encodeTxStatus(hash ids.ID, err error) []byte {
	return encodeStatus(append([]byte("tx:"), hash[:]...), err)
}

func encodeHookStatus(location string, instanceID uint32, err error) []byte {
	tag := fmt.Sprintf("%s(%d):", location, instanceID)
	return encodeStatus([]byte(tag), err)
}

func encodeStatus(tag []byte, err error) []byte {
	if err == nil {
		return append(tag, "Ok"...)
	}
	return append(tag, err.Error()...)
}
