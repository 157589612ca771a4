// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/meridian/replica/utils/wrappers"
)

func newPacker() *wrappers.Packer { return wrappers.NewPacker(256) }
func newUnpacker(b []byte) *wrappers.Unpacker { return wrappers.NewUnpacker(b) }

// packBytesLP/unpackBytesLP add the length prefix wrappers.Packer
// leaves out of PackBytes, so variable-length fields can be framed.
func packBytesLP(pk *wrappers.Packer, b []byte) {
	pk.PackInt(uint32(len(b)))
	pk.PackBytes(b)
}

func unpackBytesLP(u *wrappers.Unpacker) []byte {
	n := u.UnpackInt()
	return u.UnpackBytes(int(n))
}

func packString(pk *wrappers.Packer, s string) { packBytesLP(pk, []byte(s)) }
func unpackString(u *wrappers.Unpacker) string { return string(unpackBytesLP(u)) }

func packID(pk *wrappers.Packer, id ids.ID) { pk.PackBytes(id[:]) }
func unpackID(u *wrappers.Unpacker) ids.ID {
	var id ids.ID
	copy(id[:], u.UnpackBytes(32))
	return id
}
func packNodeID(pk *wrappers.Packer, id ids.NodeID) { pk.PackBytes(id[:]) }
func unpackNodeID(u *wrappers.Unpacker) ids.NodeID {
	var id ids.NodeID
	copy(id[:], u.UnpackBytes(20))
	return id
}

func packTime(pk *wrappers.Packer, t time.Time) { pk.PackLong(uint64(t.UnixNano())) }
func unpackTime(u *wrappers.Unpacker) time.Time { return time.Unix(0, int64(u.UnpackLong())).UTC() }

func packBool(pk *wrappers.Packer, b bool) {
	if b {
		pk.PackByte(1)
	} else {
		pk.PackByte(0)
	}
}
func unpackBool(u *wrappers.Unpacker) bool { return u.UnpackByte() != 0 }

// Kind discriminates the payload a SignedMessage carries.
type Kind byte

const (
	KindTx Kind = iota + 1
	KindPropose
	KindPrevote
	KindPrecommit
	KindStatus
	KindConnect
	KindBlockRequest
	KindBlockResponse
	KindTransactionsRequest
	KindTransactionsResponse
	KindProposeRequest
	KindPrevotesRequest
	KindPeersRequest
)

// EncodeBlock writes a Block in canonical form.
func EncodeBlock(b Block) []byte {
	pk := newPacker()
	pk.PackLong(b.Height)
	pk.PackInt(b.TxCount)
	packID(pk, b.PrevHash)
	packID(pk, b.TxHash)
	packID(pk, b.StateHash)
	packID(pk, b.ErrorHash)
	pk.PackInt(uint32(len(b.AdditionalHeaders)))
	for _, h := range b.AdditionalHeaders {
		packString(pk, h.Name)
		packBytesLP(pk, h.Value)
	}
	return pk.Bytes
}

func DecodeBlock(b []byte) (Block, error) {
	u := newUnpacker(b)
	blk := Block{
		Height:    u.UnpackLong(),
		TxCount:   u.UnpackInt(),
		PrevHash:  unpackID(u),
		TxHash:    unpackID(u),
		StateHash: unpackID(u),
		ErrorHash: unpackID(u),
	}
	n := u.UnpackInt()
	blk.AdditionalHeaders = make([]Header, 0, n)
	for i := uint32(0); i < n; i++ {
		name := unpackString(u)
		value := unpackBytesLP(u)
		blk.AdditionalHeaders = append(blk.AdditionalHeaders, Header{Name: name, Value: value})
	}
	if u.Err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return blk, nil
}

// EncodeTx writes an AnyTx payload, prefixed with KindTx so a decoder
// dispatching on SignedMessage.Payload can tell it apart from a
// consensus message.
func EncodeTx(tx AnyTx) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindTx))
	pk.PackInt(tx.Call.InstanceID)
	pk.PackInt(tx.Call.MethodID)
	packBytesLP(pk, tx.Arguments)
	return pk.Bytes
}

func DecodeTx(b []byte) (AnyTx, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindTx {
		return AnyTx{}, fmt.Errorf("%w: expected tx, got kind %d", ErrMalformed, k)
	}
	tx := AnyTx{
		Call: CallInfo{
			InstanceID: u.UnpackInt(),
			MethodID:   u.UnpackInt(),
		},
		Arguments: unpackBytesLP(u),
	}
	if u.Err != nil {
		return AnyTx{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return tx, nil
}

func EncodePropose(p Propose) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindPropose))
	packNodeID(pk, p.Validator)
	pk.PackLong(p.Epoch)
	pk.PackLong(p.Round)
	packID(pk, p.PrevHash)
	pk.PackInt(uint32(len(p.TxHashes)))
	for _, h := range p.TxHashes {
		packID(pk, h)
	}
	packBool(pk, p.Skip)
	return pk.Bytes
}

func DecodePropose(b []byte) (Propose, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindPropose {
		return Propose{}, fmt.Errorf("%w: expected propose, got kind %d", ErrMalformed, k)
	}
	p := Propose{
		Validator: unpackNodeID(u),
		Epoch:     u.UnpackLong(),
		Round:     u.UnpackLong(),
		PrevHash:  unpackID(u),
	}
	n := u.UnpackInt()
	p.TxHashes = make([]ids.ID, n)
	for i := uint32(0); i < n; i++ {
		p.TxHashes[i] = unpackID(u)
	}
	p.Skip = unpackBool(u)
	if u.Err != nil {
		return Propose{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return p, nil
}

func EncodePrevote(v Prevote) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindPrevote))
	packNodeID(pk, v.Validator)
	pk.PackLong(v.Epoch)
	pk.PackLong(v.Round)
	packID(pk, v.ProposeHash)
	pk.PackLong(v.LockedRound)
	return pk.Bytes
}

func DecodePrevote(b []byte) (Prevote, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindPrevote {
		return Prevote{}, fmt.Errorf("%w: expected prevote, got kind %d", ErrMalformed, k)
	}
	v := Prevote{
		Validator:   unpackNodeID(u),
		Epoch:       u.UnpackLong(),
		Round:       u.UnpackLong(),
		ProposeHash: unpackID(u),
		LockedRound: u.UnpackLong(),
	}
	if u.Err != nil {
		return Prevote{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return v, nil
}

func EncodePrecommit(c Precommit) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindPrecommit))
	packNodeID(pk, c.Validator)
	pk.PackLong(c.Epoch)
	pk.PackLong(c.Round)
	packID(pk, c.ProposeHash)
	packID(pk, c.BlockHash)
	packTime(pk, c.Time)
	return pk.Bytes
}

func DecodePrecommit(b []byte) (Precommit, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindPrecommit {
		return Precommit{}, fmt.Errorf("%w: expected precommit, got kind %d", ErrMalformed, k)
	}
	c := Precommit{
		Validator:   unpackNodeID(u),
		Epoch:       u.UnpackLong(),
		Round:       u.UnpackLong(),
		ProposeHash: unpackID(u),
		BlockHash:   unpackID(u),
		Time:        unpackTime(u),
	}
	if u.Err != nil {
		return Precommit{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return c, nil
}

func EncodeStatus(s Status) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindStatus))
	pk.PackLong(s.Epoch)
	pk.PackLong(s.BlockchainHeight)
	packID(pk, s.LastHash)
	pk.PackInt(s.PoolSize)
	return pk.Bytes
}

func DecodeStatus(b []byte) (Status, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindStatus {
		return Status{}, fmt.Errorf("%w: expected status, got kind %d", ErrMalformed, k)
	}
	s := Status{
		Epoch:            u.UnpackLong(),
		BlockchainHeight: u.UnpackLong(),
		LastHash:         unpackID(u),
		PoolSize:         u.UnpackInt(),
	}
	if u.Err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return s, nil
}

func EncodeConnect(c Connect) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindConnect))
	packNodeID(pk, c.NodeID)
	packBytesLP(pk, c.PublicKey)
	packString(pk, c.AppVersion)
	return pk.Bytes
}

func DecodeConnect(b []byte) (Connect, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindConnect {
		return Connect{}, fmt.Errorf("%w: expected connect, got kind %d", ErrMalformed, k)
	}
	c := Connect{
		NodeID:     unpackNodeID(u),
		PublicKey:  unpackBytesLP(u),
		AppVersion: unpackString(u),
	}
	if u.Err != nil {
		return Connect{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return c, nil
}

func EncodeBlockRequest(r BlockRequest) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindBlockRequest))
	pk.PackLong(r.Height)
	return pk.Bytes
}

func DecodeBlockRequest(b []byte) (BlockRequest, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindBlockRequest {
		return BlockRequest{}, fmt.Errorf("%w: expected block_request, got kind %d", ErrMalformed, k)
	}
	r := BlockRequest{Height: u.UnpackLong()}
	if u.Err != nil {
		return BlockRequest{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return r, nil
}

func EncodeBlockResponse(r BlockResponse) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindBlockResponse))
	pk.PackBytes(EncodeBlock(r.Block))
	pk.PackInt(uint32(len(r.Precommits)))
	for _, c := range r.Precommits {
		packBytesLP(pk, EncodePrecommit(c))
	}
	pk.PackInt(uint32(len(r.TxHashes)))
	for _, h := range r.TxHashes {
		packID(pk, h)
	}
	return pk.Bytes
}

func DecodeBlockResponse(b []byte) (BlockResponse, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindBlockResponse {
		return BlockResponse{}, fmt.Errorf("%w: expected block_response, got kind %d", ErrMalformed, k)
	}
	// Block has no length prefix of its own since it is the sole
	// leading field; decode it by handing the unpacker's remaining
	// bytes to decodeBlockPrefix and re-synchronizing the offset.
	blk, rest, err := decodeBlockPrefix(u.Remaining())
	if err != nil {
		return BlockResponse{}, err
	}
	u.Offset = len(u.Bytes) - len(rest)

	n := u.UnpackInt()
	precommits := make([]Precommit, 0, n)
	for i := uint32(0); i < n; i++ {
		raw := unpackBytesLP(u)
		c, err := DecodePrecommit(raw)
		if err != nil {
			return BlockResponse{}, err
		}
		precommits = append(precommits, c)
	}
	m := u.UnpackInt()
	hashes := make([]ids.ID, m)
	for i := uint32(0); i < m; i++ {
		hashes[i] = unpackID(u)
	}
	if u.Err != nil {
		return BlockResponse{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return BlockResponse{Block: blk, Precommits: precommits, TxHashes: hashes}, nil
}

// decodeBlockPrefix decodes a Block occupying the head of b and
// returns the unconsumed tail, since EncodeBlock's own framing has no
// overall length prefix for embedding inside larger messages.
func decodeBlockPrefix(b []byte) (Block, []byte, error) {
	u := newUnpacker(b)
	blk := Block{
		Height:    u.UnpackLong(),
		TxCount:   u.UnpackInt(),
		PrevHash:  unpackID(u),
		TxHash:    unpackID(u),
		StateHash: unpackID(u),
		ErrorHash: unpackID(u),
	}
	n := u.UnpackInt()
	if n > 0 {
		blk.AdditionalHeaders = make([]Header, 0, n)
	}
	for i := uint32(0); i < n; i++ {
		name := unpackString(u)
		value := unpackBytesLP(u)
		blk.AdditionalHeaders = append(blk.AdditionalHeaders, Header{Name: name, Value: value})
	}
	if u.Err != nil {
		return Block{}, nil, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return blk, u.Remaining(), nil
}

func EncodeTransactionsRequest(r TransactionsRequest) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindTransactionsRequest))
	pk.PackInt(uint32(len(r.TxHashes)))
	for _, h := range r.TxHashes {
		packID(pk, h)
	}
	return pk.Bytes
}

func DecodeTransactionsRequest(b []byte) (TransactionsRequest, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindTransactionsRequest {
		return TransactionsRequest{}, fmt.Errorf("%w: expected transactions_request, got kind %d", ErrMalformed, k)
	}
	n := u.UnpackInt()
	r := TransactionsRequest{TxHashes: make([]ids.ID, n)}
	for i := uint32(0); i < n; i++ {
		r.TxHashes[i] = unpackID(u)
	}
	if u.Err != nil {
		return TransactionsRequest{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return r, nil
}

func EncodeTransactionsResponse(r TransactionsResponse) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindTransactionsResponse))
	pk.PackInt(uint32(len(r.Transactions)))
	for _, tx := range r.Transactions {
		packBytesLP(pk, Encode(tx))
	}
	return pk.Bytes
}

func DecodeTransactionsResponse(b []byte) (TransactionsResponse, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindTransactionsResponse {
		return TransactionsResponse{}, fmt.Errorf("%w: expected transactions_response, got kind %d", ErrMalformed, k)
	}
	n := u.UnpackInt()
	r := TransactionsResponse{Transactions: make([]SignedMessage, 0, n)}
	for i := uint32(0); i < n; i++ {
		raw := unpackBytesLP(u)
		sm, err := DecodeEnvelope(raw)
		if err != nil {
			return TransactionsResponse{}, err
		}
		r.Transactions = append(r.Transactions, sm)
	}
	if u.Err != nil {
		return TransactionsResponse{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return r, nil
}

func EncodeProposeRequest(r ProposeRequest) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindProposeRequest))
	packID(pk, r.ProposeHash)
	return pk.Bytes
}

func DecodeProposeRequest(b []byte) (ProposeRequest, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindProposeRequest {
		return ProposeRequest{}, fmt.Errorf("%w: expected propose_request, got kind %d", ErrMalformed, k)
	}
	r := ProposeRequest{ProposeHash: unpackID(u)}
	if u.Err != nil {
		return ProposeRequest{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return r, nil
}

func EncodePrevotesRequest(r PrevotesRequest) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindPrevotesRequest))
	pk.PackLong(r.Round)
	packID(pk, r.ProposeHash)
	return pk.Bytes
}

func DecodePrevotesRequest(b []byte) (PrevotesRequest, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindPrevotesRequest {
		return PrevotesRequest{}, fmt.Errorf("%w: expected prevotes_request, got kind %d", ErrMalformed, k)
	}
	r := PrevotesRequest{Round: u.UnpackLong(), ProposeHash: unpackID(u)}
	if u.Err != nil {
		return PrevotesRequest{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return r, nil
}

func EncodePeersRequest(PeersRequest) []byte {
	pk := newPacker()
	pk.PackByte(byte(KindPeersRequest))
	return pk.Bytes
}

func DecodePeersRequest(b []byte) (PeersRequest, error) {
	u := newUnpacker(b)
	if k := u.UnpackByte(); Kind(k) != KindPeersRequest {
		return PeersRequest{}, fmt.Errorf("%w: expected peers_request, got kind %d", ErrMalformed, k)
	}
	if u.Err != nil {
		return PeersRequest{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return PeersRequest{}, nil
}

// PayloadKind peeks at the first byte of a SignedMessage's payload to
// tell a dispatcher which Decode* function to call, without fully
// parsing the body.
func PayloadKind(payload []byte) (Kind, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return Kind(payload[0]), nil
}
