// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire defines the wire-level message types exchanged between
// replicas: blocks, transactions, and the consensus protocol messages,
// together with their canonical deterministic byte encoding.
package wire

import "github.com/luxfi/ids"

// Block is the header committed at each height. additional_headers is
// an ordered string->bytes map; header names are case-sensitive and
// must round-trip byte-for-byte.
type Block struct {
	Height            uint64
	TxCount           uint32
	PrevHash          ids.ID
	TxHash            ids.ID
	StateHash         ids.ID
	ErrorHash         ids.ID
	AdditionalHeaders []Header
}

// Header is one entry of Block.AdditionalHeaders, kept as an ordered
// slice rather than a map so insertion order survives encoding.
type Header struct {
	Name  string
	Value []byte
}

// CallInfo names the (instance, method) pair a transaction invokes.
type CallInfo struct {
	InstanceID uint32
	MethodID   uint32
}

// AnyTx is the payload carried inside a SignedMessage's Payload when
// the message is a transaction.
type AnyTx struct {
	Call      CallInfo
	Arguments []byte
}
