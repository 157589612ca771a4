// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
)

// ErrMalformed is returned by Decode when the bytes given do not
// parse as a well-formed envelope or message body.
var ErrMalformed = errors.New("wire: malformed message")

// SignedMessage is the envelope every message crosses the network in.
// object_hash = sha256(Encode(m)): the hash covers the whole envelope,
// not just the payload, so a forged signature over a different author
// still changes the hash.
type SignedMessage struct {
	Author    ed25519.PublicKey // 32 bytes
	Payload   []byte
	Signature []byte // 64 bytes
}

// Sign builds a SignedMessage by signing payload, as given, with
// priv. The caller supplies the already-encoded payload (see
// EncodeTx/EncodePropose/... ) so Sign never needs to know the
// message kind.
func Sign(priv ed25519.PrivateKey, payload []byte) SignedMessage {
	return SignedMessage{
		Author:    priv.Public().(ed25519.PublicKey),
		Payload:   payload,
		Signature: ed25519.Sign(priv, payload),
	}
}

// Verify reports whether the envelope's signature is valid over its
// payload under its own claimed author key.
func (m SignedMessage) Verify() bool {
	if len(m.Author) != ed25519.PublicKeySize || len(m.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(m.Author, m.Payload, m.Signature)
}

// ObjectHash is the SHA-256 of the full envelope encoding.
func (m SignedMessage) ObjectHash() ids.ID {
	return ids.ID(sha256.Sum256(Encode(m)))
}

// Encode writes a SignedMessage in the canonical big-endian,
// length-prefixed framing every message on the wire shares.
func Encode(m SignedMessage) []byte {
	pk := newPacker()
	packBytesLP(pk, m.Author)
	packBytesLP(pk, m.Payload)
	packBytesLP(pk, m.Signature)
	return pk.Bytes
}

// DecodeEnvelope parses bytes produced by Encode.
func DecodeEnvelope(b []byte) (SignedMessage, error) {
	u := newUnpacker(b)
	m := SignedMessage{
		Author:    ed25519.PublicKey(unpackBytesLP(u)),
		Payload:   unpackBytesLP(u),
		Signature: unpackBytesLP(u),
	}
	if u.Err != nil {
		return SignedMessage{}, fmt.Errorf("%w: %v", ErrMalformed, u.Err)
	}
	return m, nil
}
