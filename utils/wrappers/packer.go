// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import "errors"

// ErrInsufficientLength is returned by Unpacker methods when fewer
// bytes remain than the value being read requires.
var ErrInsufficientLength = errors.New("wrappers: insufficient length")

// Unpacker reads big-endian encoded values off a byte slice, mirroring
// Packer's write-side encoding. It never panics; once Err is set, all
// further reads are no-ops returning zero values.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker returns an Unpacker reading from the given bytes.
func NewUnpacker(bytes []byte) *Unpacker {
	return &Unpacker{Bytes: bytes}
}

func (u *Unpacker) take(n int) []byte {
	if u.Err != nil {
		return nil
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrInsufficientLength
		return nil
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b
}

// UnpackByte reads a single byte.
func (u *Unpacker) UnpackByte() byte {
	b := u.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// UnpackBytes reads n raw bytes.
func (u *Unpacker) UnpackBytes(n int) []byte {
	b := u.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// UnpackInt reads a big-endian uint32.
func (u *Unpacker) UnpackInt() uint32 {
	b := u.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// UnpackLong reads a big-endian uint64.
func (u *Unpacker) UnpackLong() uint64 {
	b := u.take(8)
	if b == nil {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Remaining returns the unread tail of the buffer.
func (u *Unpacker) Remaining() []byte {
	if u.Err != nil || u.Offset > len(u.Bytes) {
		return nil
	}
	return u.Bytes[u.Offset:]
}
