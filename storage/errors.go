// Package storage implements the versioned, Merkleized key-value
// layer (MerkleDB): a copy-on-write View over an ordered backend,
// typed indexes built on that View, and a Patch/Fork mechanism for
// staging and atomically committing changes.
package storage

import "errors"

var (
	// ErrBorrowConflict is returned when a Fork is asked to open a
	// second exclusive view on an address that already has one open.
	ErrBorrowConflict = errors.New("storage: borrow conflict")
	// ErrIndexTypeMismatch is returned when an address previously
	// bound to one index type is reopened as another.
	ErrIndexTypeMismatch = errors.New("storage: index type mismatch")
	// ErrIndexNotFound is returned by operations that require an
	// already-bound index.
	ErrIndexNotFound = errors.New("storage: index not found")
	// ErrReadOnlyView is returned (as a panic payload, per the
	// programmer-error contract) when Put/Remove is called on a view
	// that was not opened exclusive.
	ErrReadOnlyView = errors.New("storage: put/remove on read-only view")
)
