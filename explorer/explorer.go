// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package explorer answers "what happened to the transaction I
// submitted" queries: in the pool, committed at some height and
// index with some outcome, or unknown to this node.
package explorer

import (
	"sync"

	"github.com/luxfi/ids"

	"github.com/meridian/replica/blockexec"
	"github.com/meridian/replica/choices"
)

// Kind discriminates the three shapes a TxStatus can take.
type Kind uint8

const (
	Unknown Kind = iota
	InPool
	Committed
)

// TxStatus is the result of a transaction-status query.
type TxStatus struct {
	Kind   Kind
	Height uint64
	Index  int
	Status choices.Status
	Err    string
}

// Pool is the subset of a transaction pool an Explorer needs to
// distinguish "never seen" from "in the pool, not yet committed".
// Callers adapt their own pool type to this one-method interface
// rather than the Explorer depending on any particular pool/wire type.
type Pool interface {
	Contains(hash ids.ID) bool
}

// Index records, per committed block, the outcome of every
// transaction it contained, so TxStatus queries don't need to replay
// storage history. Fed by RecordBlock after each commit.
type Index struct {
	mu      sync.RWMutex
	records map[ids.ID]record
}

type record struct {
	height uint64
	index  int
	status choices.Status
	err    string
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{records: make(map[ids.ID]record)}
}

// RecordBlock files every transaction outcome of a just-committed
// block at height under its hash, in block order.
func (idx *Index) RecordBlock(height uint64, outcomes []blockexec.TxResult) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, o := range outcomes {
		r := record{height: height, index: i, status: choices.Accepted}
		if o.Err != nil {
			r.status = choices.Rejected
			r.err = o.Err.Error()
		}
		idx.records[o.Hash] = r
	}
}

// Explorer answers TxStatus queries against an Index and a live pool.
type Explorer struct {
	idx  *Index
	pool Pool
}

// New returns an Explorer backed by idx's committed-transaction
// records and pool's pending ones.
func New(idx *Index, pool Pool) *Explorer {
	return &Explorer{idx: idx, pool: pool}
}

// Query resolves hash to its current status: Committed if a block
// already recorded it, InPool if it's only pending, Unknown otherwise.
func (e *Explorer) Query(hash ids.ID) TxStatus {
	e.idx.mu.RLock()
	r, ok := e.idx.records[hash]
	e.idx.mu.RUnlock()
	if ok {
		return TxStatus{Kind: Committed, Height: r.height, Index: r.index, Status: r.status, Err: r.err}
	}
	if e.pool != nil && e.pool.Contains(hash) {
		return TxStatus{Kind: InPool, Status: choices.Processing}
	}
	return TxStatus{Kind: Unknown, Status: choices.Unknown}
}
