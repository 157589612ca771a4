// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockexec ties the runtime dispatcher and the storage
// layer together to execute one block's transactions in the strict
// order spec §4.7 names: before_transactions, each transaction in
// block order, after_transactions, mailbox drain, then state_hash.
package blockexec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	replicalog "github.com/meridian/replica/log"
	"github.com/meridian/replica/metrics"
	"github.com/meridian/replica/runtime"
	"github.com/meridian/replica/storage"
	"github.com/meridian/replica/wire"
)

// hookStatusEntries turns a runtime hook-failure map into status
// records in ascending instance_id order, since map iteration order
// is not deterministic and error_hash must be.
func hookStatusEntries(location string, failures map[uint32]error) [][]byte {
	ids := make([]uint32, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, encodeHookStatus(location, id, failures[id]))
	}
	return out
}

// ErrTxDecodeFailed is recorded as a transaction's status (not
// returned from Execute) when a transaction's envelope or payload
// fails to decode; the block still commits, the failing transaction
// simply contributes a non-Ok status to error_hash.
var ErrTxDecodeFailed = errors.New("blockexec: transaction failed to decode")

// Executor runs blocks against a runtime.Dispatcher.
type Executor struct {
	dispatcher *runtime.Dispatcher
	log        log.Logger

	blocksExecuted metrics.Counter
	txsExecuted    metrics.Counter
	txFailures     metrics.Counter
	blockTxCount   metrics.Averager
}

// NewExecutor builds an Executor bound to d. A nil logger installs a
// no-op logger, matching runtime.NewDispatcher's convention. Its
// metrics are tracked against a private, ungathered registry; use
// NewExecutorWithMetrics to expose them on a shared one.
func NewExecutor(d *runtime.Dispatcher, logger log.Logger) *Executor {
	return NewExecutorWithMetrics(d, logger, metrics.NewRegistry())
}

// NewExecutorWithMetrics builds an Executor that records its
// per-block counters (blocks/transactions executed, transaction
// failures, transactions-per-block average) onto reg, so a node can
// expose them alongside the rest of its metrics.
func NewExecutorWithMetrics(d *runtime.Dispatcher, logger log.Logger, reg metrics.Registry) *Executor {
	if logger == nil {
		logger = replicalog.NewNoOpLogger()
	}
	return &Executor{
		dispatcher:     d,
		log:            logger,
		blocksExecuted: reg.NewCounter("blocks_executed"),
		txsExecuted:    reg.NewCounter("txs_executed"),
		txFailures:     reg.NewCounter("tx_failures"),
		blockTxCount:   reg.NewAverager("block_tx_count"),
	}
}

// TxResult is the per-transaction outcome recorded for one committed
// transaction, in block order.
type TxResult struct {
	Hash ids.ID
	Err  error // nil on success
}

// Result is everything Execute produces: the finalized header plus
// the per-tx outcomes needed by callers building BlockResponse or a
// local explorer index.
type Result struct {
	Header     wire.Block
	TxOutcomes []TxResult
}

// ExecuteGenesis runs the genesis-only path: after_transactions on
// every installed service, no before_transactions, no transactions.
func (e *Executor) ExecuteGenesis(f *storage.Fork) (Result, error) {
	return e.execute(f, 0, ids.ID{}, nil, true)
}

// Execute runs a normal block at the given height against prevHash,
// decoding and dispatching each signed transaction in order.
func (e *Executor) Execute(f *storage.Fork, height uint64, prevHash ids.ID, txs []wire.SignedMessage) (Result, error) {
	return e.execute(f, height, prevHash, txs, false)
}

func (e *Executor) execute(f *storage.Fork, height uint64, prevHash ids.ID, txs []wire.SignedMessage, genesis bool) (Result, error) {
	var statusEntries [][]byte

	if !genesis {
		statusEntries = append(statusEntries, hookStatusEntries("before_transactions", e.dispatcher.BeforeTransactions(f))...)
	}

	txHashes := make([]ids.ID, 0, len(txs))
	outcomes := make([]TxResult, 0, len(txs))
	for _, sm := range txs {
		hash := sm.ObjectHash()
		txHashes = append(txHashes, hash)

		err := e.dispatchOne(f, sm)
		statusEntries = append(statusEntries, encodeTxStatus(hash, err))
		outcomes = append(outcomes, TxResult{Hash: hash, Err: err})

		e.txsExecuted.Inc()
		if err != nil {
			e.txFailures.Inc()
		}
	}
	e.blocksExecuted.Inc()
	e.blockTxCount.Observe(float64(len(txs)))

	statusEntries = append(statusEntries, hookStatusEntries("after_transactions", e.dispatcher.AfterTransactions(f))...)

	e.dispatcher.DrainMailbox()

	agg, err := storage.OpenAggregator(f)
	if err != nil {
		return Result{}, fmt.Errorf("blockexec: open aggregator: %w", err)
	}
	agg.Sync(f)
	stateHash := agg.ObjectHash()

	header := wire.Block{
		Height:    height,
		TxCount:   uint32(len(txs)),
		PrevHash:  prevHash,
		TxHash:    merkleListRoot(txHashes),
		StateHash: ids.ID(stateHash),
		ErrorHash: merkleListRoot32(statusEntries),
	}
	return Result{Header: header, TxOutcomes: outcomes}, nil
}

// dispatchOne decodes and dispatches a single transaction envelope,
// never returning a Go error for a malformed/rejected transaction —
// those become a non-nil per-tx status instead, since one bad
// transaction must not abort the rest of the block. Each transaction
// gets its own fork checkpoint, exactly like a before/after_transactions
// hook: a failing transaction's writes are rolled back to the
// previous checkpoint so only the transactions that actually
// succeeded in this block are reflected in state_hash.
func (e *Executor) dispatchOne(f *storage.Fork, sm wire.SignedMessage) error {
	if !sm.Verify() {
		e.log.Debug("blockexec: rejecting transaction with invalid signature")
		return fmt.Errorf("%w: invalid signature", ErrTxDecodeFailed)
	}
	tx, err := wire.DecodeTx(sm.Payload)
	if err != nil {
		e.log.Debug("blockexec: rejecting malformed transaction", "err", err)
		return fmt.Errorf("%w: %v", ErrTxDecodeFailed, err)
	}

	_, err = e.dispatcher.DispatchCall(f, runtime.TransactionCaller(sm.Author), txHashPtr(sm), tx.Call.InstanceID, "", tx.Call.MethodID, tx.Arguments)
	if err != nil {
		f.Rollback()
		e.dispatcher.InvalidateCache(f)
		return err
	}
	f.Flush()
	e.dispatcher.InvalidateCache(f)
	return nil
}

func txHashPtr(sm wire.SignedMessage) *[32]byte {
	h := sm.ObjectHash()
	arr := [32]byte(h)
	return &arr
}
