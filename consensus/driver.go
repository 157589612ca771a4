// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/meridian/replica/blockexec"
	"github.com/meridian/replica/config"
	"github.com/meridian/replica/explorer"
	replicalog "github.com/meridian/replica/log"
	"github.com/meridian/replica/set"
	"github.com/meridian/replica/storage"
	"github.com/meridian/replica/validators"
	"github.com/meridian/replica/version"
	"github.com/meridian/replica/wire"
)

// DefaultRequestTimeout is spec §4.10's "100 ms across request kinds",
// used for the request/retry families config.Consensus does not name
// individually (Propose/Transactions/Prevotes/Precommits/Block).
const DefaultRequestTimeout = 100 * time.Millisecond

var (
	// ErrSelfEquivocation is panicked on (never returned) when this
	// node contradicts its own previously-sent vote for a round — a
	// self-contradiction is always a programming error, never a
	// condition to recover from (spec §9: "panic vs error for
	// self-contradiction").
	ErrSelfEquivocation = errors.New("consensus: self-equivocation detected")

	ErrUnknownPropose      = errors.New("consensus: unknown propose")
	ErrUnknownTransactions = errors.New("consensus: unknown transactions")
	ErrInvalidSignature    = errors.New("consensus: invalid signature")

	// ErrIncompatibleVersion is returned by HandleConnect when a peer
	// announces an application version string that differs from this
	// node's own.
	ErrIncompatibleVersion = errors.New("consensus: incompatible peer version")
)

// appVersion is this node's advertised application version, sent in
// every Connect handshake.
var appVersion = version.DefaultVersion()

// Network is the transport boundary (external collaborator): delivers
// already-verified SignedMessage bytes and accepts outbound ones.
// Exactly one task owns it; the consensus loop never blocks on it
// beyond enqueueing.
type Network interface {
	Broadcast(payload wire.SignedMessage)
	SendTo(peer ids.NodeID, payload wire.SignedMessage)
	Peers() []ids.NodeID
}

// TxPool resolves transaction bodies by hash, the store Propose/
// TransactionsRequest handling reads and writes through.
type TxPool interface {
	Get(hash ids.ID) (wire.SignedMessage, bool)
	Put(tx wire.SignedMessage)
}

// Driver runs the event handlers of spec §4.10 against one owned
// State. All methods are synchronous and must only ever be called
// from the single consensus goroutine.
type Driver struct {
	log        log.Logger
	self       ids.NodeID
	key        ed25519.PrivateKey
	validators *validators.Set
	state      *State
	db         storage.Database
	exec       *blockexec.Executor
	net        Network
	pool       TxPool
	cfg        config.Consensus
	explorer   *explorer.Index

	requestTimeout time.Duration
}

// WithExplorer attaches an explorer.Index that every committed
// block's transaction outcomes are recorded into, so a node can serve
// transaction-status queries without replaying storage history.
func (d *Driver) WithExplorer(idx *explorer.Index) *Driver {
	d.explorer = idx
	return d
}

// NewDriver wires a Driver using config.DefaultConsensus(). A nil
// logger installs a no-op logger.
func NewDriver(logger log.Logger, self ids.NodeID, key ed25519.PrivateKey, vs *validators.Set, genesisHash ids.ID, db storage.Database, exec *blockexec.Executor, net Network, pool TxPool) *Driver {
	return NewDriverWithConfig(logger, self, key, vs, genesisHash, db, exec, net, pool, config.DefaultConsensus())
}

// NewDriverWithConfig is NewDriver with an explicit consensus
// configuration, for callers that load one from disk.
func NewDriverWithConfig(logger log.Logger, self ids.NodeID, key ed25519.PrivateKey, vs *validators.Set, genesisHash ids.ID, db storage.Database, exec *blockexec.Executor, net Network, pool TxPool, cfg config.Consensus) *Driver {
	if logger == nil {
		logger = replicalog.NewNoOpLogger()
	}
	return &Driver{
		log:            logger,
		self:           self,
		key:            key,
		validators:     vs,
		state:          NewState(genesisHash),
		db:             db,
		exec:           exec,
		net:            net,
		pool:           pool,
		cfg:            cfg,
		requestTimeout: DefaultRequestTimeout,
	}
}

// State exposes the driver's owned state for read-only inspection
// (e.g. an HTTP status endpoint); callers must not mutate it.
func (d *Driver) State() *State { return d.state }

func (d *Driver) sign(payload []byte) wire.SignedMessage { return wire.Sign(d.key, payload) }

func (d *Driver) broadcast(payload []byte) { d.net.Broadcast(d.sign(payload)) }

// Deliver is the single entrypoint a transport hands raw network
// bytes to: it enforces the wire-size cap, verifies the envelope
// signature, resolves the sender to a validator, and dispatches by
// message kind. BlockRequest and TransactionsRequest (which need to
// answer with this node's own state) are not dispatched here; a
// BlockRequest is left for the caller to route to HandleBlockRequest
// directly, since answering it needs a BlockLookup this method does
// not have.
func (d *Driver) Deliver(raw []byte) error {
	if limit := d.cfg.MaxMessageLen; limit > 0 && len(raw) > limit {
		return fmt.Errorf("consensus: message of %d bytes exceeds max_message_len %d", len(raw), limit)
	}
	sm, err := wire.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	if !sm.Verify() {
		return ErrInvalidSignature
	}
	sender, known := d.validators.ByPublicKey(sm.Author)
	if !known {
		return fmt.Errorf("consensus: message from non-validator author")
	}
	kind, err := wire.PayloadKind(sm.Payload)
	if err != nil {
		return err
	}
	switch kind {
	case wire.KindPropose:
		p, err := wire.DecodePropose(sm.Payload)
		if err != nil {
			return err
		}
		return d.HandlePropose(p)
	case wire.KindPrevote:
		v, err := wire.DecodePrevote(sm.Payload)
		if err != nil {
			return err
		}
		return d.HandlePrevote(v)
	case wire.KindPrecommit:
		c, err := wire.DecodePrecommit(sm.Payload)
		if err != nil {
			return err
		}
		return d.HandlePrecommit(c)
	case wire.KindStatus:
		s, err := wire.DecodeStatus(sm.Payload)
		if err != nil {
			return err
		}
		d.HandleStatus(sender.NodeID, s)
		return nil
	case wire.KindConnect:
		c, err := wire.DecodeConnect(sm.Payload)
		if err != nil {
			return err
		}
		return d.HandleConnect(c)
	case wire.KindBlockResponse:
		r, err := wire.DecodeBlockResponse(sm.Payload)
		if err != nil {
			return err
		}
		return d.HandleBlockResponse(r)
	case wire.KindTransactionsResponse:
		r, err := wire.DecodeTransactionsResponse(sm.Payload)
		if err != nil {
			return err
		}
		for _, tx := range r.Transactions {
			d.pool.Put(tx)
		}
		return d.resolvePendingTxWaits()
	default:
		return fmt.Errorf("consensus: Deliver does not route message kind %d; route it directly", kind)
	}
}

// HandlePropose processes a received Propose (spec §4.10).
func (d *Driver) HandlePropose(p wire.Propose) error {
	if p.Epoch != d.state.Epoch {
		return nil
	}
	leader := d.state.Leader(d.validators, p.Round)
	if leader.NodeID != p.Validator {
		return nil
	}
	if p.PrevHash != d.state.LastHash {
		return nil
	}
	hash := proposeHash(p)
	if _, known := d.state.Proposes[hash]; known {
		return nil
	}
	d.state.Proposes[hash] = p

	missing := set.Of[ids.ID]()
	for _, h := range p.TxHashes {
		if _, ok := d.pool.Get(h); !ok {
			missing.Add(h)
		}
	}
	if missing.Len() > 0 {
		d.state.PendingTxWaits[hash] = missing
		d.broadcast(wire.EncodeTransactionsRequest(wire.TransactionsRequest{TxHashes: missing.List()}))
		return nil
	}
	return d.sendPrevote(p.Round, hash)
}

// resolvePendingTxWaits re-checks every propose this node deferred
// voting on for missing transaction bodies, and prevotes for any whose
// wait set the tx pool can now fully satisfy.
func (d *Driver) resolvePendingTxWaits() error {
	for hash, missing := range d.state.PendingTxWaits {
		for _, h := range missing.List() {
			if _, ok := d.pool.Get(h); ok {
				missing.Remove(h)
			}
		}
		if missing.Len() != 0 {
			continue
		}
		delete(d.state.PendingTxWaits, hash)
		p, ok := d.state.Proposes[hash]
		if !ok {
			continue
		}
		if err := d.sendPrevote(p.Round, hash); err != nil {
			return err
		}
	}
	return nil
}

// sendPrevote broadcasts this node's prevote for (round, proposeHash),
// respecting the locking rule: once locked, only the locked propose
// may be prevoted for in later rounds unless the lock itself advances.
func (d *Driver) sendPrevote(round uint64, proposeHash ids.ID) error {
	if d.state.LockedHash != nil && round > d.state.LockedRound && proposeHash != *d.state.LockedHash {
		return nil
	}
	if prior, ok := d.state.OurPrevote[round]; ok && prior.ProposeHash != proposeHash {
		panic(fmt.Errorf("%w: round %d", ErrSelfEquivocation, round))
	}
	v := wire.Prevote{Validator: d.self, Epoch: d.state.Epoch, Round: round, ProposeHash: proposeHash, LockedRound: d.state.LockedRound}
	d.state.OurPrevote[round] = v
	d.state.recordPrevote(v)
	d.broadcast(wire.EncodePrevote(v))
	return d.maybeLock(round, proposeHash)
}

// HandlePrevote processes a received Prevote.
func (d *Driver) HandlePrevote(v wire.Prevote) error {
	if v.Validator == d.self {
		if prior, ok := d.state.OurPrevote[v.Round]; ok && prior.ProposeHash != v.ProposeHash {
			panic(fmt.Errorf("%w: round %d", ErrSelfEquivocation, v.Round))
		}
	}
	d.state.recordPrevote(v)
	return d.maybeLock(v.Round, v.ProposeHash)
}

// maybeLock checks whether (round, proposeHash) just reached +2/3
// prevotes; if so it speculatively executes the block, locks, and
// broadcasts a Precommit.
func (d *Driver) maybeLock(round uint64, proposeHash ids.ID) error {
	if !d.state.HasMajorityPrevotes(d.validators, round, proposeHash) {
		return nil
	}
	if d.state.LockedHash != nil && *d.state.LockedHash == proposeHash && d.state.LockedRound >= round {
		return nil // already locked here
	}
	p, ok := d.state.Proposes[proposeHash]
	if !ok {
		return nil // don't know the propose body yet; lock deferred until we do
	}
	txs := make([]wire.SignedMessage, 0, len(p.TxHashes))
	for _, h := range p.TxHashes {
		tx, ok := d.pool.Get(h)
		if !ok {
			return nil
		}
		txs = append(txs, tx)
	}

	f := storage.NewFork(d.db.Snapshot())
	res, err := d.exec.Execute(f, d.state.NextHeight(), d.state.LastHash, txs)
	if err != nil {
		return fmt.Errorf("consensus: speculative execution: %w", err)
	}
	blockHash := ids.ID(wire.EncodeBlockHash(res.Header))

	d.state.Blocks[blockHash] = &storedBlock{fork: f, header: res.Header, txHashes: p.TxHashes, proposeRound: round, outcomes: res.TxOutcomes}
	d.state.LockedRound = round
	d.state.LockedHash = &proposeHash

	if prior, ok := d.state.OurPrecommit[round]; ok && (prior.ProposeHash != proposeHash || prior.BlockHash != blockHash) {
		panic(fmt.Errorf("%w: round %d", ErrSelfEquivocation, round))
	}
	c := wire.Precommit{Validator: d.self, Epoch: d.state.Epoch, Round: round, ProposeHash: proposeHash, BlockHash: blockHash, Time: time.Now()}
	d.state.OurPrecommit[round] = c
	d.state.recordPrecommit(c)
	d.broadcast(wire.EncodePrecommit(c))
	return d.maybeCommit(round, proposeHash, blockHash)
}

// HandlePrecommit processes a received Precommit.
func (d *Driver) HandlePrecommit(c wire.Precommit) error {
	if c.Validator == d.self {
		if prior, ok := d.state.OurPrecommit[c.Round]; ok && (prior.ProposeHash != c.ProposeHash || prior.BlockHash != c.BlockHash) {
			panic(fmt.Errorf("%w: round %d", ErrSelfEquivocation, c.Round))
		}
	}
	d.state.recordPrecommit(c)
	return d.maybeCommit(c.Round, c.ProposeHash, c.BlockHash)
}

// maybeCommit applies a block once +2/3 matching precommits exist.
func (d *Driver) maybeCommit(round uint64, proposeHash, blockHash ids.ID) error {
	if !d.state.HasMajorityPrecommits(d.validators, round, proposeHash, blockHash) {
		return nil
	}
	blk, ok := d.state.Blocks[blockHash]
	if !ok {
		return nil
	}
	return d.commit(blk)
}

func (d *Driver) commit(blk *storedBlock) error {
	if err := d.db.Merge(blk.fork.IntoPatch()); err != nil {
		return fmt.Errorf("consensus: commit: %w", err)
	}
	blockHash := ids.ID(wire.EncodeBlockHash(blk.header))
	d.state.Height = blk.header.Height
	d.state.LastHash = blockHash
	d.state.resetHeightCaches()
	if d.explorer != nil {
		d.explorer.RecordBlock(blk.header.Height, blk.outcomes)
	}
	d.broadcast(wire.EncodeStatus(wire.Status{Epoch: d.state.Epoch, BlockchainHeight: d.state.Height, LastHash: d.state.LastHash}))
	return nil
}

// RoundTimeout advances the round, or — if this node leads the new
// round — builds and broadcasts a Propose.
func (d *Driver) RoundTimeout(knownTxHashes []ids.ID) error {
	d.state.Round++
	leader := d.state.Leader(d.validators, d.state.Round)
	if leader.NodeID != d.self {
		return nil
	}
	if limit := d.cfg.TxsBlockLimit; limit > 0 && len(knownTxHashes) > limit {
		knownTxHashes = knownTxHashes[:limit]
	}
	p := wire.Propose{Validator: d.self, Epoch: d.state.Epoch, Round: d.state.Round, PrevHash: d.state.LastHash, TxHashes: knownTxHashes}
	if d.state.LockedHash != nil {
		if locked, ok := d.state.Proposes[*d.state.LockedHash]; ok {
			p.TxHashes = locked.TxHashes
		}
	}
	hash := proposeHash(p)
	d.state.Proposes[hash] = p
	d.broadcast(wire.EncodePropose(p))
	return nil
}

// EpochTimeout advances the epoch after round-timeout exhaustion
// without a commit, per the glossary definition of Epoch.
func (d *Driver) EpochTimeout() {
	d.state.Epoch++
	d.state.Round = 0
}

// StatusTimeout broadcasts this node's Status.
func (d *Driver) StatusTimeout() {
	d.broadcast(wire.EncodeStatus(wire.Status{Epoch: d.state.Epoch, BlockchainHeight: d.state.Height, LastHash: d.state.LastHash}))
}

// PeersTimeout broadcasts a PeersRequest.
func (d *Driver) PeersTimeout() {
	d.broadcast(wire.EncodePeersRequest(wire.PeersRequest{}))
}

// Handshake broadcasts this node's Connect announcement, advertising
// its public key and running application version.
func (d *Driver) Handshake() {
	d.broadcast(wire.EncodeConnect(wire.Connect{
		NodeID:     d.self,
		PublicKey:  d.key.Public().(ed25519.PublicKey),
		AppVersion: appVersion.String(),
	}))
}

// HandleConnect validates an incoming handshake, rejecting a peer
// whose advertised application version differs from this node's.
func (d *Driver) HandleConnect(c wire.Connect) error {
	if c.AppVersion != appVersion.String() {
		return fmt.Errorf("%w: peer %s reports %q, this node runs %q", ErrIncompatibleVersion, c.NodeID, c.AppVersion, appVersion.String())
	}
	return nil
}

// HandleStatus requests a BlockRequest when the sender is ahead.
func (d *Driver) HandleStatus(sender ids.NodeID, s wire.Status) {
	d.state.PeerHeights[sender] = s.BlockchainHeight
	if s.BlockchainHeight > d.state.Height {
		d.net.SendTo(sender, d.sign(wire.EncodeBlockRequest(wire.BlockRequest{Height: d.state.Height + 1})))
	}
}

// BlockLookup resolves a committed block for HandleBlockRequest; the
// wiring code backs it with whatever persists committed headers (an
// explorer index or the blocks ProofMap).
type BlockLookup interface {
	BlockAt(height uint64) (wire.Block, []wire.Precommit, []ids.ID, bool)
}

// HandleBlockRequest answers with the stored block, its precommit
// set, and the ordered tx hash list.
func (d *Driver) HandleBlockRequest(sender ids.NodeID, r wire.BlockRequest, lookup BlockLookup) {
	header, precommits, txHashes, ok := lookup.BlockAt(r.Height)
	if !ok {
		return
	}
	d.net.SendTo(sender, d.sign(wire.EncodeBlockResponse(wire.BlockResponse{Block: header, Precommits: precommits, TxHashes: txHashes})))
}

// HandleBlockResponse verifies and applies a catch-up block: this is
// how a lagging node advances without replaying consensus.
func (d *Driver) HandleBlockResponse(r wire.BlockResponse) error {
	txs := make([]wire.SignedMessage, 0, len(r.TxHashes))
	for _, h := range r.TxHashes {
		tx, ok := d.pool.Get(h)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTransactions, h)
		}
		txs = append(txs, tx)
	}
	if merkleListRootIDs(r.TxHashes) != r.Block.TxHash {
		return fmt.Errorf("consensus: block_response tx_hash mismatch at height %d", r.Block.Height)
	}
	objectHash := ids.ID(wire.EncodeBlockHash(r.Block))
	count := 0
	for _, c := range r.Precommits {
		if c.BlockHash == objectHash {
			count++
		}
	}
	if count < d.validators.MajorityCount() {
		return fmt.Errorf("consensus: block_response lacks a +2/3 precommit set at height %d", r.Block.Height)
	}

	f := storage.NewFork(d.db.Snapshot())
	res, err := d.exec.Execute(f, r.Block.Height, r.Block.PrevHash, txs)
	if err != nil {
		return fmt.Errorf("consensus: re-executing catch-up block: %w", err)
	}
	if err := d.db.Merge(f.IntoPatch()); err != nil {
		return fmt.Errorf("consensus: commit catch-up block: %w", err)
	}
	d.state.Height = res.Header.Height
	d.state.LastHash = objectHash
	d.state.resetHeightCaches()
	if d.explorer != nil {
		d.explorer.RecordBlock(res.Header.Height, res.TxOutcomes)
	}
	return nil
}

func proposeHash(p wire.Propose) ids.ID {
	return ids.ID(wire.EncodeProposeHash(p))
}

func merkleListRootIDs(hashes []ids.ID) ids.ID {
	return wire.MerkleListRootIDs(hashes)
}
