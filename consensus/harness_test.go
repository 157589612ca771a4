package consensus

import (
	"crypto/ed25519"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/meridian/replica/blockexec"
	"github.com/meridian/replica/choices"
	"github.com/meridian/replica/explorer"
	"github.com/meridian/replica/runtime"
	"github.com/meridian/replica/storage"
	"github.com/meridian/replica/validators"
	"github.com/meridian/replica/wire"
)

// memPool is a TxPool that never forgets a transaction once Put,
// standing in for a real mempool across this package's tests.
type memPool struct{ txs map[ids.ID]wire.SignedMessage }

func newMemPool() *memPool { return &memPool{txs: make(map[ids.ID]wire.SignedMessage)} }

func (p *memPool) Get(h ids.ID) (wire.SignedMessage, bool) { tx, ok := p.txs[h]; return tx, ok }
func (p *memPool) Put(tx wire.SignedMessage)               { p.txs[tx.ObjectHash()] = tx }
func (p *memPool) Contains(h ids.ID) bool                  { _, ok := p.txs[h]; return ok }

// net fans out Broadcast/SendTo to every registered driver's Handle*
// methods synchronously, simulating an instantaneous, reliable network
// for test purposes.
type net struct {
	self    ids.NodeID
	drivers map[ids.NodeID]*Driver
}

func (n *net) deliver(to ids.NodeID, sm wire.SignedMessage) {
	d, ok := n.drivers[to]
	if !ok {
		return
	}
	kind, err := wire.PayloadKind(sm.Payload)
	if err != nil {
		return
	}
	switch kind {
	case wire.KindPropose:
		p, err := wire.DecodePropose(sm.Payload)
		if err == nil {
			_ = d.HandlePropose(p)
		}
	case wire.KindPrevote:
		v, err := wire.DecodePrevote(sm.Payload)
		if err == nil {
			_ = d.HandlePrevote(v)
		}
	case wire.KindPrecommit:
		c, err := wire.DecodePrecommit(sm.Payload)
		if err == nil {
			_ = d.HandlePrecommit(c)
		}
	case wire.KindStatus:
		s, err := wire.DecodeStatus(sm.Payload)
		if err == nil {
			d.HandleStatus(n.self, s)
		}
	case wire.KindBlockRequest:
		// not exercised via broadcast in these tests
	case wire.KindBlockResponse:
		r, err := wire.DecodeBlockResponse(sm.Payload)
		if err == nil {
			_ = d.HandleBlockResponse(r)
		}
	}
}

func (n *net) Broadcast(sm wire.SignedMessage) {
	for id := range n.drivers {
		if id == n.self {
			continue
		}
		n.deliver(id, sm)
	}
}

func (n *net) SendTo(peer ids.NodeID, sm wire.SignedMessage) { n.deliver(peer, sm) }

func (n *net) Peers() []ids.NodeID {
	out := make([]ids.NodeID, 0, len(n.drivers))
	for id := range n.drivers {
		if id != n.self {
			out = append(out, id)
		}
	}
	return out
}

// counterService exposes a single increment method, used as the
// transaction body in the commit-path tests below.
type counterService struct{ runtime.BaseService }

var counterAddr = storage.NewIndexAddress("consensus_test.counter")

func counterCodec() storage.ValueCodec[uint64] {
	return storage.BinaryCodec[uint64]{
		EncodeFn: func(v uint64) []byte {
			b := make([]byte, 8)
			for i := 0; i < 8; i++ {
				b[7-i] = byte(v >> (8 * i))
			}
			return b
		},
		DecodeFn: func(b []byte) (uint64, error) {
			var v uint64
			for _, c := range b {
				v = v<<8 | uint64(c)
			}
			return v, nil
		},
	}
}

func newCounterService() runtime.Service {
	s := &counterService{}
	iface := runtime.NewInterface().On(1, func(ctx *runtime.ExecutionContext, args []byte) ([]byte, error) {
		e, err := storage.OpenEntry[uint64](ctx.Data(), counterAddr, counterCodec())
		if err != nil {
			return nil, err
		}
		cur, _ := e.Get()
		e.Set(cur + 1)
		return nil, nil
	})
	s.Ifaces = map[string]*runtime.Interface{"": iface}
	return s
}

// harness builds n replicas sharing a validator set, each with its own
// storage backend, dispatcher, executor, driver and tx pool, wired
// together through a shared net.
type harness struct {
	vs      *validators.Set
	keys    map[ids.NodeID]ed25519.PrivateKey
	nodeIDs []ids.NodeID
	drivers map[ids.NodeID]*Driver
	dbs     map[ids.NodeID]storage.Database
	pools   map[ids.NodeID]*memPool
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	h := &harness{
		keys:    make(map[ids.NodeID]ed25519.PrivateKey),
		drivers: make(map[ids.NodeID]*Driver),
		dbs:     make(map[ids.NodeID]storage.Database),
		pools:   make(map[ids.NodeID]*memPool),
	}
	var vlist []validators.Validator
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		var nodeID ids.NodeID
		copy(nodeID[:], pub)
		h.nodeIDs = append(h.nodeIDs, nodeID)
		h.keys[nodeID] = priv
		vlist = append(vlist, validators.Validator{NodeID: nodeID, PublicKey: pub})
	}
	vs, err := validators.NewSet(vlist)
	require.NoError(t, err)
	h.vs = vs

	for _, id := range h.nodeIDs {
		db := storage.NewMemDB()
		h.dbs[id] = db
		f := storage.NewFork(db.Snapshot())
		d := runtime.NewDispatcher(nil, 0)
		require.NoError(t, d.InitiateAddingService(f, runtime.InstanceSpec{ArtifactID: "counter@0.1.0", InstanceID: 1, Name: "counter"}, newCounterService()))
		exec := blockexec.NewExecutor(d, nil)
		genesis, err := exec.ExecuteGenesis(f)
		require.NoError(t, err)
		require.NoError(t, db.Merge(f.IntoPatch()))

		h.pools[id] = newMemPool()
		genesisHash := wire.EncodeBlockHash(genesis.Header)
		driver := NewDriver(nil, id, h.keys[id], vs, genesisHash, db, exec, nil, h.pools[id])
		h.drivers[id] = driver
	}
	for _, id := range h.nodeIDs {
		h.drivers[id] = h.withNetwork(id)
	}
	return h
}

// withNetwork rebuilds a driver with its net wired to the full set,
// since NewDriver needs the Network up front and the full set of
// drivers does not exist until all are constructed.
func (h *harness) withNetwork(id ids.NodeID) *Driver {
	d := h.drivers[id]
	d.net = &net{self: id, drivers: h.drivers}
	return d
}

func (h *harness) putTxEverywhere(tx wire.SignedMessage) {
	for _, p := range h.pools {
		p.Put(tx)
	}
}

func TestProposePrevotePrecommitCommitsABlock(t *testing.T) {
	h := newHarness(t, 4)

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx := wire.Sign(priv, wire.EncodeTx(wire.AnyTx{Call: wire.CallInfo{InstanceID: 1, MethodID: 1}}))
	h.putTxEverywhere(tx)

	leader := h.drivers[h.vs.Leader(0, 1).NodeID]
	// Every driver starts at round 0; the round-1 leader's RoundTimeout
	// moves only its own Round to 1 and proposes there, under the
	// deterministic (epoch+round)%N rotation. The other nodes stay at
	// round 0 when the propose lands.
	for _, d := range h.drivers {
		d.state.Round = 0
	}
	require.NoError(t, leader.RoundTimeout([]ids.ID{tx.ObjectHash()}))

	for _, d := range h.drivers {
		require.Equal(t, uint64(1), d.state.Height, "node %x should have committed height 1", d.self)
	}

	for id, db := range h.dbs {
		f := storage.NewFork(db.Snapshot())
		e, err := storage.OpenEntry[uint64](f, counterAddr, counterCodec())
		require.NoError(t, err)
		v, ok := e.Get()
		require.True(t, ok)
		require.Equal(t, uint64(1), v, "node %x counter", id)
	}
}

func TestCommitRecordsTransactionInExplorer(t *testing.T) {
	h := newHarness(t, 4)

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx := wire.Sign(priv, wire.EncodeTx(wire.AnyTx{Call: wire.CallInfo{InstanceID: 1, MethodID: 1}}))
	h.putTxEverywhere(tx)

	idx := explorer.NewIndex()
	leader := h.drivers[h.vs.Leader(0, 1).NodeID]
	leader.WithExplorer(idx)
	for _, d := range h.drivers {
		d.state.Round = 0
	}
	require.NoError(t, leader.RoundTimeout([]ids.ID{tx.ObjectHash()}))

	exp := explorer.New(idx, h.pools[leader.self])
	status := exp.Query(tx.ObjectHash())
	require.Equal(t, explorer.Committed, status.Kind)
	require.Equal(t, uint64(1), status.Height)
	require.Equal(t, choices.Accepted, status.Status)
}

func TestSelfEquivocationPanics(t *testing.T) {
	h := newHarness(t, 4)
	self := h.nodeIDs[0]
	d := h.drivers[self]

	p1 := wire.Propose{Validator: d.state.Leader(h.vs, 1).NodeID, Epoch: 0, Round: 1, PrevHash: d.state.LastHash}
	hash1 := proposeHash(p1)
	d.state.Proposes[hash1] = p1
	require.NoError(t, d.sendPrevote(1, hash1))

	var otherHash ids.ID
	otherHash[0] = 0xFF

	require.Panics(t, func() {
		_ = d.sendPrevote(1, otherHash)
	})
}

func TestHandleStatusRequestsCatchUpBlock(t *testing.T) {
	h := newHarness(t, 2)
	a, b := h.drivers[h.nodeIDs[0]], h.drivers[h.nodeIDs[1]]
	b.state.Height = 5

	var sent *wire.BlockRequest
	a.net = fakeCaptureNet{sendTo: func(peer ids.NodeID, sm wire.SignedMessage) {
		r, err := wire.DecodeBlockRequest(sm.Payload)
		require.NoError(t, err)
		sent = &r
	}}
	a.HandleStatus(b.self, wire.Status{BlockchainHeight: 5, LastHash: b.state.LastHash})
	require.NotNil(t, sent)
	require.Equal(t, uint64(1), sent.Height)
}

// TestHandleBlockResponseAppliesCatchUpBlock covers the receiving half
// of spec §8 scenario 6 that TestHandleStatusRequestsCatchUpBlock
// leaves untested: a node that witnessed none of a round still
// advances its height and last_hash once it is handed a block backed
// by a +2/3 precommit set, exactly as a lagging validator does on
// reconnect.
func TestHandleBlockResponseAppliesCatchUpBlock(t *testing.T) {
	h := newHarness(t, 4)
	a := h.drivers[h.nodeIDs[0]]

	f := storage.NewFork(a.db.Snapshot())
	res, err := a.exec.Execute(f, 1, a.state.LastHash, nil)
	require.NoError(t, err)
	header := res.Header
	blockHash := ids.ID(wire.EncodeBlockHash(header))

	var precommits []wire.Precommit
	for _, id := range h.nodeIDs {
		if id == a.self {
			continue
		}
		precommits = append(precommits, wire.Precommit{Validator: id, Round: 1, BlockHash: blockHash})
	}
	require.GreaterOrEqual(t, len(precommits), h.vs.MajorityCount())

	require.NoError(t, a.HandleBlockResponse(wire.BlockResponse{Block: header, Precommits: precommits}))
	require.Equal(t, uint64(1), a.state.Height)
	require.Equal(t, blockHash, a.state.LastHash)
}

type fakeCaptureNet struct {
	sendTo func(ids.NodeID, wire.SignedMessage)
}

func (f fakeCaptureNet) Broadcast(wire.SignedMessage)            {}
func (f fakeCaptureNet) SendTo(p ids.NodeID, sm wire.SignedMessage) { f.sendTo(p, sm) }
func (f fakeCaptureNet) Peers() []ids.NodeID                     { return nil }
