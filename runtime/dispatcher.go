package runtime

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/luxfi/log"

	replicalog "github.com/meridian/replica/log"
	"github.com/meridian/replica/storage"
)

var registryAddress = storage.NewIndexAddress("__runtime_instances__")

func instanceKeyEnc(id uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, id)
	return b
}

func decodeInstanceKey(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func instanceCodec() storage.ValueCodec[InstanceRecord] {
	return storage.BinaryCodec[InstanceRecord]{
		EncodeFn: encodeInstanceRecord,
		DecodeFn: decodeInstanceRecord,
	}
}

// InstanceRecord is the persisted half of an instance's state — the
// part that must live and die with the Fork it was mutated under so
// speculative block execution rolls it back along with everything
// else. The corresponding Service Go value (the handler) is held
// separately by the Dispatcher, in-memory, because well-behaved
// services keep no mutable state outside the fork they are handed.
type InstanceRecord struct {
	Spec        InstanceSpec
	Status      InstanceStatus
	Migration   *MigrationState
	DataVersion string
}

// mailboxAction is a deferred dispatcher operation accumulated during
// a block and drained once all service hooks have run (spec §4.7
// step 4).
type mailboxAction struct {
	run func()
}

// Dispatcher holds the instance_id -> service registry and the
// artifact_id -> runtime (service factory) registry named in spec
// §4.5, plus the deploy mailbox of §4.7.
type Dispatcher struct {
	log      log.Logger
	runtimes map[ArtifactID]func() Service
	services map[uint32]Service
	names    map[string]uint32

	mailbox      []mailboxAction
	mailboxDepth int

	migrations map[uint32][]MigrationScript

	cacheFork *storage.Fork
	cacheReg  *storage.Map[uint32, InstanceRecord]
}

// NewDispatcher builds a Dispatcher. mailboxDepth bounds the number of
// deferred actions a single block may accumulate (spec's open
// question #3: defaults to 64, the spec's own suggested example).
func NewDispatcher(logger log.Logger, mailboxDepth int) *Dispatcher {
	if logger == nil {
		logger = replicalog.NewNoOpLogger()
	}
	if mailboxDepth <= 0 {
		mailboxDepth = 64
	}
	return &Dispatcher{
		log:          logger,
		runtimes:     make(map[ArtifactID]func() Service),
		services:     make(map[uint32]Service),
		names:        make(map[string]uint32),
		mailboxDepth: mailboxDepth,
		migrations:   make(map[uint32][]MigrationScript),
	}
}

// RegisterRuntime installs a service factory for artifact, modeling
// the runtime_handle side of the artifact_id -> runtime_handle
// registry. Real artifact loading (WASM, a plugin, …) is external; the
// factory stands in for "the runtime that knows how to build this
// artifact's service".
func (d *Dispatcher) RegisterRuntime(artifact ArtifactID, factory func() Service) {
	d.runtimes[artifact] = factory
}

// InvalidateCache forces the next registry access to reopen the
// registry Map. Callers that Flush or Rollback a Fork the dispatcher
// is also operating on — the block executor, chiefly — must call this
// afterward, since Flush/Rollback retire the Patch the cached Map's
// View was reading and writing through.
func (d *Dispatcher) InvalidateCache(f *storage.Fork) {
	if d.cacheFork == f {
		d.cacheFork = nil
		d.cacheReg = nil
	}
}

func (d *Dispatcher) registry(f *storage.Fork) (*storage.Map[uint32, InstanceRecord], error) {
	if d.cacheFork == f && d.cacheReg != nil {
		return d.cacheReg, nil
	}
	reg, err := storage.OpenMap[uint32, InstanceRecord](f, registryAddress, instanceKeyEnc, instanceCodec())
	if err != nil {
		return nil, err
	}
	d.cacheFork = f
	d.cacheReg = reg
	return reg, nil
}

// GetService resolves idOrName — a decimal instance_id or a
// previously registered service name — to its InstanceDescriptor.
func (d *Dispatcher) GetService(f *storage.Fork, idOrName string) (InstanceDescriptor, error) {
	id, err := strconv.ParseUint(idOrName, 10, 32)
	if err != nil {
		resolved, ok := d.names[idOrName]
		if !ok {
			return InstanceDescriptor{}, fmt.Errorf("%w: %s", ErrIncorrectInstanceId, idOrName)
		}
		id = uint64(resolved)
	}
	return d.getServiceByID(f, uint32(id))
}

func (d *Dispatcher) getServiceByID(f *storage.Fork, id uint32) (InstanceDescriptor, error) {
	reg, err := d.registry(f)
	if err != nil {
		return InstanceDescriptor{}, err
	}
	rec, ok := reg.Get(id)
	if !ok {
		return InstanceDescriptor{}, fmt.Errorf("%w: instance %d", ErrIncorrectInstanceId, id)
	}
	return InstanceDescriptor{Spec: rec.Spec, Status: rec.Status, Migration: rec.Migration, DataVersion: rec.DataVersion}, nil
}

// ActiveInstanceIDs returns the instance ids eligible for
// before/after_transactions hooks, in ascending order (spec §4.7's
// deterministic iteration order): only Active instances participate;
// Frozen, Stopped, and Migrating instances are skipped.
func (d *Dispatcher) ActiveInstanceIDs(f *storage.Fork) ([]uint32, error) {
	reg, err := d.registry(f)
	if err != nil {
		return nil, err
	}
	var ids []uint32
	for _, e := range reg.IterFrom(nil) {
		if e.Value.Status == StatusActive {
			ids = append(ids, decodeInstanceKey(e.KeyBytes))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DispatchCall is the top-level entry point the block executor uses
// to route one transaction to its service.
func (d *Dispatcher) DispatchCall(f *storage.Fork, caller Caller, txHash *[32]byte, instanceID uint32, interfaceName string, methodID uint32, payload []byte) ([]byte, error) {
	return d.dispatchCallAs(f, caller, txHash, 0, instanceID, interfaceName, methodID, payload)
}

func (d *Dispatcher) dispatchCallAs(f *storage.Fork, caller Caller, txHash *[32]byte, depth uint64, instanceID uint32, interfaceName string, methodID uint32, payload []byte) ([]byte, error) {
	if depth > maxCallStackDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrStackOverflow, depth)
	}

	desc, err := d.getServiceByID(f, instanceID)
	if err != nil {
		return nil, err
	}
	if desc.Status != StatusActive {
		return nil, fmt.Errorf("%w: instance %d is %s", ErrIncorrectInstanceId, instanceID, desc.Status)
	}
	svc, ok := d.services[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: instance %d has no loaded handler", ErrIncorrectRuntime, instanceID)
	}

	iface, ok := svc.Interfaces()[interfaceName]
	if !ok {
		return nil, fmt.Errorf("%w: interface %q on instance %d", ErrNoSuchMethod, interfaceName, instanceID)
	}
	handler, ok := iface.Methods[methodID]
	if !ok {
		if iface.Removed[methodID] {
			return nil, fmt.Errorf("%w: method %d on interface %q", ErrMethodRemoved, methodID, interfaceName)
		}
		return nil, fmt.Errorf("%w: method %d on interface %q", ErrNoSuchMethod, methodID, interfaceName)
	}

	ctx := &ExecutionContext{
		dispatcher:      d,
		fork:            f,
		Caller:          caller,
		Instance:        desc,
		InterfaceName:   interfaceName,
		TransactionHash: txHash,
		CallStackDepth:  depth,
	}
	return handler(ctx, payload)
}

// BeforeTransactions runs before_transactions on every active
// instance, in ascending instance_id order. A hook failure rolls back
// only that instance's own checkpoint; it does not abort the block
// (spec §4.7 step 1 / §7).
func (d *Dispatcher) BeforeTransactions(f *storage.Fork) map[uint32]error {
	return d.runHook(f, func(s Service, ctx *ExecutionContext) error { return s.BeforeTransactions(ctx) })
}

// AfterTransactions runs after_transactions on every active instance,
// in ascending instance_id order (spec §4.7 step 3, and the genesis
// special case of open question #2).
func (d *Dispatcher) AfterTransactions(f *storage.Fork) map[uint32]error {
	return d.runHook(f, func(s Service, ctx *ExecutionContext) error { return s.AfterTransactions(ctx) })
}

func (d *Dispatcher) runHook(f *storage.Fork, call func(Service, *ExecutionContext) error) map[uint32]error {
	errs := make(map[uint32]error)
	ids, err := d.ActiveInstanceIDs(f)
	if err != nil {
		errs[0] = err
		return errs
	}
	for _, id := range ids {
		desc, err := d.getServiceByID(f, id)
		if err != nil {
			errs[id] = err
			continue
		}
		svc := d.services[id]
		if svc == nil {
			continue
		}
		ctx := &ExecutionContext{
			dispatcher: d,
			fork:       f,
			Caller:     BlockchainCaller(),
			Instance:   desc,
		}
		// Each hook gets its own checkpoint: a failure rolls the hook's
		// own writes back to the prior flush without disturbing the
		// checkpoints earlier hooks already committed (spec §4.7/§7).
		if err := call(svc, ctx); err != nil {
			f.Rollback()
			d.InvalidateCache(f)
			errs[id] = err
			continue
		}
		f.Flush()
		d.InvalidateCache(f)
	}
	return errs
}

// deferAction enqueues a mailbox action, returning ErrMailboxFull once
// mailboxDepth deferred actions are already pending.
func (d *Dispatcher) deferAction(run func()) error {
	if len(d.mailbox) >= d.mailboxDepth {
		return ErrMailboxFull
	}
	d.mailbox = append(d.mailbox, mailboxAction{run: run})
	return nil
}

// DrainMailbox executes and clears every deferred action accumulated
// during the block (spec §4.7 step 4). Actions must not themselves
// enqueue further transactions for this block; they may only enqueue
// further mailbox actions for a later block.
func (d *Dispatcher) DrainMailbox() {
	pending := d.mailbox
	d.mailbox = nil
	for _, a := range pending {
		a.run()
	}
}

// StartDeploy asynchronously validates that a runtime is registered
// for artifact via the mailbox, invoking then once drained.
func (d *Dispatcher) StartDeploy(artifact ArtifactID, spec InstanceSpec, then func(error)) {
	err := d.deferAction(func() {
		if _, ok := d.runtimes[artifact]; !ok {
			if then != nil {
				then(fmt.Errorf("%w: %s", ErrUnknownArtifact, artifact))
			}
			return
		}
		if then != nil {
			then(nil)
		}
	})
	if err != nil && then != nil {
		then(err)
	}
}

// CommitArtifact blockingly registers spec as a new Active instance of
// artifact, once the caller (ordinarily reached only after every
// validator has confirmed deploy) decides to finalize it.
func (d *Dispatcher) CommitArtifact(f *storage.Fork, artifact ArtifactID, spec InstanceSpec) error {
	factory, ok := d.runtimes[artifact]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArtifact, artifact)
	}
	return d.InitiateAddingService(f, spec, factory())
}

// InitiateAddingService registers svc under spec as Active, persisting
// its InstanceRecord into the fork-scoped registry and caching the
// stateless handler in memory.
func (d *Dispatcher) InitiateAddingService(f *storage.Fork, spec InstanceSpec, svc Service) error {
	reg, err := d.registry(f)
	if err != nil {
		return err
	}
	if _, exists := reg.Get(spec.InstanceID); exists {
		return fmt.Errorf("%w: instance %d already registered", ErrIncorrectInstanceId, spec.InstanceID)
	}
	reg.Put(spec.InstanceID, InstanceRecord{Spec: spec, Status: StatusActive})
	d.services[spec.InstanceID] = svc
	d.names[spec.Name] = spec.InstanceID

	ctx := &ExecutionContext{dispatcher: d, fork: f, Caller: BlockchainCaller(), Instance: InstanceDescriptor{Spec: spec, Status: StatusActive}}
	return svc.Initialize(ctx)
}

func (d *Dispatcher) setStatus(f *storage.Fork, instanceID uint32, mutate func(*InstanceRecord) error) error {
	reg, err := d.registry(f)
	if err != nil {
		return err
	}
	rec, ok := reg.Get(instanceID)
	if !ok {
		return fmt.Errorf("%w: instance %d", ErrIncorrectInstanceId, instanceID)
	}
	if err := mutate(&rec); err != nil {
		return err
	}
	reg.Put(instanceID, rec)
	return nil
}

func (d *Dispatcher) InitiateStoppingService(f *storage.Fork, instanceID uint32) error {
	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		r.Status = StatusStopped
		return nil
	})
}

func (d *Dispatcher) InitiateFreezingService(f *storage.Fork, instanceID uint32) error {
	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		r.Status = StatusFrozen
		return nil
	})
}

func (d *Dispatcher) InitiateResumingService(f *storage.Fork, instanceID uint32) error {
	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		if r.Status == StatusMigrating {
			return fmt.Errorf("%w: instance %d is migrating", ErrCannotResumeService, instanceID)
		}
		r.Status = StatusActive
		return nil
	})
}
