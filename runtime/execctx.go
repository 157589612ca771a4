package runtime

import (
	"fmt"

	"github.com/meridian/replica/storage"
)

const maxCallStackDepth = 128

// CallerKind discriminates the ExecutionContext.Caller variants.
type CallerKind uint8

const (
	CallerTransaction CallerKind = iota
	CallerService
	CallerBlockchain
)

// Caller is the closed union spec §4.6 names: Transaction{author},
// Service{instance_id}, or Blockchain (before/after_transactions,
// genesis, migration scripts).
type Caller struct {
	Kind       CallerKind
	Author     []byte // ed25519 public key, set iff Kind == CallerTransaction
	InstanceID uint32 // set iff Kind == CallerService
}

func TransactionCaller(author []byte) Caller {
	return Caller{Kind: CallerTransaction, Author: author}
}

func ServiceCaller(instanceID uint32) Caller {
	return Caller{Kind: CallerService, InstanceID: instanceID}
}

func BlockchainCaller() Caller {
	return Caller{Kind: CallerBlockchain}
}

// ExecutionContext is created fresh per top-level call (a
// transaction, a before/after_transactions hook, a service
// constructor, or an intra-service call) and threaded explicitly down
// through make_child_call rather than carried in a global.
type ExecutionContext struct {
	dispatcher        *Dispatcher
	fork              *storage.Fork
	Caller            Caller
	Instance          InstanceDescriptor
	InterfaceName     string
	TransactionHash   *[32]byte
	CallStackDepth    uint64
	hasChildCallError bool
}

// Data returns the instance-scoped storage fork, panicking if a
// descendant call errored and this frame never bubbled it up as its
// own return value — the "poisoned after failed child call" rule.
func (ctx *ExecutionContext) Data() *storage.Fork {
	if ctx.hasChildCallError {
		panic("runtime: ExecutionContext.Data() called after an unhandled child call error")
	}
	return ctx.fork
}

// HasChildCallError reports whether a call made via MakeChildCall
// from this frame returned an error.
func (ctx *ExecutionContext) HasChildCallError() bool {
	return ctx.hasChildCallError
}

// MakeChildCall descends one level in the call stack to invoke
// (target, interfaceName, methodID) with args. fallthroughAuth
// controls whether the child inherits this frame's Caller verbatim or
// is attributed to this instance acting as a Service caller.
func (ctx *ExecutionContext) MakeChildCall(target uint32, interfaceName string, methodID uint32, args []byte, fallthroughAuth bool) ([]byte, error) {
	if ctx.CallStackDepth+1 > maxCallStackDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrStackOverflow, ctx.CallStackDepth+1)
	}

	caller := ServiceCaller(ctx.Instance.Spec.InstanceID)
	if fallthroughAuth {
		caller = ctx.Caller
	}

	out, err := ctx.dispatcher.dispatchCallAs(ctx.fork, caller, ctx.TransactionHash, ctx.CallStackDepth+1, target, interfaceName, methodID, args)
	if err != nil {
		ctx.hasChildCallError = true
		return nil, fmt.Errorf("call to instance %d method (%s,%d): %w", target, interfaceName, methodID, err)
	}
	return out, nil
}

// SupervisorExtensions is the restricted façade available only to the
// reserved supervisor instance; it panics for any other caller so a
// service can never reach it by accident.
func (ctx *ExecutionContext) SupervisorExtensions() *SupervisorFacade {
	if ctx.Instance.Spec.InstanceID != SUPERVISORInstanceID {
		panic("runtime: supervisor_extensions() called outside the supervisor instance")
	}
	return &SupervisorFacade{dispatcher: ctx.dispatcher, fork: ctx.fork}
}

// SupervisorFacade wraps dispatcher lifecycle/migration operations so
// only the supervisor instance's handlers can drive them.
type SupervisorFacade struct {
	dispatcher *Dispatcher
	fork       *storage.Fork
}

func (s *SupervisorFacade) StartDeploy(artifact ArtifactID, spec InstanceSpec, then func(error)) {
	s.dispatcher.StartDeploy(artifact, spec, then)
}

func (s *SupervisorFacade) CommitArtifact(artifact ArtifactID, spec InstanceSpec) error {
	return s.dispatcher.CommitArtifact(s.fork, artifact, spec)
}

func (s *SupervisorFacade) InitiateAddingService(spec InstanceSpec, svc Service) error {
	return s.dispatcher.InitiateAddingService(s.fork, spec, svc)
}

func (s *SupervisorFacade) InitiateStoppingService(instanceID uint32) error {
	return s.dispatcher.InitiateStoppingService(s.fork, instanceID)
}

func (s *SupervisorFacade) InitiateFreezingService(instanceID uint32) error {
	return s.dispatcher.InitiateFreezingService(s.fork, instanceID)
}

func (s *SupervisorFacade) InitiateResumingService(instanceID uint32) error {
	return s.dispatcher.InitiateResumingService(s.fork, instanceID)
}

func (s *SupervisorFacade) InitiateMigration(instanceID uint32, target ArtifactID, endVersion string, scripts []MigrationScript) error {
	return s.dispatcher.InitiateMigration(s.fork, instanceID, target, endVersion, scripts)
}

func (s *SupervisorFacade) CommitMigration(instanceID uint32, hash [32]byte) error {
	return s.dispatcher.CommitMigration(s.fork, instanceID, hash)
}

func (s *SupervisorFacade) FlushMigration(instanceID uint32) error {
	return s.dispatcher.FlushMigration(s.fork, instanceID)
}

func (s *SupervisorFacade) RollbackMigration(instanceID uint32) error {
	return s.dispatcher.RollbackMigration(s.fork, instanceID)
}
