package runtime

// Handler is a single dispatchable method on a service.
type Handler func(ctx *ExecutionContext, args []byte) ([]byte, error)

// Interface groups the methods reachable under one interface_name.
// Removed records method IDs that once existed and were dropped, so
// dispatch can distinguish ErrMethodRemoved from ErrNoSuchMethod per
// the taxonomy (see SPEC_FULL.md §9 open question 1: adding new method IDs
// to an existing interface version never requires bumping it).
type Interface struct {
	Methods map[uint32]Handler
	Removed map[uint32]bool
}

// NewInterface builds an empty Interface ready for method registration.
func NewInterface() *Interface {
	return &Interface{
		Methods: make(map[uint32]Handler),
		Removed: make(map[uint32]bool),
	}
}

// On registers methodID under this interface.
func (i *Interface) On(methodID uint32, h Handler) *Interface {
	i.Methods[methodID] = h
	return i
}

// Remove tombstones a previously registered method ID.
func (i *Interface) Remove(methodID uint32) *Interface {
	delete(i.Methods, methodID)
	i.Removed[methodID] = true
	return i
}

// Service is the artifact-level behavior the dispatcher drives. The
// empty string names the reserved primary interface (spec §4.5).
type Service interface {
	Initialize(ctx *ExecutionContext) error
	BeforeTransactions(ctx *ExecutionContext) error
	AfterTransactions(ctx *ExecutionContext) error
	Interfaces() map[string]*Interface
}

// BaseService supplies no-op hook defaults so concrete services only
// implement the methods they need, mirroring the optional-hook shape
// services take in spec §4.5/§4.7.
type BaseService struct {
	Ifaces map[string]*Interface
}

func (b *BaseService) Initialize(*ExecutionContext) error         { return nil }
func (b *BaseService) BeforeTransactions(*ExecutionContext) error { return nil }
func (b *BaseService) AfterTransactions(*ExecutionContext) error  { return nil }
func (b *BaseService) Interfaces() map[string]*Interface          { return b.Ifaces }
