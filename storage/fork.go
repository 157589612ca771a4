package storage

import "fmt"

// Fork is a mutable, checkpointed overlay on a snapshot: a list of
// flushed sub-patches (checkpoints) plus a mutable working layer.
// Exactly one Fork owns a given block-execution frame; Forks are
// never shared across tasks.
type Fork struct {
	base     Snapshot
	flushed  []*Patch
	head     *Patch
	borrowed map[string]bool
	pool     *Pool

	// aggregated holds one lazy object_hash resolver per Merkleized
	// index opened against this Fork, keyed by the index's full name.
	// Registered at Open time by OpenProofMap/OpenProofList; resolved
	// only when Aggregator.Sync walks it, so it always reflects the
	// Fork's state at sync time rather than whatever it was at Open.
	aggregated map[string]func() [32]byte
}

// NewFork returns a Fork over base with an empty working layer.
func NewFork(base Snapshot) *Fork {
	return &Fork{
		base:       base,
		head:       NewPatch(),
		borrowed:   make(map[string]bool),
		aggregated: make(map[string]func() [32]byte),
	}
}

// RegisterAggregated records hasher as the object_hash resolver for
// addr's full name, overwriting any prior registration for the same
// name. hasher must read the Fork's current state at call time, not
// capture a View obtained earlier — a Flush replaces the working
// layer out from under any View taken before it.
func (f *Fork) RegisterAggregated(addr IndexAddress, hasher func() [32]byte) {
	f.aggregated[addr.String()] = hasher
}

// readSnapshot returns a Snapshot reflecting base plus every flushed
// checkpoint (but not the still-open head), the view a ViewMut should
// read through.
func (f *Fork) readSnapshot() Snapshot {
	s := f.base
	for _, p := range f.flushed {
		s = p.AsSnapshot(s)
	}
	return s
}

// ViewMut returns an exclusive View over addr in the working layer.
// Fails with ErrBorrowConflict if an exclusive view on addr is already
// open within this Fork.
func (f *Fork) ViewMut(addr IndexAddress) (*View, error) {
	key := addrKey(addr)
	if f.borrowed[key] {
		return nil, fmt.Errorf("%w: %s", ErrBorrowConflict, addr)
	}
	f.borrowed[key] = true
	return NewView(addr, f.readSnapshot(), f.head.ChangesFor(addr), AccessExclusive), nil
}

// ReleaseMut releases an exclusive view previously obtained with
// ViewMut, permitting it to be reopened.
func (f *Fork) ReleaseMut(addr IndexAddress) {
	delete(f.borrowed, addrKey(addr))
}

// ViewShared returns a read-only View over addr, reading through the
// working layer and all flushed checkpoints. Any number of shared
// views may coexist.
func (f *Fork) ViewShared(addr IndexAddress) *View {
	return NewView(addr, f.readSnapshot(), f.head.ChangesFor(addr), AccessReadOnly)
}

// Flush promotes the working layer onto the checkpoint list and
// installs a fresh, empty head. Borrow locks are released, since the
// promoted layer is no longer mutable.
func (f *Fork) Flush() {
	f.flushed = append(f.flushed, f.head)
	f.head = NewPatch()
	f.borrowed = make(map[string]bool)
	f.pool = nil
}

// Rollback discards the working layer back to the last flush.
func (f *Fork) Rollback() {
	f.head = NewPatch()
	f.borrowed = make(map[string]bool)
	f.pool = nil
}

// IntoPatch merges every flushed checkpoint plus the current head into
// one Patch, last-write-wins in checkpoint order (later checkpoints,
// then the head, override earlier ones).
func (f *Fork) IntoPatch() *Patch {
	merged := NewPatch()
	apply := func(p *Patch) {
		for _, prefix := range p.order {
			dst := merged.changes[prefix]
			if dst == nil {
				dst = NewViewChanges()
				merged.changes[prefix] = dst
				merged.order = append(merged.order, prefix)
			}
			dst.Merge(p.changes[prefix])
		}
	}
	for _, p := range f.flushed {
		apply(p)
	}
	apply(f.head)
	return merged
}
