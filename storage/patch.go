package storage

// Patch is a set of changes across many index addresses, applied to a
// Database atomically. Applying a Patch to any snapshot that was its
// base yields a deterministic successor snapshot.
type Patch struct {
	changes map[string]*ViewChanges
	order   []string
}

// NewPatch returns an empty Patch.
func NewPatch() *Patch {
	return &Patch{changes: make(map[string]*ViewChanges)}
}

// addrKey returns the map key a Patch indexes an address's changes
// under: the address's raw backend-key prefix, not its display String
// — two addresses that print differently must never collide, and the
// prefix is also what MemDB (and any real backend) uses to assemble
// full backend keys on merge.
func addrKey(addr IndexAddress) string { return string(addr.Bytes()) }

// ChangesFor returns the ViewChanges recorded for addr, creating an
// empty one if none exists yet.
func (p *Patch) ChangesFor(addr IndexAddress) *ViewChanges {
	key := addrKey(addr)
	vc, ok := p.changes[key]
	if !ok {
		vc = NewViewChanges()
		p.changes[key] = vc
		p.order = append(p.order, key)
	}
	return vc
}

// Addresses returns the address prefixes (see addrKey) touched by
// this patch, in the order they were first touched.
func (p *Patch) Addresses() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Get reads a key as the patch would leave it, falling back to base
// for addresses/keys the patch does not touch.
func (p *Patch) Get(addr IndexAddress, key []byte, base Snapshot) ([]byte, bool) {
	v := p.View(addr, base)
	return v.Get(key)
}

// View returns a read-only View combining this patch's changes for
// addr with base.
func (p *Patch) View(addr IndexAddress, base Snapshot) *View {
	vc, ok := p.changes[addrKey(addr)]
	if !ok {
		vc = NewViewChanges()
	}
	return NewView(addr, base, vc, AccessReadOnly)
}

// patchSnapshot adapts a Patch layered on a base Snapshot into a
// Snapshot, so a Patch can itself be used as the base for a further
// Fork (checkpoint layering).
type patchSnapshot struct {
	patch *Patch
	base  Snapshot
}

// AsSnapshot returns a Snapshot reflecting base with this patch's
// changes applied, suitable for building a subsequent Fork on top.
func (p *Patch) AsSnapshot(base Snapshot) Snapshot {
	return &patchSnapshot{patch: p, base: base}
}

func (s *patchSnapshot) Get(addr IndexAddress, key []byte) ([]byte, bool) {
	return s.patch.View(addr, s.base).Get(key)
}

func (s *patchSnapshot) Iterator(addr IndexAddress, from []byte) Iterator {
	return s.patch.View(addr, s.base).IterFrom(from)
}
