package storage

// Database is the backend KV contract (L0, an external collaborator):
// an ordered byte-keyed store offering atomic multi-key writes and
// consistent read snapshots.
type Database interface {
	// Snapshot returns a consistent read view of the current state.
	Snapshot() Snapshot
	// Merge atomically applies a Patch. Partial application is
	// forbidden: on error, no part of the patch is visible.
	Merge(p *Patch) error
}

// Snapshot is a consistent, read-only view of a Database at a point
// in time. It remains valid (and unaffected by later merges) for as
// long as the caller holds it.
type Snapshot interface {
	// Get returns the value stored for key under addr, and whether it
	// was present.
	Get(addr IndexAddress, key []byte) ([]byte, bool)
	// Iterator returns entries under addr with key >= from, in
	// ascending key order.
	Iterator(addr IndexAddress, from []byte) Iterator
}

// Iterator walks ordered key/value pairs. Call Next before the first
// Key/Value access; iteration ends when Next returns false.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
}
