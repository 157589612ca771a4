package storage

import "bytes"

// AccessMode controls whether a View permits mutation.
type AccessMode int

const (
	// AccessReadOnly views may only read.
	AccessReadOnly AccessMode = iota
	// AccessShared views are immutable borrows; multiple may coexist.
	AccessShared
	// AccessExclusive views may mutate; at most one may be open per
	// address within a Fork.
	AccessExclusive
)

// View binds a resolved address to a (snapshot, pending-changes) pair.
// It is the read-through/write-buffered accessor every typed index is
// built on.
type View struct {
	addr     IndexAddress
	snapshot Snapshot
	changes  *ViewChanges
	mode     AccessMode
}

// NewView returns a View over addr, backed by snapshot, buffering
// mutations into changes.
func NewView(addr IndexAddress, snapshot Snapshot, changes *ViewChanges, mode AccessMode) *View {
	return &View{addr: addr, snapshot: snapshot, changes: changes, mode: mode}
}

// Address returns the view's resolved address.
func (v *View) Address() IndexAddress { return v.addr }

// Get consults pending changes first; a Put returns its value, a
// Delete returns not-found. Otherwise, if the view was cleared, it
// returns not-found; else it reads through to the snapshot.
func (v *View) Get(key []byte) ([]byte, bool) {
	if c, ok := v.changes.Get(key); ok {
		if c.IsDelete() {
			return nil, false
		}
		return c.Value(), true
	}
	if v.changes.Cleared() {
		return nil, false
	}
	if v.snapshot == nil {
		return nil, false
	}
	return v.snapshot.Get(v.addr, key)
}

// Put buffers a write. Panics if the view is not exclusive.
func (v *View) Put(key, value []byte) {
	v.requireExclusive()
	v.changes.Put(key, value)
}

// Remove buffers a delete. Panics if the view is not exclusive.
func (v *View) Remove(key []byte) {
	v.requireExclusive()
	v.changes.Delete(key)
}

// Clear marks the view cleared: pending changes are dropped and
// future snapshot reads are masked until new Puts land. Panics if the
// view is not exclusive.
func (v *View) Clear() {
	v.requireExclusive()
	v.changes.Clear()
}

func (v *View) requireExclusive() {
	if v.mode != AccessExclusive {
		panic(ErrReadOnlyView)
	}
}

// SetAggregationNamespace records the Merkleized-index namespace this
// view's changes are published under.
func (v *View) SetAggregationNamespace(ns string) {
	v.changes.SetAggregationNamespace(ns)
}

// entry is one key/value pair yielded by IterFrom.
type entry struct {
	key   []byte
	value []byte
}

// ViewIterator walks the merged ordered view of snapshot entries and
// pending changes, in ascending key order, honoring deletes and the
// cleared flag.
type ViewIterator struct {
	entries []entry
	pos     int
}

// Next advances to the next entry; returns false when exhausted.
func (it *ViewIterator) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

// Key returns the current entry's key.
func (it *ViewIterator) Key() []byte { return it.entries[it.pos].key }

// Value returns the current entry's value.
func (it *ViewIterator) Value() []byte { return it.entries[it.pos].value }

// IterFrom returns an iterator over entries with key >= from. Pending
// changes win over snapshot entries with the same key; Deletes
// suppress the key entirely; if the view is cleared, the snapshot half
// is skipped.
func (v *View) IterFrom(from []byte) *ViewIterator {
	pendingKeys := v.changes.iterFrom(from)

	var snapIter Iterator
	if !v.changes.Cleared() && v.snapshot != nil {
		snapIter = v.snapshot.Iterator(v.addr, from)
	}

	out := make([]entry, 0, len(pendingKeys))
	pi := 0
	var snapKey, snapValue []byte
	snapValid := false
	advanceSnap := func() {
		snapValid = snapIter != nil && snapIter.Next()
		if snapValid {
			snapKey = snapIter.Key()
			snapValue = snapIter.Value()
		}
	}
	advanceSnap()

	for {
		var pendingKey string
		pendingHas := pi < len(pendingKeys)
		if pendingHas {
			pendingKey = pendingKeys[pi]
		}

		switch {
		case !pendingHas && !snapValid:
			return &ViewIterator{entries: out, pos: -1}
		case pendingHas && (!snapValid || pendingKey < string(snapKey)):
			c := v.changes.data[pendingKey]
			if !c.IsDelete() {
				out = append(out, entry{key: []byte(pendingKey), value: c.Value()})
			}
			pi++
		case !pendingHas || string(snapKey) < pendingKey:
			out = append(out, entry{key: append([]byte(nil), snapKey...), value: append([]byte(nil), snapValue...)})
			advanceSnap()
		default: // equal keys: pending wins, snapshot entry is dropped
			c := v.changes.data[pendingKey]
			if !c.IsDelete() {
				out = append(out, entry{key: []byte(pendingKey), value: c.Value()})
			}
			pi++
			advanceSnap()
		}
	}
}

// hasPrefix reports whether key begins with prefix; used by callers
// validating that an iterator never escapes its address scope.
func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
