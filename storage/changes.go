package storage

import "sort"

// changeKind tags a pending mutation to a key.
type changeKind uint8

const (
	changePut changeKind = iota
	changeDelete
)

// Change is a pending mutation to a single key: either Put(value) or
// Delete.
type Change struct {
	kind  changeKind
	value []byte
}

// PutChange returns a Change that writes value.
func PutChange(value []byte) Change { return Change{kind: changePut, value: value} }

// DeleteChange returns a Change that removes a key.
func DeleteChange() Change { return Change{kind: changeDelete} }

// IsDelete reports whether the change removes the key.
func (c Change) IsDelete() bool { return c.kind == changeDelete }

// Value returns the change's payload; valid only when !IsDelete().
func (c Change) Value() []byte { return c.value }

// ViewChanges is the pending-changes half of a View: an ordered
// mapping from key bytes to Change, plus a cleared flag that
// suppresses snapshot reads until new Puts land, and an optional
// aggregation namespace naming the Merkleized-index group this view
// belongs to.
type ViewChanges struct {
	keys                 []string
	data                 map[string]Change
	cleared              bool
	aggregationNamespace *string
}

// NewViewChanges returns an empty ViewChanges.
func NewViewChanges() *ViewChanges {
	return &ViewChanges{data: make(map[string]Change)}
}

// SetAggregationNamespace records the namespace this view's owning
// index registers its object_hash under in the state aggregator.
func (vc *ViewChanges) SetAggregationNamespace(ns string) {
	vc.aggregationNamespace = &ns
}

// AggregationNamespace returns the namespace, if any.
func (vc *ViewChanges) AggregationNamespace() (string, bool) {
	if vc.aggregationNamespace == nil {
		return "", false
	}
	return *vc.aggregationNamespace, true
}

// Cleared reports whether Clear has been called since the last
// Put.
func (vc *ViewChanges) Cleared() bool { return vc.cleared }

func (vc *ViewChanges) insertKey(k string) {
	i := sort.SearchStrings(vc.keys, k)
	if i < len(vc.keys) && vc.keys[i] == k {
		return
	}
	vc.keys = append(vc.keys, "")
	copy(vc.keys[i+1:], vc.keys[i:])
	vc.keys[i] = k
}

// Put records a Put(value) change for key.
func (vc *ViewChanges) Put(key, value []byte) {
	k := string(key)
	if _, exists := vc.data[k]; !exists {
		vc.insertKey(k)
	}
	vc.data[k] = PutChange(value)
}

// Delete records a Delete change for key.
func (vc *ViewChanges) Delete(key []byte) {
	k := string(key)
	if _, exists := vc.data[k]; !exists {
		vc.insertKey(k)
	}
	vc.data[k] = DeleteChange()
}

// Get returns the recorded change for key, if any.
func (vc *ViewChanges) Get(key []byte) (Change, bool) {
	c, ok := vc.data[string(key)]
	return c, ok
}

// Clear sets cleared and drops all pending changes.
func (vc *ViewChanges) Clear() {
	vc.cleared = true
	vc.keys = nil
	vc.data = make(map[string]Change)
}

// Len returns the number of distinct keys with a pending change.
func (vc *ViewChanges) Len() int { return len(vc.keys) }

// iterFrom returns the keys of the pending changes with key >= from,
// in ascending order.
func (vc *ViewChanges) iterFrom(from []byte) []string {
	start := sort.SearchStrings(vc.keys, string(from))
	return vc.keys[start:]
}

// Merge applies other on top of vc: other's changes (and cleared
// flag) take precedence, matching last-write-wins merge order used by
// Fork.IntoPatch.
func (vc *ViewChanges) Merge(other *ViewChanges) {
	if other.cleared {
		vc.Clear()
	}
	for _, k := range other.keys {
		c := other.data[k]
		if _, exists := vc.data[k]; !exists {
			vc.insertKey(k)
		}
		vc.data[k] = c
	}
}
