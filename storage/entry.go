package storage

// Entry holds a single optional value at a fixed key.
type Entry[V any] struct {
	view  *View
	codec ValueCodec[V]
}

var entryKey = []byte{0}

// OpenEntry binds addr as an Entry[V].
func OpenEntry[V any](f *Fork, addr IndexAddress, codec ValueCodec[V]) (*Entry[V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Bind(addr, IndexTypeEntry); err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	return &Entry[V]{view: v, codec: codec}, nil
}

// Get returns the stored value, if any.
func (e *Entry[V]) Get() (v V, ok bool) {
	raw, found := e.view.Get(entryKey)
	if !found {
		return v, false
	}
	decoded, err := e.codec.Decode(raw)
	if err != nil {
		return v, false
	}
	return decoded, true
}

// Set stores value.
func (e *Entry[V]) Set(value V) {
	e.view.Put(entryKey, e.codec.Encode(value))
}

// Remove clears the stored value.
func (e *Entry[V]) Remove() {
	e.view.Remove(entryKey)
}
