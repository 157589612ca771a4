package storage

// KeySet is a set of K, keyed by its own encoding (no stored value).
type KeySet[K any] struct {
	view   *View
	keyEnc func(K) []byte
}

// OpenKeySet binds addr as a KeySet[K].
func OpenKeySet[K any](f *Fork, addr IndexAddress, keyEnc func(K) []byte) (*KeySet[K], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Bind(addr, IndexTypeKeySet); err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	return &KeySet[K]{view: v, keyEnc: keyEnc}, nil
}

// Contains reports whether key is a member.
func (s *KeySet[K]) Contains(key K) bool {
	_, ok := s.view.Get(s.keyEnc(key))
	return ok
}

// Add inserts key.
func (s *KeySet[K]) Add(key K) {
	s.view.Put(s.keyEnc(key), []byte{1})
}

// Remove deletes key.
func (s *KeySet[K]) Remove(key K) {
	s.view.Remove(s.keyEnc(key))
}

// Keys returns every member's encoded key, in ascending order.
func (s *KeySet[K]) Keys() [][]byte {
	it := s.view.IterFrom(nil)
	var out [][]byte
	for it.Next() {
		out = append(out, append([]byte(nil), it.Key()...))
	}
	return out
}

// ValueSet is a set of V, keyed by the codec's encoding of the value
// itself.
type ValueSet[V any] struct {
	view  *View
	codec ValueCodec[V]
}

// OpenValueSet binds addr as a ValueSet[V].
func OpenValueSet[V any](f *Fork, addr IndexAddress, codec ValueCodec[V]) (*ValueSet[V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Bind(addr, IndexTypeValueSet); err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	return &ValueSet[V]{view: v, codec: codec}, nil
}

// Contains reports whether value is a member.
func (s *ValueSet[V]) Contains(value V) bool {
	_, ok := s.view.Get(s.codec.Encode(value))
	return ok
}

// Add inserts value.
func (s *ValueSet[V]) Add(value V) {
	s.view.Put(s.codec.Encode(value), []byte{1})
}

// Remove deletes value.
func (s *ValueSet[V]) Remove(value V) {
	s.view.Remove(s.codec.Encode(value))
}

// Values returns every member, decoded, in ascending encoded order.
func (s *ValueSet[V]) Values() []V {
	it := s.view.IterFrom(nil)
	var out []V
	for it.Next() {
		if v, err := s.codec.Decode(it.Key()); err == nil {
			out = append(out, v)
		}
	}
	return out
}
