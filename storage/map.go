package storage

// Map is an associative K -> V container. Keys are compared in the
// byte order of their encoding, so iteration order matches the byte
// order of keyEnc's output; keyEnc must be order-preserving
// for any K whose iteration order is semantically meaningful.
type Map[K, V any] struct {
	view   *View
	keyEnc func(K) []byte
	codec  ValueCodec[V]
}

// OpenMap binds addr as a Map[K,V]. keyEnc encodes keys to their
// comparison byte form.
func OpenMap[K, V any](f *Fork, addr IndexAddress, keyEnc func(K) []byte, codec ValueCodec[V]) (*Map[K, V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Bind(addr, IndexTypeMap); err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{view: v, keyEnc: keyEnc, codec: codec}, nil
}

// Get returns the value for key.
func (m *Map[K, V]) Get(key K) (v V, ok bool) {
	raw, found := m.view.Get(m.keyEnc(key))
	if !found {
		return v, false
	}
	decoded, err := m.codec.Decode(raw)
	if err != nil {
		return v, false
	}
	return decoded, true
}

// Put writes value for key.
func (m *Map[K, V]) Put(key K, value V) {
	m.view.Put(m.keyEnc(key), m.codec.Encode(value))
}

// Remove deletes key.
func (m *Map[K, V]) Remove(key K) {
	m.view.Remove(m.keyEnc(key))
}

// Clear empties the map.
func (m *Map[K, V]) Clear() {
	m.view.Clear()
}

// MapEntry is one key/value pair yielded by IterFrom.
type MapEntry[K, V any] struct {
	KeyBytes []byte
	Value    V
}

// IterFrom returns the decoded values, in ascending key-byte order,
// for keys whose encoding is >= fromKeyBytes.
func (m *Map[K, V]) IterFrom(fromKeyBytes []byte) []MapEntry[K, V] {
	it := m.view.IterFrom(fromKeyBytes)
	var out []MapEntry[K, V]
	for it.Next() {
		v, err := m.codec.Decode(it.Value())
		if err != nil {
			continue
		}
		key := append([]byte(nil), it.Key()...)
		out = append(out, MapEntry[K, V]{KeyBytes: key, Value: v})
	}
	return out
}
