package storage

import "github.com/meridian/replica/utils/wrappers"

// SparseList is a sequence of V with holes: removing an element frees
// its index without shifting others. State is (capacity, length)
// where capacity is one past the highest index ever used and length
// is the number of live (non-removed) elements.
type SparseList[V any] struct {
	view     *View
	pool     *Pool
	addr     IndexAddress
	codec    ValueCodec[V]
	capacity uint64
	length   uint64
}

func decodeSparseState(state []byte) (capacity, length uint64) {
	if len(state) == 0 {
		return 0, 0
	}
	u := wrappers.NewUnpacker(state)
	return u.UnpackLong(), u.UnpackLong()
}

func encodeSparseState(capacity, length uint64) []byte {
	p := wrappers.NewPacker(16)
	p.PackLong(capacity)
	p.PackLong(length)
	return p.Bytes
}

// OpenSparseList binds addr as a SparseList[V].
func OpenSparseList[V any](f *Fork, addr IndexAddress, codec ValueCodec[V]) (*SparseList[V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	md, err := pool.Bind(addr, IndexTypeSparseList)
	if err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	capacity, length := decodeSparseState(md.State)
	return &SparseList[V]{view: v, pool: pool, addr: addr, codec: codec, capacity: capacity, length: length}, nil
}

// Capacity returns one past the highest index ever assigned.
func (s *SparseList[V]) Capacity() uint64 { return s.capacity }

// Len returns the number of live elements.
func (s *SparseList[V]) Len() uint64 { return s.length }

func (s *SparseList[V]) saveState() {
	s.pool.SaveState(s.addr, IndexTypeSparseList, encodeSparseState(s.capacity, s.length))
}

// Push writes v at the next free capacity slot.
func (s *SparseList[V]) Push(v V) {
	s.view.Put(listKey(s.capacity), s.codec.Encode(v))
	s.capacity++
	s.length++
	s.saveState()
}

// Get returns the element at i, if live.
func (s *SparseList[V]) Get(i uint64) (v V, ok bool) {
	raw, found := s.view.Get(listKey(i))
	if !found {
		return v, false
	}
	decoded, err := s.codec.Decode(raw)
	if err != nil {
		return v, false
	}
	return decoded, true
}

// Set writes v at i, growing capacity to i+1 if needed. Writing to a
// previously-empty slot increments length.
func (s *SparseList[V]) Set(i uint64, v V) {
	_, existed := s.Get(i)
	s.view.Put(listKey(i), s.codec.Encode(v))
	if i+1 > s.capacity {
		s.capacity = i + 1
	}
	if !existed {
		s.length++
	}
	s.saveState()
}

// Remove deletes the element at i, if present, decrementing length.
func (s *SparseList[V]) Remove(i uint64) {
	if _, ok := s.Get(i); !ok {
		return
	}
	s.view.Remove(listKey(i))
	s.length--
	s.saveState()
}

// Pop removes and returns the element at the lowest live index.
func (s *SparseList[V]) Pop() (v V, ok bool) {
	for i := uint64(0); i < s.capacity; i++ {
		if val, found := s.Get(i); found {
			s.Remove(i)
			return val, true
		}
	}
	return v, false
}
