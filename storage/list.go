package storage

import (
	"fmt"

	"github.com/meridian/replica/utils/wrappers"
)

// List is a sequence of V indexed by a big-endian u64 key; its only
// persisted state is its length.
type List[V any] struct {
	view      *View
	pool      *Pool
	addr      IndexAddress
	codec     ValueCodec[V]
	length    uint64
	boundType IndexType
}

func listKey(i uint64) []byte {
	p := wrappers.NewPacker(8)
	p.PackLong(i)
	return p.Bytes
}

func decodeListLength(state []byte) uint64 {
	if len(state) == 0 {
		return 0
	}
	return wrappers.NewUnpacker(state).UnpackLong()
}

func encodeListLength(n uint64) []byte {
	p := wrappers.NewPacker(8)
	p.PackLong(n)
	return p.Bytes
}

// OpenList binds addr as a List[V], creating the binding on first use.
func OpenList[V any](f *Fork, addr IndexAddress, codec ValueCodec[V]) (*List[V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	md, err := pool.Bind(addr, IndexTypeList)
	if err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	return &List[V]{view: v, pool: pool, addr: addr, codec: codec, length: decodeListLength(md.State), boundType: IndexTypeList}, nil
}

// Len returns the number of elements.
func (l *List[V]) Len() uint64 { return l.length }

func (l *List[V]) saveLength() {
	l.pool.SaveState(l.addr, l.boundType, encodeListLength(l.length))
}

// Push appends v.
func (l *List[V]) Push(v V) {
	l.view.Put(listKey(l.length), l.codec.Encode(v))
	l.length++
	l.saveLength()
}

// Pop removes and returns the last element, or ok=false if empty.
func (l *List[V]) Pop() (v V, ok bool) {
	if l.length == 0 {
		return v, false
	}
	last := l.length - 1
	raw, found := l.view.Get(listKey(last))
	if !found {
		return v, false
	}
	decoded, err := l.codec.Decode(raw)
	if err != nil {
		return v, false
	}
	l.view.Remove(listKey(last))
	l.length = last
	l.saveLength()
	return decoded, true
}

// Get returns the element at i, or ok=false if out of range or
// missing.
func (l *List[V]) Get(i uint64) (v V, ok bool) {
	if i >= l.length {
		return v, false
	}
	raw, found := l.view.Get(listKey(i))
	if !found {
		return v, false
	}
	decoded, err := l.codec.Decode(raw)
	if err != nil {
		return v, false
	}
	return decoded, true
}

// Set overwrites the element at i. Panics if i >= Len().
func (l *List[V]) Set(i uint64, v V) {
	if i >= l.length {
		panic(fmt.Sprintf("storage: List.Set index %d out of range (len %d)", i, l.length))
	}
	l.view.Put(listKey(i), l.codec.Encode(v))
}

// Truncate pops elements until Len() <= n.
func (l *List[V]) Truncate(n uint64) {
	for l.length > n {
		if _, ok := l.Pop(); !ok {
			break
		}
	}
}

// Values returns every element in order, for hashing or iteration.
func (l *List[V]) Values() []V {
	out := make([]V, 0, l.length)
	for i := uint64(0); i < l.length; i++ {
		if v, ok := l.Get(i); ok {
			out = append(out, v)
		}
	}
	return out
}
