package storage

import (
	"fmt"

	"github.com/meridian/replica/utils/wrappers"
)

// IndexType discriminates the kind of container bound to an address.
type IndexType uint8

const (
	IndexTypeList IndexType = iota
	IndexTypeSparseList
	IndexTypeMap
	IndexTypeProofList
	IndexTypeProofMap
	IndexTypeKeySet
	IndexTypeValueSet
	IndexTypeEntry
	IndexTypeTombstone
)

func (t IndexType) String() string {
	switch t {
	case IndexTypeList:
		return "List"
	case IndexTypeSparseList:
		return "SparseList"
	case IndexTypeMap:
		return "Map"
	case IndexTypeProofList:
		return "ProofList"
	case IndexTypeProofMap:
		return "ProofMap"
	case IndexTypeKeySet:
		return "KeySet"
	case IndexTypeValueSet:
		return "ValueSet"
	case IndexTypeEntry:
		return "Entry"
	case IndexTypeTombstone:
		return "Tombstone"
	default:
		return "Unknown"
	}
}

// IndexMetadata records the binding between an address and the typed
// container that owns it. Once bound, the binding is immutable until
// the index is tombstoned by a migration.
type IndexMetadata struct {
	Type       IndexType
	Identifier uint64
	State      []byte
}

// indexesPoolAddress is the reserved address metadata lives under.
var indexesPoolAddress = NewIndexAddress("__indexes__")

// Pool resolves and enforces IndexMetadata bindings for a Fork.
type Pool struct {
	view *View
}

// OpenPool returns the metadata pool for fork's working state, reusing
// a previously opened pool for the same (unflushed) working layer so
// that opening several distinct indexes within one fork does not
// collide on the shared "__indexes__" address.
func OpenPool(f *Fork) (*Pool, error) {
	if f.pool != nil {
		return f.pool, nil
	}
	v, err := f.ViewMut(indexesPoolAddress)
	if err != nil {
		return nil, err
	}
	f.pool = &Pool{view: v}
	return f.pool, nil
}

// Bind resolves the metadata for addr, creating it bound to typ with
// empty state if this is the address's first use. Returns
// ErrIndexTypeMismatch if the address was already bound to a
// different, non-tombstoned type.
func (p *Pool) Bind(addr IndexAddress, typ IndexType) (IndexMetadata, error) {
	key := []byte(addr.String())
	raw, ok := p.view.Get(key)
	if !ok {
		md := IndexMetadata{Type: typ}
		p.view.Put(key, encodeMetadata(md))
		return md, nil
	}
	md := decodeMetadata(raw)
	if md.Type == IndexTypeTombstone {
		md = IndexMetadata{Type: typ}
		p.view.Put(key, encodeMetadata(md))
		return md, nil
	}
	if md.Type != typ {
		return IndexMetadata{}, fmt.Errorf("%w: %s bound as %s, requested as %s", ErrIndexTypeMismatch, addr, md.Type, typ)
	}
	return md, nil
}

// SaveState persists the index's serialized state bytes (e.g. a
// List's length) for addr.
func (p *Pool) SaveState(addr IndexAddress, typ IndexType, state []byte) {
	key := []byte(addr.String())
	p.view.Put(key, encodeMetadata(IndexMetadata{Type: typ, State: state}))
}

// Tombstone marks addr's binding removed, permitting it to be rebound
// to a different type by a later migration.
func (p *Pool) Tombstone(addr IndexAddress) {
	key := []byte(addr.String())
	p.view.Put(key, encodeMetadata(IndexMetadata{Type: IndexTypeTombstone}))
}

func encodeMetadata(md IndexMetadata) []byte {
	pk := wrappers.NewPacker(9 + len(md.State))
	pk.PackByte(byte(md.Type))
	pk.PackLong(uint64(len(md.State)))
	pk.PackBytes(md.State)
	return pk.Bytes
}

func decodeMetadata(b []byte) IndexMetadata {
	u := wrappers.NewUnpacker(b)
	typ := IndexType(u.UnpackByte())
	n := u.UnpackLong()
	state := u.UnpackBytes(int(n))
	return IndexMetadata{Type: typ, State: state}
}
