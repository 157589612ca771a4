package storage

import "crypto/sha256"

// ProofList is a List plus a balanced Merkle tree over its values,
// supporting inclusion proofs. Values are stored exactly as a List
// would store them; the tree is rebuilt from the current values
// whenever ObjectHash or GetProof is called.
type ProofList[V any] struct {
	list *List[V]
}

// OpenProofList binds addr as a ProofList[V].
func OpenProofList[V any](f *Fork, addr IndexAddress, codec ValueCodec[V]) (*ProofList[V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	md, err := pool.Bind(addr, IndexTypeProofList)
	if err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	f.RegisterAggregated(addr, func() [32]byte {
		curPool, err := OpenPool(f)
		if err != nil {
			return emptyProofListHash
		}
		md, err := curPool.Bind(addr, IndexTypeProofList)
		if err != nil {
			return emptyProofListHash
		}
		return proofListObjectHashFromView(f.ViewShared(addr), decodeListLength(md.State))
	})
	return &ProofList[V]{list: &List[V]{view: v, pool: pool, addr: addr, codec: codec, length: decodeListLength(md.State), boundType: IndexTypeProofList}}, nil
}

// Len returns the number of elements.
func (p *ProofList[V]) Len() uint64 { return p.list.Len() }

// Push appends v.
func (p *ProofList[V]) Push(v V) { p.list.Push(v) }

// Pop removes and returns the last element.
func (p *ProofList[V]) Pop() (V, bool) { return p.list.Pop() }

// Get returns the element at i.
func (p *ProofList[V]) Get(i uint64) (V, bool) { return p.list.Get(i) }

// Set overwrites the element at i.
func (p *ProofList[V]) Set(i uint64, v V) { p.list.Set(i, v) }

func plLeafHash(encoded []byte) [32]byte {
	buf := make([]byte, 0, 1+len(encoded))
	buf = append(buf, 0x00)
	buf = append(buf, encoded...)
	return sha256.Sum256(buf)
}

func plBranchHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 65)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

func (p *ProofList[V]) leafHashes() [][32]byte {
	return proofListLeafHashesFromView(p.list.view, p.list.Len())
}

// proofListLeafHashesFromView reads the raw encoded bytes straight out
// of v, independent of any particular ProofList[V] instantiation;
// there is no need to decode through V only to re-encode for hashing.
func proofListLeafHashesFromView(v *View, length uint64) [][32]byte {
	out := make([][32]byte, 0, length)
	for i := uint64(0); i < length; i++ {
		raw, ok := v.Get(listKey(i))
		if !ok {
			continue
		}
		out = append(out, plLeafHash(raw))
	}
	return out
}

// plLevels returns every tree level from leaves (level 0) to the
// single-node root level, duplicating a trailing odd node the way an
// ordinary balanced Merkle tree does.
func plLevels(leaves [][32]byte) [][][32]byte {
	if len(leaves) == 0 {
		return nil
	}
	levels := [][][32]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, plBranchHash(current[i], current[i+1]))
			} else {
				next = append(next, plBranchHash(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

var emptyProofListHash = sha256.Sum256([]byte("storage:empty-proof-list"))

// ObjectHash returns the tree root combined with the length, so that
// two lists with identical values but different lengths (impossible in
// practice, but kept for the trailing-duplicate ambiguity at odd
// levels) never collide.
func (p *ProofList[V]) ObjectHash() [32]byte {
	return proofListObjectHashFromView(p.list.view, p.list.Len())
}

// proofListObjectHashFromView computes a ProofList's object_hash
// purely from v's current contents and the list's current length.
func proofListObjectHashFromView(v *View, length uint64) [32]byte {
	levels := plLevels(proofListLeafHashesFromView(v, length))
	var root [32]byte
	if len(levels) == 0 {
		root = emptyProofListHash
	} else {
		root = levels[len(levels)-1][0]
	}
	buf := make([]byte, 0, 40)
	buf = append(buf, root[:]...)
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(length>>(8*uint(i))))
	}
	return sha256.Sum256(buf)
}

// ListProof is an inclusion proof for one element of a ProofList.
type ListProof struct {
	Index    uint64
	Value    []byte
	Siblings [][32]byte
}

// GetProof produces a proof that the element at i is part of the
// list's current contents.
func (p *ProofList[V]) GetProof(i uint64) (ListProof, bool) {
	v, ok := p.list.Get(i)
	if !ok {
		return ListProof{}, false
	}
	leaves := p.leafHashes()
	levels := plLevels(leaves)
	idx := i
	var siblings [][32]byte
	for lvl := 0; lvl < len(levels)-1; lvl++ {
		level := levels[lvl]
		var sibIdx uint64
		if idx%2 == 0 {
			sibIdx = idx + 1
			if int(sibIdx) >= len(level) {
				sibIdx = idx
			}
		} else {
			sibIdx = idx - 1
		}
		siblings = append(siblings, level[sibIdx])
		idx /= 2
	}
	return ListProof{Index: i, Value: p.list.codec.Encode(v), Siblings: siblings}, true
}

// VerifyListProof checks proof against a ProofList's ObjectHash,
// which also encodes the list's length.
func VerifyListProof(proof ListProof, length uint64, objectHash [32]byte) bool {
	h := plLeafHash(proof.Value)
	idx := proof.Index
	for _, sib := range proof.Siblings {
		if idx%2 == 0 {
			h = plBranchHash(h, sib)
		} else {
			h = plBranchHash(sib, h)
		}
		idx /= 2
	}
	buf := make([]byte, 0, 40)
	buf = append(buf, h[:]...)
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(length>>(8*uint(i))))
	}
	return sha256.Sum256(buf) == objectHash
}
