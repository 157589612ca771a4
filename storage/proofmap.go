package storage

import (
	"crypto/sha256"
	"sort"
)

// ProofMap is a binary Patricia trie over hash(K), supporting
// inclusion and absence proofs against its object_hash. Leaves are
// stored flatly (keyed by the 32-byte path) in the underlying View;
// the trie itself is a pure function of that leaf set and is rebuilt
// on demand whenever ObjectHash or GetProof is called, rather than
// persisting branch nodes — the leaf set alone determines the trie,
// so this changes nothing observable.
type ProofMap[K, V any] struct {
	view    *View
	pathFor func(K) [32]byte
	codec   ValueCodec[V]
}

// OpenProofMap binds addr as a ProofMap[K,V]. pathFor derives the
// 32-byte trie path for a key (sha256 of its canonical encoding for
// variable-length keys, or the raw bytes for fixed 32-byte keys).
func OpenProofMap[K, V any](f *Fork, addr IndexAddress, pathFor func(K) [32]byte, codec ValueCodec[V]) (*ProofMap[K, V], error) {
	pool, err := OpenPool(f)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Bind(addr, IndexTypeProofMap); err != nil {
		return nil, err
	}
	v, err := f.ViewMut(addr)
	if err != nil {
		return nil, err
	}
	// The aggregator's own backing ProofMap must not register itself
	// into the aggregator.
	if addr.String() != aggregatorAddress.String() {
		f.RegisterAggregated(addr, func() [32]byte {
			return proofMapObjectHashFromView(f.ViewShared(addr))
		})
	}
	return &ProofMap[K, V]{view: v, pathFor: pathFor, codec: codec}, nil
}

// HashKey derives a 32-byte path from arbitrary key bytes via SHA-256,
// the default pathFor for variable-length keys.
func HashKey(keyBytes []byte) [32]byte {
	return sha256.Sum256(keyBytes)
}

// Get returns the value for key.
func (m *ProofMap[K, V]) Get(key K) (v V, ok bool) {
	path := m.pathFor(key)
	raw, found := m.view.Get(path[:])
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
func (m *ProofMap[K, V]) Put(key K, value V) {
	path := m.pathFor(key)
	m.view.Put(path[:], m.codec.Encode(value))
}

// Remove deletes key.
func (m *ProofMap[K, V]) Remove(key K) {
	path := m.pathFor(key)
	m.view.Remove(path[:])
}

// pmLeaf is one entry of the flat leaf set driving the trie.
type pmLeaf struct {
	path      [32]byte
	valueHash []byte
}

func (m *ProofMap[K, V]) leaves() []pmLeaf {
	return proofMapLeavesFromView(m.view)
}

// proofMapLeavesFromView reads the flat leaf set directly out of v,
// independent of any particular ProofMap[K,V] instantiation, so it can
// back both an open ProofMap's own methods and a lazily re-resolved
// aggregator sync closure.
func proofMapLeavesFromView(v *View) []pmLeaf {
	it := v.IterFrom(nil)
	var out []pmLeaf
	for it.Next() {
		if len(it.Key()) != 32 {
			continue
		}
		var path [32]byte
		copy(path[:], it.Key())
		h := sha256.Sum256(it.Value())
		out = append(out, pmLeaf{path: path, valueHash: h[:]})
	}
	sort.Slice(out, func(i, j int) bool {
		return bitsLess(out[i].path, out[j].path)
	})
	return out
}

func bitsLess(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func bit(path [32]byte, i int) int {
	return int((path[i/8] >> (7 - uint(i%8))) & 1)
}

// pmNode is a node of the in-memory trie built from the current leaf
// set.
type pmNode struct {
	isLeaf bool
	leaf   pmLeaf
	left   *pmNode
	right  *pmNode
}

var emptyProofMapHash = sha256.Sum256([]byte("storage:empty-proof-map"))

func leafHash(l pmLeaf) [32]byte {
	buf := make([]byte, 0, 33+len(l.valueHash))
	buf = append(buf, 0x00)
	buf = append(buf, l.path[:]...)
	buf = append(buf, l.valueHash...)
	return sha256.Sum256(buf)
}

func branchHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 65)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

func (n *pmNode) hash() [32]byte {
	if n == nil {
		return emptyProofMapHash
	}
	if n.isLeaf {
		return leafHash(n.leaf)
	}
	return branchHash(n.left.hash(), n.right.hash())
}

func buildTrie(leaves []pmLeaf, depth int) *pmNode {
	if len(leaves) == 0 {
		return nil
	}
	if len(leaves) == 1 {
		return &pmNode{isLeaf: true, leaf: leaves[0]}
	}
	var left, right []pmLeaf
	for _, l := range leaves {
		if bit(l.path, depth) == 0 {
			left = append(left, l)
		} else {
			right = append(right, l)
		}
	}
	return &pmNode{left: buildTrie(left, depth+1), right: buildTrie(right, depth+1)}
}

// ObjectHash returns the Merkle root of the map's current contents;
// the distinguished empty hash if the map has no entries.
func (m *ProofMap[K, V]) ObjectHash() [32]byte {
	return proofMapObjectHashFromView(m.view)
}

// proofMapObjectHashFromView computes a ProofMap's object_hash purely
// from v's current contents.
func proofMapObjectHashFromView(v *View) [32]byte {
	root := buildTrie(proofMapLeavesFromView(v), 0)
	return root.hash()
}

// Proof is an inclusion or absence proof for a single key against a
// ProofMap's ObjectHash.
type Proof struct {
	// Siblings holds sibling hashes from the root down to the
	// terminal node, one per branch level descended.
	Siblings [][32]byte
	// SiblingIsRight records, for each entry in Siblings, whether the
	// sibling was the right child (true) or left child (false) at
	// that level.
	SiblingIsRight []bool
	// Terminal is the leaf reached by following key's path bits as
	// far as the trie goes: for an included key, Terminal.path equals
	// key's path; for an absent key, Terminal is either a differing
	// leaf or absent entirely (nil Found).
	Terminal     pmLeaf
	TerminalPath [32]byte
	Found        bool
	// Empty is true when descent for the queried key ended at a nil
	// trie node (an entirely empty subtree) rather than at a leaf.
	// VerifyAbsence must fold in emptyProofMapHash, not leafHash of a
	// zero-value Terminal, whenever Empty is set.
	Empty bool
}

// GetProof produces a proof for key's path against the map's current
// contents.
func (m *ProofMap[K, V]) GetProof(key K) Proof {
	path := m.pathFor(key)
	root := buildTrie(m.leaves(), 0)
	return walkProof(root, path, 0)
}

func walkProof(n *pmNode, path [32]byte, depth int) Proof {
	if n == nil {
		return Proof{Found: false, Empty: true}
	}
	if n.isLeaf {
		return Proof{Terminal: n.leaf, TerminalPath: n.leaf.path, Found: n.leaf.path == path}
	}
	var next, sibling *pmNode
	siblingIsRight := false
	if bit(path, depth) == 0 {
		next, sibling = n.left, n.right
		siblingIsRight = true
	} else {
		next, sibling = n.right, n.left
		siblingIsRight = false
	}
	sub := walkProof(next, path, depth+1)
	sub.Siblings = append([][32]byte{sibling.hash()}, sub.Siblings...)
	sub.SiblingIsRight = append([]bool{siblingIsRight}, sub.SiblingIsRight...)
	return sub
}

// VerifyInclusion checks that proof demonstrates key -> value is a
// member of the ProofMap whose root is root.
func VerifyInclusion[K any](proof Proof, pathFor func(K) [32]byte, key K, value []byte, root [32]byte) bool {
	path := pathFor(key)
	if !proof.Found || proof.TerminalPath != path {
		return false
	}
	h := sha256.Sum256(value)
	if string(proof.Terminal.valueHash) != string(h[:]) {
		return false
	}
	return recomputeRoot(proof, leafHash(proof.Terminal)) == root
}

// VerifyAbsence checks that proof demonstrates key is not a member of
// the ProofMap whose root is root.
func VerifyAbsence[K any](proof Proof, pathFor func(K) [32]byte, key K, root [32]byte) bool {
	path := pathFor(key)
	if proof.Found && proof.TerminalPath == path {
		return false
	}
	terminalHash := leafHash(proof.Terminal)
	if proof.Empty {
		terminalHash = emptyProofMapHash
	}
	return recomputeRoot(proof, terminalHash) == root
}

func recomputeRoot(proof Proof, h [32]byte) [32]byte {
	for i := len(proof.Siblings) - 1; i >= 0; i-- {
		sib := proof.Siblings[i]
		if proof.SiblingIsRight[i] {
			h = branchHash(h, sib)
		} else {
			h = branchHash(sib, h)
		}
	}
	return h
}
