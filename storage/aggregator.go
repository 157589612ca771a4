package storage

// aggregatorAddress is the reserved address the state aggregator's
// own ProofMap lives at.
var aggregatorAddress = NewIndexAddress("__aggregator__")

func hash32Codec() ValueCodec[[32]byte] {
	return BinaryCodec[[32]byte]{
		EncodeFn: func(h [32]byte) []byte { return h[:] },
		DecodeFn: func(b []byte) ([32]byte, error) {
			var h [32]byte
			copy(h[:], b)
			return h, nil
		},
	}
}

func stringPath(name string) [32]byte {
	return HashKey([]byte(name))
}

// Aggregator maintains a system-wide Merkle root over the object
// hashes of every Merkleized index, itself as a ProofMap from
// index_full_name to object_hash. Its ObjectHash is the block's
// state_hash.
type Aggregator struct {
	pm *ProofMap[string, [32]byte]
}

// OpenAggregator binds the reserved aggregator address within f.
func OpenAggregator(f *Fork) (*Aggregator, error) {
	pm, err := OpenProofMap[string, [32]byte](f, aggregatorAddress, stringPath, hash32Codec())
	if err != nil {
		return nil, err
	}
	return &Aggregator{pm: pm}, nil
}

// Register records indexFullName's current object_hash.
func (a *Aggregator) Register(indexFullName string, objectHash [32]byte) {
	a.pm.Put(indexFullName, objectHash)
}

// Get returns the recorded object_hash for indexFullName.
func (a *Aggregator) Get(indexFullName string) ([32]byte, bool) {
	return a.pm.Get(indexFullName)
}

// ObjectHash is the aggregator's own Merkle root, i.e. the block's
// state_hash.
func (a *Aggregator) ObjectHash() [32]byte {
	return a.pm.ObjectHash()
}

// Sync resolves every Merkleized index registered against f (every
// ProofMap/ProofList opened against it, however many checkpoints deep)
// and registers its current object_hash against the aggregator. Call
// once per block, after every transaction and service hook has run,
// immediately before reading the aggregator's own ObjectHash as the
// block's state_hash — so it reflects only changes that were not
// rolled back, and every index's contribution is re-resolved fresh
// rather than captured at whatever point it was first opened.
func (a *Aggregator) Sync(f *Fork) {
	for name, hasher := range f.aggregated {
		a.Register(name, hasher())
	}
}
