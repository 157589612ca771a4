package storage

// ValueCodec encodes and decodes the values stored in a typed index.
// Indexes are generic over V and parameterized by a ValueCodec rather
// than requiring V to implement a marshaling interface directly, so
// the same value type can be stored verbatim in one index and hashed
// differently in another.
type ValueCodec[V any] interface {
	Encode(v V) []byte
	Decode(b []byte) (V, error)
}

// BytesCodec stores []byte values verbatim.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte { return v }

func (BytesCodec) Decode(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// BinaryCodec adapts a pair of plain encode/decode functions (e.g. a
// protobuf or canonical-binary message's Marshal/Unmarshal) into a
// ValueCodec.
type BinaryCodec[V any] struct {
	EncodeFn func(V) []byte
	DecodeFn func([]byte) (V, error)
}

func (c BinaryCodec[V]) Encode(v V) []byte          { return c.EncodeFn(v) }
func (c BinaryCodec[V]) Decode(b []byte) (V, error) { return c.DecodeFn(b) }
