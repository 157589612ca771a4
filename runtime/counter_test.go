package runtime

import (
	"encoding/binary"

	"github.com/meridian/replica/storage"
)

// counterService is the minimal "counter" service the spec's §8
// scenarios exercise: one u64 stored per instance, an increment
// method, and a method that deliberately returns a ServiceError so
// tests can exercise per-tx failure isolation.
type counterService struct {
	BaseService
}

var counterValueAddr = storage.NewIndexAddress("counter.value")

func counterCodec() storage.ValueCodec[uint64] {
	return storage.BinaryCodec[uint64]{
		EncodeFn: func(v uint64) []byte {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			return b
		},
		DecodeFn: func(b []byte) (uint64, error) {
			return binary.BigEndian.Uint64(b), nil
		},
	}
}

func newCounterService() Service {
	s := &counterService{}
	iface := NewInterface().
		On(1, s.increment).
		On(2, s.alwaysFails)
	s.Ifaces = map[string]*Interface{"": iface}
	return s
}

func (s *counterService) entry(ctx *ExecutionContext) (*storage.Entry[uint64], error) {
	addr := counterValueAddr.Qualified(instanceFamilyKey(ctx.Instance.Spec.InstanceID))
	return storage.OpenEntry[uint64](ctx.Data(), addr, counterCodec())
}

func (s *counterService) increment(ctx *ExecutionContext, args []byte) ([]byte, error) {
	delta := binary.BigEndian.Uint64(args)
	e, err := s.entry(ctx)
	if err != nil {
		return nil, err
	}
	cur, _ := e.Get()
	e.Set(cur + delta)
	return nil, nil
}

func (s *counterService) alwaysFails(ctx *ExecutionContext, args []byte) ([]byte, error) {
	return nil, NewServiceError(0, "Not allowed!")
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
