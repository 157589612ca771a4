package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian/replica/storage"
)

func newTestFork() *storage.Fork {
	return storage.NewFork(storage.NewMemDB().Snapshot())
}

func deployCounter(t *testing.T, d *Dispatcher, f *storage.Fork, instanceID uint32) {
	t.Helper()
	d.RegisterRuntime("counter", newCounterService)
	require.NoError(t, d.CommitArtifact(f, "counter", InstanceSpec{ArtifactID: "counter", InstanceID: instanceID, Name: "counter"}))
}

func TestDispatchCallIncrementsCounter(t *testing.T) {
	d := NewDispatcher(nil, 0)
	f := newTestFork()
	deployCounter(t, d, f, 100)

	_, err := d.DispatchCall(f, TransactionCaller([]byte("alice")), nil, 100, "", 1, encodeU64(1))
	require.NoError(t, err)

	desc, err := d.GetService(f, "100")
	require.NoError(t, err)
	require.Equal(t, StatusActive, desc.Status)

	e, err := storage.OpenEntry[uint64](f, counterValueAddr.Qualified(instanceFamilyKey(100)), counterCodec())
	require.NoError(t, err)
	v, ok := e.Get()
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestDispatchCallUnknownMethod(t *testing.T) {
	d := NewDispatcher(nil, 0)
	f := newTestFork()
	deployCounter(t, d, f, 100)

	_, err := d.DispatchCall(f, TransactionCaller(nil), nil, 100, "", 99, nil)
	require.ErrorIs(t, err, ErrNoSuchMethod)
}

func TestDispatchCallRemovedMethod(t *testing.T) {
	svc := &counterService{}
	iface := NewInterface().On(1, svc.increment)
	iface.Remove(2)
	svc.Ifaces = map[string]*Interface{"": iface}

	d := NewDispatcher(nil, 0)
	f := newTestFork()
	d.RegisterRuntime("counter", func() Service { return svc })
	require.NoError(t, d.CommitArtifact(f, "counter", InstanceSpec{ArtifactID: "counter", InstanceID: 100, Name: "counter"}))

	_, err := d.DispatchCall(f, TransactionCaller(nil), nil, 100, "", 2, nil)
	require.ErrorIs(t, err, ErrMethodRemoved)
}

func TestFailingTransactionDoesNotRollbackOthersInBlock(t *testing.T) {
	d := NewDispatcher(nil, 0)
	f := newTestFork()
	deployCounter(t, d, f, 100)

	_, err := d.DispatchCall(f, TransactionCaller(nil), nil, 100, "", 1, encodeU64(1))
	require.NoError(t, err)

	_, err = d.DispatchCall(f, TransactionCaller(nil), nil, 100, "", 2, nil)
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, uint8(0), svcErr.Code)

	e, err := storage.OpenEntry[uint64](f, counterValueAddr.Qualified(instanceFamilyKey(100)), counterCodec())
	require.NoError(t, err)
	v, ok := e.Get()
	require.True(t, ok)
	require.Equal(t, uint64(1), v, "the earlier successful tx's write must survive a later tx's failure")
}

func TestDispatchCallRejectsInactiveInstance(t *testing.T) {
	d := NewDispatcher(nil, 0)
	f := newTestFork()
	deployCounter(t, d, f, 100)
	require.NoError(t, d.InitiateStoppingService(f, 100))

	_, err := d.DispatchCall(f, TransactionCaller(nil), nil, 100, "", 1, encodeU64(1))
	require.ErrorIs(t, err, ErrIncorrectInstanceId)
}

func TestBeforeAfterTransactionsRunOnActiveInstancesInOrder(t *testing.T) {
	d := NewDispatcher(nil, 0)
	f := newTestFork()
	deployCounter(t, d, f, 200)
	deployCounter(t, d, f, 100)

	ids, err := d.ActiveInstanceIDs(f)
	require.NoError(t, err)
	require.Equal(t, []uint32{100, 200}, ids)

	errs := d.BeforeTransactions(f)
	require.Empty(t, errs)
	errs = d.AfterTransactions(f)
	require.Empty(t, errs)
}

func TestMailboxFullOnOverflow(t *testing.T) {
	d := NewDispatcher(nil, 1)
	d.RegisterRuntime("counter", newCounterService)

	var firstErr, secondErr error
	d.StartDeploy("counter", InstanceSpec{}, func(err error) { firstErr = err })
	d.StartDeploy("counter", InstanceSpec{}, func(err error) { secondErr = err })

	require.NoError(t, firstErr, "first action hasn't drained yet, so no error observed")
	require.ErrorIs(t, secondErr, ErrMailboxFull)

	d.DrainMailbox()
	require.Empty(t, d.mailbox)
}
