package accessor

import (
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/transport"
	"github.com/ctrlmesh/ctrlmesh/types"
)

func buf32(v int32) *types.Buffer[int32] {
	b := types.NewBuffer[int32](1, 1)
	b.Data[0][0] = v
	return b
}

func TestSyncPairAccessorRoundTrip(t *testing.T) {
	pair := transport.NewPushPair[int32](4)
	feederID := node.Identity{Seq: 1}
	consumerID := node.Identity{Seq: 2}

	feeder := NewSyncPairAccessor[int32](feederID, pair, false, true)
	consumer := NewSyncPairAccessor[int32](consumerID, pair, true, false)

	_, err := feeder.DoWriteTransfer(buf32(7))
	require.NoError(t, err)

	got, _, ok, err := consumer.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(7), got.Data[0][0])
}

func TestSyncPairAccessorRejectsWriteOnReadOnly(t *testing.T) {
	pair := transport.NewPushPair[int32](4)
	consumer := NewSyncPairAccessor[int32](node.Identity{Seq: 1}, pair, true, false)

	_, err := consumer.DoWriteTransfer(buf32(1))
	assert.Error(t, err)
}

func TestConstantAccessorFirstReadThenExhausted(t *testing.T) {
	c := NewConstantAccessor[int32](node.Identity{Seq: 1}, buf32(0))

	buf, _, ok, err := c.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(0), buf.Data[0][0])

	_, _, ok, err = c.DoReadTransfer(false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConstantAccessorBlockingReadAfterExhaustionBlocksUntilDeactivate(t *testing.T) {
	c := NewConstantAccessor[int32](node.Identity{Seq: 1}, buf32(0))

	_, _, ok, err := c.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		_, _, ok, err := c.DoReadTransfer(true)
		require.NoError(t, err)
		assert.False(t, ok)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("blocking read on an exhausted constant returned before Deactivate")
	case <-time.After(20 * time.Millisecond):
	}

	c.Deactivate()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocking read did not return after Deactivate")
	}

	c.Deactivate() // idempotent
}

func TestConstantAccessorAcceptsAndIgnoresWrites(t *testing.T) {
	c := NewConstantAccessor[int32](node.Identity{Seq: 1}, buf32(5))
	dataLost, err := c.DoWriteTransfer(buf32(99))
	require.NoError(t, err)
	assert.False(t, dataLost)

	buf, _, ok, _ := c.DoReadTransfer(true)
	require.True(t, ok)
	assert.Equal(t, int32(5), buf.Data[0][0], "constant value must not change on write")
}

type fakeDeviceBackend struct {
	waitForNewData bool
	readErr        error
	writeErr       error
	lastWritten    *types.Buffer[int32]
}

func (f *fakeDeviceBackend) Read() (*types.Buffer[int32], error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return buf32(11), nil
}
func (f *fakeDeviceBackend) Write(b *types.Buffer[int32]) error {
	f.lastWritten = b
	return f.writeErr
}
func (f *fakeDeviceBackend) SupportsWaitForNewData() bool { return f.waitForNewData }

func TestDeviceAccessorDelegatesToBackend(t *testing.T) {
	backend := &fakeDeviceBackend{}
	dev := NewDeviceAccessor[int32](node.Identity{Seq: 1}, "board0", "/ADC/raw", backend)

	buf, _, ok, err := dev.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(11), buf.Data[0][0])

	_, err = dev.DoWriteTransfer(buf32(3))
	require.NoError(t, err)
	assert.Equal(t, int32(3), backend.lastWritten.Data[0][0])
}

func TestDeviceAccessorWrapsTransportErrors(t *testing.T) {
	backend := &fakeDeviceBackend{readErr: errors.New("bus fault")}
	dev := NewDeviceAccessor[int32](node.Identity{Seq: 1}, "board0", "/ADC/raw", backend)

	_, _, _, err := dev.DoReadTransfer(true)
	assert.Error(t, err)
}

func TestDeviceAccessorMayReplaceOtherByAliasAndPath(t *testing.T) {
	backendA := &fakeDeviceBackend{}
	backendB := &fakeDeviceBackend{}
	a := NewDeviceAccessor[int32](node.Identity{Seq: 1}, "board0", "/ADC/raw", backendA)
	b := NewDeviceAccessor[int32](node.Identity{Seq: 2}, "board0", "/ADC/raw", backendB)
	c := NewDeviceAccessor[int32](node.Identity{Seq: 3}, "board0", "/DAC/out", backendA)

	assert.True(t, a.MayReplaceOther(b))
	assert.False(t, a.MayReplaceOther(c))
}

type fakeCoordinator struct {
	writes, reads int32
	released      int32
	reacquired    int32
}

func (f *fakeCoordinator) OnWrite(node.Identity) { atomic.AddInt32(&f.writes, 1) }
func (f *fakeCoordinator) OnRead(node.Identity)  { atomic.AddInt32(&f.reads, 1) }
func (f *fakeCoordinator) Release()              { atomic.AddInt32(&f.released, 1) }
func (f *fakeCoordinator) Reacquire()            { atomic.AddInt32(&f.reacquired, 1) }

func TestTestableDecoratorReportsWritesAndReads(t *testing.T) {
	pair := transport.NewPushPair[int32](4)
	writer := NewSyncPairAccessor[int32](node.Identity{Seq: 1}, pair, false, true)
	reader := NewSyncPairAccessor[int32](node.Identity{Seq: 2}, pair, true, false)

	coord := &fakeCoordinator{}
	decoratedWriter := NewTestableDecorator[int32](writer, coord, node.Identity{Seq: 1})
	decoratedReader := NewTestableDecorator[int32](reader, coord, node.Identity{Seq: 2})

	_, err := decoratedWriter.DoWriteTransfer(buf32(1))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&coord.writes))

	_, _, ok, err := decoratedReader.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&coord.reads))
	assert.Equal(t, int32(1), atomic.LoadInt32(&coord.released))
	assert.Equal(t, int32(1), atomic.LoadInt32(&coord.reacquired))
}

func TestHandleReturnsLogicErrorBeforeInstall(t *testing.T) {
	h := NewHandle[int32]()
	assert.False(t, h.Installed())
	assert.Error(t, h.PreRead())
	_, _, _, err := h.DoReadTransfer(false)
	assert.Error(t, err)
}

func TestHandleDelegatesAfterInstall(t *testing.T) {
	pair := transport.NewPushPair[int32](4)
	writer := NewSyncPairAccessor[int32](node.Identity{Seq: 1}, pair, false, true)
	reader := NewSyncPairAccessor[int32](node.Identity{Seq: 2}, pair, true, false)

	h := NewHandle[int32]()
	h.Install(reader)
	assert.True(t, h.Installed())

	_, err := writer.DoWriteTransfer(buf32(21))
	require.NoError(t, err)

	buf, _, ok, err := h.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(21), buf.Data[0][0])
	assert.Equal(t, node.Identity{Seq: 2}, h.ID())
}

func TestDebugDecoratorDelegatesAndDoesNotAlterResults(t *testing.T) {
	pair := transport.NewPushPair[int32](4)
	writer := NewSyncPairAccessor[int32](node.Identity{Seq: 1}, pair, false, true)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	decorated := NewDebugDecorator[int32](writer, "myModule/out", log)

	_, err := decorated.DoWriteTransfer(buf32(9))
	require.NoError(t, err)

	reader := NewSyncPairAccessor[int32](node.Identity{Seq: 2}, pair, true, false)
	buf, _, ok, err := reader.DoReadTransfer(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(9), buf.Data[0][0])
}
