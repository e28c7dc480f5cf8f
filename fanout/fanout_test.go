package fanout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/transport"
	"github.com/ctrlmesh/ctrlmesh/types"
)

func buf32(vals ...int32) *types.Buffer[int32] {
	b := types.NewBuffer[int32](1, len(vals))
	for i, v := range vals {
		b.Data[0][i] = v
	}
	return b
}

func newSyncAccessorPair() (*accessor.SyncPairAccessor[int32], *accessor.SyncPairAccessor[int32]) {
	pair := transport.NewPushPair[int32](8)
	feeder := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 1}, pair, false, true)
	consumer := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 2}, pair, true, false)
	return feeder, consumer
}

func TestFeedingCopiesToEverySlaveAndReturnsOK(t *testing.T) {
	m := metric.NewMetrics()
	f := NewFeeding[int32]("net", m)

	w1, c1 := newSyncAccessorPair()
	slave1 := writerHalf(w1)
	w2, c2 := newSyncAccessorPair()
	slave2 := writerHalf(w2)

	f.AddSlave(slave1)
	f.AddSlave(slave2)

	dataLost, err := f.Write(buf32(1, 2, 3, 4))
	require.NoError(t, err)
	assert.False(t, dataLost)

	got1, _, ok, _ := c1.DoReadTransfer(false)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 2, 3, 4}, got1.Data[0])

	got2, _, ok, _ := c2.DoReadTransfer(false)
	require.True(t, ok)
	assert.Equal(t, []int32{1, 2, 3, 4}, got2.Data[0])
}

// writerHalf returns the write side of a pair made by newSyncAccessorPair as
// a plain accessor.Accessor, so the fan-out can write while the test reads
// via the matching consumer.
func writerHalf(feeder *accessor.SyncPairAccessor[int32]) accessor.Accessor[int32] {
	return feeder
}

func TestFeedingWithNoSlavesIsLogicError(t *testing.T) {
	f := NewFeeding[int32]("net", metric.NewMetrics())
	_, err := f.Write(buf32(1))
	assert.Error(t, err)
}

func TestThreadedForwardsMasterToAllSlavesUntilDeactivated(t *testing.T) {
	masterPair := transport.NewPushPair[int32](8)
	masterFeeder := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 1}, masterPair, false, true)
	masterReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 2}, masterPair, true, false)

	slavePair := transport.NewPushPair[int32](8)
	slaveWriter := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 3}, slavePair, false, true)
	slaveReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 4}, slavePair, true, false)

	th := NewThreaded[int32]("net", metric.NewMetrics(), masterReader)
	require.NoError(t, th.AddSlave(slaveWriter))
	th.Activate()
	defer func() {
		masterPair.Close()
		th.Deactivate()
	}()

	masterFeeder.DoWriteTransfer(buf32(42))

	deadline := time.After(time.Second)
	for {
		buf, _, ok, _ := slaveReader.DoReadTransfer(false)
		if ok {
			assert.Equal(t, int32(42), buf.Data[0][0])
			return
		}
		select {
		case <-deadline:
			t.Fatal("threaded fan-out did not forward within deadline")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestThreadedRejectsReadOnlySlave(t *testing.T) {
	masterPair := transport.NewPushPair[int32](4)
	masterReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 1}, masterPair, true, false)

	readOnlyPair := transport.NewPushPair[int32](4)
	readOnly := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 2}, readOnlyPair, true, false)

	th := NewThreaded[int32]("net", metric.NewMetrics(), masterReader)
	assert.Error(t, th.AddSlave(readOnly))
}

func TestConsumingPullsThroughAndForwardsToSlaves(t *testing.T) {
	masterPair := transport.NewPushPair[int32](8)
	masterFeeder := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 1}, masterPair, false, true)
	masterReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 2}, masterPair, true, false)

	slavePair := transport.NewPushPair[int32](8)
	slaveWriter := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 3}, slavePair, false, true)
	slaveReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 4}, slavePair, true, false)

	c := NewConsuming[int32]("net", metric.NewMetrics(), masterReader)
	c.AddSlave(slaveWriter)

	masterFeeder.DoWriteTransfer(buf32(7))

	got, ok, err := c.Read(true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(7), got.Data[0][0])

	slaveGot, _, ok, _ := slaveReader.DoReadTransfer(false)
	require.True(t, ok)
	assert.Equal(t, int32(7), slaveGot.Data[0][0])
}

func TestTriggerDispatchesOncePerTick(t *testing.T) {
	triggerPair := transport.NewPushPair[int32](8)
	triggerFeeder := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 1}, triggerPair, false, true)
	triggerReader := accessor.NewSyncPairAccessor[int32](node.Identity{Seq: 2}, triggerPair, true, false)

	subFeederPair := transport.NewPushPair[int16](8)
	subFeeder := accessor.NewSyncPairAccessor[int16](node.Identity{Seq: 3}, subFeederPair, true, false)
	subFeederWriter := accessor.NewSyncPairAccessor[int16](node.Identity{Seq: 4}, subFeederPair, false, true)

	subSlavePair := transport.NewPushPair[int16](8)
	subSlaveWriter := accessor.NewSyncPairAccessor[int16](node.Identity{Seq: 5}, subSlavePair, false, true)
	subSlaveReader := accessor.NewSyncPairAccessor[int16](node.Identity{Seq: 6}, subSlavePair, true, false)

	trig := NewTrigger[int32]("trig-net", metric.NewMetrics(), triggerReader)
	trig.RegisterSubnetwork("sub-net", BuildSubDispatch[int16](subFeeder, []accessor.Accessor[int16]{subSlaveWriter}))
	trig.Activate()
	defer func() {
		triggerPair.Close()
		trig.Deactivate()
	}()

	subFeederWriter.DoWriteTransfer(&types.Buffer[int16]{Channels: 1, Samples: 1, Data: [][]int16{{99}}})
	triggerFeeder.DoWriteTransfer(buf32(1))

	deadline := time.After(time.Second)
	for {
		buf, _, ok, _ := subSlaveReader.DoReadTransfer(false)
		if ok {
			assert.Equal(t, int16(99), buf.Data[0][0])
			return
		}
		select {
		case <-deadline:
			t.Fatal("trigger fan-out did not dispatch within deadline")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestFeedingIsSafeForConcurrentWrites(t *testing.T) {
	m := metric.NewMetrics()
	f := NewFeeding[int32]("net", m)
	w1, _ := newSyncAccessorPair()
	f.AddSlave(writerHalf(w1))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			_, _ = f.Write(buf32(v))
		}(int32(i))
	}
	wg.Wait()
}
