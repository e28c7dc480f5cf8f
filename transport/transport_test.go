package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrlmesh/ctrlmesh/types"
)

func bufOf(v int32) *types.Buffer[int32] {
	b := types.NewBuffer[int32](1, 1)
	b.Data[0][0] = v
	return b
}

func TestRoundTripFIFOOrder(t *testing.T) {
	pair := NewPushPair[int32](8)

	var lastVersion Version
	for _, v := range []int32{1, 2, 3} {
		lost := pair.Write(bufOf(v))
		assert.False(t, lost)
	}

	for _, want := range []int32{1, 2, 3} {
		buf, version, ok := pair.ReadBlocking(nil, nil)
		require.True(t, ok)
		assert.Equal(t, want, buf.Data[0][0])
		assert.Greater(t, version, lastVersion)
		lastVersion = version
	}
}

func TestQueueOverflowSetsDataLost(t *testing.T) {
	pair := NewPushPair[int32](2)

	assert.False(t, pair.Write(bufOf(1)))
	assert.False(t, pair.Write(bufOf(2)))
	assert.True(t, pair.Write(bufOf(3))) // overflow, drops oldest (1)

	buf, _, ok := pair.ReadNonBlocking()
	require.True(t, ok)
	assert.Equal(t, int32(2), buf.Data[0][0], "oldest value should have been dropped")
	assert.True(t, pair.DataLost())
}

func TestReadNonBlockingOnEmptyQueue(t *testing.T) {
	pair := NewPushPair[int32](4)
	_, _, ok := pair.ReadNonBlocking()
	assert.False(t, ok)
}

func TestReadLatestDrainsQueue(t *testing.T) {
	pair := NewPushPair[int32](8)
	pair.Write(bufOf(1))
	pair.Write(bufOf(2))
	pair.Write(bufOf(3))

	buf, _, ok := pair.ReadLatest()
	require.True(t, ok)
	assert.Equal(t, int32(3), buf.Data[0][0])
	assert.Equal(t, 0, pair.Pending())
}

func TestReadBlockingWaitsForWrite(t *testing.T) {
	pair := NewPushPair[int32](4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int32
	go func() {
		defer wg.Done()
		buf, _, ok := pair.ReadBlocking(nil, nil)
		if ok {
			got = buf.Data[0][0]
		}
	}()

	time.Sleep(10 * time.Millisecond)
	pair.Write(bufOf(42))
	wg.Wait()

	assert.Equal(t, int32(42), got)
}

func TestCloseUnblocksReader(t *testing.T) {
	pair := NewPushPair[int32](4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, ok := pair.ReadBlocking(nil, nil)
		assert.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	pair.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadBlocking did not unblock after Close")
	}
}

func TestReleaseReacquireHooksCalledAcrossWait(t *testing.T) {
	pair := NewPushPair[int32](4)

	var released, reacquired bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		pair.ReadBlocking(func() { released = true }, func() { reacquired = true })
	}()

	time.Sleep(10 * time.Millisecond)
	pair.Write(bufOf(1))
	<-done

	assert.True(t, released)
	assert.True(t, reacquired)
}

func TestPollPairFetchesOnRead(t *testing.T) {
	calls := 0
	pair := NewPollPair[int16](func() (*types.Buffer[int16], error) {
		calls++
		b := types.NewBuffer[int16](1, 1)
		b.Data[0][0] = int16(calls)
		return b, nil
	})

	buf, v1, ok := pair.ReadBlocking(nil, nil)
	require.True(t, ok)
	assert.Equal(t, int16(1), buf.Data[0][0])

	buf, v2, ok := pair.ReadBlocking(nil, nil)
	require.True(t, ok)
	assert.Equal(t, int16(2), buf.Data[0][0])
	assert.Greater(t, v2, v1)
}
