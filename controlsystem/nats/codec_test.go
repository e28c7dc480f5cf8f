package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrlmesh/ctrlmesh/types"
)

func TestEncodeDecodeBufferRoundTripsInt32(t *testing.T) {
	buf := types.NewBuffer[int32](2, 3)
	buf.Data[0] = []int32{1, 2, 3}
	buf.Data[1] = []int32{-1, -2, -3}

	data, err := encodeBuffer(buf)
	require.NoError(t, err)

	got, err := decodeBuffer[int32](data)
	require.NoError(t, err)
	assert.True(t, buf.Equal(got))
}

func TestEncodeDecodeBufferRoundTripsFloat64(t *testing.T) {
	buf := types.NewBuffer[float64](1, 4)
	buf.Data[0] = []float64{1.5, -2.25, 0, 100.125}

	data, err := encodeBuffer(buf)
	require.NoError(t, err)

	got, err := decodeBuffer[float64](data)
	require.NoError(t, err)
	assert.True(t, buf.Equal(got))
}

func TestEncodeDecodeBufferRoundTripsSingleSampleUint8(t *testing.T) {
	buf := types.NewBuffer[uint8](1, 1)
	buf.Data[0][0] = 255

	data, err := encodeBuffer(buf)
	require.NoError(t, err)

	got, err := decodeBuffer[uint8](data)
	require.NoError(t, err)
	assert.Equal(t, buf.Data, got.Data)
}

func TestDecodeBufferRejectsTruncatedPayload(t *testing.T) {
	buf := types.NewBuffer[int16](1, 4)
	data, err := encodeBuffer(buf)
	require.NoError(t, err)

	_, err = decodeBuffer[int16](data[:len(data)-2])
	assert.Error(t, err)
}
