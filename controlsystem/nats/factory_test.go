package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorySubjectAddsPrefixAndReplacesSlashes(t *testing.T) {
	client := NewClient("nats://unused:4222")
	f := NewFactory(client, "public")
	assert.Equal(t, "public.beamline.current", f.subject("beamline/current"))
}

func TestFactorySubjectOmitsPrefixWhenEmpty(t *testing.T) {
	client := NewClient("nats://unused:4222")
	f := NewFactory(client, "")
	assert.Equal(t, "beamline.current", f.subject("beamline/current"))
}

func TestFactoryInt32ProducesAnAdapterForTheComputedSubject(t *testing.T) {
	client := NewClient("nats://unused:4222")
	f := NewFactory(client, "public")

	a, err := f.Int32("beamline/current", 1, true, "A", "beam current")
	require.NoError(t, err)
	require.NotNil(t, a)

	adapter, ok := a.(*Adapter[int32])
	require.True(t, ok)
	assert.Equal(t, "public.beamline.current", adapter.subject)
	assert.True(t, adapter.feeding)
}

func TestFactoryBoolean8SharesInt8Representation(t *testing.T) {
	client := NewClient("nats://unused:4222")
	f := NewFactory(client, "public")

	a, err := f.Boolean8("interlock/tripped", 1, false, "", "")
	require.NoError(t, err)

	_, ok := a.(*Adapter[int8])
	assert.True(t, ok)
}
