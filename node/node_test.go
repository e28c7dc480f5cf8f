package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctrlmesh/ctrlmesh/types"
)

func TestNewNodeConstructorsAssignUniqueIdentities(t *testing.T) {
	a := NewApplicationNode("myModule", "dac0", DirectionFeeding, ModePush, "V", "output voltage", types.Float32, 1)
	b := NewApplicationNode("myModule", "dac1", DirectionFeeding, ModePush, "V", "output voltage", types.Float32, 1)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "myModule/dac0", a.QualifiedName())
}

func TestDeviceNodeQualifiedName(t *testing.T) {
	d := NewDeviceNode("board0", "/ADC/raw", ModePoll, types.Int16, 16)
	assert.Equal(t, "board0:/ADC/raw", d.QualifiedName())
	assert.True(t, d.IsFeeder())
}

func TestConstantIsAlwaysFeederAndRejectsTrigger(t *testing.T) {
	c := NewConstantNode(0, types.Uint32, 1)
	assert.True(t, c.IsFeeder())

	target := NewApplicationNode("m", "x", DirectionConsuming, ModePush, "", "", types.Uint32, 1)
	err := target.SetTrigger(c)
	require.Error(t, err)
}

func TestSetTriggerAcceptsNonConstant(t *testing.T) {
	trigger := NewControlSystemNode("tick", types.Boolean8, 1)
	target := NewDeviceNode("board0", "/ADC/raw", ModePoll, types.Int16, 16)

	err := target.SetTrigger(trigger)
	require.NoError(t, err)
	assert.Same(t, trigger, target.Trigger)
}

func TestTriggerReceiverIsConsumingByConstruction(t *testing.T) {
	tr := NewTriggerReceiverNode("net-x", types.Int32, 4)
	assert.Equal(t, DirectionConsuming, tr.Direction)
	assert.Equal(t, KindTriggerReceiver, tr.Kind)
}
