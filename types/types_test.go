package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveWildcards(t *testing.T) {
	u, ok := Resolve(Any, Any)
	assert.True(t, ok)
	assert.Equal(t, Any, u)

	u, ok = Resolve(Any, Int32)
	assert.True(t, ok)
	assert.Equal(t, Int32, u)

	u, ok = Resolve(Float64, Any)
	assert.True(t, ok)
	assert.Equal(t, Float64, u)

	u, ok = Resolve(Int32, Int32)
	assert.True(t, ok)
	assert.Equal(t, Int32, u)

	_, ok = Resolve(Int32, Float32)
	assert.False(t, ok)
}

func TestAllIsClosed(t *testing.T) {
	all := All()
	assert.Len(t, all, 11)
	for _, u := range all {
		assert.True(t, u.IsConcrete())
	}
	assert.False(t, Any.IsConcrete())
}

func TestUStringNamesEveryTag(t *testing.T) {
	for _, u := range append([]U{Any}, All()...) {
		assert.NotContains(t, u.String(), "U(")
	}
}

func TestBufferCloneIsIndependent(t *testing.T) {
	b := NewBuffer[int32](1, 4)
	b.Data[0] = []int32{1, 2, 3, 4}

	clone := b.Clone()
	assert.True(t, b.Equal(clone))

	clone.Data[0][0] = 99
	assert.False(t, b.Equal(clone))
}

func TestBufferEqualShapeMismatch(t *testing.T) {
	a := NewBuffer[int32](1, 4)
	b := NewBuffer[int32](1, 3)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
