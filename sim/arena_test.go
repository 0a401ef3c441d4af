package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArena_BorrowReleaseReusesSlots(t *testing.T) {
	var a Arena[Component, *Component]
	i0, c0 := a.Borrow()
	i1, _ := a.Borrow()
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, 2, a.Count())

	c0.Name = "tank"
	c0.Resources.Set(0, 10, true)
	a.Release(i0)
	assert.False(t, a.Live(i0))
	assert.Nil(t, a.Get(i0))

	// The freed slot comes back reset
	i2, c2 := a.Borrow()
	assert.Equal(t, i0, i2)
	assert.Empty(t, c2.Name)
	assert.Zero(t, c2.Resources.Len())
	assert.Equal(t, -1, c2.Parent)
	assert.Equal(t, 2, a.Cap())
}

func TestArena_ReleaseAll_BorrowsBackInAscendingOrder(t *testing.T) {
	var a Arena[EngineUnit, *EngineUnit]
	for i := 0; i < 3; i++ {
		a.Borrow()
	}
	a.ReleaseAll()
	assert.Zero(t, a.Count())

	for want := 0; want < 3; want++ {
		got, _ := a.Borrow()
		assert.Equal(t, want, got)
	}
}

func TestArena_DoubleReleaseIsNoOp(t *testing.T) {
	var a Arena[EngineUnit, *EngineUnit]
	a.Borrow()
	i, _ := a.Borrow()
	a.Release(i)
	a.Release(i)
	assert.Equal(t, 1, a.Count())

	// Only one copy of the index went onto the free stack
	j, _ := a.Borrow()
	k, _ := a.Borrow()
	assert.Equal(t, i, j)
	assert.Equal(t, 2, k)
}

func TestArena_GetOutOfRange(t *testing.T) {
	var a Arena[Component, *Component]
	assert.Nil(t, a.Get(-1))
	assert.Nil(t, a.Get(5))
}

func TestBitset(t *testing.T) {
	var b bitset
	b.grow(130)
	assert.False(t, b.has(129))
	b.set(129)
	b.set(0)
	assert.True(t, b.has(129))
	assert.True(t, b.has(0))
	assert.False(t, b.has(-1))
	assert.False(t, b.has(1000))
	b.clear()
	assert.False(t, b.has(129))
}
