package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tangent(v float64) *float64 { return &v }

func TestFloatCurve_TwoKeys_Linear(t *testing.T) {
	// GIVEN a vacuum/sea-level ISP curve
	c, err := NewFloatCurve([]CurveKey{{Time: 0, Value: 345}, {Time: 1, Value: 290}})
	require.NoError(t, err)

	// THEN interior points interpolate linearly and the ends clamp
	assert.InDelta(t, 345.0, c.Evaluate(0), 1e-12)
	assert.InDelta(t, 317.5, c.Evaluate(0.5), 1e-9)
	assert.InDelta(t, 290.0, c.Evaluate(1), 1e-12)
	assert.Equal(t, 345.0, c.Evaluate(-3))
	assert.Equal(t, 290.0, c.Evaluate(7))
	assert.Equal(t, 0.0, c.MinTime())
	assert.Equal(t, 1.0, c.MaxTime())
}

func TestFloatCurve_PassesThroughKeys(t *testing.T) {
	keys := []CurveKey{{Time: 0, Value: 0}, {Time: 1, Value: 1}, {Time: 2, Value: 4}, {Time: 3, Value: 9}}
	c, err := NewFloatCurve(keys)
	require.NoError(t, err)
	for _, k := range keys {
		assert.InDelta(t, k.Value, c.Evaluate(k.Time), 1e-9)
	}
	// Monotone data stays monotone between keys
	assert.Greater(t, c.Evaluate(2.5), 4.0)
	assert.Less(t, c.Evaluate(2.5), 9.0)
}

func TestFloatCurve_ExplicitTangents(t *testing.T) {
	// A flat-tangent bump peaks at the middle key
	c, err := NewFloatCurve([]CurveKey{
		{Time: 0, Value: 0, Tangent: tangent(0)},
		{Time: 1, Value: 1, Tangent: tangent(0)},
		{Time: 2, Value: 0, Tangent: tangent(0)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.Evaluate(1), 1e-12)
	assert.InDelta(t, 0.5, c.Evaluate(0.5), 1e-9)
	assert.InDelta(t, 0.5, c.Evaluate(1.5), 1e-9)
}

func TestFloatCurve_SingleKeyAndConstant(t *testing.T) {
	c, err := NewFloatCurve([]CurveKey{{Time: 4, Value: 12}})
	require.NoError(t, err)
	assert.Equal(t, 12.0, c.Evaluate(-100))
	assert.Equal(t, 12.0, c.Evaluate(100))

	k := ConstantCurve(800)
	assert.Equal(t, 800.0, k.Evaluate(0.3))
	assert.Len(t, k.Keys(), 1)
}

func TestNewFloatCurve_RejectsBadKeys(t *testing.T) {
	_, err := NewFloatCurve(nil)
	assert.Error(t, err)

	_, err = NewFloatCurve([]CurveKey{{Time: 1, Value: 1}, {Time: 1, Value: 2}})
	assert.ErrorContains(t, err, "strictly increasing")
}
