package sim

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// CurveKey is one key frame of a FloatCurve. A nil Tangent lets the curve
// derive a monotone slope from the neighbouring keys.
type CurveKey struct {
	Time    float64
	Value   float64
	Tangent *float64
}

// FloatCurve is a key-framed curve evaluated by cubic Hermite interpolation
// and clamped outside its key range. It is immutable once built.
type FloatCurve struct {
	keys      []CurveKey
	predictor interp.Predictor
}

// NewFloatCurve fits a curve through keys. Times must be strictly increasing.
// If every key carries a tangent the curve is a Hermite spline through those
// tangents; otherwise tangents are derived with the Fritsch-Butland method.
func NewFloatCurve(keys []CurveKey) (*FloatCurve, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("curve needs at least one key")
	}
	c := &FloatCurve{keys: append([]CurveKey(nil), keys...)}
	if len(keys) == 1 {
		return c, nil
	}

	xs := make([]float64, len(keys))
	ys := make([]float64, len(keys))
	allTangents := true
	for i, k := range keys {
		if i > 0 && k.Time <= keys[i-1].Time {
			return nil, fmt.Errorf("curve key times must be strictly increasing (key %d: %g after %g)", i, k.Time, keys[i-1].Time)
		}
		xs[i], ys[i] = k.Time, k.Value
		if k.Tangent == nil {
			allTangents = false
		}
	}

	if allTangents {
		dydxs := make([]float64, len(keys))
		for i, k := range keys {
			dydxs[i] = *k.Tangent
		}
		var pc interp.PiecewiseCubic
		pc.FitWithDerivatives(xs, ys, dydxs)
		c.predictor = &pc
		return c, nil
	}

	var fb interp.FritschButland
	if err := fb.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fitting curve: %w", err)
	}
	c.predictor = &fb
	return c, nil
}

// ConstantCurve returns a curve that evaluates to v everywhere.
func ConstantCurve(v float64) *FloatCurve {
	return &FloatCurve{keys: []CurveKey{{Time: 0, Value: v}}}
}

// Evaluate returns the curve value at t.
func (c *FloatCurve) Evaluate(t float64) float64 {
	if c.predictor == nil {
		return c.keys[0].Value
	}
	first, last := c.keys[0], c.keys[len(c.keys)-1]
	if t <= first.Time {
		return first.Value
	}
	if t >= last.Time {
		return last.Value
	}
	return c.predictor.Predict(t)
}

// MinTime returns the time of the first key.
func (c *FloatCurve) MinTime() float64 {
	return c.keys[0].Time
}

// MaxTime returns the time of the last key.
func (c *FloatCurve) MaxTime() float64 {
	return c.keys[len(c.keys)-1].Time
}

// Keys returns a copy of the curve's key frames.
func (c *FloatCurve) Keys() []CurveKey {
	return append([]CurveKey(nil), c.keys...)
}
