package sim

import "gonum.org/v1/gonum/spatial/r3"

// AppliedForce is a force vector acting at a point.
type AppliedForce struct {
	Vector r3.Vec
	Point  r3.Vec
}

// ForceAccumulator keeps running sums of applied forces so the total force,
// the magnitude-weighted application point and the torque about any origin
// can be read without storing the individual forces.
type ForceAccumulator struct {
	total    r3.Vec
	moment   r3.Vec // Σ point × force
	weighted r3.Vec // Σ point · |force|
	weight   float64
}

// Reset clears all sums.
func (f *ForceAccumulator) Reset() {
	*f = ForceAccumulator{}
}

// Add accumulates one force.
func (f *ForceAccumulator) Add(af AppliedForce) {
	f.total = r3.Add(f.total, af.Vector)
	f.moment = r3.Add(f.moment, r3.Cross(af.Point, af.Vector))
	mag := r3.Norm(af.Vector)
	f.weighted = r3.Add(f.weighted, r3.Scale(mag, af.Point))
	f.weight += mag
}

// TotalForce returns the vector sum of all forces.
func (f *ForceAccumulator) TotalForce() r3.Vec {
	return f.total
}

// AverageLocation returns the application point weighted by force magnitude,
// or the zero vector if no force has been added.
func (f *ForceAccumulator) AverageLocation() r3.Vec {
	if f.weight == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/f.weight, f.weighted)
}

// TorqueAt returns Σ (point - origin) × force.
func (f *ForceAccumulator) TorqueAt(origin r3.Vec) r3.Vec {
	return r3.Sub(f.moment, r3.Cross(origin, f.total))
}
