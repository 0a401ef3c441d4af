package sim

import "gonum.org/v1/gonum/floats"

// CurrentStageNumber marks the injected stage describing what is burning now.
const CurrentStageNumber = -1

// Stage is the computed performance of one staging step. Index 0 is the
// last stage to burn.
type Stage struct {
	Number int

	Thrust               float64 // kN, at stage start
	ActualThrust         float64 // kN
	ThrustToWeight       float64
	MaxThrustToWeight    float64
	ActualThrustToWeight float64
	ISP                  float64 // effective, from ΔV and mass ratio
	DeltaV               float64 // m/s
	Time                 float64 // s

	Mass         float64 // t, parts jettisoned when this stage ends
	Cost         float64
	StartMass    float64 // t, vessel mass when the stage starts
	EndMass      float64 // t, vessel mass when the stage ends
	ResourceMass float64 // t, burnt during the stage

	// TotalMass and TotalCost sum Mass and Cost over this stage and every
	// stage that fires before it. They count jettisoned parts only, so the
	// payload left after stage 0 is not included; use StartMass for the
	// vessel mass.
	TotalMass          float64
	TotalCost          float64
	TotalDeltaV        float64
	TotalTime          float64
	InverseTotalDeltaV float64

	PartCount      int // parts added relative to the stage below
	TotalPartCount int // parts attached when the stage starts

	MaxThrustTorque   float64 // kN·m about the stage-start centre of mass
	ThrustOffsetAngle float64 // degrees
	MaxMach           float64
}

// aggregateStages fills the running totals. Totals sum a stage with every
// stage above it; InverseTotalDeltaV sums a stage with every stage below it.
func aggregateStages(stages []Stage) {
	n := len(stages)
	dv := make([]float64, n)
	t := make([]float64, n)
	m := make([]float64, n)
	c := make([]float64, n)
	for i, s := range stages {
		dv[i], t[i], m[i], c[i] = s.DeltaV, s.Time, s.Mass, s.Cost
	}
	for i := range stages {
		stages[i].TotalDeltaV = floats.Sum(dv[i:])
		stages[i].TotalTime = floats.Sum(t[i:])
		stages[i].TotalMass = floats.Sum(m[i:])
		stages[i].TotalCost = floats.Sum(c[i:])
		stages[i].InverseTotalDeltaV = floats.Sum(dv[:i+1])
		if i > 0 {
			stages[i].PartCount = stages[i].TotalPartCount - stages[i-1].TotalPartCount
		} else {
			stages[i].PartCount = stages[i].TotalPartCount
		}
	}
}
