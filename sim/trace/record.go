// Package trace provides drain-trace recording for stage simulation analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Outcome explains why a stage's drain loop ended.
type Outcome string

const (
	// OutcomeStaged: the staging predicate allowed the next stage.
	OutcomeStaged Outcome = "staged"
	// OutcomeStalled: a step drained resources without changing vessel mass.
	OutcomeStalled Outcome = "stalled"
	// OutcomeNoDrain: staging was blocked but no component was draining.
	OutcomeNoDrain Outcome = "no-drain"
	// OutcomeIterationCap: the per-stage iteration cap was hit.
	OutcomeIterationCap Outcome = "iteration-cap"
)

// StepRecord captures one drain micro-step.
type StepRecord struct {
	Stage         int     // stage index being simulated
	Step          int     // 1-based step within the stage
	Duration      float64 // simulated seconds advanced
	Elapsed       float64 // seconds since the stage started, after this step
	StartMass     float64 // t
	EndMass       float64 // t
	ActiveEngines int
	DrainingParts int
	Limiting      string // component that emptied first
}

// StageRecord captures the outcome of one stage's drain loop.
type StageRecord struct {
	Stage         int // index in the result array
	Number        int // -1 for the injected current stage
	Iterations    int
	Outcome       Outcome
	ActiveEngines int
	DeltaV        float64
}
