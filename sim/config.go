package sim

import (
	"fmt"

	"github.com/stagesim/stagesim/sim/trace"
)

// DefaultMaxIterations bounds the drain loop of a single stage.
const DefaultMaxIterations = 1000

// Environment groups the ambient conditions a run is evaluated in.
type Environment struct {
	Gravity     float64 // local gravity for thrust-to-weight, m/s²
	PressureAtm float64 // static pressure fed to ISP curves, atm (0 = vacuum)
	DensityKgM3 float64 // air density fed to flow curves
	Mach        float64 // mach number fed to velocity curves
}

// Vacuum returns the environment with the atmosphere removed.
func (e Environment) Vacuum() Environment {
	return Environment{Gravity: e.Gravity}
}

// Validate rejects negative or non-finite conditions.
func (e Environment) Validate() error {
	if e.Gravity < 0 {
		return fmt.Errorf("gravity must be non-negative, got %f", e.Gravity)
	}
	if e.PressureAtm < 0 {
		return fmt.Errorf("pressure must be non-negative, got %f", e.PressureAtm)
	}
	if e.DensityKgM3 < 0 {
		return fmt.Errorf("density must be non-negative, got %f", e.DensityKgM3)
	}
	if e.Mach < 0 {
		return fmt.Errorf("mach must be non-negative, got %f", e.Mach)
	}
	return nil
}

// RunConfig groups the tunables of a StageSimulator.
type RunConfig struct {
	MaxIterations int               // drain loop cap per stage (default 1000)
	Trace         trace.TraceConfig // drain tracing (default none)
}

// DefaultRunConfig returns the production settings.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxIterations: DefaultMaxIterations,
		Trace:         trace.TraceConfig{Level: trace.TraceLevelNone},
	}
}

// Validate checks the configured values.
func (c RunConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if !trace.IsValidTraceLevel(string(c.Trace.Level)) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	return nil
}
