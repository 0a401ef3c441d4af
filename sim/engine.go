package sim

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReferenceDensity is sea-level air density (kg/m³) used to normalise the
// density fed to an engine's flow curve.
const ReferenceDensity = 1.225

// defaultForward points thrust along +Y when a module lists no transforms.
var defaultForward = r3.Vec{Y: -1}

// EngineUnit is the live form of one engine configuration during a run.
type EngineUnit struct {
	ID      int
	Part    int // arena index of the owning component
	ModeKey string

	// Active is the staging state: set when the owning stage fires.
	Active bool
	// starved is set when a consumed resource had no source; it lasts until
	// the next stage activation.
	starved bool

	Thrust       float64 // kN
	ActualThrust float64 // kN
	ISP          float64 // s
	FlowRate     float64 // t/s
	MaxMach      float64
	ThrustVec    r3.Vec // unit vector
	Consumptions ResourceInventory
	Forces       []AppliedForce

	// sources[i] is the source set for Consumptions.Types()[i].
	sources [][]int
}

func (e *EngineUnit) reset() {
	e.ID = -1
	e.Part = -1
	e.ModeKey = ""
	e.Active = false
	e.starved = false
	e.Thrust = 0
	e.ActualThrust = 0
	e.ISP = 0
	e.FlowRate = 0
	e.MaxMach = 0
	e.ThrustVec = r3.Vec{}
	e.Consumptions.Reset()
	e.Forces = e.Forces[:0]
	for i := range e.sources {
		e.sources[i] = e.sources[i][:0]
	}
	e.sources = e.sources[:0]
}

// Starved reports whether the engine lost a resource source during the current stage.
func (e *EngineUnit) Starved() bool {
	return e.starved
}

// configure derives thrust, ISP, flow, consumptions and forces from one module.
func (e *EngineUnit) configure(part *Component, mod *EngineModule, v *Vessel, env Environment, lib *ResourceLibrary) {
	e.Part = part.ID
	e.ModeKey = mod.ModeKey
	e.ActualThrust = mod.ActualThrust

	flowMod := flowModifier(mod, env, &e.MaxMach)
	e.ISP = mod.AtmosphereCurve.Evaluate(env.PressureAtm)
	throttle := mod.ThrustPercentage / 100
	e.Thrust = lerp(mod.MinFuelFlow, mod.MaxFuelFlow, throttle) * flowMod * e.ISP * StandardGravity

	switch {
	case mod.ThrottleLocked:
		e.FlowRate = flowRate(e.Thrust, e.ISP)
	case !v.Landed && v.Throttle > 0:
		e.FlowRate = flowRate(e.ActualThrust, e.ISP)
	default:
		e.FlowRate = flowRate(e.Thrust, e.ISP)
	}

	flowMass := 0.0
	for _, p := range mod.Propellants {
		if p.IgnoreForISP {
			continue
		}
		typ, _ := lib.Lookup(p.Name)
		flowMass += p.Ratio * lib.Density(typ)
	}
	for _, p := range mod.Propellants {
		typ, _ := lib.Lookup(p.Name)
		rate := 0.0
		if flowMass > 0 {
			rate = p.Ratio * e.FlowRate / flowMass
		}
		e.Consumptions.Add(typ, rate)
	}

	transforms := mod.ThrustTransforms
	if len(transforms) == 0 {
		transforms = []ThrustTransform{{Position: part.Position, Forward: defaultForward}}
	}
	var dir r3.Vec
	share := e.Thrust / float64(len(transforms))
	for _, t := range transforms {
		d := unit(r3.Scale(-1, t.Forward))
		dir = r3.Add(dir, d)
		e.Forces = append(e.Forces, AppliedForce{Vector: r3.Scale(share, d), Point: t.Position})
	}
	e.ThrustVec = unit(dir)
}

// ConsumptionMass returns the propellant mass flow in t/s.
func (e *EngineUnit) ConsumptionMass(lib *ResourceLibrary) float64 {
	return e.Consumptions.Mass(lib)
}

// Sources returns the source set last resolved for a consumed type.
func (e *EngineUnit) Sources(typ int) []int {
	i := slices.Index(e.Consumptions.Types(), typ)
	if i < 0 || i >= len(e.sources) {
		return nil
	}
	return e.sources[i]
}

// sourceSlot returns an emptied buffer for the i'th consumed type, growing
// the table while keeping previously allocated buffers.
func (e *EngineUnit) sourceSlot(i int) []int {
	for len(e.sources) <= i {
		if len(e.sources) < cap(e.sources) {
			e.sources = e.sources[:len(e.sources)+1]
		} else {
			e.sources = append(e.sources, nil)
		}
	}
	return e.sources[i][:0]
}

func flowModifier(mod *EngineModule, env Environment, maxMach *float64) float64 {
	m := 1.0
	if mod.AtmChangeFlow {
		m = env.DensityKgM3 / ReferenceDensity
		if mod.AtmCurve != nil {
			m = mod.AtmCurve.Evaluate(m)
		}
	}
	if mod.UseVelCurve && mod.VelCurve != nil {
		m *= mod.VelCurve.Evaluate(env.Mach)
		*maxMach = mod.VelCurve.MaxTime()
	}
	if m < math.SmallestNonzeroFloat32 {
		m = math.SmallestNonzeroFloat32
	}
	return m
}

func flowRate(thrust, isp float64) float64 {
	if isp <= 0 {
		return 0
	}
	return thrust / (isp * StandardGravity)
}

func lerp(a, b, t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return a + (b-a)*t
}

func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// liveModules returns the engine modules that become EngineUnits: the one
// matching the selected mode, or all of them when no mode is selected.
func liveModules(p *PartSnapshot) []int {
	var idx []int
	for i := range p.Engines {
		if p.SelectedMode == "" || p.Engines[i].ModeKey == p.SelectedMode {
			idx = append(idx, i)
		}
	}
	return idx
}
