package sim

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// AttachMode is how a part is attached to a neighbour.
type AttachMode int

const (
	// AttachStack is an axial node-to-node attachment.
	AttachStack AttachMode = iota
	// AttachSurface is a radial attachment to the neighbour's surface.
	AttachSurface
)

func (m AttachMode) String() string {
	if m == AttachSurface {
		return "surface"
	}
	return "stack"
}

// ParseAttachMode converts "stack" or "surface" (empty means stack).
func ParseAttachMode(s string) (AttachMode, error) {
	switch s {
	case "", "stack":
		return AttachStack, nil
	case "surface", "srf":
		return AttachSurface, nil
	}
	return AttachStack, fmt.Errorf("unknown attach mode %q", s)
}

// StrutNodeTag marks a structural attachment that never carries fuel.
const StrutNodeTag = "Strut"

// AttachNode is one attachment from a part to a peer, by part index.
type AttachNode struct {
	Peer int
	Kind AttachMode
	Tag  string
}

// ResourceAmount is one resource held by a part.
type ResourceAmount struct {
	Name        string
	Amount      float64
	MaxAmount   float64
	FlowEnabled bool
}

// Propellant is one entry of an engine's propellant mix.
type Propellant struct {
	Name         string
	Ratio        float64
	IgnoreForISP bool
}

// ThrustTransform is one point where an engine applies thrust. Thrust acts
// along -Forward.
type ThrustTransform struct {
	Position r3.Vec
	Forward  r3.Vec
}

// EngineModule is one engine configuration on a part. A multi-mode engine
// carries several, distinguished by ModeKey.
type EngineModule struct {
	ModeKey          string
	MinFuelFlow      float64 // t/s
	MaxFuelFlow      float64 // t/s
	ThrustPercentage float64 // 0..100
	ThrottleLocked   bool
	ThrustTransforms []ThrustTransform
	AtmosphereCurve  *FloatCurve // ISP by pressure (atm)
	AtmChangeFlow    bool
	AtmCurve         *FloatCurve // flow multiplier by density ratio; nil = identity
	UseVelCurve      bool
	VelCurve         *FloatCurve // flow multiplier by mach
	Propellants      []Propellant
	Active           bool    // currently ignited on the live vehicle
	ActualThrust     float64 // thrust realised on the live vehicle, kN
}

// PartSnapshot is a copy of one live vehicle part. Parent, attach node peers
// and fuel line targets are indices into Vessel.Parts (-1 for none).
type PartSnapshot struct {
	Name               string
	DryMass            float64 // t
	Cost               float64 // dry cost; resource cost is added from the library
	Position           r3.Vec
	InverseStage       int
	Parent             int
	ParentAttach       AttachMode
	AttachNodes        []AttachNode
	FuelLineTargets    []int
	Resources          []ResourceAmount
	Engines            []EngineModule
	SelectedMode       string
	IsDecoupler        bool
	IsLaunchClamp      bool
	IsNoPhysics        bool
	IsSepratron        bool
	FuelCrossFeed      bool
	NoCrossFeedNodeKey string
}

// Vessel is a self-contained snapshot of a vehicle. Nothing in it aliases
// live state, so it may be handed to another goroutine.
type Vessel struct {
	Name         string
	CurrentStage int // the declared last stage, i.e. the next stage to fire + 1
	Throttle     float64
	Landed       bool
	Parts        []PartSnapshot
}

// Clone returns a deep copy. Curves are immutable and shared.
func (v *Vessel) Clone() *Vessel {
	out := *v
	out.Parts = make([]PartSnapshot, len(v.Parts))
	for i, p := range v.Parts {
		p.AttachNodes = slices.Clone(p.AttachNodes)
		p.FuelLineTargets = slices.Clone(p.FuelLineTargets)
		p.Resources = slices.Clone(p.Resources)
		engines := make([]EngineModule, len(p.Engines))
		for j, e := range p.Engines {
			e.ThrustTransforms = slices.Clone(e.ThrustTransforms)
			e.Propellants = slices.Clone(e.Propellants)
			engines[j] = e
		}
		p.Engines = engines
		out.Parts[i] = p
	}
	return &out
}

// Validate checks indices, resource names and engine parameters.
func (v *Vessel) Validate(lib *ResourceLibrary) error {
	n := len(v.Parts)
	if n == 0 {
		return fmt.Errorf("vessel %q has no parts", v.Name)
	}
	if v.CurrentStage < 0 {
		return fmt.Errorf("vessel %q: current stage must be non-negative, got %d", v.Name, v.CurrentStage)
	}
	inRange := func(i int) bool { return i >= 0 && i < n }
	for i, p := range v.Parts {
		if p.Parent != -1 && !inRange(p.Parent) {
			return fmt.Errorf("part %d (%s): parent index %d out of range", i, p.Name, p.Parent)
		}
		if p.Parent == i {
			return fmt.Errorf("part %d (%s): part is its own parent", i, p.Name)
		}
		if p.DryMass < 0 {
			return fmt.Errorf("part %d (%s): dry mass must be non-negative, got %f", i, p.Name, p.DryMass)
		}
		for _, node := range p.AttachNodes {
			if node.Peer != -1 && !inRange(node.Peer) {
				return fmt.Errorf("part %d (%s): attach node peer %d out of range", i, p.Name, node.Peer)
			}
		}
		for _, t := range p.FuelLineTargets {
			if !inRange(t) {
				return fmt.Errorf("part %d (%s): fuel line target %d out of range", i, p.Name, t)
			}
		}
		for _, r := range p.Resources {
			if _, ok := lib.Lookup(r.Name); !ok {
				return fmt.Errorf("part %d (%s): unknown resource %q", i, p.Name, r.Name)
			}
		}
		for j, e := range p.Engines {
			if e.AtmosphereCurve == nil {
				return fmt.Errorf("part %d (%s): engine %d has no atmosphere curve", i, p.Name, j)
			}
			if e.MinFuelFlow < 0 || e.MaxFuelFlow < e.MinFuelFlow {
				return fmt.Errorf("part %d (%s): engine %d fuel flow bounds invalid (min=%g, max=%g)", i, p.Name, j, e.MinFuelFlow, e.MaxFuelFlow)
			}
			if e.ThrustPercentage < 0 || e.ThrustPercentage > 100 {
				return fmt.Errorf("part %d (%s): engine %d thrust percentage must be in [0,100], got %g", i, p.Name, j, e.ThrustPercentage)
			}
			for _, prop := range e.Propellants {
				if _, ok := lib.Lookup(prop.Name); !ok {
					return fmt.Errorf("part %d (%s): engine %d uses unknown propellant %q", i, p.Name, j, prop.Name)
				}
			}
		}
	}
	return nil
}
