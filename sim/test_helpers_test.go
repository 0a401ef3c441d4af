package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// partOpt mutates a PartSnapshot under construction.
type partOpt func(*PartSnapshot)

// vesselBuilder assembles test vessels by part name. Parent links add a
// stack or surface attach node on both sides.
type vesselBuilder struct {
	v      Vessel
	byName map[string]int
}

func newVesselBuilder(name string, currentStage int) *vesselBuilder {
	return &vesselBuilder{
		v:      Vessel{Name: name, CurrentStage: currentStage},
		byName: make(map[string]int),
	}
}

// add appends a part under parent ("" for the root) and returns its index.
func (b *vesselBuilder) add(name, parent string, opts ...partOpt) int {
	p := PartSnapshot{
		Name:          name,
		DryMass:       0.1,
		Parent:        -1,
		InverseStage:  0,
		FuelCrossFeed: true,
	}
	for _, o := range opts {
		o(&p)
	}
	idx := len(b.v.Parts)
	if parent != "" {
		pi := b.byName[parent]
		p.Parent = pi
		if p.ParentAttach == AttachStack {
			p.AttachNodes = append(p.AttachNodes, AttachNode{Peer: pi, Kind: AttachStack, Tag: "top"})
			b.v.Parts[pi].AttachNodes = append(b.v.Parts[pi].AttachNodes, AttachNode{Peer: idx, Kind: AttachStack, Tag: "bottom"})
		}
	}
	b.v.Parts = append(b.v.Parts, p)
	b.byName[name] = idx
	return idx
}

func (b *vesselBuilder) idx(name string) int {
	return b.byName[name]
}

func (b *vesselBuilder) vessel() *Vessel {
	return b.v.Clone()
}

func withDryMass(m float64) partOpt {
	return func(p *PartSnapshot) { p.DryMass = m }
}

func withResource(name string, amount float64) partOpt {
	return func(p *PartSnapshot) {
		p.Resources = append(p.Resources, ResourceAmount{Name: name, Amount: amount, MaxAmount: amount, FlowEnabled: true})
	}
}

func withLockedResource(name string, amount float64) partOpt {
	return func(p *PartSnapshot) {
		p.Resources = append(p.Resources, ResourceAmount{Name: name, Amount: amount, MaxAmount: amount})
	}
}

func withStage(s int) partOpt {
	return func(p *PartSnapshot) { p.InverseStage = s }
}

func asDecoupler(s int) partOpt {
	return func(p *PartSnapshot) {
		p.IsDecoupler = true
		p.InverseStage = s
		p.FuelCrossFeed = false
	}
}

func surfaceMounted() partOpt {
	return func(p *PartSnapshot) { p.ParentAttach = AttachSurface }
}

func noCrossFeed() partOpt {
	return func(p *PartSnapshot) { p.FuelCrossFeed = false }
}

func atPosition(x, y, z float64) partOpt {
	return func(p *PartSnapshot) { p.Position = r3.Vec{X: x, Y: y, Z: z} }
}

func withEngine(mod EngineModule) partOpt {
	return func(p *PartSnapshot) { p.Engines = append(p.Engines, mod) }
}

// testEngine returns a full-throttle engine with a constant ISP burning the
// given propellants at maxFlow t/s.
func testEngine(maxFlow, isp float64, props ...Propellant) EngineModule {
	return EngineModule{
		MaxFuelFlow:      maxFlow,
		ThrustPercentage: 100,
		AtmosphereCurve:  ConstantCurve(isp),
		Propellants:      props,
	}
}

func liveEngine(mod EngineModule) EngineModule {
	mod.Active = true
	return mod
}

func prop(name string, ratio float64) Propellant {
	return Propellant{Name: name, Ratio: ratio}
}

// testLibrary has one resource per flow mode, all with density 0.005.
func testLibrary(t *testing.T) *ResourceLibrary {
	t.Helper()
	lib, err := NewResourceLibrary([]ResourceDefinition{
		{Name: "Fuel", Density: 0.005, UnitCost: 1, Flow: FlowStackPrioritySearch},
		{Name: "Solid", Density: 0.005, UnitCost: 1, Flow: FlowNoFlow},
		{Name: "Shared", Density: 0.005, UnitCost: 1, Flow: FlowAllVessel},
		{Name: "Staged", Density: 0.005, UnitCost: 1, Flow: FlowStagePriority},
		{Name: "Charge", Density: 0, UnitCost: 0, Flow: FlowAllVessel},
		{Name: "Weird", Density: 0.005, UnitCost: 1, Flow: "teleport"},
	})
	require.NoError(t, err)
	return lib
}

func typeID(t *testing.T, lib *ResourceLibrary, name string) int {
	t.Helper()
	id, ok := lib.Lookup(name)
	require.True(t, ok, "resource %s", name)
	return id
}

// buildGraph runs only the build phase so tests can query the router and
// the component arena directly.
func buildGraph(t *testing.T, v *Vessel, lib *ResourceLibrary) *StageSimulator {
	t.Helper()
	require.NoError(t, v.Validate(lib))
	s := NewStageSimulator(lib, DefaultRunConfig())
	s.vessel = v
	s.env = Environment{Gravity: StandardGravity}
	require.NoError(t, s.build())
	return s
}

// component returns the arena component built from snapshot index i.
func (s *StageSimulator) component(i int) *Component {
	return s.parts.Get(s.lookup[i])
}

// snapshotIndices maps arena ids back to snapshot indices.
func (s *StageSimulator) snapshotIndices(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.parts.Get(id).snapshot)
	}
	return out
}

// twoStageRocket is capsule / upper tank / upper engine (stage 0) /
// decoupler (stage 1) / lower tank / lower engine (stage 2).
func twoStageRocket(currentStage int, lowerLive bool) *vesselBuilder {
	b := newVesselBuilder("two-stage", currentStage)
	lower := testEngine(0.05, 300, prop("Fuel", 1))
	if lowerLive {
		lower = liveEngine(lower)
	}
	b.add("capsule", "", withDryMass(1), atPosition(0, 4, 0))
	b.add("upper-tank", "capsule", withDryMass(0.5), withResource("Fuel", 200), atPosition(0, 3, 0))
	b.add("upper-engine", "upper-tank", withDryMass(0.5), withEngine(testEngine(0.025, 350, prop("Fuel", 1))), atPosition(0, 2, 0))
	b.add("decoupler", "upper-engine", withDryMass(0.05), asDecoupler(1), atPosition(0, 1.5, 0))
	b.add("lower-tank", "decoupler", withDryMass(1), withResource("Fuel", 800), atPosition(0, 0, 0))
	b.add("lower-engine", "lower-tank", withDryMass(1.5), withStage(2), withEngine(lower), atPosition(0, -1.5, 0))
	return b
}
