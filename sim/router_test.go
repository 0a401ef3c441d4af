package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_NoFlow_ReturnsAtMostTheStartComponent(t *testing.T) {
	lib := testLibrary(t)
	solid := typeID(t, lib, "Solid")
	b := newVesselBuilder("srb", 1)
	b.add("booster", "", withResource("Solid", 50))
	b.add("nose", "booster", withResource("Solid", 50))
	b.add("empty", "booster")
	s := buildGraph(t, b.vessel(), lib)

	tests := []struct {
		name  string
		start string
		want  []int
	}{
		{"self with fuel", "booster", []int{b.idx("booster")}},
		{"neighbour fuel ignored", "empty", []int{}},
		{"other tank", "nose", []int{b.idx("nose")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.router.FindSources(solid, s.lookup[b.idx(tt.start)])
			assert.LessOrEqual(t, len(got), 1)
			assert.ElementsMatch(t, tt.want, s.snapshotIndices(got))
		})
	}
}

func TestRouter_AllVessel_ReturnsEveryHolder(t *testing.T) {
	lib := testLibrary(t)
	shared := typeID(t, lib, "Shared")
	b := newVesselBuilder("batteries", 1)
	b.add("core", "")
	b.add("a", "core", withResource("Shared", 10))
	b.add("b", "core", surfaceMounted(), withResource("Shared", 5))
	b.add("c", "core", withLockedResource("Shared", 5))
	s := buildGraph(t, b.vessel(), lib)

	got := s.router.FindSources(shared, s.lookup[b.idx("core")])

	// Flow-disabled "c" is excluded
	assert.ElementsMatch(t, []int{b.idx("a"), b.idx("b")}, s.snapshotIndices(got))
}

func TestRouter_StagePriority_PrefersHighestDecoupledStage(t *testing.T) {
	lib := testLibrary(t)
	staged := typeID(t, lib, "Staged")
	b := newVesselBuilder("rcs", 3)
	b.add("pod", "", withResource("Staged", 10))
	b.add("sep", "pod", asDecoupler(2))
	b.add("lower-a", "sep", withResource("Staged", 10))
	b.add("lower-b", "lower-a", surfaceMounted(), withResource("Staged", 10))
	s := buildGraph(t, b.vessel(), lib)

	got := s.router.FindSources(staged, s.lookup[b.idx("pod")])

	assert.ElementsMatch(t, []int{b.idx("lower-a"), b.idx("lower-b")}, s.snapshotIndices(got))
}

func TestRouter_PrioritySearch_UnionsStackNeighbours(t *testing.T) {
	// GIVEN an engine stacked between two equal tanks
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("twin", 1)
	b.add("top-tank", "", withResource("Fuel", 50))
	b.add("engine", "top-tank", withEngine(liveEngine(testEngine(0.05, 300, prop("Fuel", 1)))))
	b.add("bottom-tank", "engine", withResource("Fuel", 50))
	s := buildGraph(t, b.vessel(), lib)

	// WHEN sources are resolved from the engine
	got := s.router.FindSources(fuel, s.lookup[b.idx("engine")])

	// THEN both tanks supply
	assert.ElementsMatch(t, []int{b.idx("top-tank"), b.idx("bottom-tank")}, s.snapshotIndices(got))

	// AND the 10 units/s demand splits evenly
	s.updateResourceDrains()
	require.Len(t, s.activeEngines, 1)
	assert.InDelta(t, 5.0, s.component(b.idx("top-tank")).Drains.Get(fuel), 1e-9)
	assert.InDelta(t, 5.0, s.component(b.idx("bottom-tank")).Drains.Get(fuel), 1e-9)
	assert.InDelta(t, 10.0, s.component(b.idx("top-tank")).TimeToDrainResource(), 1e-9)
}

func TestRouter_PrioritySearch_SurfaceChildWithoutCrossFeedDoesNotReachParent(t *testing.T) {
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	for _, tt := range []struct {
		name      string
		crossFeed bool
		want      []int
	}{
		{"cross-feed disabled", false, []int{}},
		{"cross-feed enabled", true, []int{0}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := newVesselBuilder("radial", 1)
			b.add("tank", "", withResource("Fuel", 100))
			opts := []partOpt{surfaceMounted()}
			if !tt.crossFeed {
				opts = append(opts, noCrossFeed())
			}
			b.add("radial-engine", "tank", opts...)
			s := buildGraph(t, b.vessel(), lib)

			got := s.router.FindSources(fuel, s.lookup[b.idx("radial-engine")])

			assert.ElementsMatch(t, tt.want, s.snapshotIndices(got))
		})
	}
}

func TestRouter_PrioritySearch_EmptyTankBlocksSearch(t *testing.T) {
	// GIVEN engine → (surface) empty tank → (surface) full tank
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("blocked", 1)
	b.add("full", "", withResource("Fuel", 100))
	b.add("middle", "full", surfaceMounted(), withResource("Fuel", 0))
	b.add("engine", "middle", surfaceMounted())
	s := buildGraph(t, b.vessel(), lib)

	// THEN the present-but-empty middle tank stops the search
	assert.Empty(t, s.router.FindSources(fuel, s.lookup[b.idx("engine")]))

	// WHEN the middle part does not hold the type at all
	b2 := newVesselBuilder("transparent", 1)
	b2.add("full", "", withResource("Fuel", 100))
	b2.add("middle", "full", surfaceMounted())
	b2.add("engine", "middle", surfaceMounted())
	s2 := buildGraph(t, b2.vessel(), lib)

	// THEN the search continues to the parent
	got := s2.router.FindSources(fuel, s2.lookup[b2.idx("engine")])
	assert.ElementsMatch(t, []int{b2.idx("full")}, s2.snapshotIndices(got))
}

func TestRouter_PrioritySearch_PipesTakePrecedence(t *testing.T) {
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("piped", 1)
	b.add("core", "", withResource("Fuel", 100))
	b.add("engine", "core")
	b.add("side", "core", surfaceMounted(), withResource("Fuel", 100))
	pipe := b.add("pipe", "side", surfaceMounted())
	v := b.vessel()
	v.Parts[pipe].FuelLineTargets = []int{b.idx("core")}
	s := buildGraph(t, v, lib)

	// The pipe's source (its parent "side") is registered on the target "core".
	assert.Equal(t, []int{s.lookup[b.idx("side")]}, s.component(b.idx("core")).FuelTargets)

	got := s.router.FindSources(fuel, s.lookup[b.idx("engine")])
	assert.ElementsMatch(t, []int{b.idx("side")}, s.snapshotIndices(got))
}

func TestRouter_PrioritySearch_PipeCycleTerminates(t *testing.T) {
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("loop", 1)
	b.add("a", "", noCrossFeed())
	b.add("b", "a", noCrossFeed(), surfaceMounted())
	s := buildGraph(t, b.vessel(), lib)
	a, bb := s.component(b.idx("a")), s.component(b.idx("b"))
	a.FuelTargets = append(a.FuelTargets, bb.ID)
	bb.FuelTargets = append(bb.FuelTargets, a.ID)

	// Neither holds fuel: the second visit of "a" is empty
	assert.Empty(t, s.router.FindSources(fuel, a.ID))

	bb.Resources.Set(fuel, 10, true)
	got := s.router.FindSources(fuel, a.ID)
	assert.ElementsMatch(t, []int{b.idx("b")}, s.snapshotIndices(got))
}

func TestRouter_StrutNodesNeverCarryFuel(t *testing.T) {
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("strut", 1)
	b.add("engine", "")
	b.add("tank", "", withResource("Fuel", 100))
	v := b.vessel()
	v.Parts[0].AttachNodes = []AttachNode{{Peer: 1, Kind: AttachStack, Tag: StrutNodeTag}}
	s := buildGraph(t, v, lib)

	assert.Empty(t, s.component(0).AttachNodes)
	assert.Empty(t, s.router.FindSources(fuel, s.lookup[0]))
}

func TestRouter_NoCrossFeedNodeKeyExcludesTaggedEdge(t *testing.T) {
	lib := testLibrary(t)
	fuel := typeID(t, lib, "Fuel")
	b := newVesselBuilder("valve", 1)
	b.add("tank", "", withResource("Fuel", 100))
	b.add("engine", "tank", func(p *PartSnapshot) { p.NoCrossFeedNodeKey = "top" })
	s := buildGraph(t, b.vessel(), lib)

	assert.Empty(t, s.router.FindSources(fuel, s.lookup[b.idx("engine")]))
}

func TestRouter_ResourceAtThresholdIsNeverASource(t *testing.T) {
	lib := testLibrary(t)
	for _, name := range []string{"Fuel", "Solid", "Shared", "Staged"} {
		t.Run(name, func(t *testing.T) {
			typ := typeID(t, lib, name)
			b := newVesselBuilder("dry", 1)
			b.add("tank", "", withResource(name, ResourceMin))
			b.add("other", "tank", withResource(name, ResourceMin/2))
			s := buildGraph(t, b.vessel(), lib)

			assert.Empty(t, s.router.FindSources(typ, s.lookup[b.idx("tank")]))
			assert.Empty(t, s.router.FindSources(typ, s.lookup[b.idx("other")]))
		})
	}
}

func TestRouter_UnsupportedFlowMode_NoSources(t *testing.T) {
	lib := testLibrary(t)
	weird := typeID(t, lib, "Weird")
	b := newVesselBuilder("weird", 1)
	b.add("tank", "", withResource("Weird", 100))
	s := buildGraph(t, b.vessel(), lib)

	assert.Empty(t, s.router.FindSources(weird, s.lookup[0]))
	assert.True(t, s.router.warned[weird])
}
