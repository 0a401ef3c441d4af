package vessel

import (
	"math"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/stagesim/stagesim/sim"
	"github.com/stagesim/stagesim/sim/internal/testutil"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}

const hopperYAML = `
name: hopper
parts:
  - name: tank
    dry_mass: 0.25
    resources:
      - {name: LiquidFuel, amount: 90}
      - {name: Oxidizer, amount: 110, max: 200}
  - name: engine
    parent: tank
    dry_mass: 0.5
    stage: 1
    position: [0, -1, 0]
    engines:
      - max_thrust: 50
        isp: [[0, 320], [1, 270]]
        propellants:
          - {name: LiquidFuel, ratio: 0.9}
          - {name: Oxidizer, ratio: 1.1}
  - name: leg
    parent: tank
    attach: surface
    dry_mass: 0.05
    crossfeed: false
`

func parseVessel(t *testing.T, src string) *sim.Vessel {
	t.Helper()
	f, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := f.ToVessel()
	if err != nil {
		t.Fatalf("to vessel: %v", err)
	}
	return v
}

func TestToVessel_ResolvesNamesAndLinks(t *testing.T) {
	v := parseVessel(t, hopperYAML)

	if v.Name != "hopper" {
		t.Errorf("name = %q, want hopper", v.Name)
	}
	if len(v.Parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(v.Parts))
	}
	if v.Parts[1].Parent != 0 || v.Parts[2].Parent != 0 {
		t.Errorf("parents = %d, %d, want 0, 0", v.Parts[1].Parent, v.Parts[2].Parent)
	}

	// Stack child gets a "top" node, its parent a matching "bottom" node.
	engineNodes := v.Parts[1].AttachNodes
	if len(engineNodes) != 1 || engineNodes[0] != (sim.AttachNode{Peer: 0, Kind: sim.AttachStack, Tag: "top"}) {
		t.Errorf("engine nodes = %+v", engineNodes)
	}
	tankNodes := v.Parts[0].AttachNodes
	if len(tankNodes) != 1 || tankNodes[0] != (sim.AttachNode{Peer: 1, Kind: sim.AttachStack, Tag: "bottom"}) {
		t.Errorf("tank nodes = %+v", tankNodes)
	}

	// Surface child has no nodes, only the parent link.
	if v.Parts[2].ParentAttach != sim.AttachSurface || len(v.Parts[2].AttachNodes) != 0 {
		t.Errorf("leg attach = %v, nodes = %+v", v.Parts[2].ParentAttach, v.Parts[2].AttachNodes)
	}
	if v.Parts[2].FuelCrossFeed {
		t.Error("explicit crossfeed: false was ignored")
	}
	if !v.Parts[0].FuelCrossFeed {
		t.Error("crossfeed should default to true")
	}
}

func TestToVessel_ResourceDefaults(t *testing.T) {
	v := parseVessel(t, hopperYAML)
	res := v.Parts[0].Resources
	if len(res) != 2 {
		t.Fatalf("resources = %d, want 2", len(res))
	}
	if res[0].MaxAmount != 90 {
		t.Errorf("max defaults to amount: got %g, want 90", res[0].MaxAmount)
	}
	if res[1].MaxAmount != 200 {
		t.Errorf("explicit max: got %g, want 200", res[1].MaxAmount)
	}
	if !res[0].FlowEnabled {
		t.Error("resources flow unless locked")
	}
}

func TestToVessel_CurrentStageDefaultsAboveHighestStage(t *testing.T) {
	v := parseVessel(t, hopperYAML)
	if v.CurrentStage != 2 {
		t.Errorf("current stage = %d, want 2", v.CurrentStage)
	}

	explicit := parseVessel(t, "current_stage: 5\n"+hopperYAML)
	if explicit.CurrentStage != 5 {
		t.Errorf("current stage = %d, want 5", explicit.CurrentStage)
	}
}

func TestToVessel_MaxThrustConvertsToFuelFlow(t *testing.T) {
	v := parseVessel(t, hopperYAML)
	mod := v.Parts[1].Engines[0]

	want := 50 / (320 * sim.StandardGravity)
	testutil.AssertFloat64Equal(t, "max fuel flow", want, mod.MaxFuelFlow, 1e-12)
	if mod.MinFuelFlow != 0 {
		t.Errorf("min fuel flow = %g, want 0", mod.MinFuelFlow)
	}
	if mod.ThrustPercentage != 100 {
		t.Errorf("thrust percentage = %g, want 100", mod.ThrustPercentage)
	}
	if got := mod.AtmosphereCurve.Evaluate(1); math.Abs(got-270) > 1e-9 {
		t.Errorf("isp at 1 atm = %g, want 270", got)
	}
	if len(mod.ThrustTransforms) != 0 {
		t.Errorf("transforms = %+v, want none", mod.ThrustTransforms)
	}
}

func TestToVessel_Transforms(t *testing.T) {
	v := parseVessel(t, `
name: gimbal
parts:
  - name: engine
    dry_mass: 1
    position: [0, -2, 0]
    engines:
      - max_fuel_flow: 0.1
        thrust_percentage: 50
        isp: [[0, 300]]
        propellants: [{name: LiquidFuel, ratio: 1}]
        transforms:
          - {forward: [0, -1, 0]}
          - {position: [1, -2, 0], forward: [0, -1, 0]}
`)
	mod := v.Parts[0].Engines[0]
	if mod.ThrustPercentage != 50 {
		t.Errorf("thrust percentage = %g, want 50", mod.ThrustPercentage)
	}
	if len(mod.ThrustTransforms) != 2 {
		t.Fatalf("transforms = %d, want 2", len(mod.ThrustTransforms))
	}
	if mod.ThrustTransforms[0].Position.Y != -2 {
		t.Errorf("omitted transform position should default to the part's, got %+v", mod.ThrustTransforms[0].Position)
	}
	if mod.ThrustTransforms[1].Position.X != 1 {
		t.Errorf("transform position = %+v", mod.ThrustTransforms[1].Position)
	}
}

func TestToVessel_DecouplerDefaultsToNoCrossFeed(t *testing.T) {
	v := parseVessel(t, `
name: sep
parts:
  - name: a
    dry_mass: 1
  - name: dec
    parent: a
    dry_mass: 0.05
    decoupler: true
    stage: 1
  - name: valve
    parent: dec
    dry_mass: 0.05
    decoupler: true
    crossfeed: true
`)
	if v.Parts[1].FuelCrossFeed {
		t.Error("decoupler should default to no crossfeed")
	}
	if !v.Parts[2].FuelCrossFeed {
		t.Error("explicit crossfeed on a decoupler was ignored")
	}
}

func TestToVessel_ExtraNodesAndFuelLines(t *testing.T) {
	v := parseVessel(t, `
name: strutted
parts:
  - name: core
    dry_mass: 1
  - name: side
    parent: core
    attach: surface
    dry_mass: 1
    nodes:
      - {peer: core, tag: Strut}
  - name: pipe
    parent: side
    attach: surface
    dry_mass: 0.05
    fuel_lines: [core]
`)
	nodes := v.Parts[1].AttachNodes
	if len(nodes) != 1 || nodes[0].Peer != 0 || nodes[0].Tag != sim.StrutNodeTag {
		t.Errorf("side nodes = %+v", nodes)
	}
	if got := v.Parts[2].FuelLineTargets; len(got) != 1 || got[0] != 0 {
		t.Errorf("fuel line targets = %v, want [0]", got)
	}
}

func TestParse_UnknownKey_ReturnsError(t *testing.T) {
	_, err := Parse(strings.NewReader(`
name: typo
parts:
  - name: a
    dry_mas: 1
`))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "dry_mas") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestToVessel_InvalidInput_ReturnsError(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no parts",
			yaml:    "name: empty\n",
			wantErr: "no parts",
		},
		{
			name:    "unknown parent",
			yaml:    "parts:\n  - {name: a, dry_mass: 1, parent: ghost}\n",
			wantErr: `unknown part "ghost"`,
		},
		{
			name:    "duplicate name",
			yaml:    "parts:\n  - {name: a, dry_mass: 1}\n  - {name: a, dry_mass: 1}\n",
			wantErr: "duplicate",
		},
		{
			name:    "missing name",
			yaml:    "parts:\n  - {dry_mass: 1}\n",
			wantErr: "name is required",
		},
		{
			name:    "bad attach mode",
			yaml:    "parts:\n  - {name: a, dry_mass: 1, attach: glue}\n",
			wantErr: "unknown attach mode",
		},
		{
			name:    "short position",
			yaml:    "parts:\n  - {name: a, dry_mass: 1, position: [1, 2]}\n",
			wantErr: "want 3 components",
		},
		{
			name:    "engine without isp",
			yaml:    "parts:\n  - name: a\n    dry_mass: 1\n    engines:\n      - {max_fuel_flow: 1, propellants: [{name: LiquidFuel, ratio: 1}]}\n",
			wantErr: "isp curve is required",
		},
		{
			name:    "bad curve key",
			yaml:    "parts:\n  - name: a\n    dry_mass: 1\n    engines:\n      - {max_fuel_flow: 1, isp: [[0]], propellants: []}\n",
			wantErr: "want [time, value]",
		},
		{
			name:    "unordered curve",
			yaml:    "parts:\n  - name: a\n    dry_mass: 1\n    engines:\n      - {max_fuel_flow: 1, isp: [[1, 300], [0, 320]], propellants: []}\n",
			wantErr: "strictly increasing",
		},
		{
			name:    "thrust and flow",
			yaml:    "parts:\n  - name: a\n    dry_mass: 1\n    engines:\n      - {max_fuel_flow: 1, max_thrust: 10, isp: [[0, 300]], propellants: []}\n",
			wantErr: "not both",
		},
		{
			name:    "unknown node peer",
			yaml:    "parts:\n  - name: a\n    dry_mass: 1\n    nodes: [{peer: b}]\n",
			wantErr: `unknown part "b"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = f.ToVessel()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/vessel.yaml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_ExampleVessels_Simulate(t *testing.T) {
	lib := sim.DefaultResourceLibrary()
	tests := []struct {
		file       string
		wantStages int
	}{
		{"two-stage.yaml", 4},
		{"asparagus.yaml", 4},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			f, err := Load(testutil.RepoPath(t, "examples", tt.file))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			v, err := f.ToVessel()
			if err != nil {
				t.Fatalf("to vessel: %v", err)
			}
			if err := v.Validate(lib); err != nil {
				t.Fatalf("validate: %v", err)
			}
			stages, err := sim.NewStageSimulator(lib, sim.DefaultRunConfig()).Run(v, sim.Environment{Gravity: sim.StandardGravity})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(stages) != tt.wantStages {
				t.Fatalf("stages = %d, want %d", len(stages), tt.wantStages)
			}
			if stages[0].TotalDeltaV <= 0 {
				t.Errorf("total delta-v = %g, want > 0", stages[0].TotalDeltaV)
			}
		})
	}
}
