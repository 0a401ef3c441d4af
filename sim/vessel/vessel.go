// Package vessel reads vehicle descriptions from YAML and converts them into
// sim.Vessel snapshots. Parts reference each other by name.
package vessel

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/stagesim/stagesim/sim"
)

// File is the top-level vessel description.
type File struct {
	Name         string  `yaml:"name"`
	CurrentStage *int    `yaml:"current_stage,omitempty"` // nil = 1 + highest part stage
	Throttle     float64 `yaml:"throttle,omitempty"`
	Landed       bool    `yaml:"landed,omitempty"`
	Parts        []Part  `yaml:"parts"`
}

// Part describes one part. Parent and every other reference use part names.
type Part struct {
	Name            string     `yaml:"name"`
	Parent          string     `yaml:"parent,omitempty"`
	Attach          string     `yaml:"attach,omitempty"` // stack (default) or surface
	DryMass         float64    `yaml:"dry_mass"`
	Cost            float64    `yaml:"cost,omitempty"`
	Position        []float64  `yaml:"position,omitempty"`
	Stage           int        `yaml:"stage,omitempty"`
	Decoupler       bool       `yaml:"decoupler,omitempty"`
	LaunchClamp     bool       `yaml:"launch_clamp,omitempty"`
	NoPhysics       bool       `yaml:"no_physics,omitempty"`
	Sepratron       bool       `yaml:"sepratron,omitempty"`
	CrossFeed       *bool      `yaml:"crossfeed,omitempty"` // nil = true, false for decouplers
	NoCrossFeedNode string     `yaml:"no_crossfeed_node,omitempty"`
	FuelLines       []string   `yaml:"fuel_lines,omitempty"`
	Nodes           []Node     `yaml:"nodes,omitempty"`
	Resources       []Resource `yaml:"resources,omitempty"`
	Engines         []Engine   `yaml:"engines,omitempty"`
	SelectedMode    string     `yaml:"selected_mode,omitempty"`
}

// Node is an attach node beyond the implicit parent link, e.g. a strut.
type Node struct {
	Peer string `yaml:"peer"`
	Kind string `yaml:"kind,omitempty"`
	Tag  string `yaml:"tag,omitempty"`
}

// Resource is a resource held by a part. Max defaults to Amount.
type Resource struct {
	Name   string   `yaml:"name"`
	Amount float64  `yaml:"amount"`
	Max    *float64 `yaml:"max,omitempty"`
	Locked bool     `yaml:"locked,omitempty"`
}

// Engine is one engine mode. Flow may be given directly in t/s or as thrust
// in kN, which is converted with the vacuum ISP.
type Engine struct {
	Mode             string       `yaml:"mode,omitempty"`
	MinFuelFlow      float64      `yaml:"min_fuel_flow,omitempty"`
	MaxFuelFlow      float64      `yaml:"max_fuel_flow,omitempty"`
	MinThrust        float64      `yaml:"min_thrust,omitempty"`
	MaxThrust        float64      `yaml:"max_thrust,omitempty"`
	ThrustPercentage *float64     `yaml:"thrust_percentage,omitempty"` // nil = 100
	ThrottleLocked   bool         `yaml:"throttle_locked,omitempty"`
	ISP              Curve        `yaml:"isp"`
	AtmChangeFlow    bool         `yaml:"atm_change_flow,omitempty"`
	AtmCurve         Curve        `yaml:"atm_curve,omitempty"`
	UseVelCurve      bool         `yaml:"use_vel_curve,omitempty"`
	VelCurve         Curve        `yaml:"vel_curve,omitempty"`
	Propellants      []Propellant `yaml:"propellants"`
	Transforms       []Transform  `yaml:"transforms,omitempty"`
	Active           bool         `yaml:"active,omitempty"`
	ActualThrust     float64      `yaml:"actual_thrust,omitempty"`
}

// Propellant is one entry of an engine's mix.
type Propellant struct {
	Name         string  `yaml:"name"`
	Ratio        float64 `yaml:"ratio"`
	IgnoreForISP bool    `yaml:"ignore_for_isp,omitempty"`
}

// Transform is a thrust application point with its forward direction.
type Transform struct {
	Position []float64 `yaml:"position"`
	Forward  []float64 `yaml:"forward"`
}

// Curve is a list of [time, value] or [time, value, tangent] keys.
type Curve [][]float64

// Load reads and parses a vessel file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vessel file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a vessel description. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing vessel: %w", err)
	}
	return &f, nil
}

// ToVessel resolves names to indices and builds the snapshot. Stack parent
// links become a pair of attach nodes tagged "top" on the child and "bottom"
// on the parent.
func (f *File) ToVessel() (*sim.Vessel, error) {
	if len(f.Parts) == 0 {
		return nil, fmt.Errorf("vessel %q has no parts", f.Name)
	}
	index := make(map[string]int, len(f.Parts))
	for i, p := range f.Parts {
		if p.Name == "" {
			return nil, fmt.Errorf("part[%d]: name is required", i)
		}
		if _, dup := index[p.Name]; dup {
			return nil, fmt.Errorf("part[%d]: duplicate part name %q", i, p.Name)
		}
		index[p.Name] = i
	}
	ref := func(owner, field, name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return -1, fmt.Errorf("part %q: %s refers to unknown part %q", owner, field, name)
		}
		return i, nil
	}

	v := &sim.Vessel{
		Name:     f.Name,
		Throttle: f.Throttle,
		Landed:   f.Landed,
		Parts:    make([]sim.PartSnapshot, len(f.Parts)),
	}
	maxStage := -1
	for i, p := range f.Parts {
		snap, err := p.snapshot()
		if err != nil {
			return nil, err
		}
		snap.Parent = -1
		if p.Parent != "" {
			if snap.Parent, err = ref(p.Name, "parent", p.Parent); err != nil {
				return nil, err
			}
		}
		for _, target := range p.FuelLines {
			t, err := ref(p.Name, "fuel_lines", target)
			if err != nil {
				return nil, err
			}
			snap.FuelLineTargets = append(snap.FuelLineTargets, t)
		}
		v.Parts[i] = snap
		maxStage = max(maxStage, p.Stage)
	}

	// Node lists are filled after every snapshot exists so parents gain their
	// "bottom" nodes regardless of declaration order.
	for i, p := range f.Parts {
		child := &v.Parts[i]
		if child.Parent >= 0 && child.ParentAttach == sim.AttachStack {
			child.AttachNodes = append(child.AttachNodes, sim.AttachNode{Peer: child.Parent, Kind: sim.AttachStack, Tag: "top"})
			parent := &v.Parts[child.Parent]
			parent.AttachNodes = append(parent.AttachNodes, sim.AttachNode{Peer: i, Kind: sim.AttachStack, Tag: "bottom"})
		}
		for _, n := range p.Nodes {
			peer, err := ref(p.Name, "nodes", n.Peer)
			if err != nil {
				return nil, err
			}
			kind, err := sim.ParseAttachMode(n.Kind)
			if err != nil {
				return nil, fmt.Errorf("part %q: node to %q: %w", p.Name, n.Peer, err)
			}
			child.AttachNodes = append(child.AttachNodes, sim.AttachNode{Peer: peer, Kind: kind, Tag: n.Tag})
		}
	}

	if f.CurrentStage != nil {
		v.CurrentStage = *f.CurrentStage
	} else {
		v.CurrentStage = maxStage + 1
	}
	logrus.Debugf("[vessel] %s: %d parts, current stage %d", v.Name, len(v.Parts), v.CurrentStage)
	return v, nil
}

func (p *Part) snapshot() (sim.PartSnapshot, error) {
	attach, err := sim.ParseAttachMode(p.Attach)
	if err != nil {
		return sim.PartSnapshot{}, fmt.Errorf("part %q: %w", p.Name, err)
	}
	pos, err := vec(p.Position, r3.Vec{})
	if err != nil {
		return sim.PartSnapshot{}, fmt.Errorf("part %q: position: %w", p.Name, err)
	}
	crossFeed := !p.Decoupler
	if p.CrossFeed != nil {
		crossFeed = *p.CrossFeed
	}
	snap := sim.PartSnapshot{
		Name:               p.Name,
		DryMass:            p.DryMass,
		Cost:               p.Cost,
		Position:           pos,
		InverseStage:       p.Stage,
		ParentAttach:       attach,
		SelectedMode:       p.SelectedMode,
		IsDecoupler:        p.Decoupler,
		IsLaunchClamp:      p.LaunchClamp,
		IsNoPhysics:        p.NoPhysics,
		IsSepratron:        p.Sepratron,
		FuelCrossFeed:      crossFeed,
		NoCrossFeedNodeKey: p.NoCrossFeedNode,
	}
	for _, r := range p.Resources {
		maxAmount := r.Amount
		if r.Max != nil {
			maxAmount = *r.Max
		}
		snap.Resources = append(snap.Resources, sim.ResourceAmount{
			Name:        r.Name,
			Amount:      r.Amount,
			MaxAmount:   maxAmount,
			FlowEnabled: !r.Locked,
		})
	}
	for j := range p.Engines {
		mod, err := p.Engines[j].module(pos)
		if err != nil {
			return sim.PartSnapshot{}, fmt.Errorf("part %q: engine[%d]: %w", p.Name, j, err)
		}
		snap.Engines = append(snap.Engines, mod)
	}
	return snap, nil
}

func (e *Engine) module(partPos r3.Vec) (sim.EngineModule, error) {
	isp, err := e.ISP.build()
	if err != nil {
		return sim.EngineModule{}, fmt.Errorf("isp: %w", err)
	}
	if isp == nil {
		return sim.EngineModule{}, fmt.Errorf("isp curve is required")
	}
	atm, err := e.AtmCurve.build()
	if err != nil {
		return sim.EngineModule{}, fmt.Errorf("atm_curve: %w", err)
	}
	vel, err := e.VelCurve.build()
	if err != nil {
		return sim.EngineModule{}, fmt.Errorf("vel_curve: %w", err)
	}

	minFlow, maxFlow := e.MinFuelFlow, e.MaxFuelFlow
	if e.MaxThrust > 0 {
		if maxFlow > 0 {
			return sim.EngineModule{}, fmt.Errorf("set either max_thrust or max_fuel_flow, not both")
		}
		vacISP := isp.Evaluate(0)
		if vacISP <= 0 {
			return sim.EngineModule{}, fmt.Errorf("max_thrust needs a positive vacuum isp, got %g", vacISP)
		}
		minFlow = e.MinThrust / (vacISP * sim.StandardGravity)
		maxFlow = e.MaxThrust / (vacISP * sim.StandardGravity)
	}

	pct := 100.0
	if e.ThrustPercentage != nil {
		pct = *e.ThrustPercentage
	}
	mod := sim.EngineModule{
		ModeKey:          e.Mode,
		MinFuelFlow:      minFlow,
		MaxFuelFlow:      maxFlow,
		ThrustPercentage: pct,
		ThrottleLocked:   e.ThrottleLocked,
		AtmosphereCurve:  isp,
		AtmChangeFlow:    e.AtmChangeFlow,
		AtmCurve:         atm,
		UseVelCurve:      e.UseVelCurve,
		VelCurve:         vel,
		Active:           e.Active,
		ActualThrust:     e.ActualThrust,
	}
	for _, p := range e.Propellants {
		mod.Propellants = append(mod.Propellants, sim.Propellant{Name: p.Name, Ratio: p.Ratio, IgnoreForISP: p.IgnoreForISP})
	}
	for k, t := range e.Transforms {
		pos, err := vec(t.Position, partPos)
		if err != nil {
			return sim.EngineModule{}, fmt.Errorf("transforms[%d].position: %w", k, err)
		}
		fwd, err := vec(t.Forward, r3.Vec{Y: -1})
		if err != nil {
			return sim.EngineModule{}, fmt.Errorf("transforms[%d].forward: %w", k, err)
		}
		mod.ThrustTransforms = append(mod.ThrustTransforms, sim.ThrustTransform{Position: pos, Forward: fwd})
	}
	return mod, nil
}

// build returns nil for an empty curve.
func (c Curve) build() (*sim.FloatCurve, error) {
	if len(c) == 0 {
		return nil, nil
	}
	keys := make([]sim.CurveKey, len(c))
	for i, k := range c {
		switch len(k) {
		case 2:
			keys[i] = sim.CurveKey{Time: k[0], Value: k[1]}
		case 3:
			tangent := k[2]
			keys[i] = sim.CurveKey{Time: k[0], Value: k[1], Tangent: &tangent}
		default:
			return nil, fmt.Errorf("key %d: want [time, value] or [time, value, tangent], got %d numbers", i, len(k))
		}
	}
	return sim.NewFloatCurve(keys)
}

func vec(xs []float64, def r3.Vec) (r3.Vec, error) {
	switch len(xs) {
	case 0:
		return def, nil
	case 3:
		return r3.Vec{X: xs[0], Y: xs[1], Z: xs[2]}, nil
	}
	return r3.Vec{}, fmt.Errorf("want 3 components, got %d", len(xs))
}
