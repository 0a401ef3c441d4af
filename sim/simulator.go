// sim/simulator.go
package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/stagesim/stagesim/sim/trace"
)

// StageSimulator computes per-stage performance for a vessel snapshot.
// It keeps its component and engine pools between runs, so one instance
// should be reused for repeated runs. It is not safe for concurrent use.
type StageSimulator struct {
	cfg RunConfig
	lib *ResourceLibrary

	parts   Arena[Component, *Component]
	engines Arena[EngineUnit, *EngineUnit]
	router  *Router

	vessel *Vessel
	env    Environment

	lookup        []int // snapshot index → arena index
	active        []int // components still attached, in snapshot order
	allEngines    []int
	activeEngines []int
	drainingParts []int
	drainingTypes []int
	dontStage     [][]int
	removed       bitset
	forces        ForceAccumulator

	lastStage    int
	currentStage int
	doingCurrent bool

	totalThrust       float64
	totalActualThrust float64
	currentISP        float64
	thrustDir         r3.Vec
	maxMach           float64

	trace *trace.SimulationTrace
}

// NewStageSimulator creates a simulator over a resource library.
func NewStageSimulator(lib *ResourceLibrary, cfg RunConfig) *StageSimulator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	s := &StageSimulator{cfg: cfg, lib: lib}
	s.router = NewRouter(&s.parts, lib)
	return s
}

// Trace returns the trace of the last run, or nil when tracing is off.
func (s *StageSimulator) Trace() *trace.SimulationTrace {
	return s.trace
}

// Router exposes the source resolver bound to the current run's graph.
func (s *StageSimulator) Router() *Router {
	return s.router
}

// Run simulates every stage of v from its last stage down to stage 0 and
// returns the stage records indexed by stage number. An invalid snapshot is
// reported as an error; pooled objects are always returned before Run exits.
func (s *StageSimulator) Run(v *Vessel, env Environment) (stages []Stage, err error) {
	if err := v.Validate(s.lib); err != nil {
		return nil, fmt.Errorf("invalid vessel: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	defer s.release()

	s.vessel = v
	s.env = env
	s.trace = nil
	if s.cfg.Trace.Enabled() {
		s.trace = trace.NewSimulationTrace(s.cfg.Trace)
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	stages = s.simulate()
	aggregateStages(stages)
	logrus.Debugf("[stagesim] %s: %d stages, total ΔV %.1f m/s", v.Name, len(stages), stages[0].TotalDeltaV)
	return stages, nil
}

// build snapshots every part into the arena and links the graph.
func (s *StageSimulator) build() error {
	v := s.vessel
	n := len(v.Parts)
	s.lookup = s.lookup[:0]
	s.active = s.active[:0]
	s.allEngines = s.allEngines[:0]
	s.router.warned = make(map[int]bool)

	for i := range v.Parts {
		p := &v.Parts[i]
		id, c := s.parts.Borrow()
		c.ID = id
		c.snapshot = i
		c.Name = p.Name
		c.DryMass = p.DryMass
		c.Cost = p.Cost
		c.Position = p.Position
		c.InverseStage = p.InverseStage
		c.IsFuelLine = len(p.FuelLineTargets) > 0
		c.IsDecoupler = p.IsDecoupler
		c.IsLaunchClamp = p.IsLaunchClamp
		c.IsNoPhysics = p.IsNoPhysics
		c.IsSepratron = p.IsSepratron
		c.FuelCrossFeed = p.FuelCrossFeed
		c.NoCrossFeedNodeKey = p.NoCrossFeedNodeKey
		c.ParentAttach = p.ParentAttach
		for _, r := range p.Resources {
			typ, _ := s.lib.Lookup(r.Name)
			c.Resources.Set(typ, r.Amount, r.FlowEnabled)
		}
		s.lookup = append(s.lookup, id)
		s.active = append(s.active, id)
	}

	for i := range v.Parts {
		p := &v.Parts[i]
		c := s.parts.Get(s.lookup[i])
		if p.Parent >= 0 {
			c.Parent = s.lookup[p.Parent]
		}
		for _, node := range p.AttachNodes {
			if node.Peer < 0 || node.Tag == StrutNodeTag {
				continue
			}
			c.AttachNodes = append(c.AttachNodes, AttachEdge{Peer: s.lookup[node.Peer], Kind: node.Kind, Tag: node.Tag})
		}
		for _, mi := range liveModules(p) {
			eid, e := s.engines.Borrow()
			e.ID = eid
			e.configure(c, &p.Engines[mi], v, s.env, s.lib)
			e.Active = p.Engines[mi].Active
			c.IsEngine = true
			s.allEngines = append(s.allEngines, eid)
		}
	}

	// Pipes are registered on their target, pointing back at the pipe's
	// source side, so searches from the consumer pull toward the tank.
	for i := range v.Parts {
		p := &v.Parts[i]
		c := s.parts.Get(s.lookup[i])
		if !c.IsFuelLine || c.Parent < 0 {
			continue
		}
		for _, t := range p.FuelLineTargets {
			target := s.parts.Get(s.lookup[t])
			target.FuelTargets = append(target.FuelTargets, c.Parent)
		}
	}

	maxDecoupled := -1
	for _, id := range s.active {
		c := s.parts.Get(id)
		stage, err := s.decoupledInStage(c, n)
		if err != nil {
			return err
		}
		c.DecoupledInStage = stage
		maxDecoupled = max(maxDecoupled, stage)
	}

	s.lastStage = max(v.CurrentStage, maxDecoupled+1)
	s.router.SetActive(s.active)
	s.removed.grow(s.parts.Cap())
	return nil
}

// decoupledInStage walks the ancestor chain and returns the highest inverse
// stage of a decoupler or launch clamp found, or -1.
func (s *StageSimulator) decoupledInStage(c *Component, limit int) (int, error) {
	stage := -1
	for steps := 0; c != nil; steps++ {
		if steps > limit {
			return 0, fmt.Errorf("parent chain of %q contains a cycle", s.vessel.Parts[c.snapshot].Name)
		}
		if (c.IsDecoupler || c.IsLaunchClamp) && c.InverseStage > stage {
			stage = c.InverseStage
		}
		c = s.parts.Get(c.Parent)
	}
	return stage, nil
}

// simulate runs the staging state machine and returns unaggregated stages.
func (s *StageSimulator) simulate() []Stage {
	s.currentStage = s.lastStage
	s.doingCurrent = false
	for _, eid := range s.allEngines {
		e := s.engines.Get(eid)
		if e.Active && s.parts.Get(e.Part).InverseStage < s.lastStage {
			s.doingCurrent = true
		}
	}
	if s.doingCurrent {
		logrus.Debugf("[stagesim] live engines differ from staging, simulating current stage first")
		s.currentStage++
	} else {
		for _, eid := range s.allEngines {
			e := s.engines.Get(eid)
			if s.parts.Get(e.Part).InverseStage >= s.lastStage {
				e.Active = true
			}
		}
		s.activateStage()
	}

	s.buildDontStageLists()
	stages := make([]Stage, s.currentStage+1)

	for s.currentStage >= 0 {
		stages[s.currentStage] = s.simulateStage()
		s.currentStage--
		s.doingCurrent = false
		if s.currentStage >= 0 {
			s.activateStage()
		}
	}
	return stages
}

// simulateStage drains resources until staging is allowed and returns the record.
func (s *StageSimulator) simulateStage() Stage {
	s.updateResourceDrains()
	stageStartMass := s.shipMass()
	stageStartCom := s.shipCoM()
	stepStartMass := stageStartMass
	stepEndMass := stageStartMass
	s.calculateThrustAndISP()

	st := Stage{
		Number:         s.currentStage,
		Thrust:         s.totalThrust,
		ActualThrust:   s.totalActualThrust,
		StartMass:      stageStartMass,
		TotalPartCount: len(s.active),
		MaxMach:        s.maxMach,
	}
	if s.doingCurrent {
		st.Number = CurrentStageNumber
	}
	st.ThrustToWeight = s.thrustToWeight(s.totalThrust, stageStartMass)
	st.ActualThrustToWeight = s.thrustToWeight(s.totalActualThrust, stageStartMass)
	st.MaxThrustToWeight = st.ThrustToWeight

	st.MaxThrustTorque = r3.Norm(s.forces.TorqueAt(stageStartCom))
	lever := r3.Norm(r3.Sub(stageStartCom, s.forces.AverageLocation()))
	st.ThrustOffsetAngle = thrustOffsetAngle(st.MaxThrustTorque, st.Thrust, lever)

	for _, id := range s.active {
		c := s.parts.Get(id)
		if c.DecoupledInStage == s.currentStage-1 {
			st.Cost += c.TotalCost(s.lib)
			st.Mass += c.Mass(s.lib)
		}
	}

	var dv r3.Vec
	outcome := trace.OutcomeStaged
	loops := 0
	for !s.allowedToStage() {
		loops++
		dt := math.MaxFloat64
		limiting := -1
		for _, id := range s.drainingParts {
			if t := s.parts.Get(id).TimeToDrainResource(); t < dt {
				dt = t
				limiting = id
			}
		}
		if limiting < 0 {
			logrus.Debugf("[stagesim] stage %d: staging blocked but nothing drains", s.currentStage)
			outcome = trace.OutcomeNoDrain
			break
		}
		for _, id := range s.drainingParts {
			s.parts.Get(id).DrainResources(dt)
		}

		stepEndMass = s.shipMass()
		st.Time += dt
		if twr := s.thrustToWeight(s.totalThrust, stepEndMass); twr > st.MaxThrustToWeight {
			st.MaxThrustToWeight = twr
		}
		if dt > 0 && stepStartMass > stepEndMass && stepStartMass > 0 && stepEndMass > 0 {
			dv = r3.Add(dv, r3.Scale(s.currentISP*StandardGravity*math.Log(stepStartMass/stepEndMass), s.thrustDir))
		}
		s.trace.RecordStep(trace.StepRecord{
			Stage:         s.currentStage,
			Step:          loops,
			Duration:      dt,
			Elapsed:       st.Time,
			StartMass:     stepStartMass,
			EndMass:       stepEndMass,
			ActiveEngines: len(s.activeEngines),
			DrainingParts: len(s.drainingParts),
			Limiting:      s.parts.Get(limiting).Name,
		})

		s.updateResourceDrains()
		s.calculateThrustAndISP()

		if stepStartMass == stepEndMass {
			logrus.Debugf("[stagesim] stage %d: mass unchanged after step %d, stopping", s.currentStage, loops)
			outcome = trace.OutcomeStalled
			break
		}
		if loops >= s.cfg.MaxIterations {
			logrus.Warnf("[stagesim] stage %d: drain loop hit %d iterations, stopping", s.currentStage, loops)
			outcome = trace.OutcomeIterationCap
			break
		}
		stepStartMass = stepEndMass
	}

	st.DeltaV = r3.Norm(dv)
	st.EndMass = stepEndMass
	st.ResourceMass = stageStartMass - stepEndMass
	if stageStartMass != stepEndMass && stepEndMass > 0 {
		st.ISP = st.DeltaV / (StandardGravity * math.Log(stageStartMass/stepEndMass))
	}

	s.trace.RecordStage(trace.StageRecord{
		Stage:         s.currentStage,
		Number:        st.Number,
		Iterations:    loops,
		Outcome:       outcome,
		ActiveEngines: len(s.activeEngines),
		DeltaV:        st.DeltaV,
	})
	return st
}

// thrustOffsetAngle returns asin(torque / (thrust * lever)) in degrees.
// With no lever a residual torque comes from a couple, which no thrust
// line through the centre of mass can balance, so the angle is 90.
func thrustOffsetAngle(torque, thrust, lever float64) float64 {
	switch {
	case thrust <= 0 || torque <= 0:
		return 0
	case lever <= 0:
		return 90
	}
	ratio := math.Max(-1, math.Min(1, torque/thrust/lever))
	return math.Asin(ratio) * 180 / math.Pi
}

// buildDontStageLists assigns each engine or non-empty component to the list
// of the stage whose activation would jettison it. An empty list inherits
// the list of the stage below.
func (s *StageSimulator) buildDontStageLists() {
	n := s.currentStage + 1
	for len(s.dontStage) < n {
		s.dontStage = append(s.dontStage, nil)
	}
	s.dontStage = s.dontStage[:n]
	for i := range s.dontStage {
		s.dontStage[i] = s.dontStage[i][:0]
	}
	for _, id := range s.active {
		c := s.parts.Get(id)
		if !c.IsEngine && c.Resources.Empty() {
			continue
		}
		idx := c.DecoupledInStage + 1
		if idx < 0 || idx >= n {
			continue
		}
		s.dontStage[idx] = append(s.dontStage[idx], id)
	}
	for i := 1; i < n; i++ {
		if len(s.dontStage[i]) == 0 {
			s.dontStage[i] = append(s.dontStage[i], s.dontStage[i-1]...)
		}
	}
}

// allowedToStage reports whether firing the next stage would jettison no
// active engine and no non-sepratron holding a resource being drained.
func (s *StageSimulator) allowedToStage() bool {
	for _, id := range s.dontStage[s.currentStage] {
		c := s.parts.Get(id)
		if c == nil {
			continue
		}
		if c.IsEngine {
			for _, eid := range s.activeEngines {
				if s.engines.Get(eid).Part == id {
					return false
				}
			}
		}
		if !c.IsSepratron && !c.Resources.EmptyOf(s.drainingTypes) {
			return false
		}
	}
	return true
}

// activateStage fires s.currentStage: every component decoupled at or above
// it is removed along with its engines, edges to it are cleared, and engines
// ignited by this stage become active.
func (s *StageSimulator) activateStage() {
	stage := s.currentStage
	s.removed.grow(s.parts.Cap())
	s.removed.clear()
	kept := s.active[:0]
	var dropped []int
	for _, id := range s.active {
		if s.parts.Get(id).DecoupledInStage >= stage {
			s.removed.set(id)
			dropped = append(dropped, id)
		} else {
			kept = append(kept, id)
		}
	}
	s.active = kept

	engines := s.allEngines[:0]
	for _, eid := range s.allEngines {
		if s.removed.has(s.engines.Get(eid).Part) {
			s.engines.Release(eid)
			continue
		}
		engines = append(engines, eid)
	}
	s.allEngines = engines

	for _, id := range s.active {
		s.parts.Get(id).removeAttached(s.removed)
	}
	for _, id := range dropped {
		s.parts.Release(id)
	}
	if len(dropped) > 0 {
		logrus.Debugf("[stagesim] stage %d: jettisoned %d parts", stage, len(dropped))
	}

	for _, eid := range s.allEngines {
		e := s.engines.Get(eid)
		e.starved = false
		if s.parts.Get(e.Part).InverseStage == stage {
			e.Active = true
		}
	}
	s.router.SetActive(s.active)
}

// updateResourceDrains recomputes the active engine list and spreads each
// engine's consumption evenly over its source set. Engines that cannot find
// a source are starved for the rest of the stage; the pass repeats until no
// further engine starves.
func (s *StageSimulator) updateResourceDrains() {
	for {
		starvedNow := false
		s.activeEngines = s.activeEngines[:0]
		for _, eid := range s.allEngines {
			e := s.engines.Get(eid)
			if !e.Active || e.starved {
				continue
			}
			if !s.resolveSources(e) {
				e.starved = true
				starvedNow = true
				logrus.Debugf("[stagesim] stage %d: engine on %s has no source, deactivating", s.currentStage, s.parts.Get(e.Part).Name)
				continue
			}
			s.activeEngines = append(s.activeEngines, eid)
		}
		if !starvedNow {
			break
		}
	}

	for _, id := range s.active {
		s.parts.Get(id).Drains.Reset()
	}
	for _, eid := range s.activeEngines {
		e := s.engines.Get(eid)
		for i, typ := range e.Consumptions.Types() {
			srcs := e.sources[i]
			share := e.Consumptions.Get(typ) / float64(len(srcs))
			for _, id := range srcs {
				s.parts.Get(id).Drains.Add(typ, share)
			}
		}
	}

	s.drainingParts = s.drainingParts[:0]
	s.drainingTypes = s.drainingTypes[:0]
	for _, id := range s.active {
		c := s.parts.Get(id)
		if c.Drains.Len() == 0 {
			continue
		}
		s.drainingParts = append(s.drainingParts, id)
		for _, typ := range c.Drains.Types() {
			if !containsInt(s.drainingTypes, typ) {
				s.drainingTypes = append(s.drainingTypes, typ)
			}
		}
	}
}

// resolveSources fills the engine's source table; false if any type has none.
func (s *StageSimulator) resolveSources(e *EngineUnit) bool {
	for i, typ := range e.Consumptions.Types() {
		buf := s.router.AppendSources(e.sourceSlot(i), typ, e.Part)
		e.sources[i] = buf
		if len(buf) == 0 {
			return false
		}
	}
	return true
}

// calculateThrustAndISP sums active engine thrust vectors and derives the
// flow-weighted ISP.
func (s *StageSimulator) calculateThrustAndISP() {
	s.forces.Reset()
	var vec, actual r3.Vec
	flow, ispFlow := 0.0, 0.0
	s.maxMach = 0
	for _, eid := range s.activeEngines {
		e := s.engines.Get(eid)
		vec = r3.Add(vec, r3.Scale(e.Thrust, e.ThrustVec))
		actual = r3.Add(actual, r3.Scale(e.ActualThrust, e.ThrustVec))
		m := e.ConsumptionMass(s.lib)
		flow += m
		ispFlow += m * e.ISP
		for _, f := range e.Forces {
			s.forces.Add(f)
		}
		s.maxMach = math.Max(s.maxMach, e.MaxMach)
	}
	s.totalThrust = r3.Norm(vec)
	s.totalActualThrust = r3.Norm(actual)
	s.thrustDir = unit(vec)
	s.currentISP = 0
	if flow > 0 && ispFlow > 0 {
		s.currentISP = ispFlow / flow
	}
}

func (s *StageSimulator) shipMass() float64 {
	mass := 0.0
	for _, id := range s.active {
		mass += s.parts.Get(id).Mass(s.lib)
	}
	return mass
}

// shipCoM returns the mass-weighted centre; parts without physics count at
// their nearest physical ancestor.
func (s *StageSimulator) shipCoM() r3.Vec {
	var sum r3.Vec
	total := 0.0
	for _, id := range s.active {
		c := s.parts.Get(id)
		m := c.Mass(s.lib)
		pos := c.Position
		for a := c; a != nil && a.IsNoPhysics; {
			p := s.parts.Get(a.Parent)
			if p == nil {
				break
			}
			pos = p.Position
			a = p
		}
		sum = r3.Add(sum, r3.Scale(m, pos))
		total += m
	}
	if total == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/total, sum)
}

func (s *StageSimulator) thrustToWeight(thrust, mass float64) float64 {
	if mass <= 0 || s.env.Gravity <= 0 {
		return 0
	}
	return thrust / (mass * s.env.Gravity)
}

// release returns every pooled object borrowed by the run.
func (s *StageSimulator) release() {
	s.engines.ReleaseAll()
	s.parts.ReleaseAll()
	s.active = s.active[:0]
	s.allEngines = s.allEngines[:0]
	s.activeEngines = s.activeEngines[:0]
	s.drainingParts = s.drainingParts[:0]
	s.drainingTypes = s.drainingTypes[:0]
	s.router.SetActive(nil)
	s.vessel = nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
