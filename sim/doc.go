// Package sim provides the stage simulator: it predicts, for every staging
// step of a vehicle, the thrust, effective ISP, delta-v, burn time, mass and
// cost the vehicle will have.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - snapshot.go: Vessel and PartSnapshot, the input copied from the live vehicle
//   - router.go: which parts supply an engine for each resource type
//   - simulator.go: the staging loop (drain, check staging, record, activate)
//
// # Architecture
//
// A run builds an in-memory graph of Components (one per part) and
// EngineUnits (one per active engine module) from pooled arenas, then drains
// resources stage by stage. Components refer to each other by arena index;
// removal of a decoupled subtree drops the edges that point at it.
//
// Sub-packages:
//   - sim/scheduler/: asynchronous, rate-limited runs with published results
//   - sim/vessel/: YAML vessel descriptions
//   - sim/trace/: per-stage and per-step drain trace recording
//
// # Key Types
//
//   - ResourceLibrary: density, unit cost and flow mode per resource type
//   - ResourceInventory: amounts per resource type, used for holdings and rates
//   - FloatCurve: key-framed curves for ISP and flow multipliers
//   - StageSimulator: reusable simulator, one run at a time
//   - Stage: the result record for one staging step
package sim
