package sim

import (
	"fmt"
	"slices"
)

// ResourceMin is the amount at or below which a resource is treated as absent
// for sourcing and staging decisions.
const ResourceMin = 1e-4

// StandardGravity converts specific impulse (s) into exhaust velocity (m/s).
const StandardGravity = 9.80665

// FlowMode selects the rule the router uses to find suppliers of a resource.
type FlowMode string

const (
	// FlowNoFlow: only the consuming part itself may supply.
	FlowNoFlow FlowMode = "no-flow"
	// FlowAllVessel: every part holding the resource supplies evenly.
	FlowAllVessel FlowMode = "all-vessel"
	// FlowStagePriority: parts in the highest decoupling stage supply first.
	FlowStagePriority FlowMode = "stage-priority"
	// FlowStackPrioritySearch: depth-first search through pipes and stack nodes.
	FlowStackPrioritySearch FlowMode = "stack-priority-search"
)

// ValidFlowModes is the set of flow modes the router implements.
var ValidFlowModes = map[FlowMode]bool{
	FlowNoFlow:              true,
	FlowAllVessel:           true,
	FlowStagePriority:       true,
	FlowStackPrioritySearch: true,
}

// ResourceDefinition describes one resource type.
type ResourceDefinition struct {
	Name     string   `yaml:"name"`
	Density  float64  `yaml:"density"`   // tonnes per unit
	UnitCost float64  `yaml:"unit_cost"` // funds per unit
	Flow     FlowMode `yaml:"flow"`
}

// ResourceLibrary maps resource names to dense integer type ids.
// It is immutable after construction and safe to share between goroutines.
type ResourceLibrary struct {
	defs   []ResourceDefinition
	byName map[string]int
}

// NewResourceLibrary assigns type ids in definition order.
// Unknown flow modes are accepted; the router logs and treats them as having no sources.
func NewResourceLibrary(defs []ResourceDefinition) (*ResourceLibrary, error) {
	lib := &ResourceLibrary{
		defs:   make([]ResourceDefinition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("resource definition %d has no name", len(lib.defs))
		}
		if _, dup := lib.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate resource definition %q", d.Name)
		}
		if d.Density < 0 {
			return nil, fmt.Errorf("resource %q: density must be non-negative, got %f", d.Name, d.Density)
		}
		lib.byName[d.Name] = len(lib.defs)
		lib.defs = append(lib.defs, d)
	}
	return lib, nil
}

// DefaultResourceLibrary returns the stock resource set.
func DefaultResourceLibrary() *ResourceLibrary {
	lib, err := NewResourceLibrary([]ResourceDefinition{
		{Name: "LiquidFuel", Density: 0.005, UnitCost: 0.8, Flow: FlowStackPrioritySearch},
		{Name: "Oxidizer", Density: 0.005, UnitCost: 0.18, Flow: FlowStackPrioritySearch},
		{Name: "SolidFuel", Density: 0.0075, UnitCost: 0.6, Flow: FlowNoFlow},
		{Name: "MonoPropellant", Density: 0.004, UnitCost: 1.2, Flow: FlowStagePriority},
		{Name: "XenonGas", Density: 0.0001, UnitCost: 4.0, Flow: FlowStagePriority},
		{Name: "ElectricCharge", Density: 0, UnitCost: 0, Flow: FlowAllVessel},
		{Name: "IntakeAir", Density: 0, UnitCost: 0, Flow: FlowAllVessel},
		{Name: "Ore", Density: 0.01, UnitCost: 0.02, Flow: FlowStackPrioritySearch},
	})
	if err != nil {
		panic(err)
	}
	return lib
}

// Lookup returns the type id for a resource name.
func (l *ResourceLibrary) Lookup(name string) (int, bool) {
	id, ok := l.byName[name]
	return id, ok
}

// Definition returns the definition for a type id.
func (l *ResourceLibrary) Definition(id int) ResourceDefinition {
	return l.defs[id]
}

// Density returns tonnes per unit for a type id.
func (l *ResourceLibrary) Density(id int) float64 {
	return l.defs[id].Density
}

// FlowMode returns the flow mode for a type id.
func (l *ResourceLibrary) FlowMode(id int) FlowMode {
	return l.defs[id].Flow
}

// Name returns the resource name for a type id.
func (l *ResourceLibrary) Name(id int) string {
	return l.defs[id].Name
}

// Definitions returns a copy of all definitions in id order.
func (l *ResourceLibrary) Definitions() []ResourceDefinition {
	return slices.Clone(l.defs)
}

// Len returns the number of resource types.
func (l *ResourceLibrary) Len() int {
	return len(l.defs)
}

// ResourceInventory is a sparse type-id → amount map that remembers first
// insertion order. It is used both for part contents and for drain rates.
type ResourceInventory struct {
	amounts map[int]float64
	flow    map[int]bool
	types   []int
}

// NewResourceInventory returns an empty inventory.
func NewResourceInventory() ResourceInventory {
	return ResourceInventory{
		amounts: make(map[int]float64),
		flow:    make(map[int]bool),
	}
}

func (ri *ResourceInventory) ensure() {
	if ri.amounts == nil {
		ri.amounts = make(map[int]float64)
		ri.flow = make(map[int]bool)
	}
}

// Set stores amount and flow state for a type, inserting it if absent.
func (ri *ResourceInventory) Set(typ int, amount float64, flowEnabled bool) {
	ri.ensure()
	if _, ok := ri.amounts[typ]; !ok {
		ri.types = append(ri.types, typ)
	}
	ri.amounts[typ] = amount
	ri.flow[typ] = flowEnabled
}

// Add increases the amount of a type. New types are inserted flow-enabled.
func (ri *ResourceInventory) Add(typ int, amount float64) {
	ri.ensure()
	if _, ok := ri.amounts[typ]; !ok {
		ri.types = append(ri.types, typ)
		ri.flow[typ] = true
	}
	ri.amounts[typ] += amount
}

// Get returns the amount of a type, zero when absent.
func (ri *ResourceInventory) Get(typ int) float64 {
	return ri.amounts[typ]
}

// HasType reports whether the type was ever inserted, even if now empty.
func (ri *ResourceInventory) HasType(typ int) bool {
	_, ok := ri.amounts[typ]
	return ok
}

// FlowEnabled reports whether the type may flow out of this inventory.
func (ri *ResourceInventory) FlowEnabled(typ int) bool {
	return ri.flow[typ]
}

// Available reports whether the type can supply: present, flowing, above ResourceMin.
func (ri *ResourceInventory) Available(typ int) bool {
	return ri.flow[typ] && ri.amounts[typ] > ResourceMin
}

// Types returns the present types in first-insertion order.
// The slice is owned by the inventory and must not be modified.
func (ri *ResourceInventory) Types() []int {
	return ri.types
}

// Len returns the number of present types.
func (ri *ResourceInventory) Len() int {
	return len(ri.types)
}

// Empty reports whether no type holds more than ResourceMin.
func (ri *ResourceInventory) Empty() bool {
	for _, t := range ri.types {
		if ri.amounts[t] > ResourceMin {
			return false
		}
	}
	return true
}

// EmptyOf reports whether none of the given types is available here.
func (ri *ResourceInventory) EmptyOf(types []int) bool {
	for _, t := range types {
		if ri.HasType(t) && ri.Available(t) {
			return false
		}
	}
	return true
}

// Mass returns the total resource mass in tonnes.
func (ri *ResourceInventory) Mass(lib *ResourceLibrary) float64 {
	mass := 0.0
	for _, t := range ri.types {
		mass += ri.amounts[t] * lib.Density(t)
	}
	return mass
}

// Cost returns the total resource cost.
func (ri *ResourceInventory) Cost(lib *ResourceLibrary) float64 {
	cost := 0.0
	for _, t := range ri.types {
		cost += ri.amounts[t] * lib.Definition(t).UnitCost
	}
	return cost
}

// Reset empties the inventory while keeping its storage.
func (ri *ResourceInventory) Reset() {
	clear(ri.amounts)
	clear(ri.flow)
	ri.types = ri.types[:0]
}
