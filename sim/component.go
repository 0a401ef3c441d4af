package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// AttachEdge links a component to a neighbour by arena index.
type AttachEdge struct {
	Peer int
	Kind AttachMode
	Tag  string
}

// Component is the simulation-local copy of one vehicle part. Parent, edge
// peers and fuel targets are arena indices; a removed neighbour is cleared
// from every surviving component before its slot is released.
type Component struct {
	ID       int
	Name     string
	DryMass  float64
	Cost     float64
	Position r3.Vec

	InverseStage     int
	DecoupledInStage int

	IsEngine           bool
	IsFuelLine         bool
	IsDecoupler        bool
	IsLaunchClamp      bool
	IsNoPhysics        bool
	IsSepratron        bool
	FuelCrossFeed      bool
	NoCrossFeedNodeKey string

	Parent       int
	ParentAttach AttachMode
	AttachNodes  []AttachEdge
	FuelTargets  []int

	Resources ResourceInventory
	Drains    ResourceInventory

	snapshot int
}

func (c *Component) reset() {
	c.ID = -1
	c.Name = ""
	c.DryMass = 0
	c.Cost = 0
	c.Position = r3.Vec{}
	c.InverseStage = -1
	c.DecoupledInStage = -1
	c.IsEngine = false
	c.IsFuelLine = false
	c.IsDecoupler = false
	c.IsLaunchClamp = false
	c.IsNoPhysics = false
	c.IsSepratron = false
	c.FuelCrossFeed = false
	c.NoCrossFeedNodeKey = ""
	c.Parent = -1
	c.ParentAttach = AttachStack
	c.AttachNodes = c.AttachNodes[:0]
	c.FuelTargets = c.FuelTargets[:0]
	c.Resources.Reset()
	c.Drains.Reset()
	c.snapshot = -1
}

// Mass returns dry mass plus resource mass, in tonnes.
func (c *Component) Mass(lib *ResourceLibrary) float64 {
	return c.DryMass + c.Resources.Mass(lib)
}

// TotalCost returns dry cost plus the cost of carried resources.
func (c *Component) TotalCost(lib *ResourceLibrary) float64 {
	return c.Cost + c.Resources.Cost(lib)
}

// TimeToDrainResource returns how long until the first positively-drained
// resource of this component runs out, or math.MaxFloat64 if nothing drains.
func (c *Component) TimeToDrainResource() float64 {
	t := math.MaxFloat64
	for _, typ := range c.Drains.Types() {
		rate := c.Drains.Get(typ)
		if rate > 0 {
			t = math.Min(t, c.Resources.Get(typ)/rate)
		}
	}
	return t
}

// DrainResources removes dt seconds of drain from the contents.
func (c *Component) DrainResources(dt float64) {
	for _, typ := range c.Drains.Types() {
		c.Resources.Add(typ, -c.Drains.Get(typ)*dt)
	}
}

// removeAttached clears every reference to a component in removed.
func (c *Component) removeAttached(removed bitset) {
	if removed.has(c.Parent) {
		c.Parent = -1
	}
	nodes := c.AttachNodes[:0]
	for _, e := range c.AttachNodes {
		if !removed.has(e.Peer) {
			nodes = append(nodes, e)
		}
	}
	c.AttachNodes = nodes
	targets := c.FuelTargets[:0]
	for _, t := range c.FuelTargets {
		if !removed.has(t) {
			targets = append(targets, t)
		}
	}
	c.FuelTargets = targets
}
