package sim

import (
	"github.com/sirupsen/logrus"
)

// Router resolves which components can supply a resource to a consumer.
// It reads the component arena and the active list owned by a
// StageSimulator and reuses one visited set across searches.
type Router struct {
	parts   *Arena[Component, *Component]
	lib     *ResourceLibrary
	active  []int
	visited bitset
	warned  map[int]bool
}

// NewRouter returns a router over an arena and its active component list.
func NewRouter(parts *Arena[Component, *Component], lib *ResourceLibrary) *Router {
	return &Router{parts: parts, lib: lib, warned: make(map[int]bool)}
}

// SetActive replaces the list of components still attached to the vehicle.
func (r *Router) SetActive(active []int) {
	r.active = active
}

// FindSources returns the components that can supply typ to start.
func (r *Router) FindSources(typ, start int) []int {
	return r.AppendSources(nil, typ, start)
}

// AppendSources appends the source set for typ at start to dst. An
// unsupported flow mode yields no sources and is logged once per type.
func (r *Router) AppendSources(dst []int, typ, start int) []int {
	switch mode := r.lib.FlowMode(typ); mode {
	case FlowNoFlow:
		if c := r.parts.Get(start); c != nil && c.Resources.Available(typ) {
			dst = append(dst, start)
		}
	case FlowAllVessel:
		for _, id := range r.active {
			if r.parts.Get(id).Resources.Available(typ) {
				dst = append(dst, id)
			}
		}
	case FlowStagePriority:
		dst = r.appendStagePriority(dst, typ)
	case FlowStackPrioritySearch:
		r.visited.grow(r.parts.Cap())
		r.visited.clear()
		dst = r.appendPrioritySearch(dst, typ, start)
	default:
		if !r.warned[typ] {
			r.warned[typ] = true
			logrus.Warnf("[router] resource %s has unsupported flow mode %q, treating as unavailable", r.lib.Name(typ), mode)
		}
	}
	return dst
}

// appendStagePriority returns every qualifying component in the highest
// decoupling stage that has one.
func (r *Router) appendStagePriority(dst []int, typ int) []int {
	best := -2
	for _, id := range r.active {
		c := r.parts.Get(id)
		if c.Resources.Available(typ) && c.DecoupledInStage > best {
			best = c.DecoupledInStage
		}
	}
	if best == -2 {
		return dst
	}
	for _, id := range r.active {
		c := r.parts.Get(id)
		if c.DecoupledInStage == best && c.Resources.Available(typ) {
			dst = append(dst, id)
		}
	}
	return dst
}

// appendPrioritySearch walks pipes, then stack neighbours, then the part
// itself, then a surface parent. A part that holds the resource type but is
// empty stops the search through it.
func (r *Router) appendPrioritySearch(dst []int, typ, id int) []int {
	c := r.parts.Get(id)
	if c == nil || r.visited.has(id) {
		return dst
	}
	r.visited.set(id)

	mark := len(dst)
	for _, t := range c.FuelTargets {
		dst = r.appendPrioritySearch(dst, typ, t)
	}
	if len(dst) > mark {
		return dst
	}

	if c.FuelCrossFeed {
		for _, e := range c.AttachNodes {
			if e.Kind != AttachStack || e.Peer < 0 {
				continue
			}
			if c.NoCrossFeedNodeKey != "" && e.Tag == c.NoCrossFeedNodeKey {
				continue
			}
			dst = r.appendPrioritySearch(dst, typ, e.Peer)
		}
		if len(dst) > mark {
			return dst
		}
	}

	if c.Resources.HasType(typ) && c.Resources.FlowEnabled(typ) {
		if c.Resources.Get(typ) > ResourceMin {
			dst = append(dst, id)
		}
		return dst
	}

	if c.Parent >= 0 && c.ParentAttach == AttachSurface && c.FuelCrossFeed {
		dst = r.appendPrioritySearch(dst, typ, c.Parent)
	}
	return dst
}
