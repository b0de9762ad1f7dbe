package extract

import (
	"slices"

	"github.com/jward/xref/internal/facts"
)

// resolveInheritance runs after the walk, once every TypeFact of the unit
// is known. Edges whose endpoints are not both types of this unit are
// dropped and counted.
func (x *extractor) resolveInheritance() {
	for _, pb := range x.pendingBases {
		di, ok := x.typeIndex[pb.derived]
		_, baseKnown := x.typeIndex[pb.base]
		if !ok || !baseKnown || pb.derived == pb.base {
			x.unit.Stats.DroppedInheritance++
			continue
		}
		derived := &x.unit.Types[di]
		if slices.Contains(derived.BaseClasses, pb.base) {
			continue
		}
		derived.BaseClasses = append(derived.BaseClasses, pb.base)
		x.unit.Inheritance = append(x.unit.Inheritance, facts.InheritanceEdge{
			Derived: pb.derived,
			Base:    pb.base,
			Ordinal: len(derived.BaseClasses) - 1,
		})
		x.derived[pb.base] = append(x.derived[pb.base], pb.derived)
	}
}

// resolveVirtualCalls rewrites virtual call identities to the full set of
// override sites now that the hierarchy is complete.
func (x *extractor) resolveVirtualCalls() {
	for _, pv := range x.pendingVirtual {
		sites := x.overrideSites(pv.class, pv.method)
		if len(sites) == 0 {
			sites = []string{pv.declared}
		}
		call := &x.unit.Calls[pv.call]
		call.Callee = facts.VirtualIdentity(sites)
		call.Candidates = sites
	}
}

// overrideSites lists the methods a virtual call on class::method may reach:
// overriders in derived types (most derived first), the declaring type,
// then ancestors that declare the method virtual (nearest first).
func (x *extractor) overrideSites(class, method string) []string {
	if class == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(qualified string) {
		if !seen[qualified] {
			seen[qualified] = true
			out = append(out, qualified)
		}
	}

	levels := x.descendantLevels(class)
	for i := len(levels) - 1; i >= 0; i-- {
		for _, t := range levels[i] {
			if m, ok := x.methods[t][method]; ok {
				add(m.qualified)
			}
		}
	}
	if m, ok := x.methods[class][method]; ok {
		add(m.qualified)
	}
	for _, t := range x.ancestors(class) {
		if m, ok := x.methods[t][method]; ok && m.virtual {
			add(m.qualified)
		}
	}
	return out
}

// descendantLevels groups the transitive subtypes of class by distance.
func (x *extractor) descendantLevels(class string) [][]string {
	var levels [][]string
	visited := map[string]bool{class: true}
	frontier := []string{class}
	for len(frontier) > 0 {
		var next []string
		for _, t := range frontier {
			for _, d := range x.derived[t] {
				if !visited[d] {
					visited[d] = true
					next = append(next, d)
				}
			}
		}
		if len(next) > 0 {
			levels = append(levels, next)
		}
		frontier = next
	}
	return levels
}

// ancestors lists the transitive base types of class, nearest first.
func (x *extractor) ancestors(class string) []string {
	var out []string
	visited := map[string]bool{class: true}
	frontier := []string{class}
	for len(frontier) > 0 {
		var next []string
		for _, t := range frontier {
			i, ok := x.typeIndex[t]
			if !ok {
				continue
			}
			for _, b := range x.unit.Types[i].BaseClasses {
				if !visited[b] {
					visited[b] = true
					next = append(next, b)
				}
			}
		}
		out = append(out, next...)
		frontier = next
	}
	return out
}
