package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbporter/dbporter/internal/registry"
)

// Generate builds a migration plan from the registered models using
// Kahn's algorithm generalized to emit levels instead of a flat order.
// Each group contains the models whose to-one dependencies were all
// satisfied by earlier groups.
//
// When the dependency graph has a cycle and allowCycles is false,
// Generate fails with a *CycleError naming every unordered model. With
// allowCycles set, the cyclic models are emitted as one final
// best-effort group and a warning is recorded.
func Generate(models []registry.Model, allowCycles bool) (*Plan, error) {
	// Dependency edges only come from to-one references to other
	// registered models. Self-references and references to external
	// types are not edges: they cannot constrain the order.
	known := make(map[string]bool, len(models))
	for _, m := range models {
		known[m.Name] = true
	}

	inDegree := make(map[string]int, len(models))
	dependents := make(map[string][]string, len(models))
	dependencies := make(map[string]map[string]bool, len(models))

	for _, m := range models {
		inDegree[m.Name] += 0
		for _, ref := range m.References {
			if ref.Kind != registry.ToOne {
				continue
			}
			if ref.Target == m.Name || !known[ref.Target] {
				continue
			}
			if dependencies[m.Name] == nil {
				dependencies[m.Name] = make(map[string]bool)
			}
			if dependencies[m.Name][ref.Target] {
				// Two fields pointing at the same model count as
				// one edge
				continue
			}
			dependencies[m.Name][ref.Target] = true
			dependents[ref.Target] = append(dependents[ref.Target], m.Name)
			inDegree[m.Name]++
		}
	}

	frontier := make([]string, 0, len(models))
	for name, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	plan := &Plan{
		Groups:     [][]PlanEntry{},
		FlatOrder:  []string{},
		LinkTables: []string{},
		Warnings:   []string{},
	}

	processed := 0
	for len(frontier) > 0 {
		plan.Groups = append(plan.Groups, makeGroup(frontier, dependencies))
		plan.FlatOrder = append(plan.FlatOrder, frontier...)
		processed += len(frontier)

		var next []string
		for _, name := range frontier {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}

	if processed != len(models) {
		var cyclic []string
		for name, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)

		if !allowCycles {
			return nil, newCycleError(cyclic)
		}

		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"circular dependency detected and ignored; relative order is not guaranteed for: %s",
			strings.Join(cyclic, ", ")))
		plan.Groups = append(plan.Groups, makeGroup(cyclic, dependencies))
		plan.FlatOrder = append(plan.FlatOrder, cyclic...)
	}

	for _, link := range registry.LinkTables(models) {
		plan.LinkTables = append(plan.LinkTables, link.Table)
	}

	return plan, nil
}

// makeGroup turns a name-sorted frontier into plan entries with sorted
// dependency lists
func makeGroup(names []string, dependencies map[string]map[string]bool) []PlanEntry {
	group := make([]PlanEntry, 0, len(names))
	for _, name := range names {
		deps := make([]string, 0, len(dependencies[name]))
		for dep := range dependencies[name] {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		group = append(group, PlanEntry{Model: name, Dependencies: deps})
	}
	return group
}
