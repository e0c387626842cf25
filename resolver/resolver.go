// Package resolver orders components by their declared dependencies.
//
// Resolution is a deterministic topological sort: components in the
// same ready set are ordered by (priority, name), so two runs over the
// same registry always produce the same start sequence. The sort also
// yields dependency layers, which the orchestrator uses to start
// independent components concurrently.
package resolver

import (
	"fmt"
	"sort"

	"github.com/c360/runtimekit/component"
	"github.com/c360/runtimekit/errors"
)

// Order is the result of dependency resolution.
type Order struct {
	names  []string
	layers [][]string
}

// Names returns the full start sequence, dependencies first.
func (o *Order) Names() []string {
	out := make([]string, len(o.names))
	copy(out, o.names)
	return out
}

// Reversed returns the stop sequence: dependents before dependencies.
func (o *Order) Reversed() []string {
	out := make([]string, len(o.names))
	for i, name := range o.names {
		out[len(o.names)-1-i] = name
	}
	return out
}

// Layers groups the sequence into waves: every component in layer N
// depends only on components in layers 0..N-1, so a whole layer can
// start concurrently.
func (o *Order) Layers() [][]string {
	out := make([][]string, len(o.layers))
	for i, layer := range o.layers {
		out[i] = make([]string, len(layer))
		copy(out[i], layer)
	}
	return out
}

// Len returns how many components the order covers.
func (o *Order) Len() int { return len(o.names) }

// Resolve computes a deterministic start order over the registry's
// enabled components. Dependencies on unregistered names fail with
// MissingDependencyError; dependencies on disabled components fail the
// same way with Disabled set. Cycles fail with CycleError naming one
// offending path. No partial order is returned on failure.
func Resolve(registry *component.Registry) (*Order, error) {
	enabled := registry.Enabled()

	nodes := make(map[string]*component.Descriptor, len(enabled))
	for _, desc := range enabled {
		nodes[desc.Name] = desc
	}

	// Validate edges before sorting so the error names the first
	// offender rather than surfacing as a stalled sort.
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, desc := range enabled {
		indegree[desc.Name] += 0
		for _, dep := range desc.Dependencies {
			if _, ok := nodes[dep]; !ok {
				return nil, &errors.MissingDependencyError{
					Component: desc.Name,
					Missing:   dep,
					Disabled:  registry.Has(dep),
				}
			}
			indegree[desc.Name]++
			dependents[dep] = append(dependents[dep], desc.Name)
		}
	}

	// Kahn's algorithm, one layer per iteration. The ready set is
	// sorted by (priority, name) so the order is reproducible.
	var (
		names    []string
		layers   [][]string
		resolved = make(map[string]bool, len(nodes))
	)
	for len(resolved) < len(nodes) {
		var ready []*component.Descriptor
		for name, deg := range indegree {
			if deg == 0 && !resolved[name] {
				ready = append(ready, nodes[name])
			}
		}
		if len(ready) == 0 {
			return nil, cycleError(nodes, resolved)
		}
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Priority != ready[j].Priority {
				return ready[i].Priority < ready[j].Priority
			}
			return ready[i].Name < ready[j].Name
		})

		layer := make([]string, 0, len(ready))
		for _, desc := range ready {
			resolved[desc.Name] = true
			layer = append(layer, desc.Name)
			names = append(names, desc.Name)
			for _, dependent := range dependents[desc.Name] {
				indegree[dependent]--
			}
		}
		layers = append(layers, layer)
	}

	return &Order{names: names, layers: layers}, nil
}

// cycleError walks the residual graph left after the sort stalls and
// extracts one concrete cycle for the error message.
func cycleError(nodes map[string]*component.Descriptor, resolved map[string]bool) error {
	// Pick the lexically smallest unresolved node so the reported path
	// is stable across runs.
	var start string
	for name := range nodes {
		if !resolved[name] && (start == "" || name < start) {
			start = name
		}
	}

	// Follow unresolved dependency edges until a node repeats.
	seen := make(map[string]int)
	var path []string
	current := start
	for {
		if at, ok := seen[current]; ok {
			cycle := append(path[at:], current)
			return &errors.CycleError{Path: cycle}
		}
		seen[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range nodes[current].Dependencies {
			if !resolved[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			// Should not happen: an unresolved node always has an
			// unresolved dependency once the sort stalls.
			return &errors.CycleError{Path: []string{fmt.Sprint(current)}}
		}
		current = next
	}
}
