package workflow

import (
	"strings"

	"github.com/tidewell/agenthub/core"
)

// validate rejects graphs that cannot be scheduled: duplicate spec ids,
// dependencies on unknown ids, self-dependencies and cycles. Cycle errors
// carry the offending path so callers can fix the graph.
func validate(specs []core.TaskSpec) error {
	if len(specs) == 0 {
		return core.NewError(core.CodeInternal, "workflow has no task specs")
	}

	byID := make(map[string]core.TaskSpec, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return core.NewError(core.CodeInternal, "task spec with empty id")
		}
		if _, ok := byID[spec.ID]; ok {
			return core.NewError(core.CodeAlreadyExists, "duplicate task id %q", spec.ID)
		}
		byID[spec.ID] = spec
	}
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, ok := byID[dep]; !ok {
				return core.NewError(core.CodeNotFound, "task %q depends on unknown task %q", spec.ID, dep)
			}
			if dep == spec.ID {
				return core.NewError(core.CodeCyclicDependency, "cyclic dependency: %s -> %s", spec.ID, spec.ID)
			}
		}
	}
	if cycle := findCycle(specs, byID); len(cycle) > 0 {
		return core.NewError(core.CodeCyclicDependency, "cyclic dependency: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// findCycle runs a depth-first search over the dependency edges and returns
// the first cycle found as a path ending on its starting node, or nil for an
// acyclic graph. Specs are visited in declaration order so the reported cycle
// is deterministic.
func findCycle(specs []core.TaskSpec, byID map[string]core.TaskSpec) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(specs))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				// Close the loop from the first occurrence of dep on the path.
				for i, onPath := range stack {
					if onPath == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, spec := range specs {
		if color[spec.ID] == white {
			if cycle := visit(spec.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// dependents inverts the dependency edges: for each spec id, the ids that
// depend on it directly.
func dependents(specs []core.TaskSpec) map[string][]string {
	out := make(map[string][]string, len(specs))
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			out[dep] = append(out[dep], spec.ID)
		}
	}
	return out
}
