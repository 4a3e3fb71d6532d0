package workflow

import (
	"sort"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// Group is one layer of steps that may run concurrently: every step in a
// Group has had all of its dependencies satisfied by an earlier Group.
type Group struct {
	Index          int
	Steps          []string
	MaxConcurrency int
}

// DependencyResolver computes execution order and concurrency grouping from
// a Definition's dependsOn edges (spec §4.1).
type DependencyResolver struct {
	def *Definition
}

// NewDependencyResolver creates a resolver bound to def.
func NewDependencyResolver(def *Definition) *DependencyResolver {
	return &DependencyResolver{def: def}
}

// TopologicalOrder returns step ids in an order where every step appears
// after all of its dependencies, breaking ties by the step's position in
// Definition.Steps for determinism. Returns a CycleError if the graph is not
// a DAG.
func (r *DependencyResolver) TopologicalOrder() ([]string, error) {
	groups, err := r.ParallelGroups()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(r.def.Steps))
	for _, g := range groups {
		order = append(order, g.Steps...)
	}
	return order, nil
}

// ParallelGroups partitions steps into sequential layers using Kahn's
// algorithm: layer N contains every step whose dependencies are fully
// contained in layers 0..N-1. Steps within a layer are independent of each
// other and are candidates for concurrent execution, subject to the
// concurrency limits resolved here.
//
// A step with parallel.enabled=false still occupies its structural layer
// (its position in the DAG is unchanged) but is recorded with
// MaxConcurrency effectively 1 for itself via the step's own
// parallelEnabled() check in ParallelExecutor -- grouping and admission are
// deliberately kept as separate concerns (spec §9 Open Question b).
func (r *DependencyResolver) ParallelGroups() ([]Group, error) {
	steps := r.def.Steps
	indexOf := make(map[string]int, len(steps))
	for i, s := range steps {
		indexOf[s.ID] = i
	}

	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		indegree[s.ID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	remaining := len(steps)
	visited := make(map[string]bool, len(steps))
	var groups []Group

	for remaining > 0 {
		var frontier []string
		for _, s := range steps {
			if !visited[s.ID] && indegree[s.ID] == 0 {
				frontier = append(frontier, s.ID)
			}
		}
		if len(frontier) == 0 {
			return nil, r.cycleError(visited)
		}

		sort.Slice(frontier, func(i, j int) bool { return indexOf[frontier[i]] < indexOf[frontier[j]] })

		for _, id := range frontier {
			visited[id] = true
			remaining--
		}
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}

		groups = append(groups, Group{
			Index:          len(groups),
			Steps:          frontier,
			MaxConcurrency: r.groupConcurrency(frontier),
		})
	}

	return groups, nil
}

// groupConcurrency resolves the effective concurrency cap for a layer: the
// minimum of the workflow default and any per-step maxConcurrency set within
// the layer, since a tighter step-level cap must still be respected.
func (r *DependencyResolver) groupConcurrency(stepIDs []string) int {
	cap := r.def.defaultMaxConcurrency()
	for _, id := range stepIDs {
		s := r.def.stepByID(id)
		if s == nil || s.Parallel == nil || s.Parallel.MaxConcurrency <= 0 {
			continue
		}
		if s.Parallel.MaxConcurrency < cap {
			cap = s.Parallel.MaxConcurrency
		}
	}
	return cap
}

// cycleError identifies the steps left unvisited when no zero-indegree
// frontier remains -- exactly the steps participating in (or depending
// transitively only on) a cycle.
func (r *DependencyResolver) cycleError(visited map[string]bool) error {
	var participants []string
	for _, s := range r.def.Steps {
		if !visited[s.ID] {
			participants = append(participants, s.ID)
		}
	}
	return &flowerrors.CycleError{Participants: participants}
}
