package domain

import (
	"errors"
	"fmt"
	"time"
)

// Dependency graph rejections.
var (
	ErrSelfDependency      = errors.New("self-dependency")
	ErrDuplicateDependency = errors.New("duplicate dependency")
	ErrCyclicDependency    = errors.New("cyclic dependency")
)

// DependencyType classifies how strongly a feature depends on another.
type DependencyType string

const (
	DependencyHard     DependencyType = "HARD"
	DependencySoft     DependencyType = "SOFT"
	DependencyOptional DependencyType = "OPTIONAL"
)

// Valid reports whether t is a known dependency type.
func (t DependencyType) Valid() bool {
	switch t {
	case DependencyHard, DependencySoft, DependencyOptional:
		return true
	}
	return false
}

// DependencyEdge is a directed "depends-on" relation between two features.
type DependencyEdge struct {
	FeatureCode   string         `json:"feature_code"`
	DependsOnCode string         `json:"depends_on_code"`
	DepType       DependencyType `json:"dep_type"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CanAddEdge decides whether adding from→to keeps the dependency graph valid:
// no self-loop, no duplicate edge, no directed cycle. The cycle check searches
// the existing edge set for a path from `to` back to `from`; if one exists the
// new edge would close a cycle. The traversal is iterative with a visited set,
// so arbitrarily large graphs terminate without recursion depth limits.
func CanAddEdge(from, to string, existing []DependencyEdge) error {
	if from == to {
		return fmt.Errorf("%w: feature %s cannot depend on itself", ErrSelfDependency, from)
	}

	adjacency := make(map[string][]string, len(existing))
	for _, e := range existing {
		if e.FeatureCode == from && e.DependsOnCode == to {
			return fmt.Errorf("%w: %s already depends on %s", ErrDuplicateDependency, from, to)
		}
		adjacency[e.FeatureCode] = append(adjacency[e.FeatureCode], e.DependsOnCode)
	}

	// BFS from `to` over existing edges looking for `from`.
	visited := map[string]struct{}{to: {}}
	queue := []string{to}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == from {
			return fmt.Errorf("%w: adding %s -> %s would close a dependency cycle", ErrCyclicDependency, from, to)
		}
		for _, next := range adjacency[node] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	return nil
}
