package dag

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by BuildLevels when some nodes depend on each other.
var ErrCycle = errors.New("dag: cycle detected")

// Graph declares nodes and edges (dependency relationships). Node order is
// kept within each level.
type Graph struct {
	Nodes []string
	Edges []Edge
}

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// CycleError reports the nodes left unresolved by a cycle, in node order.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %d nodes unresolved %v", ErrCycle, len(e.Remaining), e.Remaining)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// BuildLevels uses Kahn's algorithm to group nodes by dependency level.
// On a cycle it returns the levels resolved so far together with a
// *CycleError listing the rest.
func BuildLevels(g *Graph) ([][]string, error) {
	index := make(map[string]int, len(g.Nodes))
	for i, name := range g.Nodes {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("dag: duplicate node %q", name)
		}
		index[name] = i
	}

	inDegree := make([]int, len(g.Nodes))
	dependents := make([][]int, len(g.Nodes)) // from -> [to...]
	for _, e := range g.Edges {
		from, ok := index[e.From]
		if !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.From)
		}
		to, ok := index[e.To]
		if !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.To)
		}
		inDegree[to]++
		dependents[from] = append(dependents[from], to)
	}

	// Collect nodes with no incoming edges (level 0)
	var queue []int
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	var levels [][]string
	done := make([]bool, len(g.Nodes))
	visited := 0

	for len(queue) > 0 {
		level := make([]string, len(queue))
		for i, n := range queue {
			level[i] = g.Nodes[n]
			done[n] = true
		}
		levels = append(levels, level)
		visited += len(queue)

		ready := make([]bool, len(g.Nodes))
		for _, n := range queue {
			for _, dep := range dependents[n] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					ready[dep] = true
				}
			}
		}
		var next []int
		for i, ok := range ready {
			if ok {
				next = append(next, i)
			}
		}
		queue = next
	}

	if visited != len(g.Nodes) {
		remaining := make([]string, 0, len(g.Nodes)-visited)
		for i, name := range g.Nodes {
			if !done[i] {
				remaining = append(remaining, name)
			}
		}
		return levels, &CycleError{Remaining: remaining}
	}

	return levels, nil
}
