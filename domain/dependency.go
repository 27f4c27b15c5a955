package domain

import (
	"context"
	"fmt"
)

// BlockerLookup resolves the current blockedBy edge set of a task.
// Implementations must treat soft-deleted tasks as having no edges.
type BlockerLookup interface {
	BlockedBy(ctx context.Context, taskID string) ([]string, error)
}

// ValidateBlockedBy proves that replacing taskID's blockedBy edges with
// edges keeps the workspace dependency graph acyclic. It must run on
// every write that carries a blockedBy field; the edge set is applied
// atomically or not at all by the caller.
func ValidateBlockedBy(ctx context.Context, lookup BlockerLookup, taskID string, edges []string) error {
	for _, e := range edges {
		if e == taskID {
			return ErrSelfDependency
		}
	}

	// BFS from every proposed blocker; reaching taskID closes a cycle.
	visited := make(map[string]struct{}, len(edges))
	queue := make([]string, 0, len(edges))
	for _, e := range edges {
		if _, ok := visited[e]; ok {
			continue
		}
		visited[e] = struct{}{}
		queue = append(queue, e)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		next, err := lookup.BlockedBy(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve blockers of %s: %w", id, err)
		}
		for _, n := range next {
			if n == taskID {
				return ErrCircularDependency
			}
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return nil
}
