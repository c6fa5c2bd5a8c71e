package graph

import (
	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/types"
)

// TraverseOptions configures a single TRAVERSE / traverse() call
// (spec §4.7.1).
type TraverseOptions struct {
	Depth     int    // DEPTH n; 0 means "just the start node"
	Direction string // "in" | "out" | "both"; default "out"
	EdgeType  string // TYPE edge_type; "" means any type
}

// Traverse performs a breadth-first walk from start up to Depth hops,
// using a visited-set of UUIDs for cycle detection (spec §4.7.2), and
// returns the reachable entities in BFS order including the start node
// itself at depth 0.
func (s *Store) Traverse(tenant string, start uuid.UUID, opts TraverseOptions, entities *entity.Store) ([]*types.Entity, error) {
	direction := opts.Direction
	if direction == "" {
		direction = "out"
	}

	startEntity, err := entities.Get(tenant, start)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{start: true}
	order := []*types.Entity{startEntity}

	type frontierNode struct {
		id    uuid.UUID
		depth int
	}
	frontier := []frontierNode{{id: start, depth: 0}}

	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]
		if node.depth >= opts.Depth {
			continue
		}
		edges, err := s.GetEdges(tenant, node.id, direction, opts.EdgeType)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			// The neighbor is whichever endpoint isn't the node we just
			// expanded from: e.SrcID == node.id for an outgoing edge,
			// e.DstID == node.id for an incoming one.
			next := e.DstID
			if e.SrcID != node.id {
				next = e.SrcID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			ent, err := entities.Get(tenant, next)
			if err != nil {
				continue // endpoint deleted/missing: skip, don't fail the whole traversal
			}
			order = append(order, ent)
			frontier = append(frontier, frontierNode{id: next, depth: node.depth + 1})
		}
	}
	return order, nil
}
